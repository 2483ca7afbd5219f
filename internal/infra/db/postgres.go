package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect создаёт пул подключений к Postgres.
func Connect(dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 5
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sources (
	id BIGSERIAL PRIMARY KEY,
	identifier TEXT UNIQUE NOT NULL,
	kind TEXT NOT NULL,
	title TEXT,
	username TEXT,
	last_updated TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	source_id BIGINT NOT NULL REFERENCES sources(id),
	tg_msg_id BIGINT NOT NULL,
	published_at TIMESTAMPTZ NOT NULL,
	text TEXT,
	link TEXT,
	sender_id BIGINT,
	sender_name TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_id, tg_msg_id)
)`,
	`CREATE TABLE IF NOT EXISTS reports (
	id BIGSERIAL PRIMARY KEY,
	date DATE UNIQUE NOT NULL,
	content TEXT NOT NULL,
	sent_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_published_at ON messages(published_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_source_published ON messages(source_id, published_at)`,
}

// EnsureSchema создаёт таблицы и индексы, если их ещё нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("инициализация схемы: %w", err)
		}
	}
	return nil
}
