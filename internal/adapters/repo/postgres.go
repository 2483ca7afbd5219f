package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-gazeta/internal/domain"
	"tg-gazeta/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.SourceRepo  = (*Postgres)(nil)
	_ domain.MessageRepo = (*Postgres)(nil)
	_ domain.ReportRepo  = (*Postgres)(nil)
	_ domain.StatsRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertSource создаёт или обновляет источник и возвращает его внутренний ключ.
// Пустые title/username не затирают ранее сохранённые значения.
func (p *Postgres) UpsertSource(ctx context.Context, identifier string, kind domain.SourceKind, title, username string) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var id int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO sources (identifier, kind, title, username, last_updated)
VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), now())
ON CONFLICT (identifier) DO UPDATE SET
    title = COALESCE(NULLIF(EXCLUDED.title,''), sources.title),
    username = COALESCE(NULLIF(EXCLUDED.username,''), sources.username),
    last_updated = now()
RETURNING id
`, identifier, string(kind), title, username).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "sources_upsert", "sources", start, err)
	return id, err
}

// GetSourceByIdentifier возвращает источник по идентификатору.
func (p *Postgres) GetSourceByIdentifier(ctx context.Context, identifier string) (domain.Source, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	src, err := scanSource(p.pool.QueryRow(ctx, `
SELECT id, identifier, kind, title, username, last_updated, created_at
FROM sources WHERE identifier=$1
`, identifier))
	metrics.ObserveNetworkRequest("postgres", "sources_get", "sources", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Source{}, domain.ErrSourceNotFound
	}
	return src, err
}

// ListSources возвращает все источники в порядке создания.
func (p *Postgres) ListSources(ctx context.Context) ([]domain.Source, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, identifier, kind, title, username, last_updated, created_at
FROM sources ORDER BY created_at
`)
	metrics.ObserveNetworkRequest("postgres", "sources_list", "sources", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sources []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (domain.Source, error) {
	var (
		src         domain.Source
		kind        string
		title       sql.NullString
		username    sql.NullString
		lastUpdated sql.NullTime
	)
	if err := row.Scan(&src.ID, &src.Identifier, &kind, &title, &username, &lastUpdated, &src.CreatedAt); err != nil {
		return domain.Source{}, err
	}
	src.Kind = domain.SourceKind(kind)
	if title.Valid {
		src.Title = title.String
	}
	if username.Valid {
		src.Username = username.String
	}
	if lastUpdated.Valid {
		ts := lastUpdated.Time
		src.LastUpdated = &ts
	}
	return src, nil
}

// InsertMessage вставляет сообщение. Конфликт по (source_id, tg_msg_id)
// не является ошибкой: false означает, что сообщение уже было сохранено.
func (p *Postgres) InsertMessage(ctx context.Context, msg domain.Message) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO messages (source_id, tg_msg_id, published_at, text, link, sender_id, sender_name)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,0), NULLIF($7,''))
ON CONFLICT (source_id, tg_msg_id) DO NOTHING
`, msg.SourceID, msg.TGMsgID, msg.PublishedAt, msg.Text, msg.Link, msg.SenderID, msg.SenderName)
	metrics.ObserveNetworkRequest("postgres", "messages_insert", "messages", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

const messageColumns = `
m.id, m.source_id, m.tg_msg_id, m.published_at, m.text, m.link, m.sender_id, m.sender_name,
s.identifier, s.kind, s.title, s.username`

// ListMessagesByWindow возвращает сообщения окна [start, end) по возрастанию даты.
// sourceID = 0 означает все источники.
func (p *Postgres) ListMessagesByWindow(ctx context.Context, start, end time.Time, sourceID int64) ([]domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		rows pgx.Rows
		err  error
	)
	began := time.Now()
	if sourceID > 0 {
		rows, err = p.pool.Query(ctx, `
SELECT `+messageColumns+`
FROM messages m JOIN sources s ON s.id = m.source_id
WHERE m.published_at >= $1 AND m.published_at < $2 AND m.source_id = $3
ORDER BY m.published_at
`, start, end, sourceID)
	} else {
		rows, err = p.pool.Query(ctx, `
SELECT `+messageColumns+`
FROM messages m JOIN sources s ON s.id = m.source_id
WHERE m.published_at >= $1 AND m.published_at < $2
ORDER BY m.published_at
`, start, end)
	}
	metrics.ObserveNetworkRequest("postgres", "messages_list_window", "messages", began, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			m          domain.Message
			text       sql.NullString
			link       sql.NullString
			senderID   sql.NullInt64
			senderName sql.NullString
			kind       string
			title      sql.NullString
			username   sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SourceID, &m.TGMsgID, &m.PublishedAt, &text, &link, &senderID, &senderName,
			&m.SourceIdentifier, &kind, &title, &username); err != nil {
			return nil, err
		}
		if text.Valid {
			m.Text = text.String
		}
		if link.Valid {
			m.Link = link.String
		}
		if senderID.Valid {
			m.SenderID = senderID.Int64
		}
		if senderName.Valid {
			m.SenderName = senderName.String
		}
		m.SourceKind = domain.SourceKind(kind)
		if title.Valid {
			m.SourceTitle = title.String
		}
		if username.Valid {
			m.SourceUsername = username.String
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListMessagesGroupedBySource группирует сообщения окна по идентификатору
// источника, сохраняя порядок по дате внутри источника.
func (p *Postgres) ListMessagesGroupedBySource(ctx context.Context, start, end time.Time) (map[string][]domain.Message, error) {
	messages, err := p.ListMessagesByWindow(ctx, start, end, 0)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]domain.Message)
	for _, msg := range messages {
		grouped[msg.SourceIdentifier] = append(grouped[msg.SourceIdentifier], msg)
	}
	return grouped, nil
}

// SaveReport идемпотентно сохраняет сводку за дату. Текст перезаписывается,
// sent_at сохраняется от прошлого прогона.
func (p *Postgres) SaveReport(ctx context.Context, date time.Time, content string) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var id int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO reports (date, content)
VALUES ($1, $2)
ON CONFLICT (date) DO UPDATE SET content = EXCLUDED.content
RETURNING id
`, date.Format("2006-01-02"), content).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "reports_upsert", "reports", start, err)
	return id, err
}

// MarkReportSent отмечает время доставки сводки.
func (p *Postgres) MarkReportSent(ctx context.Context, reportID int64, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE reports SET sent_at=$2 WHERE id=$1`, reportID, at)
	metrics.ObserveNetworkRequest("postgres", "reports_mark_sent", "reports", start, err)
	return err
}

// GetReportByDate возвращает сводку по дате.
func (p *Postgres) GetReportByDate(ctx context.Context, date time.Time) (domain.Report, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		report domain.Report
		sentAt sql.NullTime
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, date, content, sent_at, created_at FROM reports WHERE date=$1
`, date.Format("2006-01-02")).Scan(&report.ID, &report.Date, &report.Content, &sentAt, &report.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "reports_get", "reports", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Report{}, domain.ErrReportNotFound
	}
	if err != nil {
		return domain.Report{}, err
	}
	if sentAt.Valid {
		ts := sentAt.Time
		report.SentAt = &ts
	}
	return report, nil
}

// CountRows возвращает количество строк по таблицам.
func (p *Postgres) CountRows(ctx context.Context) (domain.TableStats, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var stats domain.TableStats
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT
    (SELECT count(*) FROM sources),
    (SELECT count(*) FROM messages),
    (SELECT count(*) FROM reports)
`).Scan(&stats.Sources, &stats.Messages, &stats.Reports)
	metrics.ObserveNetworkRequest("postgres", "stats_count", "all", start, err)
	return stats, err
}
