package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSourceNotFound возвращается, когда источник отсутствует в леджере.
var ErrSourceNotFound = errors.New("источник не найден")

// ErrReportNotFound возвращается, когда сводка за дату не сохранялась.
var ErrReportNotFound = errors.New("сводка за дату не найдена")

// SourceRepo управляет леджером источников.
type SourceRepo interface {
	// UpsertSource создаёт или обновляет источник. Пустые title/username
	// не затирают ранее сохранённые значения.
	UpsertSource(ctx context.Context, identifier string, kind SourceKind, title, username string) (int64, error)
	GetSourceByIdentifier(ctx context.Context, identifier string) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)
}

// MessageRepo управляет хранилищем сообщений.
type MessageRepo interface {
	// InsertMessage вставляет сообщение; false означает, что пара
	// (source_id, tg_msg_id) уже существовала.
	InsertMessage(ctx context.Context, msg Message) (bool, error)
	// ListMessagesByWindow возвращает сообщения окна [start, end)
	// по возрастанию published_at. sourceID = 0 означает все источники.
	ListMessagesByWindow(ctx context.Context, start, end time.Time, sourceID int64) ([]Message, error)
	// ListMessagesGroupedBySource группирует окно по идентификатору источника,
	// сохраняя порядок внутри источника.
	ListMessagesGroupedBySource(ctx context.Context, start, end time.Time) (map[string][]Message, error)
}

// ReportRepo сохраняет и возвращает сводки.
type ReportRepo interface {
	// SaveReport идемпотентно сохраняет сводку за дату, перезаписывая текст
	// и не трогая sent_at.
	SaveReport(ctx context.Context, date time.Time, content string) (int64, error)
	MarkReportSent(ctx context.Context, reportID int64, at time.Time) error
	GetReportByDate(ctx context.Context, date time.Time) (Report, error)
}

// StatsRepo возвращает количество строк по таблицам.
type StatsRepo interface {
	CountRows(ctx context.Context) (TableStats, error)
}

// MessageFetcher абстрагирует MTProto-клиент Telegram.
type MessageFetcher interface {
	// Resolve возвращает метаданные источника по идентификатору.
	Resolve(ctx context.Context, identifier string) (SourceMeta, error)
	// FetchWindow возвращает сообщения окна [start, end) в порядке выдачи
	// Telegram (от новых к старым).
	FetchWindow(ctx context.Context, identifier string, start, end time.Time) ([]Message, error)
}

// Summarizer строит повестку дня из текстов сообщений чата.
type Summarizer interface {
	GenerateDigest(ctx context.Context, snippets []string, maxTopics int) (string, error)
	HealthCheck(ctx context.Context) error
}

// ReportSender доставляет сводку в Telegram, при необходимости частями.
type ReportSender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
