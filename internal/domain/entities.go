package domain

import "time"

// SourceKind определяет тип источника Telegram.
type SourceKind string

const (
	// KindChannel вещательный канал, посты без персональной атрибуции.
	KindChannel SourceKind = "channel"
	// KindChat многопользовательский чат, сообщения суммируются в повестку.
	KindChat SourceKind = "chat"
)

// Valid сообщает, известен ли тип источника.
func (k SourceKind) Valid() bool {
	return k == KindChannel || k == KindChat
}

// SourceRef описывает настроенный источник до резолва метаданных.
type SourceRef struct {
	Identifier string
	Kind       SourceKind
}

// Source описывает канал или чат, за которым ведётся наблюдение.
type Source struct {
	ID          int64
	Identifier  string
	Kind        SourceKind
	Title       string
	Username    string
	LastUpdated *time.Time
	CreatedAt   time.Time
}

// SourceMeta содержит метаданные источника из MTProto.
type SourceMeta struct {
	TGID     int64
	Kind     SourceKind
	Title    string
	Username string
}

// Message представляет сообщение источника за окно сбора.
type Message struct {
	ID          int64
	SourceID    int64
	TGMsgID     int64
	PublishedAt time.Time
	Text        string
	Link        string
	SenderID    int64
	SenderName  string
	// Заполняются join-ом при выборке окна.
	SourceIdentifier string
	SourceKind       SourceKind
	SourceTitle      string
	SourceUsername   string
}

// CollectStats агрегирует результат одного прогона сбора.
type CollectStats struct {
	TotalSources  int
	TotalMessages int
	NewMessages   int
	Failed        []string
}

// Report представляет дневную сводку, сохранённую по дате.
type Report struct {
	ID        int64
	Date      time.Time
	Content   string
	SentAt    *time.Time
	CreatedAt time.Time
}

// ChatSection содержит данные одного чата для сводки.
type ChatSection struct {
	Source   Source
	Digest   string
	Messages []Message
}

// TableStats содержит количество строк по таблицам.
type TableStats struct {
	Sources  int64
	Messages int64
	Reports  int64
}
