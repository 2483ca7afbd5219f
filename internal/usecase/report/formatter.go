package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tg-gazeta/internal/domain"
)

const (
	// maxMessageLength ограничивает длину текста поста в сводке.
	maxMessageLength = 300

	headerRule  = "──────────────────────────────"
	sectionRule = "─────────────────────────"
)

// Formatter собирает HTML-текст дневной сводки.
type Formatter struct {
	title string
}

// NewFormatter создаёт форматтер с заголовком сводки.
func NewFormatter(title string) *Formatter {
	if title == "" {
		title = "📰 Дневная сводка"
	}
	return &Formatter{title: title}
}

// FormatDailyReport рендерит сводку за дату: заголовок, раздел чатов с
// повестками, раздел каналов с постами и футер со статистикой. Разделы
// без данных опускаются. Каналы выводятся в алфавитном порядке
// идентификаторов, чаты — в порядке переданного списка.
func (f *Formatter) FormatDailyReport(date time.Time, channels map[string][]domain.Message, chats []domain.ChatSection) string {
	var b strings.Builder

	b.WriteString("<b>" + f.title + "</b>\n")
	b.WriteString("📅 " + date.Format("02.01.2006") + "\n")
	b.WriteString(headerRule + "\n\n")

	if len(chats) > 0 {
		f.writeChatsSection(&b, chats)
	}
	if len(channels) > 0 {
		f.writeChannelsSection(&b, channels)
	}

	totalChatMessages := 0
	for _, chat := range chats {
		totalChatMessages += len(chat.Messages)
	}
	totalChannelMessages := 0
	for _, msgs := range channels {
		totalChannelMessages += len(msgs)
	}

	b.WriteString("\n" + headerRule + "\n")
	b.WriteString("📊 <b>Статистика:</b>\n")
	fmt.Fprintf(&b, "• Чатов: %d (%d сообщений)\n", len(chats), totalChatMessages)
	fmt.Fprintf(&b, "• Каналов: %d (%d постов)\n", len(channels), totalChannelMessages)

	return b.String()
}

func (f *Formatter) writeChatsSection(b *strings.Builder, chats []domain.ChatSection) {
	b.WriteString("🗨 <b>ОБСУЖДЕНИЯ В ЧАТАХ</b>\n\n")

	for _, chat := range chats {
		title := chat.Source.Title
		if title == "" {
			title = chat.Source.Identifier
		}
		b.WriteString("💬 <b>" + escapeHTML(title) + "</b>")
		if chat.Source.Username != "" {
			b.WriteString(" (@" + chat.Source.Username + ")")
		}
		fmt.Fprintf(b, "\n📊 Сообщений: %d\n\n", len(chat.Messages))

		if chat.Digest != "" {
			b.WriteString("<b>Основные темы:</b>\n")
			b.WriteString(chat.Digest + "\n\n")
		} else {
			b.WriteString("<i>Повестка дня не сгенерирована</i>\n\n")
		}
		b.WriteString(sectionRule + "\n\n")
	}
}

func (f *Formatter) writeChannelsSection(b *strings.Builder, channels map[string][]domain.Message) {
	b.WriteString("📢 <b>ПОСТЫ ИЗ КАНАЛОВ</b>\n\n")

	identifiers := make([]string, 0, len(channels))
	for identifier := range channels {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	for _, identifier := range identifiers {
		msgs := channels[identifier]
		if len(msgs) == 0 {
			continue
		}

		title := msgs[0].SourceTitle
		if title == "" {
			title = identifier
		}
		b.WriteString("📣 <b>" + escapeHTML(title) + "</b>")
		if username := msgs[0].SourceUsername; username != "" {
			b.WriteString(" (@" + username + ")")
		}
		fmt.Fprintf(b, "\n📊 Постов: %d\n\n", len(msgs))

		for _, msg := range msgs {
			b.WriteString(formatMessage(msg))
		}
		b.WriteString(sectionRule + "\n\n")
	}
}

// formatMessage рендерит один пост: время, усечённый экранированный текст
// и стрелку-ссылку на оригинал.
func formatMessage(msg domain.Message) string {
	var b strings.Builder

	if !msg.PublishedAt.IsZero() {
		b.WriteString("🕐 " + msg.PublishedAt.Format("15:04") + " ")
	}
	if text := truncate(msg.Text, maxMessageLength); text != "" {
		b.WriteString(escapeHTML(text))
	}
	if msg.Link != "" {
		b.WriteString(` <a href="` + msg.Link + `">↗</a>`)
	}
	b.WriteString("\n\n")

	return b.String()
}

// truncate обрезает текст до limit символов, добавляя многоточие.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// escapeHTML экранирует спецсимволы HTML. Амперсанд заменяется первым,
// чтобы не экранировать уже подставленные сущности.
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
