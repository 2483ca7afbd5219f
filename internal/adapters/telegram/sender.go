package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-gazeta/internal/domain"
	"tg-gazeta/internal/infra/metrics"
)

// partDelay — пауза между частями одного отчёта, чтобы не упереться в лимиты Bot API.
const partDelay = 500 * time.Millisecond

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender доставляет готовые отчёты через Bot API.
type Sender struct {
	bot    botAPI
	logger zerolog.Logger
}

var _ domain.ReportSender = (*Sender)(nil)

// NewSender создаёт отправителя поверх авторизованного бота.
func NewSender(bot botAPI, logger zerolog.Logger) *Sender {
	return &Sender{bot: bot, logger: logger}
}

// Send отправляет текст в чат, разбивая его на части по бюджету Telegram.
// Части уходят по порядку с паузой между ними.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return fmt.Errorf("отправка отчёта: пустой текст")
	}

	for i, part := range parts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(partDelay):
			}
		}

		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		start := time.Now()
		_, err := s.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram-bot", "send_message", fmt.Sprintf("%d", chatID), start, err)
		if err != nil {
			metrics.ReportSendErrors.Inc()
			return fmt.Errorf("отправка части %d/%d: %w", i+1, len(parts), err)
		}
		s.logger.Debug().
			Int64("chat_id", chatID).
			Int("part", i+1).
			Int("parts", len(parts)).
			Msg("часть отчёта отправлена")
	}
	return nil
}
