package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-gazeta/internal/domain"
)

// Service строит повестку дня для чатов.
type Service struct {
	sources    domain.SourceRepo
	messages   domain.MessageRepo
	summarizer domain.Summarizer
	maxTopics  int
	maxSamples int
	logger     zerolog.Logger
}

// NewService создаёт движок повесток. Нулевые лимиты заменяются значениями
// по умолчанию: 7 тем и 200 сообщений в выборке.
func NewService(sources domain.SourceRepo, messages domain.MessageRepo, summarizer domain.Summarizer, maxTopics, maxSamples int, logger zerolog.Logger) *Service {
	if maxTopics <= 0 {
		maxTopics = 7
	}
	if maxSamples <= 0 {
		maxSamples = 200
	}
	return &Service{
		sources:    sources,
		messages:   messages,
		summarizer: summarizer,
		maxTopics:  maxTopics,
		maxSamples: maxSamples,
		logger:     logger,
	}
}

// ForChat строит повестку дня чата за окно [start, end). Пустая повестка без
// ошибки означает, что в окне не было содержательных сообщений.
func (s *Service) ForChat(ctx context.Context, identifier string, start, end time.Time) (string, error) {
	source, err := s.sources.GetSourceByIdentifier(ctx, identifier)
	if err != nil {
		return "", fmt.Errorf("источник %s: %w", identifier, err)
	}

	msgs, err := s.messages.ListMessagesByWindow(ctx, start, end, source.ID)
	if err != nil {
		return "", fmt.Errorf("выборка сообщений %s: %w", identifier, err)
	}

	snippets := Snippets(msgs)
	if len(snippets) == 0 {
		s.logger.Debug().Str("source", identifier).Msg("нет содержательных сообщений для повестки")
		return "", nil
	}
	sampled := Downsample(snippets, s.maxSamples)
	if len(sampled) < len(snippets) {
		s.logger.Debug().
			Str("source", identifier).
			Int("total", len(snippets)).
			Int("sampled", len(sampled)).
			Msg("сообщения прорежены для повестки")
	}

	digest, err := s.summarizer.GenerateDigest(ctx, sampled, s.maxTopics)
	if err != nil {
		return "", fmt.Errorf("повестка %s: %w", identifier, err)
	}
	return digest, nil
}

// Snippets превращает сообщения в строки для промпта. Сообщения без текста
// пропускаются, имя отправителя добавляется префиксом, когда оно известно.
func Snippets(msgs []domain.Message) []string {
	snippets := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		if name := strings.TrimSpace(msg.SenderName); name != "" {
			snippets = append(snippets, fmt.Sprintf("[%s] %s", name, text))
			continue
		}
		snippets = append(snippets, text)
	}
	return snippets
}

// Downsample прореживает список равномерным шагом до не более limit элементов,
// сохраняя исходный порядок. Шаг округляется вверх, поэтому выборка никогда
// не превышает лимит.
func Downsample(snippets []string, limit int) []string {
	if limit <= 0 || len(snippets) <= limit {
		return snippets
	}
	stride := (len(snippets) + limit - 1) / limit
	if stride < 1 {
		stride = 1
	}
	sampled := make([]string, 0, len(snippets)/stride+1)
	for i := 0; i < len(snippets); i += stride {
		sampled = append(sampled, snippets[i])
	}
	return sampled
}
