package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tg-gazeta/internal/domain"
	"tg-gazeta/internal/infra/metrics"
	"tg-gazeta/internal/usecase/collect"
)

// sentLockTTL ограничивает время жизни замка на отправку сводки за дату.
const sentLockTTL = 48 * time.Hour

// Collector собирает сообщения источников за окно.
type Collector interface {
	Collect(ctx context.Context, refs []domain.SourceRef, start, end time.Time) (domain.CollectStats, error)
}

// Digester строит повестку дня чата за окно.
type Digester interface {
	ForChat(ctx context.Context, identifier string, start, end time.Time) (string, error)
}

// Service прогоняет дневной конвейер: сбор, повестки, сборка и доставка сводки.
type Service struct {
	collector Collector
	digester  Digester
	messages  domain.MessageRepo
	reports   domain.ReportRepo
	sender    domain.ReportSender
	formatter *Formatter
	cache     domain.Cache
	logger    zerolog.Logger

	refs       []domain.SourceRef
	destChatID int64
	loc        *time.Location
}

// NewService создаёт сервис дневной сводки.
func NewService(
	collector Collector,
	digester Digester,
	messages domain.MessageRepo,
	reports domain.ReportRepo,
	sender domain.ReportSender,
	formatter *Formatter,
	cache domain.Cache,
	logger zerolog.Logger,
	refs []domain.SourceRef,
	destChatID int64,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		collector:  collector,
		digester:   digester,
		messages:   messages,
		reports:    reports,
		sender:     sender,
		formatter:  formatter,
		cache:      cache,
		logger:     logger,
		refs:       refs,
		destChatID: destChatID,
		loc:        loc,
	}
}

// Run выполняет полный прогон за вчерашние сутки относительно now и
// возвращает текст сводки. Повторный прогон пересобирает окно и
// перезаписывает текст сводки; дедупликация сообщений и замок на отправку
// делают это безопасным. При send=false сводка сохраняется, но не отправляется.
func (s *Service) Run(ctx context.Context, now time.Time, send bool) (string, error) {
	start, end := collect.Yesterday(now, s.loc)
	date := start
	logger := s.logger.With().Str("date", date.Format("2006-01-02")).Logger()

	buildStart := time.Now()

	stats, err := s.collector.Collect(ctx, s.refs, start, end)
	if err != nil {
		return "", fmt.Errorf("сбор сообщений: %w", err)
	}
	logger.Info().
		Int("total", stats.TotalMessages).
		Int("new", stats.NewMessages).
		Strs("failed", stats.Failed).
		Msg("сбор окна завершён")

	grouped, err := s.messages.ListMessagesGroupedBySource(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("выборка окна: %w", err)
	}

	channels, chats := s.partition(ctx, grouped, start, end)
	content := s.formatter.FormatDailyReport(date, channels, chats)
	metrics.ReportBuildSeconds.Observe(time.Since(buildStart).Seconds())

	reportID, err := s.reports.SaveReport(ctx, date, content)
	if err != nil {
		return "", fmt.Errorf("сохранение сводки: %w", err)
	}
	logger.Info().Int64("report_id", reportID).Int("length", len(content)).Msg("сводка сохранена")

	if !send {
		logger.Info().Msg("отправка отключена, сводка только сохранена")
		return content, nil
	}

	return content, s.deliver(ctx, logger, reportID, date, content)
}

// partition раскладывает окно на каналы и чаты. Для каждого чата запрашивается
// повестка; её отсутствие не прерывает прогон, в сводке остаётся заглушка.
func (s *Service) partition(ctx context.Context, grouped map[string][]domain.Message, start, end time.Time) (map[string][]domain.Message, []domain.ChatSection) {
	channels := make(map[string][]domain.Message)
	var chats []domain.ChatSection

	identifiers := make([]string, 0, len(grouped))
	for identifier := range grouped {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	for _, identifier := range identifiers {
		msgs := grouped[identifier]
		if len(msgs) == 0 {
			continue
		}
		if msgs[0].SourceKind != domain.KindChat {
			channels[identifier] = msgs
			continue
		}

		digest, err := s.digester.ForChat(ctx, identifier, start, end)
		if err != nil {
			s.logger.Error().Err(err).Str("source", identifier).Msg("повестка не сгенерирована")
			digest = ""
		}
		chats = append(chats, domain.ChatSection{
			Source: domain.Source{
				ID:         msgs[0].SourceID,
				Identifier: identifier,
				Kind:       domain.KindChat,
				Title:      msgs[0].SourceTitle,
				Username:   msgs[0].SourceUsername,
			},
			Digest:   digest,
			Messages: msgs,
		})
	}
	return channels, chats
}

// deliver отправляет сводку адресату под замком по дате: параллельный прогон
// за ту же дату не продублирует доставку.
func (s *Service) deliver(ctx context.Context, logger zerolog.Logger, reportID int64, date time.Time, content string) error {
	key := "gazeta:report-sent:" + date.Format("2006-01-02")
	err := s.cache.Once(key, sentLockTTL, func() error {
		if err := s.sender.Send(ctx, s.destChatID, content); err != nil {
			return fmt.Errorf("доставка сводки: %w", err)
		}
		if err := s.reports.MarkReportSent(ctx, reportID, time.Now()); err != nil {
			return fmt.Errorf("отметка отправки: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("сводка сохранена, но не доставлена")
		return err
	}
	logger.Info().Int64("chat_id", s.destChatID).Msg("сводка отправлена")
	return nil
}
