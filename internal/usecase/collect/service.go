package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-gazeta/internal/domain"
	"tg-gazeta/internal/infra/metrics"
)

// Service собирает сообщения настроенных источников за окно времени.
type Service struct {
	fetcher  domain.MessageFetcher
	sources  domain.SourceRepo
	messages domain.MessageRepo
	logger   zerolog.Logger
}

// NewService создаёт сервис сбора.
func NewService(fetcher domain.MessageFetcher, sources domain.SourceRepo, messages domain.MessageRepo, logger zerolog.Logger) *Service {
	return &Service{fetcher: fetcher, sources: sources, messages: messages, logger: logger}
}

// Collect обходит источники по очереди и сохраняет сообщения окна [start, end).
// Ошибка одного источника не прерывает обход: источник попадает в Failed,
// остальные обрабатываются дальше. Повторный запуск по тому же окну
// идемпотентен за счёт уникальности (source_id, tg_msg_id).
func (s *Service) Collect(ctx context.Context, refs []domain.SourceRef, start, end time.Time) (domain.CollectStats, error) {
	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Logger()
	logger.Info().
		Time("window_start", start).
		Time("window_end", end).
		Int("sources", len(refs)).
		Msg("запускаем сбор сообщений")

	stats := domain.CollectStats{TotalSources: len(refs)}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fetched, inserted, err := s.collectSource(ctx, ref, start, end)
		if err != nil {
			metrics.CollectorErrors.Inc()
			stats.Failed = append(stats.Failed, ref.Identifier)
			logger.Error().Err(err).Str("source", ref.Identifier).Msg("источник пропущен")
			continue
		}
		stats.TotalMessages += fetched
		stats.NewMessages += inserted
		logger.Info().
			Str("source", ref.Identifier).
			Int("fetched", fetched).
			Int("new", inserted).
			Msg("источник собран")
	}

	logger.Info().
		Int("total_messages", stats.TotalMessages).
		Int("new_messages", stats.NewMessages).
		Int("failed", len(stats.Failed)).
		Msg("сбор завершён")
	return stats, nil
}

func (s *Service) collectSource(ctx context.Context, ref domain.SourceRef, start, end time.Time) (fetched, inserted int, err error) {
	meta, err := s.fetcher.Resolve(ctx, ref.Identifier)
	if err != nil {
		return 0, 0, fmt.Errorf("резолв источника: %w", err)
	}
	kind := ref.Kind
	if meta.Kind.Valid() {
		kind = meta.Kind
	}

	sourceID, err := s.sources.UpsertSource(ctx, ref.Identifier, kind, meta.Title, meta.Username)
	if err != nil {
		return 0, 0, fmt.Errorf("сохранение источника: %w", err)
	}

	msgs, err := s.fetcher.FetchWindow(ctx, ref.Identifier, start, end)
	if err != nil {
		return 0, 0, fmt.Errorf("загрузка истории: %w", err)
	}
	metrics.MessagesFetched.WithLabelValues(string(kind)).Add(float64(len(msgs)))

	for _, msg := range msgs {
		msg.SourceID = sourceID
		isNew, err := s.messages.InsertMessage(ctx, msg)
		if err != nil {
			return len(msgs), inserted, fmt.Errorf("запись сообщения %d: %w", msg.TGMsgID, err)
		}
		if isNew {
			inserted++
			metrics.MessagesInserted.Inc()
		}
	}
	return len(msgs), inserted, nil
}
