package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tg-gazeta/internal/adapters/mtproto"
	"tg-gazeta/internal/adapters/repo"
	"tg-gazeta/internal/adapters/summarizer"
	"tg-gazeta/internal/adapters/telegram"
	"tg-gazeta/internal/domain"
	"tg-gazeta/internal/infra/cache"
	"tg-gazeta/internal/infra/config"
	"tg-gazeta/internal/infra/db"
	httpsrv "tg-gazeta/internal/infra/http"
	"tg-gazeta/internal/infra/log"
	"tg-gazeta/internal/infra/metrics"
	"tg-gazeta/internal/infra/openai"
	"tg-gazeta/internal/usecase/collect"
	"tg-gazeta/internal/usecase/digest"
	"tg-gazeta/internal/usecase/report"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "не удалось прочитать конфигурацию: %v\n", err)
		os.Exit(1)
	}
	logger := log.NewLogger(cfg.AppEnv)

	root := &cobra.Command{
		Use:          "gazeta",
		Short:        "Дневные сводки Telegram-каналов и чатов",
		SilenceUsage: true,
	}
	root.AddCommand(
		newRunCmd(cfg, logger),
		newTestCmd(cfg, logger),
		newStatsCmd(cfg, logger),
	)

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("команда завершилась с ошибкой")
		os.Exit(1)
	}
}

func newRunCmd(cfg config.AppConfig, logger zerolog.Logger) *cobra.Command {
	var noSend bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Собрать вчерашние сообщения и отправить сводку",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := validate(cfg, logger); err != nil {
				return err
			}
			loc := location(cfg, logger)

			pool, err := db.Connect(cfg.PGDSN)
			if err != nil {
				return fmt.Errorf("подключение к Postgres: %w", err)
			}
			defer pool.Close()
			if err := db.EnsureSchema(ctx, pool); err != nil {
				return err
			}

			metrics.MustRegister(prometheus.DefaultRegisterer)
			storage := repo.NewPostgres(pool)

			srv := httpsrv.NewServer(logger, storage)
			go func() {
				if err := srv.Start(ctx, cfg.MetricsAddr); err != nil {
					logger.Error().Err(err).Msg("HTTP сервер остановился с ошибкой")
				}
			}()

			bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
			if err != nil {
				return fmt.Errorf("авторизация бота: %w", err)
			}
			sender := telegram.NewSender(bot, logger)

			llm := openai.NewClient(cfg.BotHub.APIKey, cfg.BotHub.BaseURL, 60*time.Second)
			summ := summarizer.NewBotHub(llm, cfg.BotHub.Model, 0)

			var once domain.Cache = cache.NoopCache{}
			if cfg.RedisAddr != "" {
				once = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
			}

			mt := mtproto.NewClient(
				cfg.Telegram.APIID,
				cfg.Telegram.APIHash,
				cfg.Telegram.SessionFile,
				cfg.Telegram.Phone,
				float64(cfg.Telegram.RPS),
				logger,
			)

			collector := collect.NewService(mt, storage, storage, logger)
			digester := digest.NewService(storage, storage, summ, cfg.Limits.DigestTopics, cfg.Limits.DigestSamples, logger)
			pipeline := report.NewService(
				collector,
				digester,
				storage,
				storage,
				sender,
				report.NewFormatter(cfg.Report.Title),
				once,
				logger,
				cfg.SourceRefs(),
				cfg.Report.ChatID,
				loc,
			)

			return mt.Run(ctx, func(ctx context.Context) error {
				content, err := pipeline.Run(ctx, time.Now().In(loc), !noSend)
				if err != nil {
					return err
				}
				if noSend {
					fmt.Println(content)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noSend, "no-send", false, "сохранить сводку, не отправляя её")
	return cmd
}

func newTestCmd(cfg config.AppConfig, logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Проверить доступность Telegram, BotHub и базы",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := validate(cfg, logger); err != nil {
				return err
			}

			failed := false

			pool, err := db.Connect(cfg.PGDSN)
			if err != nil {
				logger.Error().Err(err).Msg("Postgres недоступен")
				failed = true
			} else {
				defer pool.Close()
				if err := pool.Ping(ctx); err != nil {
					logger.Error().Err(err).Msg("Postgres не отвечает")
					failed = true
				} else {
					logger.Info().Msg("Postgres: ок")
				}
			}

			bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
			if err != nil {
				logger.Error().Err(err).Msg("Bot API недоступен")
				failed = true
			} else {
				logger.Info().Str("bot", bot.Self.UserName).Msg("Bot API: ок")
			}

			llm := openai.NewClient(cfg.BotHub.APIKey, cfg.BotHub.BaseURL, 30*time.Second)
			summ := summarizer.NewBotHub(llm, cfg.BotHub.Model, 30*time.Second)
			if err := summ.HealthCheck(ctx); err != nil {
				logger.Error().Err(err).Msg("BotHub недоступен")
				failed = true
			} else {
				logger.Info().Str("model", cfg.BotHub.Model).Msg("BotHub: ок")
			}

			mt := mtproto.NewClient(
				cfg.Telegram.APIID,
				cfg.Telegram.APIHash,
				cfg.Telegram.SessionFile,
				cfg.Telegram.Phone,
				float64(cfg.Telegram.RPS),
				logger,
			)
			err = mt.Run(ctx, func(ctx context.Context) error {
				for _, ref := range cfg.SourceRefs() {
					meta, err := mt.Resolve(ctx, ref.Identifier)
					if err != nil {
						logger.Error().Err(err).Str("source", ref.Identifier).Msg("источник не резолвится")
						failed = true
						continue
					}
					logger.Info().
						Str("source", ref.Identifier).
						Str("kind", string(meta.Kind)).
						Str("title", meta.Title).
						Msg("источник: ок")
				}
				return nil
			})
			if err != nil {
				logger.Error().Err(err).Msg("сессия MTProto недоступна")
				failed = true
			}

			if failed {
				return fmt.Errorf("проверка подключений не пройдена")
			}
			logger.Info().Msg("все подключения в порядке")
			return nil
		},
	}
}

func newStatsCmd(cfg config.AppConfig, logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Показать количество строк в таблицах",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.PGDSN == "" {
				return fmt.Errorf("PG_DSN не установлен")
			}
			pool, err := db.Connect(cfg.PGDSN)
			if err != nil {
				return fmt.Errorf("подключение к Postgres: %w", err)
			}
			defer pool.Close()
			if err := db.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}

			stats, err := repo.NewPostgres(pool).CountRows(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info().
				Int64("sources", stats.Sources).
				Int64("messages", stats.Messages).
				Int64("reports", stats.Reports).
				Msg("статистика базы данных")
			fmt.Printf("Источников: %d\nСообщений: %d\nСводок: %d\n", stats.Sources, stats.Messages, stats.Reports)
			return nil
		},
	}
}

func validate(cfg config.AppConfig, logger zerolog.Logger) error {
	errs := cfg.Validate()
	if len(errs) == 0 {
		return nil
	}
	for _, msg := range errs {
		logger.Error().Msg(msg)
	}
	return fmt.Errorf("конфигурация неполная: %d ошибок", len(errs))
}

func location(cfg config.AppConfig, logger zerolog.Logger) *time.Location {
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Str("tz", cfg.TZ).Msg("неизвестная таймзона, используем локальную")
		return time.Local
	}
	return loc
}
