package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"tg-gazeta/internal/domain"
)

// AppConfig описывает конфигурацию приложения.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Moscow"`

	Telegram struct {
		APIID       int    `envconfig:"TG_API_ID"`
		APIHash     string `envconfig:"TG_API_HASH"`
		Phone       string `envconfig:"TG_PHONE"`
		BotToken    string `envconfig:"TG_BOT_TOKEN"`
		SessionFile string `envconfig:"TG_SESSION_FILE" default:"data/gazeta.session"`
		RPS         int    `envconfig:"TG_RPS" default:"2"`
	} `envconfig:""`

	BotHub struct {
		APIKey  string `envconfig:"BOTHUB_API_KEY"`
		BaseURL string `envconfig:"BOTHUB_API_URL" default:"https://bothub.chat/api/v2/openai/v1"`
		Model   string `envconfig:"BOTHUB_MODEL" default:"openai/gpt-4o-mini"`
	} `envconfig:""`

	Report struct {
		ChatID int64  `envconfig:"REPORT_CHAT_ID"`
		Title  string `envconfig:"REPORT_TITLE" default:"📰 Дневная сводка"`
	} `envconfig:""`

	// Sources задаётся строкой вида "@news:channel,@workchat:chat".
	Sources string `envconfig:"SOURCES"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Limits struct {
		DigestTopics  int `envconfig:"DIGEST_MAX_TOPICS" default:"7"`
		DigestSamples int `envconfig:"DIGEST_MAX_SAMPLES" default:"200"`
	} `envconfig:""`

	sourceRefs []domain.SourceRef
}

// Load загружает конфиг из окружения. Список источников разбирается один раз.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("чтение окружения: %w", err)
	}
	cfg.sourceRefs = parseSourceRefs(cfg.Sources)
	return cfg, nil
}

// Validate проверяет обязательные настройки до любого I/O.
func (c AppConfig) Validate() []string {
	var errs []string
	if c.Telegram.APIID == 0 {
		errs = append(errs, "TG_API_ID не установлен")
	}
	if c.Telegram.APIHash == "" {
		errs = append(errs, "TG_API_HASH не установлен")
	}
	if c.Telegram.BotToken == "" {
		errs = append(errs, "TG_BOT_TOKEN не установлен")
	}
	if c.BotHub.APIKey == "" {
		errs = append(errs, "BOTHUB_API_KEY не установлен")
	}
	if c.Report.ChatID == 0 {
		errs = append(errs, "REPORT_CHAT_ID не установлен")
	}
	if c.PGDSN == "" {
		errs = append(errs, "PG_DSN не установлен")
	}
	if len(c.SourceRefs()) == 0 {
		errs = append(errs, "не указаны источники для мониторинга (SOURCES)")
	}
	return errs
}

// SourceRefs возвращает список источников из строки SOURCES.
func (c AppConfig) SourceRefs() []domain.SourceRef {
	if c.sourceRefs != nil {
		return c.sourceRefs
	}
	return parseSourceRefs(c.Sources)
}

// parseSourceRefs разбирает строку вида "@news:channel,@workchat:chat".
// Элемент без типа считается каналом.
func parseSourceRefs(sources string) []domain.SourceRef {
	raw := strings.TrimSpace(sources)
	if raw == "" {
		return nil
	}
	var refs []domain.SourceRef
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		identifier := item
		kind := domain.KindChannel
		if idx := strings.LastIndex(item, ":"); idx > 0 {
			identifier = strings.TrimSpace(item[:idx])
			parsed := domain.SourceKind(strings.TrimSpace(item[idx+1:]))
			if parsed.Valid() {
				kind = parsed
			}
		}
		refs = append(refs, domain.SourceRef{Identifier: identifier, Kind: kind})
	}
	return refs
}
