package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CollectorErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collector_errors_total",
		Help: "Ошибки при сборе источников",
	})
	MessagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_fetched_total",
		Help: "Количество сообщений, полученных из Telegram",
	}, []string{"kind"})
	MessagesInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_inserted_total",
		Help: "Количество новых сообщений, записанных в БД",
	})
	ReportBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "report_build_seconds",
		Help:    "Время построения дневной сводки",
		Buckets: prometheus.DefBuckets,
	})
	ReportSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "report_send_errors_total",
		Help: "Ошибки отправки сводки",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30, 60, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		CollectorErrors,
		MessagesFetched,
		MessagesInserted,
		ReportBuildSeconds,
		ReportSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// ObserveNetworkRequest фиксирует длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	elapsed := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(elapsed)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration фиксирует длительность и токены генерации.
func ObserveLLMGeneration(model string, elapsed time.Duration, promptTokens, completionTokens, totalTokens int) {
	LLMGenerationDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
}
