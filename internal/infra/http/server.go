package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tg-gazeta/internal/domain"
)

// Server оборачивает chi.Router с базовыми middlewares.
type Server struct {
	Router  chi.Router
	log     zerolog.Logger
	reports domain.ReportRepo
}

// NewServer создаёт HTTP сервер со служебными эндпоинтами.
func NewServer(logger zerolog.Logger, reports domain.ReportRepo) *Server {
	s := &Server{log: logger, reports: reports}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	r.Get("/healthz", s.handleHealth)
	r.Get("/reports/{date}", s.handleReportByDate)
	s.Router = r
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type reportResponse struct {
	Date    string     `json:"date"`
	Content string     `json:"content"`
	SentAt  *time.Time `json:"sent_at,omitempty"`
}

func (s *Server) handleReportByDate(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "date")
	date, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		http.Error(w, "некорректная дата, ожидается YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	report, err := s.reports.GetReportByDate(r.Context(), date)
	if errors.Is(err, domain.ErrReportNotFound) {
		http.Error(w, "сводка за дату не найдена", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("date", raw).Msg("не удалось получить сводку")
		http.Error(w, "внутренняя ошибка", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(reportResponse{
		Date:    report.Date.Format("2006-01-02"),
		Content: report.Content,
		SentAt:  report.SentAt,
	})
}

// Start запускает http.Server до отмены контекста.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", addr).Msg("HTTP сервер запущен")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
