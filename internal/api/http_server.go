package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"nobat/internal/config"
	"nobat/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// UpdateHandler consumes one decoded Telegram update. *bot.Bot implements it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// Response bodies. Telegram only looks at the status code.
const (
	bodyOK         = "ok"
	bodyForbidden  = "forbidden"
	bodyNoUpdateID = "no update id"
	bodyBadRequest = "bad update"
)

// HTTPServer receives webhook calls and exposes health and metrics endpoints.
type HTTPServer struct {
	cfg     *config.Config
	handler UpdateHandler
	auth    *WebhookAuth
	logger  *zerolog.Logger
	server  *http.Server
}

func NewHTTPServer(cfg *config.Config, handler UpdateHandler, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		handler: handler,
		auth:    NewWebhookAuth(cfg.Telegram.WebhookSecret),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.HTTP.Path, srv.instrument(cfg.HTTP.Path, http.HandlerFunc(srv.handleWebhook)))
	mux.Handle("/healthz", srv.instrument("/healthz", http.HandlerFunc(handleHealth)))
	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle(cfg.Monitoring.MetricsPath, promhttp.Handler())
	}

	srv.server = &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		// one update may wait on several remote calls
		WriteTimeout: 6*cfg.Bot.RemoteTimeout + 5*time.Second,
	}

	return srv
}

// Handler returns the routed handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Str("path", s.cfg.HTTP.Path).Msg("HTTP webhook listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Method == http.MethodPost {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.HTTP.MaxBodyBytes))
		if err != nil {
			s.logger.Warn().Err(err).Msg("webhook body rejected")
			body = nil
		}
	}

	// side effects must not stop when Telegram hangs up
	status, text := s.Process(context.WithoutCancel(r.Context()), r.Method, r.Header.Get(SecretHeader), body)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

// Process is the transport-independent webhook contract shared by the HTTP server and Lambda.
// Anything other than a bad secret is acknowledged with 200 so Telegram does not redeliver.
func (s *HTTPServer) Process(ctx context.Context, method, secret string, body []byte) (int, string) {
	if method != http.MethodPost {
		return http.StatusOK, bodyOK
	}
	if !s.auth.Check(secret) {
		s.logger.Warn().Msg("webhook secret mismatch")
		return http.StatusForbidden, bodyForbidden
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		s.logger.Warn().Err(err).Int("bytes", len(body)).Msg("cannot decode update")
		return http.StatusOK, bodyBadRequest
	}
	if update.UpdateID == 0 {
		return http.StatusOK, bodyNoUpdateID
	}

	s.handler.HandleUpdate(ctx, update)
	return http.StatusOK, bodyOK
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, bodyOK)
}

// instrument logs the request and counts it under endpoint.
func (s *HTTPServer) instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(endpoint, recorder.status)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
