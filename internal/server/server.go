// Package server wires together HTTP routes, dependency injection, and the
// payment and delivery workflow.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexusai/auditoria/internal/config"
	"github.com/nexusai/auditoria/internal/flow"
	"github.com/nexusai/auditoria/internal/logger"
	"github.com/nexusai/auditoria/internal/metrics"
	"github.com/nexusai/auditoria/internal/model"
	"github.com/nexusai/auditoria/internal/queue"
	"github.com/nexusai/auditoria/internal/storage"
)

// PaymentProvider is the part of the Flow client the handlers use.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, req flow.CreateRequest) (*flow.CreateResponse, error)
	StatusRaw(ctx context.Context, token string) (*flow.RawResponse, error)
	GetStatus(ctx context.Context, token string) (*flow.StatusResponse, error)
}

// Analyzer audits a document and returns the structured report.
type Analyzer interface {
	Analyze(ctx context.Context, base64Data, mimeType string, premium bool) (*model.Report, error)
}

// SessionRecorder persists the lifecycle of a checkout.
type SessionRecorder interface {
	Create(ctx context.Context, s *model.PaymentSession) error
	MarkDelivered(ctx context.Context, orderID string) error
}

// ReportArchiver keeps a copy of delivered reports.
type ReportArchiver interface {
	UploadReport(ctx context.Context, orderID string, data []byte) (string, error)
	PresignReportURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Deps are the collaborators of a Server. Cache, Flow and Analyzer are
// required; the rest may be left nil.
type Deps struct {
	Cache    storage.DocumentCache
	Flow     PaymentProvider
	Analyzer Analyzer
	Sessions SessionRecorder
	Queue    queue.Enqueuer
	Archive  ReportArchiver
	Metrics  *metrics.Metrics
}

// Server hosts the HTTP handlers of the auditing service.
type Server struct {
	cfg      *config.Config
	cache    storage.DocumentCache
	flow     PaymentProvider
	analyzer Analyzer
	sessions SessionRecorder
	queue    queue.Enqueuer
	archive  ReportArchiver
	metrics  *metrics.Metrics
	limiter  *clientLimiter
}

// New creates a configured server.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Cache == nil || deps.Flow == nil || deps.Analyzer == nil {
		return nil, errors.New("server: cache, flow and analyzer are required")
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:      cfg,
		cache:    deps.Cache,
		flow:     deps.Flow,
		analyzer: deps.Analyzer,
		sessions: deps.Sessions,
		queue:    deps.Queue,
		archive:  deps.Archive,
		metrics:  m,
		limiter:  newClientLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}, nil
}

// Serve launches the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	slog.Info("auditoria listening", "address", s.cfg.Address)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.Handle("POST /api/flow/create-payment", s.rateLimit(http.HandlerFunc(s.handleCreatePayment)))
	mux.HandleFunc("GET /api/flow/return", s.handleReturn)
	mux.HandleFunc("POST /api/flow/return", s.handleReturn)
	mux.HandleFunc("POST /api/flow/webhook", s.handleWebhook)
	mux.HandleFunc("GET /api/flow/status", s.handleStatus)
	mux.Handle("POST /api/flow/verify-result", s.rateLimit(http.HandlerFunc(s.handleVerifyResult)))
	mux.Handle("POST /api/audit/preview", s.rateLimit(http.HandlerFunc(s.handlePreview)))

	return requestIDMiddleware(recoveryMiddleware(s.loggingMiddleware(corsMiddleware(mux))))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// newOrderID returns a fresh commerce order id.
func newOrderID() string {
	return "audit_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error(ctx, "encode response", "error", err)
	}
}

// relay writes a provider body untouched.
func relay(ctx context.Context, w http.ResponseWriter, status int, body []byte) {
	if json.Valid(body) {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logger.Error(ctx, "write relayed response", "error", err)
	}
}
