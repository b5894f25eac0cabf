package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	tallylog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/trace"
	"tally/internal/services"
)

type Server struct {
	http.Server
	svc       *services.LedgerService
	processor *services.AuditProcessor
	tracer    *trace.Middleware
	limiter   *ratelimit.Limiter
	logger    *tallylog.Logger
	now       func() time.Time
	startedAt time.Time

	shutdownOnce sync.Once
}

type Option func(*Server)

// WithAuditProcessor exposes the scheduled audit's last report on /audit?cached=true.
func WithAuditProcessor(p *services.AuditProcessor) Option {
	return func(s *Server) { s.processor = p }
}

func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

func WithLogger(l *tallylog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock sets the clock used for default reference dates.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures the JSON API routes, returning a ready-to-run server.
func NewServer(addr string, svc *services.LedgerService, opts ...Option) *Server {
	s := &Server{
		svc:       svc,
		logger:    tallylog.New(tallylog.DefaultConfig()),
		now:       time.Now,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	s.tracer = trace.NewMiddleware(s.logger.WithComponent(tallylog.ComponentHTTP), trace.ClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("PUT /accounts", s.handleImportAccounts)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /balance-logs", s.handleBalanceLogs)

	mux.HandleFunc("GET /audit", s.handleAudit)
	mux.HandleFunc("POST /repair", s.handleRepair)

	mux.HandleFunc("GET /cycle", s.handleCycle)
	mux.HandleFunc("GET /cycle/setting", s.handleGetCycleSetting)
	mux.HandleFunc("PUT /cycle/setting", s.handlePutCycleSetting)
	mux.HandleFunc("POST /budgets/progress", s.handleBudgetProgress)

	limited := s.limiter.Middleware(trace.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", Type: "rate_limited"})
	})(mux)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(limited),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
