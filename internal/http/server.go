package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"spendwise/internal/auth"
	"spendwise/internal/cache"
	applog "spendwise/internal/log"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
	"spendwise/internal/services"
)

// Pinger checks the backing store for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API routes to. Every service is required;
// Cache may be nil.
type Deps struct {
	Expenses    *services.ExpenseService
	Analytics   *services.AnalyticsService
	Predictions *services.PredictionService
	Receipts    *services.ReceiptService
	Settings    *services.SettingsService

	Verifier auth.Verifier
	Store    Pinger

	RateLimitPerMinute int
	CORSOrigins        []string
	Cache              *cache.Manager
}

// Server is the JSON API server.
type Server struct {
	http.Server

	deps    Deps
	logger  *applog.Logger
	started time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		deps:     deps,
		logger:   applog.Default().WithComponent(applog.ComponentHTTP),
		started:  time.Now(),
		detector: security.NewDetector(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.RateLimitPerMinute,
		}),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware(s.deps.Verifier, s.logger.Logger))
	api.Use(applog.OwnerMiddleware(auth.OwnerFrom))
	api.Use(s.limiter.Middleware(s.rateLimitKey, onRateLimited))

	api.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	api.HandleFunc("/expenses/categorize", s.handleCategorize).Methods(http.MethodPost)
	api.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete)
	api.HandleFunc("/analytics", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/predictions", s.handlePredictions).Methods(http.MethodPost)
	api.HandleFunc("/receipts/scan", s.handleScanReceipt).Methods(http.MethodPost)
	api.HandleFunc("/receipts", s.handleConfirmReceipt).Methods(http.MethodPost)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPut)

	// Innermost first. The chain wraps the router so unmatched routes and
	// CORS preflights are traced and get the same headers.
	var h http.Handler = r
	h = security.CORS(s.deps.CORSOrigins)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(h)
	h = applog.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	return h
}

// rateLimitKey prefers the authenticated owner so callers sharing a NAT do
// not share a budget.
func (s *Server) rateLimitKey(r *http.Request) string {
	if owner := auth.OwnerFrom(r.Context()); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldPath, r.URL.Path,
		applog.FieldOwner, auth.OwnerFrom(r.Context()))
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded, retry later")
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.deps.Cache != nil {
			s.deps.Cache.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports 503 when the store does not answer a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			NewResponse().
				Status(http.StatusServiceUnavailable).
				JSON(map[string]string{"status": "not_ready", "store": err.Error()}).
				Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready", "store": "ok"}).Write(w)
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	suggestions := s.deps.Expenses.Suggestions().Stats()

	var b strings.Builder
	metric := func(name, kind, help string, value any) {
		writeMetric(&b, name, kind, help, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)
	metric("rate_limit_rejections_total", "counter", "Requests rejected by the rate limiter", limitMetrics.Rejected)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests blocked by method", securityMetrics.BlockedRequests)
	metric("suggestion_cache_hits_total", "counter", "Category suggestion cache hits", suggestions.Hits)
	metric("suggestion_cache_misses_total", "counter", "Category suggestion cache misses", suggestions.Misses)
	metric("suggestion_cache_entries", "gauge", "Category suggestion cache entries", suggestions.Size)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))

	NewResponse().
		Header("Content-Type", "text/plain; charset=utf-8").
		Body([]byte(b.String())).
		Write(w)
}
