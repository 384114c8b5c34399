package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/profile"
	"bilancio/internal/services"
)

// Ledger is the application surface the handlers depend on.
type Ledger interface {
	SavePeriod(ctx context.Context, user string, p profile.Profile, year, month int, rec core.PeriodRecord) (core.PeriodRecord, error)
	EditPeriod(ctx context.Context, user string, p profile.Profile, year, month int, edit func(core.PeriodRecord) (core.PeriodRecord, error)) (core.PeriodRecord, error)
	Period(ctx context.Context, user string, p profile.Profile, year, month int) (core.PeriodRecord, error)
	Balances(ctx context.Context, user string, p profile.Profile, year, month int) (services.PeriodBalances, error)
	Report(ctx context.Context, user string, p profile.Profile) (map[int]core.Report, error)
	Ping(ctx context.Context) error
}

var _ Ledger = (*services.LedgerService)(nil)

// Options tunes the server's middleware.
type Options struct {
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledger       Ledger
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	detector     *security.Detector
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger Ledger, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		ledger:   ledger,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/profiles", s.handleProfiles)
	api.HandleFunc("GET /api/users/{user}/profiles/{profile}/periods/{year}/{month}", s.handleGetPeriod)
	api.HandleFunc("PUT /api/users/{user}/profiles/{profile}/periods/{year}/{month}", s.handlePutPeriod)
	api.HandleFunc("GET /api/users/{user}/profiles/{profile}/periods/{year}/{month}/balances", s.handleBalances)
	api.HandleFunc("POST /api/users/{user}/profiles/{profile}/periods/{year}/{month}/items/{bucket}", s.handleAddItem)
	api.HandleFunc("PUT /api/users/{user}/profiles/{profile}/periods/{year}/{month}/items/{bucket}/{index}", s.handleUpdateItem)
	api.HandleFunc("DELETE /api/users/{user}/profiles/{profile}/periods/{year}/{month}/items/{bucket}/{index}", s.handleRemoveItem)
	api.HandleFunc("GET /api/users/{user}/profiles/{profile}/reports", s.handleReport)

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, retry later")
	})(api)
	mux.Handle("/api/", s.withSuspiciousLogging(limited))

	var handler http.Handler = mux
	handler = log.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics returns request and rate-limit counters.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics()
}

func (s *Server) withSuspiciousLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.detector.ExtractClientIP(r))
		}
		next.ServeHTTP(w, r)
	})
}
