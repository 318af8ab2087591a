// Package api serves leadbot's administrative HTTP interface.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/health"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
)

// HealthEvaluator is implemented by *health.Checker.
type HealthEvaluator interface {
	Evaluate(ctx context.Context) health.Report
}

// Pinger reports storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires a Server.
type Options struct {
	Runner *agent.Runner
	Health HealthEvaluator
	Pinger Pinger
	// Trigger queues a cycle; when nil, POST /api/agent/run runs it inline.
	Trigger func() error
	// OnConfigChange is called after a successful config update.
	OnConfigChange func(model.AgentConfig)
	Metrics        http.Handler
	MetricsPath    string
	AuthToken      string
	Logger         *logger.Logger
}

// Server holds the handlers.
type Server struct {
	runner   *agent.Runner
	health   HealthEvaluator
	pinger   Pinger
	trigger  func() error
	onConfig func(model.AgentConfig)
	log      *logger.Logger
	router   chi.Router
}

// NewServer builds the router.
func NewServer(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	s := &Server{
		runner:   opts.Runner,
		health:   opts.Health,
		pinger:   opts.Pinger,
		trigger:  opts.Trigger,
		onConfig: opts.OnConfigChange,
		log:      opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if opts.Metrics != nil {
		r.Handle(opts.MetricsPath, opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(opts.AuthToken))

		r.Route("/agent", func(r chi.Router) {
			r.Get("/status", s.status)
			r.Post("/start", s.runState(s.runner.Start))
			r.Post("/stop", s.runState(s.runner.Stop))
			r.Post("/pause", s.runState(s.runner.Pause))
			r.Post("/resume", s.runState(s.runner.Resume))
			r.Post("/run", s.run)
			r.Post("/reset-counters", s.resetCounters)
			r.Get("/config", s.getConfig)
			r.Patch("/config", s.patchConfig)
			r.Get("/logs", s.logs)
			r.Get("/statistics", s.statistics)
			r.Get("/health", s.healthReport)
		})

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", s.listLeads)
			r.Post("/", s.addLead)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/pause", s.leadOp(s.runner.PauseLead))
				r.Post("/resume", s.leadOp(s.runner.ResumeLead))
				r.Post("/reset", s.leadOp(s.runner.ResetLead))
				r.Post("/reply", s.reply)
			})
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// NewHTTPServer wraps the handler with timeouts.
func (s *Server) NewHTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.DebugCtx(r.Context(), "HTTP request",
			logger.Field{Key: "method", Value: r.Method},
			logger.Field{Key: "path", Value: r.URL.Path},
			logger.Field{Key: "status", Value: ww.Status()},
			logger.Field{Key: "request_id", Value: chiMiddleware.GetReqID(r.Context())},
			logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})
	})
}

// bearerAuth requires "Authorization: Bearer <token>" when token is set.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="leadbot"`)
				Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			Error(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
