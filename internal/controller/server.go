// Package controller wires the orchestrator's HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"simplane/internal/broadcast"
	"simplane/internal/config"
	"simplane/internal/controller/handlers"
	"simplane/internal/controller/middleware"
)

// Deps are the collaborators the HTTP API is built on.
type Deps struct {
	Service  handlers.Service
	Pinger   handlers.Pinger
	Resolver middleware.SubjectResolver
	Live     *broadcast.Registry
	Logger   *slog.Logger
}

// Server is the HTTP server for the orchestrator API.
type Server struct {
	httpServer *http.Server
	live       *broadcast.Registry
}

// New creates a new orchestrator server.
func New(addr string, deps Deps, cfg *config.Config, metricsHandler http.Handler) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := handlers.New(deps.Service, deps.Pinger, deps.Live, handlers.Options{
		Logger: deps.Logger,
		Live: broadcast.ServeOptions{
			IdleTimeout:  cfg.WSIdleTimeout,
			WriteTimeout: cfg.WSWriteTimeout,
		},
	})

	mux := http.NewServeMux()
	Routes(mux, h, deps.Resolver, cfg)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		live: deps.Live,
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     middleware.RequestLogger(deps.Logger)(mux),
			ReadTimeout: 10 * time.Second,
			// Websocket connections are hijacked and manage their own deadlines.
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Routes registers every API route on mux.
func Routes(mux *http.ServeMux, h *handlers.Handlers, resolver middleware.SubjectResolver, cfg *config.Config) {
	authMW := middleware.Authenticate(resolver)
	user := func(fn http.HandlerFunc) http.Handler { return authMW(fn) }

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)

	// Public authenticated apis
	mux.Handle("POST /simulations", user(h.CreateSession))
	mux.Handle("GET /simulations", user(h.ListSessions))
	mux.Handle("GET /simulations/{id}", user(h.GetSession))
	mux.Handle("PUT /simulations/{id}", user(h.UpdateSession))
	mux.Handle("DELETE /simulations/{id}", user(h.DeleteSession))
	mux.Handle("POST /simulations/{id}/start", user(h.StartSession))
	mux.Handle("POST /simulations/{id}/pause", user(h.PauseSession))
	mux.Handle("POST /simulations/{id}/resume", user(h.ResumeSession))
	mux.Handle("POST /simulations/{id}/stop", user(h.StopSession))
	mux.Handle("GET /simulations/{id}/events", user(h.ListEvents))
	mux.Handle("GET /simulations/{id}/metrics", user(h.ListMetrics))
	mux.Handle("POST /simulations/{id}/faults", user(h.ScheduleFault))
	mux.Handle("GET /simulations/{id}/faults", user(h.ListFaults))
	mux.Handle("DELETE /simulations/{id}/faults/{fault_id}", user(h.DeleteFault))
	mux.Handle("GET /simulations/{id}/ws", user(h.Live))

	// Internal endpoints
	// These are called by the simulation runtime with the shared secret.
	internalMW := middleware.RequireInternalAuth(cfg.InternalSecret)
	rateMW := middleware.NewRateLimiter(middleware.WithLimit(cfg.IngestRateLimit, cfg.IngestRateBurst)).Middleware()

	mux.Handle("POST /internal/simulations/{id}/events", internalMW(rateMW(http.HandlerFunc(h.InternalAppendEvent))))
	mux.Handle("POST /internal/simulations/{id}/metrics", internalMW(rateMW(http.HandlerFunc(h.InternalAppendMetric))))
	mux.Handle("POST /internal/simulations/{id}/fail", internalMW(http.HandlerFunc(h.InternalReportFailure)))
	mux.Handle("PUT /internal/faults/{id}/status", internalMW(http.HandlerFunc(h.InternalUpdateFaultStatus)))
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server and closes live subscriptions,
// which the HTTP server no longer tracks once upgraded.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.live != nil {
		s.live.CloseAll()
	}
	return err
}
