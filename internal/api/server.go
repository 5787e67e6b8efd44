// Package api serves the optional admin and webhook HTTP endpoints of GPTPipe.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/GPTPipe/internal/store"
)

// Default server settings.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	TwilioWebhookPath      = "/twilio/webhook"
)

// Opts configures a Server.
type Opts struct {
	Addr            string
	AdminToken      string
	TwilioWebhook   http.Handler
	ShutdownTimeout time.Duration
}

// Option modifies Opts.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithAdminToken requires "Authorization: Bearer <token>" on /api routes.
func WithAdminToken(token string) Option {
	return func(o *Opts) {
		o.AdminToken = token
	}
}

// WithTwilioWebhook mounts the inbound Twilio handler at TwilioWebhookPath.
func WithTwilioWebhook(h http.Handler) Option {
	return func(o *Opts) {
		o.TwilioWebhook = h
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ShutdownTimeout = d
	}
}

// Server is the admin HTTP server.
type Server struct {
	st     store.Store
	opts   Opts
	router chi.Router
}

// NewServer builds the routes over st.
func NewServer(st store.Store, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{st: st, opts: o}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(s.opts.AdminToken))
		r.Get("/users/{id}/stats", s.userStatsHandler)
	})
	if s.opts.TwilioWebhook != nil {
		r.Method(http.MethodPost, TwilioWebhookPath, s.opts.TwilioWebhook)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusNotFound, errorResponse("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusMethodNotAllowed, errorResponse("Method not allowed"))
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr, "admin_token_set", s.opts.AdminToken != "", "twilio_webhook", s.opts.TwilioWebhook != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
