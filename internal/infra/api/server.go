package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"subscription-ledger/internal/config"
	"subscription-ledger/internal/infra/api/apiv1"
)

const (
	requestTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// RouterOptions carries what the router needs beyond the v1 handlers.
// Limiter is optional; without it purchases are not rate limited.
type RouterOptions struct {
	Config  config.APIConfig
	Limiter Limiter
	// Ready reports whether the storage backend is reachable.
	Ready func(ctx context.Context) error
	// Admin, when set, mounts the operator routes.
	Admin interface{ RegisterRoutes(r chi.Router) }
}

// NewRouter builds the full HTTP surface around the v1 routes.
func NewRouter(v1 *apiv1.Server, opts RouterOptions, logger *zerolog.Logger) http.Handler {
	l := logger.With().Str("component", "API").Logger()

	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(&l), Recover(&l), Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(req.Context()); err != nil {
				l.Warn().Err(err).Msg("health check failed")
				writeError(w, http.StatusServiceUnavailable, "unavailable", "storage unreachable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	guards := apiv1.Guards{Auth: NewAuthenticator(opts.Config.JWTSecret).Middleware}
	if opts.Limiter != nil && opts.Config.PurchaseLimit > 0 {
		guards.Purchase = RateLimit(opts.Limiter, "purchase", opts.Config.PurchaseLimit, opts.Config.RateWindow, &l)
	}
	apiv1.RegisterAPIV1(r, v1, guards)
	if opts.Admin != nil {
		opts.Admin.RegisterRoutes(r)
	}
	return r
}

// Server is the process's HTTP listener.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewServer(port int, handler http.Handler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "API").Logger()
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: &l,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}
