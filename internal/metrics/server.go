package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Server exposes /metrics and /healthz.
type Server struct {
	addr   string
	logger zerolog.Logger
	mux    *chi.Mux
}

// NewServer builds the ops HTTP server.
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := chi.NewMux()
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		addr:   addr,
		logger: logger.With().Str("component", "metrics_server").Logger(),
		mux:    mux,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		ln, err := net.Listen("tcp", server.Addr)
		if err != nil {
			return err
		}
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("metrics server started")

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
