// Package health serves a small HTTP endpoint for hosting platforms that
// expect an open port, plus the process counters as JSON.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"linkrelay/internal/logging"
	"linkrelay/internal/stats"
)

// UserCounter reports the size of the user directory.
type UserCounter interface {
	CountUsers(ctx context.Context) (int, error)
}

// Server is the health HTTP server.
type Server struct {
	srv *http.Server
	log logging.Logger
}

type statsResponse struct {
	stats.Snapshot
	Users int `json:"users"`
}

// Router builds the routes. It is exported for tests and for embedding.
func Router(counters *stats.Counters, users UserCounter, log logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("linkrelay is running"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		n, err := users.CountUsers(r.Context())
		if err != nil {
			log.Warn(r.Context(), "counting users", "error", err)
			http.Error(w, "user directory unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statsResponse{Snapshot: counters.Snapshot(), Users: n})
	})

	return r
}

func New(addr string, counters *stats.Counters, users UserCounter, log logging.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           Router(counters, users, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "health endpoint listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
