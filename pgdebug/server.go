// Package pgdebug exposes a Pool's runtime state over HTTP: Prometheus
// metrics plus a small JSON status endpoint, trimmed from the teacher's
// multi-tenant admin API down to the single-pool surface pglue needs
// (SPEC_FULL.md's [DOMAIN STACK] HTTP debug surface).
package pgdebug

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkantaria/pglue"
	"github.com/jkantaria/pglue/pgmetrics"
)

// Server is a small HTTP server exposing one Pool's status and metrics.
type Server struct {
	pool       *pglue.Pool
	metrics    *pgmetrics.Collector
	httpServer *http.Server
	startTime  time.Time
}

// NewServer builds a debug Server for pool. metrics may be nil, in
// which case /metrics responds 404.
func NewServer(pool *pglue.Pool, metrics *pgmetrics.Collector) *Server {
	return &Server{pool: pool, metrics: metrics, startTime: time.Now()}
}

// Start begins serving on addr (e.g. "127.0.0.1:8080") in a background
// goroutine, returning once the listener is set up.
func (s *Server) Start(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("pgdebug: listen on %s: %w", addr, err)
	}

	slog.Info("pgdebug: listening", "addr", addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("pgdebug: server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, err := s.pool.QuerySQL("SELECT 1").Execute(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
