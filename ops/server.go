// Package ops exposes a small read-only HTTP surface for operators: health,
// Prometheus metrics and the worker liveness table.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/registry"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

// Server serves the ops endpoints on the configured address.
type Server struct {
	httpServer *http.Server
	store      store.TableStore
	registry   *registry.Registry
	cfg        *config.Config
	logger     observability.Logger
}

// NewServer builds the ops server. It does not listen until Start.
func NewServer(st store.TableStore, reg *registry.Registry, cfg *config.Config, obs *observability.Provider) *Server {
	logger, _ := obs.MustComponents("ops")

	s := &Server{
		store:    st,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /workers", s.handleWorkers)
	if reg := obs.Registry(); reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start listens in the calling goroutine until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", "addr", s.cfg.OpsAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports whether the backing store answers a cheap read.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, err := s.store.ListRows(ctx, s.cfg.Tables.Workers, store.Filter{}); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWorkers lists registered workers with stale heartbeats reported as
// unknown.
func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list workers", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type workerView struct {
		Hostname string `json:"hostname"`
		LastSeen string `json:"last_seen"`
		Status   string `json:"status"`
	}

	views := make([]workerView, len(workers))
	for i, worker := range workers {
		views[i] = workerView{
			Hostname: worker.Hostname,
			LastSeen: worker.LastSeen,
			Status:   worker.Status,
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
