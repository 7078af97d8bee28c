// Package server exposes the read-only operator endpoints.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"valorant-rolesync/internal/metrics"
	"valorant-rolesync/internal/middleware"
	"valorant-rolesync/internal/worker"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// SnapshotSource is satisfied by *worker.Loop.
type SnapshotSource interface {
	Snapshot() worker.Snapshot
}

type StatusServer struct {
	loops   []SnapshotSource
	metrics *metrics.Metrics
	started time.Time
	logger  zerolog.Logger
}

type statusResponse struct {
	StartedAt time.Time         `json:"started_at"`
	Uptime    string            `json:"uptime"`
	Workers   []worker.Snapshot `json:"workers"`
}

func NewStatusServer(loops []SnapshotSource, m *metrics.Metrics, logger zerolog.Logger) *StatusServer {
	return &StatusServer{
		loops:   loops,
		metrics: m,
		started: time.Now(),
		logger:  logger,
	}
}

func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /metrics", s.metrics.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	return middleware.RequestID(s.logger)(c.Handler(mux))
}

func (s *StatusServer) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		StartedAt: s.started.UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Workers:   make([]worker.Snapshot, 0, len(s.loops)),
	}
	for _, l := range s.loops {
		resp.Workers = append(resp.Workers, l.Snapshot())
	}
	writeJSON(w, http.StatusOK, resp)
}

// healthz reports unhealthy until every worker has authenticated.
func (s *StatusServer) healthz(w http.ResponseWriter, r *http.Request) {
	for _, l := range s.loops {
		if !l.Snapshot().Authenticated {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unauthenticated"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
