// Package httpapi is the process-internal control surface. Authorization is
// the boundary's job; nothing here authenticates callers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/scheduler"
)

type Server struct {
	Logger *zap.Logger
	Sched  *scheduler.Scheduler
}

func NewServer(l *zap.Logger, s *scheduler.Scheduler) *Server {
	return &Server{Logger: l, Sched: s}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/tasks/{name}/trigger", s.handleTrigger)

	return r
}

// handleHealth is liveness plus the store breaker state; it touches no state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.Sched.Degraded() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

type statusResponse struct {
	Tasks         []taskStatus `json:"tasks"`
	UptimeSeconds int64        `json:"uptimeSeconds"`
}

type taskStatus struct {
	Name              string `json:"name"`
	LastRunAt         string `json:"lastRunAt,omitempty"`
	LastRunStatus     string `json:"lastRunStatus,omitempty"`
	LastRunDurationMS int64  `json:"lastRunDurationMs"`
	Enabled           bool   `json:"enabled"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	infos, err := s.Sched.Status(r.Context())
	if err != nil {
		s.Logger.Warn("status_read_failed", zap.Error(err))
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Tasks:         make([]taskStatus, 0, len(infos)),
		UptimeSeconds: int64(s.Sched.Uptime().Seconds()),
	}
	for _, info := range infos {
		ts := taskStatus{
			Name:              info.Name,
			LastRunStatus:     string(info.LastRunStatus),
			LastRunDurationMS: info.LastRunDurationMS,
			Enabled:           info.Enabled,
		}
		if info.LastRunAt != nil {
			ts.LastRunAt = info.LastRunAt.UTC().Format(time.RFC3339)
		}
		resp.Tasks = append(resp.Tasks, ts)
	}
	writeJSON(w, http.StatusOK, resp)
}

type triggerResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// handleTrigger returns immediately; it never blocks on task completion.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	switch res := s.Sched.Trigger(name); res {
	case scheduler.TriggerAccepted:
		s.Logger.Info("task_triggered", zap.String("task", name))
		writeJSON(w, http.StatusAccepted, triggerResponse{Accepted: true})
	case scheduler.TriggerBusy:
		writeJSON(w, http.StatusConflict, triggerResponse{Accepted: false, Reason: "busy"})
	default:
		writeJSON(w, http.StatusNotFound, triggerResponse{Accepted: false, Reason: "unknown_task"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
