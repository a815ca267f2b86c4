package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/hive/internal/accessor"
	"github.com/mtzanidakis/hive/internal/navigator"
	"github.com/mtzanidakis/hive/internal/store"
	"github.com/mtzanidakis/hive/internal/swarm"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Swarms
	mux.HandleFunc("GET /api/swarms", s.listSwarms)
	mux.HandleFunc("GET /api/swarms/{id}", s.getSwarm)
	mux.HandleFunc("GET /api/swarms/{id}/changes", s.getSwarmChanges)
	mux.HandleFunc("POST /api/swarms/{id}/events", s.postSwarmEvent)
	mux.HandleFunc("DELETE /api/swarms/{id}", s.stopSwarm)
	mux.HandleFunc("POST /api/swarms/{id}/pause", s.pauseSwarm)
	mux.HandleFunc("POST /api/swarms/{id}/resume", s.resumeSwarm)
	mux.HandleFunc("POST /api/swarms/{id}/read", s.readSwarmState)

	// Navigators
	mux.HandleFunc("GET /api/navigators", s.listNavigators)
	mux.HandleFunc("POST /api/routines/inspect", s.inspectRoutine)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) listSwarms(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.swarms.List())
}

func (s *Server) getSwarm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, ok := s.swarms.Get(id)
	if !ok {
		jsonError(w, "swarm not found", http.StatusNotFound)
		return
	}
	resp := map[string]any{"machine": m.Snapshot()}
	if s.contexts != nil {
		state, err := s.contexts.GetContext(r.Context(), id)
		switch {
		case err == nil:
			resp["context"] = state
		case errors.Is(err, store.ErrContextNotFound):
		default:
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	jsonResponse(w, resp)
}

func (s *Server) getSwarmChanges(w http.ResponseWriter, r *http.Request) {
	if s.contexts == nil {
		jsonError(w, "no context store", http.StatusNotImplemented)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	changes, err := s.contexts.Changes(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if changes == nil {
		changes = []store.ChangeRecord{}
	}
	jsonResponse(w, changes)
}

func (s *Server) postSwarmEvent(w http.ResponseWriter, r *http.Request) {
	var ev swarm.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ev.SwarmID = r.PathValue("id")
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := ev.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.swarms.Dispatch(r.Context(), ev); err != nil {
		code := http.StatusConflict
		if errors.Is(err, swarm.ErrSwarmNotFound) {
			code = http.StatusNotFound
		}
		jsonError(w, err.Error(), code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	jsonResponse(w, map[string]string{"id": ev.ID})
}

func (s *Server) stopSwarm(w http.ResponseWriter, r *http.Request) {
	mode := swarm.StopGraceful
	if r.URL.Query().Get("mode") == string(swarm.StopForce) {
		mode = swarm.StopForce
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "stopped via api"
	}
	stats, err := s.swarms.Stop(r.Context(), r.PathValue("id"), mode, reason)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, swarm.ErrSwarmNotFound) {
			code = http.StatusNotFound
		}
		jsonError(w, err.Error(), code)
		return
	}
	jsonResponse(w, stats)
}

func (s *Server) pauseSwarm(w http.ResponseWriter, r *http.Request) {
	s.toggleSwarm(w, r, (*swarm.Machine).Pause)
}

func (s *Server) resumeSwarm(w http.ResponseWriter, r *http.Request) {
	s.toggleSwarm(w, r, (*swarm.Machine).Resume)
}

func (s *Server) toggleSwarm(w http.ResponseWriter, r *http.Request, fn func(*swarm.Machine, context.Context) error) {
	m, ok := s.swarms.Get(r.PathValue("id"))
	if !ok {
		jsonError(w, "swarm not found", http.StatusNotFound)
		return
	}
	if err := fn(m, r.Context()); err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	jsonResponse(w, m.Snapshot())
}

type readRequest struct {
	AgentID string `json:"agentId"`
	Path    string `json:"path"`
}

// readSwarmState reads one path of the shared state on behalf of an agent,
// subject to the swarm's permission and sensitivity rules.
func (s *Server) readSwarmState(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" || req.Path == "" {
		jsonError(w, "agentId and path are required", http.StatusBadRequest)
		return
	}
	m, ok := s.swarms.Get(r.PathValue("id"))
	if !ok {
		jsonError(w, "swarm not found", http.StatusNotFound)
		return
	}
	value, err := m.ReadForAgent(r.Context(), req.AgentID, req.Path, accessor.Options{})
	if err != nil {
		if code := accessor.UnauthorizedCode(err); code != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "code": code})
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{"path": req.Path, "value": value})
}

func (s *Server) listNavigators(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{"types": s.navigators.RegisteredTypes()})
}

// inspectRoutine validates a routine and reports its navigator and entry points.
func (s *Server) inspectRoutine(w http.ResponseWriter, r *http.Request) {
	var routine map[string]any
	if err := json.NewDecoder(r.Body).Decode(&routine); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	nav, starts, err := s.navigators.Prepare(r.Context(), routine)
	if err != nil {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, navigator.ErrNoNavigator) {
			code = http.StatusBadRequest
		}
		jsonError(w, err.Error(), code)
		return
	}
	routineID, err := nav.GenerateRoutineID(routine)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	jsonResponse(w, map[string]any{
		"type":      nav.Type(),
		"routineId": routineID,
		"starts":    starts,
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"version": s.version,
		"uptime":  formatUptime(time.Since(s.startedAt)),
		"swarms":  len(s.swarms.List()),
		"clients": s.hub.Len(),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
