package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/aegis/internal/agents"
)

// GET /api/workflows
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": s.container.Coordinator.Workflows(),
	})
}

// handleExecuteWorkflow runs a named workflow. The posted body is the
// workflow input; with an empty body the current market snapshot is used.
// POST /api/workflows/{name}
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.knownWorkflow(name) {
		s.writeError(w, http.StatusNotFound, "unknown workflow: "+name)
		return
	}

	in, ok, err := decodeInput(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !ok {
		in, err = s.snapshot(r.Context())
		if err != nil {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}

	res := s.container.Coordinator.ExecuteWorkflow(r.Context(), name, in)

	if s.container.AuditStore != nil {
		// The run is recorded even when the client has gone away.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.container.AuditStore.RecordWorkflow(ctx, res); err != nil {
			s.log.Warn().Err(err).Str("run_id", res.ID).Msg("Failed to record workflow run")
		}
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, res)
}

func (s *Server) knownWorkflow(name string) bool {
	for _, wf := range s.container.Coordinator.Workflows() {
		if wf == name {
			return true
		}
	}
	return false
}

func (s *Server) snapshot(ctx context.Context) (agents.Input, error) {
	if s.container.Feed == nil {
		return nil, errNoFeed
	}
	return s.container.Feed.Snapshot(ctx)
}
