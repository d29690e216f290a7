package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/aegis/internal/domain"
)

// handleAgentStatuses returns every agent's status keyed by name
// GET /api/agents
func (s *Server) handleAgentStatuses(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.container.Coordinator.Statuses())
}

// GET /api/agents/{name}
func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := s.container.Coordinator.Agent(chi.URLParam(r, "name"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	s.writeJSON(w, http.StatusOK, a.Status())
}

// handleAgentDecisions returns the agent's own recent decisions, oldest first
// GET /api/agents/{name}/decisions?limit=N
func (s *Server) handleAgentDecisions(w http.ResponseWriter, r *http.Request) {
	a, ok := s.container.Coordinator.Agent(chi.URLParam(r, "name"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":     a.Name(),
		"decisions": a.RecentDecisions(limitParam(r)),
	})
}

// GET /api/agents/{name}/messages
func (s *Server) handleAgentMessages(w http.ResponseWriter, r *http.Request) {
	a, ok := s.container.Coordinator.Agent(chi.URLParam(r, "name"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent":    a.Name(),
		"messages": a.QueuedMessages(),
	})
}

// handleExecuteAgent runs one agent on the posted input
// POST /api/agents/{name}/execute
func (s *Server) handleExecuteAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	in, ok, err := decodeInput(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	d, err := s.container.Coordinator.ExecuteAgent(name, in)
	if errors.Is(err, domain.ErrAgentNotFound) {
		s.writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	if d == nil {
		a, _ := s.container.Coordinator.Agent(name)
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "agent execution failed",
			"status": a.Status(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// POST /api/agents/reset
func (s *Server) handleResetAgents(w http.ResponseWriter, r *http.Request) {
	s.container.Coordinator.ResetAll()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// GET /api/decisions?limit=N
func (s *Server) handleDecisionLog(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)
	if agent := r.URL.Query().Get("agent"); agent != "" {
		s.writeJSON(w, http.StatusOK, s.container.Coordinator.DecisionLogFor(agent, limit))
		return
	}
	s.writeJSON(w, http.StatusOK, s.container.Coordinator.DecisionLog(limit))
}

// GET /api/messages?limit=N
func (s *Server) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.container.Coordinator.MessageHistory(limitParam(r)))
}
