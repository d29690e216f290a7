package server

import (
	"errors"
	"net/http"

	"github.com/aristath/aegis/internal/audit"
	"github.com/aristath/aegis/internal/domain"
)

var (
	errNoFeed  = errors.New("no market snapshot configured")
	errNoAudit = errors.New("audit trail disabled")
)

func (s *Server) auditStore(w http.ResponseWriter) (*audit.Store, bool) {
	if s.container.AuditStore == nil {
		s.writeError(w, http.StatusServiceUnavailable, errNoAudit.Error())
		return nil, false
	}
	return s.container.AuditStore, true
}

// handleAuditDecisions queries persisted decisions, newest first
// GET /api/audit/decisions?agent=&type=&since=&limit=
func (s *Server) handleAuditDecisions(w http.ResponseWriter, r *http.Request) {
	store, ok := s.auditStore(w)
	if !ok {
		return
	}
	since, err := sinceParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid since: "+err.Error())
		return
	}

	q := r.URL.Query()
	records, err := store.Decisions(r.Context(), audit.DecisionQuery{
		Agent: q.Get("agent"),
		Type:  domain.DecisionType(q.Get("type")),
		Since: since,
		Limit: limitParam(r),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query decisions")
		s.writeError(w, http.StatusInternalServerError, "failed to query decisions")
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// GET /api/audit/messages?correlation_id=&limit=
func (s *Server) handleAuditMessages(w http.ResponseWriter, r *http.Request) {
	store, ok := s.auditStore(w)
	if !ok {
		return
	}
	records, err := store.Messages(r.Context(), r.URL.Query().Get("correlation_id"), limitParam(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query messages")
		s.writeError(w, http.StatusInternalServerError, "failed to query messages")
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// GET /api/audit/workflows?limit=
func (s *Server) handleAuditWorkflows(w http.ResponseWriter, r *http.Request) {
	store, ok := s.auditStore(w)
	if !ok {
		return
	}
	records, err := store.WorkflowRuns(r.Context(), limitParam(r))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query workflow runs")
		s.writeError(w, http.StatusInternalServerError, "failed to query workflow runs")
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleAuditVerdicts counts decisions per type, e.g. sentinel approvals
// against vetoes
// GET /api/audit/verdicts?since=
func (s *Server) handleAuditVerdicts(w http.ResponseWriter, r *http.Request) {
	store, ok := s.auditStore(w)
	if !ok {
		return
	}
	since, err := sinceParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid since: "+err.Error())
		return
	}
	counts, err := store.VerdictCounts(r.Context(), since)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to count verdicts")
		s.writeError(w, http.StatusInternalServerError, "failed to count verdicts")
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

// GET /api/audit/stats
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if s.container.AuditDB == nil {
		s.writeError(w, http.StatusServiceUnavailable, errNoAudit.Error())
		return
	}
	stats, err := s.container.AuditDB.GetStats(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read database stats")
		s.writeError(w, http.StatusInternalServerError, "failed to read database stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleListBackups lists uploaded audit backups, newest first
// GET /api/audit/backups
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if s.container.Backups == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backups not configured")
		return
	}
	backups, err := s.container.Backups.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list backups")
		s.writeError(w, http.StatusBadGateway, "failed to list backups")
		return
	}
	s.writeJSON(w, http.StatusOK, backups)
}
