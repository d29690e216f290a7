package server

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/aegis/internal/scheduler"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	Service       string  `json:"service"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Agents        int     `json:"agents"`
	AgentErrors   int     `json:"agent_errors"`
	StreamClients int     `json:"stream_clients"`
	AuditDB       string  `json:"audit_db"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	Goroutines    int     `json:"goroutines"`
}

// handleHealth reports process and audit database health. A failing audit
// database degrades the status to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Service:       "aegis",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		StreamClients: s.stream.Clients(),
		AuditDB:       "disabled",
		Goroutines:    runtime.NumGoroutine(),
	}

	for _, st := range s.container.Coordinator.Statuses() {
		resp.Agents++
		resp.AgentErrors += st.ErrorCount
	}

	resp.CPUPercent, resp.MemPercent = s.systemStats()

	status := http.StatusOK
	if s.container.AuditDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.container.AuditDB.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Audit database health check failed")
			resp.Status = "degraded"
			resp.AuditDB = "error"
			status = http.StatusServiceUnavailable
		} else {
			resp.AuditDB = "ok"
		}
	}

	s.writeJSON(w, status, resp)
}

// systemStats samples CPU over a short window and reads memory usage.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		s.log.Debug().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Debug().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}
	return cpuPercent[0], memStat.UsedPercent
}

func (s *Server) jobIndex() map[string]scheduler.Job {
	out := map[string]scheduler.Job{}
	if s.jobs == nil {
		return out
	}
	for _, j := range []scheduler.Job{s.jobs.RegimeDetection, s.jobs.Rebalance, s.jobs.WALCheckpoint, s.jobs.AuditPrune, s.jobs.Backup} {
		if j == nil || isNilJob(j) {
			continue
		}
		out[j.Name()] = j
	}
	return out
}

// isNilJob catches typed nil pointers stored in the interface.
func isNilJob(j scheduler.Job) bool {
	switch v := j.(type) {
	case *scheduler.WorkflowJob:
		return v == nil
	case *scheduler.WALCheckpointJob:
		return v == nil
	case *scheduler.AuditPruneJob:
		return v == nil
	case *scheduler.BackupJob:
		return v == nil
	}
	return false
}

// GET /api/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, 4)
	for name := range s.jobIndex() {
		names = append(names, name)
	}
	sort.Strings(names)

	var scheduled []string
	if s.container.Scheduler != nil {
		scheduled = s.container.Scheduler.Jobs()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":      names,
		"scheduled": scheduled,
	})
}

// handleTriggerJob runs a job immediately and waits for it
// POST /api/jobs/{name}
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := s.jobIndex()[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found: "+name)
		return
	}

	s.log.Info().Str("job", name).Msg("Manual job trigger")

	var err error
	if s.container.Scheduler != nil {
		err = s.container.Scheduler.RunNow(job)
	} else {
		err = job.Run()
	}
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"job":     name,
			"message": err.Error(),
		})
		return
	}

	resp := map[string]interface{}{"status": "success", "job": name}
	if wf, ok := job.(*scheduler.WorkflowJob); ok {
		resp["result"] = wf.LastResult()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
