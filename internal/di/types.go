// Package di wires the audit database, the agents, the coordinator and the
// scheduled jobs into one container.
package di

import (
	"github.com/aristath/aegis/internal/agents/analyst"
	"github.com/aristath/aegis/internal/agents/oracle"
	"github.com/aristath/aegis/internal/agents/sentinel"
	"github.com/aristath/aegis/internal/agents/strategist"
	"github.com/aristath/aegis/internal/audit"
	"github.com/aristath/aegis/internal/backup"
	"github.com/aristath/aegis/internal/coordinator"
	"github.com/aristath/aegis/internal/database"
	"github.com/aristath/aegis/internal/feed"
	"github.com/aristath/aegis/internal/scheduler"
)

// Container holds all dependencies for the application.
//
// AuditDB and AuditStore are nil when the audit trail is disabled.
type Container struct {
	// Databases
	AuditDB *database.DB // decisions, messages and workflow runs

	// Agents
	Oracle     *oracle.Oracle
	Analyst    *analyst.Analyst
	Strategist *strategist.Strategist
	Sentinel   *sentinel.Sentinel

	// Orchestration
	Coordinator *coordinator.Coordinator
	AuditStore  *audit.Store
	Feed        feed.SnapshotProvider
	Scheduler   *scheduler.Scheduler

	// Backups is nil unless a backup bucket is configured.
	Backups *backup.Service
}

// JobInstances holds the scheduled jobs for manual triggering.
type JobInstances struct {
	RegimeDetection *scheduler.WorkflowJob
	Rebalance       *scheduler.WorkflowJob
	WALCheckpoint   *scheduler.WALCheckpointJob
	AuditPrune      *scheduler.AuditPruneJob
	Backup          *scheduler.BackupJob
}

// Close releases the container's resources. The scheduler must already be
// stopped.
func (c *Container) Close() error {
	if c.AuditDB != nil {
		return c.AuditDB.Close()
	}
	return nil
}
