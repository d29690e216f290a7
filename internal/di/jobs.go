package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/config"
	"github.com/aristath/aegis/internal/coordinator"
	"github.com/aristath/aegis/internal/scheduler"
)

const (
	walCheckpointSchedule = "0 0 * * * *" // hourly
	auditPruneSchedule    = "0 30 3 * * *"
)

// RegisterJobs creates the scheduler and its jobs. The scheduler is not
// started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Coordinator == nil {
		return nil, fmt.Errorf("container must be initialized before registering jobs")
	}

	sched := scheduler.New(log)
	instances := &JobInstances{}

	// RecordWorkflow is skipped for a nil interface, not a nil *audit.Store.
	var recorder scheduler.RunRecorder
	if container.AuditStore != nil {
		recorder = container.AuditStore
	}

	instances.RegimeDetection = scheduler.NewWorkflowJob(coordinator.WorkflowRegimeDetection, container.Feed, container.Coordinator, recorder, log)
	if err := sched.AddJob(cfg.RegimeSchedule, instances.RegimeDetection); err != nil {
		return nil, fmt.Errorf("failed to register regime detection job: %w", err)
	}

	instances.Rebalance = scheduler.NewWorkflowJob(coordinator.WorkflowRebalanceCycle, container.Feed, container.Coordinator, recorder, log)
	if err := sched.AddJob(cfg.RebalanceSchedule, instances.Rebalance); err != nil {
		return nil, fmt.Errorf("failed to register rebalance job: %w", err)
	}

	if container.AuditDB != nil {
		instances.WALCheckpoint = scheduler.NewWALCheckpointJob(container.AuditDB, log)
		if err := sched.AddJob(walCheckpointSchedule, instances.WALCheckpoint); err != nil {
			return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
		}

		instances.AuditPrune = scheduler.NewAuditPruneJob(container.AuditStore, cfg.AuditRetentionDays, log)
		if err := sched.AddJob(auditPruneSchedule, instances.AuditPrune); err != nil {
			return nil, fmt.Errorf("failed to register audit prune job: %w", err)
		}
	}

	if container.Backups != nil {
		instances.Backup = scheduler.NewBackupJob(container.Backups, cfg.Backup.RetentionDays, log)
		if err := sched.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	container.Scheduler = sched
	return instances, nil
}
