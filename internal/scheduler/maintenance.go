package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Checkpointer flushes a write-ahead log.
type Checkpointer interface {
	WALCheckpoint(ctx context.Context, mode string) error
}

// Pruner deletes audit rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// WALCheckpointJob truncates the audit database WAL.
type WALCheckpointJob struct {
	db  Checkpointer
	log zerolog.Logger
}

// NewWALCheckpointJob creates a new WALCheckpointJob
func NewWALCheckpointJob(db Checkpointer, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{db: db, log: log.With().Str("job", "wal_checkpoint").Logger()}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string {
	return "wal_checkpoint"
}

// Run executes the checkpoint
func (j *WALCheckpointJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.WALCheckpoint(ctx, "TRUNCATE"); err != nil {
		return err
	}
	j.log.Debug().Msg("WAL checkpoint completed")
	return nil
}

// AuditPruneJob enforces the audit retention window.
type AuditPruneJob struct {
	store     Pruner
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewAuditPruneJob creates a job keeping retentionDays of history.
func NewAuditPruneJob(store Pruner, retentionDays int, log zerolog.Logger) *AuditPruneJob {
	return &AuditPruneJob{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		log:       log.With().Str("job", "audit_prune").Logger(),
	}
}

// Name returns the job name
func (j *AuditPruneJob) Name() string {
	return "audit_prune"
}

// Run deletes rows past the retention window. A zero window keeps
// everything.
func (j *AuditPruneJob) Run() error {
	if j.retention <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := j.now().Add(-j.retention)
	n, err := j.store.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune audit trail: %w", err)
	}
	j.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Audit trail pruned")
	return nil
}

// Backuper uploads a database copy and rotates old ones.
type Backuper interface {
	CreateAndUpload(ctx context.Context) (string, error)
	Rotate(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob ships the audit database to object storage.
type BackupJob struct {
	backups       Backuper
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a backup job.
func NewBackupJob(backups Backuper, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "audit_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "audit_backup"
}

// Run uploads a fresh backup, then rotates. Rotation failures are logged
// only; the upload already succeeded.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	key, err := j.backups.CreateAndUpload(ctx)
	if err != nil {
		return fmt.Errorf("failed to back up audit database: %w", err)
	}

	deleted, err := j.backups.Rotate(ctx, j.retentionDays)
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
		return nil
	}
	j.log.Info().Str("key", key).Int("rotated", deleted).Msg("Audit backup completed")
	return nil
}
