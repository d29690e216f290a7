package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/agents/analyst"
	"github.com/aristath/aegis/internal/agents/oracle"
	"github.com/aristath/aegis/internal/agents/sentinel"
	"github.com/aristath/aegis/internal/agents/strategist"
	"github.com/aristath/aegis/internal/audit"
	"github.com/aristath/aegis/internal/backup"
	"github.com/aristath/aegis/internal/config"
	"github.com/aristath/aegis/internal/coordinator"
	"github.com/aristath/aegis/internal/feed"
)

// InitializeServices builds the agents and the coordinator, and subscribes
// the audit store when one is configured.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.Oracle = oracle.New(cfg.Oracle, log)
	container.Analyst = analyst.New(cfg.Analyst, log)
	container.Strategist = strategist.New(cfg.Strategist, log)
	container.Sentinel = sentinel.New(cfg.Sentinel, log)

	coord := coordinator.New(log)
	coord.Register(container.Oracle)
	coord.Register(container.Analyst)
	coord.Register(container.Strategist)
	coord.Register(container.Sentinel)
	container.Coordinator = coord

	if container.AuditDB != nil {
		container.AuditStore = audit.NewStore(container.AuditDB, log)
		coord.Subscribe(container.AuditStore)
	}

	container.Feed = feed.NewFileProvider(cfg.SnapshotFile, log)

	if container.AuditDB != nil && cfg.Backup.Enabled() {
		client, err := backup.NewS3Client(context.Background(), backup.S3Config{
			Bucket:    cfg.Backup.Bucket,
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.Backups = backup.NewService(container.AuditDB, client, cfg.DataDir, log)
	}

	log.Info().Strs("agents", coord.Names()).Msg("Agents registered")
	return nil
}
