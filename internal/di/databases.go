package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/config"
	"github.com/aristath/aegis/internal/database"
)

// InitializeDatabases opens the audit database and applies its schema.
// With the audit trail disabled the container carries no database.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}
	if !cfg.AuditEnabled {
		log.Info().Msg("Audit trail disabled")
		return container, nil
	}

	// aegis.db - append-only decision audit trail
	auditDB, err := database.New(database.Config{
		Path:    cfg.AuditDBPath(),
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit database: %w", err)
	}
	if err := auditDB.Migrate(); err != nil {
		auditDB.Close()
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}
	container.AuditDB = auditDB

	log.Info().Str("path", auditDB.Path()).Msg("Audit database initialized")
	return container, nil
}
