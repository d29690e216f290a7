// Package testing provides shared helpers and fixtures for tests.
package testing

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/aristath/aegis/internal/database"
)

// NewTestDB creates a migrated sqlite database in a per-test directory.
// Supported schema names:
//   - "audit" - applies audit_schema.sql
//   - Unknown names - creates an empty database
//
// The database is closed when the test ends.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("test_%s.db", name))
	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db
}
