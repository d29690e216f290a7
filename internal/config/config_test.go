package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aegis/internal/optimization"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AEGIS_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.AuditEnabled)
	assert.Equal(t, 90, cfg.AuditRetentionDays)
	assert.Equal(t, "0 */15 * * * *", cfg.RegimeSchedule)
	assert.Empty(t, cfg.RebalanceSchedule)
	assert.Equal(t, filepath.Join(dir, "market_snapshot.json"), cfg.SnapshotFile)
	assert.Equal(t, filepath.Join(dir, "aegis.db"), cfg.AuditDBPath())
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, "auto", cfg.Backup.Region)
	assert.Equal(t, 30, cfg.Backup.RetentionDays)

	assert.Equal(t, 30.0, cfg.Oracle.VIXCrisis)
	assert.Equal(t, 5, cfg.Analyst.Clustering.NClusters)
	assert.Equal(t, optimization.MethodMeanVariance, cfg.Strategist.Optimization.Method)
	assert.Equal(t, 0.15, cfg.Sentinel.MaxPositionSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AEGIS_DATA_DIR", t.TempDir())
	t.Setenv("AEGIS_PORT", "9100")
	t.Setenv("AEGIS_AUDIT_ENABLED", "false")
	t.Setenv("ANALYST_N_CLUSTERS", "3")
	t.Setenv("STRATEGIST_METHOD", "risk_parity")
	t.Setenv("SENTINEL_MAX_LEVERAGE", "1.5")
	t.Setenv("SENTINEL_MAX_VAR_PCT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.False(t, cfg.AuditEnabled)
	assert.Equal(t, 3, cfg.Analyst.Clustering.NClusters)
	assert.Equal(t, optimization.MethodRiskParity, cfg.Strategist.Optimization.Method)
	assert.Equal(t, 1.5, cfg.Sentinel.MaxLeverage)
	assert.Equal(t, 2.0, cfg.Sentinel.MaxVaRPct)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"bad method", "STRATEGIST_METHOD", "kelly"},
		{"inverted bounds", "STRATEGIST_MIN_WEIGHT", "0.5"},
		{"zero clusters", "ANALYST_N_CLUSTERS", "0"},
		{"negative leverage", "SENTINEL_MAX_LEVERAGE", "-1"},
		{"position size over one", "SENTINEL_MAX_POSITION_SIZE", "1.5"},
		{"vix order", "ORACLE_VIX_BULL", "40"},
		{"port", "AEGIS_PORT", "70000"},
		{"negative retention", "AEGIS_AUDIT_RETENTION_DAYS", "-3"},
		{"no VaR history", "SENTINEL_MIN_VAR_OBSERVATIONS", "0"},
		{"backup without credentials", "AEGIS_BACKUP_BUCKET", "audit-backups"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("AEGIS_DATA_DIR", t.TempDir())
			t.Setenv(tc.key, tc.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_Backup(t *testing.T) {
	t.Setenv("AEGIS_DATA_DIR", t.TempDir())
	t.Setenv("AEGIS_BACKUP_BUCKET", "audit-backups")
	t.Setenv("AEGIS_BACKUP_ENDPOINT", "https://example.r2.cloudflarestorage.com")
	t.Setenv("AEGIS_BACKUP_ACCESS_KEY_ID", "key")
	t.Setenv("AEGIS_BACKUP_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AEGIS_BACKUP_RETENTION_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, 7, cfg.Backup.RetentionDays)
	assert.Equal(t, "0 0 2 * * *", cfg.Backup.Schedule)

	t.Setenv("AEGIS_AUDIT_ENABLED", "false")
	_, err = Load()
	assert.Error(t, err)
}
