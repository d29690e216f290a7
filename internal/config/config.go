// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/aegis/internal/agents/analyst"
	"github.com/aristath/aegis/internal/agents/oracle"
	"github.com/aristath/aegis/internal/agents/sentinel"
	"github.com/aristath/aegis/internal/agents/strategist"
	"github.com/aristath/aegis/internal/optimization"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the audit database and snapshots (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	AuditEnabled       bool
	AuditRetentionDays int    // audit rows older than this are pruned nightly; 0 keeps everything
	RegimeSchedule     string // cron expression for regime detection; empty disables it
	RebalanceSchedule  string // cron expression for the full rebalance cycle; empty disables it
	SnapshotFile       string // market snapshot read by scheduled workflows

	Backup BackupConfig

	Oracle     oracle.Config
	Analyst    analyst.Config
	Strategist strategist.Config
	Sentinel   sentinel.Config
}

// BackupConfig points audit backups at an S3-compatible bucket. Backups are
// off while Bucket is empty.
type BackupConfig struct {
	Bucket        string
	Endpoint      string
	Region        string
	AccessKey     string `json:"-"`
	SecretKey     string `json:"-"`
	Schedule      string
	RetentionDays int
}

// Enabled reports whether a bucket is configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("AEGIS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogPretty:          getEnvAsBool("LOG_PRETTY", false),
		Port:               getEnvAsInt("AEGIS_PORT", 8080),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		AuditEnabled:       getEnvAsBool("AEGIS_AUDIT_ENABLED", true),
		AuditRetentionDays: getEnvAsInt("AEGIS_AUDIT_RETENTION_DAYS", 90),
		RegimeSchedule:     getEnv("AEGIS_REGIME_SCHEDULE", "0 */15 * * * *"),
		RebalanceSchedule:  getEnv("AEGIS_REBALANCE_SCHEDULE", ""),
		SnapshotFile:       getEnv("AEGIS_SNAPSHOT_FILE", filepath.Join(absDataDir, "market_snapshot.json")),
		Backup:             loadBackupConfig(),
		Oracle:             loadOracleConfig(),
		Analyst:            loadAnalystConfig(),
		Strategist:         loadStrategistConfig(),
		Sentinel:           loadSentinelConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AuditDBPath is the sqlite file holding the decision audit trail.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "aegis.db")
}

// Validate rejects inconsistent limits.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AuditRetentionDays < 0 {
		return fmt.Errorf("audit retention must not be negative, got %d", c.AuditRetentionDays)
	}
	if c.Backup.Enabled() {
		if !c.AuditEnabled {
			return fmt.Errorf("backups need the audit trail enabled")
		}
		if c.Backup.AccessKey == "" || c.Backup.SecretKey == "" {
			return fmt.Errorf("backup bucket %q configured without credentials", c.Backup.Bucket)
		}
		if c.Backup.RetentionDays < 0 {
			return fmt.Errorf("backup retention must not be negative, got %d", c.Backup.RetentionDays)
		}
	}

	o := c.Oracle
	if o.VIXBull > o.VIXElevated || o.VIXElevated > o.VIXCrisis {
		return fmt.Errorf("VIX thresholds must satisfy bull <= elevated <= crisis, got %v/%v/%v",
			o.VIXBull, o.VIXElevated, o.VIXCrisis)
	}

	if c.Analyst.Clustering.NClusters < 1 {
		return fmt.Errorf("cluster count must be at least 1, got %d", c.Analyst.Clustering.NClusters)
	}
	if c.Analyst.Clustering.NInit < 1 {
		return fmt.Errorf("k-means restarts must be at least 1, got %d", c.Analyst.Clustering.NInit)
	}

	opt := c.Strategist.Optimization
	switch opt.Method {
	case optimization.MethodMeanVariance, optimization.MethodRiskParity, optimization.MethodEqualWeight:
	default:
		return fmt.Errorf("unknown optimization method %q", opt.Method)
	}
	if opt.MinWeight < 0 || opt.MaxWeight > 1 || opt.MinWeight > opt.MaxWeight {
		return fmt.Errorf("weight bounds must satisfy 0 <= min <= max <= 1, got %v..%v", opt.MinWeight, opt.MaxWeight)
	}
	if opt.MaxIterations < 1 {
		return fmt.Errorf("optimizer iteration cap must be positive, got %d", opt.MaxIterations)
	}

	s := c.Sentinel
	for name, v := range map[string]float64{
		"max VaR":               s.MaxVaRPct,
		"max drawdown":          s.MaxDrawdownPct,
		"max position size":     s.MaxPositionSize,
		"max leverage":          s.MaxLeverage,
		"max daily loss":        s.MaxDailyLossPct,
		"correlation threshold": s.CorrelationThreshold,
	} {
		if v <= 0 {
			return fmt.Errorf("%s limit must be positive, got %v", name, v)
		}
	}
	if s.MinVaRObservations < 1 {
		return fmt.Errorf("VaR needs at least one observation, got %d", s.MinVaRObservations)
	}
	if s.MaxPositionSize > 1 || s.CorrelationThreshold > 1 {
		return fmt.Errorf("position size and correlation limits are fractions, got %v and %v",
			s.MaxPositionSize, s.CorrelationThreshold)
	}

	return nil
}

func loadBackupConfig() BackupConfig {
	return BackupConfig{
		Bucket:        getEnv("AEGIS_BACKUP_BUCKET", ""),
		Endpoint:      getEnv("AEGIS_BACKUP_ENDPOINT", ""),
		Region:        getEnv("AEGIS_BACKUP_REGION", "auto"),
		AccessKey:     getEnv("AEGIS_BACKUP_ACCESS_KEY_ID", ""),
		SecretKey:     getEnv("AEGIS_BACKUP_SECRET_ACCESS_KEY", ""),
		Schedule:      getEnv("AEGIS_BACKUP_SCHEDULE", "0 0 2 * * *"),
		RetentionDays: getEnvAsInt("AEGIS_BACKUP_RETENTION_DAYS", 30),
	}
}

func loadOracleConfig() oracle.Config {
	cfg := oracle.DefaultConfig()
	cfg.VIXCrisis = getEnvAsFloat("ORACLE_VIX_CRISIS", cfg.VIXCrisis)
	cfg.VIXElevated = getEnvAsFloat("ORACLE_VIX_ELEVATED", cfg.VIXElevated)
	cfg.VIXBull = getEnvAsFloat("ORACLE_VIX_BULL", cfg.VIXBull)
	cfg.VIXRecovery = getEnvAsFloat("ORACLE_VIX_RECOVERY", cfg.VIXRecovery)
	return cfg
}

func loadAnalystConfig() analyst.Config {
	cfg := analyst.DefaultConfig()
	cfg.Clustering.NClusters = getEnvAsInt("ANALYST_N_CLUSTERS", cfg.Clustering.NClusters)
	cfg.Clustering.NInit = getEnvAsInt("ANALYST_N_INIT", cfg.Clustering.NInit)
	cfg.Clustering.UsePCA = getEnvAsBool("ANALYST_USE_PCA", cfg.Clustering.UsePCA)
	cfg.Clustering.PCAComponents = getEnvAsInt("ANALYST_PCA_COMPONENTS", cfg.Clustering.PCAComponents)
	return cfg
}

func loadStrategistConfig() strategist.Config {
	cfg := strategist.DefaultConfig()
	cfg.Optimization.Method = optimization.Method(getEnv("STRATEGIST_METHOD", string(cfg.Optimization.Method)))
	cfg.Optimization.MinWeight = getEnvAsFloat("STRATEGIST_MIN_WEIGHT", cfg.Optimization.MinWeight)
	cfg.Optimization.MaxWeight = getEnvAsFloat("STRATEGIST_MAX_WEIGHT", cfg.Optimization.MaxWeight)
	cfg.Optimization.MaxIterations = getEnvAsInt("STRATEGIST_MAX_ITERATIONS", cfg.Optimization.MaxIterations)
	return cfg
}

func loadSentinelConfig() sentinel.Config {
	cfg := sentinel.DefaultConfig()
	cfg.MaxVaRPct = getEnvAsFloat("SENTINEL_MAX_VAR_PCT", cfg.MaxVaRPct)
	cfg.MaxDrawdownPct = getEnvAsFloat("SENTINEL_MAX_DRAWDOWN_PCT", cfg.MaxDrawdownPct)
	cfg.MaxPositionSize = getEnvAsFloat("SENTINEL_MAX_POSITION_SIZE", cfg.MaxPositionSize)
	cfg.MaxLeverage = getEnvAsFloat("SENTINEL_MAX_LEVERAGE", cfg.MaxLeverage)
	cfg.CorrelationThreshold = getEnvAsFloat("SENTINEL_CORRELATION_THRESHOLD", cfg.CorrelationThreshold)
	cfg.MaxDailyLossPct = getEnvAsFloat("SENTINEL_MAX_DAILY_LOSS_PCT", cfg.MaxDailyLossPct)
	cfg.MinVaRObservations = getEnvAsInt("SENTINEL_MIN_VAR_OBSERVATIONS", cfg.MinVaRObservations)
	return cfg
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
