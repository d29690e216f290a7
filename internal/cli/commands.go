// Package cli implements aegisctl, the one-shot workflow runner.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/aegis/internal/agents"
	"github.com/aristath/aegis/internal/audit"
	"github.com/aristath/aegis/internal/backup"
	"github.com/aristath/aegis/internal/config"
	"github.com/aristath/aegis/internal/di"
	"github.com/aristath/aegis/internal/domain"
	"github.com/aristath/aegis/internal/feed"
	"github.com/aristath/aegis/pkg/logger"
)

// Version is stamped at build time.
var Version = "dev"

type app struct {
	debug   bool
	noAudit bool
	cfg     *config.Config
	log     zerolog.Logger
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "aegisctl",
		Short: "Aegis - multi-agent risk and portfolio decisions",
		Long: `aegisctl runs the Aegis agents and workflows once against a market
snapshot and prints the result as JSON. Runs are written to the audit
database unless --no-audit is given.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if a.noAudit {
				cfg.AuditEnabled = false
			}
			level := "warn"
			if a.debug {
				level = "debug"
			}
			a.cfg = cfg
			a.log = logger.New(logger.Config{Level: level, Pretty: true, Output: cmd.ErrOrStderr()})
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&a.noAudit, "no-audit", false, "Do not write to the audit database")

	rootCmd.AddCommand(a.newRunCmd())
	rootCmd.AddCommand(a.newAgentCmd())
	rootCmd.AddCommand(a.newWorkflowsCmd())
	rootCmd.AddCommand(a.newAuditCmd())
	rootCmd.AddCommand(a.newConfigCmd())
	rootCmd.AddCommand(a.newBackupCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newRunCmd creates the run command
func (a *app) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run WORKFLOW",
		Short: "Run a workflow once",
		Long: `Run a named workflow and print its result.
Example: aegisctl run rebalance_cycle --snapshot ./data/market_snapshot.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, _ := cmd.Flags().GetString("snapshot")
			inputFile, _ := cmd.Flags().GetString("input")
			return a.runWorkflow(cmd.Context(), cmd.OutOrStdout(), args[0], snapshot, inputFile)
		},
	}
	cmd.Flags().String("snapshot", "", "Market snapshot file (defaults to AEGIS_SNAPSHOT_FILE)")
	cmd.Flags().String("input", "", "Raw agent input JSON file; overrides --snapshot")
	return cmd
}

// newAgentCmd creates the agent command
func (a *app) newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent NAME",
		Short: "Execute a single agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputFile, _ := cmd.Flags().GetString("input")
			return a.runAgent(cmd.OutOrStdout(), args[0], inputFile)
		},
	}
	cmd.Flags().String("input", "", "Agent input JSON file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// newWorkflowsCmd lists the workflow names
func (a *app) newWorkflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List available workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.AuditEnabled = false
			container, _, err := di.Wire(a.cfg, a.log)
			if err != nil {
				return err
			}
			defer container.Close()
			for _, name := range container.Coordinator.Workflows() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// newAuditCmd creates the audit query commands
func (a *app) newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the audit trail",
	}

	decisions := &cobra.Command{
		Use:   "decisions",
		Short: "List recorded decisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, _ := cmd.Flags().GetString("agent")
			kind, _ := cmd.Flags().GetString("type")
			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")

			q := audit.DecisionQuery{Agent: agent, Type: domain.DecisionType(kind), Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			return a.withStore(func(store *audit.Store) error {
				records, err := store.Decisions(cmd.Context(), q)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), records)
			})
		},
	}
	decisions.Flags().String("agent", "", "Only this agent")
	decisions.Flags().String("type", "", "Only this decision type, e.g. VETO")
	decisions.Flags().Duration("since", 0, "Only decisions newer than this, e.g. 24h")
	decisions.Flags().Int("limit", 20, "Maximum rows")

	workflows := &cobra.Command{
		Use:   "workflows",
		Short: "List recorded workflow runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return a.withStore(func(store *audit.Store) error {
				runs, err := store.WorkflowRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), runs)
			})
		},
	}
	workflows.Flags().Int("limit", 20, "Maximum rows")

	verdicts := &cobra.Command{
		Use:   "verdicts",
		Short: "Count decisions per type",
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetDuration("since")
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			return a.withStore(func(store *audit.Store) error {
				counts, err := store.VerdictCounts(cmd.Context(), from)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), counts)
			})
		},
	}
	verdicts.Flags().Duration("since", 0, "Only decisions newer than this")

	auditCmd.AddCommand(decisions, workflows, verdicts)
	return auditCmd
}

// newConfigCmd creates the config command
func (a *app) newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), a.cfg)
		},
	})

	// Load already validates; reaching RunE means the configuration is valid.
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
		},
	})

	return configCmd
}

// newBackupCmd creates the backup command
func (a *app) newBackupCmd() *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Audit database backups in object storage",
	}

	backupCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Upload a backup now and rotate old ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackups(func(svc *backup.Service) error {
				key, err := svc.CreateAndUpload(cmd.Context())
				if err != nil {
					return err
				}
				deleted, err := svc.Rotate(cmd.Context(), a.cfg.Backup.RetentionDays)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"key": key, "rotated": deleted})
			})
		},
	})

	backupCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List uploaded backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackups(func(svc *backup.Service) error {
				backups, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), backups)
			})
		},
	})

	return backupCmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aegisctl %s\n", Version)
		},
	}
}

func (a *app) runWorkflow(ctx context.Context, out io.Writer, name, snapshot, inputFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	container, _, err := di.Wire(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer container.Close()

	var in agents.Input
	switch {
	case inputFile != "":
		in, err = readInput(inputFile)
	case snapshot != "":
		in, err = feed.NewFileProvider(snapshot, a.log).Snapshot(ctx)
	default:
		in, err = container.Feed.Snapshot(ctx)
	}
	if err != nil {
		return err
	}

	res := container.Coordinator.ExecuteWorkflow(ctx, name, in)
	if container.AuditStore != nil {
		if err := container.AuditStore.RecordWorkflow(ctx, res); err != nil {
			a.log.Warn().Err(err).Msg("Failed to record workflow run")
		}
	}

	if err := printJSON(out, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("workflow %s failed: %s", name, res.Error)
	}
	return nil
}

func (a *app) runAgent(out io.Writer, name, inputFile string) error {
	in, err := readInput(inputFile)
	if err != nil {
		return err
	}

	container, _, err := di.Wire(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer container.Close()

	d, err := container.Coordinator.ExecuteAgent(name, in)
	if err != nil {
		return err
	}
	if d == nil {
		agent, _ := container.Coordinator.Agent(name)
		st := agent.Status()
		return fmt.Errorf("agent %s failed (status=%s, errors=%d)", name, st.Status, st.ErrorCount)
	}
	return printJSON(out, d)
}

func (a *app) withStore(fn func(*audit.Store) error) error {
	if !a.cfg.AuditEnabled {
		return fmt.Errorf("audit trail disabled")
	}
	container, err := di.InitializeDatabases(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer container.Close()
	return fn(audit.NewStore(container.AuditDB, a.log))
}

func (a *app) withBackups(fn func(*backup.Service) error) error {
	if !a.cfg.Backup.Enabled() || !a.cfg.AuditEnabled {
		return fmt.Errorf("backups not configured: set AEGIS_BACKUP_BUCKET")
	}
	container, err := di.InitializeDatabases(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer container.Close()
	if err := di.InitializeServices(container, a.cfg, a.log); err != nil {
		return err
	}
	return fn(container.Backups)
}

func readInput(path string) (agents.Input, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	var in agents.Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to decode input %s: %w", path, err)
	}
	return in, nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
