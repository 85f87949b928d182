// Package cli implements the csvimport command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/core"
	_ "github.com/JonMunkholm/csvimport/internal/core/tables"
	"github.com/JonMunkholm/csvimport/internal/logging"
	"github.com/JonMunkholm/csvimport/internal/store"
)

// Version is set at build time.
var Version = "dev"

// Exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitCancelled = 130
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "skip-config"

// app carries state shared by the commands of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger

	// openBackend is replaced in tests.
	openBackend func(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*store.Backend, error)
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{openBackend: store.Open}

	root := &cobra.Command{
		Use:   "csvimport",
		Short: "Bulk-load CSV files into database tables",
		Long: `csvimport loads CSV files into registered destination tables.

Each file is read row by row, mapped to typed columns, and written in batches
inside a single transaction. Rows that fail to map are reported and skipped;
a write failure rolls the whole import back.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.String("driver", "", "database driver: postgres, sqlite, sqlite3, duckdb, memory")
	pf.String("database-url", "", "database connection string or file path")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text, json")

	root.AddCommand(
		newImportCmd(a),
		newPreviewCmd(a),
		newMigrateCmd(a),
		newTablesCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// loadConfig loads configuration and sets up logging on stderr.
func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}
	switch cmd.Name() {
	case "help", "completion", "__complete":
		return nil
	}

	opts := config.Options{File: a.cfgFile, Flags: cmd.Flags()}
	if dry, err := cmd.Flags().GetBool("dry-run"); err == nil && dry {
		opts.Overrides = map[string]any{"database.driver": "memory"}
	}

	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	a.logger.Debug("configuration loaded", "config", cfg.String())
	return nil
}

// backend opens the configured store.
func (a *app) backend(ctx context.Context) (*store.Backend, error) {
	return a.openBackend(ctx, a.cfg.Database, a.logger)
}

// Execute runs the CLI and returns the process exit code. SIGINT and SIGTERM
// cancel the running command.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	return exitCode(root.ErrOrStderr(), err)
}

func exitCode(w io.Writer, err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, core.ErrCancelled), errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "Cancelled: the import in progress was rolled back; runs already reported as committed are kept.")
		return ExitCancelled
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
		return ExitFailure
	}
}
