package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvimport/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Create or upgrade the destination tables and the import history table.

PostgreSQL and SQLite migrations are versioned; DuckDB runs the schema
statements idempotently.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend, err := a.backend(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			if !status {
				if err := backend.Migrate(ctx); err != nil {
					if errors.Is(err, store.ErrNoMigrations) {
						fmt.Fprintln(cmd.OutOrStdout(), "Nothing to migrate.")
						return nil
					}
					return err
				}
			}

			version, err := backend.MigrationVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d\n", version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "print the current version without migrating")
	return cmd
}
