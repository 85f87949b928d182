package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		table  string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent imports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend, err := a.backend(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			if backend.History == nil {
				return errors.New("import history is not configured")
			}
			runs, err := backend.History.ListRuns(ctx, table, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No imports recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tTABLE\tACTION\tSTATUS\tREAD\tIMPORTED\tERRORS\tFILE")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.TableKey, r.Action, r.Status,
					r.RowsRead, r.RowsImported, r.ErrorCount, r.FileName)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "only show this table")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
