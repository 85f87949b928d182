package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvimport/internal/core"
)

func newPreviewCmd(a *app) *cobra.Command {
	var (
		table  string
		file   string
		header bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Check a CSV file without importing it",
		Long: `Map every row of a file the way import would and report rejected rows
and unique keys that repeat within the file. Nothing is written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := core.Lookup(table)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("%w: %w", core.ErrInvalidSource, err)
			}
			defer f.Close()

			opts := core.ImportOptions{HasHeader: header, Encoding: a.cfg.Import.Encoding}
			if a.cfg.Import.MapFile != "" {
				maps, err := core.LoadMapFile(a.cfg.Import.MapFile)
				if err != nil {
					return err
				}
				opts.Maps = maps
			}

			importer := core.NewImporter(nil, core.ImporterConfig{Logger: a.logger})
			res, err := importer.Preview(cmd.Context(), f, def, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printPreview(out, res)
			}
			if res.Summary.ErrorRows > 0 {
				return errors.New("preview found rows that would be rejected")
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&table, "table", "", "destination table key")
	fl.StringVar(&file, "file", "", "CSV file")
	fl.BoolVar(&header, "header", true, "first row is a header")
	fl.String("encoding", "", "source text encoding (default utf-8)")
	fl.String("map", "", "YAML column map file")
	fl.BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printPreview(w io.Writer, res *core.PreviewResult) {
	s := res.Summary
	fmt.Fprintf(w, "%s: %d rows, %d valid, %d rejected, %d duplicate keys\n",
		res.TableKey, s.TotalRows, s.ValidRows, s.ErrorRows, s.DuplicateInFile)
	for _, e := range res.ErrorSamples {
		fmt.Fprintf(w, "  row %d: %s\n", e.Row, strings.Join(e.Errors, "; "))
	}
	for _, d := range res.DuplicateSamples {
		rows := make([]string, len(d.Rows))
		for i, r := range d.Rows {
			rows[i] = fmt.Sprint(r)
		}
		fmt.Fprintf(w, "  key %s on rows %s\n", d.RowKey, strings.Join(rows, ", "))
	}
}
