package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/store"
)

// errImportFailed reports that at least one import ended with errors.
var errImportFailed = errors.New("import finished with errors")

type importFlags struct {
	table     string
	files     []string
	action    string
	header    bool
	delimiter string
	quiet     bool
	dryRun    bool
}

func newImportCmd(a *app) *cobra.Command {
	f := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import CSV files into tables",
		Long: `Import one or more CSV files.

With --table every --file goes into that table. Without it, each --file is
given as table=path. Files for different tables run concurrently; files for
the same table run one after another in the order given.`,
		Example: `  # Append one file
  csvimport import --table customers --file customers.csv

  # Replace the table contents
  csvimport import --table invoices --file invoices.csv --action replace

  # Several tables at once
  csvimport import --file customers=c.csv --file invoices=i.csv

  # Check a file without writing anything
  csvimport import --table customers --file customers.csv --dry-run`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if len(f.files) == 0 {
				return errors.New("at least one --file is required")
			}
			if _, err := core.ParseImportAction(f.action); err != nil {
				return err
			}
			_, err := f.jobs(core.ImportOptions{})
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runImport(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.table, "table", "", "destination table key")
	fl.StringArrayVar(&f.files, "file", nil, "CSV file, or table=path without --table (repeatable)")
	fl.StringVar(&f.action, "action", "append", "append or replace")
	fl.BoolVar(&f.header, "header", true, "first row is a header")
	fl.String("encoding", "", "source text encoding (default utf-8)")
	fl.Int("threshold", 0, "rows per flush (default 50000)")
	fl.String("map", "", "YAML column map file")
	fl.Int("max-concurrent", 0, "tables imported in parallel")
	fl.StringVar(&f.delimiter, "delimiter", "", "field delimiter (default ,)")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "suppress progress output")
	fl.BoolVar(&f.dryRun, "dry-run", false, "map and validate without writing")

	return cmd
}

// jobs expands the file flags into import jobs.
func (f *importFlags) jobs(opts core.ImportOptions) ([]core.ImportJob, error) {
	jobs := make([]core.ImportJob, 0, len(f.files))
	for _, spec := range f.files {
		key, path := f.table, spec
		if key == "" {
			var ok bool
			key, path, ok = strings.Cut(spec, "=")
			if !ok {
				return nil, fmt.Errorf("--file %q: use table=path or set --table", spec)
			}
		}
		def, err := core.Lookup(strings.TrimSpace(key))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, core.ImportJob{Path: strings.TrimSpace(path), Table: def, Options: opts})
	}
	return jobs, nil
}

func (a *app) runImport(cmd *cobra.Command, f *importFlags) error {
	ctx := cmd.Context()

	action, err := core.ParseImportAction(f.action)
	if err != nil {
		return err
	}
	opts := core.ImportOptions{
		Action:    action,
		HasHeader: f.header,
		Encoding:  a.cfg.Import.Encoding,
	}
	if f.delimiter != "" {
		d := []rune(f.delimiter)
		if len(d) != 1 {
			return errors.New("--delimiter must be a single character")
		}
		opts.Delimiter = d[0]
	}
	if _, err := core.LookupEncoding(opts.Encoding); err != nil {
		return err
	}
	if a.cfg.Import.MapFile != "" {
		maps, err := core.LoadMapFile(a.cfg.Import.MapFile)
		if err != nil {
			return err
		}
		opts.Maps = maps
	}

	jobs, err := f.jobs(opts)
	if err != nil {
		return err
	}

	backend, err := a.backend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	if a.cfg.Database.AutoMigrate {
		if err := backend.Migrate(ctx); err != nil && !errors.Is(err, store.ErrNoMigrations) {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	importer := core.NewImporter(backend.Store, core.ImporterConfig{
		CommitThreshold: a.cfg.Import.CommitThreshold,
		MaxConcurrent:   a.cfg.Import.MaxConcurrent,
		Logger:          a.logger,
	})

	errOut := cmd.ErrOrStderr()
	for i := range jobs {
		if !f.quiet {
			jobs[i].Options.Progress = core.NewThrottledReporter(
				progressPrinter(errOut, jobs[i].Table.Info.Key, f.dryRun),
				a.cfg.Import.ProgressInterval,
			)
		}
	}

	results := importer.ImportAll(ctx, jobs)

	out := cmd.OutOrStdout()
	var cancelled, failed bool
	for _, jr := range results {
		if t, ok := jr.Job.Options.Progress.(*core.ThrottledReporter); ok {
			t.Flush()
		}
		printResult(out, jr)
		a.recordHistory(ctx, backend.History, jr)

		// Partial runs exit nonzero so scripts notice rejected rows.
		switch core.RunStatus(jr.Result, jr.Err) {
		case core.RunCancelled:
			cancelled = true
		case core.RunFailed, core.RunPartial:
			failed = true
		}
	}

	if f.dryRun {
		fmt.Fprintln(out, "Dry run: rows were staged in memory only; the database was not touched.")
	}
	switch {
	case cancelled:
		return core.ErrCancelled
	case failed:
		return errImportFailed
	}
	return nil
}

func (a *app) recordHistory(ctx context.Context, history core.HistoryStore, jr core.JobResult) {
	if history == nil || jr.Result == nil {
		return
	}
	// The run context may already be cancelled; the record still belongs in history.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := history.RecordRun(ctx, core.NewRunRecord(jr.Result, jr.Err)); err != nil {
		a.logger.Warn("record import history", "run_id", jr.Result.RunID, "error", err)
	}
}

func progressPrinter(w io.Writer, table string, dryRun bool) core.ProgressReporter {
	return core.ProgressFunc(func(msg string) {
		if dryRun {
			msg = strings.ReplaceAll(msg, "to database", "to the in-memory store")
		}
		fmt.Fprintf(w, "[%s] %s\n", table, msg)
	})
}

func printResult(w io.Writer, jr core.JobResult) {
	name := jr.Job.Table.Info.Key
	if jr.Result == nil {
		fmt.Fprintf(w, "%s <- %s: %v\n", name, jr.Job.Path, jr.Err)
		return
	}
	res := jr.Result
	fmt.Fprintf(w, "%s <- %s: %d read, %d imported, %d errors (%s, %s)\n",
		name, jr.Job.Path, res.RowsRead, res.RowsImported, len(res.ErrorMessages),
		core.RunStatus(res, jr.Err), res.Duration().Round(time.Millisecond))
	for _, msg := range res.ErrorMessages {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}
