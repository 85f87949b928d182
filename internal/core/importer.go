package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RollbackTimeout bounds a rollback issued after the run context is gone.
var RollbackTimeout = 30 * time.Second

// Store is a destination that rows are persisted into.
type Store interface {
	// Kind names the backend ("postgres", "sqlite", ...).
	Kind() string

	// Clear removes every row from the destination in its own transaction.
	// It does nothing when the destination is already empty.
	Clear(ctx context.Context, def TableDefinition) error

	// Begin opens the transaction that spans the rest of an import.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open transaction on a Store. Rollback after Commit or Rollback
// must be harmless.
type Tx interface {
	// Persist writes records in order. Either all records are staged or the
	// call fails.
	Persist(ctx context.Context, def TableDefinition, records []Record) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ImportOptions configures a single import run.
type ImportOptions struct {
	Action    ImportAction
	HasHeader bool
	Encoding  string // Source text encoding, DefaultEncoding when empty

	// Mapper overrides every other mapping choice when set.
	Mapper Mapper
	// Maps supplies a mapper for destinations it knows.
	Maps MapperFactory

	Progress ProgressReporter

	// CommitThreshold overrides the importer's flush threshold when positive.
	CommitThreshold int

	// KeepEmptyRecords passes rows whose fields are all blank to the mapper.
	KeepEmptyRecords bool
	Delimiter        rune
	Comment          rune

	// SourceName is recorded as ImportResult.ImportFile.
	SourceName string
	// RunID is generated when empty.
	RunID string
}

// ImporterConfig holds importer settings.
type ImporterConfig struct {
	// CommitThreshold is the default flush threshold (DefaultCommitThreshold when 0).
	CommitThreshold int
	// MaxConcurrent bounds ImportAll parallelism (DefaultMaxConcurrentImports when 0).
	MaxConcurrent int
	Logger        *slog.Logger
}

// Importer drives imports into a Store.
type Importer struct {
	store         Store
	threshold     int
	maxConcurrent int
	logger        *slog.Logger
}

// NewImporter creates an Importer for store.
func NewImporter(store Store, cfg ImporterConfig) *Importer {
	threshold := cfg.CommitThreshold
	if threshold <= 0 {
		threshold = DefaultCommitThreshold
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:         store,
		threshold:     threshold,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// Store returns the destination store.
func (im *Importer) Store() Store {
	return im.store
}

// ImportFile opens path and imports it. Path problems are reported as
// ErrInvalidSource before anything is read or cleared.
func (im *Importer) ImportFile(ctx context.Context, path string, def TableDefinition, opts ImportOptions) (*ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: import file path is empty", ErrInvalidSource)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidSource, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	defer f.Close()

	if opts.SourceName == "" {
		opts.SourceName = path
	}
	return im.Import(ctx, f, def, opts)
}

// Import reads rows from src and loads them into def inside one transaction.
//
// The returned error is non-nil only for configuration problems, reported
// before anything is cleared or written, and for cancellation (ErrCancelled),
// in which case the transaction has been rolled back and the partial result is
// returned alongside the error. Row parse failures and persistence failures
// are reported through ImportResult.ErrorMessages.
func (im *Importer) Import(ctx context.Context, src io.Reader, def TableDefinition, opts ImportOptions) (*ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	if im.store == nil {
		return nil, errors.New("destination store cannot be nil")
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrInvalidSource)
	}
	if len(def.FieldSpecs) == 0 {
		return nil, fmt.Errorf("table %q has no fields", def.Info.Key)
	}

	mapper, source, _, err := openSource(src, def, opts)
	if err != nil {
		return nil, err
	}

	threshold := im.threshold
	if opts.CommitThreshold > 0 {
		threshold = opts.CommitThreshold
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	run := &importRun{
		ctx:      ctx,
		store:    im.store,
		def:      def,
		mapper:   mapper,
		source:   source,
		batch:    NewBatch(threshold),
		progress: opts.Progress,
		result: &ImportResult{
			RunID:       runID,
			ImportFile:  opts.SourceName,
			Destination: def.Info.Key,
			Store:       im.store.Kind(),
			Action:      opts.Action,
			StartTime:   time.Now(),
		},
		logger: im.logger.With(
			"run_id", runID,
			"table", def.Info.Key,
			"store", im.store.Kind(),
		),
	}

	run.logger.Info("import started",
		"action", opts.Action.String(),
		"source", opts.SourceName,
		"threshold", threshold,
	)

	err = run.execute()

	run.finish()
	run.logger.Info("import finished",
		"rows_read", run.result.RowsRead,
		"rows_imported", run.result.RowsImported,
		"errors", len(run.result.ErrorMessages),
		"status", RunStatus(run.result, err),
		"duration_ms", run.result.Duration().Milliseconds(),
	)
	return run.result, err
}

// openSource prepares src for reading: it picks the mapper, decodes the text
// and consumes the header row when there is one. The header is nil for
// headerless or empty sources.
func openSource(src io.Reader, def TableDefinition, opts ImportOptions) (Mapper, *CSVSource, []string, error) {
	mapper, err := resolveMapper(def, opts)
	if err != nil {
		return nil, nil, nil, err
	}
	decoded, err := DecodeReader(src, opts.Encoding)
	if err != nil {
		return nil, nil, nil, err
	}
	source := NewCSVSource(decoded,
		WithDelimiter(opts.Delimiter),
		WithComment(opts.Comment),
		WithSkipEmptyRecords(!opts.KeepEmptyRecords),
	)

	if !opts.HasHeader {
		return mapper, source, nil, nil
	}
	header, err := source.Next()
	switch {
	case errors.Is(err, io.EOF):
		// Empty source: nothing to bind, zero rows follow.
		return mapper, source, nil, nil
	case err != nil:
		return nil, nil, nil, fmt.Errorf("read header: %w", err)
	}
	if binder, ok := mapper.(HeaderBinder); ok {
		if err := binder.Bind(header); err != nil {
			return nil, nil, nil, err
		}
	}
	return mapper, source, header, nil
}

// importRun holds the state of one Import call.
type importRun struct {
	ctx      context.Context
	store    Store
	def      TableDefinition
	mapper   Mapper
	source   *CSVSource
	batch    *Batch
	progress ProgressReporter
	result   *ImportResult
	ledger   Ledger
	logger   *slog.Logger

	tx          Tx
	rowsInError int
	staged      int
}

func (r *importRun) report(msg string) {
	if r.progress != nil {
		r.progress.Report(msg)
	}
}

func (r *importRun) finish() {
	r.result.ErrorMessages = r.ledger.Messages()
	r.result.EndTime = time.Now()
}

func (r *importRun) execute() error {
	if r.result.Action == ActionReplace {
		r.report(clearingMessage(r.def.Info.Key, r.result.Store))
		if err := r.store.Clear(r.ctx, r.def); err != nil {
			if ctxErr := r.ctx.Err(); ctxErr != nil {
				r.result.Aborted = true
				return cancelled(ctxErr)
			}
			r.logger.Warn("clear failed", "error", err)
			r.ledger.AddPersistenceError(err)
			r.result.Aborted = true
			return nil
		}
		r.logger.Info("destination cleared")
		r.report(clearedMessage(r.def.Info.Key))
	}

	r.report(startReadingMessage)

	tx, err := r.store.Begin(r.ctx)
	if err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			r.result.Aborted = true
			return cancelled(ctxErr)
		}
		r.ledger.AddPersistenceError(fmt.Errorf("begin transaction: %w", err))
		r.result.Aborted = true
		return nil
	}
	r.tx = tx
	defer r.rollback()

	for {
		fields, err := r.source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.logger.Warn("source read failed", "error", err, "rows_read", r.result.RowsRead)
			r.ledger.Add(err.Error())
			r.abandon()
			return nil
		}

		r.result.RowsRead++
		r.mapRow(fields)

		r.report(rowProgressMessage(r.result.RowsRead, r.rowsInError))

		if ctxErr := r.ctx.Err(); ctxErr != nil {
			r.logger.Info("import cancelled", "rows_read", r.result.RowsRead)
			r.abandon()
			return cancelled(ctxErr)
		}

		if r.batch.Full() {
			if done, err := r.flush(); done {
				return err
			}
		}
	}

	if r.batch.Size() > 0 {
		if done, err := r.flush(); done {
			return err
		}
	}

	if r.staged == 0 {
		r.rollback()
		return nil
	}

	r.report(committingMessage)
	if err := r.tx.Commit(r.ctx); err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			r.abandon()
			return cancelled(ctxErr)
		}
		r.logger.Error("commit failed", "error", err)
		r.ledger.AddPersistenceError(err)
		r.abandon()
		return nil
	}
	r.tx = nil
	r.result.RowsImported = r.staged
	r.report(committedMessage(r.result.RowsImported))
	return nil
}

func (r *importRun) mapRow(fields []string) {
	rec, err := r.mapper.Map(r.result.RowsRead, fields)
	if err == nil {
		r.batch.Add(rec)
		return
	}

	r.rowsInError++
	var fe *FieldError
	if errors.As(err, &fe) {
		r.ledger.AddRowError(fe)
	} else {
		r.ledger.Add(fmt.Sprintf("Row %d could not be mapped. %v", r.result.RowsRead, err))
	}
	r.logger.Debug("row rejected", "row", r.result.RowsRead, "error", err)
}

// flush persists the current batch. It reports done=true when the run must
// stop; err is then the cancellation error, if any.
func (r *importRun) flush() (done bool, err error) {
	n := r.batch.Size()
	if err := r.tx.Persist(r.ctx, r.def, r.batch.Drain()); err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			r.abandon()
			return true, cancelled(ctxErr)
		}
		r.logger.Warn("flush failed, rolling back", "error", err, "rows_staged", r.staged)
		r.ledger.AddPersistenceError(err)
		r.abandon()
		return true, nil
	}
	r.staged += n
	r.logger.Debug("batch flushed", "rows", n, "rows_staged", r.staged)
	return false, nil
}

// abandon rolls back and marks the run as not committed.
func (r *importRun) abandon() {
	r.result.Aborted = true
	r.rollback()
}

// rollback aborts the open transaction, if any. It uses a context detached
// from cancellation so a cancelled run can still roll back.
func (r *importRun) rollback() {
	if r.tx == nil {
		return
	}
	tx := r.tx
	r.tx = nil

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), RollbackTimeout)
	defer cancel()
	if err := tx.Rollback(ctx); err != nil {
		r.logger.Warn("rollback failed", "error", err)
	}
}
