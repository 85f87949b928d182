package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServiceConfig holds settings for background imports.
type ServiceConfig struct {
	MaxConcurrent    int           // Parallel imports (DefaultMaxConcurrentImports when 0)
	MaxWait          time.Duration // Wait for a free slot (DefaultMaxWaitTime when 0)
	ImportTimeout    time.Duration // Per-run deadline, 0 for none
	CommitThreshold  int           // Flush threshold (DefaultCommitThreshold when 0)
	ProgressInterval time.Duration // Row progress throttle
	RetainFor        time.Duration // How long finished runs stay queryable
	Logger           *slog.Logger
}

// DefaultRetainFor is how long a finished run stays in memory.
const DefaultRetainFor = 5 * time.Minute

// ImportRequest describes a background import.
type ImportRequest struct {
	TableKey string
	FileName string
	Reader   io.Reader // Closed when the run ends if it implements io.Closer
	Size     int64     // Bytes, 0 when unknown
	Options  ImportOptions
}

// Service runs imports in the background and tracks their progress.
type Service struct {
	importer *Importer
	history  HistoryStore
	limiter  *ImportLimiter
	cfg      ServiceConfig
	logger   *slog.Logger

	mu      sync.RWMutex
	imports map[string]*activeImport
	busy    map[string]string // table key -> run ID
}

type activeImport struct {
	ID       string
	TableKey string
	Cancel   context.CancelFunc
	Done     chan struct{}
	counter  *CountingReader

	mu        sync.Mutex
	progress  ImportProgress
	result    *ImportResult
	err       error
	listeners []chan ImportProgress
}

// NewService creates a Service importing into store. history may be nil.
func NewService(store Store, history HistoryStore, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetainFor <= 0 {
		cfg.RetainFor = DefaultRetainFor
	}
	return &Service{
		importer: NewImporter(store, ImporterConfig{
			CommitThreshold: cfg.CommitThreshold,
			MaxConcurrent:   cfg.MaxConcurrent,
			Logger:          logger,
		}),
		history: history,
		limiter: NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:     cfg,
		logger:  logger,
		imports: make(map[string]*activeImport),
		busy:    make(map[string]string),
	}
}

// Importer returns the underlying importer.
func (s *Service) Importer() *Importer {
	return s.importer
}

// ListTables returns information about all registered tables.
func (s *Service) ListTables() []TableInfo {
	defs := All()
	infos := make([]TableInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// StartImport validates the request, reserves the destination and a limiter
// slot, and starts the run in the background. It returns the run ID.
//
// It returns ErrUnknownTable, ErrDestinationBusy, ErrTooManyImports or the
// context error without starting anything.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	def, err := Lookup(req.TableKey)
	if err != nil {
		return "", err
	}
	if req.Reader == nil {
		return "", fmt.Errorf("%w: no file provided", ErrInvalidSource)
	}

	runID := uuid.NewString()
	if err := s.reserve(def.Info.Key, runID); err != nil {
		return "", err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		s.unreserve(def.Info.Key, runID)
		return "", err
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.cfg.ImportTimeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), s.cfg.ImportTimeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}

	run := &activeImport{
		ID:       runID,
		TableKey: def.Info.Key,
		Cancel:   cancel,
		Done:     make(chan struct{}),
		counter:  NewCountingReader(req.Reader, req.Size),
		progress: ImportProgress{
			RunID:      runID,
			TableKey:   def.Info.Key,
			FileName:   req.FileName,
			Phase:      PhaseStarting,
			BytesTotal: req.Size,
		},
	}

	s.mu.Lock()
	s.imports[runID] = run
	s.mu.Unlock()

	opts := req.Options
	opts.RunID = runID
	if opts.SourceName == "" {
		opts.SourceName = req.FileName
	}
	throttled := NewThrottledReporter(run, s.cfg.ProgressInterval)
	opts.Progress = MultiReporter(throttled, opts.Progress)

	go func() {
		var (
			res    *ImportResult
			runErr error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("panic in import",
						"run_id", runID,
						"table", def.Info.Key,
						"panic", r,
					)
					res, runErr = nil, fmt.Errorf("internal error: %v", r)
				}
			}()
			if c, ok := req.Reader.(io.Closer); ok {
				defer c.Close()
			}
			res, runErr = s.importer.Import(runCtx, run.counter, def, opts)
		}()
		throttled.Flush()
		cancel()

		// Free the destination and the slot before waiters are released.
		s.unreserve(def.Info.Key, runID)
		s.limiter.Release()
		s.finish(run, res, runErr)
	}()

	return runID, nil
}

// reserve marks tableKey as in use by runID.
func (s *Service) reserve(tableKey, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if other, ok := s.busy[tableKey]; ok {
		return fmt.Errorf("%w (run %s)", ErrDestinationBusy, other)
	}
	s.busy[tableKey] = runID
	return nil
}

func (s *Service) unreserve(tableKey, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[tableKey] == runID {
		delete(s.busy, tableKey)
	}
}

// finish publishes the final state, records history and schedules cleanup.
func (s *Service) finish(run *activeImport, res *ImportResult, runErr error) {
	run.mu.Lock()
	if run.result != nil || isClosed(run.Done) {
		run.mu.Unlock()
		return
	}
	if res == nil {
		now := time.Now()
		res = &ImportResult{
			RunID:       run.ID,
			ImportFile:  run.progress.FileName,
			Destination: run.TableKey,
			Store:       s.importer.Store().Kind(),
			StartTime:   now,
			EndTime:     now,
		}
		if runErr != nil {
			res.ErrorMessages = []string{runErr.Error()}
			res.Aborted = true
		}
	}
	run.result = res
	run.err = runErr

	p := &run.progress
	p.RowsImported = res.RowsImported
	p.BytesRead = run.counter.BytesRead()
	switch RunStatus(res, runErr) {
	case RunCancelled:
		p.Phase = PhaseCancelled
		p.Error = FormatUserError(runErr)
	case RunFailed:
		p.Phase = PhaseFailed
		if runErr != nil {
			p.Error = FormatUserError(runErr)
		} else if len(res.ErrorMessages) > 0 {
			p.Error = res.ErrorMessages[0]
		}
	case RunPartial:
		// Rows were committed; Error carries the first rejected row.
		p.Phase = PhaseComplete
		p.Error = res.ErrorMessages[0]
	default:
		p.Phase = PhaseComplete
	}
	run.broadcastLocked()
	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
	close(run.Done)
	run.mu.Unlock()

	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := s.history.RecordRun(ctx, NewRunRecord(res, runErr)); err != nil {
			s.logger.Warn("record import history", "run_id", run.ID, "error", err)
		}
		cancel()
	}

	s.cleanup(run.ID, s.cfg.RetainFor)
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Report implements ProgressReporter for the run's own progress snapshot.
func (run *activeImport) Report(message string) {
	run.mu.Lock()
	defer run.mu.Unlock()

	p := &run.progress
	p.Message = message
	p.BytesRead = run.counter.BytesRead()
	if strings.HasPrefix(message, "Clearing table") {
		p.Phase = PhaseClearing
	} else {
		p.Phase = PhaseReading
	}
	run.broadcastLocked()
}

// broadcastLocked sends the snapshot to every listener. Slow listeners miss
// updates rather than block the import.
func (run *activeImport) broadcastLocked() {
	for _, ch := range run.listeners {
		select {
		case ch <- run.progress:
		default:
		}
	}
}

func (s *Service) lookup(runID string) (*activeImport, error) {
	s.mu.RLock()
	run, ok := s.imports[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, runID)
	}
	return run, nil
}

// SubscribeProgress returns a channel of progress snapshots. The current
// snapshot is sent first; the channel closes when the run ends.
func (s *Service) SubscribeProgress(runID string) (<-chan ImportProgress, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 16)

	run.mu.Lock()
	defer run.mu.Unlock()
	ch <- run.progress
	if isClosed(run.Done) {
		close(ch)
		return ch, nil
	}
	run.listeners = append(run.listeners, ch)
	return ch, nil
}

// CancelImport requests cancellation. The run rolls back and ends with
// PhaseCancelled.
func (s *Service) CancelImport(runID string) error {
	run, err := s.lookup(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// GetImportResult waits for the run to end and returns its result together
// with the error Import returned, if any.
func (s *Service) GetImportResult(ctx context.Context, runID string) (*ImportResult, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	return run.result, run.err
}

// GetImportProgress returns the current snapshot without blocking.
func (s *Service) GetImportProgress(runID string) (ImportProgress, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return ImportProgress{}, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	p := run.progress
	if !isClosed(run.Done) {
		p.BytesRead = run.counter.BytesRead()
	}
	return p, nil
}

// History lists recorded runs for tableKey, newest first.
func (s *Service) History(ctx context.Context, tableKey string, limit int) ([]RunRecord, error) {
	if s.history == nil {
		return nil, errors.New("import history is not configured")
	}
	if tableKey != "" {
		if _, err := Lookup(tableKey); err != nil {
			return nil, err
		}
	}
	return s.history.ListRuns(ctx, tableKey, limit)
}

// LimiterStatus reports limiter usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until no import is running or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every running import.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, run := range s.imports {
		run.Cancel()
	}
}

// cleanup forgets a finished run after delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, runID)
		s.mu.Unlock()
	})
}
