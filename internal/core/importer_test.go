package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestImport_MalformedRowIsSkipped(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{CommitThreshold: 50})

	src := strings.NewReader(csvRows("alpha,1.5,A", "beta,abc,B", "gamma,3,C"))
	res, err := im.Import(t.Context(), src, testTable, ImportOptions{Action: ActionAppend})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if res.RowsRead != 3 {
		t.Errorf("RowsRead = %d, want 3", res.RowsRead)
	}
	if res.RowsImported != 2 {
		t.Errorf("RowsImported = %d, want 2", res.RowsImported)
	}
	if len(res.ErrorMessages) != 1 {
		t.Fatalf("ErrorMessages = %v, want 1 entry", res.ErrorMessages)
	}
	if want := "Row 2, column 2 has invalid value abc. invalid numeric"; res.ErrorMessages[0] != want {
		t.Errorf("message = %q, want %q", res.ErrorMessages[0], want)
	}
	if got := store.count("widgets"); got != 2 {
		t.Errorf("stored rows = %d, want 2", got)
	}
	if store.commits != 1 {
		t.Errorf("commits = %d, want 1", store.commits)
	}
	if res.Aborted || RunStatus(res, err) != RunPartial {
		t.Errorf("aborted = %v, status = %s, want committed partial", res.Aborted, RunStatus(res, err))
	}
	if res.Store != "fake" || res.Destination != "widgets" || res.RunID == "" {
		t.Errorf("result metadata = %+v", res)
	}
	if res.EndTime.Before(res.StartTime) {
		t.Error("EndTime before StartTime")
	}
}

func TestImport_KMalformedRows(t *testing.T) {
	lines := []string{"a,1,x", "b,bad,x", "c,3,x", "d,4,x", "e,oops,x", "f,6,x", "g,7,x"}
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{CommitThreshold: 3})

	res, err := im.Import(t.Context(), strings.NewReader(csvRows(lines...)), testTable, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsRead != 7 || res.RowsImported != 5 {
		t.Errorf("read/imported = %d/%d, want 7/5", res.RowsRead, res.RowsImported)
	}
	wantPrefixes := []string{"Row 2, column 2 ", "Row 5, column 2 "}
	if len(res.ErrorMessages) != len(wantPrefixes) {
		t.Fatalf("ErrorMessages = %v", res.ErrorMessages)
	}
	for i, p := range wantPrefixes {
		if !strings.HasPrefix(res.ErrorMessages[i], p) {
			t.Errorf("message %d = %q, want prefix %q", i, res.ErrorMessages[i], p)
		}
	}
}

func TestImport_FlushesAtThreshold(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{CommitThreshold: 2})

	src := strings.NewReader(csvRows("a,1,x", "b,2,x", "c,3,x", "d,4,x", "e,5,x"))
	res, err := im.Import(t.Context(), src, testTable, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var sizes []int
	for _, p := range store.persists {
		sizes = append(sizes, len(p))
	}
	if fmt.Sprint(sizes) != "[2 2 1]" {
		t.Errorf("flush sizes = %v, want [2 2 1]", sizes)
	}
	if store.begins != 1 || store.commits != 1 {
		t.Errorf("begins/commits = %d/%d, want 1/1", store.begins, store.commits)
	}
	if res.RowsImported != 5 {
		t.Errorf("RowsImported = %d, want 5", res.RowsImported)
	}

	// Rows persist in source order.
	rows := store.rows["widgets"]
	for i, want := range []string{"a", "b", "c", "d", "e"} {
		if got := rows[i][0].(pgtype.Text).String; got != want {
			t.Errorf("row %d = %q, want %q", i, got, want)
		}
	}
}

func TestImport_OptionThresholdOverridesImporter(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{CommitThreshold: 100})

	src := strings.NewReader(csvRows("a,1,x", "b,2,x", "c,3,x"))
	if _, err := im.Import(t.Context(), src, testTable, ImportOptions{CommitThreshold: 1}); err != nil {
		t.Fatal(err)
	}
	if len(store.persists) != 3 {
		t.Errorf("persist calls = %d, want 3", len(store.persists))
	}
}

func TestImport_PersistFailureRollsBackEverything(t *testing.T) {
	store := newFakeStore()
	store.failPersist = func(call int) error {
		if call == 2 {
			return fmt.Errorf("copy widgets: %w", fmt.Errorf("flush: %w", errors.New("duplicate key value violates unique constraint")))
		}
		return nil
	}
	im := NewImporter(store, ImporterConfig{CommitThreshold: 2})

	src := strings.NewReader(csvRows("a,1,x", "b,2,x", "c,3,x", "d,4,x", "e,5,x"))
	res, err := im.Import(t.Context(), src, testTable, ImportOptions{})
	if err != nil {
		t.Fatalf("Import() error = %v, want nil", err)
	}

	if res.RowsRead != 4 {
		t.Errorf("RowsRead = %d, want 4 (stopped at the failing flush)", res.RowsRead)
	}
	if res.RowsImported != 0 {
		t.Errorf("RowsImported = %d, want 0", res.RowsImported)
	}
	if want := []string{"duplicate key value violates unique constraint"}; fmt.Sprint(res.ErrorMessages) != fmt.Sprint(want) {
		t.Errorf("ErrorMessages = %q, want %q", res.ErrorMessages, want)
	}
	if store.count("widgets") != 0 {
		t.Error("rows from the first flush survived the rollback")
	}
	if store.commits != 0 || store.rollbacks != 1 {
		t.Errorf("commits/rollbacks = %d/%d, want 0/1", store.commits, store.rollbacks)
	}
	if !res.Aborted {
		t.Error("Aborted = false after a failed flush")
	}
}

func TestImport_ValidationFailureListsEachProperty(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	// Empty required name and an over-long name both map fine but fail on write.
	src := strings.NewReader(csvRows(",1,x", strings.Repeat("n", 21)+",2,x"))
	res, err := im.Import(t.Context(), src, testTable, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ErrorMessages) != 2 {
		t.Fatalf("ErrorMessages = %v, want 2", res.ErrorMessages)
	}
	if !strings.Contains(res.ErrorMessages[0], `property "name". The Name field is required.`) {
		t.Errorf("message 0 = %q", res.ErrorMessages[0])
	}
	if !strings.Contains(res.ErrorMessages[1], "maximum length of 20") {
		t.Errorf("message 1 = %q", res.ErrorMessages[1])
	}
	if res.RowsImported != 0 {
		t.Errorf("RowsImported = %d, want 0", res.RowsImported)
	}
}

func TestImport_CommitFailure(t *testing.T) {
	store := newFakeStore()
	store.commitErr = errors.New("connection reset by peer")
	im := NewImporter(store, ImporterConfig{})

	res, err := im.Import(t.Context(), strings.NewReader(csvRows("a,1,x")), testTable, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsImported != 0 {
		t.Errorf("RowsImported = %d, want 0", res.RowsImported)
	}
	if len(res.ErrorMessages) != 1 || res.ErrorMessages[0] != "connection reset by peer" {
		t.Errorf("ErrorMessages = %q", res.ErrorMessages)
	}
	if store.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", store.rollbacks)
	}
	if !res.Aborted || RunStatus(res, err) != RunFailed {
		t.Errorf("aborted = %v, status = %s", res.Aborted, RunStatus(res, err))
	}
}

func TestImport_BeginFailure(t *testing.T) {
	store := newFakeStore()
	store.beginErr = errors.New("too many connections")
	im := NewImporter(store, ImporterConfig{})

	res, err := im.Import(t.Context(), strings.NewReader(csvRows("a,1,x")), testTable, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsRead != 0 {
		t.Errorf("RowsRead = %d, want 0", res.RowsRead)
	}
	if len(res.ErrorMessages) != 1 || res.ErrorMessages[0] != "too many connections" {
		t.Errorf("ErrorMessages = %q", res.ErrorMessages)
	}
	if !res.Aborted {
		t.Error("Aborted = false after a failed begin")
	}
}

func TestImport_CancelledMidRun(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{CommitThreshold: 50})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	progress := ProgressFunc(func(msg string) {
		if strings.HasPrefix(msg, "2 rows read") {
			cancel()
		}
	})

	src := strings.NewReader(csvRows("a,1,x", "b,2,x", "c,3,x", "d,4,x"))
	res, err := im.Import(ctx, src, testTable, ImportOptions{Progress: progress})

	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want it to wrap context.Canceled", err)
	}
	if res == nil {
		t.Fatal("result = nil, want partial result")
	}
	if res.RowsRead != 2 || res.RowsImported != 0 {
		t.Errorf("read/imported = %d/%d, want 2/0", res.RowsRead, res.RowsImported)
	}
	if store.count("widgets") != 0 || store.commits != 0 {
		t.Error("cancelled run left rows behind")
	}
	if store.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", store.rollbacks)
	}
}

func TestImport_CancelledAfterFlush(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{CommitThreshold: 1})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	progress := ProgressFunc(func(msg string) {
		if strings.HasPrefix(msg, "3 rows read") {
			cancel()
		}
	})

	src := strings.NewReader(csvRows("a,1,x", "b,2,x", "c,3,x", "d,4,x"))
	_, err := im.Import(ctx, src, testTable, ImportOptions{Progress: progress})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if len(store.persists) != 2 {
		t.Errorf("persist calls = %d, want 2", len(store.persists))
	}
	if store.count("widgets") != 0 {
		t.Error("flushed rows survived cancellation")
	}
}

func TestImport_AlreadyCancelled(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := im.Import(ctx, strings.NewReader(csvRows("a,1,x")), testTable, ImportOptions{Action: ActionReplace})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if store.clears != 0 || store.begins != 0 {
		t.Errorf("store touched: clears=%d begins=%d", store.clears, store.begins)
	}
}

func TestImport_ReplaceClearsFirst(t *testing.T) {
	store := newFakeStore()
	store.rows["widgets"] = []Record{{pgtype.Text{String: "old", Valid: true}, pgtype.Numeric{}, pgtype.Text{}}}
	im := NewImporter(store, ImporterConfig{})

	src := csvRows("a,1,x", "b,2,y")
	var results [2]int
	for i := range results {
		res, err := im.Import(t.Context(), strings.NewReader(src), testTable, ImportOptions{Action: ActionReplace})
		if err != nil {
			t.Fatal(err)
		}
		results[i] = res.RowsImported
		if got := store.count("widgets"); got != 2 {
			t.Fatalf("run %d: stored rows = %d, want 2", i+1, got)
		}
	}
	if results[0] != results[1] {
		t.Errorf("replace runs imported %v, want identical counts", results)
	}
	if store.clears != 2 {
		t.Errorf("clears = %d, want 2", store.clears)
	}
}

func TestImport_ReplaceClearFailure(t *testing.T) {
	store := newFakeStore()
	store.clearErr = fmt.Errorf("clear widgets: %w", errors.New("permission denied for table widgets"))
	im := NewImporter(store, ImporterConfig{})

	rec := &recorder{}
	res, err := im.Import(t.Context(), strings.NewReader(csvRows("a,1,x")), testTable,
		ImportOptions{Action: ActionReplace, Progress: rec})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsRead != 0 {
		t.Errorf("RowsRead = %d, want 0", res.RowsRead)
	}
	if len(res.ErrorMessages) != 1 || res.ErrorMessages[0] != "permission denied for table widgets" {
		t.Errorf("ErrorMessages = %q", res.ErrorMessages)
	}
	if store.begins != 0 {
		t.Error("transaction opened after a failed clear")
	}
	if !res.Aborted {
		t.Error("Aborted = false after a failed clear")
	}
	if res.EndTime.IsZero() {
		t.Error("EndTime not stamped")
	}
	msgs := rec.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "Clearing table for entity widgets") {
		t.Errorf("progress = %q", msgs)
	}
}

func TestImport_ProgressMessages(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})
	rec := &recorder{}

	src := strings.NewReader(csvRows("a,1,x", "b,bad,x", "c,3,x"))
	if _, err := im.Import(t.Context(), src, testTable, ImportOptions{Action: ActionReplace, Progress: rec}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"Clearing table for entity widgets in fake...",
		"Table for entity widgets has been cleared",
		"Starting to read file...",
		"1 row read, 0 have error",
		"2 rows read, 1 has error",
		"3 rows read, 1 has error",
		"Committing all changes to database...",
		"2 rows written to database.",
	}
	got := rec.messages()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("progress:\n got %q\nwant %q", got, want)
	}
}

func TestImport_NoRowsNoCommit(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	res, err := im.Import(t.Context(), strings.NewReader("Name,Amount,Code\n"), testTable, ImportOptions{HasHeader: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsRead != 0 || res.RowsImported != 0 {
		t.Errorf("read/imported = %d/%d", res.RowsRead, res.RowsImported)
	}
	if store.commits != 0 || store.rollbacks != 1 {
		t.Errorf("commits/rollbacks = %d/%d, want 0/1", store.commits, store.rollbacks)
	}
}

func TestImport_AllRowsMalformedNoCommit(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	res, err := im.Import(t.Context(), strings.NewReader(csvRows("a,x,x", "b,y,y")), testTable, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.ErrorMessages) != 2 || res.RowsImported != 0 {
		t.Errorf("result = %+v", res)
	}
	if store.commits != 0 {
		t.Error("committed with nothing staged")
	}
	if res.Aborted || RunStatus(res, err) != RunFailed {
		t.Errorf("aborted = %v, status = %s, want unaborted failed", res.Aborted, RunStatus(res, err))
	}
}

func TestImport_HeaderMapping(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	// Columns out of order and differently cased; the unknown column is ignored.
	src := strings.NewReader(csvRows("code,EXTRA,amount,name", "x,?,1.25,alpha"))
	res, err := im.Import(t.Context(), src, testTable, ImportOptions{HasHeader: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsRead != 1 || res.RowsImported != 1 {
		t.Fatalf("result = %+v", res)
	}
	row := store.rows["widgets"][0]
	if row[0].(pgtype.Text).String != "alpha" || row[2].(pgtype.Text).String != "x" {
		t.Errorf("row = %v", row)
	}
}

func TestImport_ConfigErrorsTouchNothing(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts ImportOptions
		want string
	}{
		{
			name: "missing required header",
			src:  csvRows("Amount,Code", "1,x"),
			opts: ImportOptions{HasHeader: true, Action: ActionReplace},
			want: "missing required column in header: Name",
		},
		{
			name: "unknown encoding",
			src:  csvRows("a,1,x"),
			opts: ImportOptions{Encoding: "klingon", Action: ActionReplace},
			want: "unknown encoding",
		},
		{
			name: "map factory failure",
			src:  csvRows("a,1,x"),
			opts: ImportOptions{Maps: failingMaps{}, Action: ActionReplace},
			want: "get map for widgets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			im := NewImporter(store, ImporterConfig{})

			res, err := im.Import(t.Context(), strings.NewReader(tt.src), testTable, tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want %q", err, tt.want)
			}
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}
			if store.clears != 0 || store.begins != 0 {
				t.Error("store touched before configuration was validated")
			}
		})
	}
}

type failingMaps struct{}

func (failingMaps) HasMap(TableDefinition) bool { return true }
func (failingMaps) GetMap(TableDefinition) (Mapper, error) {
	return nil, errors.New("broken map")
}

func TestImport_Encoding(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	src := strings.NewReader("Caf\xe9,1,x\n")
	if _, err := im.Import(t.Context(), src, testTable, ImportOptions{Encoding: "windows-1252"}); err != nil {
		t.Fatal(err)
	}
	if got := store.rows["widgets"][0][0].(pgtype.Text).String; got != "Café" {
		t.Errorf("name = %q, want Café", got)
	}
}

func TestImport_ExplicitMapperWins(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	mapper, err := NewFieldMapper(testTable, []ColumnBinding{
		{Spec: testTable.FieldSpecs[0], Index: 2},
		{Spec: testTable.FieldSpecs[1], Index: -1, Default: "9"},
		{Spec: testTable.FieldSpecs[2], Index: 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	src := strings.NewReader(csvRows("code,ignored,name"))
	if _, err := im.Import(t.Context(), src, testTable, ImportOptions{Mapper: mapper, Maps: failingMaps{}}); err != nil {
		t.Fatal(err)
	}
	row := store.rows["widgets"][0]
	if row[0].(pgtype.Text).String != "name" || row[2].(pgtype.Text).String != "code" {
		t.Errorf("row = %v", row)
	}
	if f, _ := row[1].(pgtype.Numeric).Float64Value(); f.Float64 != 9 {
		t.Errorf("amount = %v, want default 9", row[1])
	}
}

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "widgets.csv")
	if err := os.WriteFile(path, []byte(csvRows("a,1,x")), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	res, err := im.ImportFile(t.Context(), path, testTable, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.ImportFile != path || res.RowsImported != 1 {
		t.Errorf("result = %+v", res)
	}

	for _, bad := range []string{"", "  ", filepath.Join(dir, "missing.csv"), dir} {
		res, err := im.ImportFile(t.Context(), bad, testTable, ImportOptions{Action: ActionReplace})
		if !errors.Is(err, ErrInvalidSource) {
			t.Errorf("ImportFile(%q) error = %v, want ErrInvalidSource", bad, err)
		}
		if res != nil {
			t.Errorf("ImportFile(%q) result = %+v, want nil", bad, res)
		}
	}
	if store.clears != 0 {
		t.Error("invalid path cleared the destination")
	}
}

func TestImport_NilArguments(t *testing.T) {
	if _, err := NewImporter(nil, ImporterConfig{}).Import(t.Context(), strings.NewReader(""), testTable, ImportOptions{}); err == nil {
		t.Error("nil store: want error")
	}
	if _, err := NewImporter(newFakeStore(), ImporterConfig{}).Import(t.Context(), nil, testTable, ImportOptions{}); !errors.Is(err, ErrInvalidSource) {
		t.Errorf("nil reader: error = %v, want ErrInvalidSource", err)
	}
	if _, err := NewImporter(newFakeStore(), ImporterConfig{}).Import(t.Context(), strings.NewReader(""), TableDefinition{}, ImportOptions{}); err == nil {
		t.Error("empty definition: want error")
	}
}

func TestImport_RowsImportedNeverExceedsRowsRead(t *testing.T) {
	inputs := []string{
		"",
		csvRows("a,1,x"),
		csvRows("a,1,x", "b,bad,x"),
		csvRows("a,1,x", ",2,x"),
		csvRows("\"unterminated,1,x"),
	}
	for _, in := range inputs {
		res, err := NewImporter(newFakeStore(), ImporterConfig{CommitThreshold: 1}).
			Import(t.Context(), strings.NewReader(in), testTable, ImportOptions{})
		if err != nil {
			t.Fatalf("Import(%q) error = %v", in, err)
		}
		if res.RowsImported > res.RowsRead {
			t.Errorf("Import(%q): imported %d > read %d", in, res.RowsImported, res.RowsRead)
		}
	}
}
