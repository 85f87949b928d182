package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestImportAll(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	gadgets := testTable
	gadgets.Info.Key = "gadgets"

	jobs := []ImportJob{
		{Path: write("w1.csv", csvRows("a,1,x", "b,2,x")), Table: testTable},
		{Path: write("g1.csv", csvRows("g,1,x")), Table: gadgets},
		{Path: filepath.Join(dir, "missing.csv"), Table: gadgets},
		{Path: write("w2.csv", csvRows("c,3,x", "d,bad,x")), Table: testTable},
	}

	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{MaxConcurrent: 2})
	results := im.ImportAll(t.Context(), jobs)

	if len(results) != len(jobs) {
		t.Fatalf("results = %d, want %d", len(results), len(jobs))
	}
	for i, jr := range results {
		if jr.Job.Path != jobs[i].Path {
			t.Errorf("result %d is for %s, want %s", i, jr.Job.Path, jobs[i].Path)
		}
	}

	if r := results[0]; r.Err != nil || r.Result.RowsImported != 2 {
		t.Errorf("w1 = %+v, %v", r.Result, r.Err)
	}
	if r := results[1]; r.Err != nil || r.Result.RowsImported != 1 {
		t.Errorf("g1 = %+v, %v", r.Result, r.Err)
	}
	if r := results[2]; !errors.Is(r.Err, ErrInvalidSource) || r.Result != nil {
		t.Errorf("missing = %+v, %v", r.Result, r.Err)
	}
	if r := results[3]; r.Err != nil || r.Result.RowsImported != 1 || len(r.Result.ErrorMessages) != 1 {
		t.Errorf("w2 = %+v, %v", r.Result, r.Err)
	}

	if got := store.count("widgets"); got != 3 {
		t.Errorf("widgets rows = %d, want 3", got)
	}
	if got := store.count("gadgets"); got != 1 {
		t.Errorf("gadgets rows = %d, want 1", got)
	}

	// Jobs for one destination commit in submission order.
	var widgetRows []string
	for _, rec := range store.rows["widgets"] {
		widgetRows = append(widgetRows, formatValueForPreview(rec[0]))
	}
	if len(widgetRows) != 3 || widgetRows[0] != "a" || widgetRows[2] != "c" {
		t.Errorf("widgets rows = %v, want a b c", widgetRows)
	}
}

func TestImportAll_Empty(t *testing.T) {
	im := NewImporter(newFakeStore(), ImporterConfig{})
	if got := im.ImportAll(t.Context(), nil); len(got) != 0 {
		t.Errorf("ImportAll(nil) = %v", got)
	}
}
