package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPreview(t *testing.T) {
	store := newFakeStore()
	im := NewImporter(store, ImporterConfig{})

	src := strings.NewReader(csvRows(
		"Name,Amount,Code",
		"alpha,1.50,A",
		"beta,abc,B",
		"alpha,2,C",
		",3,D",
		"gamma,4,E",
		"alpha,5,F",
	))
	res, err := im.Preview(t.Context(), src, testTable, ImportOptions{HasHeader: true})
	if err != nil {
		t.Fatal(err)
	}

	want := PreviewSummary{TotalRows: 6, ValidRows: 4, ErrorRows: 2, DuplicateInFile: 2}
	if res.Summary != want {
		t.Errorf("Summary = %+v, want %+v", res.Summary, want)
	}
	if strings.Join(res.Header, ",") != "Name,Amount,Code" {
		t.Errorf("Header = %v", res.Header)
	}

	if len(res.ErrorSamples) != 2 {
		t.Fatalf("ErrorSamples = %+v", res.ErrorSamples)
	}
	if res.ErrorSamples[0].Row != 2 || res.ErrorSamples[0].Errors[0] != "Row 2, column 2 has invalid value abc. invalid numeric" {
		t.Errorf("ErrorSamples[0] = %+v", res.ErrorSamples[0])
	}
	if res.ErrorSamples[1].Row != 4 || !strings.Contains(res.ErrorSamples[1].Errors[0], "The Name field is required.") {
		t.Errorf("ErrorSamples[1] = %+v", res.ErrorSamples[1])
	}

	if len(res.DuplicateSamples) != 1 {
		t.Fatalf("DuplicateSamples = %+v", res.DuplicateSamples)
	}
	dup := res.DuplicateSamples[0]
	if dup.RowKey != "alpha" || len(dup.Rows) != 3 || dup.Rows[0] != 1 || dup.Rows[2] != 6 {
		t.Errorf("duplicate = %+v", dup)
	}

	first := res.RowSamples[0]
	if first.Row != 1 || first.RowKey != "alpha" || first.Values["amount"] != "1.50" || first.Values["code"] != "A" {
		t.Errorf("RowSamples[0] = %+v", first)
	}

	if store.begins != 0 || store.clears != 0 {
		t.Error("preview touched the store")
	}
}

func TestPreview_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewImporter(nil, ImporterConfig{}).Preview(ctx, strings.NewReader(csvRows("a,1,x")), testTable, ImportOptions{})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
}

func TestFormatValueForPreview(t *testing.T) {
	spec := func(typ FieldType) FieldSpec { return FieldSpec{Name: "v", Type: typ} }
	tests := []struct {
		spec FieldSpec
		raw  string
		want string
	}{
		{spec(FieldText), "hello", "hello"},
		{spec(FieldText), "", ""},
		{spec(FieldInteger), "1,234", "1234"},
		{spec(FieldBool), "yes", "true"},
		{spec(FieldDate), "01/15/2024", "2024-01-15"},
		{spec(FieldTimestamp), "2024-01-15 10:30:00", "2024-01-15T10:30:00Z"},
		{spec(FieldUUID), "6F9619FF-8B86-D011-B42D-00C04FC964FF", "6f9619ff-8b86-d011-b42d-00c04fc964ff"},
	}

	for _, tt := range tests {
		v, err := ConvertField(tt.spec, tt.raw)
		if err != nil {
			t.Fatalf("ConvertField(%s, %q) error = %v", tt.spec.Type, tt.raw, err)
		}
		if got := formatValueForPreview(v); got != tt.want {
			t.Errorf("format(%s %q) = %q, want %q", tt.spec.Type, tt.raw, got, tt.want)
		}
	}
}
