package core

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestToPgNumeric(t *testing.T) {
	tests := []struct {
		input     string
		wantValid bool
		want      float64
	}{
		{"123", true, 123},
		{"-45.5", true, -45.5},
		{"$1,234.56", true, 1234.56},
		{"€99", true, 99},
		{"(250.00)", true, -250},
		{".5", true, 0.5},
		{"", false, 0},
		{"   ", false, 0},
		{"abc", false, 0},
		{"12.3.4", false, 0},
		{"1,2a", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ToPgNumeric(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToPgNumeric(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if !tt.wantValid {
				return
			}
			f, err := got.Float64Value()
			if err != nil {
				t.Fatal(err)
			}
			if f.Float64 != tt.want {
				t.Errorf("ToPgNumeric(%q) = %v, want %v", tt.input, f.Float64, tt.want)
			}
		})
	}
}

func TestToPgDate(t *testing.T) {
	tests := []struct {
		input string
		want  string // YYYY-MM-DD, empty for invalid
	}{
		{"2024-01-15", "2024-01-15"},
		{"1/15/2024", "2024-01-15"},
		{"01/15/2024", "2024-01-15"},
		{"2024/01/15", "2024-01-15"},
		{"15.1.2024", ""},
		{"Jan 15, 2024", "2024-01-15"},
		{"15 Jan 2024", "2024-01-15"},
		{"20240115", "2024-01-15"},
		{"2/29/2023", ""},
		{"13/01/2024", ""},
		{"", ""},
		{"not a date", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ToPgDate(tt.input)
			if tt.want == "" {
				if got.Valid {
					t.Errorf("ToPgDate(%q) = %v, want invalid", tt.input, got.Time)
				}
				return
			}
			if !got.Valid || got.Time.Format(time.DateOnly) != tt.want {
				t.Errorf("ToPgDate(%q) = %v (valid %v), want %s", tt.input, got.Time, got.Valid, tt.want)
			}
		})
	}
}

func TestToPgDate_TwoDigitYear(t *testing.T) {
	old := TwoDigitYearPivot
	t.Cleanup(func() { TwoDigitYearPivot = old })
	TwoDigitYearPivot = 20

	now := time.Now().Year()
	near := (now + 5) % 100
	far := (now + 30) % 100

	nearDate := ToPgDate(time.Date(2000+near, 3, 4, 0, 0, 0, 0, time.UTC).Format("1/2/06"))
	if !nearDate.Valid || nearDate.Time.Year() != now+5 {
		t.Errorf("near year parsed as %v", nearDate.Time)
	}
	farDate := ToPgDate(time.Date(2000+far, 3, 4, 0, 0, 0, 0, time.UTC).Format("1/2/06"))
	if !farDate.Valid || farDate.Time.Year() != now+30-100 {
		t.Errorf("far year parsed as %v, want previous century", farDate.Time)
	}
}

func TestToPgBool(t *testing.T) {
	for _, in := range []string{"true", "TRUE", "t", "Yes", "y", "1", " yes "} {
		if got := ToPgBool(in); !got.Valid || !got.Bool {
			t.Errorf("ToPgBool(%q) = %+v, want true", in, got)
		}
	}
	for _, in := range []string{"false", "F", "no", "N", "0"} {
		if got := ToPgBool(in); !got.Valid || got.Bool {
			t.Errorf("ToPgBool(%q) = %+v, want false", in, got)
		}
	}
	for _, in := range []string{"", "maybe", "2"} {
		if got := ToPgBool(in); got.Valid {
			t.Errorf("ToPgBool(%q) = %+v, want invalid", in, got)
		}
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  plain  ", "plain"},
		{`="00123"`, "00123"},
		{"=SUM(A1)", "SUM(A1)"},
		{`"quoted"`, "quoted"},
		{"'single'", "single"},
		{"", ""},
		{`in"side`, `in"side`},
		{"\t tabbed \t", "tabbed"},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.in); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	idx := MakeHeaderIndex([]string{" Customer ID ", "NAME", "name", `="Email"`})
	want := HeaderIndex{"customer id": 0, "name": 1, "email": 3}
	if len(idx) != len(want) {
		t.Fatalf("MakeHeaderIndex() = %v, want %v", idx, want)
	}
	for k, v := range want {
		if idx[k] != v {
			t.Errorf("idx[%q] = %d, want %d", k, idx[k], v)
		}
	}
}

func TestConvertField(t *testing.T) {
	upper := func(s string) string { return s + "!" }
	tests := []struct {
		name    string
		spec    FieldSpec
		raw     string
		wantErr string
		check   func(any) bool
	}{
		{
			name:  "text trims",
			spec:  FieldSpec{Type: FieldText},
			raw:   "  hi ",
			check: func(v any) bool { return v.(pgtype.Text).String == "hi" },
		},
		{
			name:  "empty text is null",
			spec:  FieldSpec{Type: FieldText},
			raw:   "",
			check: func(v any) bool { return !v.(pgtype.Text).Valid },
		},
		{
			name:  "allow empty keeps empty string",
			spec:  FieldSpec{Type: FieldText, AllowEmpty: true},
			raw:   " ",
			check: func(v any) bool { t := v.(pgtype.Text); return t.Valid && t.String == "" },
		},
		{
			name:  "normalizer applied",
			spec:  FieldSpec{Type: FieldText, Normalizer: upper},
			raw:   "x",
			check: func(v any) bool { return v.(pgtype.Text).String == "x!" },
		},
		{
			name:  "enum canonical case",
			spec:  FieldSpec{Type: FieldEnum, EnumValues: []string{"Open", "Closed"}},
			raw:   "OPEN",
			check: func(v any) bool { return v.(pgtype.Text).String == "Open" },
		},
		{
			name:    "enum rejects unknown",
			spec:    FieldSpec{Type: FieldEnum, EnumValues: []string{"Open", "Closed"}},
			raw:     "pending",
			wantErr: "invalid enum value, expected one of Open, Closed",
		},
		{name: "bad date", spec: FieldSpec{Type: FieldDate}, raw: "soon", wantErr: "invalid date"},
		{name: "bad timestamp", spec: FieldSpec{Type: FieldTimestamp}, raw: "later", wantErr: "invalid timestamp"},
		{name: "bad integer", spec: FieldSpec{Type: FieldInteger}, raw: "1.5", wantErr: "invalid integer"},
		{name: "bad bool", spec: FieldSpec{Type: FieldBool}, raw: "perhaps", wantErr: "invalid bool"},
		{name: "bad uuid", spec: FieldSpec{Type: FieldUUID}, raw: "xyz", wantErr: "invalid uuid"},
		{
			name:  "empty numeric is null",
			spec:  FieldSpec{Type: FieldNumeric},
			raw:   "",
			check: func(v any) bool { return isNull(v) },
		},
		{
			name:  "date-only timestamp",
			spec:  FieldSpec{Type: FieldTimestamp},
			raw:   "2024-02-03",
			check: func(v any) bool { return v.(pgtype.Timestamptz).Time.Equal(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ConvertField(tt.spec, tt.raw)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !tt.check(v) {
				t.Errorf("ConvertField(%q) = %#v", tt.raw, v)
			}
		})
	}
}
