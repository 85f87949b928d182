package core

// convert.go turns raw CSV cells into typed column values.
//
// Converters accept the messy reality of exported spreadsheets: several date
// layouts, currency symbols and thousands separators in numbers, yes/no style
// booleans, Excel formula prefixes (="value") and stray quotes.
//
// All ToPg* functions return pgtype values with Valid=false for empty or
// invalid input. pgtype values implement driver.Valuer, so the same Record
// feeds both the pgx COPY path and database/sql drivers.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted. Years more than
// this many years in the future are moved to the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
	timestampLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"1/2/2006 3:04 PM",
	}
)

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts a string to pgtype.Date.
// Supports multiple date formats and handles 2-digit years with a pivot.
func ToPgDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}

	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return pgtype.Date{Time: t, Valid: true}
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return pgtype.Date{Time: t, Valid: true}
		}
	}

	return pgtype.Date{Valid: false}
}

// ToPgTimestamp converts a string to pgtype.Timestamptz. Date-only values are
// accepted and land at midnight UTC.
func ToPgTimestamp(s string) pgtype.Timestamptz {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Timestamptz{Valid: false}
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return pgtype.Timestamptz{Time: t.UTC(), Valid: true}
		}
	}
	if d := ToPgDate(s); d.Valid {
		return pgtype.Timestamptz{Time: d.Time.UTC(), Valid: true}
	}
	return pgtype.Timestamptz{Valid: false}
}

// ToPgNumeric converts a string to pgtype.Numeric.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative).
func ToPgNumeric(s string) pgtype.Numeric {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ToPgInt8 converts a string to pgtype.Int8. Thousands separators are allowed.
func ToPgInt8(s string) pgtype.Int8 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return pgtype.Int8{Valid: false}
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: i, Valid: true}
}

// ToPgBool converts a string to pgtype.Bool.
// Accepts true/false, yes/no, t/f, y/n, 1/0.
func ToPgBool(s string) pgtype.Bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return pgtype.Bool{Valid: false}
	}

	switch s {
	case "true", "t", "yes", "y", "1":
		return pgtype.Bool{Bool: true, Valid: true}
	case "false", "f", "no", "n", "0":
		return pgtype.Bool{Bool: false, Valid: true}
	default:
		return pgtype.Bool{Valid: false}
	}
}

// ToPgUUID converts a string to pgtype.UUID.
// Returns invalid if the string is empty or not a valid UUID.
func ToPgUUID(s string) pgtype.UUID {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

// ConvertField converts one raw cell according to spec. Empty cells become
// NULL values (or "" for AllowEmpty text); whether NULL is acceptable is
// checked later by ValidateRecord.
func ConvertField(spec FieldSpec, raw string) (any, error) {
	raw = CleanCell(raw)
	if spec.Normalizer != nil && raw != "" {
		raw = spec.Normalizer(raw)
	}

	switch spec.Type {
	case FieldText:
		if raw == "" && spec.AllowEmpty {
			return pgtype.Text{String: "", Valid: true}, nil
		}
		return ToPgText(raw), nil

	case FieldEnum:
		if raw == "" {
			return pgtype.Text{Valid: false}, nil
		}
		for _, v := range spec.EnumValues {
			if strings.EqualFold(raw, v) {
				return pgtype.Text{String: v, Valid: true}, nil
			}
		}
		return nil, fmt.Errorf("invalid enum value, expected one of %s", strings.Join(spec.EnumValues, ", "))

	case FieldDate:
		v := ToPgDate(raw)
		if raw != "" && !v.Valid {
			return nil, fmt.Errorf("invalid date")
		}
		return v, nil

	case FieldTimestamp:
		v := ToPgTimestamp(raw)
		if raw != "" && !v.Valid {
			return nil, fmt.Errorf("invalid timestamp")
		}
		return v, nil

	case FieldNumeric:
		v := ToPgNumeric(raw)
		if raw != "" && !v.Valid {
			return nil, fmt.Errorf("invalid numeric")
		}
		return v, nil

	case FieldInteger:
		v := ToPgInt8(raw)
		if raw != "" && !v.Valid {
			return nil, fmt.Errorf("invalid integer")
		}
		return v, nil

	case FieldBool:
		v := ToPgBool(raw)
		if raw != "" && !v.Valid {
			return nil, fmt.Errorf("invalid bool")
		}
		return v, nil

	case FieldUUID:
		v := ToPgUUID(raw)
		if raw != "" && !v.Valid {
			return nil, fmt.Errorf("invalid uuid")
		}
		return v, nil

	default:
		return nil, fmt.Errorf("unsupported field type %s", spec.Type)
	}
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching. The first occurrence of
// a duplicated header wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// CleanCell removes common CSV artifacts from a cell value:
// surrounding whitespace, the Excel formula prefix (="...") and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// isNull reports whether a converted value represents SQL NULL.
func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case pgtype.Text:
		return !x.Valid
	case pgtype.Date:
		return !x.Valid
	case pgtype.Timestamptz:
		return !x.Valid
	case pgtype.Numeric:
		return !x.Valid
	case pgtype.Int8:
		return !x.Valid
	case pgtype.Bool:
		return !x.Valid
	case pgtype.UUID:
		return !x.Valid
	default:
		return false
	}
}
