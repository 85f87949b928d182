package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVOption configures a CSVSource.
type CSVOption func(*CSVSource)

// WithDelimiter sets the field delimiter (default ',').
func WithDelimiter(d rune) CSVOption {
	return func(s *CSVSource) {
		if d != 0 {
			s.reader.Comma = d
		}
	}
}

// WithComment sets the comment rune; lines starting with it are ignored.
func WithComment(c rune) CSVOption {
	return func(s *CSVSource) {
		s.reader.Comment = c
	}
}

// WithSkipEmptyRecords controls whether rows whose fields are all blank are
// skipped (default true).
func WithSkipEmptyRecords(skip bool) CSVOption {
	return func(s *CSVSource) {
		s.skipEmpty = skip
	}
}

// CSVSource reads rows from decoded CSV text one at a time.
type CSVSource struct {
	reader    *csv.Reader
	skipEmpty bool
	line      int
}

// NewCSVSource creates a source over UTF-8 text. Quotes are parsed leniently
// and rows may have differing field counts; the Mapper decides what a short
// row means.
func NewCSVSource(r io.Reader, opts ...CSVOption) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	s := &CSVSource{reader: cr, skipEmpty: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next row. It returns io.EOF when the source is exhausted.
// Parse failures are returned as errors containing "parse error".
func (s *CSVSource) Next() ([]string, error) {
	for {
		rec, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("csv %w", perr)
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		s.line, _ = s.reader.FieldPos(0)
		if s.skipEmpty && isEmptyRow(rec) {
			continue
		}
		return rec, nil
	}
}

// Line returns the source line of the most recently returned row.
func (s *CSVSource) Line() int {
	return s.line
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
