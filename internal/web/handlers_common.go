package web

// handlers_common.go holds request parsing helpers and JSON response types
// shared by the handlers.

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseImportOptions reads import settings from a parsed multipart form:
// action, header, encoding, threshold and delimiter.
func (s *Server) parseImportOptions(r *http.Request) (core.ImportOptions, error) {
	opts := core.ImportOptions{
		HasHeader: true,
		Encoding:  s.cfg.Import.Encoding,
		Maps:      s.maps,
	}

	action, err := core.ParseImportAction(r.FormValue("action"))
	if err != nil {
		return opts, err
	}
	opts.Action = action

	if v := r.FormValue("header"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid header flag %q", v)
		}
		opts.HasHeader = b
	}

	if v := strings.TrimSpace(r.FormValue("encoding")); v != "" {
		opts.Encoding = v
	}
	if _, err := core.LookupEncoding(opts.Encoding); err != nil {
		return opts, err
	}

	if v := r.FormValue("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("invalid threshold %q", v)
		}
		opts.CommitThreshold = n
	}

	if v := r.FormValue("delimiter"); v != "" {
		d, err := parseDelimiter(v)
		if err != nil {
			return opts, err
		}
		opts.Delimiter = d
	}

	return opts, nil
}

// parseDelimiter accepts a single character or the names "tab" and "\t".
func parseDelimiter(v string) (rune, error) {
	switch strings.ToLower(v) {
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(v) != 1 {
		return 0, errors.New("delimiter must be a single character")
	}
	d, _ := utf8.DecodeRuneInString(v)
	if d == '"' || d == '\r' || d == '\n' || d == utf8.RuneError {
		return 0, fmt.Errorf("invalid delimiter %q", v)
	}
	return d, nil
}

// ColumnResponse describes one destination column.
type ColumnResponse struct {
	Name       string   `json:"name"`
	Column     string   `json:"column"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	MaxLength  int      `json:"maxLength,omitempty"`
	EnumValues []string `json:"enumValues,omitempty"`
}

// TableResponse describes a registered destination.
type TableResponse struct {
	Key     string           `json:"key"`
	Group   string           `json:"group"`
	Label   string           `json:"label"`
	Table   string           `json:"table"`
	Columns []ColumnResponse `json:"columns"`
}

func toTableResponse(def core.TableDefinition) TableResponse {
	cols := make([]ColumnResponse, len(def.FieldSpecs))
	for i, spec := range def.FieldSpecs {
		cols[i] = ColumnResponse{
			Name:       spec.Name,
			Column:     spec.Column(),
			Type:       spec.Type.String(),
			Required:   spec.Required,
			MaxLength:  spec.MaxLength,
			EnumValues: spec.EnumValues,
		}
	}
	return TableResponse{
		Key:     def.Info.Key,
		Group:   def.Info.Group,
		Label:   def.Info.Label,
		Table:   def.TableName(),
		Columns: cols,
	}
}

// ImportResultResponse wraps an import result for JSON encoding.
type ImportResultResponse struct {
	RunID         string    `json:"runId"`
	TableKey      string    `json:"tableKey"`
	FileName      string    `json:"fileName,omitempty"`
	Store         string    `json:"store"`
	Action        string    `json:"action"`
	RowsRead      int       `json:"rowsRead"`
	RowsImported  int       `json:"rowsImported"`
	ErrorMessages []string  `json:"errorMessages"`
	Status        string    `json:"status"`
	Succeeded     bool      `json:"succeeded"`
	Cancelled     bool      `json:"cancelled"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Duration      string    `json:"duration"`
	Error         string    `json:"error,omitempty"`
}

// toResultResponse converts a result and the error returned with it.
func toResultResponse(res *core.ImportResult, runErr error) ImportResultResponse {
	msgs := res.ErrorMessages
	if msgs == nil {
		msgs = []string{}
	}
	out := ImportResultResponse{
		RunID:         res.RunID,
		TableKey:      res.Destination,
		FileName:      res.ImportFile,
		Store:         res.Store,
		Action:        res.Action.String(),
		RowsRead:      res.RowsRead,
		RowsImported:  res.RowsImported,
		ErrorMessages: msgs,
		Status:        core.RunStatus(res, runErr),
		Succeeded:     runErr == nil && res.Succeeded(),
		Cancelled:     errors.Is(runErr, core.ErrCancelled),
		StartedAt:     res.StartTime,
		FinishedAt:    res.EndTime,
		Duration:      res.Duration().String(),
	}
	if runErr != nil {
		out.Error = core.FormatUserError(runErr)
	}
	return out
}
