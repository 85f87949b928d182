package core

import (
	"fmt"
	"strings"
)

// Mapper converts one source row into one typed Record. Row is the 1-based
// row number used for error reporting. A conversion failure is reported as a
// *FieldError.
type Mapper interface {
	Map(row int, fields []string) (Record, error)
}

// HeaderBinder is implemented by mappers that resolve columns from the
// header row. Bind is called once, before the first Map.
type HeaderBinder interface {
	Bind(header []string) error
}

// MapperFactory supplies custom mappers per destination.
type MapperFactory interface {
	HasMap(def TableDefinition) bool
	GetMap(def TableDefinition) (Mapper, error)
}

// ColumnBinding ties one destination field to a source field.
type ColumnBinding struct {
	Spec    FieldSpec
	Index   int    // 0-based source field, -1 when unbound
	Header  string // Resolved against the header row by Bind when set
	Default string // Used when the source field is missing or empty
}

// FieldMapper is the standard Mapper: one binding per FieldSpec, each value
// converted with ConvertField.
type FieldMapper struct {
	def      TableDefinition
	bindings []ColumnBinding
}

// NewPositionalMapper maps source field i to FieldSpec i.
func NewPositionalMapper(def TableDefinition) *FieldMapper {
	bindings := make([]ColumnBinding, len(def.FieldSpecs))
	for i, spec := range def.FieldSpecs {
		bindings[i] = ColumnBinding{Spec: spec, Index: i}
	}
	return &FieldMapper{def: def, bindings: bindings}
}

// NewHeaderMapper maps fields by header name (case-insensitive). Bind must be
// called with the header row before Map.
func NewHeaderMapper(def TableDefinition) *FieldMapper {
	bindings := make([]ColumnBinding, len(def.FieldSpecs))
	for i, spec := range def.FieldSpecs {
		bindings[i] = ColumnBinding{Spec: spec, Index: -1, Header: spec.Name}
	}
	return &FieldMapper{def: def, bindings: bindings}
}

// NewFieldMapper builds a mapper from explicit bindings. Bindings must be
// given in FieldSpec order, one per spec.
func NewFieldMapper(def TableDefinition, bindings []ColumnBinding) (*FieldMapper, error) {
	if len(bindings) != len(def.FieldSpecs) {
		return nil, fmt.Errorf("mapper for %s: %d bindings for %d fields", def.Info.Key, len(bindings), len(def.FieldSpecs))
	}
	return &FieldMapper{def: def, bindings: bindings}, nil
}

// Bind resolves header-named bindings to field positions. A required field
// whose header is missing is an error; optional fields stay unbound.
func (m *FieldMapper) Bind(header []string) error {
	idx := MakeHeaderIndex(header)
	var missing []string
	for i := range m.bindings {
		b := &m.bindings[i]
		if b.Header == "" {
			continue
		}
		pos, ok := idx[strings.ToLower(CleanCell(b.Header))]
		if !ok {
			// Fall back to the database column name.
			pos, ok = idx[strings.ToLower(b.Spec.Column())]
		}
		if !ok {
			b.Index = -1
			if b.Spec.Required && b.Default == "" {
				missing = append(missing, b.Header)
			}
			continue
		}
		b.Index = pos
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required column in header: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Map implements Mapper.
func (m *FieldMapper) Map(row int, fields []string) (Record, error) {
	rec := make(Record, len(m.bindings))
	for i, b := range m.bindings {
		raw := b.Default
		if b.Index >= 0 && b.Index < len(fields) {
			raw = fields[b.Index]
			if b.Default != "" && strings.TrimSpace(raw) == "" {
				raw = b.Default
			}
		}

		v, err := ConvertField(b.Spec, raw)
		if err != nil {
			fe := &FieldError{Row: row, Field: b.Index, Value: raw, Err: err}
			if b.Index < 0 {
				fe.Field = -1
				fe.Name = b.Header
				if fe.Name == "" {
					fe.Name = b.Spec.Name
				}
			}
			return nil, fe
		}
		rec[i] = v
	}
	return rec, nil
}

// Bindings returns a copy of the mapper's bindings.
func (m *FieldMapper) Bindings() []ColumnBinding {
	out := make([]ColumnBinding, len(m.bindings))
	copy(out, m.bindings)
	return out
}

// resolveMapper picks the mapper for a run: explicit mapper, then factory,
// then header mapping when a header is present, then positional mapping.
func resolveMapper(def TableDefinition, opts ImportOptions) (Mapper, error) {
	if opts.Mapper != nil {
		return opts.Mapper, nil
	}
	if opts.Maps != nil && opts.Maps.HasMap(def) {
		m, err := opts.Maps.GetMap(def)
		if err != nil {
			return nil, fmt.Errorf("get map for %s: %w", def.Info.Key, err)
		}
		return m, nil
	}
	if opts.HasHeader {
		return NewHeaderMapper(def), nil
	}
	return NewPositionalMapper(def), nil
}
