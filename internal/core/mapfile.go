package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MapFile is the on-disk form of a set of column maps:
//
//	tables:
//	  customers:
//	    columns:
//	      - name: customer_id
//	        header: "Customer #"
//	      - name: email
//	        index: 3
//	      - name: status
//	        default: active
type MapFile struct {
	Tables map[string]TableMap `yaml:"tables"`
}

// TableMap lists the column maps for one destination.
type TableMap struct {
	Columns []ColumnMap `yaml:"columns"`
}

// ColumnMap binds a destination field, named by FieldSpec name or database
// column, to a source position or header.
type ColumnMap struct {
	Name    string `yaml:"name"`
	Index   *int   `yaml:"index,omitempty"`
	Header  string `yaml:"header,omitempty"`
	Default string `yaml:"default,omitempty"`
}

// MapSet is a MapperFactory backed by a MapFile.
type MapSet struct {
	tables map[string]TableMap
}

// LoadMapFile reads and parses a YAML map file.
func LoadMapFile(path string) (*MapSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map file: %w", err)
	}
	return ParseMaps(data)
}

// ParseMaps parses YAML map definitions.
func ParseMaps(data []byte) (*MapSet, error) {
	var mf MapFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse map file: %w", err)
	}

	for key, tm := range mf.Tables {
		seen := make(map[string]bool, len(tm.Columns))
		for i, c := range tm.Columns {
			name := strings.ToLower(strings.TrimSpace(c.Name))
			if name == "" {
				return nil, fmt.Errorf("map %s: column %d has no name", key, i+1)
			}
			if seen[name] {
				return nil, fmt.Errorf("map %s: column %q mapped twice", key, c.Name)
			}
			seen[name] = true
			if c.Index != nil && *c.Index < 0 {
				return nil, fmt.Errorf("map %s: column %q has negative index", key, c.Name)
			}
			if c.Index != nil && c.Header != "" {
				return nil, fmt.Errorf("map %s: column %q sets both index and header", key, c.Name)
			}
		}
	}

	if mf.Tables == nil {
		mf.Tables = make(map[string]TableMap)
	}
	return &MapSet{tables: mf.Tables}, nil
}

// HasMap implements MapperFactory.
func (m *MapSet) HasMap(def TableDefinition) bool {
	_, ok := m.tables[def.Info.Key]
	return ok
}

// GetMap implements MapperFactory. Fields not named in the map stay unbound
// and are stored as NULL.
func (m *MapSet) GetMap(def TableDefinition) (Mapper, error) {
	tm, ok := m.tables[def.Info.Key]
	if !ok {
		return nil, fmt.Errorf("no map for table %s", def.Info.Key)
	}

	byName := make(map[string]ColumnMap, len(tm.Columns))
	for _, c := range tm.Columns {
		byName[strings.ToLower(strings.TrimSpace(c.Name))] = c
	}

	bindings := make([]ColumnBinding, len(def.FieldSpecs))
	matched := 0
	for i, spec := range def.FieldSpecs {
		b := ColumnBinding{Spec: spec, Index: -1}
		c, ok := byName[strings.ToLower(spec.Name)]
		if !ok {
			c, ok = byName[strings.ToLower(spec.Column())]
		}
		if ok {
			matched++
			b.Default = c.Default
			switch {
			case c.Index != nil:
				b.Index = *c.Index
			case c.Header != "":
				b.Header = c.Header
			}
		}
		bindings[i] = b
	}

	if matched != len(tm.Columns) {
		return nil, fmt.Errorf("map %s names columns the table does not have", def.Info.Key)
	}
	return NewFieldMapper(def, bindings)
}
