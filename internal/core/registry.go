package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry   = make(map[string]TableDefinition)
	registryMu sync.RWMutex
)

// Register adds a destination to the registry. It panics on an invalid
// definition or a duplicate key, since registration happens in init.
func Register(def TableDefinition) {
	if err := validateDefinition(def); err != nil {
		panic(err.Error())
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("table already registered: %s", def.Info.Key))
	}

	if len(def.Info.Columns) == 0 {
		def.Info.Columns = make([]string, len(def.FieldSpecs))
		for i, spec := range def.FieldSpecs {
			def.Info.Columns[i] = spec.Name
		}
	}
	if def.Info.Table == "" {
		def.Info.Table = def.Info.Key
	}

	registry[def.Info.Key] = def
}

func validateDefinition(def TableDefinition) error {
	if strings.TrimSpace(def.Info.Key) == "" {
		return fmt.Errorf("table definition has no key")
	}
	if len(def.FieldSpecs) == 0 {
		return fmt.Errorf("table %s has no fields", def.Info.Key)
	}
	seen := make(map[string]bool, len(def.FieldSpecs))
	for _, spec := range def.FieldSpecs {
		col := spec.Column()
		if col == "" {
			return fmt.Errorf("table %s has a field with no name", def.Info.Key)
		}
		if seen[col] {
			return fmt.Errorf("table %s: duplicate column %s", def.Info.Key, col)
		}
		seen[col] = true
		if spec.Type == FieldEnum && len(spec.EnumValues) == 0 {
			return fmt.Errorf("table %s: enum field %s has no values", def.Info.Key, spec.Name)
		}
	}
	for _, name := range def.Info.UniqueKey {
		if def.FieldIndex(name) < 0 {
			return fmt.Errorf("table %s: unique key field %s is not defined", def.Info.Key, name)
		}
	}
	return nil
}

// Get returns a table definition by key.
func Get(key string) (TableDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// Lookup is Get with an ErrUnknownTable error for missing keys.
func Lookup(key string) (TableDefinition, error) {
	def, ok := Get(key)
	if !ok {
		return TableDefinition{}, fmt.Errorf("%w: %s", ErrUnknownTable, key)
	}
	return def, nil
}

// All returns every registered definition, sorted by group then key.
func All() []TableDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Group != result[j].Info.Group {
			return result[i].Info.Group < result[j].Info.Group
		}
		return result[i].Info.Key < result[j].Info.Key
	})
	return result
}

// ByGroup returns the definitions in group, sorted by key.
func ByGroup(group string) []TableDefinition {
	var result []TableDefinition
	for _, def := range All() {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}
	return result
}

// Groups returns the distinct group names in sorted order.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Info.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// TableCount returns the number of registered tables.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered tables. Used by tests.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]TableDefinition)
}
