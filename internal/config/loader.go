package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FlagKeys maps command-line flag names to config keys. Only flags that were
// set on the command line override other sources.
var FlagKeys = map[string]string{
	"driver":         "database.driver",
	"database-url":   "database.url",
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"port":           "server.port",
	"threshold":      "import.commit_threshold",
	"encoding":       "import.encoding",
	"map":            "import.map_file",
	"max-concurrent": "import.max_concurrent",
	"auto-migrate":   "database.auto_migrate",
}

// Options controls where Load reads from.
type Options struct {
	// File is an optional YAML config file. It must exist when set.
	File string
	// Flags are applied after the environment when non-nil.
	Flags *pflag.FlagSet
	// Overrides are config keys set by the program itself, applied last.
	Overrides map[string]any
}

// field describes one leaf setting, derived from struct tags.
type field struct {
	key    string // koanf path: "database.url"
	env    string
	envAlt string
	def    string
}

// Load reads configuration with precedence
// defaults < file < env < flags < overrides, then validates the result.
func Load(opts Options) (*Config, error) {
	fields := collectFields(reflect.TypeOf(Config{}), "")
	k := koanf.New(".")

	defaults := make(map[string]any)
	for _, f := range fields {
		if f.def != "" {
			defaults[f.key] = f.def
		}
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config load: defaults: %w", err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config load: read %s: %w", opts.File, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envMapper(fields)), nil); err != nil {
		return nil, fmt.Errorf("config load: environment: %w", err)
	}

	if opts.Flags != nil {
		err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("config load: flags: %w", err)
		}
	}

	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("config load: overrides: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config load: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error. Use it only in main.
func MustLoad(opts Options) *Config {
	cfg, err := Load(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// collectFields walks the struct type and returns its tagged leaf settings.
func collectFields(t reflect.Type, prefix string) []field {
	var out []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Tag.Get("koanf")
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		if sf.Type.Kind() == reflect.Struct {
			out = append(out, collectFields(sf.Type, key)...)
			continue
		}

		out = append(out, field{
			key:    key,
			env:    sf.Tag.Get("env"),
			envAlt: sf.Tag.Get("envAlt"),
			def:    sf.Tag.Get("default"),
		})
	}
	return out
}

// envMapper maps environment variables to config keys. Empty values are
// ignored, and an alternate name only applies when the primary is unset.
func envMapper(fields []field) func(key, value string) (string, any) {
	byEnv := make(map[string]field, len(fields))
	for _, f := range fields {
		if f.env != "" {
			byEnv[f.env] = f
		}
		if f.envAlt != "" {
			byEnv[f.envAlt] = f
		}
	}

	return func(key, value string) (string, any) {
		f, ok := byEnv[key]
		if !ok || value == "" {
			return "", nil
		}
		if key == f.envAlt && os.Getenv(f.env) != "" {
			return "", nil
		}
		return f.key, value
	}
}
