package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix recognized on environment variables.
	EnvPrefix = "GANTTFORGE_"
	// Delimiter separates nested keys, as in "server.port".
	Delimiter = "."
)

// searchPaths are tried in order when no explicit config file is given.
var searchPaths = []string{
	"ganttforge.yaml",
	"ganttforge.yml",
	"ganttforge.json",
	"configs/ganttforge.yaml",
	"/etc/ganttforge/config.yaml",
}

// Loader layers configuration sources onto a koanf instance.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load assembles the configuration, lowest priority first: built-in
// defaults, a config file (the given path, or the first hit among
// searchPaths), GANTTFORGE_* environment variables, then caller
// overrides. The result is validated before being returned.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	if err := l.k.Load(structs.Provider(DefaultConfig(), "mapstructure"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.mergeFile(configPath); err != nil {
			return nil, err
		}
	} else if found := firstExisting(searchPaths); found != "" {
		// Optional; a broken file in a standard location is skipped.
		_ = l.mergeFile(found)
	}

	// Double underscores mark nesting so single underscores stay usable
	// inside key names: GANTTFORGE_SERVER__PORT selects server.port,
	// GANTTFORGE_SOLVER__ALLOW_NEGATIVE_LAG selects solver.allow_negative_lag.
	envSource := env.Provider(EnvPrefix, Delimiter, func(raw string) string {
		key := strings.ToLower(strings.TrimPrefix(raw, EnvPrefix))
		return strings.ReplaceAll(key, "__", Delimiter)
	})
	if err := l.k.Load(envSource, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile parses one config file, chosen by extension, into the stack.
func (l *Loader) mergeFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = kyaml.Parser()
	case ".json":
		parser = kjson.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %s", path)
	}
	if err := l.k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Get returns the raw value stored under key, or nil.
func (l *Loader) Get(key string) interface{} { return l.k.Get(key) }

// GetString returns the value under key coerced to a string.
func (l *Loader) GetString(key string) string { return l.k.String(key) }

// GetInt returns the value under key coerced to an int.
func (l *Loader) GetInt(key string) int { return l.k.Int(key) }

// GetBool returns the value under key coerced to a bool.
func (l *Loader) GetBool(key string) bool { return l.k.Bool(key) }

// Set writes a value into the stack, overriding all sources.
func (l *Loader) Set(key string, value interface{}) error { return l.k.Set(key, value) }

// Print dumps the merged key space for debugging.
func (l *Loader) Print() string { return l.k.Sprint() }

// Load builds a fresh Loader and runs it, for callers that do not need
// key-level access afterwards.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}

// LoadOrDie is Load for program start-up paths where a bad config is
// unrecoverable.
func LoadOrDie(configPath string, overrides map[string]interface{}) *Config {
	cfg, err := Load(configPath, overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
