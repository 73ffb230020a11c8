// Package config loads the edgeid configuration file.
//
// The file is YAML. It is unified with an embedded CUE schema that rejects
// unknown keys and out-of-range values and fills in defaults.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/edgeid/internal/identity"
	"github.com/roach88/edgeid/internal/store"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded configuration.
type Config struct {
	Datastore            Datastore `json:"datastore" yaml:"datastore"`
	LogLevel             string    `json:"log_level" yaml:"log_level"`
	MetricsAddr          string    `json:"metrics_addr" yaml:"metrics_addr"`
	AdvertisingNamespace string    `json:"advertising_namespace" yaml:"advertising_namespace"`
	OrgID                string    `json:"org_id" yaml:"org_id"`
}

// Datastore selects the persistence backend.
type Datastore struct {
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema defaults are invalid: %v", err))
	}
	return cfg
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates YAML data against the schema and decodes it with
// defaults filled in. Empty data yields the defaults.
func Parse(data []byte) (*Config, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return unify(raw)
}

// Validate checks cfg against the schema, for configurations assembled or
// modified in code (e.g. by command-line flags).
func Validate(cfg *Config) error {
	_, err := unify(cfg)
	return err
}

func unify(v any) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def.Unify(ctx.Encode(v))
	if err := value.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// SlogLevel returns the slog level named by LogLevel.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StoreConfig returns the store configuration for the datastore section.
func (c *Config) StoreConfig(logger *slog.Logger) store.Config {
	return store.Config{
		Backend: store.Backend(c.Datastore.Backend),
		Path:    c.Datastore.Path,
		Logger:  logger,
	}
}

// StateOptions returns the identity state options the configuration
// implies.
func (c *Config) StateOptions() []identity.Option {
	return []identity.Option{identity.WithAdvertisingNamespace(c.AdvertisingNamespace)}
}
