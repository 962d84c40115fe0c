// Package config loads runtime configuration for the configrepo binary.
//
// Precedence (highest to lowest): flags > env vars > config file > defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Default configuration values.
const (
	DefaultConfigFile = "configrepo.yaml"
	DefaultStatePath  = ".configrepo/state.db"
	DefaultListen     = ":8080"
	DefaultHungAfter  = 30 * time.Minute
	DefaultLogLevel   = "info"
	DefaultIngestJobs = 4

	envPrefix = "CONFIGREPO_"
)

// Config holds all runtime options.
type Config struct {
	StatePath  string            `koanf:"state_path"`
	Listen     string            `koanf:"listen"`
	HungAfter  time.Duration     `koanf:"hung_after"`
	LogLevel   string            `koanf:"log_level"`
	IngestJobs int               `koanf:"ingest_jobs"`
	Sources    map[string]string `koanf:"sources"`
}

// Load reads configuration from cfgFile (or ./configrepo.yaml when present),
// CONFIGREPO_* environment variables, and explicitly set flags.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"state_path":  DefaultStatePath,
		"listen":      DefaultListen,
		"hung_after":  DefaultHungAfter.String(),
		"log_level":   DefaultLogLevel,
		"ingest_jobs": DefaultIngestJobs,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// CONFIGREPO_HUNG_AFTER -> hung_after, CONFIGREPO_SOURCES__WEB -> sources.web
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if key == "state" {
				key = "state_path"
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be defaulted sensibly.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if c.HungAfter <= 0 {
		return fmt.Errorf("hung_after must be positive, got %s", c.HungAfter)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	for name, path := range c.Sources {
		if path == "" {
			return fmt.Errorf("source %q has no path", name)
		}
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// SourceNames lists configured sources, sorted.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", s)
	}
	return lvl, nil
}
