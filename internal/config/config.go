// Package config resolves regionseed settings from built-in defaults, an
// optional HCL or JSON file, .env files and REGIONSEED_* variables, in
// increasing order of precedence.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/agentic-research/regionseed/api"
	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultEnvFiles are loaded, when present, before environment overrides.
var DefaultEnvFiles = []string{".env", ".env.local"}

type StoreConfig struct {
	Backend    string `hcl:"backend,optional" env:"REGIONSEED_STORE"`
	URI        string `hcl:"uri,optional" env:"REGIONSEED_MONGO_URI"`
	Database   string `hcl:"database,optional" env:"REGIONSEED_DATABASE"`
	SQLitePath string `hcl:"sqlite_path,optional" env:"REGIONSEED_SQLITE_PATH"`
}

type Config struct {
	Store    *StoreConfig `hcl:"store,block"`
	DataDir  string       `hcl:"data_dir,optional"`
	LogLevel string       `hcl:"log_level,optional"`
	// Timeout bounds a whole run, as a Go duration ("90s"). Empty means none.
	Timeout string `hcl:"timeout,optional"`

	Version string      `hcl:"version,optional"`
	Levels  []api.Level `hcl:"level,block"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Store: &StoreConfig{
			Backend:    BackendMongo,
			URI:        "mongodb://localhost:27017",
			Database:   "pure-fish",
			SQLitePath: "regionseed.db",
		},
		DataDir:  ".",
		LogLevel: "info",
	}
}

// Load builds the configuration: defaults, then the file at path (skipped
// when empty), then envFiles, then the process environment. The result is
// not validated; callers apply their flags first, then call Validate.
func Load(path string, envFiles []string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return c, nil
}

// decodeFile overlays the fields present in the file onto c.
func (c *Config) decodeFile(path string) error {
	var f Config
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if f.Store != nil {
		overlay(&c.Store.Backend, f.Store.Backend)
		overlay(&c.Store.URI, f.Store.URI)
		overlay(&c.Store.Database, f.Store.Database)
		overlay(&c.Store.SQLitePath, f.Store.SQLitePath)
	}
	overlay(&c.DataDir, f.DataDir)
	overlay(&c.LogLevel, f.LogLevel)
	overlay(&c.Timeout, f.Timeout)
	overlay(&c.Version, f.Version)
	if len(f.Levels) > 0 {
		c.Levels = f.Levels
	}
	return nil
}

// applyEnv overrides settings with the REGIONSEED_* variables that are set.
func (c *Config) applyEnv() error {
	if err := env.Parse(c.Store); err != nil {
		return err
	}
	top := struct {
		DataDir  string `env:"REGIONSEED_DATA_DIR"`
		LogLevel string `env:"REGIONSEED_LOG_LEVEL"`
		Timeout  string `env:"REGIONSEED_TIMEOUT"`
	}{c.DataDir, c.LogLevel, c.Timeout}
	if err := env.Parse(&top); err != nil {
		return err
	}
	c.DataDir, c.LogLevel, c.Timeout = top.DataDir, top.LogLevel, top.Timeout
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// LoadEnv loads the env files that exist and returns how many it loaded.
// Variables already set in the environment win over file values.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Validate checks the settings that do not depend on the datasets.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMongo:
		if c.Store.URI == "" || c.Store.Database == "" {
			return fmt.Errorf("mongo store requires uri and database")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite store requires sqlite_path")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q (want mongo, sqlite or memory)", c.Store.Backend)
	}
	if _, err := c.RunTimeout(); err != nil {
		return err
	}
	if _, ok := logLevels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// RunTimeout parses Timeout; zero means no limit.
func (c *Config) RunTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q", c.Timeout)
	}
	return d, nil
}

// Hierarchy returns the normalized, validated level chain: the configured
// levels, or the province/city/county default when none are configured.
func (c *Config) Hierarchy() (*api.Hierarchy, error) {
	h := api.DefaultHierarchy()
	if len(c.Levels) > 0 {
		h = &api.Hierarchy{Version: c.Version, Levels: append([]api.Level(nil), c.Levels...)}
		h.Normalize()
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hierarchy: %w", err)
	}
	return h, nil
}

var logLevels = map[string]logrus.Level{
	"silent": logrus.PanicLevel,
	"error":  logrus.ErrorLevel,
	"warn":   logrus.WarnLevel,
	"info":   logrus.InfoLevel,
	"debug":  logrus.DebugLevel,
}

func (c *Config) LogrusLogLevel() logrus.Level {
	if l, ok := logLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return logrus.InfoLevel
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(c.LogrusLogLevel())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}
