// Package config loads relay configuration from CUE or TOML files.
//
// A .cue file is unified with the embedded schema, which carries the
// defaults and constraints. A .toml file is decoded over the defaults and
// then validated. A missing file yields the defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

//go:embed schema.cue
var schemaSource []byte

// File names searched by Find, in order.
const (
	CUEFile  = "relay.cue"
	TOMLFile = "relay.toml"
)

// Config is the full relay configuration.
type Config struct {
	API     APIConfig     `json:"api" toml:"api"`
	Journal JournalConfig `json:"journal" toml:"journal"`
	Store   StoreConfig   `json:"store" toml:"store"`
	Log     LogConfig     `json:"log" toml:"log"`
}

// APIConfig points the thunks at their backends.
type APIConfig struct {
	BlogURL    string `json:"blog_url" toml:"blog_url"`
	StreamsURL string `json:"streams_url" toml:"streams_url"`
	TimeoutMS  int    `json:"timeout_ms" toml:"timeout_ms"`
}

// JournalConfig locates the commit journal.
type JournalConfig struct {
	Path string `json:"path" toml:"path"`
}

// StoreConfig tunes the store.
type StoreConfig struct {
	MaxSteps int `json:"max_steps" toml:"max_steps"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `json:"level" toml:"level"`
}

// Default returns the built-in configuration. It matches the schema
// defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BlogURL:    "https://jsonplaceholder.typicode.com",
			StreamsURL: "http://localhost:3001",
			TimeoutMS:  10000,
		},
		Journal: JournalConfig{Path: "relay.db"},
		Store:   StoreConfig{MaxSteps: 1000},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path, choosing the format by extension. A missing file
// returns the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return ParseCUE(path, data)
	case ".toml":
		return ParseTOML(path, data)
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q (want .cue or .toml)", path, ext)
	}
}

// Find loads relay.cue or relay.toml from dir, whichever exists first.
// Neither existing yields the defaults.
func Find(dir string) (*Config, error) {
	for _, name := range []string{CUEFile, TOMLFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// ParseCUE unifies data with the schema and decodes the result.
func ParseCUE(name string, data []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	user := ctx.CompileBytes(data, cue.Filename(name))
	if err := user.Err(); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(user)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", name, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", name, err)
	}
	return &cfg, nil
}

// ParseTOML decodes data over the defaults. Unknown keys are rejected.
func ParseTOML(name string, data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse config %s: unknown keys %s", name, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", name, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs error
	errs = multierr.Append(errs, validateURL("api.blog_url", c.API.BlogURL))
	errs = multierr.Append(errs, validateURL("api.streams_url", c.API.StreamsURL))
	if c.API.TimeoutMS <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("api.timeout_ms must be positive, got %d", c.API.TimeoutMS))
	}
	if c.Journal.Path == "" {
		errs = multierr.Append(errs, errors.New("journal.path must not be empty"))
	}
	if c.Store.MaxSteps <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("store.max_steps must be positive, got %d", c.Store.MaxSteps))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Timeout returns the API timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutMS) * time.Millisecond
}

// SlogLevel returns the configured log level, Info when unset.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
