// Package config loads plantchat settings from defaults, an optional TOML file
// and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Transport names.
const (
	TransportREST  = "rest"
	TransportGenAI = "genai"
	TransportMock  = "mock"
)

// Store backend names.
const (
	StoreSQLite = "sqlite"
	StoreJSONL  = "jsonl"
	StoreMemory = "memory"
)

// Config is the full process configuration.
type Config struct {
	LogLevel string `toml:"log_level"`
	Remote   Remote `toml:"remote"`
	Chat     Chat   `toml:"chat"`
	Store    Store  `toml:"store"`
	Server   Server `toml:"server"`
}

// Remote configures the generative service.
type Remote struct {
	Transport         string        `toml:"transport"`
	APIKey            string        `toml:"api_key"`
	Model             string        `toml:"model"`
	BaseURL           string        `toml:"base_url"`
	IdleTimeout       time.Duration `toml:"idle_timeout"`
	SystemInstruction string        `toml:"system_instruction"`
}

// Chat configures conversation behaviour.
type Chat struct {
	HistoryWindow int    `toml:"history_window"`
	Retention     int    `toml:"retention"`
	Greeting      string `toml:"greeting"`
}

// Store configures the persistence backend.
type Store struct {
	Backend string `toml:"backend"`
	// Path is the database file for sqlite or the directory for jsonl.
	Path string `toml:"path"`
}

// Server configures the websocket adapter.
type Server struct {
	Addr        string  `toml:"addr"`
	SubmitRate  float64 `toml:"submit_rate"`
	SubmitBurst int     `toml:"submit_burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Remote: Remote{
			Transport:   TransportREST,
			Model:       "gemini-2.0-flash",
			IdleTimeout: 30 * time.Second,
			SystemInstruction: "You are a friendly assistant that helps people care for their house plants. " +
				"Keep answers short and practical.",
		},
		Chat: Chat{
			HistoryWindow: 8,
			Retention:     50,
		},
		Store: Store{
			Backend: StoreSQLite,
			Path:    "plantchat.db",
		},
		Server: Server{
			Addr:        ":8080",
			SubmitRate:  1,
			SubmitBurst: 3,
		},
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "plantchat", "config.toml")
}

// Load builds the configuration with Resolve and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := Resolve(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Resolve applies the TOML file and environment overrides to the defaults
// without validating. An explicit path must exist; otherwise the file at
// DefaultPath is used when present.
func Resolve(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if p := DefaultPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes the file at path on top of cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return &Error{Field: keys[0], Message: "unknown setting in " + path + ": " + strings.Join(keys, ", ")}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ApplyEnvOverrides applies GEMINI_API_KEY and PLANTCHAT_* variables.
func (c *Config) ApplyEnvOverrides() error {
	c.LogLevel = getEnv("PLANTCHAT_LOG_LEVEL", getEnv("LOG_LEVEL", c.LogLevel))

	c.Remote.APIKey = getEnv("PLANTCHAT_API_KEY", getEnv("GEMINI_API_KEY", c.Remote.APIKey))
	c.Remote.Transport = getEnv("PLANTCHAT_TRANSPORT", c.Remote.Transport)
	c.Remote.Model = getEnv("PLANTCHAT_MODEL", c.Remote.Model)
	c.Remote.BaseURL = getEnv("PLANTCHAT_BASE_URL", c.Remote.BaseURL)
	c.Remote.SystemInstruction = getEnv("PLANTCHAT_SYSTEM_INSTRUCTION", c.Remote.SystemInstruction)

	c.Store.Backend = getEnv("PLANTCHAT_STORE", c.Store.Backend)
	c.Store.Path = getEnv("PLANTCHAT_STORE_PATH", c.Store.Path)
	c.Server.Addr = getEnv("PLANTCHAT_ADDR", c.Server.Addr)
	c.Chat.Greeting = getEnv("PLANTCHAT_GREETING", c.Chat.Greeting)

	var errs []error
	if v := os.Getenv("PLANTCHAT_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, &Error{Field: "PLANTCHAT_IDLE_TIMEOUT", Message: err.Error()})
		}
		c.Remote.IdleTimeout = d
	}
	for key, dst := range map[string]*int{
		"PLANTCHAT_HISTORY_WINDOW": &c.Chat.HistoryWindow,
		"PLANTCHAT_RETENTION":      &c.Chat.Retention,
		"PLANTCHAT_SUBMIT_BURST":   &c.Server.SubmitBurst,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, &Error{Field: key, Message: "must be an integer"})
				continue
			}
			*dst = n
		}
	}
	if v := os.Getenv("PLANTCHAT_SUBMIT_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, &Error{Field: "PLANTCHAT_SUBMIT_RATE", Message: "must be a number"})
		}
		c.Server.SubmitRate = f
	}
	return errors.Join(errs...)
}

// Error describes one invalid setting. Missing credentials are reported as an
// Error on remote.api_key and are fatal at startup.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks every setting and joins all problems into one error whose
// parts are *Error.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &Error{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		add("log_level", "invalid level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	switch c.Remote.Transport {
	case TransportREST, TransportGenAI:
		if strings.TrimSpace(c.Remote.APIKey) == "" {
			add("remote.api_key", "missing API key; set GEMINI_API_KEY or use transport %q", TransportMock)
		}
		if c.Remote.Model == "" {
			add("remote.model", "must not be empty")
		}
	case TransportMock:
	default:
		add("remote.transport", "invalid transport %q, must be one of: rest, genai, mock", c.Remote.Transport)
	}
	if c.Remote.IdleTimeout < 0 {
		add("remote.idle_timeout", "must not be negative")
	}

	if c.Chat.HistoryWindow <= 0 {
		add("chat.history_window", "must be positive, got %d", c.Chat.HistoryWindow)
	}
	if c.Chat.Retention <= 0 {
		add("chat.retention", "must be positive, got %d", c.Chat.Retention)
	}

	switch c.Store.Backend {
	case StoreSQLite, StoreJSONL:
		if c.Store.Path == "" {
			add("store.path", "required for the %s backend", c.Store.Backend)
		}
	case StoreMemory:
	default:
		add("store.backend", "invalid backend %q, must be one of: sqlite, jsonl, memory", c.Store.Backend)
	}

	if c.Server.SubmitRate <= 0 {
		add("server.submit_rate", "must be positive")
	}
	if c.Server.SubmitBurst <= 0 {
		add("server.submit_burst", "must be positive")
	}
	return errors.Join(errs...)
}
