package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
log_level = "debug"

[remote]
transport = "rest"
api_key = "from-file"
idle_timeout = "5s"

[chat]
history_window = 6

[store]
backend = "jsonl"
path = "/tmp/plantchat"
`)
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("PLANTCHAT_RETENTION", "20")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env override", cfg.Remote.APIKey)
	}
	if cfg.Remote.IdleTimeout != 5*time.Second {
		t.Errorf("IdleTimeout = %v", cfg.Remote.IdleTimeout)
	}
	if cfg.Chat.HistoryWindow != 6 || cfg.Chat.Retention != 20 {
		t.Errorf("Chat = %+v", cfg.Chat)
	}
	if cfg.Store.Backend != StoreJSONL || cfg.LogLevel != "debug" {
		t.Errorf("Store = %+v LogLevel = %q", cfg.Store, cfg.LogLevel)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestMissingAPIKeyIsConfigError(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("PLANTCHAT_API_KEY", "")
	path := writeFile(t, "[remote]\ntransport = \"rest\"\n")

	_, err := Load(path)
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Field != "remote.api_key" {
		t.Fatalf("err = %v, want *Error on remote.api_key", err)
	}
}

func TestMockNeedsNoKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("PLANTCHAT_API_KEY", "")
	t.Setenv("PLANTCHAT_TRANSPORT", "mock")
	t.Setenv("PLANTCHAT_STORE", "memory")
	if _, err := Load(writeFile(t, "")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"bad transport", func(c *Config) { c.Remote.Transport = "grpc" }, "remote.transport"},
		{"zero window", func(c *Config) { c.Chat.HistoryWindow = 0 }, "chat.history_window"},
		{"negative retention", func(c *Config) { c.Chat.Retention = -1 }, "chat.retention"},
		{"bad backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"zero rate", func(c *Config) { c.Server.SubmitRate = 0 }, "server.submit_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Remote.APIKey = "k"
			tt.mut(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() = %v, want error on %s", err, tt.field)
			}
		})
	}

	cfg := Default()
	cfg.Remote.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config with key invalid: %v", err)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	_, err := Load(writeFile(t, "[chat]\nhistory_windw = 3\n"))
	if err == nil || !strings.Contains(err.Error(), "history_windw") {
		t.Errorf("err = %v, want unknown key error", err)
	}
}

func TestBadEnvNumber(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("PLANTCHAT_HISTORY_WINDOW", "lots")
	_, err := Load(writeFile(t, ""))
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Field != "PLANTCHAT_HISTORY_WINDOW" {
		t.Errorf("err = %v", err)
	}
}
