package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nstogner/plantchat/pkg/config"
	"github.com/nstogner/plantchat/pkg/store"
	"github.com/nstogner/plantchat/pkg/store/jsonl"
	"github.com/nstogner/plantchat/pkg/store/memory"
	"github.com/nstogner/plantchat/pkg/store/sqlite"
	"github.com/nstogner/plantchat/pkg/transport"
	"github.com/nstogner/plantchat/pkg/transport/gemini"
	"github.com/nstogner/plantchat/pkg/transport/genaisdk"
	"github.com/nstogner/plantchat/pkg/transport/mock"
)

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return transport.LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(w io.Writer, level string) {
	lv := parseLevel(level)
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", lv)
}

// openKV opens the configured backend. The returned func releases it.
func openKV(cfg config.Store) (store.KV, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.StoreMemory:
		return memory.New(), noop, nil
	case config.StoreJSONL:
		s, err := jsonl.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func newTransport(ctx context.Context, cfg config.Remote) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportMock:
		return &mock.Transport{}, nil
	case config.TransportREST:
		return gemini.New(gemini.Config{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			IdleTimeout:       cfg.IdleTimeout,
			SystemInstruction: cfg.SystemInstruction,
		}), nil
	case config.TransportGenAI:
		return genaisdk.New(ctx, genaisdk.Config{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			BaseURL:           cfg.BaseURL,
			IdleTimeout:       cfg.IdleTimeout,
			SystemInstruction: cfg.SystemInstruction,
		})
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
