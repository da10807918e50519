package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nstogner/plantchat/pkg/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve conversations over websockets",
	Long: `Start the HTTP server.

Each websocket connection to /api/conversations/{id}/chat drives one
conversation. REST endpoints list, read and delete stored conversations.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(os.Stderr, cfg.LogLevel)
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := openKV(cfg.Store)
	if err != nil {
		slog.Error("Failed to initialize store", "backend", cfg.Store.Backend, "error", err)
		return err
	}
	defer closeKV()

	t, err := newTransport(ctx, cfg.Remote)
	if err != nil {
		slog.Error("Failed to initialize transport", "transport", cfg.Remote.Transport, "error", err)
		return err
	}

	srv := server.New(kv, t, server.Options{
		HistoryWindow: cfg.Chat.HistoryWindow,
		Retention:     cfg.Chat.Retention,
		Greeting:      cfg.Chat.Greeting,
		SubmitRate:    cfg.Server.SubmitRate,
		SubmitBurst:   cfg.Server.SubmitBurst,
	})

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
		return err
	}
	return nil
}
