package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nstogner/plantchat/pkg/controller"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Client frame types.
const (
	FrameSubmit = "submit"
	FrameCancel = "cancel"
	FrameClear  = "clear"
)

// Server frame types.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// ErrRateLimited is reported when a client submits too quickly.
var ErrRateLimited = errors.New("too many messages, slow down")

// ClientFrame is a message from the browser.
type ClientFrame struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Context string `json:"context,omitempty"`
}

// ServerFrame is a message to the browser. Snapshot fields are inlined.
type ServerFrame struct {
	Type string `json:"type"`
	*controller.Snapshot
	Error string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev/Prod separation handled elsewhere or allow local)
	},
}

func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Missing conversation ID", http.StatusBadRequest)
		return
	}
	if err := s.acquire(id); err != nil {
		s.errorResponse(w, http.StatusConflict, err)
		return
	}
	defer s.release(id)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	ctrl := controller.New(s.transport, s.conversationStore(id), controller.Options{
		ID:            id,
		HistoryWindow: s.opts.HistoryWindow,
		Greeting:      s.opts.Greeting,
	})
	// Dispose closes the subscription, which ends the writer loop.
	defer ctrl.Wait()
	defer ctrl.Dispose()

	ctx := context.WithoutCancel(r.Context())
	if err := ctrl.Open(ctx, r.URL.Query().Get("context")); err != nil {
		slog.Error("Failed to open conversation", "id", id, "error", err)
		return
	}
	slog.Info("Chat connected", "id", id, "remote", r.RemoteAddr)

	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	errs := make(chan error, 4)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer Loop
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			var frame ServerFrame
			select {
			case <-done:
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				frame = ServerFrame{Type: FrameSnapshot, Snapshot: &snap}
			case err := <-errs:
				frame = ServerFrame{Type: FrameError, Error: err.Error()}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					slog.Debug("Ping failed", "id", id, "error", err)
					return
				}
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(frame); err != nil {
				slog.Error("WebSocket write error", "id", id, "error", err)
				return
			}
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(s.opts.SubmitRate), s.opts.SubmitBurst)
	report := func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	// Reader Loop
	for {
		var msg ClientFrame
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			slog.Debug("WebSocket read error", "id", id, "error", err)
			break
		}

		switch msg.Type {
		case FrameSubmit:
			if !limiter.Allow() {
				report(ErrRateLimited)
				continue
			}
			if err := ctrl.Submit(ctx, msg.Text, msg.Context); err != nil {
				report(err)
			}
		case FrameCancel:
			ctrl.Cancel()
		case FrameClear:
			if err := ctrl.ClearHistory(ctx); err != nil {
				report(err)
			}
		default:
			report(errors.New("unknown frame type " + msg.Type))
		}
	}

	close(done)
	wg.Wait()
	slog.Info("Chat disconnected", "id", id)
}
