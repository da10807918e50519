package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/nstogner/plantchat/pkg/store"
	"github.com/nstogner/plantchat/pkg/transport"
)

// ErrConversationBusy is returned when a conversation already has a live
// controller.
var ErrConversationBusy = errors.New("conversation is open in another session")

// Options configure conversations created by the server.
type Options struct {
	HistoryWindow int
	Retention     int
	Greeting      string
	// SubmitRate and SubmitBurst bound submits per connection.
	SubmitRate  float64
	SubmitBurst int
}

// Server exposes conversations over REST and websockets. Each websocket
// connection owns one controller; a conversation id can be live at most once.
type Server struct {
	kv        store.KV
	transport transport.Transport
	opts      Options
	srv       *http.Server

	// mu guards srv and live.
	mu   sync.Mutex
	live map[string]struct{}
}

// New creates a new Server.
func New(kv store.KV, t transport.Transport, opts Options) *Server {
	if opts.SubmitRate <= 0 {
		opts.SubmitRate = 1
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = 3
	}
	return &Server{
		kv:        kv,
		transport: t,
		opts:      opts,
		live:      make(map[string]struct{}),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Conversations
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)

	// WebSocket
	mux.HandleFunc("GET /api/conversations/{id}/chat", s.handleChatWebSocket)

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	slog.Info("Starting web server", "addr", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// acquire marks id as live. It fails when another connection holds it.
func (s *Server) acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[id]; ok {
		return ErrConversationBusy
	}
	s.live[id] = struct{}{}
	return nil
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, id)
}

func (s *Server) isLive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[id]
	return ok
}

func (s *Server) conversationStore(id string) *store.ConversationStore {
	return store.NewConversationStore(s.kv, id, s.opts.Retention)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify origin in prod, allow all in dev
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("API Error", "status", status, "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
