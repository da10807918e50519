package server

import (
	"errors"
	"net/http"

	"github.com/nstogner/plantchat/pkg/domain"
	"github.com/nstogner/plantchat/pkg/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Conversations ---

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.kv.(store.Lister)
	if !ok {
		s.errorResponse(w, http.StatusNotImplemented, errors.New("store backend cannot list conversations"))
		return
	}
	keys, err := lister.Keys(r.Context(), store.Key(""))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := store.ConversationID(k); ok {
			ids = append(ids, id)
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"conversations": ids})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msgs := s.conversationStore(id).Load(r.Context())
	if msgs == nil {
		msgs = []domain.Message{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"id":       id,
		"live":     s.isLive(id),
		"messages": msgs,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Hold the slot so no connection opens the conversation mid-delete.
	if err := s.acquire(id); err != nil {
		s.errorResponse(w, http.StatusConflict, err)
		return
	}
	defer s.release(id)
	if err := s.conversationStore(id).Clear(r.Context()); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
