package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/focusrelay/pkg/persistence/chatstore"
)

const defaultChatListLimit = 100

type chatResponse struct {
	Chat     chatstore.Conversation `json:"chat"`
	Messages []chatstore.StoredTurn `json:"messages"`
}

type modelsResponse struct {
	ChatModels      []string `json:"chatModels"`
	EmbeddingModels []string `json:"embeddingModels"`
}

func (s *Server) handleListChats(w http.ResponseWriter, req *http.Request) {
	limit := defaultChatListLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	chats, err := s.relay.Store.ListConversations(req.Context(), limit)
	if err != nil {
		log.Error().Err(err).Str("component", "server").Msg("list chats failed")
		http.Error(w, "list chats failed", http.StatusInternalServerError)
		return
	}
	if chats == nil {
		chats = []chatstore.Conversation{}
	}
	writeJSON(w, map[string]any{"chats": chats})
}

func (s *Server) handleGetChat(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	chat, err := s.relay.Store.GetConversation(req.Context(), id)
	if stderrors.Is(err, chatstore.ErrNotFound) {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("component", "server").Str("chat_id", id).Msg("get chat failed")
		http.Error(w, "get chat failed", http.StatusInternalServerError)
		return
	}
	turns, err := s.relay.Store.ListTurns(req.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("component", "server").Str("chat_id", id).Msg("list turns failed")
		http.Error(w, "list turns failed", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []chatstore.StoredTurn{}
	}
	writeJSON(w, chatResponse{Chat: chat, Messages: turns})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	resp := modelsResponse{ChatModels: []string{}, EmbeddingModels: []string{}}
	if s.catalog != nil {
		resp.ChatModels = s.catalog.ChatNames()
		resp.EmbeddingModels = s.catalog.EmbeddingNames()
	}
	writeJSON(w, resp)
}

func (s *Server) handleFocusModes(w http.ResponseWriter, _ *http.Request) {
	modes := []string{}
	for _, m := range s.relay.Registry.Modes() {
		modes = append(modes, string(m))
	}
	writeJSON(w, map[string]any{"focusModes": modes})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "server").Msg("response write failed")
	}
}
