package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AtharvSharma0077/ChatbotAI/internal/chat"
	"github.com/AtharvSharma0077/ChatbotAI/internal/db"
	"github.com/AtharvSharma0077/ChatbotAI/internal/models"
	"go.uber.org/zap"
)

// Store is what the handlers need from persistence; the exchange pipeline
// talks to storage through chat.Service instead.
type Store interface {
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

type Handler struct {
	store  Store
	chat   *chat.Service
	logger *zap.Logger
}

func NewHandler(store Store, chatService *chat.Service, logger *zap.Logger) *Handler {
	return &Handler{
		store:  store,
		chat:   chatService,
		logger: logger,
	}
}

// Routes returns the API mux. Paths and methods mirror the frontend's
// expectations exactly.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{$}", h.Root)
	mux.HandleFunc("POST /api/conversations", h.CreateConversation)
	mux.HandleFunc("GET /api/conversations", h.GetConversations)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.DeleteConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.GetMessages)
	mux.HandleFunc("POST /api/conversations/{id}/messages", h.SendMessage)
	return mux
}

type CreateConversationRequest struct {
	Title string `json:"title"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Chatbot API is running"})
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := h.store.CreateConversation(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.ListConversations(r.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.store.DeleteConversation(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete conversation", zap.Error(err), zap.String("conversation_id", id))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted"})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.store.GetConversation(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("failed to get conversation", zap.Error(err), zap.String("conversation_id", id))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err), zap.String("conversation_id", id))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, messages)
}

// SendMessage runs one exchange and streams its outcome as newline-delimited
// JSON. The response is committed as 200 before the provider is invoked, so
// provider failures arrive as an error record, never as an HTTP status.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	stream, err := h.chat.Exchange(r.Context(), id, req.Content)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to start exchange", zap.Error(err), zap.String("conversation_id", id))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for record := range stream {
		// Encode appends the newline that frames the record.
		if err := enc.Encode(record); err != nil {
			h.logger.Warn("client went away mid-stream", zap.Error(err), zap.String("conversation_id", id))
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError mirrors the {"detail": ...} error shape the frontend expects.
func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}
