package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"finance-tutor/internal/db"
	"finance-tutor/internal/engine"
	"finance-tutor/internal/export"
	"finance-tutor/internal/models"
)

// ConversationHandler handles conversation-related HTTP requests
type ConversationHandler struct {
	db       *db.DB
	registry *engine.Registry
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(database *db.DB, registry *engine.Registry) *ConversationHandler {
	return &ConversationHandler{
		db:       database,
		registry: registry,
	}
}

// CreateConversationRequest is the request body for creating a conversation
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// ConversationResponse represents a conversation in API responses
type ConversationResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

func conversationResponse(conv *db.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt.Format(time.RFC3339),
	}
}

// Create handles POST /api/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[API] Create conversation failed: invalid request body err=%v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	conv, err := h.db.CreateConversation(req.Title)
	if err != nil {
		log.Printf("[API] Failed to create conversation in DB err=%v", err)
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}

	log.Printf("[API] Conversation created conversation_id=%d title=%q", conv.ID, conv.Title)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conversationResponse(conv))
}

// List handles GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.db.ListConversations()
	if err != nil {
		log.Printf("[API] Failed to list conversations err=%v", err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}

	responses := make([]ConversationResponse, 0, len(conversations))
	for i := range conversations {
		responses = append(responses, conversationResponse(&conversations[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// Get handles GET /api/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadConversation(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conversationResponse(conv))
}

// Delete handles DELETE /api/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	// Cancel any active stream before dropping the record
	h.registry.Remove(id)

	if err := h.db.DeleteConversation(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		log.Printf("[API] Failed to delete conversation conversation_id=%d err=%v", id, err)
		http.Error(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}

	log.Printf("[API] Conversation deleted conversation_id=%d", id)
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages handles GET /api/conversations/{id}/messages.
// The response is a point-in-time snapshot: it is safe to call while an
// answer is still streaming.
func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ctrl, err := h.registry.Get(id)
	if err != nil {
		respondControllerError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ctrl.Store().Snapshot())
}

// AskRequest is the request body for submitting a turn
type AskRequest struct {
	Query       string `json:"query"`
	DetailLevel string `json:"detail_level,omitempty"`
}

// Ask handles POST /api/conversations/{id}/ask. The turn is accepted and
// streamed in the background; progress arrives on the conversation's
// event feed.
func (h *ConversationHandler) Ask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	level := models.DetailLevel(req.DetailLevel)
	if req.DetailLevel != "" && !models.ValidDetailLevel(level) {
		http.Error(w, "Invalid detail level", http.StatusBadRequest)
		return
	}

	ctrl, err := h.registry.Get(id)
	if err != nil {
		respondControllerError(w, id, err)
		return
	}

	if err := ctrl.Submit(r.Context(), req.Query, level); err != nil {
		if errors.Is(err, engine.ErrEmptyQuery) {
			http.Error(w, "Query is required", http.StatusBadRequest)
			return
		}
		log.Printf("[API] Failed to submit turn conversation_id=%d err=%v", id, err)
		http.Error(w, "Failed to submit turn", http.StatusInternalServerError)
		return
	}

	log.Printf("[API] Turn accepted conversation_id=%d query_length=%d", id, len(req.Query))
	w.WriteHeader(http.StatusAccepted)
}

// Cancel handles POST /api/conversations/{id}/cancel
func (h *ConversationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ctrl, found := h.registry.Peek(id)
	if !found {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	ctrl.CancelActive()
	log.Printf("[API] Active session cancelled conversation_id=%d", id)
	w.WriteHeader(http.StatusNoContent)
}

// GetQuiz handles GET /api/conversations/{id}/quiz
func (h *ConversationHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	ctrl, err := h.registry.Get(id)
	if err != nil {
		respondControllerError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if ctrl.Quiz() == nil {
		json.NewEncoder(w).Encode(map[string]any{"available": false})
		return
	}

	quiz, available := ctrl.Quiz().Current()
	json.NewEncoder(w).Encode(map[string]any{
		"available": available,
		"quiz":      quiz,
	})
}

// Export handles GET /api/conversations/{id}/export, returning a
// plain-text transcript
func (h *ConversationHandler) Export(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadConversation(w, r)
	if !ok {
		return
	}

	ctrl, err := h.registry.Get(conv.ID)
	if err != nil {
		respondControllerError(w, conv.ID, err)
		return
	}

	transcript := export.BuildTranscript(conv.Title, ctrl.Store().Snapshot())

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="conversation.txt"`)
	w.Write([]byte(transcript))
}

// loadConversation parses the path ID and fetches the conversation
func (h *ConversationHandler) loadConversation(w http.ResponseWriter, r *http.Request) (*db.Conversation, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}

	conv, err := h.db.GetConversation(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return nil, false
		}
		log.Printf("[API] Failed to get conversation conversation_id=%d err=%v", id, err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return nil, false
	}
	return conv, true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func respondControllerError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	log.Printf("[API] Failed to get controller conversation_id=%d err=%v", id, err)
	http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
}
