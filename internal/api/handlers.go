package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/querychat/internal/conversation"
	"gwi.com/querychat/internal/core"
)

type APIHandler struct {
	conversationService *core.ConversationService
	maxBodyBytes        int64
}

func NewAPIHandler(cs *core.ConversationService, maxBodyBytes int64) *APIHandler {
	return &APIHandler{conversationService: cs, maxBodyBytes: maxBodyBytes}
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return h.decodeBody(w, r, v, false)
}

// decodeBody reads a JSON body into v. With optional set, an empty body is accepted.
func (h *APIHandler) decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps the error taxonomy to HTTP statuses.
func writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, conversation.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, conversation.ErrNotFound):
		http.Error(w, "Conversation not found", http.StatusNotFound)
	default:
		log.Error().Err(err).Str("op", op).Msg("Conversation store failure")
		http.Error(w, "Failed to "+op, http.StatusInternalServerError)
	}
}

type CreateConversationRequest struct {
	Title    *string                   `json:"title,omitempty"`
	Messages []conversation.NewMessage `json:"messages,omitempty"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if !h.decodeBody(w, r, &req, true) {
		return
	}

	conv, err := h.conversationService.CreateConversation(r.Context(), req.Title, req.Messages)
	if err != nil {
		writeError(w, err, "create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	order, err := conversation.ParseSortOrder(r.URL.Query().Get("sortByDate"))
	if err != nil {
		writeError(w, err, "list conversations")
		return
	}

	summaries, err := h.conversationService.ListConversations(r.Context(), order)
	if err != nil {
		writeError(w, err, "list conversations")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.conversationService.GetConversation(r.Context(), conversationID)
	if err != nil {
		writeError(w, err, "get conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type UpdateConversationRequest struct {
	Title *string `json:"title"`
}

func (h *APIHandler) UpdateConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req UpdateConversationRequest
	if !h.decode(w, r, &req) {
		return
	}

	conv, err := h.conversationService.UpdateTitle(r.Context(), conversationID, req.Title)
	if err != nil {
		writeError(w, err, "update conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.conversationService.DeleteConversation(r.Context(), conversationID); err != nil {
		writeError(w, err, "delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMessageRequest is a single message with the target conversation id
// alongside its fields: {id, isUser, content, timestamp?}.
type AddMessageRequest struct {
	ID      string
	Message conversation.NewMessage
}

func (r *AddMessageRequest) UnmarshalJSON(data []byte) error {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	r.ID = head.ID
	return json.Unmarshal(data, &r.Message)
}

func (h *APIHandler) AddMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req AddMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	conv, err := h.conversationService.AppendMessages(r.Context(), req.ID, []conversation.NewMessage{req.Message})
	if err != nil {
		writeError(w, err, "add message")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type AddMultipleMessagesRequest struct {
	ID       string                    `json:"id"`
	Messages []conversation.NewMessage `json:"messages"`
}

func (h *APIHandler) AddMultipleMessagesHandler(w http.ResponseWriter, r *http.Request) {
	var req AddMultipleMessagesRequest
	if !h.decode(w, r, &req) {
		return
	}

	conv, err := h.conversationService.AppendMessages(r.Context(), req.ID, req.Messages)
	if err != nil {
		writeError(w, err, "add messages")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type HistoryResponse struct {
	ID       string                 `json:"id"`
	Messages []conversation.Message `json:"messages"`
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.conversationService.GetHistory(r.Context(), sessionID)
	if err != nil {
		writeError(w, err, "get history")
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{ID: sessionID, Messages: messages})
}
