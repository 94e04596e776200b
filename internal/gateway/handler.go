package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/querychat/internal/conversation"
	"gwi.com/querychat/internal/logging"
)

// maxQuestionLength caps a question, in characters.
const maxQuestionLength = 500

type Handler struct {
	engine       Engine
	recorder     *Recorder
	maxBodyBytes int64
}

func NewHandler(engine Engine, recorder *Recorder, maxBodyBytes int64) *Handler {
	return &Handler{engine: engine, recorder: recorder, maxBodyBytes: maxBodyBytes}
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: conversation.StatusError, Error: msg})
}

// writeUpstreamError maps store and engine failures: a stale session is 404,
// everything else is a bad gateway.
func writeUpstreamError(w http.ResponseWriter, err error, sessionID string) {
	if errors.Is(err, conversation.ErrNotFound) {
		log.Warn().Str("session_id", sessionID).Msg("Question for unknown conversation")
		writeFailure(w, http.StatusNotFound, "conversation not found")
		return
	}
	log.Error().Err(err).Str("session_id", sessionID).Msg("Assistant turn failed")
	writeFailure(w, http.StatusBadGateway, err.Error())
}

// AskHandler answers one question and records the turn.
func (h *Handler) AskHandler(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	var req conversation.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeFailure(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeFailure(w, http.StatusBadRequest, "question is required")
		default:
			writeFailure(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeFailure(w, http.StatusBadRequest, "question is required")
		return
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		writeFailure(w, http.StatusBadRequest, fmt.Sprintf("question exceeds %d characters", maxQuestionLength))
		return
	}

	ctx := r.Context()
	if req.SessionID != "" {
		if err := h.recorder.Verify(ctx, req.SessionID); err != nil {
			writeUpstreamError(w, err, req.SessionID)
			return
		}
	}

	tr, err := h.engine.Translate(ctx, question)
	if err != nil {
		// Engine failures are never a stale session, whatever status they carry.
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("Engine failed to answer")
		writeFailure(w, http.StatusBadGateway, err.Error())
		return
	}
	if tr.Result.Columns == nil {
		tr.Result.Columns = []string{}
	}
	if tr.Result.Rows == nil {
		tr.Result.Rows = [][]any{}
	}

	id, err := h.recorder.Record(ctx, req.SessionID, question, tr)
	if err != nil {
		writeUpstreamError(w, err, req.SessionID)
		return
	}

	answer := conversation.Answer{
		ID:           id,
		Question:     question,
		GeneratedSQL: tr.SQL,
		Result:       tr.Result,
		Status:       conversation.StatusSuccess,
	}
	if tr.ChartImage != "" {
		answer.Chart = &conversation.Chart{Image: tr.ChartImage}
	}
	log.Info().Str("conversation_id", id).Bool("new_session", req.SessionID == "").Msg("Answered question")
	writeJSON(w, http.StatusOK, answer)
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/ask", h.AskHandler)

	return r
}
