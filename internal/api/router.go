package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gwi.com/querychat/internal/logging"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger)   // Structured request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", apiHandler.CreateConversationHandler)
		r.Get("/", apiHandler.ListConversationsHandler)

		// Static segments take precedence over {conversationID}.
		r.Post("/message", apiHandler.AddMessageHandler)
		r.Post("/multiple-messages", apiHandler.AddMultipleMessagesHandler)
		r.Get("/history/{sessionID}", apiHandler.HistoryHandler)

		r.Get("/{conversationID}", apiHandler.GetConversationHandler)
		r.Patch("/{conversationID}", apiHandler.UpdateConversationHandler)
		r.Delete("/{conversationID}", apiHandler.DeleteConversationHandler)
	})

	return r
}
