package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"transcript-chat/internal/handlers"
)

// Handlers bundles everything the router needs. Nil service-backed
// handlers mean their routes are not registered; the server degrades to
// health and home only.
type Handlers struct {
	Home   http.HandlerFunc
	Health *handlers.HealthHandler

	Transcripts *handlers.TranscriptHandler
	Chat        *handlers.ChatHandler
	Search      *handlers.SearchHandler
	Settings    *handlers.SettingsHandler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	router.HandleFunc("/", h.Home).Methods(http.MethodGet)
	router.HandleFunc("/health", h.Health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Health.Readiness).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	if h.Transcripts != nil {
		api.HandleFunc("/transcripts", h.Transcripts.Create).Methods(http.MethodPost)
		api.HandleFunc("/transcripts/{id}", h.Transcripts.Get).Methods(http.MethodGet)
		api.HandleFunc("/transcripts/{id}", h.Transcripts.Delete).Methods(http.MethodDelete)
		api.HandleFunc("/transcripts/{id}/reindex", h.Transcripts.Reindex).Methods(http.MethodPost)
		api.HandleFunc("/projects/{project}/transcripts", h.Transcripts.ListByProject).Methods(http.MethodGet)
		api.HandleFunc("/jobs/{id}", h.Transcripts.GetJob).Methods(http.MethodGet)
		api.HandleFunc("/indexing/stats", h.Transcripts.Stats).Methods(http.MethodGet)
	}

	if h.Chat != nil {
		api.HandleFunc("/chat/transcript", h.Chat.Chat).Methods(http.MethodPost)
		api.HandleFunc("/chat/project", h.Chat.ProjectChat).Methods(http.MethodPost)
		api.HandleFunc("/conversations/{id}/history", h.Chat.History).Methods(http.MethodGet)
		api.HandleFunc("/conversations/{id}/memory", h.Chat.ResetMemory).Methods(http.MethodDelete)
		api.HandleFunc("/conversations/{id}", h.Chat.DeleteConversation).Methods(http.MethodDelete)
	}

	if h.Search != nil {
		api.HandleFunc("/search", h.Search.Search).Methods(http.MethodPost)
		api.HandleFunc("/search", h.Search.SearchSimple).Methods(http.MethodGet)
	}

	if h.Settings != nil {
		api.HandleFunc("/settings", h.Settings.GetConfig).Methods(http.MethodGet)
		api.HandleFunc("/settings", h.Settings.UpdateSetting).Methods(http.MethodPut)
		api.HandleFunc("/settings/reload", h.Settings.ReloadConfig).Methods(http.MethodPost)
		api.HandleFunc("/models/{name}/metadata", h.Settings.GetModelMetadata).Methods(http.MethodGet)
		api.HandleFunc("/models/{name}/metadata", h.Settings.OverrideModel).Methods(http.MethodPut)
	}
}
