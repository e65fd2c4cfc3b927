package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"transcript-chat/internal/config"
	"transcript-chat/internal/repositories"
	"transcript-chat/internal/services"
)

// SettingsHandler handles HTTP requests for configuration and model
// metadata
type SettingsHandler struct {
	cfg          *config.Store
	settings     repositories.SettingsRepository
	modelContext *services.ModelContextService
	logger       *log.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(cfg *config.Store, settings repositories.SettingsRepository, modelContext *services.ModelContextService, logger *log.Logger) *SettingsHandler {
	return &SettingsHandler{
		cfg:          cfg,
		settings:     settings,
		modelContext: modelContext,
		logger:       logger,
	}
}

// GetConfig returns the live configuration snapshot
// @Summary Get configuration
// @Tags settings
// @Produce json
// @Success 200 {object} config.ChatConfig
// @Router /api/v1/settings [get]
func (h *SettingsHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, h.cfg.Snapshot())
}

// UpdateSetting persists one setting and reloads the configuration
// @Summary Update a setting
// @Tags settings
// @Accept json
// @Produce json
// @Success 200 {object} config.ChatConfig
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/settings [put]
func (h *SettingsHandler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Key == "" {
		h.sendError(w, http.StatusBadRequest, "Field 'key' is required")
		return
	}

	if err := h.settings.Set(r.Context(), body.Key, body.Value); err != nil {
		h.logger.Printf("Failed to store setting %s: %v", body.Key, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.cfg.Reload(r.Context()); err != nil {
		h.logger.Printf("Reload after setting %s failed: %v", body.Key, err)
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, h.cfg.Snapshot())
}

// ReloadConfig re-reads all settings from the store
// @Summary Reload configuration
// @Tags settings
// @Produce json
// @Success 200 {object} config.ChatConfig
// @Router /api/v1/settings/reload [post]
func (h *SettingsHandler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Reload(r.Context()); err != nil {
		h.logger.Printf("Config reload failed: %v", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.sendJSON(w, http.StatusOK, h.cfg.Snapshot())
}

// GetModelMetadata resolves and returns metadata for a model
// @Summary Get model metadata
// @Tags models
// @Produce json
// @Param name path string true "Model name"
// @Param refresh query bool false "Skip caches and query the model server"
// @Success 200 {object} models.ModelMetadata
// @Router /api/v1/models/{name}/metadata [get]
func (h *SettingsHandler) GetModelMetadata(w http.ResponseWriter, r *http.Request) {
	modelName := mux.Vars(r)["name"]

	forceRefresh := false
	if refreshStr := r.URL.Query().Get("refresh"); refreshStr != "" {
		if parsed, err := strconv.ParseBool(refreshStr); err == nil {
			forceRefresh = parsed
		}
	}

	metadata := h.modelContext.GetModelMetadata(r.Context(), modelName, forceRefresh)
	h.sendJSON(w, http.StatusOK, metadata)
}

// OverrideModel stores a user-supplied context limit for a model
// @Summary Override model context limit
// @Tags models
// @Accept json
// @Produce json
// @Param name path string true "Model name"
// @Success 200 {object} models.ModelMetadata
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/models/{name}/metadata [put]
func (h *SettingsHandler) OverrideModel(w http.ResponseWriter, r *http.Request) {
	modelName := mux.Vars(r)["name"]

	var body struct {
		ContextLimit int `json:"context_limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	metadata, err := h.modelContext.RecordUserOverride(r.Context(), modelName, body.ContextLimit)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.sendJSON(w, http.StatusOK, metadata)
}

func (h *SettingsHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *SettingsHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
