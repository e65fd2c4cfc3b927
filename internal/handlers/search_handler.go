package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"transcript-chat/internal/services"
)

// SearchHandler handles HTTP requests for semantic chunk search
type SearchHandler struct {
	retrieval *services.RetrievalService
	logger    *log.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(retrieval *services.RetrievalService, logger *log.Logger) *SearchHandler {
	return &SearchHandler{
		retrieval: retrieval,
		logger:    logger,
	}
}

// SearchRequestBody is the JSON body for search requests
type SearchRequestBody struct {
	Query         string   `json:"query"`
	TranscriptIDs []string `json:"transcript_ids,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	MinScore      float32  `json:"min_score,omitempty"`
}

// Search handles semantic search requests
// @Summary Search transcript chunks
// @Description Perform vector similarity search over indexed transcript chunks
// @Tags search
// @Accept json
// @Produce json
// @Param query body SearchRequestBody true "Search request"
// @Success 200 {array} models.SearchResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/search [post]
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.logger.Printf("Search request from %s", r.RemoteAddr)

	var reqBody SearchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		h.logger.Printf("Failed to decode request: %v", err)
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if reqBody.Query == "" {
		h.sendError(w, http.StatusBadRequest, "Field 'query' is required")
		return
	}

	results, err := h.retrieval.Retrieve(r.Context(), reqBody.Query, services.RetrievalOptions{
		Limit:         reqBody.Limit,
		TranscriptIDs: reqBody.TranscriptIDs,
		MinScore:      reqBody.MinScore,
	})
	if err != nil {
		h.logger.Printf("Search failed: %v", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, results)
}

// SearchSimple handles search requests via query parameters
// @Summary Simple search
// @Tags search
// @Produce json
// @Param q query string true "Search query"
// @Param transcript_id query string false "Restrict to one transcript"
// @Param limit query int false "Number of results" default(5)
// @Success 200 {array} models.SearchResult
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/search [get]
func (h *SearchHandler) SearchSimple(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.sendError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	opts := services.RetrievalOptions{}
	if transcriptID := r.URL.Query().Get("transcript_id"); transcriptID != "" {
		opts.TranscriptIDs = []string{transcriptID}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			opts.Limit = parsed
		}
	}

	results, err := h.retrieval.Retrieve(r.Context(), query, opts)
	if err != nil {
		h.logger.Printf("Search failed: %v", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, results)
}

func (h *SearchHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *SearchHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
