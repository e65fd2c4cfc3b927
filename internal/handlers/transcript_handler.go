package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
	"transcript-chat/internal/services"
	"transcript-chat/internal/workers"
)

// ErrorResponse is the JSON shape for all handler errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// WorkerStatsSource reports stats for the running background workers
type WorkerStatsSource interface {
	GetAllStats() []workers.WorkerStats
}

// TranscriptHandler handles HTTP requests for transcript management
type TranscriptHandler struct {
	transcriptService *services.TranscriptService
	workerStats       WorkerStatsSource
	logger            *log.Logger
}

// NewTranscriptHandler creates a new transcript handler
func NewTranscriptHandler(transcriptService *services.TranscriptService, workerStats WorkerStatsSource, logger *log.Logger) *TranscriptHandler {
	return &TranscriptHandler{
		transcriptService: transcriptService,
		workerStats:       workerStats,
		logger:            logger,
	}
}

// Create handles transcript upload requests
// @Summary Save a transcript
// @Description Persists a transcript and queues it for indexing
// @Tags transcripts
// @Accept json
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/transcripts [post]
func (h *TranscriptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var transcript models.Transcript
	if err := json.NewDecoder(r.Body).Decode(&transcript); err != nil {
		h.logger.Printf("Failed to decode transcript: %v", err)
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.transcriptService.SaveTranscript(r.Context(), &transcript)
	if err != nil {
		if _, ok := err.(*models.ValidationError); ok {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Printf("Failed to save transcript: %v", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusAccepted, map[string]interface{}{
		"transcript": transcript.ToDTO(),
		"index_job":  job,
	})
}

// Get returns one transcript
// @Summary Get a transcript
// @Tags transcripts
// @Produce json
// @Param id path string true "Transcript ID"
// @Success 200 {object} models.Transcript
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/transcripts/{id} [get]
func (h *TranscriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	transcriptID := mux.Vars(r)["id"]

	transcript, err := h.transcriptService.GetTranscript(r.Context(), transcriptID)
	if err != nil {
		if repositories.IsNotFound(err) {
			h.sendError(w, http.StatusNotFound, "Transcript not found")
			return
		}
		h.logger.Printf("Failed to get transcript %s: %v", transcriptID, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, transcript)
}

// ListByProject lists a project's transcripts
// @Summary List project transcripts
// @Tags transcripts
// @Produce json
// @Param project path string true "Project ID"
// @Success 200 {array} models.TranscriptDTO
// @Router /api/v1/projects/{project}/transcripts [get]
func (h *TranscriptHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["project"]

	transcripts, err := h.transcriptService.ListProjectTranscripts(r.Context(), projectID)
	if err != nil {
		h.logger.Printf("Failed to list transcripts for project %s: %v", projectID, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dtos := make([]models.TranscriptDTO, len(transcripts))
	for i, transcript := range transcripts {
		dtos[i] = transcript.ToDTO()
	}
	h.sendJSON(w, http.StatusOK, dtos)
}

// Delete removes a transcript and its indexed chunks
// @Summary Delete a transcript
// @Tags transcripts
// @Param id path string true "Transcript ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/transcripts/{id} [delete]
func (h *TranscriptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	transcriptID := mux.Vars(r)["id"]

	if err := h.transcriptService.DeleteTranscript(r.Context(), transcriptID); err != nil {
		if repositories.IsNotFound(err) {
			h.sendError(w, http.StatusNotFound, "Transcript not found")
			return
		}
		h.logger.Printf("Failed to delete transcript %s: %v", transcriptID, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reindex queues a fresh indexing pass for a transcript
// @Summary Reindex a transcript
// @Tags transcripts
// @Produce json
// @Param id path string true "Transcript ID"
// @Success 202 {object} repositories.IndexJob
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/transcripts/{id}/reindex [post]
func (h *TranscriptHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	transcriptID := mux.Vars(r)["id"]

	job, err := h.transcriptService.RequestReindex(r.Context(), transcriptID)
	if err != nil {
		if repositories.IsNotFound(err) {
			h.sendError(w, http.StatusNotFound, "Transcript not found")
			return
		}
		h.logger.Printf("Failed to queue reindex for %s: %v", transcriptID, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusAccepted, job)
}

// GetJob returns the status of an indexing job
// @Summary Get indexing job status
// @Tags transcripts
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} repositories.IndexJob
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/jobs/{id} [get]
func (h *TranscriptHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.transcriptService.GetIndexJob(r.Context(), jobID)
	if err != nil {
		if repositories.IsNotFound(err) {
			h.sendError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Printf("Failed to get job %s: %v", jobID, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, job)
}

// Stats reports indexing queue depth and chunk-store totals
// @Summary Indexing stats
// @Tags transcripts
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/indexing/stats [get]
func (h *TranscriptHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.transcriptService.IndexQueueStats(r.Context())
	if err != nil {
		h.logger.Printf("Failed to read indexing stats: %v", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.workerStats != nil {
		stats["workers"] = h.workerStats.GetAllStats()
	}
	h.sendJSON(w, http.StatusOK, stats)
}

func (h *TranscriptHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *TranscriptHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
