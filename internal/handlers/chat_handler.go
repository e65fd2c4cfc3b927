package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"transcript-chat/internal/models"
	"transcript-chat/internal/services"
)

// ChatHandler handles HTTP requests for conversations
type ChatHandler struct {
	chatService    *services.ChatService
	projectService *services.ProjectChatService
	logger         *log.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *services.ChatService, projectService *services.ProjectChatService, logger *log.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:    chatService,
		projectService: projectService,
		logger:         logger,
	}
}

// Chat handles a single-transcript conversation turn
// @Summary Chat with a transcript
// @Description Processes one user message against a transcript
// @Tags chat
// @Accept json
// @Produce json
// @Param request body services.ChatRequest true "Chat request"
// @Success 200 {object} services.ChatResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/chat/transcript [post]
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req services.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Printf("Failed to decode chat request: %v", err)
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.chatService.ChatWithTranscript(r.Context(), &req)
	if err != nil {
		if _, ok := err.(*models.ValidationError); ok {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Printf("Chat turn failed: %v", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, resp)
}

// ProjectChat handles a project-level conversation turn
// @Summary Chat with a project
// @Description Processes one user message against all transcripts in a project
// @Tags chat
// @Accept json
// @Produce json
// @Param request body services.ProjectChatRequest true "Project chat request"
// @Success 200 {object} services.ChatResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/chat/project [post]
func (h *ChatHandler) ProjectChat(w http.ResponseWriter, r *http.Request) {
	var req services.ProjectChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Printf("Failed to decode project chat request: %v", err)
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.projectService.ChatWithProject(r.Context(), &req)
	if err != nil {
		if _, ok := err.(*models.ValidationError); ok {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Printf("Project chat turn failed: %v", err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, resp)
}

// History returns the full message history of a conversation
// @Summary Get conversation history
// @Tags chat
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {array} models.ChatMessage
// @Router /api/v1/conversations/{id}/history [get]
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	history, err := h.chatService.GetConversationHistory(r.Context(), conversationID)
	if err != nil {
		h.logger.Printf("Failed to load history for %s: %v", conversationID, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, history)
}

// ResetMemory clears the compacted memory for a conversation
// @Summary Reset conversation memory
// @Tags chat
// @Param id path string true "Conversation ID"
// @Success 204
// @Router /api/v1/conversations/{id}/memory [delete]
func (h *ChatHandler) ResetMemory(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	if err := h.chatService.ResetConversation(r.Context(), conversationID); err != nil {
		h.logger.Printf("Failed to reset memory for %s: %v", conversationID, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteConversation removes a conversation's history and memory
// @Summary Delete a conversation
// @Tags chat
// @Param id path string true "Conversation ID"
// @Success 204
// @Router /api/v1/conversations/{id} [delete]
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	if err := h.chatService.DeleteConversation(r.Context(), conversationID); err != nil {
		h.logger.Printf("Failed to delete conversation %s: %v", conversationID, err)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *ChatHandler) sendError(w http.ResponseWriter, status int, message string) {
	h.sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
