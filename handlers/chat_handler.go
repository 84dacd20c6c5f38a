package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nyayasetu-backend/models"
	"nyayasetu-backend/service"
)

// ChatHandler serves the legal assistant
type ChatHandler struct {
	answers   *service.AnswerService
	knowledge *service.KnowledgeService
}

func NewChatHandler(answers *service.AnswerService, knowledge *service.KnowledgeService) *ChatHandler {
	return &ChatHandler{answers: answers, knowledge: knowledge}
}

// ChatMessageRequest represents the request body for a chat turn
type ChatMessageRequest struct {
	Message string                      `json:"message" binding:"required"`
	Context *models.ConversationContext `json:"context"`
}

// DocumentAssistanceRequest represents the request body for drafting help
type DocumentAssistanceRequest struct {
	MatterType string                      `json:"matter_type" binding:"required"`
	Context    *models.ConversationContext `json:"context"`
}

// SendMessage handles POST /api/chat/message. A well-formed request always
// gets 200; failures are reported inside the ChatResponse.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(c, http.StatusBadRequest, "EMPTY_QUERY", "message must not be empty")
		return
	}

	c.JSON(http.StatusOK, h.answers.Answer(c.Request.Context(), service.AnswerRequest{
		Query:   req.Message,
		Context: req.Context,
	}))
}

// DocumentAssistance handles POST /api/chat/document-assistance
func (h *ChatHandler) DocumentAssistance(c *gin.Context) {
	var req DocumentAssistanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	c.JSON(http.StatusOK, h.answers.DocumentAssistance(c.Request.Context(), req.MatterType, req.Context))
}

// Status handles GET /api/chat/status
func (h *ChatHandler) Status(c *gin.Context) {
	respondOK(c, http.StatusOK, h.knowledge.Status())
}

// Suggestions handles GET /api/chat/suggestions
func (h *ChatHandler) Suggestions(c *gin.Context) {
	respondOK(c, http.StatusOK, gin.H{"suggestions": service.InitialSuggestions()})
}
