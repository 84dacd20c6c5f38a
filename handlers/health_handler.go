package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nyayasetu-backend/service"
)

type HealthHandler struct {
	knowledge *service.KnowledgeService
}

func NewHealthHandler(knowledge *service.KnowledgeService) *HealthHandler {
	return &HealthHandler{knowledge: knowledge}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles GET /ready; it is 503 until a corpus snapshot is published
func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.knowledge.Status()
	code := http.StatusOK
	state := "ready"
	if !h.knowledge.Ready() {
		code = http.StatusServiceUnavailable
		state = "initializing"
	}
	c.JSON(code, gin.H{
		"status":    state,
		"knowledge": status,
	})
}
