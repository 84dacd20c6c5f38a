package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nyayasetu-backend/models"
	"nyayasetu-backend/repository"
	"nyayasetu-backend/service"
)

// IndexHandler starts index builds and reports their progress
type IndexHandler struct {
	builds    *service.IndexBuildService
	knowledge *service.KnowledgeService
}

func NewIndexHandler(builds *service.IndexBuildService, knowledge *service.KnowledgeService) *IndexHandler {
	return &IndexHandler{builds: builds, knowledge: knowledge}
}

// StartBuild handles POST /api/index/build
func (h *IndexHandler) StartBuild(c *gin.Context) {
	job, err := h.builds.StartBuild(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetJob handles GET /api/index/jobs/:id
func (h *IndexHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job id format")
		return
	}
	job, err := h.builds.GetBuildStatus(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, job)
}

// Status handles GET /api/index/status
func (h *IndexHandler) Status(c *gin.Context) {
	var latest *models.IndexBuildJob
	job, err := h.builds.LatestBuild(c.Request.Context())
	switch {
	case err == nil:
		latest = job
	case !errors.Is(err, repository.ErrJobNotFound):
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"knowledge":    h.knowledge.Status(),
		"building":     h.builds.Running(),
		"latest_build": latest,
	})
}
