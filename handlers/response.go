package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nyayasetu-backend/repository"
	"nyayasetu-backend/service"
	"nyayasetu-backend/vectorindex"
)

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps service sentinels onto status codes
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		respondError(c, http.StatusBadRequest, "EMPTY_QUERY", err.Error())
	case errors.Is(err, service.ErrInvalidScope):
		respondError(c, http.StatusBadRequest, "INVALID_SCOPE", err.Error())
	case errors.Is(err, service.ErrInvalidLimit),
		errors.Is(err, service.ErrInvalidOffset),
		errors.Is(err, service.ErrInvalidMode):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, repository.ErrJobNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, vectorindex.ErrBuildInProgress):
		respondError(c, http.StatusConflict, "BUILD_IN_PROGRESS", err.Error())
	case errors.Is(err, service.ErrCorpusNotLoaded):
		respondError(c, http.StatusServiceUnavailable, "NOT_READY", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// queryInt reads an optional integer query parameter
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", name+" must be an integer")
		return 0, false
	}
	return n, true
}
