package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nyayasetu-backend/models"
	"nyayasetu-backend/service"
)

// LegalHandler serves search and lookups over the legal corpus
type LegalHandler struct {
	search *service.SearchService
}

func NewLegalHandler(search *service.SearchService) *LegalHandler {
	return &LegalHandler{search: search}
}

// Search handles GET /api/legal/search
func (h *LegalHandler) Search(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	var scopes []models.Scope
	if raw := c.Query("scopes"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				scopes = append(scopes, models.Scope(part))
			}
		}
	}

	resp, err := h.search.Search(c.Request.Context(), service.SearchRequest{
		Query:  c.Query("q"),
		Scopes: scopes,
		Limit:  limit,
		Offset: offset,
		Mode:   service.SearchMode(c.Query("mode")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, resp)
}

// Laws handles GET /api/legal/laws
func (h *LegalHandler) Laws(c *gin.Context) {
	respondOK(c, http.StatusOK, h.search.Laws())
}

// Stats handles GET /api/legal/stats
func (h *LegalHandler) Stats(c *gin.Context) {
	st, err := h.search.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, st)
}

// ListScope handles GET /api/legal/scopes/:scope
func (h *LegalHandler) ListScope(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	resp, err := h.search.ListScope(c.Request.Context(), service.ListRequest{
		Scope:   models.Scope(c.Param("scope")),
		Code:    c.Query("code"),
		Section: c.Query("section"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, resp)
}

// GetDocument handles GET /api/legal/scopes/:scope/:id
func (h *LegalHandler) GetDocument(c *gin.Context) {
	scope, err := models.ParseScope(c.Param("scope"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SCOPE", err.Error())
		return
	}
	doc, err := h.search.GetByIdentifier(c.Request.Context(), scope, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, doc)
}
