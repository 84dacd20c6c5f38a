package handlers

import (
	"github.com/gin-gonic/gin"

	"nyayasetu-backend/metrics"
	"nyayasetu-backend/service"
)

// Services are the dependencies the HTTP layer routes to
type Services struct {
	Knowledge *service.KnowledgeService
	Search    *service.SearchService
	Answers   *service.AnswerService
	Builds    *service.IndexBuildService
	Metrics   *metrics.Metrics
}

// NewRouter registers every route on a new gin engine
func NewRouter(s Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.Metrics != nil {
		r.Use(s.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	health := NewHealthHandler(s.Knowledge)
	legal := NewLegalHandler(s.Search)
	chat := NewChatHandler(s.Answers, s.Knowledge)
	index := NewIndexHandler(s.Builds, s.Knowledge)

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)

	api := r.Group("/api")
	{
		// Legal corpus endpoints
		api.GET("/legal/search", legal.Search)
		api.GET("/legal/laws", legal.Laws)
		api.GET("/legal/stats", legal.Stats)
		api.GET("/legal/scopes/:scope", legal.ListScope)
		api.GET("/legal/scopes/:scope/:id", legal.GetDocument)

		// Assistant endpoints
		api.POST("/chat/message", chat.SendMessage)
		api.POST("/chat/document-assistance", chat.DocumentAssistance)
		api.GET("/chat/status", chat.Status)
		api.GET("/chat/suggestions", chat.Suggestions)

		// Index build endpoints
		api.POST("/index/build", index.StartBuild)
		api.GET("/index/jobs/:id", index.GetJob)
		api.GET("/index/status", index.Status)
	}

	return r
}
