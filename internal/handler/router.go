package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/notegraph/internal/middleware"
)

type RouterDeps struct {
	Notes     *NoteHandler
	AI        *AIHandler
	Graph     *GraphHandler
	Assistant *AssistantHandler
	JWTSecret []byte
	// AIRequestsPerSecond and AIBurst throttle endpoints that call hosted models.
	AIRequestsPerSecond float64
	AIBurst             int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/notes", deps.Notes.Create)
	authGroup.GET("/notes", deps.Notes.List)
	authGroup.GET("/notes/:id", deps.Notes.Get)
	authGroup.PUT("/notes/:id", deps.Notes.Update)
	authGroup.DELETE("/notes/:id", deps.Notes.Delete)

	authGroup.POST("/notes/:id/draft", deps.AI.Draft)
	authGroup.GET("/notes/:id/links", deps.AI.Links)
	authGroup.DELETE("/notes/:id/draft", deps.AI.CloseDraft)
	authGroup.GET("/graph", deps.Graph.Enter)
	authGroup.POST("/graph/interact", deps.Graph.Interact)
	authGroup.DELETE("/graph", deps.Graph.Leave)
	authGroup.GET("/assistant/messages", deps.Assistant.Messages)
	authGroup.DELETE("/assistant", deps.Assistant.Close)

	aiGroup := authGroup.Group("")
	aiGroup.Use(middleware.RateLimit(deps.AIRequestsPerSecond, deps.AIBurst))
	aiGroup.POST("/ai/tags", deps.AI.Tags)
	aiGroup.POST("/ai/related", deps.AI.Related)
	aiGroup.POST("/assistant/messages", deps.Assistant.Send)
}
