package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-chat-assistant/models"
	"pdf-chat-assistant/services"
	"pdf-chat-assistant/utils"
)

func SetupDocumentRoutes(router *gin.Engine, pipeline *services.IngestionPipeline) {
	docs := router.Group("/documents")

	// Fire-and-forget ingestion; progress is observable via /documents/state.
	docs.POST("/ingest", func(c *gin.Context) {
		var req models.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if err := pipeline.Ingest(req.Path); err != nil {
			if errors.Is(err, services.ErrIngestionActive) {
				utils.RespondWithConflict(c, "Another document is being ingested")
				return
			}
			utils.RespondWithError(c, http.StatusServiceUnavailable, "missing_api_key", err.Error(), nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":   "accepted",
			"document": req.Path,
		})
	})

	docs.POST("/cancel", func(c *gin.Context) {
		pipeline.Cancel()
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	})

	docs.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, pipeline.CurrentState())
	})

	docs.GET("/text", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"document": pipeline.LastDocument(),
			"text":     pipeline.ActiveText(),
		})
	})

	docs.GET("/chunks", func(c *gin.Context) {
		chunks := pipeline.ActiveChunks()
		if chunks == nil {
			chunks = []models.DocumentChunk{}
		}
		c.JSON(http.StatusOK, gin.H{
			"document": pipeline.LastDocument(),
			"chunks":   chunks,
		})
	})
}
