package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pdf-chat-assistant/models"
	"pdf-chat-assistant/services"
	"pdf-chat-assistant/utils"
)

func SetupChatRoutes(router *gin.Engine, controller *services.ConversationController) {
	chat := router.Group("/chat")

	chat.POST("/send", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		result, err := controller.SendTurn(c.Request.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrEmptyTurn):
				utils.RespondWithBadRequest(c, "Message or image is required", nil)
			case errors.Is(err, services.ErrIngestionBusy):
				utils.RespondWithConflict(c, "Document is still being ingested")
			case errors.Is(err, services.ErrNoDocument):
				utils.RespondWithConflict(c, "Open a PDF document first")
			default:
				// Transport and API failures never leak raw errors to the UI.
				utils.RespondWithError(c, http.StatusBadGateway, "ai_generation_error", "Failed to generate a response", nil)
			}
			return
		}

		response := models.ChatResponse{
			Reply:       result.Reply,
			Blocked:     result.Blocked,
			BlockReason: result.BlockReason,
			Timestamp:   time.Now(),
		}
		if result.Similarity > 0 {
			response.Similarity = result.Similarity
		}
		c.JSON(http.StatusOK, response)
	})

	chat.GET("/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"turns": controller.History()})
	})

	chat.POST("/clear", func(c *gin.Context) {
		controller.ClearHistory()
		c.Status(http.StatusNoContent)
	})

	// Raw embedding access for similarity-scoring use cases. Fails soft:
	// a remote failure yields empty values, not an error status.
	router.POST("/embeddings", func(c *gin.Context) {
		var req models.EmbedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		values := controller.EmbedText(c.Request.Context(), req.Text)
		if values == nil {
			values = []float64{}
		}
		c.JSON(http.StatusOK, models.EmbedResponse{Values: values})
	})
}
