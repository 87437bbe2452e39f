package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pdf-chat-assistant/internal/ai"
	"pdf-chat-assistant/internal/config"
	"pdf-chat-assistant/internal/logger"
	"pdf-chat-assistant/internal/telemetry"
	"pdf-chat-assistant/middleware"
	"pdf-chat-assistant/routes"
	"pdf-chat-assistant/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("pdf-chat-assistant", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("Tracing disabled, exporter setup failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Wire the ingestion and chat services
	client := ai.NewGeminiClient(cfg)
	pipeline := services.NewIngestionPipeline(
		cfg,
		services.NewOSFileReader(),
		services.NewPDFExtractor(),
		services.NewChunker(cfg.MinChunkChars),
		services.NewCacheStore(cfg.CacheDir),
		client,
	)
	controller := services.NewConversationController(cfg, client, client, pipeline)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware("pdf-chat-assistant"))
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	routes.SetupDocumentRoutes(router, pipeline)
	routes.SetupChatRoutes(router, controller)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	// Stop any in-flight ingestion before the listener closes.
	pipeline.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
