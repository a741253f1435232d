// Package router wires the ragserve HTTP routes.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/ragserve/internal/ragserve/handler"
)

// Handlers groups the handlers the router needs.
type Handlers struct {
	Files      *handler.FileHandler
	Processing *handler.ProcessingHandler
	Chat       *handler.ChatHandler
	Health     *handler.HealthHandler
}

// New builds the gin engine with all routes registered.
func New(mode string, h *Handlers) *gin.Engine {
	gin.SetMode(mode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	api := engine.Group("/api")
	{
		files := api.Group("/files")
		{
			files.POST("/upload", h.Files.Upload)
			files.GET("/recent", h.Files.Recent)
		}

		processing := api.Group("/processing")
		{
			processing.POST("/start", h.Processing.Start)
			processing.GET("/:job_id", h.Processing.Status)
		}

		api.POST("/chat/completions", h.Chat.Completions)
	}

	engine.GET("/healthz", h.Health.Check)

	logger.Info("HTTP routes registered")
	return engine
}

// requestLogger logs one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
			"client_ip", c.ClientIP(),
		)
	}
}
