package http

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/sentinel/ports"
	"github.com/layer-3/sentinel/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(broker *service.Broker, tokenizer ports.Tokenizer, logger watermill.LoggerAdapter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	handlers := NewHandlers(broker, logger)

	router.GET("/health", handlers.Health)

	ws := router.Group("/ws")
	{
		ws.GET("/page", handlers.Page)
		ws.GET("/extension", ExtensionMiddleware(tokenizer), handlers.Extension)
	}

	return router
}
