package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes (public read access)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/tokens", handler.ListTokens)
		v1.GET("/tokens/:id", handler.GetToken)
		v1.GET("/tokens/:id/profits", handler.GetTokenProfits)

		v1.GET("/listings", handler.ListListings)
		v1.GET("/sales", handler.ListSales)

		v1.GET("/users/:address", handler.GetUser)

		v1.GET("/stats", handler.GetStats)
	}
}
