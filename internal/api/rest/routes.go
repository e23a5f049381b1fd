// Package rest provides REST API handlers
package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes sets up all REST API routes
func RegisterRoutes(r *gin.Engine, h *Handler) {
	// Health endpoints
	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		scripts := v1.Group("/scripts")
		{
			scripts.POST("/generate", h.generateScript)
			scripts.POST("/generate-enhanced", h.generateEnhancedScript)
			scripts.POST("/validate", h.validateScript)
		}

		test := v1.Group("/test")
		{
			test.POST("/run", h.limiter.Middleware(), h.runTest)
			test.GET("/history", h.listHistory)
			test.DELETE("/history", h.purgeHistory)
			test.GET("/results/:id", h.getResult)
			test.GET("/statistics", h.getStatistics)
			test.GET("/search", h.searchTests)
			test.GET("/health", h.toolHealth)
		}
	}
}
