// Package rest provides REST API handlers
package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthz returns health status
func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// readyz reports ready once the relational store answers a ping
func (h *Handler) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		slog.Warn("Readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// toolHealth reports whether the k6 binary can be invoked
func (h *Handler) toolHealth(c *gin.Context) {
	version, err := h.runner.CheckInstallation(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ToolHealthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, ToolHealthResponse{
		Status:    "healthy",
		Installed: true,
		Version:   version,
	})
}
