package rest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loadgenie/loadgenie/internal/ai"
	"github.com/loadgenie/loadgenie/internal/script"
)

// generateScript returns a raw generated script
func (h *Handler) generateScript(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "BAD_REQUEST",
			Details: err.Error(),
		})
		return
	}
	if h.generator == nil {
		generationError(c, ai.ErrDisabled)
		return
	}

	src, err := h.generator.Generate(c.Request.Context(), req.Description)
	if err != nil {
		generationError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		Script:      src,
		Description: req.Description,
	})
}

// generateEnhancedScript returns a generated script after validation,
// repair and enhancement
func (h *Handler) generateEnhancedScript(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "BAD_REQUEST",
			Details: err.Error(),
		})
		return
	}
	if h.generator == nil {
		generationError(c, ai.ErrDisabled)
		return
	}

	res, err := h.generator.GenerateEnhanced(c.Request.Context(), req.Description)
	if err != nil {
		generationError(c, err)
		return
	}

	c.JSON(http.StatusOK, EnhancedResponse{
		Script:          res.Script,
		Description:     req.Description,
		Quality:         res.Report,
		ProductionReady: res.Report.ProductionReady(),
		Repaired:        res.Repaired,
		Enhanced:        res.Enhanced,
	})
}

// validateScript scores a submitted script without running it
func (h *Handler) validateScript(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "BAD_REQUEST",
			Details: err.Error(),
		})
		return
	}

	report := script.Validate(req.Script)
	c.JSON(http.StatusOK, ValidateResponse{
		Report:          report,
		ProductionReady: report.ProductionReady(),
	})
}

func generationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, script.ErrDescriptionEmpty),
		errors.Is(err, script.ErrDescriptionTooShort),
		errors.Is(err, script.ErrDescriptionTooLong):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_DESCRIPTION",
		})
	case errors.Is(err, ai.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Script generation is not configured",
			Code:  "AI_DISABLED",
		})
	default:
		slog.Error("Script generation failed", "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "Script generation failed",
			Code:    "GENERATION_FAILED",
			Details: err.Error(),
		})
	}
}
