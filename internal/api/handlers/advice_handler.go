package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/vendcast/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AdviceService is what the advice routes read from.
type AdviceService interface {
	ProductAdvice(ctx context.Context, location string) ([]map[string]any, error)
	LocationAdvice(ctx context.Context) ([]map[string]any, error)
	RecentRuns(ctx context.Context, limit int) ([]pipeline.ForecastRun, error)
}

type AdviceHandler struct {
	service AdviceService
}

func NewAdviceHandler(service AdviceService) *AdviceHandler {
	return &AdviceHandler{service: service}
}

// GetProductAdvice serves GET /refill-advice/products?location=
func (h *AdviceHandler) GetProductAdvice(c *gin.Context) {
	location := strings.TrimSpace(c.Query("location"))

	rows, err := h.service.ProductAdvice(c.Request.Context(), location)
	if err != nil {
		log.Error().Err(err).Str("location", location).Msg("failed to read product advice")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read product advice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"location": location,
		"count":    len(rows),
		"data":     rows,
	})
}

// GetLocationAdvice serves GET /refill-advice/locations
func (h *AdviceHandler) GetLocationAdvice(c *gin.Context) {
	rows, err := h.service.LocationAdvice(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to read location advice")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read location advice"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(rows),
		"data":  rows,
	})
}

// GetRuns serves GET /runs?limit=
func (h *AdviceHandler) GetRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.service.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list forecast runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list forecast runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}
