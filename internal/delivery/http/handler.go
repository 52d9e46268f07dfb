package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/usecase"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	status *usecase.StatusService
}

// NewHandler creates a new HTTP handler
func NewHandler(status *usecase.StatusService) *Handler {
	return &Handler{status: status}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shelfscan-backend",
		"version": Version,
	})
}

// GetProgress returns scrape and crawl progress of a retailer
func (h *Handler) GetProgress(c *gin.Context) {
	retailer := c.Param("retailer")

	status, err := h.status.Status(retailer)
	if err != nil {
		h.respondError(c, retailer, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetCatalogue returns a page of the scraped catalogue of a retailer
func (h *Handler) GetCatalogue(c *gin.Context) {
	retailer := c.Param("retailer")

	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil || limit < 1 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
		return
	}

	page, err := h.status.Catalogue(retailer, offset, limit)
	if err != nil {
		h.respondError(c, retailer, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) respondError(c *gin.Context, retailer string, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownRetailer):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown retailer: " + retailer})
	case errors.Is(err, domain.ErrCatalogueNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no catalogue scraped for " + retailer})
	default:
		log.Printf("[HTTP] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
