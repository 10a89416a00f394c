package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/urlhtml/models"
)

// Version is the API version reported by the info and health endpoints.
const Version = "1.0.0"

// Health returns the handler for GET /health.
func Health(startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  "healthy",
			Version: Version,
			Uptime:  time.Since(startTime).Seconds(),
		})
	}
}

// Info returns the handler for GET /.
func Info() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.APIInfoResponse{
			Name:        "URL to HTML Converter API",
			Version:     Version,
			Description: "Fetches HTML content for URL batches using a progressive static/render/provider fallback strategy",
			Endpoints: map[string]string{
				"health":      "/health",
				"batch_fetch": "/api/v1/fetch-batch",
			},
		})
	}
}
