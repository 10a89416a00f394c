package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/urlhtml/api/handler"
	"github.com/use-agent/urlhtml/api/middleware"
	"github.com/use-agent/urlhtml/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → CORS
//	API:     Auth (if enabled) → RateLimit
//
// Health and info endpoints are intentionally outside auth so monitoring
// probes always work.
func NewRouter(cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	r.GET("/", handler.Info())
	r.GET("/health", handler.Health(startTime))

	v1 := r.Group("/api/v1")
	if cfg.Auth.Enabled {
		v1.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	v1.Use(middleware.RateLimit(cfg.RateLimit))

	v1.POST("/fetch-batch", handler.FetchBatch(cfg))

	return r
}
