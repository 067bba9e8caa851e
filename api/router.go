package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/specterhq/specter/api/handler"
	"github.com/specterhq/specter/api/middleware"
	"github.com/specterhq/specter/cache"
	"github.com/specterhq/specter/config"
	"github.com/specterhq/specter/content"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(pf handler.PageFetcher, sh *content.Shaper, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(pf, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Fetch
	protected.POST("/fetch", handler.Fetch(pf, sh, cc))

	// Batch
	protected.POST("/batch/fetch", handler.PostBatch(pf, sh))
	protected.GET("/batch/:id", handler.GetBatch())

	return r
}
