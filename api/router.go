package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagerender/api/handler"
	"github.com/use-agent/pagerender/api/middleware"
	"github.com/use-agent/pagerender/cache"
	"github.com/use-agent/pagerender/cleaner"
	"github.com/use-agent/pagerender/config"
	"github.com/use-agent/pagerender/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
// Background work started for the router stops when ctx is done.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → RequestID
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(ctx context.Context, rd handler.Renderer, cl *cleaner.Cleaner, cc *cache.Cache, wh *webhook.Sender, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(rd, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.POST("/render", handler.Render(rd, cl, cc, wh, cfg.Render))

	return r
}
