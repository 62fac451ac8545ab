package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dealroom-backend/internal/jobs"
	"dealroom-backend/internal/shared/config"
	"dealroom-backend/internal/shared/metrics"
	"dealroom-backend/internal/shared/server/middleware"
)

// NewRouter builds the gin engine with the shared middleware chain and all
// API routes.
func NewRouter(cfg config.Config, jobsHandler *jobs.Handler) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging())
	r.Use(middleware.CORS(cfg.CORSAllowOrigin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(cfg.Env))
	jobsHandler.RegisterRoutes(api)

	return r
}

// Addr formats the listen address for a configured port.
func Addr(port string) string {
	return ":" + port
}
