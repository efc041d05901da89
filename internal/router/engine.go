package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-ddd-task-sync/internal/container"
	"github.com/oksasatya/go-ddd-task-sync/internal/interface/middleware"
)

// NewEngine builds the gin engine with global middleware and every module
// registered under /api. Components are taken from the container.
func NewEngine() (*gin.Engine, AppDeps) {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP())
	if cfg.HTTPLogEnabled {
		r.Use(middleware.AccessLog(logger))
	}
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	reg := NewRegistry(r, logger)
	reg.Use(middleware.ReadWriteLimit(
		container.GetRedis(),
		cfg.RateLimitRead,
		cfg.RateLimitWrite,
		time.Minute,
		middleware.AllowRoutes("/api/health"),
	))
	deps := InitModules(reg)
	reg.RegisterAll()
	return r, deps
}
