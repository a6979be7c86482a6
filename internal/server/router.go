package server

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/manimstudio-backend/internal/config"
	"github.com/yungbote/manimstudio-backend/internal/handlers"
	"github.com/yungbote/manimstudio-backend/internal/logger"
	"github.com/yungbote/manimstudio-backend/internal/middleware"
)

type RouterConfig struct {
	Cfg               config.Config
	Log               *logger.Logger
	GenerationHandler *handlers.GenerationHandler
}

func NewRouter(rc RouterConfig) *gin.Engine {
	if !rc.Cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.Recovery(rc.Log, rc.Cfg.Debug))

	// Cors
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
	}
	origins := rc.Cfg.CORSOriginList()
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	// Static mounts for pre-rendered samples, fresh renders and scripts.
	mountIfExists(router, rc.Log, "/static", rc.Cfg.MediaPath)
	mountIfExists(router, rc.Log, "/output", rc.Cfg.OutputVideosPath)
	mountIfExists(router, rc.Log, "/generated", rc.Cfg.GeneratedScriptsPath)

	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/health", handlers.Health)

	api := router.Group("/api")
	{
		api.POST("/generate", rc.GenerationHandler.Generate)
		api.GET("/job/:id/status", rc.GenerationHandler.JobStatus)
		api.DELETE("/job/:id", rc.GenerationHandler.DeleteJob)
		api.GET("/examples", rc.GenerationHandler.Examples)
		api.GET("/health", handlers.Health)
		api.POST("/render", rc.GenerationHandler.Render)
	}

	return router
}

func mountIfExists(router *gin.Engine, log *logger.Logger, prefix, dir string) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Warn("Static path does not exist, skipping mount", "prefix", prefix, "path", dir)
		return
	}
	router.Static(prefix, dir)
	log.Info("Mounted static files", "prefix", prefix, "path", dir)
}
