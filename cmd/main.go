package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/yungbote/manimstudio-backend/internal/config"
	"github.com/yungbote/manimstudio-backend/internal/handlers"
	"github.com/yungbote/manimstudio-backend/internal/logger"
	"github.com/yungbote/manimstudio-backend/internal/server"
	"github.com/yungbote/manimstudio-backend/internal/services"
	"github.com/yungbote/manimstudio-backend/internal/store"
)

func main() {
	// Env file is optional; real deployments set variables directly.
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	cfg := config.Load(log)

	// Working directories
	for _, dir := range []string{cfg.GeneratedScriptsPath, cfg.OutputVideosPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn("Could not create directory", "path", dir, "error", err)
		}
	}

	// Services
	log.Info("Setting up services from main...")
	jobStore := store.NewJobStore()
	openaiClient := services.NewOpenAIClient(cfg, log)
	scriptService := services.NewScriptService(cfg, log, openaiClient)
	validateService := services.NewValidateService()
	fileService := services.NewFileService(cfg, log)
	renderService := services.NewRenderService(cfg, log, fileService)
	jobService := services.NewJobService(cfg, log, jobStore, scriptService, validateService, fileService, renderService)
	jobService.StartRetentionSweeper(context.Background())

	// Handlers
	log.Info("Setting up handlers from main...")
	generationHandler := handlers.NewGenerationHandler(log, jobService, scriptService, validateService, fileService, renderService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		Cfg:               cfg,
		Log:               log,
		GenerationHandler: generationHandler,
	})

	addr := cfg.Host + ":" + cfg.Port
	log.Info("Server listening", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("Server failed", "error", err)
	}
}
