package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lianxi-ai/tutorcore/api"
	"github.com/lianxi-ai/tutorcore/backend"
	"github.com/lianxi-ai/tutorcore/cache"
	"github.com/lianxi-ai/tutorcore/config"
	"github.com/lianxi-ai/tutorcore/llmclient"
	"github.com/lianxi-ai/tutorcore/pipeline"
	"github.com/lianxi-ai/tutorcore/store"
	"github.com/lianxi-ai/tutorcore/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := telemetry.InitLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.LogDir)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer shutdownTelemetry()

	logger.Info("starting tutorcore runtime",
		"http_port", cfg.HTTPPort,
		"completion_url", cfg.CompletionURL,
		"default_model", cfg.DefaultModel)

	// Chat persistence: remote service when configured, local SQLite otherwise.
	var chats pipeline.ChatStore
	if cfg.ChatServiceURL != "" {
		chats = backend.NewChatClient(cfg.ChatServiceURL, cfg.RequestTimeout)
	} else {
		sqlStore, err := store.NewSQLiteStore(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to open local store: %v", err)
		}
		defer sqlStore.Close()
		chats = sqlStore
	}

	auth := backend.NewAuthClient(cfg.AuthURL, cfg.RequestTimeout)
	ocr := backend.NewOCRClient(cfg.OCRURL, cfg.RequestTimeout)
	llm := llmclient.NewClient(cfg.CompletionURL, auth, 0)

	runtime := pipeline.New(cache.NewStore(), llm, chats, ocr, logger)
	runtime.SetDefaultModel(cfg.DefaultModel)

	// Warm the cache from the persisted chat list.
	if err := runtime.Refresh(ctx); err != nil {
		logger.Warn("initial session fetch failed", "error", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h := api.NewHandler(runtime, logger)
	h.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	logger.Info("runtime API started", "port", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down server gracefully", "error", err)
	}
}
