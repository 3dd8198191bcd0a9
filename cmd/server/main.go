package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/moneymapper/authcore/internal/app"
	"github.com/moneymapper/authcore/internal/config"
	"github.com/moneymapper/authcore/internal/handlers"
	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/moneymapper/authcore/internal/middleware"
	"github.com/moneymapper/authcore/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logger.Sync()

	core, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	core.Scheduler.Start(context.Background())

	server := fiber.New(fiber.Config{BodyLimit: 1024 * 1024})
	server.Use(recover.New(recover.Config{EnableStackTrace: true}))
	server.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	server.Use(middleware.RequestLogger())
	server.Use(middleware.SecurityLogger())

	server.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	server.Get("/metrics", metrics.Handler())

	handlers.RegisterRoutes(server, core.Service)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info("server_starting", map[string]interface{}{
		"port":             cfg.Server.Port,
		"address":          listenAddr,
		"redis_rate_limit": cfg.Redis.Addr != "",
		"audit_archive":    core.Archive != nil,
		"jobs":             core.Scheduler.Jobs(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = server.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := core.Close(drainCtx); err != nil {
		logger.Error("shutdown_drain_failed", err, nil)
	}
}
