package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weekly-health-plan/internal/adjust"
	"weekly-health-plan/internal/config"
	"weekly-health-plan/internal/metrics"
	"weekly-health-plan/internal/planapi"
	"weekly-health-plan/internal/planview"
	"weekly-health-plan/internal/telegram"

	"github.com/robfig/cron"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		log.Fatalf("Invalid bot config: %v", err)
	}

	logger := slog.New(slog.DiscardHandler)
	if cfg.DebugLogging() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	// 2. Initialize Plan Services
	metricsStore := metrics.NewStore(metrics.DefaultCapacity)
	client := planapi.NewClient(cfg, planapi.WithRecorder(metricsStore), planapi.WithLogger(logger))
	view := planview.New(client, planview.WithLocation(cfg.Location), planview.WithLogger(logger))
	defer view.Close()
	coordinator := adjust.NewCoordinator(client, view, logger)

	// 3. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, client, view, coordinator, metricsStore)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}

	// 4. Refetch at midnight so "today" and a new week's plan are picked up
	scheduler := cron.NewWithLocation(cfg.Location)
	err = scheduler.AddFunc("@midnight", func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.PlanAPITimeout)
		defer cancel()
		if err := view.Refresh(ctx); err != nil {
			log.Printf("Midnight refresh failed: %v", err)
			return
		}
		if n := metricsStore.Cleanup(30); n > 0 {
			log.Printf("Removed %d old metric records", n)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule midnight refresh: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: bot.Routes(),
	}

	go func() {
		log.Printf("Telegram Bot Server listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
