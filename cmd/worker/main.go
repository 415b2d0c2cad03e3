package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"leadrelay/internal/engine/webhooks"
	"leadrelay/internal/pkg/logger"
	"leadrelay/internal/platform/config"
	"leadrelay/internal/platform/database"
	"leadrelay/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)

	engine := webhooks.NewEngine(webhookRepo, deliveryRepo, attemptRepo, cfg.Webhooks)
	scheduler := webhooks.NewScheduler(deliveryRepo, webhookRepo, engine, cfg.Webhooks.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Run(ctx)
}
