package main

import (
	"fmt"
	"log"
	"net/http"

	"leadrelay/internal/api"
	"leadrelay/internal/api/handlers"
	"leadrelay/internal/api/middleware"
	"leadrelay/internal/engine/ingest"
	"leadrelay/internal/engine/ingest/provider"
	"leadrelay/internal/engine/registry"
	"leadrelay/internal/engine/webhooks"
	"leadrelay/internal/pkg/logger"
	"leadrelay/internal/platform/audit"
	"leadrelay/internal/platform/auth"
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

	// Repositories
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)
	leadRepo := repositories.NewLeadRepository(db)
	mappingRepo := repositories.NewMappingRepository(db)
	integrationRepo := repositories.NewIntegrationRepository(db)
	recorder := audit.NewRecorder(db)

	// Engine
	engine := webhooks.NewEngine(webhookRepo, deliveryRepo, attemptRepo, cfg.Webhooks)
	trigger := webhooks.NewTrigger(webhookRepo, engine)
	registrySvc := registry.NewService(webhookRepo, attemptRepo, cfg.Webhooks.ReceiverBaseURL, cfg.IsDevelopment())
	providerClient := provider.NewHTTPClient(cfg.Provider)
	pipeline := ingest.NewPipeline(integrationRepo, mappingRepo, leadRepo, recorder, providerClient, trigger, cfg.Provider.Name)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(registrySvc, engine, deliveryRepo, attemptRepo)
	inboundHandler := handlers.NewInboundHandler(pipeline, webhookRepo, cfg.Provider)
	syncHandler := handlers.NewSyncHandler(pipeline)
	ingestionHandler := handlers.NewIngestionHandler(recorder)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	tenantMiddleware := middleware.NewTenantMiddleware()

	// Router
	deps := &api.Dependencies{
		WebhookHandler:   webhookHandler,
		InboundHandler:   inboundHandler,
		SyncHandler:      syncHandler,
		IngestionHandler: ingestionHandler,
		HealthHandler:    healthHandler,
		AuthMiddleware:   authMiddleware,
		TenantMiddleware: tenantMiddleware,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
