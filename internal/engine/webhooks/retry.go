package webhooks

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"leadrelay/internal/platform/models"
	"leadrelay/internal/platform/repositories"
)

const dueBatchSize = 100

// Scheduler drives automatic retries of pending delivery chains. Chains
// run in parallel with each other, but the tick waits for all in-flight
// attempts before polling again, so no chain ever has two attempts in
// flight.
type Scheduler struct {
	deliveries *repositories.DeliveryRepository
	webhooks   *repositories.WebhookRepository
	engine     *Engine
	interval   time.Duration
}

func NewScheduler(deliveries *repositories.DeliveryRepository, webhooks *repositories.WebhookRepository,
	engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		deliveries: deliveries,
		webhooks:   webhooks,
		engine:     engine,
		interval:   interval,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("retry scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retry scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes one batch of due deliveries and returns when every
// attempt in the batch has recorded its outcome.
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.deliveries.ListDue(time.Now().Unix(), dueBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to list due deliveries")
		return
	}

	var wg sync.WaitGroup
	for _, delivery := range due {
		wg.Add(1)
		go func(d *models.Delivery) {
			defer wg.Done()
			s.process(ctx, d)
		}(delivery)
	}
	wg.Wait()
}

func (s *Scheduler) process(ctx context.Context, delivery *models.Delivery) {
	// Subscription state is re-read at every tick, not cached at trigger
	// time: a disabled or deleted subscription ends the chain here.
	webhook, err := s.webhooks.GetByID(delivery.OrganizationID, delivery.WebhookID)
	if err == sql.ErrNoRows || (err == nil && !webhook.Enabled) {
		if uerr := s.deliveries.UpdateOutcome(delivery.ID, models.DeliveryCancelled, delivery.AttemptCount, 0); uerr != nil {
			log.Error().Err(uerr).Str("delivery_id", delivery.ID).Msg("failed to cancel delivery chain")
		}
		return
	}
	if err != nil {
		log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("failed to load subscription for retry")
		return
	}

	s.engine.Attempt(ctx, webhook, delivery)
}
