package webhooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"leadrelay/internal/platform/models"
	"leadrelay/internal/platform/repositories"
)

// Trigger is the single entry point domain code uses to announce an
// event. It fans out to every enabled subscription of the tenant and
// returns one result per subscription; a failure on one subscriber never
// aborts delivery to the others.
type Trigger struct {
	webhooks *repositories.WebhookRepository
	engine   *Engine
}

func NewTrigger(webhooks *repositories.WebhookRepository, engine *Engine) *Trigger {
	return &Trigger{webhooks: webhooks, engine: engine}
}

func (t *Trigger) Trigger(ctx context.Context, orgID, eventType string, data interface{}) []Result {
	subs, err := t.webhooks.ListEnabledForEvent(orgID, eventType)
	if err != nil {
		log.Error().Err(err).Str("org_id", orgID).Str("event", eventType).Msg("failed to look up subscriptions")
		return nil
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := BuildPayload(orgID, eventType, data)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to serialize event payload")
		return nil
	}

	results := make([]Result, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *models.Webhook) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{WebhookID: sub.ID, Outcome: models.AttemptFailed,
						Error: fmt.Sprintf("panic during delivery: %v", r)}
				}
			}()
			results[i] = t.engine.StartDelivery(ctx, sub, eventType, payload)
		}(i, sub)
	}
	wg.Wait()

	return results
}
