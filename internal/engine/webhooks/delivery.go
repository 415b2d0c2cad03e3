package webhooks

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"leadrelay/internal/platform/config"
	"leadrelay/internal/platform/models"
	"leadrelay/internal/platform/repositories"
)

const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
)

// Result is the outcome of one delivery attempt for one subscription.
type Result struct {
	WebhookID  string `json:"webhook_id"`
	DeliveryID string `json:"delivery_id,omitempty"`
	Outcome    string `json:"outcome"`
	HTTPStatus *int   `json:"http_status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Engine executes delivery attempts and records their outcomes. It never
// retries by itself; failed chains are picked up by the Scheduler.
type Engine struct {
	webhooks   *repositories.WebhookRepository
	deliveries *repositories.DeliveryRepository
	attempts   *repositories.AttemptRepository
	client     *http.Client
	cfg        config.WebhooksConfig
}

func NewEngine(webhooks *repositories.WebhookRepository, deliveries *repositories.DeliveryRepository,
	attempts *repositories.AttemptRepository, cfg config.WebhooksConfig) *Engine {
	return &Engine{
		webhooks:   webhooks,
		deliveries: deliveries,
		attempts:   attempts,
		client:     &http.Client{Timeout: cfg.DeliveryTimeout},
		cfg:        cfg,
	}
}

// BuildPayload serializes the outbound event body once per event so every
// subscription of the same event delivers an identical payload.
func BuildPayload(orgID, eventType string, data interface{}) (string, error) {
	event := models.WebhookEvent{
		Event:          eventType,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		OrganizationID: orgID,
		Data:           data,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// StartDelivery opens a fresh attempt chain for one subscription and runs
// the first attempt inline.
func (e *Engine) StartDelivery(ctx context.Context, webhook *models.Webhook, eventType, payload string) Result {
	delivery := &models.Delivery{
		OrganizationID: webhook.OrganizationID,
		WebhookID:      webhook.ID,
		EventType:      eventType,
		Payload:        payload,
	}
	if err := e.deliveries.Create(delivery); err != nil {
		return Result{WebhookID: webhook.ID, Outcome: models.AttemptFailed, Error: err.Error()}
	}
	return e.Attempt(ctx, webhook, delivery)
}

// Attempt executes exactly one HTTP delivery for the chain and records the
// attempt row plus the chain transition. Callers must not run two attempts
// of the same chain concurrently.
func (e *Engine) Attempt(ctx context.Context, webhook *models.Webhook, delivery *models.Delivery) Result {
	attemptNumber := delivery.AttemptCount + 1
	body := []byte(delivery.Payload)

	if webhook.Secret == "" {
		// Fail closed: nothing is sent without a signing key.
		if err := e.webhooks.MarkInvalid(webhook.ID, "missing signing secret"); err != nil {
			log.Error().Err(err).Str("webhook_id", webhook.ID).Msg("failed to flag webhook invalid")
		}
		return e.record(delivery, webhook, attemptNumber, nil, 0, models.AttemptFailed,
			models.DeliveryFailed, "missing signing secret", 0)
	}

	status, latency, reqErr := e.post(ctx, webhook, body)

	switch classify(status, reqErr) {
	case outcomeSuccess:
		return e.record(delivery, webhook, attemptNumber, status, latency, models.AttemptSuccess,
			models.DeliverySuccess, "", 0)
	case outcomePermanent:
		return e.record(delivery, webhook, attemptNumber, status, latency, models.AttemptFailed,
			models.DeliveryFailed, errText(status, reqErr), 0)
	default:
		if attemptNumber >= e.cfg.MaxAttempts {
			return e.record(delivery, webhook, attemptNumber, status, latency, models.AttemptExhausted,
				models.DeliveryExhausted, errText(status, reqErr), 0)
		}
		next := time.Now().Add(NextDelay(attemptNumber, e.cfg.RetryBase, e.cfg.RetryMaxDelay)).Unix()
		return e.record(delivery, webhook, attemptNumber, status, latency, models.AttemptFailed,
			models.DeliveryPending, errText(status, reqErr), next)
	}
}

// Retry opens a fresh chain replaying the payload of a finished delivery.
// The original chain and its attempts are never touched.
func (e *Engine) Retry(ctx context.Context, orgID, deliveryID string) (Result, error) {
	prior, err := e.deliveries.GetByID(orgID, deliveryID)
	if err != nil {
		return Result{}, err
	}
	if prior.Status == models.DeliveryPending {
		return Result{}, errors.New("delivery is still being retried automatically")
	}

	webhook, err := e.webhooks.GetByID(orgID, prior.WebhookID)
	if err != nil {
		if err == sql.ErrNoRows {
			return Result{}, errors.New("subscription no longer exists")
		}
		return Result{}, err
	}

	return e.StartDelivery(ctx, webhook, prior.EventType, prior.Payload), nil
}

func (e *Engine) post(ctx context.Context, webhook *models.Webhook, body []byte) (*int, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	// Custom headers first so they can never shadow the signature set.
	for k, v := range webhook.Headers {
		req.Header.Set(k, v)
	}
	timestamp := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(webhook.Secret, body, timestamp))
	req.Header.Set(TimestampHeader, fmt.Sprintf("%d", timestamp))

	start := time.Now()
	resp, err := e.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, latency, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	status := resp.StatusCode
	return &status, latency, nil
}

func (e *Engine) record(delivery *models.Delivery, webhook *models.Webhook, attemptNumber int,
	httpStatus *int, latency int64, outcome, chainStatus, errMsg string, nextAttemptAt int64) Result {

	attempt := &models.DeliveryAttempt{
		DeliveryID:     delivery.ID,
		WebhookID:      webhook.ID,
		EventType:      delivery.EventType,
		PayloadHash:    PayloadHash([]byte(delivery.Payload)),
		AttemptNumber:  attemptNumber,
		HTTPStatus:     httpStatus,
		ResponseTimeMs: latency,
		Outcome:        outcome,
		Error:          errMsg,
	}
	if err := e.attempts.Create(attempt); err != nil {
		log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("failed to record delivery attempt")
	}

	if err := e.deliveries.UpdateOutcome(delivery.ID, chainStatus, attemptNumber, nextAttemptAt); err != nil {
		log.Error().Err(err).Str("delivery_id", delivery.ID).Msg("failed to update delivery chain")
	}
	delivery.Status = chainStatus
	delivery.AttemptCount = attemptNumber
	delivery.NextAttemptAt = nextAttemptAt

	logEvent := log.Info()
	if outcome != models.AttemptSuccess {
		logEvent = log.Warn()
	}
	logEvent.
		Str("webhook_id", webhook.ID).
		Str("delivery_id", delivery.ID).
		Str("event", delivery.EventType).
		Int("attempt", attemptNumber).
		Str("outcome", outcome).
		Int64("latency_ms", latency).
		Msg("webhook delivery attempt")

	return Result{
		WebhookID:  webhook.ID,
		DeliveryID: delivery.ID,
		Outcome:    outcome,
		HTTPStatus: httpStatus,
		Error:      errMsg,
	}
}

type attemptClass int

const (
	outcomeSuccess attemptClass = iota
	outcomePermanent
	outcomeTransient
)

// classify buckets an attempt: 2xx succeeds, 4xx (except timeout and
// rate-limit) is permanent since no backoff fixes a rejected request,
// everything else is transient and retryable.
func classify(status *int, err error) attemptClass {
	if err != nil || status == nil {
		return outcomeTransient
	}
	s := *status
	switch {
	case s >= 200 && s < 300:
		return outcomeSuccess
	case s >= 400 && s < 500 && s != http.StatusRequestTimeout && s != http.StatusTooManyRequests:
		return outcomePermanent
	default:
		return outcomeTransient
	}
}

func errText(status *int, err error) string {
	if err != nil {
		return err.Error()
	}
	if status != nil {
		return fmt.Sprintf("HTTP %d", *status)
	}
	return "no response"
}
