package webhooks

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"leadrelay/internal/platform/config"
	"leadrelay/internal/platform/database"
	"leadrelay/internal/platform/models"
	"leadrelay/internal/platform/repositories"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate schema: %v", err)
	}
	return db
}

func testConfig() config.WebhooksConfig {
	return config.WebhooksConfig{
		DeliveryTimeout: 2 * time.Second,
		RetryBase:       time.Millisecond,
		RetryMaxDelay:   time.Hour,
		MaxAttempts:     8,
	}
}

func setupEngine(t *testing.T, db *sql.DB, cfg config.WebhooksConfig) (*Engine, *repositories.WebhookRepository, *repositories.DeliveryRepository, *repositories.AttemptRepository) {
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)
	engine := NewEngine(webhookRepo, deliveryRepo, attemptRepo, cfg)
	return engine, webhookRepo, deliveryRepo, attemptRepo
}

func createWebhook(t *testing.T, repo *repositories.WebhookRepository, url, secret string) *models.Webhook {
	webhook := &models.Webhook{
		OrganizationID: "org_1",
		Name:           "test endpoint",
		URL:            url,
		Events:         []string{"lead.created"},
		Secret:         secret,
		Enabled:        true,
	}
	if err := repo.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}
	return webhook
}

func TestEngine_StartDelivery_Success(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	var gotSig, gotTs string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotTs = r.Header.Get(TimestampHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, webhookRepo, deliveryRepo, attemptRepo := setupEngine(t, db, testConfig())
	webhook := createWebhook(t, webhookRepo, server.URL, "whsec_abc")

	payload, err := BuildPayload("org_1", "lead.created", map[string]string{"id": "lead_1"})
	if err != nil {
		t.Fatalf("BuildPayload failed: %v", err)
	}

	result := engine.StartDelivery(context.Background(), webhook, "lead.created", payload)

	if result.Outcome != models.AttemptSuccess {
		t.Fatalf("Expected success outcome, got %s (error: %s)", result.Outcome, result.Error)
	}
	if result.HTTPStatus == nil || *result.HTTPStatus != http.StatusOK {
		t.Errorf("Expected HTTP 200 in result, got %v", result.HTTPStatus)
	}

	// The receiver must be able to verify what we sent.
	ts, err := strconv.ParseInt(gotTs, 10, 64)
	if err != nil {
		t.Fatalf("Timestamp header not an integer: %q", gotTs)
	}
	if !Verify("whsec_abc", gotBody, gotSig, ts, time.Now(), 5*time.Minute) {
		t.Error("Delivered signature did not verify against delivered body")
	}

	delivery, err := deliveryRepo.GetByID("org_1", result.DeliveryID)
	if err != nil {
		t.Fatalf("Failed to load delivery: %v", err)
	}
	if delivery.Status != models.DeliverySuccess {
		t.Errorf("Expected delivery status success, got %s", delivery.Status)
	}
	if delivery.AttemptCount != 1 {
		t.Errorf("Expected attempt count 1, got %d", delivery.AttemptCount)
	}

	attempts, err := attemptRepo.ListByDelivery(result.DeliveryID)
	if err != nil {
		t.Fatalf("Failed to list attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected 1 attempt record, got %d", len(attempts))
	}
	if attempts[0].Outcome != models.AttemptSuccess {
		t.Errorf("Expected attempt outcome success, got %s", attempts[0].Outcome)
	}
	if attempts[0].PayloadHash != PayloadHash([]byte(payload)) {
		t.Error("Attempt payload hash does not match payload")
	}
}

func TestEngine_StartDelivery_PermanentFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	engine, webhookRepo, deliveryRepo, _ := setupEngine(t, db, testConfig())
	webhook := createWebhook(t, webhookRepo, server.URL, "whsec_abc")

	result := engine.StartDelivery(context.Background(), webhook, "lead.created", `{"event":"lead.created"}`)

	if result.Outcome != models.AttemptFailed {
		t.Fatalf("Expected failed outcome, got %s", result.Outcome)
	}

	delivery, err := deliveryRepo.GetByID("org_1", result.DeliveryID)
	if err != nil {
		t.Fatalf("Failed to load delivery: %v", err)
	}
	if delivery.Status != models.DeliveryFailed {
		t.Errorf("Expected terminal failed status on 404, got %s", delivery.Status)
	}
	if delivery.NextAttemptAt != 0 {
		t.Errorf("Expected no scheduled retry for permanent failure, got %d", delivery.NextAttemptAt)
	}
}

func TestEngine_StartDelivery_TransientFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	engine, webhookRepo, deliveryRepo, _ := setupEngine(t, db, testConfig())
	webhook := createWebhook(t, webhookRepo, server.URL, "whsec_abc")

	result := engine.StartDelivery(context.Background(), webhook, "lead.created", `{"event":"lead.created"}`)

	if result.Outcome != models.AttemptFailed {
		t.Fatalf("Expected failed outcome, got %s", result.Outcome)
	}

	delivery, err := deliveryRepo.GetByID("org_1", result.DeliveryID)
	if err != nil {
		t.Fatalf("Failed to load delivery: %v", err)
	}
	if delivery.Status != models.DeliveryPending {
		t.Errorf("Expected pending status awaiting retry on 500, got %s", delivery.Status)
	}
	if delivery.NextAttemptAt == 0 {
		t.Error("Expected a scheduled retry time for transient failure")
	}
}

func TestEngine_StartDelivery_RateLimitIsTransient(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	engine, webhookRepo, deliveryRepo, _ := setupEngine(t, db, testConfig())
	webhook := createWebhook(t, webhookRepo, server.URL, "whsec_abc")

	result := engine.StartDelivery(context.Background(), webhook, "lead.created", `{}`)

	delivery, err := deliveryRepo.GetByID("org_1", result.DeliveryID)
	if err != nil {
		t.Fatalf("Failed to load delivery: %v", err)
	}
	if delivery.Status != models.DeliveryPending {
		t.Errorf("Expected 429 to stay retryable, got status %s", delivery.Status)
	}
}

func TestEngine_StartDelivery_MissingSecret(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	requested := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, webhookRepo, deliveryRepo, _ := setupEngine(t, db, testConfig())
	webhook := createWebhook(t, webhookRepo, server.URL, "")

	result := engine.StartDelivery(context.Background(), webhook, "lead.created", `{}`)

	if requested {
		t.Error("Expected no HTTP request without a signing secret")
	}
	if result.Outcome != models.AttemptFailed {
		t.Errorf("Expected failed outcome, got %s", result.Outcome)
	}

	delivery, err := deliveryRepo.GetByID("org_1", result.DeliveryID)
	if err != nil {
		t.Fatalf("Failed to load delivery: %v", err)
	}
	if delivery.Status != models.DeliveryFailed {
		t.Errorf("Expected terminal failed status, got %s", delivery.Status)
	}

	reloaded, err := webhookRepo.GetByID("org_1", webhook.ID)
	if err != nil {
		t.Fatalf("Failed to reload webhook: %v", err)
	}
	if reloaded.Enabled {
		t.Error("Expected webhook disabled after missing-secret failure")
	}
	if reloaded.LastError == "" {
		t.Error("Expected last_error to record the config problem")
	}
}

func TestEngine_CustomHeadersCannotShadowSignature(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	var gotSig, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotCustom = r.Header.Get("X-Team")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, webhookRepo, _, _ := setupEngine(t, db, testConfig())
	webhook := &models.Webhook{
		OrganizationID: "org_1",
		URL:            server.URL,
		Events:         []string{"lead.created"},
		Secret:         "whsec_abc",
		Headers:        map[string]string{"X-Team": "growth", "X-Signature": "spoofed"},
		Enabled:        true,
	}
	if err := webhookRepo.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}

	engine.StartDelivery(context.Background(), webhook, "lead.created", `{}`)

	if gotCustom != "growth" {
		t.Errorf("Expected custom header to pass through, got %q", gotCustom)
	}
	if gotSig == "spoofed" || gotSig == "" {
		t.Errorf("Expected real signature to win over custom header, got %q", gotSig)
	}
}

func TestEngine_Retry(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine, webhookRepo, deliveryRepo, _ := setupEngine(t, db, testConfig())
	webhook := createWebhook(t, webhookRepo, server.URL, "whsec_abc")

	original := &models.Delivery{
		OrganizationID: "org_1",
		WebhookID:      webhook.ID,
		EventType:      "lead.created",
		Payload:        `{"event":"lead.created"}`,
		Status:         models.DeliveryExhausted,
	}
	if err := deliveryRepo.Create(original); err != nil {
		t.Fatalf("Failed to seed delivery: %v", err)
	}

	result, err := engine.Retry(context.Background(), "org_1", original.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if result.DeliveryID == original.ID {
		t.Error("Expected retry to open a fresh chain, not reuse the original")
	}
	if result.Outcome != models.AttemptSuccess {
		t.Errorf("Expected retry to succeed, got %s", result.Outcome)
	}

	// The original chain is untouched.
	prior, err := deliveryRepo.GetByID("org_1", original.ID)
	if err != nil {
		t.Fatalf("Failed to reload original delivery: %v", err)
	}
	if prior.Status != models.DeliveryExhausted {
		t.Errorf("Expected original chain to stay exhausted, got %s", prior.Status)
	}
}

func TestEngine_Retry_RejectsPendingChain(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	engine, webhookRepo, deliveryRepo, _ := setupEngine(t, db, testConfig())
	webhook := createWebhook(t, webhookRepo, "https://example.com/hook", "whsec_abc")

	pending := &models.Delivery{
		OrganizationID: "org_1",
		WebhookID:      webhook.ID,
		EventType:      "lead.created",
		Payload:        `{}`,
		Status:         models.DeliveryPending,
	}
	if err := deliveryRepo.Create(pending); err != nil {
		t.Fatalf("Failed to seed delivery: %v", err)
	}

	if _, err := engine.Retry(context.Background(), "org_1", pending.ID); err == nil {
		t.Error("Expected retry of an in-flight chain to be rejected")
	}
}
