package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	apiContext "leadrelay/internal/api/context"
	"leadrelay/internal/engine/ingest"
	"leadrelay/internal/engine/ingest/provider"
	"leadrelay/internal/engine/webhooks"
	"leadrelay/internal/platform/audit"
	"leadrelay/internal/platform/config"
	"leadrelay/internal/platform/database"
	"leadrelay/internal/platform/models"
	"leadrelay/internal/platform/repositories"
)

type stubProvider struct {
	detail *provider.LeadDetail
}

func (s *stubProvider) FetchLead(ctx context.Context, accessToken, leadID string) (*provider.LeadDetail, error) {
	return s.detail, nil
}

func (s *stubProvider) ListLeads(ctx context.Context, accessToken, formID string, since, until time.Time) ([]*provider.LeadDetail, error) {
	return nil, nil
}

func setupInbound(t *testing.T, providerCfg config.ProviderConfig) (*InboundHandler, *sql.DB) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate schema: %v", err)
	}

	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	attemptRepo := repositories.NewAttemptRepository(db)
	integrationRepo := repositories.NewIntegrationRepository(db)

	if err := integrationRepo.Create(&models.Integration{
		OrganizationID: "org_1",
		Provider:       providerCfg.Name,
		PageID:         "pg_1",
		AccessToken:    "tok",
		Enabled:        true,
	}); err != nil {
		t.Fatalf("Failed to seed integration: %v", err)
	}

	engine := webhooks.NewEngine(webhookRepo, deliveryRepo, attemptRepo, config.WebhooksConfig{
		DeliveryTimeout: time.Second, RetryBase: time.Second, RetryMaxDelay: time.Minute, MaxAttempts: 2,
	})
	trigger := webhooks.NewTrigger(webhookRepo, engine)

	stub := &stubProvider{detail: &provider.LeadDetail{
		ID:        "lg_001",
		FieldData: []provider.Field{{Name: "email", Values: []string{"ada@example.com"}}},
	}}

	pipeline := ingest.NewPipeline(integrationRepo, repositories.NewMappingRepository(db),
		repositories.NewLeadRepository(db), audit.NewRecorder(db), stub, trigger, providerCfg.Name)

	return NewInboundHandler(pipeline, webhookRepo, providerCfg), db
}

func TestInboundHandler_Verify(t *testing.T) {
	handler, _ := setupInbound(t, config.ProviderConfig{Name: "facebook", VerifyToken: "tok_verify"})

	t.Run("Valid Handshake", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/hooks/facebook?hub.mode=subscribe&hub.verify_token=tok_verify&hub.challenge=12345", nil)
		rr := httptest.NewRecorder()

		handler.Verify(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		// The challenge must come back verbatim, not wrapped in JSON.
		if rr.Body.String() != "12345" {
			t.Errorf("Expected raw challenge echo, got %q", rr.Body.String())
		}
	})

	t.Run("Wrong Token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/hooks/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
		rr := httptest.NewRecorder()

		handler.Verify(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "12345") {
			t.Error("Challenge must not leak on a failed handshake")
		}
	})

	t.Run("Wrong Mode", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/hooks/facebook?hub.mode=unsubscribe&hub.verify_token=tok_verify&hub.challenge=12345", nil)
		rr := httptest.NewRecorder()

		handler.Verify(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rr.Code)
		}
	})
}

func TestInboundHandler_Receive(t *testing.T) {
	cfg := config.ProviderConfig{Name: "facebook", AppSecret: "appsecret"}
	handler, db := setupInbound(t, cfg)

	body := `{"object":"page"}`
	// Calculated using: echo -n '{"object":"page"}' | openssl dgst -sha256 -hmac "appsecret"
	validSig := "sha256=b38a2f589e8e63c7fc3318ee5fad162aa1c05bd62cb1ec87c9a61641619505e2"

	t.Run("Bad Signature", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/hooks/facebook", strings.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		rr := httptest.NewRecorder()

		handler.Receive(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for bad signature, got %d", rr.Code)
		}
	})

	t.Run("Missing Signature", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/hooks/facebook", strings.NewReader(body))
		rr := httptest.NewRecorder()

		handler.Receive(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for missing signature, got %d", rr.Code)
		}
	})

	t.Run("Valid Signature No Lead Events", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/hooks/facebook", strings.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", validSig)
		rr := httptest.NewRecorder()

		handler.Receive(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rr.Code)
		}
		if rr.Body.String() != "EVENT_RECEIVED" {
			t.Errorf("Expected acknowledgement body, got %q", rr.Body.String())
		}
	})

	t.Run("Processing Failure Still Acknowledged", func(t *testing.T) {
		// No integration maps pg_unknown; processing fails internally but
		// the provider still gets a 200.
		unknownBody := `{"object":"page","entry":[{"id":"pg_unknown","changes":[{"field":"leadgen","value":{"leadgen_id":"lg_x","page_id":"pg_unknown"}}]}]}`
		req := httptest.NewRequest("POST", "/hooks/facebook", strings.NewReader(unknownBody))
		req.Header.Set("X-Hub-Signature-256", webhookBodySig("appsecret", unknownBody))
		rr := httptest.NewRecorder()

		handler.Receive(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 despite processing failure, got %d", rr.Code)
		}

		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM leads`).Scan(&count); err != nil {
			t.Fatalf("Count query failed: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected no lead for unmapped page, got %d", count)
		}
	})

	t.Run("Valid Lead Event Creates Lead", func(t *testing.T) {
		eventBody := `{"object":"page","entry":[{"id":"pg_1","changes":[{"field":"leadgen","value":{"leadgen_id":"lg_001","page_id":"pg_1"}}]}]}`
		req := httptest.NewRequest("POST", "/hooks/facebook", strings.NewReader(eventBody))
		req.Header.Set("X-Hub-Signature-256", webhookBodySig("appsecret", eventBody))
		rr := httptest.NewRecorder()

		handler.Receive(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}

		lead, err := repositories.NewLeadRepository(db).FindByExternalID("org_1", "lg_001")
		if err != nil {
			t.Fatalf("Failed to look up lead: %v", err)
		}
		if lead == nil {
			t.Fatal("Expected lead created from push event")
		}
	})

	t.Run("Malformed Body Acknowledged", func(t *testing.T) {
		broken := `{"object":`
		req := httptest.NewRequest("POST", "/hooks/facebook", strings.NewReader(broken))
		req.Header.Set("X-Hub-Signature-256", webhookBodySig("appsecret", broken))
		rr := httptest.NewRecorder()

		handler.Receive(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200 for unparseable body, got %d", rr.Code)
		}
	})
}

func TestInboundHandler_ReceiveDirect(t *testing.T) {
	handler, db := setupInbound(t, config.ProviderConfig{Name: "facebook"})

	apiKey := "whkey_test"
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash api key: %v", err)
	}
	webhookRepo := repositories.NewWebhookRepository(db)
	receiver := &models.Webhook{
		OrganizationID: "org_1",
		URL:            "https://relay.example.com/hooks/receivers/rcv_abc",
		Events:         []string{"lead.created"},
		Secret:         "whsec_x",
		Enabled:        true,
		APIKeyHash:     string(hash),
		ReceiverPath:   "rcv_abc",
	}
	if err := webhookRepo.Create(receiver); err != nil {
		t.Fatalf("Failed to seed receiver: %v", err)
	}

	post := func(path, key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/hooks/receivers/"+path, strings.NewReader(body))
		if key != "" {
			req.Header.Set("X-Api-Key", key)
		}
		params := httprouter.Params{{Key: "receiver_path", Value: path}}
		req = req.WithContext(context.WithValue(req.Context(), apiContext.Params, params))

		rr := httptest.NewRecorder()
		handler.ReceiveDirect(rr, req)
		return rr
	}

	t.Run("Valid", func(t *testing.T) {
		rr := post("rcv_abc", apiKey, `{"external_id":"ext_1","fields":[{"name":"email","values":["ada@example.com"]}]}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		lead, err := repositories.NewLeadRepository(db).FindByExternalID("org_1", "ext_1")
		if err != nil {
			t.Fatalf("Failed to look up lead: %v", err)
		}
		if lead == nil {
			t.Fatal("Expected lead created")
		}
		if lead.Source != "receiver" {
			t.Errorf("Expected receiver source, got %q", lead.Source)
		}
	})

	t.Run("Unknown Receiver", func(t *testing.T) {
		rr := post("rcv_missing", apiKey, `{"external_id":"ext_2"}`)
		if rr.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rr.Code)
		}
	})

	t.Run("Wrong API Key", func(t *testing.T) {
		rr := post("rcv_abc", "whkey_wrong", `{"external_id":"ext_3"}`)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})

	t.Run("Missing External ID", func(t *testing.T) {
		rr := post("rcv_abc", apiKey, `{"fields":[]}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rr.Code)
		}
	})

	t.Run("Disabled Receiver", func(t *testing.T) {
		receiver.Enabled = false
		if err := webhookRepo.Update(receiver); err != nil {
			t.Fatalf("Failed to disable receiver: %v", err)
		}
		rr := post("rcv_abc", apiKey, `{"external_id":"ext_4"}`)
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rr.Code)
		}
	})
}

func webhookBodySig(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
