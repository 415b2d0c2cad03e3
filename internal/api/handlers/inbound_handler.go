package handlers

import (
	"io"
	"net/http"
	"sync"

	"encoding/json"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"leadrelay/internal/engine/ingest"
	"leadrelay/internal/engine/ingest/provider"
	"leadrelay/internal/engine/webhooks"
	apiErrors "leadrelay/internal/pkg/errors"
	"leadrelay/internal/platform/config"
	"leadrelay/internal/platform/repositories"
)

const maxInboundBody = 1 << 20

type InboundHandler struct {
	pipeline *ingest.Pipeline
	webhooks *repositories.WebhookRepository
	cfg      config.ProviderConfig
}

func NewInboundHandler(pipeline *ingest.Pipeline, webhookRepo *repositories.WebhookRepository, cfg config.ProviderConfig) *InboundHandler {
	return &InboundHandler{pipeline: pipeline, webhooks: webhookRepo, cfg: cfg}
}

// Verify answers the provider's subscribe handshake: echo the challenge
// when the shared token matches, 403 otherwise.
func (h *InboundHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || !webhooks.VerifyStaticToken(h.cfg.VerifyToken, token) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// Receive ingests a provider push. Once the request is verified the
// response is always 200: a non-2xx for an event we already processed (or
// failed internally) only provokes a redelivery storm.
func (h *InboundHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBody))
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if h.cfg.AppSecret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if !webhooks.VerifyBodySignature(h.cfg.AppSecret, body, sig) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	env, err := ingest.ParseEnvelope(body)
	if err != nil {
		log.Warn().Err(err).Msg("unparseable inbound envelope")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "EVENT_RECEIVED")
		return
	}

	// Each lead event is processed on its own goroutine, but the handler
	// waits for all of them: completion is well-defined and failures land
	// in the audit trail before we acknowledge.
	var wg sync.WaitGroup
	for _, ev := range env.LeadEvents() {
		wg.Add(1)
		go func(ev ingest.Leadgen) {
			defer wg.Done()
			if err := h.pipeline.ProcessLeadEvent(r.Context(), ev); err != nil {
				log.Warn().Err(err).Str("external_id", ev.ExternalID()).Msg("inbound lead processing failed")
			}
		}(ev)
	}
	wg.Wait()

	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "EVENT_RECEIVED")
}

type receiverPayload struct {
	ExternalID string           `json:"external_id"`
	Fields     []provider.Field `json:"fields"`
}

// ReceiveDirect ingests a lead on a minted receiver endpoint. Unlike the
// provider path the caller holds an API key, so errors are reported
// honestly instead of being swallowed.
func (h *InboundHandler) ReceiveDirect(w http.ResponseWriter, r *http.Request) {
	path := paramFrom(r, "receiver_path")

	webhook, err := h.webhooks.GetByReceiverPath(path)
	if err != nil {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Unknown receiver", nil)
		return
	}
	if !webhook.Enabled {
		apiErrors.WriteError(w, http.StatusForbidden, apiErrors.ErrCodeForbidden, "Receiver is disabled", nil)
		return
	}

	apiKey := r.Header.Get("X-Api-Key")
	if webhook.APIKeyHash == "" || bcrypt.CompareHashAndPassword([]byte(webhook.APIKeyHash), []byte(apiKey)) != nil {
		apiErrors.WriteError(w, http.StatusUnauthorized, apiErrors.ErrCodeUnauthorized, "Invalid API key", nil)
		return
	}

	var payload receiverPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxInboundBody)).Decode(&payload); err != nil || payload.ExternalID == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Body must carry external_id and fields", nil)
		return
	}

	if err := h.pipeline.IngestDirect(r.Context(), webhook.OrganizationID, payload.ExternalID, "receiver", payload.Fields); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to ingest lead", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed", "external_id": payload.ExternalID})
}
