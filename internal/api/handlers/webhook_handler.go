package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "leadrelay/internal/api/context"
	"leadrelay/internal/api/middleware"
	"leadrelay/internal/engine/registry"
	"leadrelay/internal/engine/webhooks"
	apiErrors "leadrelay/internal/pkg/errors"
	"leadrelay/internal/platform/repositories"
)

type WebhookHandler struct {
	registry   *registry.Service
	engine     *webhooks.Engine
	deliveries *repositories.DeliveryRepository
	attempts   *repositories.AttemptRepository
}

func NewWebhookHandler(reg *registry.Service, engine *webhooks.Engine,
	deliveries *repositories.DeliveryRepository, attempts *repositories.AttemptRepository) *WebhookHandler {
	return &WebhookHandler{registry: reg, engine: engine, deliveries: deliveries, attempts: attempts}
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var req registry.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	out, err := h.registry.Create(tenant.OrgID, req)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidConfig) {
			apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, err.Error(), nil)
			return
		}
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to create webhook", nil)
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	webhookList, err := h.registry.List(tenant.OrgID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to list webhooks", nil)
		return
	}

	writeJSON(w, http.StatusOK, webhookList)
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := paramFrom(r, "webhook_id")

	webhook, err := h.registry.Get(tenant.OrgID, id)
	if err != nil {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := paramFrom(r, "webhook_id")

	var req registry.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	webhook, err := h.registry.Update(tenant.OrgID, id, req)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidConfig):
			apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, err.Error(), nil)
		case err == sql.ErrNoRows:
			apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
		default:
			apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to update webhook", nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, webhook)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := paramFrom(r, "webhook_id")

	if err := h.registry.Delete(tenant.OrgID, id); err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to delete webhook", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret responds with the new secret in plaintext; it is the only
// time the caller will ever see it.
func (h *WebhookHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := paramFrom(r, "webhook_id")

	secret, err := h.registry.RotateSecret(tenant.OrgID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
			return
		}
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to rotate secret", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// Test fires a synthetic event at the subscription so an operator can
// check their endpoint without waiting for real traffic.
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := paramFrom(r, "webhook_id")

	webhook, err := h.registry.Get(tenant.OrgID, id)
	if err != nil {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Webhook not found", nil)
		return
	}

	payload, err := webhooks.BuildPayload(tenant.OrgID, "webhook.test", map[string]bool{"test": true})
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to build test payload", nil)
		return
	}

	result := h.engine.StartDelivery(r.Context(), webhook, "webhook.test", payload)
	writeJSON(w, http.StatusOK, result)
}

func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := paramFrom(r, "webhook_id")

	deliveries, err := h.deliveries.ListByWebhook(tenant.OrgID, id, 100)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to list deliveries", nil)
		return
	}

	writeJSON(w, http.StatusOK, deliveries)
}

func (h *WebhookHandler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := paramFrom(r, "delivery_id")

	delivery, err := h.deliveries.GetByID(tenant.OrgID, id)
	if err != nil {
		apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Delivery not found", nil)
		return
	}

	attempts, err := h.attempts.ListByDelivery(delivery.ID)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to list attempts", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"delivery": delivery,
		"attempts": attempts,
	})
}

// RetryDelivery manually re-triggers a finished delivery as a fresh
// attempt chain. History is never rewritten.
func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	id := paramFrom(r, "delivery_id")

	result, err := h.engine.Retry(r.Context(), tenant.OrgID, id)
	if err != nil {
		if err == sql.ErrNoRows {
			apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeNotFound, "Delivery not found", nil)
			return
		}
		apiErrors.WriteError(w, http.StatusConflict, apiErrors.ErrCodeConflict, err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func tenantFrom(r *http.Request) *middleware.TenantContext {
	return r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
}

func paramFrom(r *http.Request, name string) string {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName(name)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
