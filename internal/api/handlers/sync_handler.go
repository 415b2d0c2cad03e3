package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"leadrelay/internal/engine/ingest"
	apiErrors "leadrelay/internal/pkg/errors"
)

type SyncHandler struct {
	pipeline *ingest.Pipeline
}

func NewSyncHandler(pipeline *ingest.Pipeline) *SyncHandler {
	return &SyncHandler{pipeline: pipeline}
}

type syncRequest struct {
	PageID    string `json:"page_id"`
	FormID    string `json:"form_id"`
	SinceDate string `json:"since_date"`
	UntilDate string `json:"until_date"`
}

// Sync runs a manual date-ranged backfill against the provider for one
// form, reusing the webhook pipeline's idempotency and mapping logic.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.PageID == "" {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "page_id is required", nil)
		return
	}

	since, err := parseDate(req.SinceDate)
	if err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "since_date must be YYYY-MM-DD", nil)
		return
	}
	until, err := parseDate(req.UntilDate)
	if err != nil {
		apiErrors.WriteError(w, http.StatusBadRequest, apiErrors.ErrCodeInvalidInput, "until_date must be YYYY-MM-DD", nil)
		return
	}
	if until.IsZero() {
		until = time.Now().UTC()
	}

	report, err := h.pipeline.Sync(r.Context(), tenant.OrgID, ingest.SyncInput{
		PageID: req.PageID,
		FormID: req.FormID,
		Since:  since,
		Until:  until,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrUnmappedResource) {
			apiErrors.WriteError(w, http.StatusNotFound, apiErrors.ErrCodeUnmappedResource, "No integration maps this page to your organization", nil)
			return
		}
		apiErrors.WriteError(w, http.StatusBadGateway, apiErrors.ErrCodeInternal, err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
