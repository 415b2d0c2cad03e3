package handlers

import (
	"net/http"
	"strconv"

	apiErrors "leadrelay/internal/pkg/errors"
	"leadrelay/internal/platform/audit"
)

type IngestionHandler struct {
	audit *audit.Recorder
}

func NewIngestionHandler(recorder *audit.Recorder) *IngestionHandler {
	return &IngestionHandler{audit: recorder}
}

func (h *IngestionHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events, err := h.audit.ListByOrg(tenant.OrgID, limit)
	if err != nil {
		apiErrors.WriteError(w, http.StatusInternalServerError, apiErrors.ErrCodeInternal, "Failed to list ingestion events", nil)
		return
	}

	writeJSON(w, http.StatusOK, events)
}
