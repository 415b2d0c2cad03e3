package models

// IngestionEvent is one audit entry for an inbound notification transition.
// Append-only; the operational surface for diagnosing provider issues.
type IngestionEvent struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id,omitempty"` // empty until the tenant is resolved
	Provider       string `json:"provider"`
	ExternalID     string `json:"external_id,omitempty"`
	Stage          string `json:"stage"`
	Outcome        string `json:"outcome"`
	LatencyMs      int64  `json:"latency_ms"`
	Error          string `json:"error,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

const (
	StageReceived      = "received"
	StageVerified      = "verified"
	StageDetailFetched = "detail_fetched"
	StageNormalized    = "normalized"
	StagePersisted     = "persisted"
)

const (
	IngestOK      = "ok" // intermediate transition succeeded
	IngestCreated = "created"
	IngestSkipped = "skipped"
	IngestFailed  = "failed"
)
