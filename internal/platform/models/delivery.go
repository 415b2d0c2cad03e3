package models

// Delivery is one logical event x subscription chain. The retry scheduler
// owns rows in status "pending"; every other status is terminal.
type Delivery struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	WebhookID      string `json:"webhook_id"`
	EventType      string `json:"event_type"`
	Payload        string `json:"-"` // serialized WebhookEvent, replayed verbatim on retry
	Status         string `json:"status"`
	AttemptCount   int    `json:"attempt_count"`
	NextAttemptAt  int64  `json:"next_attempt_at,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

const (
	DeliveryPending   = "pending"
	DeliverySuccess   = "success"
	DeliveryFailed    = "failed" // permanent, never retried automatically
	DeliveryExhausted = "exhausted"
	DeliveryCancelled = "cancelled" // subscription disabled or deleted mid-chain
)

// DeliveryAttempt is one HTTP call made for a delivery. Append-only.
type DeliveryAttempt struct {
	ID             string `json:"id"`
	DeliveryID     string `json:"delivery_id"`
	WebhookID      string `json:"webhook_id"`
	EventType      string `json:"event_type"`
	PayloadHash    string `json:"payload_hash"`
	AttemptNumber  int    `json:"attempt_number"`
	HTTPStatus     *int   `json:"http_status,omitempty"` // nil on network failure
	ResponseTimeMs int64  `json:"response_time_ms"`
	Outcome        string `json:"outcome"`
	Error          string `json:"error,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

const (
	AttemptSuccess   = "success"
	AttemptFailed    = "failed"
	AttemptExhausted = "exhausted"
)
