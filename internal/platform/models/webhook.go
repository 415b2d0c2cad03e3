package models

type Webhook struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Events         []string          `json:"events"` // JSON array in DB
	Secret         string            `json:"-"`
	MaskedSecret   string            `json:"secret,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"` // JSON object in DB
	Enabled        bool              `json:"enabled"`
	APIKeyHash     string            `json:"-"`
	ReceiverPath   string            `json:"receiver_path,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
	CreatedAt      int64             `json:"created_at"`
	UpdatedAt      int64             `json:"updated_at"`

	// Populated on listing only, never stored on the webhook row.
	LastAttempt *DeliveryAttempt `json:"last_attempt,omitempty"`
}

// SubscribesTo reports whether the webhook wants the given event type.
func (w *Webhook) SubscribesTo(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// WebhookEvent is the outbound payload body POSTed to a subscriber.
type WebhookEvent struct {
	Event          string      `json:"event"`
	Timestamp      string      `json:"timestamp"` // ISO 8601
	OrganizationID string      `json:"organizationId"`
	Data           interface{} `json:"data"`
}
