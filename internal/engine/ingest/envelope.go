package ingest

import "encoding/json"

// Envelope is the provider's page-style webhook body. Only the leadgen
// items are of interest; everything else is ignored without error.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string    `json:"id"`
	Time      int64     `json:"time"`
	Changes   []Change  `json:"changes"`
	Messaging []Message `json:"messaging"`
}

type Change struct {
	Field string  `json:"field"`
	Value Leadgen `json:"value"`
}

type Message struct {
	Leadgen *Leadgen `json:"leadgen,omitempty"`
}

// Leadgen identifies one lead notification. Providers are inconsistent
// about the id key, hence both leadgen_id and id.
type Leadgen struct {
	LeadgenID   string `json:"leadgen_id"`
	ID          string `json:"id"`
	PageID      string `json:"page_id"`
	FormID      string `json:"form_id"`
	CreatedTime int64  `json:"created_time"`
}

// ExternalID is the provider-assigned identifier used as the idempotency key.
func (l Leadgen) ExternalID() string {
	if l.LeadgenID != "" {
		return l.LeadgenID
	}
	return l.ID
}

func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// LeadEvents collects every leadgen item across entries, from both the
// changes and messaging shapes.
func (e *Envelope) LeadEvents() []Leadgen {
	var events []Leadgen
	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			if change.Field == "leadgen" && change.Value.ExternalID() != "" {
				events = append(events, change.Value)
			}
		}
		for _, msg := range entry.Messaging {
			if msg.Leadgen != nil && msg.Leadgen.ExternalID() != "" {
				events = append(events, *msg.Leadgen)
			}
		}
	}
	return events
}
