package models

// Lead is the canonical record the ingestion pipeline produces. The full
// CRM lead entity lives elsewhere; this carries only what ingestion owns.
type Lead struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	ExternalID     string            `json:"external_id"`
	Name           string            `json:"name,omitempty"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Source         string            `json:"source"`
	CustomFields   map[string]string `json:"custom_fields,omitempty"` // JSON object in DB
	CreatedAt      int64             `json:"created_at"`
}

// MappingPair projects one provider field key onto a canonical field name.
type MappingPair struct {
	ExternalKey    string `json:"external_key"`
	CanonicalField string `json:"canonical_field"`
}

// FieldMapping is owned by settings; the pipeline only reads it.
type FieldMapping struct {
	OrganizationID string        `json:"organization_id"`
	Provider       string        `json:"provider"`
	Pairs          []MappingPair `json:"pairs"` // JSON array in DB, order preserved
	UpdatedAt      int64         `json:"updated_at"`
}

// Integration binds a provider resource (page + form) to a tenant and
// carries the access credential used for detail fetches.
type Integration struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Provider       string `json:"provider"`
	PageID         string `json:"page_id"`
	FormID         string `json:"form_id,omitempty"`
	AccessToken    string `json:"-"`
	Enabled        bool   `json:"enabled"`
	CreatedAt      int64  `json:"created_at"`
}
