package ingest

import "testing"

func TestParseEnvelope_LeadEvents(t *testing.T) {
	body := []byte(`{
		"object": "page",
		"entry": [
			{
				"id": "pg_1",
				"time": 1700000000,
				"changes": [
					{"field": "leadgen", "value": {"leadgen_id": "lg_001", "page_id": "pg_1", "form_id": "form_1", "created_time": 1700000000}},
					{"field": "feed", "value": {"id": "post_1"}}
				]
			},
			{
				"id": "pg_2",
				"messaging": [
					{"leadgen": {"id": "lg_002", "page_id": "pg_2"}},
					{}
				]
			}
		]
	}`)

	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}

	events := env.LeadEvents()
	if len(events) != 2 {
		t.Fatalf("Expected 2 lead events, got %d", len(events))
	}

	if events[0].ExternalID() != "lg_001" || events[0].PageID != "pg_1" {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	// The messaging shape only carries a bare id.
	if events[1].ExternalID() != "lg_002" || events[1].PageID != "pg_2" {
		t.Errorf("Unexpected second event: %+v", events[1])
	}
}

func TestParseEnvelope_IgnoresNonLeadPayloads(t *testing.T) {
	body := []byte(`{"object":"page","entry":[{"id":"pg_1","changes":[{"field":"feed","value":{"id":"post_1"}}]}]}`)

	env, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if events := env.LeadEvents(); len(events) != 0 {
		t.Errorf("Expected no lead events, got %d", len(events))
	}
}

func TestParseEnvelope_Malformed(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{"object":`)); err == nil {
		t.Error("Expected error for malformed body")
	}
}

func TestLeadgen_ExternalID(t *testing.T) {
	if got := (Leadgen{LeadgenID: "lg_1", ID: "x_1"}).ExternalID(); got != "lg_1" {
		t.Errorf("Expected leadgen_id preferred, got %s", got)
	}
	if got := (Leadgen{ID: "x_1"}).ExternalID(); got != "x_1" {
		t.Errorf("Expected id fallback, got %s", got)
	}
	if got := (Leadgen{}).ExternalID(); got != "" {
		t.Errorf("Expected empty external id, got %s", got)
	}
}
