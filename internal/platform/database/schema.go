package database

import "database/sql"

// Schema creates all tables. Used by cmd/migrate and by repository tests
// against in-memory databases.
const Schema = `
CREATE TABLE IF NOT EXISTS webhooks (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	events TEXT NOT NULL DEFAULT '[]',
	secret TEXT NOT NULL,
	headers TEXT NOT NULL DEFAULT '{}',
	enabled INTEGER NOT NULL DEFAULT 1,
	api_key_hash TEXT,
	receiver_path TEXT UNIQUE,
	last_error TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_webhooks_org ON webhooks(organization_id);

CREATE TABLE IF NOT EXISTS deliveries (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	webhook_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempt_count INTEGER NOT NULL DEFAULT 0,
	next_attempt_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_due ON deliveries(status, next_attempt_at);
CREATE INDEX IF NOT EXISTS idx_deliveries_webhook ON deliveries(webhook_id);

CREATE TABLE IF NOT EXISTS delivery_attempts (
	id TEXT PRIMARY KEY,
	delivery_id TEXT NOT NULL,
	webhook_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	attempt_number INTEGER NOT NULL,
	http_status INTEGER,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	error TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_delivery ON delivery_attempts(delivery_id);
CREATE INDEX IF NOT EXISTS idx_attempts_webhook ON delivery_attempts(webhook_id, created_at);

CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	external_id TEXT NOT NULL,
	name TEXT,
	email TEXT,
	phone TEXT,
	source TEXT NOT NULL,
	custom_fields TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	UNIQUE(organization_id, external_id)
);

CREATE TABLE IF NOT EXISTS field_mappings (
	organization_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	mapping TEXT NOT NULL DEFAULT '[]',
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (organization_id, provider)
);

CREATE TABLE IF NOT EXISTS integrations (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	page_id TEXT NOT NULL,
	form_id TEXT,
	access_token TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	UNIQUE(provider, page_id)
);

CREATE TABLE IF NOT EXISTS ingestion_events (
	id TEXT PRIMARY KEY,
	organization_id TEXT,
	provider TEXT NOT NULL,
	external_id TEXT,
	stage TEXT NOT NULL,
	outcome TEXT NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingestion_org ON ingestion_events(organization_id, created_at);
`

func Migrate(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
