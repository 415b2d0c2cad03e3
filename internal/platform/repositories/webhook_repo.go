package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"leadrelay/internal/platform/models"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, organization_id, name, url, events, secret, headers, enabled, api_key_hash, receiver_path, last_error, created_at, updated_at`

func (r *WebhookRepository) Create(webhook *models.Webhook) error {
	if webhook.ID == "" {
		webhook.ID = "wh_" + uuid.New().String()
	}
	webhook.CreatedAt = time.Now().Unix()
	webhook.UpdatedAt = webhook.CreatedAt

	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}
	headersJSON, err := json.Marshal(webhook.Headers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhooks (id, organization_id, name, url, events, secret, headers, enabled, api_key_hash, receiver_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		webhook.ID, webhook.OrganizationID, webhook.Name, webhook.URL,
		string(eventsJSON), webhook.Secret, string(headersJSON), webhook.Enabled,
		nullString(webhook.APIKeyHash), nullString(webhook.ReceiverPath),
		webhook.CreatedAt, webhook.UpdatedAt)
	return err
}

func (r *WebhookRepository) GetByID(orgID, id string) (*models.Webhook, error) {
	row := r.db.QueryRow(`SELECT `+webhookColumns+` FROM webhooks WHERE id = ? AND organization_id = ?`, id, orgID)
	return scanWebhook(row)
}

// GetByReceiverPath resolves an inbound receiver URL segment. Not org
// scoped: the path itself is the tenant handle.
func (r *WebhookRepository) GetByReceiverPath(path string) (*models.Webhook, error) {
	row := r.db.QueryRow(`SELECT `+webhookColumns+` FROM webhooks WHERE receiver_path = ?`, path)
	return scanWebhook(row)
}

func (r *WebhookRepository) ListByOrg(orgID string) ([]*models.Webhook, error) {
	rows, err := r.db.Query(`SELECT `+webhookColumns+` FROM webhooks WHERE organization_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// ListEnabledForEvent returns enabled webhooks of one tenant subscribed to
// the event type. Event filtering happens in app code since events is a
// JSON text column.
func (r *WebhookRepository) ListEnabledForEvent(orgID, eventType string) ([]*models.Webhook, error) {
	rows, err := r.db.Query(`SELECT `+webhookColumns+` FROM webhooks WHERE organization_id = ? AND enabled = 1`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		if w.SubscribesTo(eventType) {
			matched = append(matched, w)
		}
	}
	return matched, rows.Err()
}

func (r *WebhookRepository) Update(webhook *models.Webhook) error {
	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}
	headersJSON, err := json.Marshal(webhook.Headers)
	if err != nil {
		return err
	}
	webhook.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE webhooks
		SET name = ?, url = ?, events = ?, headers = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?
	`
	_, err = r.db.Exec(query, webhook.Name, webhook.URL, string(eventsJSON), string(headersJSON),
		webhook.Enabled, webhook.UpdatedAt, webhook.ID, webhook.OrganizationID)
	return err
}

// RotateSecret swaps the signing secret in a single UPDATE so the old
// secret is invalidated atomically.
func (r *WebhookRepository) RotateSecret(orgID, id, newSecret string) error {
	res, err := r.db.Exec(`UPDATE webhooks SET secret = ?, last_error = NULL, updated_at = ? WHERE id = ? AND organization_id = ?`,
		newSecret, time.Now().Unix(), id, orgID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkInvalid disables a webhook that cannot be delivered to because of a
// configuration problem (e.g. missing secret).
func (r *WebhookRepository) MarkInvalid(id, reason string) error {
	_, err := r.db.Exec(`UPDATE webhooks SET enabled = 0, last_error = ?, updated_at = ? WHERE id = ?`,
		reason, time.Now().Unix(), id)
	return err
}

// Delete removes the subscription. Delivery history is retained for audit.
func (r *WebhookRepository) Delete(orgID, id string) error {
	_, err := r.db.Exec(`DELETE FROM webhooks WHERE id = ? AND organization_id = ?`, id, orgID)
	return err
}

func scanWebhook(row interface{ Scan(...interface{}) error }) (*models.Webhook, error) {
	var w models.Webhook
	var eventsStr, headersStr string
	var apiKeyHash, receiverPath, lastError sql.NullString

	err := row.Scan(&w.ID, &w.OrganizationID, &w.Name, &w.URL, &eventsStr, &w.Secret,
		&headersStr, &w.Enabled, &apiKeyHash, &receiverPath, &lastError, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	w.APIKeyHash = apiKeyHash.String
	w.ReceiverPath = receiverPath.String
	w.LastError = lastError.String
	json.Unmarshal([]byte(eventsStr), &w.Events)
	json.Unmarshal([]byte(headersStr), &w.Headers)

	return &w, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
