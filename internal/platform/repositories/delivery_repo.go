package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"leadrelay/internal/platform/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, organization_id, webhook_id, event_type, payload, status, attempt_count, next_attempt_at, created_at, updated_at`

func (r *DeliveryRepository) Create(d *models.Delivery) error {
	if d.ID == "" {
		d.ID = "dl_" + uuid.New().String()
	}
	if d.Status == "" {
		d.Status = models.DeliveryPending
	}
	d.CreatedAt = time.Now().Unix()
	d.UpdatedAt = d.CreatedAt

	query := `
		INSERT INTO deliveries (id, organization_id, webhook_id, event_type, payload, status, attempt_count, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, d.ID, d.OrganizationID, d.WebhookID, d.EventType, d.Payload,
		d.Status, d.AttemptCount, nullInt64(d.NextAttemptAt), d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *DeliveryRepository) GetByID(orgID, id string) (*models.Delivery, error) {
	row := r.db.QueryRow(`SELECT `+deliveryColumns+` FROM deliveries WHERE id = ? AND organization_id = ?`, id, orgID)
	return scanDelivery(row)
}

// ListDue returns pending deliveries whose next attempt is due. The
// scheduler is the only caller.
func (r *DeliveryRepository) ListDue(now int64, limit int) ([]*models.Delivery, error) {
	rows, err := r.db.Query(`SELECT `+deliveryColumns+` FROM deliveries
		WHERE status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC LIMIT ?`, models.DeliveryPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (r *DeliveryRepository) ListByWebhook(orgID, webhookID string, limit int) ([]*models.Delivery, error) {
	rows, err := r.db.Query(`SELECT `+deliveryColumns+` FROM deliveries
		WHERE organization_id = ? AND webhook_id = ? ORDER BY created_at DESC LIMIT ?`,
		orgID, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// UpdateOutcome records the result of one attempt on the chain row.
// nextAttemptAt is zero for terminal statuses.
func (r *DeliveryRepository) UpdateOutcome(id, status string, attemptCount int, nextAttemptAt int64) error {
	_, err := r.db.Exec(`UPDATE deliveries SET status = ?, attempt_count = ?, next_attempt_at = ?, updated_at = ? WHERE id = ?`,
		status, attemptCount, nullInt64(nextAttemptAt), time.Now().Unix(), id)
	return err
}

func scanDelivery(row interface{ Scan(...interface{}) error }) (*models.Delivery, error) {
	var d models.Delivery
	var nextAttemptAt sql.NullInt64

	err := row.Scan(&d.ID, &d.OrganizationID, &d.WebhookID, &d.EventType, &d.Payload,
		&d.Status, &d.AttemptCount, &nextAttemptAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if nextAttemptAt.Valid {
		d.NextAttemptAt = nextAttemptAt.Int64
	}
	return &d, nil
}

func nullInt64(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

type AttemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

const attemptColumns = `id, delivery_id, webhook_id, event_type, payload_hash, attempt_number, http_status, response_time_ms, outcome, error, created_at`

// Create appends one attempt record. Rows are never updated afterwards.
func (r *AttemptRepository) Create(a *models.DeliveryAttempt) error {
	if a.ID == "" {
		a.ID = "att_" + uuid.New().String()
	}
	a.CreatedAt = time.Now().Unix()

	var httpStatus interface{}
	if a.HTTPStatus != nil {
		httpStatus = *a.HTTPStatus
	}

	query := `
		INSERT INTO delivery_attempts (id, delivery_id, webhook_id, event_type, payload_hash, attempt_number, http_status, response_time_ms, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, a.ID, a.DeliveryID, a.WebhookID, a.EventType, a.PayloadHash,
		a.AttemptNumber, httpStatus, a.ResponseTimeMs, a.Outcome, nullString(a.Error), a.CreatedAt)
	return err
}

func (r *AttemptRepository) ListByDelivery(deliveryID string) ([]*models.DeliveryAttempt, error) {
	rows, err := r.db.Query(`SELECT `+attemptColumns+` FROM delivery_attempts WHERE delivery_id = ? ORDER BY attempt_number ASC`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// LatestByWebhooks batch-fetches the most recent attempt per webhook so a
// listing can show last delivery state without an N+1 query.
func (r *AttemptRepository) LatestByWebhooks(webhookIDs []string) (map[string]*models.DeliveryAttempt, error) {
	result := make(map[string]*models.DeliveryAttempt)
	if len(webhookIDs) == 0 {
		return result, nil
	}

	placeholders := "?"
	args := []interface{}{webhookIDs[0]}
	for _, id := range webhookIDs[1:] {
		placeholders += ",?"
		args = append(args, id)
	}

	query := `SELECT a.id, a.delivery_id, a.webhook_id, a.event_type, a.payload_hash, a.attempt_number, a.http_status, a.response_time_ms, a.outcome, a.error, a.created_at
		FROM delivery_attempts a
		JOIN (
			SELECT webhook_id, MAX(created_at) AS latest
			FROM delivery_attempts
			WHERE webhook_id IN (` + placeholders + `)
			GROUP BY webhook_id
		) m ON a.webhook_id = m.webhook_id AND a.created_at = m.latest`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts, err := collectAttempts(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		result[a.WebhookID] = a
	}
	return result, nil
}

func collectAttempts(rows *sql.Rows) ([]*models.DeliveryAttempt, error) {
	var attempts []*models.DeliveryAttempt
	for rows.Next() {
		var a models.DeliveryAttempt
		var httpStatus sql.NullInt64
		var errMsg sql.NullString

		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.WebhookID, &a.EventType, &a.PayloadHash,
			&a.AttemptNumber, &httpStatus, &a.ResponseTimeMs, &a.Outcome, &errMsg, &a.CreatedAt); err != nil {
			return nil, err
		}
		if httpStatus.Valid {
			status := int(httpStatus.Int64)
			a.HTTPStatus = &status
		}
		a.Error = errMsg.String
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
