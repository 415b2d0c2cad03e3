package audit

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"leadrelay/internal/platform/models"
)

// Recorder appends ingestion audit entries. Writes are synchronous so a
// transition is durably logged before the pipeline moves on; rows are
// never updated or deleted.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Record(e *models.IngestionEvent) {
	if e.ID == "" {
		e.ID = "ing_" + uuid.New().String()
	}
	e.CreatedAt = time.Now().Unix()

	query := `
		INSERT INTO ingestion_events (id, organization_id, provider, external_id, stage, outcome, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, e.ID, orNull(e.OrganizationID), e.Provider, orNull(e.ExternalID),
		e.Stage, e.Outcome, e.LatencyMs, orNull(e.Error), e.CreatedAt)
	if err != nil {
		// The audit trail must never fail the pipeline itself.
		log.Error().Err(err).Str("external_id", e.ExternalID).Msg("failed to write ingestion audit entry")
	}
}

func (r *Recorder) ListByOrg(orgID string, limit int) ([]*models.IngestionEvent, error) {
	rows, err := r.db.Query(`SELECT id, organization_id, provider, external_id, stage, outcome, latency_ms, error, created_at
		FROM ingestion_events WHERE organization_id = ? ORDER BY created_at DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.IngestionEvent
	for rows.Next() {
		var e models.IngestionEvent
		var orgCol, externalID, errMsg sql.NullString

		if err := rows.Scan(&e.ID, &orgCol, &e.Provider, &externalID, &e.Stage, &e.Outcome, &e.LatencyMs, &errMsg, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OrganizationID = orgCol.String
		e.ExternalID = externalID.String
		e.Error = errMsg.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

func orNull(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
