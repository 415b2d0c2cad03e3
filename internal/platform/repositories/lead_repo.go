package repositories

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"leadrelay/internal/platform/models"
)

type LeadRepository struct {
	db *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create inserts the canonical lead. The UNIQUE(organization_id,
// external_id) constraint is the idempotency enforcement point: concurrent
// redeliveries race here and exactly one insert wins.
func (r *LeadRepository) Create(lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = "lead_" + uuid.New().String()
	}
	lead.CreatedAt = time.Now().Unix()

	customJSON, err := json.Marshal(lead.CustomFields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO leads (id, organization_id, external_id, name, email, phone, source, custom_fields, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, lead.ID, lead.OrganizationID, lead.ExternalID,
		lead.Name, lead.Email, lead.Phone, lead.Source, string(customJSON), lead.CreatedAt)
	return err
}

// IsDuplicateErr reports whether err is the unique-constraint violation
// raised when a lead with the same external id already exists.
func IsDuplicateErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *LeadRepository) FindByExternalID(orgID, externalID string) (*models.Lead, error) {
	row := r.db.QueryRow(`SELECT id, organization_id, external_id, name, email, phone, source, custom_fields, created_at
		FROM leads WHERE organization_id = ? AND external_id = ?`, orgID, externalID)

	var l models.Lead
	var name, email, phone sql.NullString
	var customStr string

	err := row.Scan(&l.ID, &l.OrganizationID, &l.ExternalID, &name, &email, &phone, &l.Source, &customStr, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	l.Name = name.String
	l.Email = email.String
	l.Phone = phone.String
	json.Unmarshal([]byte(customStr), &l.CustomFields)

	return &l, nil
}
