package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"leadrelay/internal/platform/models"
)

type IntegrationRepository struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func (r *IntegrationRepository) Create(i *models.Integration) error {
	if i.ID == "" {
		i.ID = "int_" + uuid.New().String()
	}
	i.CreatedAt = time.Now().Unix()

	query := `
		INSERT INTO integrations (id, organization_id, provider, page_id, form_id, access_token, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, i.ID, i.OrganizationID, i.Provider, i.PageID,
		nullString(i.FormID), i.AccessToken, i.Enabled, i.CreatedAt)
	return err
}

// GetByPage resolves which tenant owns a provider page. Returns nil when
// no binding exists; callers must treat that as an unmapped resource, not
// fall back to a default tenant.
func (r *IntegrationRepository) GetByPage(provider, pageID string) (*models.Integration, error) {
	row := r.db.QueryRow(`SELECT id, organization_id, provider, page_id, form_id, access_token, enabled, created_at
		FROM integrations WHERE provider = ? AND page_id = ?`, provider, pageID)
	return scanIntegration(row)
}

func (r *IntegrationRepository) GetByOrgAndPage(orgID, provider, pageID string) (*models.Integration, error) {
	row := r.db.QueryRow(`SELECT id, organization_id, provider, page_id, form_id, access_token, enabled, created_at
		FROM integrations WHERE organization_id = ? AND provider = ? AND page_id = ?`, orgID, provider, pageID)
	return scanIntegration(row)
}

func scanIntegration(row *sql.Row) (*models.Integration, error) {
	var i models.Integration
	var formID sql.NullString

	err := row.Scan(&i.ID, &i.OrganizationID, &i.Provider, &i.PageID, &formID, &i.AccessToken, &i.Enabled, &i.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	i.FormID = formID.String
	return &i, nil
}
