package repositories

import (
	"database/sql"
	"encoding/json"

	"leadrelay/internal/platform/models"
)

// MappingRepository reads per-tenant field mappings. Writes happen in the
// settings service, outside this codebase.
type MappingRepository struct {
	db *sql.DB
}

func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

func (r *MappingRepository) Get(orgID, provider string) (*models.FieldMapping, error) {
	row := r.db.QueryRow(`SELECT organization_id, provider, mapping, updated_at FROM field_mappings WHERE organization_id = ? AND provider = ?`,
		orgID, provider)

	var m models.FieldMapping
	var mappingStr string

	err := row.Scan(&m.OrganizationID, &m.Provider, &mappingStr, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(mappingStr), &m.Pairs); err != nil {
		return nil, err
	}
	return &m, nil
}
