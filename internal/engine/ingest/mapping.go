package ingest

import (
	"strings"

	"leadrelay/internal/engine/ingest/provider"
	"leadrelay/internal/platform/models"
)

// Normalize projects raw provider fields onto the canonical lead using the
// tenant's field mapping. Provider fields with no mapping entry are kept
// in the custom-fields bucket, never dropped.
func Normalize(orgID, externalID, source string, fields []provider.Field, mapping *models.FieldMapping) *models.Lead {
	lead := &models.Lead{
		OrganizationID: orgID,
		ExternalID:     externalID,
		Source:         source,
		CustomFields:   make(map[string]string),
	}

	for _, field := range fields {
		value := strings.Join(field.Values, ", ")
		target, mapped := lookupTarget(mapping, field.Name)
		if !mapped {
			lead.CustomFields[field.Name] = value
			continue
		}

		switch target {
		case "name", "full_name":
			lead.Name = value
		case "email":
			lead.Email = value
		case "phone", "phone_number":
			lead.Phone = value
		default:
			lead.CustomFields[target] = value
		}
	}

	return lead
}

func lookupTarget(mapping *models.FieldMapping, externalKey string) (string, bool) {
	if mapping == nil {
		return "", false
	}
	for _, pair := range mapping.Pairs {
		if pair.ExternalKey == externalKey {
			return pair.CanonicalField, true
		}
	}
	return "", false
}
