package middleware

import (
	"context"
	"net/http"

	apiContext "leadrelay/internal/api/context"
	"leadrelay/internal/pkg/errors"
	"leadrelay/internal/platform/auth"
)

// TenantContext pins every downstream query to one organization. All
// repository calls take the org id from here, never from request bodies.
type TenantContext struct {
	OrgID string
	Role  string
}

type TenantMiddleware struct{}

func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}
		if claims.OrganizationID == "" {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Token is not bound to an organization", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, &TenantContext{
			OrgID: claims.OrganizationID,
			Role:  claims.Role,
		})

		next(w, r.WithContext(ctx))
	}
}
