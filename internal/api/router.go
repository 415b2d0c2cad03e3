package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "leadrelay/internal/api/context"
	"leadrelay/internal/api/handlers"
	"leadrelay/internal/api/middleware"
	"leadrelay/internal/pkg/errors"
	"leadrelay/internal/platform/auth"
)

type Dependencies struct {
	WebhookHandler   *handlers.WebhookHandler
	InboundHandler   *handlers.InboundHandler
	SyncHandler      *handlers.SyncHandler
	IngestionHandler *handlers.IngestionHandler
	HealthHandler    *handlers.HealthHandler
	AuthMiddleware   *middleware.AuthMiddleware
	TenantMiddleware *middleware.TenantMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Public inbound endpoints; verification happens inside the handlers.
	router.GET("/hooks/:provider", wrap(deps.InboundHandler.Verify))
	router.POST("/hooks/:provider", wrap(deps.InboundHandler.Receive))
	router.POST("/hooks/receivers/:receiver_path", wrap(deps.InboundHandler.ReceiveDirect))

	router.GET("/healthz", wrap(deps.HealthHandler.Check))

	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware

	// Webhook registry
	router.POST("/api/v1/webhooks",
		chain(deps.WebhookHandler.Create, authMid.Handle, tenantMid.Handle, requireRole("admin", "owner")))
	router.GET("/api/v1/webhooks",
		chain(deps.WebhookHandler.List, authMid.Handle, tenantMid.Handle))
	router.GET("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Get, authMid.Handle, tenantMid.Handle))
	router.PATCH("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Update, authMid.Handle, tenantMid.Handle, requireRole("admin", "owner")))
	router.DELETE("/api/v1/webhooks/:webhook_id",
		chain(deps.WebhookHandler.Delete, authMid.Handle, tenantMid.Handle, requireRole("admin", "owner")))
	router.POST("/api/v1/webhooks/:webhook_id/rotate-secret",
		chain(deps.WebhookHandler.RotateSecret, authMid.Handle, tenantMid.Handle, requireRole("admin", "owner")))
	router.POST("/api/v1/webhooks/:webhook_id/test",
		chain(deps.WebhookHandler.Test, authMid.Handle, tenantMid.Handle))

	// Delivery log
	router.GET("/api/v1/webhooks/:webhook_id/deliveries",
		chain(deps.WebhookHandler.ListDeliveries, authMid.Handle, tenantMid.Handle))
	router.GET("/api/v1/deliveries/:delivery_id",
		chain(deps.WebhookHandler.GetDelivery, authMid.Handle, tenantMid.Handle))
	router.POST("/api/v1/deliveries/:delivery_id/retry",
		chain(deps.WebhookHandler.RetryDelivery, authMid.Handle, tenantMid.Handle))

	// Ingestion
	router.POST("/api/v1/integrations/sync",
		chain(deps.SyncHandler.Sync, authMid.Handle, tenantMid.Handle, requireRole("admin", "owner")))
	router.GET("/api/v1/ingestion-events",
		chain(deps.IngestionHandler.List, authMid.Handle, tenantMid.Handle))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
