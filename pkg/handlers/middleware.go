package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/resilience"
)

// TenantMiddleware scopes a request to its tenant's database connection.
type TenantMiddleware = func(http.HandlerFunc) http.HandlerFunc

// RateLimit enforces the global and per-tenant budgets at the edge. The
// tenant subject comes from the "tid" path parameter.
func RateLimit(limiter *resilience.RateLimiter, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	globalCfg := resilience.PresetRateLimit("global")
	tenantCfg := resilience.PresetRateLimit("tenant")

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if err := limiter.AllowFixed(r.Context(), "global", globalCfg); err != nil {
				if err := ServiceError(w, err, "rate_limit_failed"); err != nil {
					logger.Error("Failed to write rate limit response", zap.Error(err))
				}
				return
			}
			if tenant := r.PathValue("tid"); tenant != "" {
				if err := limiter.AllowFixed(r.Context(), "tenant:"+tenant, tenantCfg); err != nil {
					if err := ServiceError(w, err, "rate_limit_failed"); err != nil {
						logger.Error("Failed to write rate limit response", zap.Error(err))
					}
					return
				}
			}
			next(w, r)
		}
	}
}

// WithActor attaches the request's actor identity for audit records.
func WithActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := models.ActorContext{
			Source:    models.SourceAPI,
			IP:        r.RemoteAddr,
			UserAgent: r.UserAgent(),
			ActorRole: r.Header.Get("X-Actor-Role"),
		}
		if userID, err := uuid.Parse(r.Header.Get("X-User-ID")); err == nil {
			actor.UserID = &userID
		}
		next(w, r.WithContext(models.WithActor(r.Context(), actor)))
	}
}
