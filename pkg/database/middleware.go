package database

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantResolver resolves the tenant a request is authorised for.
// The production implementation verifies the bearer credential against the
// external auth service; tests supply a static resolver.
type TenantResolver interface {
	ResolveTenant(r *http.Request) (uuid.UUID, error)
}

// TenantResolverFunc adapts a function to the TenantResolver interface.
type TenantResolverFunc func(r *http.Request) (uuid.UUID, error)

// ResolveTenant implements TenantResolver.
func (f TenantResolverFunc) ResolveTenant(r *http.Request) (uuid.UUID, error) {
	return f(r)
}

// WithTenantContext creates middleware that sets up a tenant-scoped DB connection.
// It runs AFTER the external auth layer and rejects requests whose resolved
// tenant does not match the tenant in the request path.
// The connection is automatically cleaned up after the handler returns.
func WithTenantContext(db *DB, resolver TenantResolver, pathTenant func(*http.Request) string, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			resolved, err := resolver.ResolveTenant(r)
			if err != nil {
				logger.Warn("Failed to resolve tenant from credentials", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials")
				return
			}

			tenantID, err := uuid.Parse(pathTenant(r))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_tenant_id", "Invalid tenant ID format")
				return
			}

			if resolved != tenantID {
				logger.Warn("Tenant mismatch between credential and path",
					zap.String("credential_tenant", resolved.String()),
					zap.String("path_tenant", tenantID.String()))
				writeError(w, http.StatusForbidden, "forbidden", "Tenant mismatch")
				return
			}

			scope, err := db.WithTenant(r.Context(), tenantID)
			if err != nil {
				logger.Error("Failed to acquire tenant connection",
					zap.String("tenant_id", tenantID.String()),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			ctx := SetTenantScope(r.Context(), scope)
			next(w, r.WithContext(ctx))
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
