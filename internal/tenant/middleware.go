// Package tenant resolves the tenant context for incoming requests. Tenants
// authenticate with their API key; everything behind the middleware can rely
// on a tenant being present in the request context.
package tenant

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type ctxKey struct{}

// WithTenant returns a context carrying the tenant.
func WithTenant(ctx context.Context, t *models.Tenant) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the tenant stored in the context, if any.
func FromContext(ctx context.Context) (*models.Tenant, bool) {
	t, ok := ctx.Value(ctxKey{}).(*models.Tenant)
	return t, ok
}

// Middleware authenticates the request's bearer token against the tenant
// table and injects the tenant into the request context.
func Middleware(repo repository.Repository, logger Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing tenant token")
			}
			apiKey := strings.TrimPrefix(header, "Bearer ")

			t, err := repo.GetTenantByAPIKey(c.Request().Context(), apiKey)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "unknown tenant token")
				}
				logger.Error("tenant lookup failed", "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "tenant lookup failed")
			}

			ctx := WithTenant(c.Request().Context(), t)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
