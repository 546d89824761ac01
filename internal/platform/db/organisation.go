package db

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// OrganisationMiddleware scopes every request to one organisation, taken
// from the token claim set by the auth middleware or the
// X-Organisation-ID header.
func OrganisationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := extractOrganisationID(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "organisation is required")
			}
			orgID, err := uuid.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid organisation identifier")
			}

			ctx := WithOrganisation(c.Request().Context(), orgID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("organisation_id", orgID)

			return next(c)
		}
	}
}

func extractOrganisationID(c echo.Context) string {
	if oid, ok := c.Get("jwt_organisation_id").(string); ok && oid != "" {
		return oid
	}
	return c.Request().Header.Get("X-Organisation-ID")
}

// WithOrganisation stores the organisation id on ctx.
func WithOrganisation(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, OrganisationIDKey, id)
}

// OrganisationFromContext returns uuid.Nil when no organisation is set.
func OrganisationFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(OrganisationIDKey).(uuid.UUID)
	return id
}
