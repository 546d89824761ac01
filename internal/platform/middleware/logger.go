package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one "request" event per call. Failed handlers log at
// error level with the returned error attached.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			rid, _ := c.Get("request_id").(string)
			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", statusOf(c, err)).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if orgID, ok := c.Get("organisation_id").(uuid.UUID); ok {
				evt = evt.Str("organisation_id", orgID.String())
			}
			evt.Msg("request")

			return err
		}
	}
}

// statusOf reports the status the error handler will write, since the
// response has not been committed yet when a handler returns an error.
func statusOf(c echo.Context, err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return c.Response().Status
}
