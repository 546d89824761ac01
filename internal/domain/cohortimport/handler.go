package cohortimport

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/schoolvax/internal/platform/auth"
	"github.com/ehr/schoolvax/internal/platform/db"
)

type Handler struct {
	imp *Importer
}

func NewHandler(imp *Importer) *Handler {
	return &Handler{imp: imp}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleNurse))
	g.POST("/cohort-imports", h.Import)
}

func httpError(err error) error {
	var missing *MissingColumnsError
	var malformed *csv.ParseError
	switch {
	case errors.As(err, &missing), errors.As(err, &malformed), errors.Is(err, ErrEmptyFile):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// Import accepts the file either as a multipart "file" field or as the
// raw request body.
func (h *Handler) Import(c echo.Context) error {
	orgID := db.OrganisationFromContext(c.Request().Context())
	if orgID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "organisation is required")
	}

	req := Request{OrganisationID: orgID}
	if raw := c.QueryParam("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid session_id")
		}
		req.SessionID = &id
	}

	var body io.Reader = c.Request().Body
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()
		body = f
	}
	req.Content = body

	res, err := h.imp.Import(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}
