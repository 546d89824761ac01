package status

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/schoolvax/internal/domain/patient"
	"github.com/ehr/schoolvax/internal/domain/session"
	"github.com/ehr/schoolvax/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleNurse))
	g.GET("/sessions/:id/patients/:patient_id/status", h.GetPatientStatus)
	g.POST("/sessions/:id/consent-requests", h.SendConsentRequests)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrNotMember):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConsentClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetPatientStatus(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	st, err := h.svc.PatientStatus(c.Request().Context(), sessionID, patientID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// SendConsentRequests sends reminders instead of first requests when
// ?reminder=true.
func (h *Handler) SendConsentRequests(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var reminder bool
	if err := echo.QueryParamsBinder(c).Bool("reminder", &reminder).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reminder must be a boolean")
	}
	res, err := h.svc.SendConsentRequests(c.Request().Context(), sessionID, reminder)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}
