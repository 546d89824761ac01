package vaccination

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/schoolvax/internal/platform/auth"
	"github.com/ehr/schoolvax/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleNurse))
	g.POST("/vaccinations", h.RecordVaccination)
	g.GET("/vaccinations", h.ListVaccinations)
	g.GET("/vaccinations/:id", h.GetVaccination)
}

type vaccinationRequest struct {
	PatientID    uuid.UUID  `json:"patient_id" validate:"required"`
	ProgrammeID  uuid.UUID  `json:"programme_id" validate:"required"`
	SessionID    uuid.UUID  `json:"session_id" validate:"required"`
	Administered bool       `json:"administered"`
	Reason       string     `json:"reason" validate:"omitempty,oneof=refused already_had contraindicated absent_from_session not_well other"`
	LotNumber    string     `json:"lot_number" validate:"max=100"`
	Notes        string     `json:"notes" validate:"max=1000"`
	PerformedAt  *time.Time `json:"performed_at"`
}

func (h *Handler) RecordVaccination(c echo.Context) error {
	var req vaccinationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	v := &Vaccination{
		OrganisationID: db.OrganisationFromContext(ctx),
		PatientID:      req.PatientID,
		ProgrammeID:    req.ProgrammeID,
		SessionID:      req.SessionID,
		Administered:   req.Administered,
		Reason:         Reason(req.Reason),
		LotNumber:      req.LotNumber,
		Notes:          req.Notes,
		PerformedBy:    auth.UserIDFromContext(ctx),
	}
	if req.PerformedAt != nil {
		v.PerformedAt = *req.PerformedAt
	} else {
		v.PerformedAt = time.Now()
	}
	if err := v.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RecordVaccination(ctx, v); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListVaccinations(c echo.Context) error {
	sid, err := uuid.Parse(c.QueryParam("session_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}
	items, err := h.svc.ListBySession(c.Request().Context(), sid)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetVaccination(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.GetVaccination(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "vaccination not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, v)
}
