package triage

import (
	"errors"
	"net/http"

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
	g.POST("/triages", h.RecordTriage)
	g.GET("/triages", h.ListTriages)
	g.GET("/triages/:id", h.GetTriage)
}

type triageRequest struct {
	PatientID   uuid.UUID `json:"patient_id" validate:"required"`
	ProgrammeID uuid.UUID `json:"programme_id" validate:"required"`
	Status      string    `json:"status" validate:"required,oneof=ready_to_vaccinate do_not_vaccinate needs_follow_up delay_vaccination"`
	Notes       string    `json:"notes" validate:"max=1000"`
}

func (h *Handler) RecordTriage(c echo.Context) error {
	var req triageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	t := &Triage{
		OrganisationID: db.OrganisationFromContext(ctx),
		PatientID:      req.PatientID,
		ProgrammeID:    req.ProgrammeID,
		Status:         Status(req.Status),
		Notes:          req.Notes,
		PerformedBy:    auth.UserIDFromContext(ctx),
	}
	if err := h.svc.RecordTriage(ctx, t); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTriages(c echo.Context) error {
	pid, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	prog, err := uuid.Parse(c.QueryParam("programme_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid programme_id")
	}
	items, err := h.svc.ListByPatient(c.Request().Context(), pid, prog)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetTriage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetTriage(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "triage not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}
