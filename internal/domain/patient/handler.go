package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	g.GET("/patients/:id", h.GetPatient)
	g.POST("/patients/:id/pending-changes/approve", h.ApprovePendingChanges)
	g.POST("/patients/:id/pending-changes/discard", h.DiscardPendingChanges)
}

type patientResponse struct {
	*Patient
	PendingFields []string        `json:"pending_fields"`
	Parents       []ParentContact `json:"parents"`
}

func httpError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		return httpError(err)
	}
	parents, err := h.svc.ListParents(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, patientResponse{Patient: p, PendingFields: p.PendingChanges.Fields(), Parents: parents})
}

func (h *Handler) ApprovePendingChanges(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.ApplyPendingChanges(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DiscardPendingChanges(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.DiscardPendingChanges(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}
