package consent

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/schoolvax/internal/platform/auth"
	"github.com/ehr/schoolvax/internal/platform/db"
	"github.com/ehr/schoolvax/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleNurse))
	g.POST("/consents", h.RecordConsent)
	g.POST("/consents/drafts", h.CreateDraft)
	g.GET("/consents", h.ListConsents)
	g.GET("/consents/:id", h.GetConsent)
	g.PATCH("/consents/:id/health-answers/:index", h.UpdateHealthAnswer)
	g.POST("/consents/:id/record", h.RecordDraft)
	g.POST("/consents/:id/withdraw", h.Withdraw)
	g.POST("/consents/:id/invalidate", h.Invalidate)
}

type consentRequest struct {
	PatientID        uuid.UUID     `json:"patient_id" validate:"required"`
	ProgrammeID      uuid.UUID     `json:"programme_id" validate:"required"`
	ParentID         *uuid.UUID    `json:"parent_id"`
	Response         string        `json:"response" validate:"omitempty,oneof=given refused not_provided"`
	Route            string        `json:"route" validate:"required,oneof=verbal paper website self_consent"`
	ReasonForRefusal string        `json:"reason_for_refusal"`
	Notes            string        `json:"notes" validate:"max=1000"`
	HealthAnswers    HealthAnswers `json:"health_answers"`
}

func (r consentRequest) toConsent(c echo.Context) *Consent {
	ctx := c.Request().Context()
	return &Consent{
		OrganisationID:   db.OrganisationFromContext(ctx),
		PatientID:        r.PatientID,
		ProgrammeID:      r.ProgrammeID,
		ParentID:         r.ParentID,
		Response:         Response(r.Response),
		Route:            Route(r.Route),
		ReasonForRefusal: ReasonForRefusal(r.ReasonForRefusal),
		Notes:            r.Notes,
		HealthAnswers:    r.HealthAnswers,
		RecordedBy:       auth.UserIDFromContext(ctx),
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "consent not found")
	case errors.Is(err, ErrAlreadyRecorded), errors.Is(err, ErrCannotWithdraw), errors.Is(err, ErrCannotInvalidate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoSuchAnswer):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func bindConsent(c echo.Context) (*Consent, error) {
	var req consentRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return nil, err
	}
	return req.toConsent(c), nil
}

func (h *Handler) RecordConsent(c echo.Context) error {
	con, err := bindConsent(c)
	if err != nil {
		return err
	}
	if err := con.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RecordConsent(c.Request().Context(), con); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, con)
}

func (h *Handler) CreateDraft(c echo.Context) error {
	con, err := bindConsent(c)
	if err != nil {
		return err
	}
	con.RecordedBy = ""
	if err := con.ValidateDraft(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDraft(c.Request().Context(), con); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, con)
}

func (h *Handler) ListConsents(c echo.Context) error {
	pid, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	pg := pagination.FromContext(c)
	items, err := h.svc.ListByPatient(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	start, end := pg.Bounds(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[start:end], len(items), pg.Limit, pg.Offset))
}

func (h *Handler) GetConsent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	con, err := h.svc.GetConsent(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, con)
}

type healthAnswerRequest struct {
	Response string  `json:"response" validate:"required,oneof=yes no"`
	Notes    *string `json:"notes"`
}

func (h *Handler) UpdateHealthAnswer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid index")
	}
	var req healthAnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	con, err := h.svc.UpdateHealthAnswer(c.Request().Context(), id, index, Answer(req.Response), req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, con)
}

func (h *Handler) RecordDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	con, err := h.svc.RecordDraft(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyRecorded) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, con)
}

type withdrawRequest struct {
	ReasonForRefusal string `json:"reason_for_refusal" validate:"required"`
	Notes            string `json:"notes" validate:"max=1000"`
}

func (h *Handler) Withdraw(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req withdrawRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	reason := ReasonForRefusal(req.ReasonForRefusal)
	if !reason.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reason_for_refusal")
	}
	con, err := h.svc.Withdraw(c.Request().Context(), id, reason, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, con)
}

type invalidateRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

func (h *Handler) Invalidate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req invalidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	con, err := h.svc.Invalidate(c.Request().Context(), id, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, con)
}
