package session

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
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/:id", h.GetSession)
	g.GET("/sessions/:id/members", h.ListMembers)
	g.POST("/sessions/:id/enroll", h.Enroll)
	g.POST("/sessions/:id/close", h.Close)
	g.GET("/sessions/:id/proposals", h.ListProposals)
	g.POST("/sessions/:id/proposals/:pid/confirm", h.ConfirmProposal)
	g.POST("/sessions/:id/proposals/:pid/decline", h.DeclineProposal)
}

type sessionResponse struct {
	*Session
	State          State      `json:"state"`
	CloseConsentAt *time.Time `json:"close_consent_at,omitempty"`
	OpenForConsent bool       `json:"open_for_consent"`
}

func newSessionResponse(s *Session, now time.Time) sessionResponse {
	return sessionResponse{
		Session:        s,
		State:          s.State(now),
		CloseConsentAt: s.CloseConsentAt(),
		OpenForConsent: s.OpenForConsent(now),
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, ErrLocationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "location not found")
	case errors.Is(err, ErrProposalNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "proposal not found")
	case errors.Is(err, ErrSessionClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotEnrollable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type createRequest struct {
	LocationID   uuid.UUID   `json:"location_id" validate:"required"`
	ProgrammeIDs []uuid.UUID `json:"programme_ids" validate:"required,min=1"`
	AcademicYear int         `json:"academic_year" validate:"required,min=2000"`
	Dates        []string    `json:"dates"`
}

func (h *Handler) CreateSession(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	sess := &Session{
		OrganisationID: db.OrganisationFromContext(c.Request().Context()),
		LocationID:     req.LocationID,
		ProgrammeIDs:   req.ProgrammeIDs,
		AcademicYear:   req.AcademicYear,
	}
	for _, d := range req.Dates {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "dates must be YYYY-MM-DD")
		}
		sess.Dates = append(sess.Dates, t)
	}
	if err := sess.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateSession(c.Request().Context(), sess); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newSessionResponse(sess, time.Now()))
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.GetSession(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(sess, time.Now()))
}

func (h *Handler) ListMembers(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	ms, err := h.svc.ListMembers(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ms)
}

func (h *Handler) Enroll(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Enroll(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Close(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Close(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListProposals(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	ps, err := h.svc.ListProposals(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ps)
}

func proposalParams(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	id, err := sessionID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	pid, err := uuid.Parse(c.Param("pid"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid proposal id")
	}
	return id, pid, nil
}

func (h *Handler) ConfirmProposal(c echo.Context) error {
	id, pid, err := proposalParams(c)
	if err != nil {
		return err
	}
	prop, err := h.svc.ConfirmProposal(c.Request().Context(), id, pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, prop)
}

func (h *Handler) DeclineProposal(c echo.Context) error {
	id, pid, err := proposalParams(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeclineProposal(c.Request().Context(), id, pid); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
