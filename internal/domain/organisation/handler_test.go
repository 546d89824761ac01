package organisation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/schoolvax/internal/platform/middleware"
)

type mockRepo struct {
	store map[uuid.UUID]*Organisation
	links map[uuid.UUID][]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: map[uuid.UUID]*Organisation{}, links: map[uuid.UUID][]uuid.UUID{}}
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Organisation, error) {
	o, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockRepo) Create(_ context.Context, o *Organisation, programmeIDs []uuid.UUID) error {
	o.ID = uuid.New()
	m.store[o.ID] = o
	m.links[o.ID] = programmeIDs
	return nil
}

func newTestHandler() (*Handler, *mockRepo, *echo.Echo) {
	repo := newMockRepo()
	e := echo.New()
	e.Validator = middleware.NewValidator()
	return NewHandler(repo), repo, e
}

func TestHandler_Create(t *testing.T) {
	h, repo, e := newTestHandler()
	body := `{"name":"Leeds SAIS","ods_code":"RR8","programme_ids":["` + uuid.New().String() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if len(repo.store) != 1 {
		t.Errorf("expected organisation to be stored")
	}
}

func TestHandler_Create_BadRequest(t *testing.T) {
	h, _, e := newTestHandler()
	for _, body := range []string{
		`{"name":"Leeds SAIS","ods_code":"RR8"}`,
		`{"name":"Leeds SAIS","ods_code":"not valid","programme_ids":["` + uuid.New().String() + `"]}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())
		err := h.Create(c)
		if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %v", body, err)
		}
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.Get(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
