package cohortimport

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/schoolvax/internal/platform/db"
)

func (f *fixture) request(contentType string, body *bytes.Buffer, query string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/cohort-imports"+query, body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req = req.WithContext(db.WithOrganisation(req.Context(), f.orgID))
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != code {
		t.Errorf("expected %d, got %v", code, err)
	}
}

func TestHandler_Import(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.imp)
	c, rec := f.request("text/csv", bytes.NewBufferString(cohortFile), "")

	if err := h.Import(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.New != 2 || got.BlobKey == "" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestHandler_ImportMultipart(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.imp)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "cohort.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(cohortFile))
	w.Close()

	c, rec := f.request(w.FormDataContentType(), &body, "")
	if err := h.Import(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if len(f.patients.store) != 2 {
		t.Errorf("expected 2 patients, got %d", len(f.patients.store))
	}
}

func TestHandler_ImportWithSession(t *testing.T) {
	f := newFixture()
	enroller := &mockEnroller{}
	f.imp.Enroller = enroller
	h := NewHandler(f.imp)
	sessionID := uuid.New()

	c, _ := f.request("text/csv", bytes.NewBufferString(cohortFile), "?session_id="+sessionID.String())
	if err := h.Import(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enroller.calls) != 1 || enroller.calls[0] != sessionID {
		t.Errorf("expected the session enrolled, got %v", enroller.calls)
	}

	c, _ = f.request("text/csv", bytes.NewBufferString(cohortFile), "?session_id=nope")
	expectStatus(t, h.Import(c), http.StatusBadRequest)
}

func TestHandler_ImportBadFile(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.imp)

	c, _ := f.request("text/csv", bytes.NewBufferString("CHILD_FIRST_NAME\nJimmy\n"), "")
	expectStatus(t, h.Import(c), http.StatusBadRequest)

	c, _ = f.request("text/csv", bytes.NewBufferString(""), "")
	expectStatus(t, h.Import(c), http.StatusBadRequest)

	c, _ = f.request("text/csv", bytes.NewBufferString(header+"\"unterminated,Smith\n"), "")
	expectStatus(t, h.Import(c), http.StatusBadRequest)
}

func TestHandler_ImportNoOrganisation(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.imp)
	req := httptest.NewRequest(http.MethodPost, "/cohort-imports", strings.NewReader(cohortFile))
	c := echo.New().NewContext(req, httptest.NewRecorder())
	expectStatus(t, h.Import(c), http.StatusBadRequest)
}
