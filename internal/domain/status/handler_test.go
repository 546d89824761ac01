package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != code {
		t.Errorf("expected %d, got %v", code, err)
	}
}

func TestHandler_GetPatientStatus(t *testing.T) {
	h, f, e := newTestHandler()
	p := f.member(8)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id", "patient_id")
	c.SetParamValues(f.sess.ID.String(), p.ID.String())
	if err := h.GetPatientStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got PatientStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Programmes) != 2 || got.Programmes[0].NextStep != NoConsent {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id", "patient_id")
	c.SetParamValues(f.sess.ID.String(), uuid.NewString())
	expectStatus(t, h.GetPatientStatus(c), http.StatusNotFound)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id", "patient_id")
	c.SetParamValues(f.sess.ID.String(), "x")
	expectStatus(t, h.GetPatientStatus(c), http.StatusBadRequest)
}

func TestHandler_SendConsentRequests(t *testing.T) {
	h, f, e := newTestHandler()
	f.member(6)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/?reminder=true", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.sess.ID.String())
	if err := h.SendConsentRequests(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res ConsentRequestResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Sent != 1 || res.Trigger != "consent_reminder" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/?reminder=maybe", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.sess.ID.String())
	expectStatus(t, h.SendConsentRequests(c), http.StatusBadRequest)

	f.sess.Dates = []time.Time{f.now.AddDate(0, 0, -3)}
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.sess.ID.String())
	expectStatus(t, h.SendConsentRequests(c), http.StatusConflict)
}
