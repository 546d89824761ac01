package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const singleMatch = `{
  "resourceType": "Bundle",
  "total": 1,
  "entry": [{"resource": {
    "resourceType": "Patient",
    "id": "9449306168",
    "name": [
      {"family": "Smith", "given": ["Ada", "May"]},
      {"family": "Jones", "given": ["Ada"]}
    ],
    "birthDate": "2012-10-01",
    "address": [{"postalCode": "SW1A 1AA"}, {"postalCode": "LS1 4AP"}]
  }}]
}`

func TestClient_Search_SingleMatch(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Patient" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		w.Write([]byte(singleMatch))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 2*time.Second)
	rec, err := c.Search(context.Background(), Query{
		FamilyName:  "Smith",
		GivenName:   "Ada",
		DateOfBirth: time.Date(2012, 10, 1, 0, 0, 0, 0, time.UTC),
		Postcode:    "SW1A 1AA",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.NHSNumber != "9449306168" {
		t.Errorf("unexpected NHS number %s", rec.NHSNumber)
	}
	if rec.GivenName != "Ada" || rec.FamilyName != "Smith" {
		t.Errorf("unexpected name %s %s", rec.GivenName, rec.FamilyName)
	}
	if len(rec.HistoricNames) != 1 || rec.HistoricNames[0] != "Ada Jones" {
		t.Errorf("unexpected historic names %v", rec.HistoricNames)
	}
	if rec.Postcode != "SW1A 1AA" || len(rec.HistoricPostcode) != 1 {
		t.Errorf("unexpected postcodes %s %v", rec.Postcode, rec.HistoricPostcode)
	}

	if query["birthdate"] != "eq2012-10-01" {
		t.Errorf("expected birthdate=eq2012-10-01, got %q", query["birthdate"])
	}
	if query["_history"] != "true" {
		t.Error("expected history search")
	}
	if query["address-postalcode"] != "SW1A 1AA" {
		t.Errorf("unexpected postcode param %q", query["address-postalcode"])
	}
}

func TestClient_Search_NoUniqueMatch(t *testing.T) {
	for name, body := range map[string]string{
		"none":     `{"resourceType":"Bundle","total":0}`,
		"multiple": `{"resourceType":"Bundle","total":2,"entry":[{"resource":{"id":"1"}},{"resource":{"id":"2"}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			rec, err := NewClient(srv.URL, time.Second).Search(context.Background(), Query{FamilyName: "Smith"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec != nil {
				t.Errorf("expected no record, got %+v", rec)
			}
		})
	}
}

func TestClient_Search_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).Search(context.Background(), Query{}); err == nil {
		t.Error("expected error for 503")
	}
}
