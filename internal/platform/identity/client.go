package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client queries a FHIR Patient search endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type bundle struct {
	Total int `json:"total"`
	Entry []struct {
		Resource patientResource `json:"resource"`
	} `json:"entry"`
}

type patientResource struct {
	ID   string `json:"id"`
	Name []struct {
		Family string   `json:"family"`
		Given  []string `json:"given"`
	} `json:"name"`
	BirthDate string `json:"birthDate"`
	Address   []struct {
		PostalCode string `json:"postalCode"`
	} `json:"address"`
}

func (c *Client) Search(ctx context.Context, q Query) (*Record, error) {
	params := url.Values{}
	params.Set("family", q.FamilyName)
	params.Set("given", q.GivenName)
	params.Set("birthdate", "eq"+q.DateOfBirth.Format("2006-01-02"))
	if q.Postcode != "" {
		params.Set("address-postalcode", q.Postcode)
	}
	params.Set("_history", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/Patient?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search patients: unexpected status %d", resp.StatusCode)
	}

	var b bundle
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	// More than one match is as good as none for identification.
	if len(b.Entry) != 1 {
		return nil, nil
	}
	return toRecord(b.Entry[0].Resource)
}

func toRecord(p patientResource) (*Record, error) {
	rec := &Record{NHSNumber: p.ID}
	if p.BirthDate != "" {
		dob, err := time.Parse("2006-01-02", p.BirthDate)
		if err != nil {
			return nil, fmt.Errorf("parse birthDate %q: %w", p.BirthDate, err)
		}
		rec.DateOfBirth = dob
	}
	for i, n := range p.Name {
		full := strings.TrimSpace(strings.Join(n.Given, " ") + " " + n.Family)
		if i == 0 {
			rec.FamilyName = n.Family
			if len(n.Given) > 0 {
				rec.GivenName = n.Given[0]
			}
			continue
		}
		rec.HistoricNames = append(rec.HistoricNames, full)
	}
	for i, a := range p.Address {
		if i == 0 {
			rec.Postcode = a.PostalCode
			continue
		}
		rec.HistoricPostcode = append(rec.HistoricPostcode, a.PostalCode)
	}
	return rec, nil
}
