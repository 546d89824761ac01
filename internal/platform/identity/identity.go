// Package identity looks up children in the national demographic
// registry (PDS). Lookups are best effort: a nil record with a nil error
// means no unique match.
package identity

import (
	"context"
	"time"
)

// Query is the demographic search the cohort import makes for rows that
// arrive without an NHS number.
type Query struct {
	FamilyName  string
	GivenName   string
	DateOfBirth time.Time
	Postcode    string
}

// Record is a single registry match. Historic names and postcodes are
// included because the search covers history.
type Record struct {
	NHSNumber        string
	GivenName        string
	FamilyName       string
	DateOfBirth      time.Time
	Postcode         string
	HistoricNames    []string
	HistoricPostcode []string
}

type Lookup interface {
	Search(ctx context.Context, q Query) (*Record, error)
}
