package programme

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("programme not found")

// Type is the vaccination campaign a programme runs.
type Type string

const (
	TypeFlu     Type = "flu"
	TypeHPV     Type = "hpv"
	TypeMenACWY Type = "menacwy"
	TypeTdIPV   Type = "td_ipv"
)

var validTypes = map[Type]bool{
	TypeFlu: true, TypeHPV: true, TypeMenACWY: true, TypeTdIPV: true,
}

func (t Type) Valid() bool { return validTypes[t] }

// DefaultYearGroups are the school years each programme targets.
// Reception is year group 0.
var DefaultYearGroups = map[Type][]int{
	TypeFlu:     {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	TypeHPV:     {8, 9, 10, 11},
	TypeMenACWY: {9, 10, 11},
	TypeTdIPV:   {9, 10, 11},
}

var names = map[Type]string{
	TypeFlu:     "Flu",
	TypeHPV:     "HPV",
	TypeMenACWY: "MenACWY",
	TypeTdIPV:   "Td/IPV",
}

type Programme struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	YearGroups []int     `json:"year_groups"`
	CreatedAt  time.Time `json:"created_at"`
}

// New returns a programme of type t with its default year groups.
func New(t Type) *Programme {
	yg := append([]int(nil), DefaultYearGroups[t]...)
	return &Programme{ID: uuid.New(), Type: t, YearGroups: yg}
}

func (p *Programme) Name() string { return names[p.Type] }

// Eligible reports whether children in yearGroup are targeted.
func (p *Programme) Eligible(yearGroup int) bool {
	for _, yg := range p.YearGroups {
		if yg == yearGroup {
			return true
		}
	}
	return false
}

// YearGroups returns the sorted union of year groups across programmes.
func YearGroups(programmes []*Programme) []int {
	seen := map[int]bool{}
	var out []int
	for _, p := range programmes {
		for _, yg := range p.YearGroups {
			if !seen[yg] {
				seen[yg] = true
				out = append(out, yg)
			}
		}
	}
	sort.Ints(out)
	return out
}

// AnyEligible reports whether at least one programme targets yearGroup.
func AnyEligible(programmes []*Programme, yearGroup int) bool {
	for _, p := range programmes {
		if p.Eligible(yearGroup) {
			return true
		}
	}
	return false
}

// IDs returns the ids of programmes in order.
func IDs(programmes []*Programme) []uuid.UUID {
	ids := make([]uuid.UUID, len(programmes))
	for i, p := range programmes {
		ids[i] = p.ID
	}
	return ids
}
