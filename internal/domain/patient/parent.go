package patient

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrParentNotFound = errors.New("parent not found")

type Parent struct {
	ID                  uuid.UUID `json:"id"`
	FullName            string    `json:"full_name"`
	Email               string    `json:"email,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	PhoneReceiveUpdates bool      `json:"phone_receive_updates"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// MatchKey identifies a parent across import rows: full name and email,
// compared case-insensitively.
func MatchKey(fullName, email string) string {
	return strings.ToLower(strings.TrimSpace(fullName)) + "\x00" + strings.ToLower(strings.TrimSpace(email))
}

func (p *Parent) MatchKey() string { return MatchKey(p.FullName, p.Email) }

type Relationship string

const (
	RelationshipFather   Relationship = "father"
	RelationshipMother   Relationship = "mother"
	RelationshipGuardian Relationship = "guardian"
	RelationshipOther    Relationship = "other"
)

var relationshipSynonyms = map[string]Relationship{
	"dad":      RelationshipFather,
	"father":   RelationshipFather,
	"mum":      RelationshipMother,
	"mother":   RelationshipMother,
	"guardian": RelationshipGuardian,
}

// ParentRelationship links a parent to a child. OtherName keeps the
// original label when the relationship is not one of the known kinds.
type ParentRelationship struct {
	ID        uuid.UUID    `json:"id"`
	ParentID  uuid.UUID    `json:"parent_id"`
	PatientID uuid.UUID    `json:"patient_id"`
	Type      Relationship `json:"type"`
	OtherName string       `json:"other_name,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ParseRelationship maps a free-text label to a relationship kind. Unknown
// labels become RelationshipOther with the label preserved.
func ParseRelationship(label string) (Relationship, string) {
	label = strings.TrimSpace(label)
	if r, ok := relationshipSynonyms[strings.ToLower(label)]; ok {
		return r, ""
	}
	return RelationshipOther, label
}

// Label is the display text for the relationship.
func (r *ParentRelationship) Label() string {
	switch r.Type {
	case RelationshipFather:
		return "Dad"
	case RelationshipMother:
		return "Mum"
	case RelationshipGuardian:
		return "Guardian"
	default:
		if r.OtherName != "" {
			return r.OtherName
		}
		return "Parent or guardian"
	}
}
