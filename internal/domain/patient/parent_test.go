package patient

import "testing"

func TestParseRelationship(t *testing.T) {
	tests := []struct {
		label string
		want  Relationship
		other string
		text  string
	}{
		{"Dad", RelationshipFather, "", "Dad"},
		{"father", RelationshipFather, "", "Dad"},
		{"Mum", RelationshipMother, "", "Mum"},
		{" MOTHER ", RelationshipMother, "", "Mum"},
		{"Guardian", RelationshipGuardian, "", "Guardian"},
		{"Grandma", RelationshipOther, "Grandma", "Grandma"},
		{"", RelationshipOther, "", "Parent or guardian"},
	}
	for _, tt := range tests {
		got, other := ParseRelationship(tt.label)
		if got != tt.want || other != tt.other {
			t.Errorf("ParseRelationship(%q) = %s, %q; want %s, %q", tt.label, got, other, tt.want, tt.other)
		}
		rel := ParentRelationship{Type: got, OtherName: other}
		if rel.Label() != tt.text {
			t.Errorf("Label() for %q = %q, want %q", tt.label, rel.Label(), tt.text)
		}
	}
}

func TestMatchKey_CaseInsensitive(t *testing.T) {
	a := Parent{FullName: "Jane Smith", Email: "Jane@Example.com"}
	b := Parent{FullName: "jane smith ", Email: "jane@example.com"}
	if a.MatchKey() != b.MatchKey() {
		t.Error("expected same key")
	}
	c := Parent{FullName: "Jane Smith", Email: "other@example.com"}
	if a.MatchKey() == c.MatchKey() {
		t.Error("different emails must not match")
	}
}
