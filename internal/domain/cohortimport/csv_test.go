package cohortimport

import (
	"errors"
	"strings"
	"testing"
)

func TestReadRows(t *testing.T) {
	in := "\uFEFFchild_first_name,CHILD_LAST_NAME, CHILD_DATE_OF_BIRTH\n" +
		"Jimmy,Smith,2011-10-01\n" +
		",,\n" +
		"Sally,Jones,2012-01-15\n"
	rows, err := ReadRows(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Number != 2 || rows[1].Number != 4 {
		t.Errorf("expected rows 2 and 4, got %d and %d", rows[0].Number, rows[1].Number)
	}
	if got := rows[0].get(ColGivenName); got != "Jimmy" {
		t.Errorf("expected Jimmy, got %q", got)
	}
	if got := rows[1].get(ColDateOfBirth); got != "2012-01-15" {
		t.Errorf("expected 2012-01-15, got %q", got)
	}
}

func TestReadRows_ShortRecords(t *testing.T) {
	in := "CHILD_FIRST_NAME,CHILD_LAST_NAME,CHILD_DATE_OF_BIRTH,CHILD_POSTCODE\n" +
		"Jimmy,Smith,2011-10-01\n"
	rows, err := ReadRows(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].get(ColPostcode) != "" {
		t.Errorf("expected one row without a postcode, got %+v", rows)
	}
}

func TestReadRows_MissingColumns(t *testing.T) {
	_, err := ReadRows(strings.NewReader("CHILD_FIRST_NAME\nJimmy\n"))
	var missing *MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}
	if len(missing.Columns) != 2 {
		t.Errorf("expected 2 missing columns, got %v", missing.Columns)
	}
}

func TestReadRows_Empty(t *testing.T) {
	if _, err := ReadRows(strings.NewReader("")); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("expected ErrEmptyFile, got %v", err)
	}
}
