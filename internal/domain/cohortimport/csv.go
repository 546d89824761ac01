package cohortimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrEmptyFile = errors.New("cohort file has no header row")

// MissingColumnsError reports required columns absent from the header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing columns: " + strings.Join(e.Columns, ", ")
}

// ReadRows reads a cohort CSV. Header names are matched case
// insensitively and a leading byte order mark is ignored.
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		row := Row{Number: line, Data: make(map[string]string, len(header))}
		blank := true
		for i, v := range rec {
			if i >= len(header) {
				break
			}
			row.Data[header[i]] = v
			if strings.TrimSpace(v) != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
