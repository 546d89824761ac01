package organisation

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("organisation not found")

// Organisation is a school-age immunisation team. Its ODS code keys the
// generic clinic location every organisation gets.
type Organisation struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ODSCode   string    `json:"ods_code"`
	CreatedAt time.Time `json:"created_at"`
}

var odsCodePattern = regexp.MustCompile(`^[A-Z0-9]{3,6}$`)

func (o *Organisation) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !odsCodePattern.MatchString(o.ODSCode) {
		return fmt.Errorf("invalid ods_code: %q", o.ODSCode)
	}
	return nil
}
