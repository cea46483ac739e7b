package matcher

import (
	"errors"
	"fmt"
)

// ErrMissingField is matched by every *MissingFieldError
var ErrMissingField = errors.New("record is missing a field required for matching")

// MissingFieldError reports a record that cannot be scored
type MissingFieldError struct {
	RecordID string
	Field    string // "amount" or "date"
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record %s has no %s", e.RecordID, e.Field)
}

// Is makes errors.Is(err, ErrMissingField) work for wrapped values.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}
