package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/matcher"
)

var (
	// ErrLinkConflict means another writer linked one side of the pair first.
	ErrLinkConflict = errors.New("link conflict")

	// ErrStoreUnavailable wraps record store failures.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrMissingField is re-exported so callers need only this package.
	ErrMissingField = matcher.ErrMissingField
)

// LinkConflictError is returned when the conditional link lost twice
type LinkConflictError struct {
	RecordID      string
	CounterpartID string
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("link conflict: %s and %s were changed by another writer", e.RecordID, e.CounterpartID)
}

// Is lets errors.Is(err, ErrLinkConflict) match
func (e *LinkConflictError) Is(target error) bool {
	return target == ErrLinkConflict
}

// StoreUnavailableError wraps a record store failure with the operation that hit it
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStoreUnavailable) match
func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// storeError wraps err as a StoreUnavailableError. Context errors pass
// through unchanged so callers can tell cancellation from an outage.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}
