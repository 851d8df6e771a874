package domain

import (
	"errors"
	"fmt"
)

// MinDays and MaxDays bound every time-windowed query. DefaultDays applies
// when the caller leaves the window unset.
const (
	MinDays     = 1
	MaxDays     = 365
	DefaultDays = 7
)

var (
	// ErrInvalidTimeRange is returned when a query window falls outside
	// [MinDays, MaxDays]. Windows are rejected, never silently clamped.
	ErrInvalidTimeRange = fmt.Errorf("days must be between %d and %d", MinDays, MaxDays)

	// ErrQueryTruncated signals that a range read hit its deadline and the
	// returned rows are a prefix of the full result set.
	ErrQueryTruncated = errors.New("query deadline exceeded, partial results")

	// ErrStoreUnavailable marks the backing event store as unreachable.
	// Callers absorb it into the fallback path rather than propagating it.
	ErrStoreUnavailable = errors.New("event store unavailable")
)

// ValidationError rejects a malformed event before it is stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ValidateDays checks a query window, substituting the default for zero.
func ValidateDays(days int) (int, error) {
	if days == 0 {
		return DefaultDays, nil
	}
	if days < MinDays || days > MaxDays {
		return 0, ErrInvalidTimeRange
	}
	return days, nil
}
