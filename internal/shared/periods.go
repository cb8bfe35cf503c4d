package shared

import "errors"

// Period statuses reused outside the periods module.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
	PeriodStatusLocked = "LOCKED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

// ValidatePeriodTransition checks transitions according to policy.
// Closing blocks new postings; locking additionally blocks reopening
// unless the caller holds an override.
func ValidatePeriodTransition(current, target string, hasOverride bool) error {
	if current == target {
		return nil
	}
	switch current {
	case PeriodStatusOpen:
		if target == PeriodStatusClosed || target == PeriodStatusLocked {
			return nil
		}
	case PeriodStatusClosed:
		if target == PeriodStatusOpen {
			return nil
		}
		if target == PeriodStatusLocked {
			return nil
		}
	case PeriodStatusLocked:
		if hasOverride && (target == PeriodStatusClosed || target == PeriodStatusOpen) {
			return nil
		}
	}
	return ErrInvalidPeriodTransition
}
