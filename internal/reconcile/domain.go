package reconcile

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status tracks whether the statement and the ledger agree.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusMatched Status = "MATCHED"
)

// Reconciliation compares a physically counted balance, typically a
// bank statement, against the ledger balance of one account on a date.
// Difference is always derived as physical minus ledger, never stored
// independently of its inputs.
type Reconciliation struct {
	ID              int64
	AccountCode     string
	Date            time.Time
	LedgerBalance   decimal.Decimal
	PhysicalBalance decimal.Decimal
	Difference      decimal.Decimal
	Status          Status
	Notes           string
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Derive recomputes the difference and status from the two balances.
func (r *Reconciliation) Derive() {
	r.Difference = r.PhysicalBalance.Sub(r.LedgerBalance)
	if r.Difference.IsZero() {
		r.Status = StatusMatched
	} else {
		r.Status = StatusOpen
	}
}

var (
	// ErrReconciliationNotFound indicates an unknown reconciliation id.
	ErrReconciliationNotFound = errors.New("reconcile: reconciliation not found")
	// ErrInvalidAdjustment indicates a non-positive adjustment amount.
	ErrInvalidAdjustment = errors.New("reconcile: adjustment amount must be positive")
)
