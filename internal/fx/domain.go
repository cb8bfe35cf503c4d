package fx

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Position is a foreign currency holding booked against one ledger
// account. BookedBase is the base currency value currently carried in
// the ledger for the holding.
type Position struct {
	ID            int64
	Currency      string
	AccountCode   string
	ForeignAmount decimal.Decimal
	BookedBase    decimal.Decimal
	UpdatedAt     time.Time
}

// Revaluation is one unrealized gain or loss booked for a position at
// a closing rate. GainLoss is positive for a gain.
type Revaluation struct {
	ID            int64
	Currency      string
	AccountCode   string
	Rate          decimal.Decimal
	Date          time.Time
	GainLoss      decimal.Decimal
	VoucherNumber string
	CreatedBy     int64
	CreatedAt     time.Time
}

var (
	// ErrPositionNotFound indicates no holding for the currency/account.
	ErrPositionNotFound = errors.New("fx: position not found")
	// ErrInvalidRate indicates a non-positive exchange rate.
	ErrInvalidRate = errors.New("fx: rate must be positive")
	// ErrNoPositions indicates a revaluation with nothing to revalue.
	ErrNoPositions = errors.New("fx: no positions for currency")
)
