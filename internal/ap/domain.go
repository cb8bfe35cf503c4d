package ap

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates supplier ledger movements.
type TransactionType string

const (
	TransactionInvoice TransactionType = "INVOICE"
	TransactionPayment TransactionType = "PAYMENT"
	TransactionReturn  TransactionType = "RETURN"
)

// TransactionState marks soft deletion.
type TransactionState string

const (
	StateActive  TransactionState = "ACTIVE"
	StateDeleted TransactionState = "DELETED"
)

// Supplier is a payables counterparty. CurrentBalance is recomputed in
// full after every write, never adjusted incrementally.
type Supplier struct {
	ID             int64
	Name           string
	Email          string
	Phone          string
	CurrentBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is one movement on a supplier's subsidiary ledger.
type Transaction struct {
	ID            int64
	SupplierID    int64
	Type          TransactionType
	Amount        decimal.Decimal
	Date          time.Time
	Reference     string
	SourceID      uuid.UUID
	VoucherNumber string
	State         TransactionState
	CreatedBy     int64
	CreatedAt     time.Time
}

// Impact is the transaction's effect on the amount owed to the
// supplier: invoices increase it, payments and returns reduce it.
func (t Transaction) Impact() decimal.Decimal {
	if t.Type == TransactionInvoice {
		return t.Amount
	}
	return t.Amount.Neg()
}

var (
	// ErrSupplierNotFound indicates an unknown supplier id.
	ErrSupplierNotFound = errors.New("ap: supplier not found")
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = errors.New("ap: transaction not found")
	// ErrAlreadyDeleted indicates a repeated soft delete.
	ErrAlreadyDeleted = errors.New("ap: transaction already deleted")
	// ErrNotDeleted indicates restore of an active transaction.
	ErrNotDeleted = errors.New("ap: transaction is not deleted")
	// ErrInvalidAmount indicates a non-positive transaction amount.
	ErrInvalidAmount = errors.New("ap: amount must be positive")
)
