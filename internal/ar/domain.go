package ar

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates customer ledger movements.
type TransactionType string

const (
	TransactionInvoice TransactionType = "INVOICE"
	TransactionReceipt TransactionType = "RECEIPT"
	TransactionReturn  TransactionType = "RETURN"
)

// TransactionState marks soft deletion. Deleted transactions stay in
// the table; their general ledger voucher is reversed, not removed.
type TransactionState string

const (
	StateActive  TransactionState = "ACTIVE"
	StateDeleted TransactionState = "DELETED"
)

// Customer is a receivables counterparty. CurrentBalance is a stored
// aggregate recomputed in full after every write.
type Customer struct {
	ID             int64
	Name           string
	Email          string
	Phone          string
	CurrentBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is one movement on a customer's subsidiary ledger, tied
// to the general ledger voucher it produced. Amount is the gross that
// moves the customer balance; Tax is the portion of an invoice booked
// against the tax liability, kept so a restore can rebuild the
// original revenue/tax split.
type Transaction struct {
	ID            int64
	CustomerID    int64
	Type          TransactionType
	Amount        decimal.Decimal
	Tax           decimal.Decimal
	Date          time.Time
	Reference     string
	SourceID      uuid.UUID
	VoucherNumber string
	State         TransactionState
	CreatedBy     int64
	CreatedAt     time.Time
}

// Impact is the transaction's effect on the customer balance:
// invoices increase it, receipts and returns reduce it.
func (t Transaction) Impact() decimal.Decimal {
	if t.Type == TransactionInvoice {
		return t.Amount
	}
	return t.Amount.Neg()
}

var (
	// ErrCustomerNotFound indicates an unknown customer id.
	ErrCustomerNotFound = errors.New("ar: customer not found")
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = errors.New("ar: transaction not found")
	// ErrAlreadyDeleted indicates a repeated soft delete.
	ErrAlreadyDeleted = errors.New("ar: transaction already deleted")
	// ErrNotDeleted indicates restore of an active transaction.
	ErrNotDeleted = errors.New("ar: transaction is not deleted")
	// ErrInvalidAmount indicates a non-positive transaction amount.
	ErrInvalidAmount = errors.New("ar: amount must be positive")
)
