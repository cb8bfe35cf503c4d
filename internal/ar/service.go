package ar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/shared"
)

// RepositoryPort defines data access for the customer subsidiary ledger.
type RepositoryPort interface {
	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, customerID int64) ([]Transaction, error)
	SetTransactionState(ctx context.Context, id int64, state TransactionState, voucherNumber string) error
	SumBalance(ctx context.Context, customerID int64) (decimal.Decimal, error)
	UpdateCustomerBalance(ctx context.Context, customerID int64, balance decimal.Decimal) error
}

// Poster posts and reverses general ledger vouchers.
type Poster interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.Voucher, error)
	Reverse(ctx context.Context, voucherNumber string, actorID int64, memo string) (ledger.Voucher, error)
}

// AuditPort records subsidiary ledger events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SweepEnqueuer schedules a background balance sweep for a subsidiary
// ledger. Optional; reversals already recompute synchronously, the
// sweep catches drift from anything the service did not see.
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context, side string) error
}

// Service keeps the customer subsidiary ledger and the general ledger
// in lockstep: every transaction posts a voucher first, then the stored
// customer balance is recomputed in full from active transactions.
type Service struct {
	repo    RepositoryPort
	poster  Poster
	recipes *ledger.Recipes
	audit   AuditPort
	sweeps  SweepEnqueuer
	now     func() time.Time
}

// NewService constructs the AR service.
func NewService(repo RepositoryPort, poster Poster, recipes *ledger.Recipes, audit AuditPort) *Service {
	return &Service{repo: repo, poster: poster, recipes: recipes, audit: audit, now: time.Now}
}

// WithSweeps enables background recompute sweeps after reversals.
func (s *Service) WithSweeps(sweeps SweepEnqueuer) {
	s.sweeps = sweeps
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateCustomer registers a new counterparty with a zero balance.
func (s *Service) CreateCustomer(ctx context.Context, name, email, phone string) (Customer, error) {
	if name == "" {
		return Customer{}, errors.New("ar: customer name required")
	}
	return s.repo.CreateCustomer(ctx, Customer{
		Name:           name,
		Email:          email,
		Phone:          phone,
		CurrentBalance: decimal.Zero,
	})
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers loads all customers.
func (s *Service) ListCustomers(ctx context.Context) ([]Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// ListTransactions loads one customer's movements.
func (s *Service) ListTransactions(ctx context.Context, customerID int64) ([]Transaction, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, customerID)
}

// TransactionInput describes one subsidiary movement to record.
type TransactionInput struct {
	CustomerID int64
	Amount     decimal.Decimal
	Tax        decimal.Decimal
	Date       time.Time
	Reference  string
	ActorID    int64
}

// RecordInvoice bills a customer: posts the revenue voucher and raises
// the customer balance.
func (s *Service) RecordInvoice(ctx context.Context, in TransactionInput) (Transaction, error) {
	return s.record(ctx, TransactionInvoice, in, func(ctx context.Context, sourceID uuid.UUID, reference string, date time.Time) (ledger.PostingInput, error) {
		return s.recipes.Invoice(ctx, ledger.InvoiceEvent{
			SourceID:  sourceID,
			Number:    reference,
			Date:      date,
			Subtotal:  in.Amount,
			Tax:       in.Tax,
			OnCredit:  true,
			CreatedBy: in.ActorID,
		})
	})
}

// RecordReceipt settles part of the customer balance with cash.
func (s *Service) RecordReceipt(ctx context.Context, in TransactionInput) (Transaction, error) {
	return s.record(ctx, TransactionReceipt, in, func(ctx context.Context, sourceID uuid.UUID, reference string, date time.Time) (ledger.PostingInput, error) {
		return s.recipes.Receipt(ctx, ledger.ReceiptEvent{
			SourceID:  sourceID,
			Number:    reference,
			Date:      date,
			Amount:    in.Amount,
			CreatedBy: in.ActorID,
		})
	})
}

// RecordReturn issues a credit note reducing the customer balance.
func (s *Service) RecordReturn(ctx context.Context, in TransactionInput) (Transaction, error) {
	return s.record(ctx, TransactionReturn, in, func(ctx context.Context, sourceID uuid.UUID, reference string, date time.Time) (ledger.PostingInput, error) {
		return s.recipes.CreditNote(ctx, ledger.CreditNoteEvent{
			SourceID:  sourceID,
			Number:    reference,
			Date:      date,
			Amount:    in.Amount,
			CreatedBy: in.ActorID,
		})
	})
}

// buildInput receives the resolved voucher date so defaulting in record
// reaches the recipe even though the closure captured its own input.
type buildInput func(ctx context.Context, sourceID uuid.UUID, reference string, date time.Time) (ledger.PostingInput, error)

func (s *Service) record(ctx context.Context, txType TransactionType, in TransactionInput, build buildInput) (Transaction, error) {
	if !in.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	if _, err := s.repo.GetCustomer(ctx, in.CustomerID); err != nil {
		return Transaction{}, err
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	sourceID := uuid.New()
	reference := in.Reference
	if reference == "" {
		reference = sourceID.String()[:8]
	}
	input, err := build(ctx, sourceID, reference, in.Date)
	if err != nil {
		return Transaction{}, err
	}
	voucher, err := s.poster.Post(ctx, input)
	if err != nil {
		return Transaction{}, err
	}
	// The gross amount moves the customer balance; tax rides along in
	// the general ledger only.
	gross := in.Amount
	tax := decimal.Zero
	if txType == TransactionInvoice {
		gross = gross.Add(in.Tax)
		tax = in.Tax
	}
	transaction, err := s.repo.InsertTransaction(ctx, Transaction{
		CustomerID:    in.CustomerID,
		Type:          txType,
		Amount:        gross,
		Tax:           tax,
		Date:          in.Date,
		Reference:     reference,
		SourceID:      sourceID,
		VoucherNumber: voucher.Number,
		State:         StateActive,
		CreatedBy:     in.ActorID,
	})
	if err != nil {
		return Transaction{}, err
	}
	if _, err := s.recompute(ctx, in.CustomerID); err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, in.ActorID, "ar."+string(txType), transaction)
	return transaction, nil
}

// SoftDelete marks the transaction deleted and reverses its voucher.
func (s *Service) SoftDelete(ctx context.Context, transactionID, actorID int64) (Transaction, error) {
	transaction, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	if transaction.State == StateDeleted {
		return Transaction{}, ErrAlreadyDeleted
	}
	if _, err := s.poster.Reverse(ctx, transaction.VoucherNumber, actorID, fmt.Sprintf("AR delete %s", transaction.Reference)); err != nil {
		return Transaction{}, err
	}
	if err := s.repo.SetTransactionState(ctx, transactionID, StateDeleted, transaction.VoucherNumber); err != nil {
		return Transaction{}, err
	}
	if _, err := s.recompute(ctx, transaction.CustomerID); err != nil {
		return Transaction{}, err
	}
	transaction.State = StateDeleted
	s.recordAudit(ctx, actorID, "ar.delete", transaction)
	if s.sweeps != nil {
		_ = s.sweeps.EnqueueSweep(ctx, "ar")
	}
	return transaction, nil
}

// Restore re-activates a deleted transaction by posting a fresh voucher
// with the original amounts. The old voucher and its reversal stay in
// the ledger untouched.
func (s *Service) Restore(ctx context.Context, transactionID, actorID int64) (Transaction, error) {
	transaction, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	if transaction.State != StateDeleted {
		return Transaction{}, ErrNotDeleted
	}
	sourceID := uuid.New()
	var input ledger.PostingInput
	switch transaction.Type {
	case TransactionInvoice:
		// Amount stores the gross; rebuild the original revenue/tax
		// split so the restored voucher mirrors the deleted one.
		input, err = s.recipes.Invoice(ctx, ledger.InvoiceEvent{
			SourceID:  sourceID,
			Number:    transaction.Reference,
			Date:      s.now(),
			Subtotal:  transaction.Amount.Sub(transaction.Tax),
			Tax:       transaction.Tax,
			OnCredit:  true,
			CreatedBy: actorID,
		})
	case TransactionReceipt:
		input, err = s.recipes.Receipt(ctx, ledger.ReceiptEvent{
			SourceID:  sourceID,
			Number:    transaction.Reference,
			Date:      s.now(),
			Amount:    transaction.Amount,
			CreatedBy: actorID,
		})
	default:
		input, err = s.recipes.CreditNote(ctx, ledger.CreditNoteEvent{
			SourceID:  sourceID,
			Number:    transaction.Reference,
			Date:      s.now(),
			Amount:    transaction.Amount,
			CreatedBy: actorID,
		})
	}
	if err != nil {
		return Transaction{}, err
	}
	voucher, err := s.poster.Post(ctx, input)
	if err != nil {
		return Transaction{}, err
	}
	if err := s.repo.SetTransactionState(ctx, transactionID, StateActive, voucher.Number); err != nil {
		return Transaction{}, err
	}
	if _, err := s.recompute(ctx, transaction.CustomerID); err != nil {
		return Transaction{}, err
	}
	transaction.State = StateActive
	transaction.VoucherNumber = voucher.Number
	s.recordAudit(ctx, actorID, "ar.restore", transaction)
	return transaction, nil
}

// Balance recomputes and returns the stored customer balance.
func (s *Service) Balance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return decimal.Zero, err
	}
	return s.recompute(ctx, customerID)
}

// recompute derives the balance from all active transactions and writes
// it back, so the stored value never drifts incrementally.
func (s *Service) recompute(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	balance, err := s.repo.SumBalance(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.UpdateCustomerBalance(ctx, customerID, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, transaction Transaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "ar_transaction",
		EntityID: fmt.Sprintf("%d", transaction.ID),
		Meta: map[string]any{
			"customer_id": transaction.CustomerID,
			"voucher":     transaction.VoucherNumber,
			"amount":      transaction.Amount.StringFixed(2),
		},
		At: s.now(),
	})
}
