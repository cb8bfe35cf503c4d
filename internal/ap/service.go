package ap

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

// RepositoryPort defines data access for the supplier subsidiary ledger.
type RepositoryPort interface {
	CreateSupplier(ctx context.Context, s Supplier) (Supplier, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, supplierID int64) ([]Transaction, error)
	SetTransactionState(ctx context.Context, id int64, state TransactionState, voucherNumber string) error
	SumBalance(ctx context.Context, supplierID int64) (decimal.Decimal, error)
	UpdateSupplierBalance(ctx context.Context, supplierID int64, balance decimal.Decimal) error
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

// Service mirrors the receivables side for suppliers: purchases raise
// the amount owed, payments and returns reduce it, and each movement
// posts its general ledger voucher first.
type Service struct {
	repo    RepositoryPort
	poster  Poster
	recipes *ledger.Recipes
	audit   AuditPort
	sweeps  SweepEnqueuer
	now     func() time.Time
}

// NewService constructs the AP service.
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

// CreateSupplier registers a new counterparty with a zero balance.
func (s *Service) CreateSupplier(ctx context.Context, name, email, phone string) (Supplier, error) {
	if name == "" {
		return Supplier{}, errors.New("ap: supplier name required")
	}
	return s.repo.CreateSupplier(ctx, Supplier{
		Name:           name,
		Email:          email,
		Phone:          phone,
		CurrentBalance: decimal.Zero,
	})
}

// GetSupplier loads one supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListSuppliers loads all suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// ListTransactions loads one supplier's movements.
func (s *Service) ListTransactions(ctx context.Context, supplierID int64) ([]Transaction, error) {
	if _, err := s.repo.GetSupplier(ctx, supplierID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, supplierID)
}

// TransactionInput describes one subsidiary movement to record.
type TransactionInput struct {
	SupplierID int64
	Amount     decimal.Decimal
	Date       time.Time
	Reference  string
	ActorID    int64
}

// RecordInvoice books a supplier bill: inventory in, payables up.
func (s *Service) RecordInvoice(ctx context.Context, in TransactionInput) (Transaction, error) {
	return s.record(ctx, TransactionInvoice, in, func(ctx context.Context, sourceID uuid.UUID, reference string, date time.Time) (ledger.PostingInput, error) {
		return s.recipes.Purchase(ctx, ledger.PurchaseEvent{
			SourceID:  sourceID,
			Number:    reference,
			Date:      date,
			Cost:      in.Amount,
			OnCredit:  true,
			CreatedBy: in.ActorID,
		})
	})
}

// RecordPayment settles part of the supplier balance with cash.
func (s *Service) RecordPayment(ctx context.Context, in TransactionInput) (Transaction, error) {
	return s.record(ctx, TransactionPayment, in, func(ctx context.Context, sourceID uuid.UUID, reference string, date time.Time) (ledger.PostingInput, error) {
		return s.recipes.SupplierPayment(ctx, ledger.SupplierPaymentEvent{
			SourceID:  sourceID,
			Number:    reference,
			Date:      date,
			Amount:    in.Amount,
			CreatedBy: in.ActorID,
		})
	})
}

// RecordReturn sends stock back and reduces the amount owed.
func (s *Service) RecordReturn(ctx context.Context, in TransactionInput) (Transaction, error) {
	return s.record(ctx, TransactionReturn, in, func(ctx context.Context, sourceID uuid.UUID, reference string, date time.Time) (ledger.PostingInput, error) {
		return s.recipes.PurchaseReturn(ctx, ledger.PurchaseReturnEvent{
			SourceID:  sourceID,
			Number:    reference,
			Date:      date,
			Amount:    in.Amount,
			OnCredit:  true,
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
	if _, err := s.repo.GetSupplier(ctx, in.SupplierID); err != nil {
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
	transaction, err := s.repo.InsertTransaction(ctx, Transaction{
		SupplierID:    in.SupplierID,
		Type:          txType,
		Amount:        in.Amount,
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
	if _, err := s.recompute(ctx, in.SupplierID); err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, in.ActorID, "ap."+string(txType), transaction)
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
	if _, err := s.poster.Reverse(ctx, transaction.VoucherNumber, actorID, fmt.Sprintf("AP delete %s", transaction.Reference)); err != nil {
		return Transaction{}, err
	}
	if err := s.repo.SetTransactionState(ctx, transactionID, StateDeleted, transaction.VoucherNumber); err != nil {
		return Transaction{}, err
	}
	if _, err := s.recompute(ctx, transaction.SupplierID); err != nil {
		return Transaction{}, err
	}
	transaction.State = StateDeleted
	s.recordAudit(ctx, actorID, "ap.delete", transaction)
	if s.sweeps != nil {
		_ = s.sweeps.EnqueueSweep(ctx, "ap")
	}
	return transaction, nil
}

// Restore re-activates a deleted transaction by posting a fresh voucher.
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
		input, err = s.recipes.Purchase(ctx, ledger.PurchaseEvent{
			SourceID:  sourceID,
			Number:    transaction.Reference,
			Date:      s.now(),
			Cost:      transaction.Amount,
			OnCredit:  true,
			CreatedBy: actorID,
		})
	case TransactionPayment:
		input, err = s.recipes.SupplierPayment(ctx, ledger.SupplierPaymentEvent{
			SourceID:  sourceID,
			Number:    transaction.Reference,
			Date:      s.now(),
			Amount:    transaction.Amount,
			CreatedBy: actorID,
		})
	default:
		input, err = s.recipes.PurchaseReturn(ctx, ledger.PurchaseReturnEvent{
			SourceID:  sourceID,
			Number:    transaction.Reference,
			Date:      s.now(),
			Amount:    transaction.Amount,
			OnCredit:  true,
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
	if _, err := s.recompute(ctx, transaction.SupplierID); err != nil {
		return Transaction{}, err
	}
	transaction.State = StateActive
	transaction.VoucherNumber = voucher.Number
	s.recordAudit(ctx, actorID, "ap.restore", transaction)
	return transaction, nil
}

// Balance recomputes and returns the stored supplier balance.
func (s *Service) Balance(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	if _, err := s.repo.GetSupplier(ctx, supplierID); err != nil {
		return decimal.Zero, err
	}
	return s.recompute(ctx, supplierID)
}

func (s *Service) recompute(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	balance, err := s.repo.SumBalance(ctx, supplierID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.repo.UpdateSupplierBalance(ctx, supplierID, balance); err != nil {
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
		Entity:   "ap_transaction",
		EntityID: fmt.Sprintf("%d", transaction.ID),
		Meta: map[string]any{
			"supplier_id": transaction.SupplierID,
			"voucher":     transaction.VoucherNumber,
			"amount":      transaction.Amount.StringFixed(2),
		},
		At: s.now(),
	})
}
