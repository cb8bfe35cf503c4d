package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/balances"
	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/shared"
)

// RepositoryPort persists reconciliations.
type RepositoryPort interface {
	Insert(ctx context.Context, r Reconciliation) (Reconciliation, error)
	Get(ctx context.Context, id int64) (Reconciliation, error)
	List(ctx context.Context, accountCode string) ([]Reconciliation, error)
	Update(ctx context.Context, r Reconciliation) (Reconciliation, error)
}

// BalanceReader reads signed account balances from the aggregator.
type BalanceReader interface {
	AccountBalance(ctx context.Context, code string, asOf time.Time) (balances.AccountBalance, error)
}

// Poster posts general ledger vouchers.
type Poster interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.Voucher, error)
}

// AuditPort records reconciliation events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service matches physical balances against the ledger. Adjustments go
// through the posting engine like any other voucher; the reconciliation
// then rereads the ledger balance rather than patching its own numbers.
type Service struct {
	repo    RepositoryPort
	reader  BalanceReader
	poster  Poster
	recipes *ledger.Recipes
	audit   AuditPort
	now     func() time.Time
}

// NewService constructs the reconciliation service.
func NewService(repo RepositoryPort, reader BalanceReader, poster Poster, recipes *ledger.Recipes, audit AuditPort) *Service {
	return &Service{repo: repo, reader: reader, poster: poster, recipes: recipes, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a reconciliation: reads the ledger balance as of the
// date, stores the counted balance next to it and derives the rest.
func (s *Service) Create(ctx context.Context, accountCode string, date time.Time, physical decimal.Decimal, notes string, actorID int64) (Reconciliation, error) {
	if accountCode == "" {
		return Reconciliation{}, errors.New("reconcile: account code required")
	}
	if date.IsZero() {
		date = s.now()
	}
	balance, err := s.reader.AccountBalance(ctx, accountCode, date)
	if err != nil {
		return Reconciliation{}, err
	}
	rec := Reconciliation{
		AccountCode:     accountCode,
		Date:            date,
		LedgerBalance:   balance.Balance,
		PhysicalBalance: physical,
		Notes:           notes,
		CreatedBy:       actorID,
	}
	rec.Derive()
	created, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return Reconciliation{}, err
	}
	s.recordAudit(ctx, actorID, "reconciliation.create", created)
	return created, nil
}

// Get loads one reconciliation.
func (s *Service) Get(ctx context.Context, id int64) (Reconciliation, error) {
	return s.repo.Get(ctx, id)
}

// List loads reconciliations, optionally filtered by account.
func (s *Service) List(ctx context.Context, accountCode string) ([]Reconciliation, error) {
	return s.repo.List(ctx, accountCode)
}

// AdjustmentInput describes one correcting voucher.
type AdjustmentInput struct {
	Amount      decimal.Decimal
	EntryType   ledger.EntryType
	Description string
	ActorID     int64
}

// PostAdjustment books a correcting voucher against the reconciled
// account and recomputes the reconciliation from the fresh ledger
// balance. A reconciliation that stops matching reopens implicitly.
func (s *Service) PostAdjustment(ctx context.Context, id int64, in AdjustmentInput) (Reconciliation, error) {
	if !in.Amount.IsPositive() {
		return Reconciliation{}, ErrInvalidAdjustment
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Reconciliation{}, err
	}
	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Reconciliation adjustment %s %s", rec.AccountCode, rec.Date.Format("2006-01-02"))
	}
	input, err := s.recipes.ReconciliationAdjustment(ctx, ledger.AdjustmentEvent{
		SourceID:    uuid.New(),
		Date:        rec.Date,
		Amount:      in.Amount,
		EntryType:   in.EntryType,
		Description: description,
		CreatedBy:   in.ActorID,
	})
	if err != nil {
		return Reconciliation{}, err
	}
	voucher, err := s.poster.Post(ctx, input)
	if err != nil {
		return Reconciliation{}, err
	}
	balance, err := s.reader.AccountBalance(ctx, rec.AccountCode, rec.Date)
	if err != nil {
		return Reconciliation{}, err
	}
	rec.LedgerBalance = balance.Balance
	rec.Derive()
	updated, err := s.repo.Update(ctx, rec)
	if err != nil {
		return Reconciliation{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "reconciliation.adjust",
			Entity:   "reconciliation",
			EntityID: fmt.Sprintf("%d", updated.ID),
			Meta: map[string]any{
				"account":    updated.AccountCode,
				"voucher":    voucher.Number,
				"difference": updated.Difference.StringFixed(2),
				"status":     string(updated.Status),
			},
			At: s.now(),
		})
	}
	return updated, nil
}

// UpdatePhysical records a corrected counted balance.
func (s *Service) UpdatePhysical(ctx context.Context, id int64, physical decimal.Decimal, actorID int64) (Reconciliation, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return Reconciliation{}, err
	}
	rec.PhysicalBalance = physical
	rec.Derive()
	updated, err := s.repo.Update(ctx, rec)
	if err != nil {
		return Reconciliation{}, err
	}
	s.recordAudit(ctx, actorID, "reconciliation.recount", updated)
	return updated, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, rec Reconciliation) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "reconciliation",
		EntityID: fmt.Sprintf("%d", rec.ID),
		Meta: map[string]any{
			"account":    rec.AccountCode,
			"difference": rec.Difference.StringFixed(2),
			"status":     string(rec.Status),
		},
		At: s.now(),
	})
}
