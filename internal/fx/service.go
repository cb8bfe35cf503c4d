package fx

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

// RepositoryPort persists positions and revaluation history.
type RepositoryPort interface {
	UpsertPosition(ctx context.Context, p Position) (Position, error)
	ListPositions(ctx context.Context, currency string) ([]Position, error)
	UpdateBookedBase(ctx context.Context, id int64, base decimal.Decimal) error
	InsertRevaluation(ctx context.Context, r Revaluation) (Revaluation, error)
	ListRevaluations(ctx context.Context, currency string) ([]Revaluation, error)
}

// Poster posts general ledger vouchers.
type Poster interface {
	Post(ctx context.Context, input ledger.PostingInput) (ledger.Voucher, error)
}

// AuditPort records revaluation events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service revalues foreign currency positions at closing rates. Each
// position's drift against its booked base value becomes an unrealized
// gain or loss voucher; the booked value then follows the new rate.
type Service struct {
	repo    RepositoryPort
	poster  Poster
	recipes *ledger.Recipes
	audit   AuditPort
	now     func() time.Time
}

// NewService constructs the FX service.
func NewService(repo RepositoryPort, poster Poster, recipes *ledger.Recipes, audit AuditPort) *Service {
	return &Service{repo: repo, poster: poster, recipes: recipes, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetPosition records or updates a foreign currency holding.
func (s *Service) SetPosition(ctx context.Context, currency, accountCode string, foreignAmount, bookedBase decimal.Decimal) (Position, error) {
	if currency == "" || accountCode == "" {
		return Position{}, errors.New("fx: currency and account code required")
	}
	return s.repo.UpsertPosition(ctx, Position{
		Currency:      currency,
		AccountCode:   accountCode,
		ForeignAmount: foreignAmount,
		BookedBase:    bookedBase,
	})
}

// Positions lists holdings, optionally filtered by currency.
func (s *Service) Positions(ctx context.Context, currency string) ([]Position, error) {
	return s.repo.ListPositions(ctx, currency)
}

// History lists past revaluations.
func (s *Service) History(ctx context.Context, currency string) ([]Revaluation, error) {
	return s.repo.ListRevaluations(ctx, currency)
}

// Revalue books unrealized gains and losses for every position in the
// currency at the given rate. Positions already at the new rate are
// skipped.
func (s *Service) Revalue(ctx context.Context, currency string, rate decimal.Decimal, date time.Time, actorID int64) ([]Revaluation, error) {
	if currency == "" {
		return nil, errors.New("fx: currency required")
	}
	if !rate.IsPositive() {
		return nil, ErrInvalidRate
	}
	if date.IsZero() {
		date = s.now()
	}
	positions, err := s.repo.ListPositions(ctx, currency)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrNoPositions
	}
	var booked []Revaluation
	for _, position := range positions {
		target := position.ForeignAmount.Mul(rate).Round(2)
		delta := target.Sub(position.BookedBase)
		if delta.IsZero() {
			continue
		}
		input, err := s.recipes.Revaluation(ctx, ledger.RevaluationEvent{
			SourceID:    uuid.New(),
			Currency:    currency,
			AccountCode: position.AccountCode,
			GainLoss:    delta,
			Date:        date,
			CreatedBy:   actorID,
		})
		if err != nil {
			return booked, err
		}
		voucher, err := s.poster.Post(ctx, input)
		if err != nil {
			return booked, err
		}
		if err := s.repo.UpdateBookedBase(ctx, position.ID, target); err != nil {
			return booked, err
		}
		revaluation, err := s.repo.InsertRevaluation(ctx, Revaluation{
			Currency:      currency,
			AccountCode:   position.AccountCode,
			Rate:          rate,
			Date:          date,
			GainLoss:      delta,
			VoucherNumber: voucher.Number,
			CreatedBy:     actorID,
		})
		if err != nil {
			return booked, err
		}
		booked = append(booked, revaluation)
		s.recordAudit(ctx, actorID, revaluation)
	}
	return booked, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, revaluation Revaluation) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "fx.revalue",
		Entity:   "revaluation",
		EntityID: fmt.Sprintf("%d", revaluation.ID),
		Meta: map[string]any{
			"currency":  revaluation.Currency,
			"account":   revaluation.AccountCode,
			"rate":      revaluation.Rate.String(),
			"gain_loss": revaluation.GainLoss.StringFixed(2),
			"voucher":   revaluation.VoucherNumber,
		},
		At: s.now(),
	})
}
