package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/shared"
)

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the fiscal period lifecycle. Status changes gate the
// posting engine: a CLOSED period rejects postings, a LOCKED one
// additionally resists reopening without an override.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the period service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a new period. Windows must not overlap.
func (s *Service) Create(ctx context.Context, code string, start, end time.Time, actorID int64) (ledger.Period, error) {
	if code == "" {
		return ledger.Period{}, errors.New("periods: code required")
	}
	if end.Before(start) {
		return ledger.Period{}, errors.New("periods: end date before start date")
	}
	period, err := s.repo.Create(ctx, ledger.Period{Code: code, StartDate: start, EndDate: end})
	if err != nil {
		return ledger.Period{}, err
	}
	s.recordAudit(ctx, actorID, "period.create", period)
	return period, nil
}

// Get returns one period by code.
func (s *Service) Get(ctx context.Context, code string) (ledger.Period, error) {
	return s.repo.GetByCode(ctx, code)
}

// List returns all periods, newest first.
func (s *Service) List(ctx context.Context) ([]ledger.Period, error) {
	return s.repo.List(ctx)
}

// OpenPeriodForDate returns the open period covering the date, so a
// caller can tell where a voucher dated then would land. A zero date
// means today.
func (s *Service) OpenPeriodForDate(ctx context.Context, date time.Time) (ledger.Period, error) {
	if date.IsZero() {
		date = s.now()
	}
	return s.repo.FindOpenPeriodByDate(ctx, date)
}

// Close transitions a period to CLOSED so new postings are rejected.
func (s *Service) Close(ctx context.Context, code string, actorID int64) (ledger.Period, error) {
	return s.transition(ctx, code, ledger.PeriodStatusClosed, actorID, false)
}

// Reopen transitions a period back to OPEN. Locked periods reopen only
// with an override.
func (s *Service) Reopen(ctx context.Context, code string, actorID int64, override bool) (ledger.Period, error) {
	return s.transition(ctx, code, ledger.PeriodStatusOpen, actorID, override)
}

// Lock hard-freezes a period after audit sign-off.
func (s *Service) Lock(ctx context.Context, code string, actorID int64) (ledger.Period, error) {
	return s.transition(ctx, code, ledger.PeriodStatusLocked, actorID, false)
}

func (s *Service) transition(ctx context.Context, code string, target ledger.PeriodStatus, actorID int64, override bool) (ledger.Period, error) {
	period, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return ledger.Period{}, err
	}
	if err := shared.ValidatePeriodTransition(string(period.Status), string(target), override); err != nil {
		return ledger.Period{}, fmt.Errorf("%w: %s -> %s", err, period.Status, target)
	}
	if period.Status == target {
		return period, nil
	}
	updated, err := s.repo.UpdateStatus(ctx, period.ID, target, actorID, s.now())
	if err != nil {
		return ledger.Period{}, err
	}
	// Locking retires the period's entries from aggregation; unlocking
	// brings them back. Closing alone leaves them visible so the period
	// still appears in trial balances until sign-off.
	if target == ledger.PeriodStatusLocked {
		if _, err := s.repo.SetEntriesClosed(ctx, updated.StartDate, updated.EndDate, true); err != nil {
			return ledger.Period{}, err
		}
	} else if period.Status == ledger.PeriodStatusLocked {
		if _, err := s.repo.SetEntriesClosed(ctx, updated.StartDate, updated.EndDate, false); err != nil {
			return ledger.Period{}, err
		}
	}
	s.recordAudit(ctx, actorID, "period."+actionFor(target), updated)
	return updated, nil
}

func actionFor(target ledger.PeriodStatus) string {
	switch target {
	case ledger.PeriodStatusClosed:
		return "close"
	case ledger.PeriodStatusLocked:
		return "lock"
	default:
		return "reopen"
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, period ledger.Period) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fiscal_period",
		EntityID: period.Code,
		Meta: map[string]any{
			"status": string(period.Status),
			"start":  period.StartDate.Format("2006-01-02"),
			"end":    period.EndDate.Format("2006-01-02"),
		},
		At: s.now(),
	})
}
