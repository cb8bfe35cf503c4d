package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/ledger"
	"github.com/meridian-books/meridian/internal/shared"
)

type entryFlag struct {
	start, end time.Time
	closed     bool
}

type memoryRepo struct {
	periods    map[string]ledger.Period
	entryFlags []entryFlag
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{periods: make(map[string]ledger.Period)}
}

func (r *memoryRepo) Create(ctx context.Context, p ledger.Period) (ledger.Period, error) {
	for _, existing := range r.periods {
		if !p.StartDate.After(existing.EndDate) && !p.EndDate.Before(existing.StartDate) {
			return ledger.Period{}, ErrPeriodOverlap
		}
	}
	r.nextID++
	p.ID = r.nextID
	p.Status = ledger.PeriodStatusOpen
	r.periods[p.Code] = p
	return p, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (ledger.Period, error) {
	p, ok := r.periods[code]
	if !ok {
		return ledger.Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (r *memoryRepo) List(ctx context.Context) ([]ledger.Period, error) {
	out := make([]ledger.Period, 0, len(r.periods))
	for _, p := range r.periods {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, status ledger.PeriodStatus, actorID int64, at time.Time) (ledger.Period, error) {
	for code, p := range r.periods {
		if p.ID == id {
			p.Status = status
			if status != ledger.PeriodStatusOpen {
				p.ClosedAt = &at
			} else {
				p.ClosedAt = nil
			}
			r.periods[code] = p
			return p, nil
		}
	}
	return ledger.Period{}, ErrPeriodNotFound
}

func (r *memoryRepo) SetEntriesClosed(ctx context.Context, start, end time.Time, closed bool) (int64, error) {
	r.entryFlags = append(r.entryFlags, entryFlag{start: start, end: end, closed: closed})
	return 1, nil
}

func (r *memoryRepo) FindOpenPeriodByDate(ctx context.Context, date time.Time) (ledger.Period, error) {
	for _, p := range r.periods {
		if p.Status == ledger.PeriodStatusOpen && !date.Before(p.StartDate) && !date.After(p.EndDate) {
			return p, nil
		}
	}
	return ledger.Period{}, ErrPeriodNotFound
}

func march() (time.Time, time.Time) {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
}

func TestCreateRejectsOverlap(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	start, end := march()

	_, err := service.Create(context.Background(), "2026-03", start, end, 1)
	require.NoError(t, err)
	_, err = service.Create(context.Background(), "2026-03b", start.AddDate(0, 0, 15), end.AddDate(0, 0, 15), 1)
	require.ErrorIs(t, err, ErrPeriodOverlap)
}

func TestCloseThenReopen(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	start, end := march()
	_, err := service.Create(context.Background(), "2026-03", start, end, 1)
	require.NoError(t, err)

	closed, err := service.Close(context.Background(), "2026-03", 1)
	require.NoError(t, err)
	require.Equal(t, ledger.PeriodStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	reopened, err := service.Reopen(context.Background(), "2026-03", 1, false)
	require.NoError(t, err)
	require.Equal(t, ledger.PeriodStatusOpen, reopened.Status)
}

func TestLockedPeriodNeedsOverride(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	start, end := march()
	_, err := service.Create(context.Background(), "2026-03", start, end, 1)
	require.NoError(t, err)

	locked, err := service.Lock(context.Background(), "2026-03", 1)
	require.NoError(t, err)
	require.Equal(t, ledger.PeriodStatusLocked, locked.Status)

	_, err = service.Reopen(context.Background(), "2026-03", 1, false)
	require.ErrorIs(t, err, shared.ErrInvalidPeriodTransition)

	reopened, err := service.Reopen(context.Background(), "2026-03", 1, true)
	require.NoError(t, err)
	require.Equal(t, ledger.PeriodStatusOpen, reopened.Status)
}

func TestTransitionToSameStatusIsNoop(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	start, end := march()
	_, err := service.Create(context.Background(), "2026-03", start, end, 1)
	require.NoError(t, err)

	reopened, err := service.Reopen(context.Background(), "2026-03", 1, false)
	require.NoError(t, err)
	require.Equal(t, ledger.PeriodStatusOpen, reopened.Status)
}

func TestCloseUnknownPeriod(t *testing.T) {
	service := NewService(newMemoryRepo(), nil)
	_, err := service.Close(context.Background(), "1999-01", 1)
	require.ErrorIs(t, err, ErrPeriodNotFound)
}

func TestLockFlagsEntriesClosed(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	start, end := march()
	_, err := service.Create(context.Background(), "2026-03", start, end, 1)
	require.NoError(t, err)

	_, err = service.Close(context.Background(), "2026-03", 1)
	require.NoError(t, err)
	require.Empty(t, repo.entryFlags)

	_, err = service.Lock(context.Background(), "2026-03", 1)
	require.NoError(t, err)
	require.Len(t, repo.entryFlags, 1)
	require.True(t, repo.entryFlags[0].closed)
	require.True(t, repo.entryFlags[0].start.Equal(start))
	require.True(t, repo.entryFlags[0].end.Equal(end))

	_, err = service.Reopen(context.Background(), "2026-03", 1, true)
	require.NoError(t, err)
	require.Len(t, repo.entryFlags, 2)
	require.False(t, repo.entryFlags[1].closed)
}

func TestOpenPeriodForDate(t *testing.T) {
	repo := newMemoryRepo()
	service := NewService(repo, nil)
	start, end := march()
	_, err := service.Create(context.Background(), "2026-03", start, end, 1)
	require.NoError(t, err)

	found, err := service.OpenPeriodForDate(context.Background(), start.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Equal(t, "2026-03", found.Code)

	_, err = service.OpenPeriodForDate(context.Background(), end.AddDate(0, 1, 0))
	require.ErrorIs(t, err, ErrPeriodNotFound)

	_, err = service.Close(context.Background(), "2026-03", 1)
	require.NoError(t, err)
	_, err = service.OpenPeriodForDate(context.Background(), start.AddDate(0, 0, 10))
	require.ErrorIs(t, err, ErrPeriodNotFound)
}
