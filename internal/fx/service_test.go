package fx

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/ledger"
)

type memoryRepo struct {
	positions    map[int64]Position
	revaluations []Revaluation
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{positions: make(map[int64]Position)}
}

func (r *memoryRepo) UpsertPosition(ctx context.Context, p Position) (Position, error) {
	for id, existing := range r.positions {
		if existing.Currency == p.Currency && existing.AccountCode == p.AccountCode {
			p.ID = id
			r.positions[id] = p
			return p, nil
		}
	}
	r.nextID++
	p.ID = r.nextID
	r.positions[p.ID] = p
	return p, nil
}

func (r *memoryRepo) ListPositions(ctx context.Context, currency string) ([]Position, error) {
	var out []Position
	for _, p := range r.positions {
		if currency == "" || p.Currency == currency {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateBookedBase(ctx context.Context, id int64, base decimal.Decimal) error {
	p, ok := r.positions[id]
	if !ok {
		return ErrPositionNotFound
	}
	p.BookedBase = base
	r.positions[id] = p
	return nil
}

func (r *memoryRepo) InsertRevaluation(ctx context.Context, rev Revaluation) (Revaluation, error) {
	r.nextID++
	rev.ID = r.nextID
	r.revaluations = append(r.revaluations, rev)
	return rev, nil
}

func (r *memoryRepo) ListRevaluations(ctx context.Context, currency string) ([]Revaluation, error) {
	var out []Revaluation
	for _, rev := range r.revaluations {
		if currency == "" || rev.Currency == currency {
			out = append(out, rev)
		}
	}
	return out, nil
}

type fakePoster struct {
	posted []ledger.PostingInput
}

func (p *fakePoster) Post(ctx context.Context, input ledger.PostingInput) (ledger.Voucher, error) {
	if err := input.Validate(); err != nil {
		return ledger.Voucher{}, err
	}
	p.posted = append(p.posted, input)
	return ledger.Voucher{Number: fmt.Sprintf("REV-%06d", len(p.posted))}, nil
}

type staticResolver map[string]string

func (r staticResolver) Resolve(_ context.Context, key string) (string, error) {
	code, ok := r[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ledger.ErrMappingNotFound, key)
	}
	return code, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) (*Service, *memoryRepo, *fakePoster) {
	t.Helper()
	repo := newMemoryRepo()
	poster := &fakePoster{}
	resolver := staticResolver{
		ledger.MappingFxGain: "4900",
		ledger.MappingFxLoss: "5900",
	}
	return NewService(repo, poster, ledger.NewRecipes(resolver), nil), repo, poster
}

func TestRevalueBooksGain(t *testing.T) {
	service, repo, poster := setup(t)
	ctx := context.Background()

	// 1000 EUR carried at 1.05, revalued at 1.10.
	_, err := service.SetPosition(ctx, "EUR", "1121", dec("1000.00"), dec("1050.00"))
	require.NoError(t, err)

	booked, err := service.Revalue(ctx, "EUR", dec("1.10"), time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, booked, 1)
	require.True(t, booked[0].GainLoss.Equal(dec("50.00")))
	require.Len(t, poster.posted, 1)
	require.Equal(t, ledger.SourceRevaluation, poster.posted[0].SourceType)
	require.Equal(t, ledger.EntryDebit, poster.posted[0].Lines[0].Type)
	require.Equal(t, "1121", poster.posted[0].Lines[0].AccountCode)
	require.Equal(t, "4900", poster.posted[0].Lines[1].AccountCode)

	positions, err := repo.ListPositions(ctx, "EUR")
	require.NoError(t, err)
	require.True(t, positions[0].BookedBase.Equal(dec("1100.00")))
}

func TestRevalueBooksLoss(t *testing.T) {
	service, _, poster := setup(t)
	ctx := context.Background()

	_, err := service.SetPosition(ctx, "EUR", "1121", dec("1000.00"), dec("1100.00"))
	require.NoError(t, err)

	booked, err := service.Revalue(ctx, "EUR", dec("1.02"), time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, booked, 1)
	require.True(t, booked[0].GainLoss.Equal(dec("-80.00")))
	require.Equal(t, "5900", poster.posted[0].Lines[0].AccountCode)
	require.Equal(t, "1121", poster.posted[0].Lines[1].AccountCode)
}

func TestRevalueSkipsPositionsAtRate(t *testing.T) {
	service, _, poster := setup(t)
	ctx := context.Background()

	_, err := service.SetPosition(ctx, "EUR", "1121", dec("1000.00"), dec("1100.00"))
	require.NoError(t, err)

	booked, err := service.Revalue(ctx, "EUR", dec("1.10"), time.Now(), 1)
	require.NoError(t, err)
	require.Empty(t, booked)
	require.Empty(t, poster.posted)
}

func TestRevalueRejectsBadRate(t *testing.T) {
	service, _, _ := setup(t)
	_, err := service.Revalue(context.Background(), "EUR", decimal.Zero, time.Now(), 1)
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestRevalueNoPositions(t *testing.T) {
	service, _, _ := setup(t)
	_, err := service.Revalue(context.Background(), "JPY", dec("0.0070"), time.Now(), 1)
	require.ErrorIs(t, err, ErrNoPositions)
}
