package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-books/meridian/internal/balances"
	"github.com/meridian-books/meridian/internal/ledger"
)

type memoryRepo struct {
	items  map[int64]Reconciliation
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Reconciliation)}
}

func (r *memoryRepo) Insert(ctx context.Context, rec Reconciliation) (Reconciliation, error) {
	r.nextID++
	rec.ID = r.nextID
	rec.CreatedAt = time.Now()
	r.items[rec.ID] = rec
	return rec, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Reconciliation, error) {
	rec, ok := r.items[id]
	if !ok {
		return Reconciliation{}, ErrReconciliationNotFound
	}
	return rec, nil
}

func (r *memoryRepo) List(ctx context.Context, accountCode string) ([]Reconciliation, error) {
	var out []Reconciliation
	for _, rec := range r.items {
		if accountCode == "" || rec.AccountCode == accountCode {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryRepo) Update(ctx context.Context, rec Reconciliation) (Reconciliation, error) {
	if _, ok := r.items[rec.ID]; !ok {
		return Reconciliation{}, ErrReconciliationNotFound
	}
	rec.UpdatedAt = time.Now()
	r.items[rec.ID] = rec
	return rec, nil
}

// ledgerFake acts as both poster and balance reader: posted adjustment
// vouchers move the cash balance the way the real ledger would.
type ledgerFake struct {
	balance decimal.Decimal
	posted  []ledger.PostingInput
}

func (l *ledgerFake) Post(ctx context.Context, input ledger.PostingInput) (ledger.Voucher, error) {
	if err := input.Validate(); err != nil {
		return ledger.Voucher{}, err
	}
	for _, line := range input.Lines {
		if line.AccountCode != "1110" {
			continue
		}
		if line.Type == ledger.EntryDebit {
			l.balance = l.balance.Add(line.Amount)
		} else {
			l.balance = l.balance.Sub(line.Amount)
		}
	}
	l.posted = append(l.posted, input)
	return ledger.Voucher{Number: fmt.Sprintf("REC-%06d", len(l.posted))}, nil
}

func (l *ledgerFake) AccountBalance(ctx context.Context, code string, asOf time.Time) (balances.AccountBalance, error) {
	if code != "1110" {
		return balances.AccountBalance{}, ledger.ErrAccountNotFound
	}
	return balances.AccountBalance{Code: code, Type: "ASSET", Balance: l.balance}, nil
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

func setup(t *testing.T, ledgerBalance string) (*Service, *ledgerFake) {
	t.Helper()
	fake := &ledgerFake{balance: dec(ledgerBalance)}
	resolver := staticResolver{
		ledger.MappingCash:           "1110",
		ledger.MappingSuspenseDebit:  "1190",
		ledger.MappingSuspenseCredit: "2190",
	}
	service := NewService(newMemoryRepo(), fake, fake, ledger.NewRecipes(resolver), nil)
	return service, fake
}

func TestCreateDerivesDifference(t *testing.T) {
	service, _ := setup(t, "1000.00")

	rec, err := service.Create(context.Background(), "1110", time.Now(), dec("1200.00"), "month end", 1)
	require.NoError(t, err)
	require.True(t, rec.LedgerBalance.Equal(dec("1000.00")))
	require.True(t, rec.Difference.Equal(dec("200.00")))
	require.Equal(t, StatusOpen, rec.Status)
}

func TestCreateMatchedWhenEqual(t *testing.T) {
	service, _ := setup(t, "1000.00")

	rec, err := service.Create(context.Background(), "1110", time.Now(), dec("1000.00"), "", 1)
	require.NoError(t, err)
	require.True(t, rec.Difference.IsZero())
	require.Equal(t, StatusMatched, rec.Status)
}

func TestCreateUnknownAccount(t *testing.T) {
	service, _ := setup(t, "0")
	_, err := service.Create(context.Background(), "9999", time.Now(), dec("1.00"), "", 1)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAdjustmentClosesDifference(t *testing.T) {
	service, fake := setup(t, "1000.00")
	ctx := context.Background()

	rec, err := service.Create(ctx, "1110", time.Now(), dec("1200.00"), "", 1)
	require.NoError(t, err)

	// Ledger is 200 short of the statement; debit cash to catch up.
	updated, err := service.PostAdjustment(ctx, rec.ID, AdjustmentInput{
		Amount:    dec("200.00"),
		EntryType: ledger.EntryDebit,
		ActorID:   1,
	})
	require.NoError(t, err)
	require.True(t, updated.LedgerBalance.Equal(dec("1200.00")))
	require.True(t, updated.Difference.IsZero())
	require.Equal(t, StatusMatched, updated.Status)
	require.Len(t, fake.posted, 1)
	require.Equal(t, ledger.SourceReconciliation, fake.posted[0].SourceType)
}

func TestCreditAdjustment(t *testing.T) {
	service, _ := setup(t, "1000.00")
	ctx := context.Background()

	rec, err := service.Create(ctx, "1110", time.Now(), dec("900.00"), "", 1)
	require.NoError(t, err)
	require.True(t, rec.Difference.Equal(dec("-100.00")))

	updated, err := service.PostAdjustment(ctx, rec.ID, AdjustmentInput{
		Amount:    dec("100.00"),
		EntryType: ledger.EntryCredit,
		ActorID:   1,
	})
	require.NoError(t, err)
	require.True(t, updated.LedgerBalance.Equal(dec("900.00")))
	require.Equal(t, StatusMatched, updated.Status)
}

func TestAdjustmentRejectsNonPositive(t *testing.T) {
	service, _ := setup(t, "1000.00")
	rec, err := service.Create(context.Background(), "1110", time.Now(), dec("1000.00"), "", 1)
	require.NoError(t, err)

	_, err = service.PostAdjustment(context.Background(), rec.ID, AdjustmentInput{Amount: decimal.Zero, EntryType: ledger.EntryDebit})
	require.ErrorIs(t, err, ErrInvalidAdjustment)
}

func TestAdjustmentUnknownReconciliation(t *testing.T) {
	service, _ := setup(t, "1000.00")
	_, err := service.PostAdjustment(context.Background(), 42, AdjustmentInput{Amount: dec("1.00"), EntryType: ledger.EntryDebit})
	require.ErrorIs(t, err, ErrReconciliationNotFound)
}

func TestUpdatePhysicalReopens(t *testing.T) {
	service, _ := setup(t, "1000.00")
	ctx := context.Background()

	rec, err := service.Create(ctx, "1110", time.Now(), dec("1000.00"), "", 1)
	require.NoError(t, err)
	require.Equal(t, StatusMatched, rec.Status)

	updated, err := service.UpdatePhysical(ctx, rec.ID, dec("1050.00"), 1)
	require.NoError(t, err)
	require.Equal(t, StatusOpen, updated.Status)
	require.True(t, updated.Difference.Equal(dec("50.00")))
}
