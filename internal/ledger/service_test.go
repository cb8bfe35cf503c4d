package ledger

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	accounts map[string]Account
	periods  []Period
	vouchers map[string]Voucher
	bySource map[string]Voucher
	entries  map[int64][]Entry
	seq      int64
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: make(map[string]Account),
		vouchers: make(map[string]Voucher),
		bySource: make(map[string]Voucher),
		entries:  make(map[int64][]Entry),
	}
}

func (r *memoryRepo) addAccount(id int64, code string, accType AccountType, active bool) {
	r.accounts[code] = Account{ID: id, Code: code, Name: code, Type: accType, IsActive: active}
}

func (r *memoryRepo) addPeriod(status PeriodStatus, start, end time.Time) {
	r.periods = append(r.periods, Period{ID: int64(len(r.periods) + 1), Status: status, StartDate: start, EndDate: end})
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetVoucherBySource(ctx context.Context, st SourceType, id uuid.UUID) (Voucher, error) {
	if v, ok := r.bySource[string(st)+":"+id.String()]; ok {
		return v, nil
	}
	return Voucher{}, ErrVoucherNotFound
}

func (r *memoryRepo) QueryEntries(ctx context.Context, filter EntryFilter) ([]Entry, int, error) {
	var out []Entry
	for _, batch := range r.entries {
		for _, e := range batch {
			if filter.AccountCode != "" && e.AccountCode != filter.AccountCode {
				continue
			}
			if filter.VoucherNumber != "" && e.Number != filter.VoucherNumber {
				continue
			}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (tx *memoryTx) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	acc, ok := tx.repo.accounts[code]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (tx *memoryTx) HasChildAccounts(ctx context.Context, accountID int64) (bool, error) {
	for _, acc := range tx.repo.accounts {
		if acc.ParentID != nil && *acc.ParentID == accountID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) GetPeriodForDate(ctx context.Context, date time.Time) (Period, error) {
	for _, p := range tx.repo.periods {
		if !date.Before(p.StartDate) && !date.After(p.EndDate) {
			return p, nil
		}
	}
	return Period{}, ErrNoPeriodForDate
}

func (tx *memoryTx) NextVoucherNumber(ctx context.Context, documentType string) (string, error) {
	tx.repo.seq++
	return fmt.Sprintf("%s-%06d", documentType, tx.repo.seq), nil
}

func (tx *memoryTx) FindVoucherBySource(ctx context.Context, st SourceType, id uuid.UUID) (Voucher, error) {
	return tx.repo.GetVoucherBySource(ctx, st, id)
}

func (tx *memoryTx) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	key := string(v.SourceType) + ":" + v.SourceID.String()
	if _, ok := tx.repo.bySource[key]; ok {
		return Voucher{}, ErrSourceAlreadyPosted
	}
	tx.repo.nextID++
	v.ID = tx.repo.nextID
	v.Status = VoucherStatusPosted
	v.CreatedAt = time.Now()
	tx.repo.vouchers[v.Number] = v
	tx.repo.bySource[key] = v
	return v, nil
}

func (tx *memoryTx) InsertEntries(ctx context.Context, voucher Voucher, records []EntryRecord) error {
	for _, rec := range records {
		var code string
		for c, acc := range tx.repo.accounts {
			if acc.ID == rec.AccountID {
				code = c
			}
		}
		tx.repo.nextID++
		tx.repo.entries[voucher.ID] = append(tx.repo.entries[voucher.ID], Entry{
			ID:          tx.repo.nextID,
			VoucherID:   voucher.ID,
			Number:      voucher.Number,
			AccountID:   rec.AccountID,
			AccountCode: code,
			Type:        rec.Type,
			Amount:      rec.Amount,
			Description: rec.Description,
			Date:        voucher.Date,
		})
	}
	return nil
}

func (tx *memoryTx) GetVoucherWithEntries(ctx context.Context, number string) (Voucher, []Entry, error) {
	v, ok := tx.repo.vouchers[number]
	if !ok {
		return Voucher{}, nil, ErrVoucherNotFound
	}
	return v, tx.repo.entries[v.ID], nil
}

func (tx *memoryTx) MarkVoucherReversed(ctx context.Context, voucherID int64, reversalNumber string, at time.Time) error {
	for number, v := range tx.repo.vouchers {
		if v.ID == voucherID {
			if v.Status == VoucherStatusReversed {
				return ErrAlreadyReversed
			}
			v.Status = VoucherStatusReversed
			v.ReversalNumber = &reversalNumber
			v.ReversedAt = &at
			tx.repo.vouchers[number] = v
			key := string(v.SourceType) + ":" + v.SourceID.String()
			tx.repo.bySource[key] = v
			return nil
		}
	}
	return ErrVoucherNotFound
}

func openRepo(t *testing.T) *memoryRepo {
	t.Helper()
	repo := newMemoryRepo()
	repo.addAccount(1, "1110", AccountTypeAsset, true)
	repo.addAccount(2, "4100", AccountTypeRevenue, true)
	repo.addAccount(3, "2150", AccountTypeLiability, true)
	repo.addPeriod(PeriodStatusOpen, time.Now().AddDate(0, -1, 0), time.Now().AddDate(0, 1, 0))
	return repo
}

func balancedInput(amount string) PostingInput {
	value := decimal.RequireFromString(amount)
	return PostingInput{
		SourceType: SourceManual,
		SourceID:   uuid.New(),
		Date:       time.Now(),
		Memo:       "test",
		CreatedBy:  7,
		Lines: []LineInput{
			{AccountCode: "1110", Type: EntryDebit, Amount: value, Description: "dr"},
			{AccountCode: "4100", Type: EntryCredit, Amount: value, Description: "cr"},
		},
	}
}

func TestPostBalancedVoucher(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	voucher, err := service.Post(context.Background(), balancedInput("150.25"))
	require.NoError(t, err)
	require.NotEmpty(t, voucher.Number)
	require.Equal(t, VoucherStatusPosted, voucher.Status)
	require.Len(t, repo.entries[voucher.ID], 2)
}

func TestPostUnbalancedVoucherPersistsNothing(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	input := balancedInput("100.00")
	input.Lines[1].Amount = decimal.RequireFromString("99.99")
	_, err := service.Post(context.Background(), input)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.vouchers)
	require.Empty(t, repo.entries)
}

func TestPostRejectsNonPositiveAmount(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	input := balancedInput("100.00")
	input.Lines[0].Amount = decimal.Zero
	input.Lines[1].Amount = decimal.Zero
	_, err := service.Post(context.Background(), input)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPostRejectsClosedPeriod(t *testing.T) {
	repo := openRepo(t)
	repo.periods[0].Status = PeriodStatusClosed
	service := NewService(repo, nil, nil, nil)

	_, err := service.Post(context.Background(), balancedInput("100.00"))
	require.ErrorIs(t, err, ErrPeriodClosed)
	require.Empty(t, repo.entries)
}

func TestPostRejectsLockedPeriod(t *testing.T) {
	repo := openRepo(t)
	repo.periods[0].Status = PeriodStatusLocked
	service := NewService(repo, nil, nil, nil)

	_, err := service.Post(context.Background(), balancedInput("100.00"))
	require.ErrorIs(t, err, ErrPeriodLocked)
}

func TestPostRejectsDateOutsidePeriods(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	input := balancedInput("100.00")
	input.Date = time.Now().AddDate(-3, 0, 0)
	_, err := service.Post(context.Background(), input)
	require.ErrorIs(t, err, ErrNoPeriodForDate)
}

func TestPostRejectsUnknownAccount(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	input := balancedInput("100.00")
	input.Lines[0].AccountCode = "9999"
	_, err := service.Post(context.Background(), input)
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.Empty(t, repo.entries)
}

func TestPostRejectsInactiveAccount(t *testing.T) {
	repo := openRepo(t)
	repo.addAccount(4, "1500", AccountTypeAsset, false)
	service := NewService(repo, nil, nil, nil)

	input := balancedInput("100.00")
	input.Lines[0].AccountCode = "1500"
	_, err := service.Post(context.Background(), input)
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestPostRejectsSummaryAccount(t *testing.T) {
	repo := openRepo(t)
	parent := int64(1)
	repo.accounts["1111"] = Account{ID: 5, Code: "1111", Type: AccountTypeAsset, IsActive: true, ParentID: &parent}
	service := NewService(repo, nil, nil, nil)

	_, err := service.Post(context.Background(), balancedInput("100.00"))
	require.ErrorIs(t, err, ErrSummaryAccount)
}

func TestPostIdempotentReplayReturnsSameVoucher(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	input := balancedInput("100.00")
	first, err := service.Post(context.Background(), input)
	require.NoError(t, err)
	second, err := service.Post(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, first.Number, second.Number)
	require.Len(t, repo.vouchers, 1)
	require.Len(t, repo.entries[first.ID], 2)
}

func TestReverseMirrorsEntries(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	original, err := service.Post(context.Background(), balancedInput("250.00"))
	require.NoError(t, err)

	reversal, err := service.Reverse(context.Background(), original.Number, 9, "")
	require.NoError(t, err)
	require.NotEqual(t, original.Number, reversal.Number)

	mirrored := repo.entries[reversal.ID]
	require.Len(t, mirrored, 2)
	originals := repo.entries[original.ID]
	for i := range mirrored {
		require.Equal(t, originals[i].Type.Opposite(), mirrored[i].Type)
		require.True(t, originals[i].Amount.Equal(mirrored[i].Amount))
		require.Equal(t, originals[i].AccountID, mirrored[i].AccountID)
	}

	updated := repo.vouchers[original.Number]
	require.Equal(t, VoucherStatusReversed, updated.Status)
	require.NotNil(t, updated.ReversalNumber)
	require.Equal(t, reversal.Number, *updated.ReversalNumber)
}

func TestReverseUnknownVoucher(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	_, err := service.Reverse(context.Background(), "VOU-999999", 9, "")
	require.ErrorIs(t, err, ErrVoucherNotFound)
}

func TestReverseTwiceFails(t *testing.T) {
	repo := openRepo(t)
	service := NewService(repo, nil, nil, nil)

	original, err := service.Post(context.Background(), balancedInput("80.00"))
	require.NoError(t, err)
	_, err = service.Reverse(context.Background(), original.Number, 9, "")
	require.NoError(t, err)
	_, err = service.Reverse(context.Background(), original.Number, 9, "")
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverseOutsideEditWindow(t *testing.T) {
	repo := openRepo(t)
	windows := EditWindows{SourceManual: 24 * time.Hour}
	service := NewService(repo, nil, nil, windows)

	original, err := service.Post(context.Background(), balancedInput("80.00"))
	require.NoError(t, err)

	service.WithNow(func() time.Time { return time.Now().Add(25 * time.Hour) })
	_, err = service.Reverse(context.Background(), original.Number, 9, "")
	require.ErrorIs(t, err, ErrEditWindowExpired)
}

func TestReverseInsideEditWindow(t *testing.T) {
	repo := openRepo(t)
	repo.periods[0].EndDate = time.Now().AddDate(0, 2, 0)
	windows := EditWindows{SourceManual: 48 * time.Hour}
	service := NewService(repo, nil, nil, windows)

	original, err := service.Post(context.Background(), balancedInput("80.00"))
	require.NoError(t, err)

	service.WithNow(func() time.Time { return time.Now().Add(24 * time.Hour) })
	_, err = service.Reverse(context.Background(), original.Number, 9, "")
	require.NoError(t, err)
}
