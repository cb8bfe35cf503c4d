package ar

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
	customers    map[int64]Customer
	transactions map[int64]Transaction
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		customers:    make(map[int64]Customer),
		transactions: make(map[int64]Transaction),
	}
}

func (r *memoryRepo) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	r.nextID++
	c.ID = r.nextID
	r.customers[c.ID] = c
	return c, nil
}

func (r *memoryRepo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (r *memoryRepo) ListCustomers(ctx context.Context) ([]Customer, error) {
	out := make([]Customer, 0, len(r.customers))
	for _, c := range r.customers {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepo) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Now()
	r.transactions[t.ID] = t
	return t, nil
}

func (r *memoryRepo) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	t, ok := r.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, customerID int64) ([]Transaction, error) {
	var out []Transaction
	for _, t := range r.transactions {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepo) SetTransactionState(ctx context.Context, id int64, state TransactionState, voucherNumber string) error {
	t, ok := r.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	t.State = state
	t.VoucherNumber = voucherNumber
	r.transactions[id] = t
	return nil
}

func (r *memoryRepo) SumBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range r.transactions {
		if t.CustomerID == customerID && t.State == StateActive {
			sum = sum.Add(t.Impact())
		}
	}
	return sum, nil
}

func (r *memoryRepo) UpdateCustomerBalance(ctx context.Context, customerID int64, balance decimal.Decimal) error {
	c, ok := r.customers[customerID]
	if !ok {
		return ErrCustomerNotFound
	}
	c.CurrentBalance = balance
	r.customers[customerID] = c
	return nil
}

type fakePoster struct {
	posted   []ledger.PostingInput
	reversed []string
	seq      int
}

func (p *fakePoster) Post(ctx context.Context, input ledger.PostingInput) (ledger.Voucher, error) {
	if err := input.Validate(); err != nil {
		return ledger.Voucher{}, err
	}
	p.seq++
	p.posted = append(p.posted, input)
	return ledger.Voucher{
		Number:     fmt.Sprintf("%s-%06d", input.SourceType.Prefix(), p.seq),
		SourceType: input.SourceType,
		SourceID:   input.SourceID,
		Status:     ledger.VoucherStatusPosted,
		Date:       input.Date,
	}, nil
}

func (p *fakePoster) Reverse(ctx context.Context, voucherNumber string, actorID int64, memo string) (ledger.Voucher, error) {
	p.seq++
	p.reversed = append(p.reversed, voucherNumber)
	return ledger.Voucher{Number: fmt.Sprintf("VOU-%06d", p.seq)}, nil
}

func setup(t *testing.T) (*Service, *memoryRepo, *fakePoster, Customer) {
	t.Helper()
	repo := newMemoryRepo()
	poster := &fakePoster{}
	resolver := staticResolver{
		ledger.MappingCash:         "1110",
		ledger.MappingAR:           "1130",
		ledger.MappingSalesRevenue: "4100",
		ledger.MappingTaxPayable:   "2150",
	}
	service := NewService(repo, poster, ledger.NewRecipes(resolver), nil)
	customer, err := service.CreateCustomer(context.Background(), "Acme Ltd", "billing@acme.test", "")
	require.NoError(t, err)
	return service, repo, poster, customer
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

func TestInvoiceThenReceiptBalance(t *testing.T) {
	service, repo, poster, customer := setup(t)
	ctx := context.Background()

	_, err := service.RecordInvoice(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("100.00"), Reference: "INV-1"})
	require.NoError(t, err)
	_, err = service.RecordReceipt(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("40.00"), Reference: "RCT-1"})
	require.NoError(t, err)

	updated, err := repo.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.True(t, updated.CurrentBalance.Equal(dec("60.00")))
	require.Len(t, poster.posted, 2)
}

func TestInvoiceWithTaxMovesGrossBalance(t *testing.T) {
	service, repo, _, customer := setup(t)
	ctx := context.Background()

	_, err := service.RecordInvoice(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("100.00"), Tax: dec("7.00"), Reference: "INV-2"})
	require.NoError(t, err)

	updated, err := repo.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.True(t, updated.CurrentBalance.Equal(dec("107.00")))
}

func TestRecordDefaultsVoucherDate(t *testing.T) {
	service, _, poster, customer := setup(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	service.WithNow(func() time.Time { return clock })

	_, err := service.RecordInvoice(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("50.00"), Reference: "INV-ND"})
	require.NoError(t, err)
	_, err = service.RecordReceipt(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("20.00"), Reference: "RCT-ND"})
	require.NoError(t, err)
	_, err = service.RecordReturn(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("10.00"), Reference: "CRN-ND"})
	require.NoError(t, err)

	require.Len(t, poster.posted, 3)
	for _, input := range poster.posted {
		require.True(t, input.Date.Equal(clock))
	}
}

func TestReturnReducesBalance(t *testing.T) {
	service, repo, _, customer := setup(t)
	ctx := context.Background()

	_, err := service.RecordInvoice(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("100.00"), Reference: "INV-3"})
	require.NoError(t, err)
	_, err = service.RecordReturn(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("25.00"), Reference: "CRN-1"})
	require.NoError(t, err)

	updated, err := repo.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.True(t, updated.CurrentBalance.Equal(dec("75.00")))
}

func TestRecordRejectsUnknownCustomer(t *testing.T) {
	service, _, _, _ := setup(t)
	_, err := service.RecordInvoice(context.Background(), TransactionInput{CustomerID: 999, Amount: dec("10.00")})
	require.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestRecordRejectsNonPositiveAmount(t *testing.T) {
	service, _, _, customer := setup(t)
	_, err := service.RecordReceipt(context.Background(), TransactionInput{CustomerID: customer.ID, Amount: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSoftDeleteReversesVoucherAndRestoresBalance(t *testing.T) {
	service, repo, poster, customer := setup(t)
	ctx := context.Background()

	invoice, err := service.RecordInvoice(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("100.00"), Reference: "INV-4"})
	require.NoError(t, err)

	deleted, err := service.SoftDelete(ctx, invoice.ID, 5)
	require.NoError(t, err)
	require.Equal(t, StateDeleted, deleted.State)
	require.Equal(t, []string{invoice.VoucherNumber}, poster.reversed)

	updated, err := repo.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.True(t, updated.CurrentBalance.IsZero())

	_, err = service.SoftDelete(ctx, invoice.ID, 5)
	require.ErrorIs(t, err, ErrAlreadyDeleted)
}

func TestRestoreRepostsFreshVoucher(t *testing.T) {
	service, repo, poster, customer := setup(t)
	ctx := context.Background()

	invoice, err := service.RecordInvoice(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("100.00"), Reference: "INV-5"})
	require.NoError(t, err)
	_, err = service.SoftDelete(ctx, invoice.ID, 5)
	require.NoError(t, err)

	restored, err := service.Restore(ctx, invoice.ID, 5)
	require.NoError(t, err)
	require.Equal(t, StateActive, restored.State)
	require.NotEqual(t, invoice.VoucherNumber, restored.VoucherNumber)
	require.Len(t, poster.posted, 2)

	updated, err := repo.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.True(t, updated.CurrentBalance.Equal(dec("100.00")))

	_, err = service.Restore(ctx, invoice.ID, 5)
	require.ErrorIs(t, err, ErrNotDeleted)
}

func TestRestoreKeepsInvoiceTaxSplit(t *testing.T) {
	service, _, poster, customer := setup(t)
	ctx := context.Background()

	invoice, err := service.RecordInvoice(ctx, TransactionInput{CustomerID: customer.ID, Amount: dec("100.00"), Tax: dec("7.00"), Reference: "INV-6"})
	require.NoError(t, err)
	require.True(t, invoice.Tax.Equal(dec("7.00")))
	_, err = service.SoftDelete(ctx, invoice.ID, 5)
	require.NoError(t, err)
	_, err = service.Restore(ctx, invoice.ID, 5)
	require.NoError(t, err)

	require.Len(t, poster.posted, 2)
	reposted := poster.posted[1]
	byAccount := map[string]ledger.LineInput{}
	for _, line := range reposted.Lines {
		byAccount[line.AccountCode] = line
	}
	require.Equal(t, ledger.EntryDebit, byAccount["1130"].Type)
	require.True(t, byAccount["1130"].Amount.Equal(dec("107.00")))
	require.Equal(t, ledger.EntryCredit, byAccount["4100"].Type)
	require.True(t, byAccount["4100"].Amount.Equal(dec("100.00")))
	require.Equal(t, ledger.EntryCredit, byAccount["2150"].Type)
	require.True(t, byAccount["2150"].Amount.Equal(dec("7.00")))
}
