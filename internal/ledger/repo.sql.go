package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EntryRecord is a resolved line ready for insertion.
type EntryRecord struct {
	AccountID   int64
	Type        EntryType
	Amount      decimal.Decimal
	Description string
}

// TxRepository exposes transactional operations against the entry store.
type TxRepository interface {
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	HasChildAccounts(ctx context.Context, accountID int64) (bool, error)
	GetPeriodForDate(ctx context.Context, date time.Time) (Period, error)
	NextVoucherNumber(ctx context.Context, documentType string) (string, error)
	FindVoucherBySource(ctx context.Context, sourceType SourceType, sourceID uuid.UUID) (Voucher, error)
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	InsertEntries(ctx context.Context, voucher Voucher, records []EntryRecord) error
	GetVoucherWithEntries(ctx context.Context, number string) (Voucher, []Entry, error)
	MarkVoucherReversed(ctx context.Context, voucherID int64, reversalNumber string, at time.Time) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction so a voucher
// and its entries are committed all-or-nothing.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	var a Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, parent_id, is_active, created_at, updated_at
FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) HasChildAccounts(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE parent_id=$1)`, accountID).Scan(&exists)
	return exists, err
}

// GetPeriodForDate locks the covering period row so a concurrent close
// serializes against this posting.
func (r *txRepository) GetPeriodForDate(ctx context.Context, date time.Time) (Period, error) {
	var p Period
	err := r.tx.QueryRow(ctx, `SELECT id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at
FROM fiscal_periods WHERE $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1 FOR UPDATE`, date).
		Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNoPeriodForDate
		}
		return Period{}, err
	}
	return p, nil
}

// NextVoucherNumber allocates the next number from document_sequences,
// creating a default sequence on first use. The row lock makes numbers
// gapless per document type within committed transactions.
func (r *txRepository) NextVoucherNumber(ctx context.Context, documentType string) (string, error) {
	var prefix, format string
	var current int64
	err := r.tx.QueryRow(ctx, `SELECT prefix, format, current_number FROM document_sequences WHERE document_type=$1 FOR UPDATE`, documentType).
		Scan(&prefix, &format, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		prefix, format, current = documentType, "{PREFIX}-{NUMBER}", 0
		if _, err := r.tx.Exec(ctx, `INSERT INTO document_sequences (document_type, prefix, format, current_number) VALUES ($1,$2,$3,0)`, documentType, prefix, format); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	current++
	if _, err := r.tx.Exec(ctx, `UPDATE document_sequences SET current_number=$2 WHERE document_type=$1`, documentType, current); err != nil {
		return "", err
	}
	number := strings.NewReplacer("{PREFIX}", prefix, "{NUMBER}", fmt.Sprintf("%06d", current)).Replace(format)
	return number, nil
}

func (r *txRepository) FindVoucherBySource(ctx context.Context, sourceType SourceType, sourceID uuid.UUID) (Voucher, error) {
	return scanVoucher(r.tx.QueryRow(ctx, voucherSelect+` WHERE source_type=$1 AND source_id=$2`, sourceType, sourceID))
}

const voucherSelect = `SELECT id, number, source_type, source_id, status, date, memo, created_by, created_at, reversal_number, reversed_at
FROM vouchers`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.Number, &v.SourceType, &v.SourceID, &v.Status, &v.Date, &v.Memo, &v.CreatedBy, &v.CreatedAt, &v.ReversalNumber, &v.ReversedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

func (r *txRepository) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO vouchers (number, source_type, source_id, status, date, memo, created_by)
VALUES ($1,$2,$3,'POSTED',$4,$5,$6) RETURNING id, created_at`, v.Number, v.SourceType, v.SourceID, v.Date, v.Memo, v.CreatedBy)
	v.Status = VoucherStatusPosted
	if err := row.Scan(&v.ID, &v.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_vouchers_source" {
			return Voucher{}, ErrSourceAlreadyPosted
		}
		return Voucher{}, err
	}
	return v, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, voucher Voucher, records []EntryRecord) error {
	for _, rec := range records {
		if _, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries (voucher_id, account_id, entry_type, amount, description, voucher_date, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, voucher.ID, rec.AccountID, rec.Type, rec.Amount.StringFixed(2), rec.Description, voucher.Date, voucher.CreatedBy); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetVoucherWithEntries(ctx context.Context, number string) (Voucher, []Entry, error) {
	voucher, err := scanVoucher(r.tx.QueryRow(ctx, voucherSelect+` WHERE number=$1`, number))
	if err != nil {
		return Voucher{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.voucher_id, v.number, e.account_id, a.code, e.entry_type, e.amount::text, e.description, e.voucher_date, e.created_by, e.is_closed, e.created_at
FROM ledger_entries e
JOIN vouchers v ON v.id = e.voucher_id
JOIN accounts a ON a.id = e.account_id
WHERE e.voucher_id=$1 ORDER BY e.id ASC`, voucher.ID)
	if err != nil {
		return Voucher{}, nil, err
	}
	defer rows.Close()
	entries, err := collectEntries(rows)
	if err != nil {
		return Voucher{}, nil, err
	}
	return voucher, entries, nil
}

func (r *txRepository) MarkVoucherReversed(ctx context.Context, voucherID int64, reversalNumber string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE vouchers SET status='REVERSED', reversal_number=$2, reversed_at=$3 WHERE id=$1 AND status='POSTED'`, voucherID, reversalNumber, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

// QueryEntries runs a pure, restartable query over the entry store.
// Filters compile to parameterized SQL; ordering is voucher_date
// descending.
func (r *Repository) QueryEntries(ctx context.Context, filter EntryFilter) ([]Entry, int, error) {
	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.AccountCode != "" {
		where = append(where, "a.code = "+arg(filter.AccountCode))
	}
	if filter.VoucherNumber != "" {
		where = append(where, "v.number = "+arg(filter.VoucherNumber))
	}
	if filter.From != nil {
		where = append(where, "e.voucher_date >= "+arg(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "e.voucher_date <= "+arg(*filter.To))
	}
	if !filter.IncludeReversed {
		where = append(where, "v.status <> 'REVERSED'")
	}
	cond := strings.Join(where, " AND ")

	var total int
	countSQL := `SELECT COUNT(*) FROM ledger_entries e JOIN vouchers v ON v.id=e.voucher_id JOIN accounts a ON a.id=e.account_id WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	listSQL := `SELECT e.id, e.voucher_id, v.number, e.account_id, a.code, e.entry_type, e.amount::text, e.description, e.voucher_date, e.created_by, e.is_closed, e.created_at
FROM ledger_entries e
JOIN vouchers v ON v.id = e.voucher_id
JOIN accounts a ON a.id = e.account_id
WHERE ` + cond + ` ORDER BY e.voucher_date DESC, e.id DESC LIMIT ` + arg(perPage) + ` OFFSET ` + arg((page-1)*perPage)
	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var amount string
		if err := rows.Scan(&e.ID, &e.VoucherID, &e.Number, &e.AccountID, &e.AccountCode, &e.Type, &amount, &e.Description, &e.Date, &e.CreatedBy, &e.IsClosed, &e.CreatedAt); err != nil {
			return nil, err
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		e.Amount = value
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetVoucherBySource resolves an already-posted voucher outside a
// transaction, used when an idempotent replay loses the insert race.
func (r *Repository) GetVoucherBySource(ctx context.Context, sourceType SourceType, sourceID uuid.UUID) (Voucher, error) {
	return scanVoucher(r.pool.QueryRow(ctx, voucherSelect+` WHERE source_type=$1 AND source_id=$2`, sourceType, sourceID))
}

// ListAccounts retrieves the chart of accounts ordered by code.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, type, parent_id, is_active, created_at, updated_at FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccountMapping resolves an account mapping for the specified key.
func (r *Repository) GetAccountMapping(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("ledger: module and key required")
	}
	normalized := strings.ToUpper(module)
	var mapping AccountMapping
	err := r.pool.QueryRow(ctx, `SELECT module, key, account_code, created_at, updated_at FROM account_mappings WHERE module=$1 AND key=$2`, normalized, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.AccountCode, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
