package balances

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger"
)

// Repository aggregates ledger entries into balances. All reads are
// pure queries; aggregates are recomputed from the entry store, never
// stored, so a crash between entry insert and aggregate update cannot
// exist.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MonthlyActivity is raw per-month movement for one account.
type MonthlyActivity struct {
	Bucket string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

const activitySelect = `SELECT a.code, a.name, a.type,
COALESCE(SUM(CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE 0 END),0)::text,
COALESCE(SUM(CASE WHEN e.entry_type='CREDIT' THEN e.amount ELSE 0 END),0)::text
FROM ledger_entries e
JOIN accounts a ON a.id = e.account_id
WHERE e.is_closed = false AND e.voucher_date <= $1`

// AccountActivity sums debit and credit movement per account up to the
// cut-off. Accounts without entries are absent from the result.
func (r *Repository) AccountActivity(ctx context.Context, asOf time.Time) ([]AccountActivity, error) {
	rows, err := r.pool.Query(ctx, activitySelect+` GROUP BY a.code, a.name, a.type ORDER BY a.code`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []AccountActivity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, activity)
	}
	return result, rows.Err()
}

// SingleAccountActivity sums movement for one account. The account must
// exist; zero movement is a valid answer.
func (r *Repository) SingleAccountActivity(ctx context.Context, code string, asOf time.Time) (AccountActivity, error) {
	var activity AccountActivity
	err := r.pool.QueryRow(ctx, `SELECT a.code, a.name, a.type,
COALESCE((SELECT SUM(e.amount) FROM ledger_entries e WHERE e.account_id=a.id AND e.entry_type='DEBIT' AND e.is_closed=false AND e.voucher_date <= $2),0)::text,
COALESCE((SELECT SUM(e.amount) FROM ledger_entries e WHERE e.account_id=a.id AND e.entry_type='CREDIT' AND e.is_closed=false AND e.voucher_date <= $2),0)::text
FROM accounts a WHERE a.code=$1`, code, asOf).
		Scan(&activity.Code, &activity.Name, &activity.Type, scanDecimal(&activity.Debit), scanDecimal(&activity.Credit))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountActivity{}, ledger.ErrAccountNotFound
		}
		return AccountActivity{}, err
	}
	return activity, nil
}

// MonthlyActivity buckets one account's movement by calendar month.
// Months with no entries produce no bucket.
func (r *Repository) MonthlyActivity(ctx context.Context, code string, from, to time.Time) ([]MonthlyActivity, error) {
	rows, err := r.pool.Query(ctx, `SELECT to_char(e.voucher_date, 'YYYY-MM') AS bucket,
COALESCE(SUM(CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE 0 END),0)::text,
COALESCE(SUM(CASE WHEN e.entry_type='CREDIT' THEN e.amount ELSE 0 END),0)::text
FROM ledger_entries e
JOIN accounts a ON a.id = e.account_id
WHERE a.code = $1 AND e.is_closed = false AND e.voucher_date BETWEEN $2 AND $3
GROUP BY bucket ORDER BY bucket`, code, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []MonthlyActivity
	for rows.Next() {
		var m MonthlyActivity
		if err := rows.Scan(&m.Bucket, scanDecimal(&m.Debit), scanDecimal(&m.Credit)); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ErrUnknownSide rejects subsidiary sides other than "ar" and "ap".
var ErrUnknownSide = errors.New("balances: unknown subsidiary side")

// SubsidiaryTotal sums the stored balances on one subsidiary side.
func (r *Repository) SubsidiaryTotal(ctx context.Context, side string) (decimal.Decimal, error) {
	var query string
	switch side {
	case "ar":
		query = `SELECT COALESCE(SUM(current_balance),0)::text FROM customers`
	case "ap":
		query = `SELECT COALESCE(SUM(current_balance),0)::text FROM suppliers`
	default:
		return decimal.Zero, ErrUnknownSide
	}
	var raw string
	if err := r.pool.QueryRow(ctx, query).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func scanActivity(rows pgx.Rows) (AccountActivity, error) {
	var activity AccountActivity
	err := rows.Scan(&activity.Code, &activity.Name, &activity.Type, scanDecimal(&activity.Debit), scanDecimal(&activity.Credit))
	return activity, err
}

// decimalScanner parses a numeric rendered as text into a decimal.
type decimalScanner struct {
	dest *decimal.Decimal
}

func scanDecimal(dest *decimal.Decimal) *decimalScanner {
	return &decimalScanner{dest: dest}
}

func (s *decimalScanner) Scan(src any) error {
	switch v := src.(type) {
	case string:
		value, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		*s.dest = value
		return nil
	case []byte:
		value, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		*s.dest = value
		return nil
	case nil:
		*s.dest = decimal.Zero
		return nil
	default:
		return errors.New("balances: unsupported decimal source")
	}
}
