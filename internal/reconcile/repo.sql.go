package reconcile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists reconciliations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reconciliationSelect = `SELECT id, account_code, date, ledger_balance::text, physical_balance::text, difference::text, status, notes, created_by, created_at, updated_at
FROM reconciliations`

func scanReconciliation(row pgx.Row) (Reconciliation, error) {
	var r Reconciliation
	var ledgerBalance, physicalBalance, difference string
	err := row.Scan(&r.ID, &r.AccountCode, &r.Date, &ledgerBalance, &physicalBalance, &difference, &r.Status, &r.Notes, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reconciliation{}, ErrReconciliationNotFound
		}
		return Reconciliation{}, err
	}
	if r.LedgerBalance, err = decimal.NewFromString(ledgerBalance); err != nil {
		return Reconciliation{}, err
	}
	if r.PhysicalBalance, err = decimal.NewFromString(physicalBalance); err != nil {
		return Reconciliation{}, err
	}
	r.Difference, err = decimal.NewFromString(difference)
	return r, err
}

// Insert stores a new reconciliation.
func (r *Repository) Insert(ctx context.Context, rec Reconciliation) (Reconciliation, error) {
	return scanReconciliation(r.pool.QueryRow(ctx, `INSERT INTO reconciliations
(account_code, date, ledger_balance, physical_balance, difference, status, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, account_code, date, ledger_balance::text, physical_balance::text, difference::text, status, notes, created_by, created_at, updated_at`,
		rec.AccountCode, rec.Date, rec.LedgerBalance.StringFixed(2), rec.PhysicalBalance.StringFixed(2),
		rec.Difference.StringFixed(2), rec.Status, rec.Notes, rec.CreatedBy))
}

// Get loads one reconciliation.
func (r *Repository) Get(ctx context.Context, id int64) (Reconciliation, error) {
	return scanReconciliation(r.pool.QueryRow(ctx, reconciliationSelect+` WHERE id=$1`, id))
}

// List loads reconciliations, newest first, optionally by account.
func (r *Repository) List(ctx context.Context, accountCode string) ([]Reconciliation, error) {
	sql := reconciliationSelect + ` ORDER BY date DESC, id DESC`
	args := []any{}
	if accountCode != "" {
		sql = reconciliationSelect + ` WHERE account_code=$1 ORDER BY date DESC, id DESC`
		args = append(args, accountCode)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Reconciliation
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Update rewrites the derived fields after an adjustment or recount.
func (r *Repository) Update(ctx context.Context, rec Reconciliation) (Reconciliation, error) {
	return scanReconciliation(r.pool.QueryRow(ctx, `UPDATE reconciliations
SET ledger_balance=$2, physical_balance=$3, difference=$4, status=$5, notes=$6, updated_at=now()
WHERE id=$1
RETURNING id, account_code, date, ledger_balance::text, physical_balance::text, difference::text, status, notes, created_by, created_at, updated_at`,
		rec.ID, rec.LedgerBalance.StringFixed(2), rec.PhysicalBalance.StringFixed(2),
		rec.Difference.StringFixed(2), rec.Status, rec.Notes))
}
