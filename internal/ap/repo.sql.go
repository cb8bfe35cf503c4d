package ap

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists suppliers and their subsidiary transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const supplierSelect = `SELECT id, name, email, phone, current_balance::text, created_at, updated_at FROM suppliers`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	var balance string
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &balance, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, ErrSupplierNotFound
		}
		return Supplier{}, err
	}
	s.CurrentBalance, err = decimal.NewFromString(balance)
	return s, err
}

// CreateSupplier inserts a supplier with a zero starting balance.
func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	return scanSupplier(r.pool.QueryRow(ctx, `INSERT INTO suppliers (name, email, phone, current_balance)
VALUES ($1,$2,$3,0) RETURNING id, name, email, phone, current_balance::text, created_at, updated_at`, s.Name, s.Email, s.Phone))
}

func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return scanSupplier(r.pool.QueryRow(ctx, supplierSelect+` WHERE id=$1`, id))
}

func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, supplierSelect+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var suppliers []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

const transactionSelect = `SELECT id, supplier_id, type, amount::text, date, reference, source_id, voucher_number, state, created_by, created_at
FROM ap_transactions`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var amount string
	err := row.Scan(&t.ID, &t.SupplierID, &t.Type, &amount, &t.Date, &t.Reference, &t.SourceID, &t.VoucherNumber, &t.State, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	t.Amount, err = decimal.NewFromString(amount)
	return t, err
}

// InsertTransaction appends one subsidiary movement.
func (r *Repository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `INSERT INTO ap_transactions (supplier_id, type, amount, date, reference, source_id, voucher_number, state, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id, supplier_id, type, amount::text, date, reference, source_id, voucher_number, state, created_by, created_at`,
		t.SupplierID, t.Type, t.Amount.StringFixed(2), t.Date, t.Reference, t.SourceID, t.VoucherNumber, t.State, t.CreatedBy))
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, transactionSelect+` WHERE id=$1`, id))
}

func (r *Repository) ListTransactions(ctx context.Context, supplierID int64) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, transactionSelect+` WHERE supplier_id=$1 ORDER BY date DESC, id DESC`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var transactions []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// SetTransactionState flips the soft-delete state and records the
// voucher currently backing the transaction.
func (r *Repository) SetTransactionState(ctx context.Context, id int64, state TransactionState, voucherNumber string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE ap_transactions SET state=$2, voucher_number=$3 WHERE id=$1`, id, state, voucherNumber)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// SumBalance derives the amount owed from active transactions:
// invoices add, payments and returns subtract.
func (r *Repository) SumBalance(ctx context.Context, supplierID int64) (decimal.Decimal, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(
CASE WHEN type='INVOICE' THEN amount ELSE -amount END),0)::text
FROM ap_transactions WHERE supplier_id=$1 AND state='ACTIVE'`, supplierID).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// UpdateSupplierBalance writes the recomputed aggregate.
func (r *Repository) UpdateSupplierBalance(ctx context.Context, supplierID int64, balance decimal.Decimal) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE suppliers SET current_balance=$2, updated_at=now() WHERE id=$1`, supplierID, balance.StringFixed(2))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}
