package ar

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists customers and their subsidiary transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerSelect = `SELECT id, name, email, phone, current_balance::text, created_at, updated_at FROM customers`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	var balance string
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &balance, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	c.CurrentBalance, err = decimal.NewFromString(balance)
	return c, err
}

// CreateCustomer inserts a customer with a zero starting balance.
func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `INSERT INTO customers (name, email, phone, current_balance)
VALUES ($1,$2,$3,0) RETURNING id, name, email, phone, current_balance::text, created_at, updated_at`, c.Name, c.Email, c.Phone))
}

func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, customerSelect+` WHERE id=$1`, id))
}

func (r *Repository) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, customerSelect+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

const transactionSelect = `SELECT id, customer_id, type, amount::text, tax::text, date, reference, source_id, voucher_number, state, created_by, created_at
FROM ar_transactions`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var amount, tax string
	err := row.Scan(&t.ID, &t.CustomerID, &t.Type, &amount, &tax, &t.Date, &t.Reference, &t.SourceID, &t.VoucherNumber, &t.State, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return Transaction{}, err
	}
	t.Tax, err = decimal.NewFromString(tax)
	return t, err
}

// InsertTransaction appends one subsidiary movement.
func (r *Repository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, `INSERT INTO ar_transactions (customer_id, type, amount, tax, date, reference, source_id, voucher_number, state, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, customer_id, type, amount::text, tax::text, date, reference, source_id, voucher_number, state, created_by, created_at`,
		t.CustomerID, t.Type, t.Amount.StringFixed(2), t.Tax.StringFixed(2), t.Date, t.Reference, t.SourceID, t.VoucherNumber, t.State, t.CreatedBy))
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx, transactionSelect+` WHERE id=$1`, id))
}

func (r *Repository) ListTransactions(ctx context.Context, customerID int64) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, transactionSelect+` WHERE customer_id=$1 ORDER BY date DESC, id DESC`, customerID)
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
	cmd, err := r.pool.Exec(ctx, `UPDATE ar_transactions SET state=$2, voucher_number=$3 WHERE id=$1`, id, state, voucherNumber)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// SumBalance derives the customer balance from active transactions:
// invoices add, receipts and returns subtract.
func (r *Repository) SumBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(
CASE WHEN type='INVOICE' THEN amount ELSE -amount END),0)::text
FROM ar_transactions WHERE customer_id=$1 AND state='ACTIVE'`, customerID).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// UpdateCustomerBalance writes the recomputed aggregate.
func (r *Repository) UpdateCustomerBalance(ctx context.Context, customerID int64, balance decimal.Decimal) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE customers SET current_balance=$2, updated_at=now() WHERE id=$1`, customerID, balance.StringFixed(2))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
