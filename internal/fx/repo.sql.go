package fx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists FX positions and revaluations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const positionSelect = `SELECT id, currency, account_code, foreign_amount::text, booked_base::text, updated_at FROM fx_positions`

func scanPosition(row pgx.Row) (Position, error) {
	var p Position
	var foreignAmount, bookedBase string
	err := row.Scan(&p.ID, &p.Currency, &p.AccountCode, &foreignAmount, &bookedBase, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{}, ErrPositionNotFound
		}
		return Position{}, err
	}
	if p.ForeignAmount, err = decimal.NewFromString(foreignAmount); err != nil {
		return Position{}, err
	}
	p.BookedBase, err = decimal.NewFromString(bookedBase)
	return p, err
}

// UpsertPosition creates or replaces the holding for one currency and
// account pair.
func (r *Repository) UpsertPosition(ctx context.Context, p Position) (Position, error) {
	return scanPosition(r.pool.QueryRow(ctx, `INSERT INTO fx_positions (currency, account_code, foreign_amount, booked_base)
VALUES ($1,$2,$3,$4)
ON CONFLICT (currency, account_code) DO UPDATE SET foreign_amount=EXCLUDED.foreign_amount, booked_base=EXCLUDED.booked_base, updated_at=now()
RETURNING id, currency, account_code, foreign_amount::text, booked_base::text, updated_at`,
		p.Currency, p.AccountCode, p.ForeignAmount.StringFixed(2), p.BookedBase.StringFixed(2)))
}

// ListPositions loads holdings, optionally filtered by currency.
func (r *Repository) ListPositions(ctx context.Context, currency string) ([]Position, error) {
	sql := positionSelect + ` ORDER BY currency, account_code`
	args := []any{}
	if currency != "" {
		sql = positionSelect + ` WHERE currency=$1 ORDER BY account_code`
		args = append(args, currency)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpdateBookedBase moves the carried base value to the revalued amount.
func (r *Repository) UpdateBookedBase(ctx context.Context, id int64, base decimal.Decimal) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE fx_positions SET booked_base=$2, updated_at=now() WHERE id=$1`, id, base.StringFixed(2))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPositionNotFound
	}
	return nil
}

const revaluationSelect = `SELECT id, currency, account_code, rate::text, date, gain_loss::text, voucher_number, created_by, created_at FROM revaluations`

func scanRevaluation(row pgx.Row) (Revaluation, error) {
	var rev Revaluation
	var rate, gainLoss string
	err := row.Scan(&rev.ID, &rev.Currency, &rev.AccountCode, &rate, &rev.Date, &gainLoss, &rev.VoucherNumber, &rev.CreatedBy, &rev.CreatedAt)
	if err != nil {
		return Revaluation{}, err
	}
	if rev.Rate, err = decimal.NewFromString(rate); err != nil {
		return Revaluation{}, err
	}
	rev.GainLoss, err = decimal.NewFromString(gainLoss)
	return rev, err
}

// InsertRevaluation appends one revaluation record.
func (r *Repository) InsertRevaluation(ctx context.Context, rev Revaluation) (Revaluation, error) {
	return scanRevaluation(r.pool.QueryRow(ctx, `INSERT INTO revaluations (currency, account_code, rate, date, gain_loss, voucher_number, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id, currency, account_code, rate::text, date, gain_loss::text, voucher_number, created_by, created_at`,
		rev.Currency, rev.AccountCode, rev.Rate.String(), rev.Date, rev.GainLoss.StringFixed(2), rev.VoucherNumber, rev.CreatedBy))
}

// ListRevaluations loads history, newest first.
func (r *Repository) ListRevaluations(ctx context.Context, currency string) ([]Revaluation, error) {
	sql := revaluationSelect + ` ORDER BY date DESC, id DESC`
	args := []any{}
	if currency != "" {
		sql = revaluationSelect + ` WHERE currency=$1 ORDER BY date DESC, id DESC`
		args = append(args, currency)
	}
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Revaluation
	for rows.Next() {
		rev, err := scanRevaluation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rev)
	}
	return result, rows.Err()
}
