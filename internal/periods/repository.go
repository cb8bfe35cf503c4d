package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-books/meridian/internal/ledger"
)

// ErrPeriodOverlap indicates a new period intersects an existing one.
var ErrPeriodOverlap = errors.New("periods: window overlaps an existing period")

// ErrPeriodNotFound indicates an unknown period id or code.
var ErrPeriodNotFound = errors.New("periods: period not found")

// Repository persists fiscal periods.
type Repository interface {
	Create(ctx context.Context, p ledger.Period) (ledger.Period, error)
	GetByCode(ctx context.Context, code string) (ledger.Period, error)
	List(ctx context.Context) ([]ledger.Period, error)
	UpdateStatus(ctx context.Context, id int64, status ledger.PeriodStatus, actorID int64, at time.Time) (ledger.Period, error)
	SetEntriesClosed(ctx context.Context, start, end time.Time, closed bool) (int64, error)
	FindOpenPeriodByDate(ctx context.Context, date time.Time) (ledger.Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the period repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodSelect = `SELECT id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at
FROM fiscal_periods`

func scanPeriod(row pgx.Row) (ledger.Period, error) {
	var p ledger.Period
	err := row.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Period{}, ErrPeriodNotFound
		}
		return ledger.Period{}, err
	}
	return p, nil
}

// Create inserts a new period after verifying the window touches no
// existing period.
func (r *repository) Create(ctx context.Context, p ledger.Period) (ledger.Period, error) {
	var overlaps bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM fiscal_periods WHERE start_date <= $2 AND end_date >= $1)`, p.StartDate, p.EndDate).Scan(&overlaps)
	if err != nil {
		return ledger.Period{}, err
	}
	if overlaps {
		return ledger.Period{}, ErrPeriodOverlap
	}
	row := r.db.QueryRow(ctx, `INSERT INTO fiscal_periods (code, start_date, end_date, status)
VALUES ($1,$2,$3,'OPEN') RETURNING id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at`,
		p.Code, p.StartDate, p.EndDate)
	return scanPeriod(row)
}

func (r *repository) GetByCode(ctx context.Context, code string) (ledger.Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, periodSelect+` WHERE code=$1`, code))
}

func (r *repository) List(ctx context.Context) ([]ledger.Period, error) {
	rows, err := r.db.Query(ctx, periodSelect+` ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []ledger.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// UpdateStatus writes the new status, stamping closed_at and locked_by
// as appropriate.
func (r *repository) UpdateStatus(ctx context.Context, id int64, status ledger.PeriodStatus, actorID int64, at time.Time) (ledger.Period, error) {
	var closedAt *time.Time
	var lockedBy *int64
	switch status {
	case ledger.PeriodStatusClosed:
		closedAt = &at
	case ledger.PeriodStatusLocked:
		closedAt = &at
		lockedBy = &actorID
	}
	row := r.db.QueryRow(ctx, `UPDATE fiscal_periods SET status=$2, closed_at=$3, locked_by=$4, updated_at=now()
WHERE id=$1 RETURNING id, code, start_date, end_date, status, closed_at, locked_by, created_at, updated_at`,
		id, status, closedAt, lockedBy)
	return scanPeriod(row)
}

// SetEntriesClosed flags every ledger entry dated inside the window.
// Aggregations skip closed entries, so locking a period drops its
// entries out of trial balances and unlocking brings them back.
func (r *repository) SetEntriesClosed(ctx context.Context, start, end time.Time, closed bool) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE ledger_entries SET is_closed=$3 WHERE voucher_date BETWEEN $1 AND $2`, start, end, closed)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// FindOpenPeriodByDate returns the open period covering the supplied date.
func (r *repository) FindOpenPeriodByDate(ctx context.Context, date time.Time) (ledger.Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, periodSelect+` WHERE status='OPEN' AND $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, date))
}
