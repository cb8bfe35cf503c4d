package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recomputer rebuilds the stored subsidiary balances from transaction rows.
// Services keep balances current on every write; this job repairs drift
// after manual data fixes or restores.
type Recomputer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRecomputer constructs a recomputer bound to the subsidiary tables.
func NewRecomputer(pool *pgxpool.Pool, logger *slog.Logger) *Recomputer {
	return &Recomputer{pool: pool, logger: logger}
}

// Run rebuilds the requested ledgers. Ledger "ar" covers customers,
// "ap" covers suppliers, empty covers both.
func (r *Recomputer) Run(ctx context.Context, payload SubsidiaryRecomputePayload) error {
	switch payload.Ledger {
	case "ar":
		return r.recomputeCustomers(ctx)
	case "ap":
		return r.recomputeSuppliers(ctx)
	case "":
		if err := r.recomputeCustomers(ctx); err != nil {
			return err
		}
		return r.recomputeSuppliers(ctx)
	default:
		return fmt.Errorf("jobs: unknown subsidiary ledger %q", payload.Ledger)
	}
}

func (r *Recomputer) recomputeCustomers(ctx context.Context) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE customers c SET current_balance = COALESCE((
SELECT SUM(CASE WHEN t.type='INVOICE' THEN t.amount ELSE -t.amount END)
FROM ar_transactions t
WHERE t.customer_id = c.id AND t.state='ACTIVE'), 0), updated_at = now()`)
	if err != nil {
		return fmt.Errorf("jobs: recompute customers: %w", err)
	}
	r.logger.Info("customer balances recomputed", slog.Int64("rows", cmd.RowsAffected()))
	return nil
}

func (r *Recomputer) recomputeSuppliers(ctx context.Context) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE suppliers s SET current_balance = COALESCE((
SELECT SUM(CASE WHEN t.type='INVOICE' THEN t.amount ELSE -t.amount END)
FROM ap_transactions t
WHERE t.supplier_id = s.id AND t.state='ACTIVE'), 0), updated_at = now()`)
	if err != nil {
		return fmt.Errorf("jobs: recompute suppliers: %w", err)
	}
	r.logger.Info("supplier balances recomputed", slog.Int64("rows", cmd.RowsAffected()))
	return nil
}

// HandlerFunc adapts the recomputer to the Asynq handler contract.
func (r *Recomputer) HandlerFunc() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SubsidiaryRecomputePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		return r.Run(ctx, payload)
	}
}
