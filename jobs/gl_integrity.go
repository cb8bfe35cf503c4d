package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IntegrityChecker scans posted vouchers for debit/credit drift.
type IntegrityChecker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewIntegrityChecker constructs a checker bound to the ledger database.
func NewIntegrityChecker(pool *pgxpool.Pool, logger *slog.Logger) *IntegrityChecker {
	return &IntegrityChecker{pool: pool, logger: logger}
}

// Run reports every voucher whose entries do not sum to zero. A healthy
// ledger returns nil; drift is surfaced as an error so the job retries
// and stays visible in the queue until someone investigates.
func (c *IntegrityChecker) Run(ctx context.Context, payload LedgerIntegrityPayload) error {
	query := `SELECT v.number, SUM(CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE -e.amount END)::text
FROM vouchers v
JOIN ledger_entries e ON e.voucher_id = v.id`
	args := []any{}
	if payload.AsOf != "" {
		asOf, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			return fmt.Errorf("jobs: parse as_of: %w", err)
		}
		query += ` WHERE e.voucher_date <= $1`
		args = append(args, asOf)
	}
	query += `
GROUP BY v.number
HAVING SUM(CASE WHEN e.entry_type='DEBIT' THEN e.amount ELSE -e.amount END) <> 0
ORDER BY v.number`

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("jobs: integrity scan: %w", err)
	}
	defer rows.Close()

	var drifted []string
	for rows.Next() {
		var number, drift string
		if err := rows.Scan(&number, &drift); err != nil {
			return fmt.Errorf("jobs: integrity scan: %w", err)
		}
		drifted = append(drifted, number+"="+drift)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("jobs: integrity scan: %w", err)
	}

	if len(drifted) > 0 {
		c.logger.Error("ledger integrity check failed",
			slog.Int("vouchers", len(drifted)),
			slog.String("drift", strings.Join(drifted, ",")))
		return fmt.Errorf("jobs: %d unbalanced vouchers: %s", len(drifted), strings.Join(drifted, ","))
	}

	c.logger.Info("ledger integrity check passed", slog.String("as_of", payload.AsOf))
	return nil
}

// HandlerFunc adapts the checker to the Asynq handler contract.
func (c *IntegrityChecker) HandlerFunc() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerIntegrityPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		return c.Run(ctx, payload)
	}
}
