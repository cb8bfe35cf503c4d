package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeLedgerIntegrity verifies that every posted voucher stays balanced.
	TaskTypeLedgerIntegrity = "ledger:integrity"
	// TaskTypeSubsidiaryRecompute rebuilds stored customer and supplier balances.
	TaskTypeSubsidiaryRecompute = "subsidiary:recompute"
)

// LedgerIntegrityPayload scopes the integrity scan.
type LedgerIntegrityPayload struct {
	// AsOf bounds the scan to entries dated on or before this day
	// (YYYY-MM-DD). Empty scans the whole ledger.
	AsOf string `json:"as_of,omitempty"`
}

// SubsidiaryRecomputePayload selects which subsidiary ledgers to rebuild.
type SubsidiaryRecomputePayload struct {
	// Ledger is "ar", "ap", or empty for both.
	Ledger string `json:"ledger,omitempty"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity scan.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeLedgerIntegrity, data), nil
}

// NewSubsidiaryRecomputeTask constructs an Asynq task for balance rebuilds.
func NewSubsidiaryRecomputeTask(payload SubsidiaryRecomputePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSubsidiaryRecompute, data), nil
}
