package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-books/meridian/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetVoucherBySource(ctx context.Context, sourceType SourceType, sourceID uuid.UUID) (Voucher, error)
	QueryEntries(ctx context.Context, filter EntryFilter) ([]Entry, int, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates derived balance caches after a write.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// EditWindows maps a source type to the duration within which a posted
// voucher may still be reversed. A missing or zero entry means no limit.
type EditWindows map[SourceType]time.Duration

// Service is the posting engine: the single entry point through which
// business events become balanced ledger entries.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   CacheBumper
	windows EditWindows
	now     func() time.Time
}

// NewService constructs the posting engine.
func NewService(repo RepositoryPort, audit AuditPort, cache CacheBumper, windows EditWindows) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, windows: windows, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists a voucher. Posting the same
// (sourceType, sourceID) twice returns the original voucher without
// writing anything, so callers may retry safely.
func (s *Service) Post(ctx context.Context, input PostingInput) (Voucher, error) {
	if err := input.Validate(); err != nil {
		return Voucher{}, err
	}
	var voucher Voucher
	var replay bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindVoucherBySource(ctx, input.SourceType, input.SourceID)
		if err == nil {
			voucher = existing
			replay = true
			return nil
		}
		if !errors.Is(err, ErrVoucherNotFound) {
			return err
		}
		records, err := s.resolveLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		if err := checkPeriodOpen(ctx, tx, input.Date); err != nil {
			return err
		}
		number, err := tx.NextVoucherNumber(ctx, input.SourceType.Prefix())
		if err != nil {
			return err
		}
		inserted, err := tx.InsertVoucher(ctx, Voucher{
			Number:     number,
			SourceType: input.SourceType,
			SourceID:   input.SourceID,
			Date:       input.Date,
			Memo:       input.Memo,
			CreatedBy:  input.CreatedBy,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertEntries(ctx, inserted, records); err != nil {
			return err
		}
		voucher = inserted
		return nil
	})
	if errors.Is(err, ErrSourceAlreadyPosted) {
		// Lost the insert race to a concurrent retry; the winner's
		// voucher is the canonical result.
		return s.repo.GetVoucherBySource(ctx, input.SourceType, input.SourceID)
	}
	if err != nil {
		return Voucher{}, err
	}
	if replay {
		return voucher, nil
	}
	s.recordAudit(ctx, input.CreatedBy, "voucher.post", voucher, map[string]any{
		"source_type": string(input.SourceType),
		"source_id":   input.SourceID.String(),
		"lines":       len(input.Lines),
	})
	s.bump(ctx)
	return voucher, nil
}

// Reverse creates a mirrored voucher dated now and marks the original
// reversed. Entries are never deleted. Reversal is allowed only within
// the source type's configured edit window.
func (s *Service) Reverse(ctx context.Context, voucherNumber string, actorID int64, memo string) (Voucher, error) {
	if voucherNumber == "" {
		return Voucher{}, errors.New("ledger: voucher number required")
	}
	now := s.now()
	var reversal Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, entries, err := tx.GetVoucherWithEntries(ctx, voucherNumber)
		if err != nil {
			return err
		}
		if original.Status == VoucherStatusReversed {
			return ErrAlreadyReversed
		}
		if window, ok := s.windows[original.SourceType]; ok && window > 0 {
			if now.Sub(original.CreatedAt) > window {
				return ErrEditWindowExpired
			}
		}
		if err := checkPeriodOpen(ctx, tx, now); err != nil {
			return err
		}
		number, err := tx.NextVoucherNumber(ctx, original.SourceType.Prefix())
		if err != nil {
			return err
		}
		inserted, err := tx.InsertVoucher(ctx, Voucher{
			Number:     number,
			SourceType: original.SourceType,
			SourceID:   uuid.New(),
			Date:       now,
			Memo:       defaultReversalMemo(memo, original.Number),
			CreatedBy:  actorID,
		})
		if err != nil {
			return err
		}
		records := make([]EntryRecord, 0, len(entries))
		for _, entry := range entries {
			records = append(records, EntryRecord{
				AccountID:   entry.AccountID,
				Type:        entry.Type.Opposite(),
				Amount:      entry.Amount,
				Description: defaultReversalMemo(memo, original.Number) + ": " + entry.Description,
			})
		}
		if err := tx.InsertEntries(ctx, inserted, records); err != nil {
			return err
		}
		if err := tx.MarkVoucherReversed(ctx, original.ID, inserted.Number, now); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return Voucher{}, err
	}
	s.recordAudit(ctx, actorID, "voucher.reverse", reversal, map[string]any{
		"original": voucherNumber,
	})
	s.bump(ctx)
	return reversal, nil
}

// QueryEntries lists entries matching the structured filter.
func (s *Service) QueryEntries(ctx context.Context, filter EntryFilter) ([]Entry, int, error) {
	return s.repo.QueryEntries(ctx, filter)
}

// GetVoucher loads a voucher and its entries by number.
func (s *Service) GetVoucher(ctx context.Context, number string) (Voucher, []Entry, error) {
	var voucher Voucher
	var entries []Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		voucher, entries, err = tx.GetVoucherWithEntries(ctx, number)
		return err
	})
	if err != nil {
		return Voucher{}, nil, err
	}
	return voucher, entries, nil
}

func (s *Service) resolveLines(ctx context.Context, tx TxRepository, lines []LineInput) ([]EntryRecord, error) {
	records := make([]EntryRecord, 0, len(lines))
	for _, line := range lines {
		account, err := tx.GetAccountByCode(ctx, line.AccountCode)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, line.AccountCode)
			}
			return nil, err
		}
		if !account.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrAccountInactive, line.AccountCode)
		}
		hasChildren, err := tx.HasChildAccounts(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		if hasChildren {
			return nil, fmt.Errorf("%w: %s", ErrSummaryAccount, line.AccountCode)
		}
		records = append(records, EntryRecord{
			AccountID:   account.ID,
			Type:        line.Type,
			Amount:      line.Amount,
			Description: line.Description,
		})
	}
	return records, nil
}

func checkPeriodOpen(ctx context.Context, tx TxRepository, date time.Time) error {
	period, err := tx.GetPeriodForDate(ctx, date)
	if err != nil {
		return err
	}
	switch period.Status {
	case PeriodStatusLocked:
		return ErrPeriodLocked
	case PeriodStatusClosed:
		return ErrPeriodClosed
	case PeriodStatusOpen:
		return nil
	default:
		return fmt.Errorf("ledger: period %s has unknown status %q", period.Code, period.Status)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, voucher Voucher, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = voucher.Number
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "voucher",
		EntityID: fmt.Sprintf("%d", voucher.ID),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Bump(ctx)
}

func defaultReversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s", number)
}
