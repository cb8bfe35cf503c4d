package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// DebitNormal reports whether the account type carries a debit balance.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// EntryType is the side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// Opposite returns the mirrored entry type.
func (t EntryType) Opposite() EntryType {
	if t == EntryDebit {
		return EntryCredit
	}
	return EntryDebit
}

// SourceType identifies the business event behind a voucher.
type SourceType string

const (
	SourceInvoice        SourceType = "INVOICE"
	SourceReceipt        SourceType = "RECEIPT"
	SourceCreditNote     SourceType = "CREDIT_NOTE"
	SourcePurchase       SourceType = "PURCHASE"
	SourcePurchaseReturn SourceType = "PURCHASE_RETURN"
	SourcePayment        SourceType = "PAYMENT"
	SourcePayroll        SourceType = "PAYROLL"
	SourceManual         SourceType = "MANUAL"
	SourceReconciliation SourceType = "RECONCILIATION"
	SourceRevaluation    SourceType = "REVALUATION"
)

// Prefix returns the document sequence prefix for the source type.
func (s SourceType) Prefix() string {
	switch s {
	case SourceInvoice:
		return "INV"
	case SourceReceipt:
		return "RCT"
	case SourceCreditNote:
		return "CRN"
	case SourcePurchase:
		return "PUR"
	case SourcePurchaseReturn:
		return "PRT"
	case SourcePayment:
		return "PMT"
	case SourcePayroll:
		return "PAY"
	case SourceReconciliation:
		return "REC"
	case SourceRevaluation:
		return "REV"
	default:
		return "VOU"
	}
}

// VoucherStatus enumerates voucher lifecycle values.
type VoucherStatus string

const (
	VoucherStatusDraft    VoucherStatus = "DRAFT"
	VoucherStatusPosted   VoucherStatus = "POSTED"
	VoucherStatusReversed VoucherStatus = "REVERSED"
)

// PeriodStatus enumerates fiscal period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// Account models a chart of accounts node. Codes are immutable once
// entries exist against the account.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	ParentID  *int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Period is the fiscal window gating postings by voucher date.
type Period struct {
	ID        int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
	ClosedAt  *time.Time
	LockedBy  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Voucher groups a balanced set of entries produced by one business event.
type Voucher struct {
	ID             int64
	Number         string
	SourceType     SourceType
	SourceID       uuid.UUID
	Status         VoucherStatus
	Date           time.Time
	Memo           string
	CreatedBy      int64
	CreatedAt      time.Time
	ReversalNumber *string
	ReversedAt     *time.Time
}

// Entry is one debit or credit line. Entries are append-only; correction
// happens through reversal vouchers, never in-place mutation.
type Entry struct {
	ID          int64
	VoucherID   int64
	Number      string
	AccountID   int64
	AccountCode string
	Type        EntryType
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	CreatedBy   int64
	IsClosed    bool
	CreatedAt   time.Time
}

// AccountMapping links a business posting key to a ledger account code.
type AccountMapping struct {
	Module      string
	Key         string
	AccountCode string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LineInput describes one line of a posting request.
type LineInput struct {
	AccountCode string
	Type        EntryType
	Amount      decimal.Decimal
	Description string
}

// PostingInput groups fields required to post a voucher.
type PostingInput struct {
	SourceType SourceType
	SourceID   uuid.UUID
	Date       time.Time
	Memo       string
	CreatedBy  int64
	Lines      []LineInput
}

// EntryFilter is a structured query over the entry store. All fields are
// optional and combined with AND; it always compiles to parameterized SQL.
type EntryFilter struct {
	AccountCode     string
	VoucherNumber   string
	From            *time.Time
	To              *time.Time
	IncludeReversed bool
	Page            int
	PerPage         int
}

var (
	// ErrUnbalanced indicates sum(debits) != sum(credits).
	ErrUnbalanced = errors.New("ledger: voucher lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: voucher requires at least two lines")
	// ErrInvalidAmount indicates a non-positive line amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrAccountNotFound indicates an unknown account code.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountInactive indicates posting to a deactivated account.
	ErrAccountInactive = errors.New("ledger: account inactive")
	// ErrSummaryAccount indicates posting to a header account with children.
	ErrSummaryAccount = errors.New("ledger: cannot post to summary account")
	// ErrNoPeriodForDate indicates no fiscal period covers the voucher date.
	ErrNoPeriodForDate = errors.New("ledger: date outside any fiscal period")
	// ErrPeriodClosed indicates the covering period is closed.
	ErrPeriodClosed = errors.New("ledger: fiscal period closed")
	// ErrPeriodLocked indicates the covering period is locked.
	ErrPeriodLocked = errors.New("ledger: fiscal period locked")
	// ErrVoucherNotFound indicates an unknown voucher number.
	ErrVoucherNotFound = errors.New("ledger: voucher not found")
	// ErrAlreadyReversed indicates the voucher was reversed before.
	ErrAlreadyReversed = errors.New("ledger: voucher already reversed")
	// ErrEditWindowExpired indicates reversal attempted outside the allowed window.
	ErrEditWindowExpired = errors.New("ledger: edit window expired")
	// ErrSourceAlreadyPosted indicates the source event was posted before.
	ErrSourceAlreadyPosted = errors.New("ledger: source already posted")
	// ErrMappingNotFound indicates a missing account mapping key.
	ErrMappingNotFound = errors.New("ledger: account mapping not found")
	// ErrConcurrencyConflict indicates a serialization failure with a
	// concurrent period close.
	ErrConcurrencyConflict = errors.New("ledger: concurrent period conflict")
)

// Validate ensures posting input meets minimum criteria before any
// storage is touched. The balance check is exact decimal arithmetic.
func (in PostingInput) Validate() error {
	if in.SourceType == "" {
		return errors.New("ledger: source type required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: voucher date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("ledger: line %d missing account code", idx)
		}
		if line.Type != EntryDebit && line.Type != EntryCredit {
			return fmt.Errorf("ledger: line %d has invalid entry type %q", idx, line.Type)
		}
		if !line.Amount.IsPositive() {
			return fmt.Errorf("line %d: %w", idx, ErrInvalidAmount)
		}
		if line.Type == EntryDebit {
			debit = debit.Add(line.Amount)
		} else {
			credit = credit.Add(line.Amount)
		}
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	return nil
}

// Totals returns the debit and credit sums of the lines.
func (in PostingInput) Totals() (decimal.Decimal, decimal.Decimal) {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range in.Lines {
		if line.Type == EntryDebit {
			debit = debit.Add(line.Amount)
		} else {
			credit = credit.Add(line.Amount)
		}
	}
	return debit, credit
}
