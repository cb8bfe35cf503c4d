package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Standard account mapping keys. The chart of accounts binds these to
// concrete codes through account_mappings so posting rules never carry
// hardcoded account numbers.
const (
	MappingModule = "LEDGER"

	MappingCash           = "CASH"
	MappingAR             = "ACCOUNTS_RECEIVABLE"
	MappingAP             = "ACCOUNTS_PAYABLE"
	MappingSalesRevenue   = "SALES_REVENUE"
	MappingTaxPayable     = "TAX_PAYABLE"
	MappingInventory      = "INVENTORY"
	MappingSalaryExpense  = "SALARY_EXPENSE"
	MappingPayrollPayable = "PAYROLL_PAYABLE"
	MappingSuspenseDebit  = "SUSPENSE_DEBIT"
	MappingSuspenseCredit = "SUSPENSE_CREDIT"
	MappingFxGain         = "FX_GAIN"
	MappingFxLoss         = "FX_LOSS"
)

// AccountResolver maps a standard key to an account code.
type AccountResolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// MappingResolver resolves keys through the account_mappings table.
type MappingResolver struct {
	repo *Repository
}

// NewMappingResolver constructs a resolver over the repository.
func NewMappingResolver(repo *Repository) *MappingResolver {
	return &MappingResolver{repo: repo}
}

// Resolve returns the account code bound to the key.
func (r *MappingResolver) Resolve(ctx context.Context, key string) (string, error) {
	mapping, err := r.repo.GetAccountMapping(ctx, MappingModule, key)
	if err != nil {
		return "", err
	}
	return mapping.AccountCode, nil
}

// Recipes turns typed business events into balanced posting inputs.
type Recipes struct {
	accounts AccountResolver
}

// NewRecipes constructs the recipe builder.
func NewRecipes(accounts AccountResolver) *Recipes {
	return &Recipes{accounts: accounts}
}

// InvoiceEvent is a posted sales invoice.
type InvoiceEvent struct {
	SourceID  uuid.UUID
	Number    string
	Date      time.Time
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	OnCredit  bool
	CreatedBy int64
}

// Invoice debits receivables (or cash) for the total and credits
// revenue and tax liability.
func (r *Recipes) Invoice(ctx context.Context, ev InvoiceEvent) (PostingInput, error) {
	if !ev.Subtotal.IsPositive() {
		return PostingInput{}, fmt.Errorf("invoice %s: %w", ev.Number, ErrInvalidAmount)
	}
	if ev.Tax.IsNegative() {
		return PostingInput{}, fmt.Errorf("invoice %s tax: %w", ev.Number, ErrInvalidAmount)
	}
	debitKey := MappingCash
	if ev.OnCredit {
		debitKey = MappingAR
	}
	debitAccount, err := r.accounts.Resolve(ctx, debitKey)
	if err != nil {
		return PostingInput{}, err
	}
	revenueAccount, err := r.accounts.Resolve(ctx, MappingSalesRevenue)
	if err != nil {
		return PostingInput{}, err
	}
	total := ev.Subtotal.Add(ev.Tax)
	lines := []LineInput{
		{AccountCode: debitAccount, Type: EntryDebit, Amount: total, Description: "Invoice " + ev.Number},
		{AccountCode: revenueAccount, Type: EntryCredit, Amount: ev.Subtotal, Description: "Sales revenue - Invoice " + ev.Number},
	}
	if ev.Tax.IsPositive() {
		taxAccount, err := r.accounts.Resolve(ctx, MappingTaxPayable)
		if err != nil {
			return PostingInput{}, err
		}
		lines = append(lines, LineInput{AccountCode: taxAccount, Type: EntryCredit, Amount: ev.Tax, Description: "Tax - Invoice " + ev.Number})
	}
	return PostingInput{
		SourceType: SourceInvoice,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       "Invoice " + ev.Number,
		CreatedBy:  ev.CreatedBy,
		Lines:      lines,
	}, nil
}

// ReceiptEvent is a customer payment against receivables.
type ReceiptEvent struct {
	SourceID  uuid.UUID
	Number    string
	Date      time.Time
	Amount    decimal.Decimal
	CreatedBy int64
}

// Receipt debits cash and credits receivables.
func (r *Recipes) Receipt(ctx context.Context, ev ReceiptEvent) (PostingInput, error) {
	if !ev.Amount.IsPositive() {
		return PostingInput{}, fmt.Errorf("receipt %s: %w", ev.Number, ErrInvalidAmount)
	}
	cashAccount, err := r.accounts.Resolve(ctx, MappingCash)
	if err != nil {
		return PostingInput{}, err
	}
	arAccount, err := r.accounts.Resolve(ctx, MappingAR)
	if err != nil {
		return PostingInput{}, err
	}
	return PostingInput{
		SourceType: SourceReceipt,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       "Receipt " + ev.Number,
		CreatedBy:  ev.CreatedBy,
		Lines: []LineInput{
			{AccountCode: cashAccount, Type: EntryDebit, Amount: ev.Amount, Description: "Receipt " + ev.Number},
			{AccountCode: arAccount, Type: EntryCredit, Amount: ev.Amount, Description: "Receivables settled - " + ev.Number},
		},
	}, nil
}

// CreditNoteEvent cancels revenue previously billed to a customer.
type CreditNoteEvent struct {
	SourceID  uuid.UUID
	Number    string
	Date      time.Time
	Amount    decimal.Decimal
	CreatedBy int64
}

// CreditNote debits revenue and credits receivables.
func (r *Recipes) CreditNote(ctx context.Context, ev CreditNoteEvent) (PostingInput, error) {
	if !ev.Amount.IsPositive() {
		return PostingInput{}, fmt.Errorf("credit note %s: %w", ev.Number, ErrInvalidAmount)
	}
	revenueAccount, err := r.accounts.Resolve(ctx, MappingSalesRevenue)
	if err != nil {
		return PostingInput{}, err
	}
	arAccount, err := r.accounts.Resolve(ctx, MappingAR)
	if err != nil {
		return PostingInput{}, err
	}
	return PostingInput{
		SourceType: SourceCreditNote,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       "Credit note " + ev.Number,
		CreatedBy:  ev.CreatedBy,
		Lines: []LineInput{
			{AccountCode: revenueAccount, Type: EntryDebit, Amount: ev.Amount, Description: "Revenue reversal - " + ev.Number},
			{AccountCode: arAccount, Type: EntryCredit, Amount: ev.Amount, Description: "Credit note " + ev.Number},
		},
	}, nil
}

// SupplierPaymentEvent settles payables with cash.
type SupplierPaymentEvent struct {
	SourceID  uuid.UUID
	Number    string
	Date      time.Time
	Amount    decimal.Decimal
	CreatedBy int64
}

// SupplierPayment debits payables and credits cash.
func (r *Recipes) SupplierPayment(ctx context.Context, ev SupplierPaymentEvent) (PostingInput, error) {
	if !ev.Amount.IsPositive() {
		return PostingInput{}, fmt.Errorf("payment %s: %w", ev.Number, ErrInvalidAmount)
	}
	apAccount, err := r.accounts.Resolve(ctx, MappingAP)
	if err != nil {
		return PostingInput{}, err
	}
	cashAccount, err := r.accounts.Resolve(ctx, MappingCash)
	if err != nil {
		return PostingInput{}, err
	}
	return PostingInput{
		SourceType: SourcePayment,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       "Payment " + ev.Number,
		CreatedBy:  ev.CreatedBy,
		Lines: []LineInput{
			{AccountCode: apAccount, Type: EntryDebit, Amount: ev.Amount, Description: "Payables settled - " + ev.Number},
			{AccountCode: cashAccount, Type: EntryCredit, Amount: ev.Amount, Description: "Payment " + ev.Number},
		},
	}, nil
}

// PurchaseEvent is an approved purchase voucher.
type PurchaseEvent struct {
	SourceID  uuid.UUID
	Number    string
	Date      time.Time
	Cost      decimal.Decimal
	OnCredit  bool
	CreatedBy int64
}

// Purchase debits inventory for the cost and credits payables (or cash).
func (r *Recipes) Purchase(ctx context.Context, ev PurchaseEvent) (PostingInput, error) {
	if !ev.Cost.IsPositive() {
		return PostingInput{}, fmt.Errorf("purchase %s: %w", ev.Number, ErrInvalidAmount)
	}
	inventoryAccount, err := r.accounts.Resolve(ctx, MappingInventory)
	if err != nil {
		return PostingInput{}, err
	}
	creditKey := MappingCash
	if ev.OnCredit {
		creditKey = MappingAP
	}
	creditAccount, err := r.accounts.Resolve(ctx, creditKey)
	if err != nil {
		return PostingInput{}, err
	}
	return PostingInput{
		SourceType: SourcePurchase,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       "Purchase " + ev.Number,
		CreatedBy:  ev.CreatedBy,
		Lines: []LineInput{
			{AccountCode: inventoryAccount, Type: EntryDebit, Amount: ev.Cost, Description: "Inventory - Purchase " + ev.Number},
			{AccountCode: creditAccount, Type: EntryCredit, Amount: ev.Cost, Description: "Purchase " + ev.Number},
		},
	}, nil
}

// PurchaseReturnEvent reverses stock back to the supplier.
type PurchaseReturnEvent struct {
	SourceID  uuid.UUID
	Number    string
	Date      time.Time
	Amount    decimal.Decimal
	OnCredit  bool
	CreatedBy int64
}

// PurchaseReturn posts the mirror of a purchase: payables (or cash)
// debited, inventory credited.
func (r *Recipes) PurchaseReturn(ctx context.Context, ev PurchaseReturnEvent) (PostingInput, error) {
	if !ev.Amount.IsPositive() {
		return PostingInput{}, fmt.Errorf("purchase return %s: %w", ev.Number, ErrInvalidAmount)
	}
	inventoryAccount, err := r.accounts.Resolve(ctx, MappingInventory)
	if err != nil {
		return PostingInput{}, err
	}
	debitKey := MappingCash
	if ev.OnCredit {
		debitKey = MappingAP
	}
	debitAccount, err := r.accounts.Resolve(ctx, debitKey)
	if err != nil {
		return PostingInput{}, err
	}
	return PostingInput{
		SourceType: SourcePurchaseReturn,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       "Purchase return " + ev.Number,
		CreatedBy:  ev.CreatedBy,
		Lines: []LineInput{
			{AccountCode: debitAccount, Type: EntryDebit, Amount: ev.Amount, Description: "Purchase return " + ev.Number},
			{AccountCode: inventoryAccount, Type: EntryCredit, Amount: ev.Amount, Description: "Inventory - Return " + ev.Number},
		},
	}, nil
}

// PayrollEvent is one payroll run.
type PayrollEvent struct {
	SourceID  uuid.UUID
	RunLabel  string
	Date      time.Time
	Gross     decimal.Decimal
	CreatedBy int64
}

// Payroll debits salary expense and credits payroll payable.
func (r *Recipes) Payroll(ctx context.Context, ev PayrollEvent) (PostingInput, error) {
	if !ev.Gross.IsPositive() {
		return PostingInput{}, fmt.Errorf("payroll %s: %w", ev.RunLabel, ErrInvalidAmount)
	}
	expenseAccount, err := r.accounts.Resolve(ctx, MappingSalaryExpense)
	if err != nil {
		return PostingInput{}, err
	}
	payableAccount, err := r.accounts.Resolve(ctx, MappingPayrollPayable)
	if err != nil {
		return PostingInput{}, err
	}
	return PostingInput{
		SourceType: SourcePayroll,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       "Payroll " + ev.RunLabel,
		CreatedBy:  ev.CreatedBy,
		Lines: []LineInput{
			{AccountCode: expenseAccount, Type: EntryDebit, Amount: ev.Gross, Description: "Salaries - " + ev.RunLabel},
			{AccountCode: payableAccount, Type: EntryCredit, Amount: ev.Gross, Description: "Payroll payable - " + ev.RunLabel},
		},
	}, nil
}

// AdjustmentEvent is a bank reconciliation adjustment. EntryType is the
// side applied to the cash account; the offset goes to the suspense
// account configured for that direction.
type AdjustmentEvent struct {
	SourceID    uuid.UUID
	Date        time.Time
	Amount      decimal.Decimal
	EntryType   EntryType
	Description string
	CreatedBy   int64
}

// ReconciliationAdjustment builds the two-line adjustment voucher.
func (r *Recipes) ReconciliationAdjustment(ctx context.Context, ev AdjustmentEvent) (PostingInput, error) {
	if !ev.Amount.IsPositive() {
		return PostingInput{}, fmt.Errorf("reconciliation adjustment: %w", ErrInvalidAmount)
	}
	if ev.EntryType != EntryDebit && ev.EntryType != EntryCredit {
		return PostingInput{}, errors.New("ledger: adjustment entry type must be DEBIT or CREDIT")
	}
	cashAccount, err := r.accounts.Resolve(ctx, MappingCash)
	if err != nil {
		return PostingInput{}, err
	}
	offsetKey := MappingSuspenseCredit
	if ev.EntryType == EntryDebit {
		offsetKey = MappingSuspenseDebit
	}
	offsetAccount, err := r.accounts.Resolve(ctx, offsetKey)
	if err != nil {
		return PostingInput{}, err
	}
	return PostingInput{
		SourceType: SourceReconciliation,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       ev.Description,
		CreatedBy:  ev.CreatedBy,
		Lines: []LineInput{
			{AccountCode: cashAccount, Type: ev.EntryType, Amount: ev.Amount, Description: ev.Description},
			{AccountCode: offsetAccount, Type: ev.EntryType.Opposite(), Amount: ev.Amount, Description: ev.Description},
		},
	}, nil
}

// RevaluationEvent posts the unrealized gain or loss for one currency.
// GainLoss is in base currency, positive for a gain.
type RevaluationEvent struct {
	SourceID    uuid.UUID
	Currency    string
	AccountCode string
	GainLoss    decimal.Decimal
	Date        time.Time
	CreatedBy   int64
}

// Revaluation books the gain against FX_GAIN or the loss against FX_LOSS.
func (r *Recipes) Revaluation(ctx context.Context, ev RevaluationEvent) (PostingInput, error) {
	if ev.GainLoss.IsZero() {
		return PostingInput{}, errors.New("ledger: revaluation amount is zero")
	}
	memo := fmt.Sprintf("Revaluation %s", ev.Currency)
	amount := ev.GainLoss.Abs()
	var lines []LineInput
	if ev.GainLoss.IsPositive() {
		gainAccount, err := r.accounts.Resolve(ctx, MappingFxGain)
		if err != nil {
			return PostingInput{}, err
		}
		lines = []LineInput{
			{AccountCode: ev.AccountCode, Type: EntryDebit, Amount: amount, Description: memo},
			{AccountCode: gainAccount, Type: EntryCredit, Amount: amount, Description: "Unrealized gain " + ev.Currency},
		}
	} else {
		lossAccount, err := r.accounts.Resolve(ctx, MappingFxLoss)
		if err != nil {
			return PostingInput{}, err
		}
		lines = []LineInput{
			{AccountCode: lossAccount, Type: EntryDebit, Amount: amount, Description: "Unrealized loss " + ev.Currency},
			{AccountCode: ev.AccountCode, Type: EntryCredit, Amount: amount, Description: memo},
		}
	}
	return PostingInput{
		SourceType: SourceRevaluation,
		SourceID:   ev.SourceID,
		Date:       ev.Date,
		Memo:       memo,
		CreatedBy:  ev.CreatedBy,
		Lines:      lines,
	}, nil
}
