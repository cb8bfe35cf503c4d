package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type staticResolver map[string]string

func (r staticResolver) Resolve(_ context.Context, key string) (string, error) {
	code, ok := r[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMappingNotFound, key)
	}
	return code, nil
}

func testResolver() staticResolver {
	return staticResolver{
		MappingCash:           "1110",
		MappingAR:             "1130",
		MappingAP:             "2110",
		MappingSalesRevenue:   "4100",
		MappingTaxPayable:     "2150",
		MappingInventory:      "1140",
		MappingSalaryExpense:  "5200",
		MappingPayrollPayable: "2130",
		MappingSuspenseDebit:  "1190",
		MappingSuspenseCredit: "2190",
		MappingFxGain:         "4900",
		MappingFxLoss:         "5900",
	}
}

func TestInvoiceRecipeOnCredit(t *testing.T) {
	recipes := NewRecipes(testResolver())
	input, err := recipes.Invoice(context.Background(), InvoiceEvent{
		SourceID: uuid.New(),
		Number:   "INV-000042",
		Date:     time.Now(),
		Subtotal: decimal.RequireFromString("100.00"),
		Tax:      decimal.RequireFromString("7.00"),
		OnCredit: true,
	})
	require.NoError(t, err)
	require.NoError(t, input.Validate())
	require.Equal(t, SourceInvoice, input.SourceType)
	require.Len(t, input.Lines, 3)
	require.Equal(t, "1130", input.Lines[0].AccountCode)
	require.Equal(t, EntryDebit, input.Lines[0].Type)
	require.True(t, input.Lines[0].Amount.Equal(decimal.RequireFromString("107.00")))
	require.Equal(t, "4100", input.Lines[1].AccountCode)
	require.Equal(t, "2150", input.Lines[2].AccountCode)
}

func TestInvoiceRecipeCashNoTax(t *testing.T) {
	recipes := NewRecipes(testResolver())
	input, err := recipes.Invoice(context.Background(), InvoiceEvent{
		SourceID: uuid.New(),
		Number:   "INV-000043",
		Date:     time.Now(),
		Subtotal: decimal.RequireFromString("50.00"),
	})
	require.NoError(t, err)
	require.Len(t, input.Lines, 2)
	require.Equal(t, "1110", input.Lines[0].AccountCode)
}

func TestPurchaseRecipe(t *testing.T) {
	recipes := NewRecipes(testResolver())
	input, err := recipes.Purchase(context.Background(), PurchaseEvent{
		SourceID: uuid.New(),
		Number:   "PUR-000007",
		Date:     time.Now(),
		Cost:     decimal.RequireFromString("320.00"),
		OnCredit: true,
	})
	require.NoError(t, err)
	require.NoError(t, input.Validate())
	require.Equal(t, "1140", input.Lines[0].AccountCode)
	require.Equal(t, EntryDebit, input.Lines[0].Type)
	require.Equal(t, "2110", input.Lines[1].AccountCode)
	require.Equal(t, EntryCredit, input.Lines[1].Type)
}

func TestPurchaseReturnMirrorsPurchase(t *testing.T) {
	recipes := NewRecipes(testResolver())
	input, err := recipes.PurchaseReturn(context.Background(), PurchaseReturnEvent{
		SourceID: uuid.New(),
		Number:   "PRT-000001",
		Date:     time.Now(),
		Amount:   decimal.RequireFromString("20.00"),
		OnCredit: true,
	})
	require.NoError(t, err)
	require.Equal(t, "2110", input.Lines[0].AccountCode)
	require.Equal(t, EntryDebit, input.Lines[0].Type)
	require.Equal(t, "1140", input.Lines[1].AccountCode)
	require.Equal(t, EntryCredit, input.Lines[1].Type)
}

func TestPayrollRecipe(t *testing.T) {
	recipes := NewRecipes(testResolver())
	input, err := recipes.Payroll(context.Background(), PayrollEvent{
		SourceID: uuid.New(),
		RunLabel: "2026-03",
		Date:     time.Now(),
		Gross:    decimal.RequireFromString("9000.00"),
	})
	require.NoError(t, err)
	require.NoError(t, input.Validate())
	require.Equal(t, "5200", input.Lines[0].AccountCode)
	require.Equal(t, "2130", input.Lines[1].AccountCode)
}

func TestAdjustmentRecipeDirections(t *testing.T) {
	recipes := NewRecipes(testResolver())

	debit, err := recipes.ReconciliationAdjustment(context.Background(), AdjustmentEvent{
		SourceID:  uuid.New(),
		Date:      time.Now(),
		Amount:    decimal.RequireFromString("15.00"),
		EntryType: EntryDebit,
	})
	require.NoError(t, err)
	require.Equal(t, "1110", debit.Lines[0].AccountCode)
	require.Equal(t, EntryDebit, debit.Lines[0].Type)
	require.Equal(t, "1190", debit.Lines[1].AccountCode)
	require.Equal(t, EntryCredit, debit.Lines[1].Type)

	credit, err := recipes.ReconciliationAdjustment(context.Background(), AdjustmentEvent{
		SourceID:  uuid.New(),
		Date:      time.Now(),
		Amount:    decimal.RequireFromString("15.00"),
		EntryType: EntryCredit,
	})
	require.NoError(t, err)
	require.Equal(t, EntryCredit, credit.Lines[0].Type)
	require.Equal(t, "2190", credit.Lines[1].AccountCode)
	require.Equal(t, EntryDebit, credit.Lines[1].Type)
}

func TestRevaluationRecipe(t *testing.T) {
	recipes := NewRecipes(testResolver())

	gain, err := recipes.Revaluation(context.Background(), RevaluationEvent{
		SourceID:    uuid.New(),
		Currency:    "EUR",
		AccountCode: "1121",
		GainLoss:    decimal.RequireFromString("40.00"),
		Date:        time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "1121", gain.Lines[0].AccountCode)
	require.Equal(t, EntryDebit, gain.Lines[0].Type)
	require.Equal(t, "4900", gain.Lines[1].AccountCode)

	loss, err := recipes.Revaluation(context.Background(), RevaluationEvent{
		SourceID:    uuid.New(),
		Currency:    "EUR",
		AccountCode: "1121",
		GainLoss:    decimal.RequireFromString("-40.00"),
		Date:        time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "5900", loss.Lines[0].AccountCode)
	require.Equal(t, EntryDebit, loss.Lines[0].Type)
	require.Equal(t, "1121", loss.Lines[1].AccountCode)
	require.True(t, loss.Lines[1].Amount.IsPositive())
}

func TestRecipeRejectsMissingMapping(t *testing.T) {
	recipes := NewRecipes(staticResolver{})
	_, err := recipes.Purchase(context.Background(), PurchaseEvent{
		SourceID: uuid.New(),
		Number:   "PUR-000008",
		Date:     time.Now(),
		Cost:     decimal.RequireFromString("1.00"),
	})
	require.ErrorIs(t, err, ErrMappingNotFound)
}
