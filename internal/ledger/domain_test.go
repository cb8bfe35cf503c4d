package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validInput() PostingInput {
	return PostingInput{
		SourceType: SourceManual,
		SourceID:   uuid.New(),
		Date:       time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{AccountCode: "1110", Type: EntryDebit, Amount: decimal.RequireFromString("10.10")},
			{AccountCode: "4100", Type: EntryCredit, Amount: decimal.RequireFromString("10.10")},
		},
	}
}

func TestValidateAcceptsBalancedLines(t *testing.T) {
	require.NoError(t, validInput().Validate())
}

func TestValidateRejectsSingleLine(t *testing.T) {
	input := validInput()
	input.Lines = input.Lines[:1]
	require.ErrorIs(t, input.Validate(), ErrTooFewLines)
}

func TestValidateRejectsImbalance(t *testing.T) {
	input := validInput()
	input.Lines[0].Amount = decimal.RequireFromString("10.11")
	require.ErrorIs(t, input.Validate(), ErrUnbalanced)
}

func TestValidateRejectsNegativeAmount(t *testing.T) {
	input := validInput()
	input.Lines[0].Amount = decimal.RequireFromString("-10.10")
	require.ErrorIs(t, input.Validate(), ErrInvalidAmount)
}

func TestValidateRejectsBadEntryType(t *testing.T) {
	input := validInput()
	input.Lines[0].Type = EntryType("BOTH")
	require.Error(t, input.Validate())
}

func TestValidateExactDecimalBalance(t *testing.T) {
	// 0.10 three times vs 0.30 must balance exactly, unlike floats.
	input := PostingInput{
		SourceType: SourceManual,
		SourceID:   uuid.New(),
		Date:       time.Now(),
		Lines: []LineInput{
			{AccountCode: "1110", Type: EntryDebit, Amount: decimal.RequireFromString("0.10")},
			{AccountCode: "1110", Type: EntryDebit, Amount: decimal.RequireFromString("0.10")},
			{AccountCode: "1110", Type: EntryDebit, Amount: decimal.RequireFromString("0.10")},
			{AccountCode: "4100", Type: EntryCredit, Amount: decimal.RequireFromString("0.30")},
		},
	}
	require.NoError(t, input.Validate())
}

func TestOpposite(t *testing.T) {
	require.Equal(t, EntryCredit, EntryDebit.Opposite())
	require.Equal(t, EntryDebit, EntryCredit.Opposite())
}

func TestDebitNormal(t *testing.T) {
	require.True(t, AccountTypeAsset.DebitNormal())
	require.True(t, AccountTypeExpense.DebitNormal())
	require.False(t, AccountTypeLiability.DebitNormal())
	require.False(t, AccountTypeEquity.DebitNormal())
	require.False(t, AccountTypeRevenue.DebitNormal())
}

func TestSourcePrefixes(t *testing.T) {
	require.Equal(t, "INV", SourceInvoice.Prefix())
	require.Equal(t, "PUR", SourcePurchase.Prefix())
	require.Equal(t, "VOU", SourceManual.Prefix())
	require.Equal(t, "REC", SourceReconciliation.Prefix())
}
