package balances

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-books/meridian/internal/ledger"
)

// AccountActivity is an account with its aggregated debit and credit
// movement up to a cut-off date. Accounts without any entries never
// appear here.
type AccountActivity struct {
	Code   string
	Name   string
	Type   ledger.AccountType
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Net returns debit minus credit movement.
func (a AccountActivity) Net() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// GroupKey buckets trial balance rows by account code prefix.
func (a AccountActivity) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceRow presents one account with its net balance placed in
// the debit or credit column by sign.
type TrialBalanceRow struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// TrialBalanceGroup aggregates rows sharing a code prefix.
type TrialBalanceGroup struct {
	Key    string            `json:"key"`
	Rows   []TrialBalanceRow `json:"rows"`
	Debit  decimal.Decimal   `json:"debit"`
	Credit decimal.Decimal   `json:"credit"`
}

// TrialBalance is the grouped report. For a ledger where every voucher
// balances, TotalDebit always equals TotalCredit.
type TrialBalance struct {
	AsOf        string              `json:"as_of"`
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
}

// Balanced reports whether total debits equal total credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// BuildTrialBalance groups account activity into the presentation
// structure. Each account's net movement lands in one column only.
func BuildTrialBalance(asOf string, accounts []AccountActivity) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range accounts {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceRow{
			Code:   acc.Code,
			Name:   acc.Name,
			Type:   string(acc.Type),
			Debit:  decimal.Zero,
			Credit: decimal.Zero,
		}
		net := acc.Net()
		if net.IsNegative() {
			row.Credit = net.Neg()
		} else {
			row.Debit = net
		}
		grp.Rows = append(grp.Rows, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Rows, func(i, j int) bool {
			return grp.Rows[i].Code < grp.Rows[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	return result
}

// AccountBalance is the signed balance of one account. The sign follows
// the account's normal side: assets and expenses grow with debits,
// the rest with credits.
type AccountBalance struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	AsOf    string          `json:"as_of"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Balance decimal.Decimal `json:"balance"`
}

// SignedBalance applies the normal-side convention to raw movement.
func SignedBalance(accType ledger.AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if accType.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// TieOut compares a control account's general ledger balance against
// the stored subsidiary balances it summarizes. A non-zero difference
// means the subsidiary cache column has drifted from the ledger.
type TieOut struct {
	Side            string          `json:"side"`
	ControlCode     string          `json:"control_code"`
	AsOf            string          `json:"as_of"`
	ControlBalance  decimal.Decimal `json:"control_balance"`
	SubsidiaryTotal decimal.Decimal `json:"subsidiary_total"`
	Difference      decimal.Decimal `json:"difference"`
}

// InAgreement reports whether control and subsidiary match exactly.
func (t TieOut) InAgreement() bool {
	return t.Difference.IsZero()
}

// BalancePoint is one bucket of a balance history series.
type BalancePoint struct {
	Bucket  string          `json:"bucket"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Net     decimal.Decimal `json:"net"`
	Running decimal.Decimal `json:"running"`
}
