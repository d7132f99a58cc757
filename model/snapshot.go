package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReportTotalPrefix marks balance-sheet rows that are report aggregates
// (e.g. "Total Accounts Payable") rather than leaf accounts.
const ReportTotalPrefix = "report::"

// AccountBalance is one balance-sheet row as of the snapshot date.
type AccountBalance struct {
	// AccountRef is a stable opaque identifier; never empty. Rows whose ref
	// begins with ReportTotalPrefix are aggregate lines, not leaf accounts.
	AccountRef string `json:"account_ref"`

	// Name is the display name shown on the report.
	Name string `json:"name"`

	// Type and Subtype are free-form classification strings from the source
	// ledger (e.g. "Bank", "Credit Card", "Other Current Asset"). Either may
	// be empty when the adapter could not classify the account.
	Type    string `json:"type,omitempty"`
	Subtype string `json:"subtype,omitempty"`

	// Balance is the exact decimal balance; may be negative.
	Balance decimal.Decimal `json:"balance"`
}

// IsReportTotal reports whether the row is an aggregate "report totals" line.
func (a AccountBalance) IsReportTotal() bool {
	return strings.HasPrefix(a.AccountRef, ReportTotalPrefix)
}

// IsLeaf reports whether the row is a leaf account.
func (a AccountBalance) IsLeaf() bool {
	return !a.IsReportTotal()
}

// BalanceSheetSnapshot is the balance sheet as of a date.
type BalanceSheetSnapshot struct {
	AsOfDate time.Time        `json:"as_of_date"`
	Currency string           `json:"currency,omitempty"`
	Accounts []AccountBalance `json:"accounts"`
}

// Account returns the first row with the given ref, or false when absent.
func (s *BalanceSheetSnapshot) Account(accountRef string) (AccountBalance, bool) {
	if s == nil {
		return AccountBalance{}, false
	}
	for _, acct := range s.Accounts {
		if acct.AccountRef == accountRef {
			return acct, true
		}
	}
	return AccountBalance{}, false
}

// Balance returns the balance for the given ref as a null decimal; invalid
// when the account is not on the snapshot.
func (s *BalanceSheetSnapshot) Balance(accountRef string) decimal.NullDecimal {
	acct, ok := s.Account(accountRef)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(acct.Balance)
}

// ProfitAndLossSnapshot carries P&L totals for the review period. The engine
// only ever reads the "revenue" total; everything else is passed through for
// host convenience.
type ProfitAndLossSnapshot struct {
	PeriodStart time.Time                  `json:"period_start"`
	PeriodEnd   time.Time                  `json:"period_end"`
	Currency    string                     `json:"currency,omitempty"`
	Totals      map[string]decimal.Decimal `json:"totals"`
}

// Total returns the named total; invalid when absent.
func (s *ProfitAndLossSnapshot) Total(key string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	v, ok := s.Totals[key]
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}
