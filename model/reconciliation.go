package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationSnapshot is one bank/credit-card reconciliation as reported
// by the bookkeeping system: the statement side, the register side, and the
// uncleared-item detail carried in Meta.
type ReconciliationSnapshot struct {
	AccountRef  string `json:"account_ref"`
	AccountName string `json:"account_name,omitempty"`

	// StatementEndDate is the statement cutoff; zero when unknown.
	StatementEndDate time.Time `json:"statement_end_date,omitempty"`

	// StatementEndingBalance is the bank-side closing balance.
	StatementEndingBalance decimal.NullDecimal `json:"statement_ending_balance,omitempty"`

	// BookBalanceAsOfStatementEnd is the register balance at the statement
	// cutoff; it must tie to StatementEndingBalance when reconciled.
	BookBalanceAsOfStatementEnd decimal.NullDecimal `json:"book_balance_as_of_statement_end,omitempty"`

	// BookBalanceAsOfPeriodEnd is the register balance rolled forward to the
	// MER date; it must tie to the balance-sheet account balance.
	BookBalanceAsOfPeriodEnd decimal.NullDecimal `json:"book_balance_as_of_period_end,omitempty"`

	Source string `json:"source,omitempty"`

	// Meta carries the uncleared-items structure. Canonical shape:
	//   meta["uncleared_items"] = {"as_at": [...], "after_date": [...]}
	// Flat adapter-convenience keys `uncleared_items_as_at` /
	// `uncleared_items_after_date` are also accepted.
	Meta map[string]any `json:"meta,omitempty"`
}

// UnclearedItems returns the "as at" and "after date" uncleared item lists
// from either accepted meta shape. A nil slice means the section was absent
// (distinct from present-but-empty).
func (r ReconciliationSnapshot) UnclearedItems() (asAt, afterDate []map[string]any) {
	if r.Meta == nil {
		return nil, nil
	}
	if bucket, ok := r.Meta["uncleared_items"].(map[string]any); ok {
		return itemMaps(bucket["as_at"]), itemMaps(bucket["after_date"])
	}
	return itemMaps(r.Meta["uncleared_items_as_at"]), itemMaps(r.Meta["uncleared_items_after_date"])
}

func itemMaps(value any) []map[string]any {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// LatestReconciliation picks the snapshot with the greatest statement end
// date among those matching accountRef. Snapshots without a statement end
// date rank lowest. Returns false when no snapshot matches.
func LatestReconciliation(snapshots []ReconciliationSnapshot, accountRef string) (ReconciliationSnapshot, bool) {
	var (
		best  ReconciliationSnapshot
		found bool
	)
	for _, rec := range snapshots {
		if rec.AccountRef != accountRef {
			continue
		}
		if !found || rec.StatementEndDate.After(best.StatementEndDate) {
			best = rec
			found = true
		}
	}
	return best, found
}
