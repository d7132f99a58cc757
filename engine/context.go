package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/model"
)

// Context is the input envelope for one engine run: the canonical snapshots,
// the evidence bundle, and the client configuration. It is treated as
// immutable for the duration of a run; rules read but never write.
type Context struct {
	// PeriodEnd is the MER date the review is as-of.
	PeriodEnd time.Time

	// BalanceSheet is the balance sheet as of PeriodEnd.
	BalanceSheet model.BalanceSheetSnapshot

	// PriorBalanceSheet is the prior month's snapshot; nil when unavailable.
	PriorBalanceSheet *model.BalanceSheetSnapshot

	// ProfitAndLoss covers the review period; nil when unavailable.
	ProfitAndLoss *model.ProfitAndLossSnapshot

	// Evidence is the supporting-document bundle for the period.
	Evidence model.EvidenceBundle

	// Reconciliations holds one snapshot per reconciled bank/cc account;
	// may be empty.
	Reconciliations []model.ReconciliationSnapshot

	// Config is the client-level rule configuration envelope.
	Config config.Client
}

// AccountBalance returns the balance-sheet balance for accountRef; invalid
// when the account is not on the snapshot.
func (c *Context) AccountBalance(accountRef string) decimal.NullDecimal {
	return c.BalanceSheet.Balance(accountRef)
}

// RevenueTotal returns the P&L revenue total; invalid when the P&L or the
// total is absent.
func (c *Context) RevenueTotal() decimal.NullDecimal {
	return c.ProfitAndLoss.Total("revenue")
}
