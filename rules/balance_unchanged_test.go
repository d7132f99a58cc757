package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
)

func withPrior(ctx *engine.Context, accounts ...model.AccountBalance) *engine.Context {
	ctx.PriorBalanceSheet = &model.BalanceSheetSnapshot{
		AsOfDate: dates.New(2025, time.November, 30),
		Accounts: accounts,
	}
	return ctx
}

func TestBalanceUnchangedFlagsSameBalances(t *testing.T) {
	ctx := newContext(
		account("acct::PREP", "Prepaid Insurance", "Other Current Asset", "1200.00"),
		account("acct::BANK", "Chequing", "Bank", "900.00"),
	)
	withPrior(ctx,
		account("acct::PREP", "Prepaid Insurance", "Other Current Asset", "1200.00"),
		account("acct::BANK", "Chequing", "Bank", "850.00"),
	)
	res := evaluate(t, BalanceUnchangedPriorMonth{}, ctx)
	requireStatus(t, res, model.StatusWarn)
	require.Len(t, res.Details, 1)
	require.Equal(t, "acct::PREP", res.Details[0].Key)
	require.Equal(t, "SAME", res.Details[0].Values["flag"])
	require.Equal(t, "2025-11-30", res.Details[0].Values["prior_period_end"])
}

func TestBalanceUnchangedAllMovedPasses(t *testing.T) {
	ctx := newContext(account("acct::BANK", "Chequing", "Bank", "900.00"))
	withPrior(ctx, account("acct::BANK", "Chequing", "Bank", "850.00"))
	res := evaluate(t, BalanceUnchangedPriorMonth{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestBalanceUnchangedNoPriorNotApplicable(t *testing.T) {
	ctx := newContext(account("acct::BANK", "Chequing", "Bank", "900.00"))
	res := evaluate(t, BalanceUnchangedPriorMonth{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}

func TestBalanceUnchangedSkipsZeroBalancesByDefault(t *testing.T) {
	ctx := newContext(account("acct::CLR", "Stripe Clearing", "Other Current Asset", "0.00"))
	withPrior(ctx, account("acct::CLR", "Stripe Clearing", "Other Current Asset", "0.00"))
	res := evaluate(t, BalanceUnchangedPriorMonth{}, ctx)
	requireStatus(t, res, model.StatusPass)

	withConfig(t, ctx, "BS-BALANCE-UNCHANGED-PRIOR-MONTH", map[string]any{"include_zero_balances": true})
	res = evaluate(t, BalanceUnchangedPriorMonth{}, ctx)
	requireStatus(t, res, model.StatusWarn)
}

func TestBalanceUnchangedSkipsReportRows(t *testing.T) {
	ctx := newContext(account("report::total", "Total Assets", "", "5000.00"))
	withPrior(ctx, account("report::total", "Total Assets", "", "5000.00"))
	res := evaluate(t, BalanceUnchangedPriorMonth{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestBalanceUnchangedSkipsAccountsAbsentFromPrior(t *testing.T) {
	ctx := newContext(account("acct::NEW", "New Equipment", "Fixed Asset", "7000.00"))
	withPrior(ctx, account("acct::OLD", "Old Equipment", "Fixed Asset", "7000.00"))
	res := evaluate(t, BalanceUnchangedPriorMonth{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestBalanceUnchangedQuantizedComparison(t *testing.T) {
	ctx := newContext(account("acct::PREP", "Prepaid Insurance", "Other Current Asset", "1200.004"))
	withPrior(ctx, account("acct::PREP", "Prepaid Insurance", "Other Current Asset", "1200.00"))
	withConfig(t, ctx, "BS-BALANCE-UNCHANGED-PRIOR-MONTH", map[string]any{"amount_quantize": "0.01"})
	res := evaluate(t, BalanceUnchangedPriorMonth{}, ctx)
	requireStatus(t, res, model.StatusWarn)
}
