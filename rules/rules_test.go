package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
)

// periodEnd is the MER date shared by the rule tests.
var periodEnd = dates.New(2025, time.December, 31)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func nullDec(t *testing.T, s string) decimal.NullDecimal {
	t.Helper()
	return decimal.NewNullDecimal(dec(t, s))
}

func account(ref, name, acctType string, balance string) model.AccountBalance {
	d, _ := decimal.NewFromString(balance)
	return model.AccountBalance{AccountRef: ref, Name: name, Type: acctType, Balance: d}
}

func newContext(accounts ...model.AccountBalance) *engine.Context {
	return &engine.Context{
		PeriodEnd: periodEnd,
		BalanceSheet: model.BalanceSheetSnapshot{
			AsOfDate: periodEnd,
			Accounts: accounts,
		},
	}
}

func withRevenue(t *testing.T, ctx *engine.Context, revenue string) *engine.Context {
	t.Helper()
	ctx.ProfitAndLoss = &model.ProfitAndLossSnapshot{
		PeriodStart: dates.New(2025, time.December, 1),
		PeriodEnd:   periodEnd,
		Totals:      map[string]decimal.Decimal{"revenue": dec(t, revenue)},
	}
	return ctx
}

func withConfig(t *testing.T, ctx *engine.Context, ruleID string, payload any) *engine.Context {
	t.Helper()
	require.NoError(t, ctx.Config.SetPayload(ruleID, payload))
	return ctx
}

func withEvidence(ctx *engine.Context, items ...model.EvidenceItem) *engine.Context {
	ctx.Evidence.Items = append(ctx.Evidence.Items, items...)
	return ctx
}

func evaluate(t *testing.T, rule engine.Rule, ctx *engine.Context) model.Result {
	t.Helper()
	res, err := rule.Evaluate(ctx)
	require.NoError(t, err)
	return res
}

func requireStatus(t *testing.T, res model.Result, status model.Status) {
	t.Helper()
	require.Equal(t, status, res.Status, "summary: %s", res.Summary)
	require.Equal(t, model.SeverityForStatus(status), res.Severity)
	if status == model.StatusPass || status == model.StatusNotApplicable {
		require.Empty(t, res.HumanAction)
	} else {
		require.NotEmpty(t, res.HumanAction)
	}
}

// requireDecEqual compares a detail value carrying a decimal string against
// the expected amount, ignoring representation (trailing zeros).
func requireDecEqual(t *testing.T, expected string, got any) {
	t.Helper()
	s, ok := got.(string)
	require.True(t, ok, "expected decimal string, got %T (%v)", got, got)
	require.True(t, dec(t, expected).Equal(dec(t, s)), "expected %s, got %s", expected, s)
}

// disabledPayload turns any rule off.
type disabledPayload struct {
	Enabled bool `json:"enabled"`
}

func TestEveryRuleDisabledReturnsNotApplicable(t *testing.T) {
	registry := NewBuiltinRegistry()
	for _, rule := range registry.Rules() {
		rule := rule
		t.Run(rule.Info().ID, func(t *testing.T) {
			ctx := newContext(account("acct::X", "Checking", "Bank", "100.00"))
			withConfig(t, ctx, rule.Info().ID, disabledPayload{Enabled: false})
			res := evaluate(t, rule, ctx)
			require.Equal(t, model.StatusNotApplicable, res.Status)
			require.Equal(t, model.SeverityInfo, res.Severity)
			require.Empty(t, res.Details)
		})
	}
}

func TestEveryRuleRejectsBadQuantizeConfig(t *testing.T) {
	registry := NewBuiltinRegistry()
	for _, rule := range registry.Rules() {
		rule := rule
		t.Run(rule.Info().ID, func(t *testing.T) {
			ctx := newContext(account("acct::X", "Checking", "Bank", "100.00"))
			withConfig(t, ctx, rule.Info().ID, map[string]any{"amount_quantize": "not-a-decimal"})
			_, err := rule.Evaluate(ctx)
			require.Error(t, err)
			require.True(t, engine.IsConfigError(err))
		})
	}
}

func TestRulesAreDeterministic(t *testing.T) {
	registry := NewBuiltinRegistry()
	ctx := fullContext(t)
	runner := engine.NewRunner(registry)
	first := runner.Run(ctx)
	second := runner.Run(ctx)
	require.Equal(t, first.Results, second.Results)
	require.Equal(t, first.Totals, second.Totals)
}

// fullContext assembles a context that exercises most rules at once; used by
// the determinism and purity tests.
func fullContext(t *testing.T) *engine.Context {
	t.Helper()
	ctx := newContext(
		account("acct::BANK1", "Operating Chequing", "Bank", "1000.00"),
		account("acct::CLR", "Shopify Clearing", "Other Current Asset", "5.00"),
		account("acct::UF", "Undeposited Funds", "Other Current Asset", "0.00"),
		account("acct::PC", "Petty Cash", "Bank", "250.00"),
		account("acct::AP", "Accounts Payable (A/P)", "Accounts Payable", "-920.00"),
		account("acct::DUE1", "Due from Northwind Holdings", "Other Current Asset", "300.00"),
		account("acct::PREP", "Prepaid Insurance", "Other Current Asset", "1200.00"),
		account("acct::GST", "GST/HST Payable", "Other Current Liability", "-75.00"),
	)
	withRevenue(t, ctx, "100000.00")
	ctx.Reconciliations = []model.ReconciliationSnapshot{{
		AccountRef:                  "acct::BANK1",
		AccountName:                 "Operating Chequing",
		StatementEndDate:            periodEnd,
		StatementEndingBalance:      nullDec(t, "1000.00"),
		BookBalanceAsOfStatementEnd: nullDec(t, "1000.00"),
		BookBalanceAsOfPeriodEnd:    nullDec(t, "1000.00"),
		Meta: map[string]any{
			"uncleared_items": map[string]any{
				"as_at": []any{
					map[string]any{"txn_date": "2025-08-15", "description": "stale cheque", "amount": "120.00"},
					map[string]any{"txn_date": "2025-12-20", "description": "recent", "amount": "50.00"},
				},
				"after_date": []any{
					map[string]any{"txn_date": "2026-01-02", "description": "new activity", "amount": "10.00"},
				},
			},
		},
	}}
	withEvidence(ctx,
		model.EvidenceItem{
			EvidenceType:     "statement_balance_attachment",
			Amount:           nullDec(t, "1000.00"),
			StatementEndDate: periodEnd,
			Meta:             map[string]any{"account_ref": "acct::BANK1"},
		},
		model.EvidenceItem{EvidenceType: "petty_cash_support", Amount: nullDec(t, "200.00")},
	)
	withConfig(t, ctx, "BS-PETTY-CASH-MATCH", map[string]any{"account_ref": "acct::PC"})
	withConfig(t, ctx, "BS-CLEARING-ACCOUNTS-ZERO", map[string]any{
		"allow_name_inference": true,
		"default_threshold":    map[string]any{"floor_amount": "0", "pct_of_revenue": "0.001"},
	})
	return ctx
}

func TestReportMutationDoesNotAffectSubsequentRuns(t *testing.T) {
	registry := NewBuiltinRegistry()
	ctx := fullContext(t)
	runner := engine.NewRunner(registry)

	first := runner.Run(ctx)
	baseline := runner.Run(ctx)

	// Mutate everything reachable on the first report.
	for i := range first.Results {
		first.Results[i].Status = model.StatusFail
		first.Results[i].Summary = "mutated"
		for j := range first.Results[i].Details {
			first.Results[i].Details[j].Key = "mutated"
			for k := range first.Results[i].Details[j].Values {
				first.Results[i].Details[j].Values[k] = "mutated"
			}
		}
	}

	again := runner.Run(ctx)
	require.Equal(t, baseline.Results, again.Results)
}

func TestRegisterBuiltinsIsIdempotent(t *testing.T) {
	registry := engine.NewRegistry()
	require.NoError(t, RegisterBuiltins(registry))
	require.NoError(t, RegisterBuiltins(registry))
	require.Equal(t, 21, registry.Len())
}
