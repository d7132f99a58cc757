package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
)

func intercompanyContext(t *testing.T, balance string, counterpartItems []any) *engine.Context {
	t.Helper()
	ctx := newContext(account("acct::DUE1", "Due from Northwind Holdings", "Other Current Asset", balance))
	withEvidence(ctx, model.EvidenceItem{
		EvidenceType: "intercompany_balance_sheet",
		AsOfDate:     periodEnd,
		Meta:         map[string]any{"items": counterpartItems},
	})
	return ctx
}

func TestIntercompanyMatchingCounterpartPasses(t *testing.T) {
	ctx := intercompanyContext(t, "300.00", []any{
		map[string]any{"counterparty": "Northwind Holdings", "balance": "-300.00"},
	})
	res := evaluate(t, APARIntercompanyOrShareholderPaid{}, ctx)
	requireStatus(t, res, model.StatusPass)
	require.Equal(t, "Northwind Holdings", res.Details[0].Values["counterparty"])
	summary := res.Details[len(res.Details)-1]
	require.Equal(t, "intercompany_summary", summary.Key)
	require.Equal(t, 0, summary.Values["mismatch_count"])
}

func TestIntercompanyAmountMismatchNeedsReview(t *testing.T) {
	ctx := intercompanyContext(t, "300.00", []any{
		map[string]any{"counterparty": "Northwind Holdings", "balance": "-250.00"},
	})
	res := evaluate(t, APARIntercompanyOrShareholderPaid{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}

func TestIntercompanyMissingCounterpartyNeedsReview(t *testing.T) {
	ctx := intercompanyContext(t, "300.00", []any{
		map[string]any{"counterparty": "Contoso Ltd", "balance": "-300.00"},
	})
	res := evaluate(t, APARIntercompanyOrShareholderPaid{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}

func TestIntercompanyNoMatchingAccountsNotApplicable(t *testing.T) {
	ctx := newContext(account("acct::BANK", "Chequing", "Bank", "10.00"))
	res := evaluate(t, APARIntercompanyOrShareholderPaid{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}

func TestIntercompanyZeroBalanceSkippedByDefault(t *testing.T) {
	ctx := intercompanyContext(t, "0.00", []any{})
	res := evaluate(t, APARIntercompanyOrShareholderPaid{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}

func TestIntercompanyMissingEvidenceFollowsPolicy(t *testing.T) {
	ctx := newContext(account("acct::DUE1", "Due from Northwind Holdings", "Other Current Asset", "300.00"))
	res := evaluate(t, APARIntercompanyOrShareholderPaid{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}

func TestIntercompanyLoanPatternsBroader(t *testing.T) {
	ctx := newContext(account("acct::SHL", "Shareholder Loan McGregor", "Long Term Liability", "-5000.00"))
	withEvidence(ctx, model.EvidenceItem{
		EvidenceType: "intercompany_balance_sheet",
		AsOfDate:     periodEnd,
		Meta: map[string]any{"items": []any{
			map[string]any{"counterparty": "McGregor", "balance": "5000.00"},
		}},
	})
	// The narrow AP/AR rule does not pick up shareholder loans.
	narrow := evaluate(t, APARIntercompanyOrShareholderPaid{}, ctx)
	require.Equal(t, model.StatusNotApplicable, narrow.Status)

	broad := evaluate(t, IntercompanyBalancesReconcile{}, ctx)
	requireStatus(t, broad, model.StatusPass)
}
