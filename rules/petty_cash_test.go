package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/model"
)

func TestPettyCashMismatchFails(t *testing.T) {
	ctx := newContext(account("acct::PC", "Petty Cash", "Bank", "250.00"))
	withEvidence(ctx, model.EvidenceItem{EvidenceType: "petty_cash_support", Amount: nullDec(t, "200.00")})
	withConfig(t, ctx, "BS-PETTY-CASH-MATCH", map[string]any{"account_ref": "acct::PC"})
	res := evaluate(t, PettyCashMatch{}, ctx)
	requireStatus(t, res, model.StatusFail)
	requireDecEqual(t, "50.00", res.Details[0].Values["difference"])
	require.Len(t, res.EvidenceUsed, 1)
}

func TestPettyCashExactMatchPasses(t *testing.T) {
	ctx := newContext(account("acct::PC", "Petty Cash", "Bank", "250.00"))
	withEvidence(ctx, model.EvidenceItem{EvidenceType: "petty_cash_support", Amount: nullDec(t, "250.00")})
	withConfig(t, ctx, "BS-PETTY-CASH-MATCH", map[string]any{"account_ref": "acct::PC"})
	res := evaluate(t, PettyCashMatch{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestPettyCashUnconfiguredNeedsReview(t *testing.T) {
	ctx := newContext(account("acct::PC", "Petty Cash", "Bank", "250.00"))
	res := evaluate(t, PettyCashMatch{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}

func TestPettyCashAccountMissingNotApplicable(t *testing.T) {
	ctx := newContext(account("acct::OTHER", "Chequing", "Bank", "10.00"))
	withConfig(t, ctx, "BS-PETTY-CASH-MATCH", map[string]any{"account_ref": "acct::PC"})
	res := evaluate(t, PettyCashMatch{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
	require.NotEmpty(t, res.HumanAction)
}

func TestPettyCashMissingSupportNeedsReview(t *testing.T) {
	ctx := newContext(account("acct::PC", "Petty Cash", "Bank", "250.00"))
	withConfig(t, ctx, "BS-PETTY-CASH-MATCH", map[string]any{"account_ref": "acct::PC"})
	res := evaluate(t, PettyCashMatch{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}

func TestPettyCashSupportWithoutAmountNeedsReview(t *testing.T) {
	ctx := newContext(account("acct::PC", "Petty Cash", "Bank", "250.00"))
	withEvidence(ctx, model.EvidenceItem{EvidenceType: "petty_cash_support", URI: "drive://petty-cash.pdf"})
	withConfig(t, ctx, "BS-PETTY-CASH-MATCH", map[string]any{"account_ref": "acct::PC"})
	res := evaluate(t, PettyCashMatch{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
	require.Len(t, res.EvidenceUsed, 1)
}
