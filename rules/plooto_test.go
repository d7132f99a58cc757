package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/model"
)

func TestPlootoClearingZeroPass(t *testing.T) {
	ctx := newContext(account("acct::PLC", "Plooto Clearing", "Other Current Asset", "0.00"))
	res := evaluate(t, PlootoClearingZero{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestPlootoClearingNonZeroFails(t *testing.T) {
	ctx := newContext(account("acct::PLC", "Plooto Clearing", "Other Current Asset", "-42.17"))
	res := evaluate(t, PlootoClearingZero{}, ctx)
	requireStatus(t, res, model.StatusFail)
	require.Contains(t, res.Summary, "-42.17")
}

func TestPlootoClearingNoAccountNotApplicable(t *testing.T) {
	ctx := newContext(account("acct::BANK", "Chequing", "Bank", "10.00"))
	res := evaluate(t, PlootoClearingZero{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}

func TestPlootoClearingConfiguredRefMissingNeedsReview(t *testing.T) {
	ctx := newContext(account("acct::BANK", "Chequing", "Bank", "10.00"))
	withConfig(t, ctx, "BS-PLOOTO-CLEARING-ZERO", map[string]any{"account_ref": "acct::PLC"})
	res := evaluate(t, PlootoClearingZero{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}

func TestPlootoInstantZeroPass(t *testing.T) {
	ctx := newContext(account("acct::PLI", "Plooto Instant", "Other Current Asset", "0.00"))
	res := evaluate(t, PlootoInstantBalanceDisclosure{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestPlootoInstantNonZeroWarnsForDisclosure(t *testing.T) {
	ctx := newContext(account("acct::PLI", "Plooto Instant", "Other Current Asset", "310.00"))
	res := evaluate(t, PlootoInstantBalanceDisclosure{}, ctx)
	requireStatus(t, res, model.StatusWarn)
	require.Empty(t, res.EvidenceUsed)
}

func TestPlootoInstantNoAccountFollowsMissingPolicy(t *testing.T) {
	ctx := newContext(account("acct::BANK", "Chequing", "Bank", "10.00"))
	res := evaluate(t, PlootoInstantBalanceDisclosure{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)

	ctx = newContext(account("acct::BANK", "Chequing", "Bank", "10.00"))
	withConfig(t, ctx, "BS-PLOOTO-INSTANT-BALANCE-DISCLOSURE", map[string]any{
		"missing_data_policy": "NOT_APPLICABLE",
	})
	res = evaluate(t, PlootoInstantBalanceDisclosure{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}
