package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
)

func bankContext(t *testing.T) *engine.Context {
	t.Helper()
	ctx := newContext(account("acct::BANK1", "Operating Chequing", "Bank", "1000.00"))
	ctx.Reconciliations = []model.ReconciliationSnapshot{{
		AccountRef:                  "acct::BANK1",
		AccountName:                 "Operating Chequing",
		StatementEndDate:            periodEnd,
		StatementEndingBalance:      nullDec(t, "1000.00"),
		BookBalanceAsOfStatementEnd: nullDec(t, "1000.00"),
		BookBalanceAsOfPeriodEnd:    nullDec(t, "1000.00"),
	}}
	withEvidence(ctx, model.EvidenceItem{
		EvidenceType:     "statement_balance_attachment",
		Amount:           nullDec(t, "1000.00"),
		StatementEndDate: periodEnd,
		Meta:             map[string]any{"account_ref": "acct::BANK1"},
	})
	return ctx
}

func TestBankReconciledCleanPass(t *testing.T) {
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, bankContext(t))
	requireStatus(t, res, model.StatusPass)
	require.Len(t, res.Details, 1)
	require.Equal(t, "acct::BANK1", res.Details[0].Key)
	require.Equal(t, string(model.StatusPass), res.Details[0].Values["statement_tie_status"])
	require.Equal(t, string(model.StatusPass), res.Details[0].Values["period_end_tie_status"])
	require.Equal(t, string(model.StatusPass), res.Details[0].Values["attachment_status"])
}

func TestBankReconciledCoverageFail(t *testing.T) {
	ctx := bankContext(t)
	ctx.Reconciliations[0].StatementEndDate = dates.New(2025, time.November, 30)
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusFail)
	require.Equal(t, string(model.StatusFail), res.Details[0].Values["coverage"])
}

func TestBankReconciledStatementTieFail(t *testing.T) {
	ctx := bankContext(t)
	ctx.Reconciliations[0].BookBalanceAsOfStatementEnd = nullDec(t, "995.00")
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusFail)
	require.Equal(t, string(model.StatusFail), res.Details[0].Values["statement_tie_status"])
	require.Equal(t, "5", res.Details[0].Values["statement_tie_difference"])
}

func TestBankReconciledAttachmentAmountMismatch(t *testing.T) {
	ctx := bankContext(t)
	ctx.Evidence.Items[0].Amount = nullDec(t, "999.00")
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusFail)
	require.Equal(t, string(model.StatusFail), res.Details[0].Values["attachment_status"])
}

func TestBankReconciledAttachmentDateMismatch(t *testing.T) {
	ctx := bankContext(t)
	ctx.Evidence.Items[0].StatementEndDate = dates.New(2025, time.November, 30)
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusFail)
	require.Equal(t, string(model.StatusFail), res.Details[0].Values["attachment_status"])
}

func TestBankReconciledMissingAttachmentNeedsReview(t *testing.T) {
	ctx := bankContext(t)
	ctx.Evidence.Items = nil
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
	require.Equal(t, string(model.StatusNeedsReview), res.Details[0].Values["attachment_status"])
}

func TestBankReconciledMissingSnapshot(t *testing.T) {
	ctx := bankContext(t)
	ctx.Reconciliations = nil
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
	require.Equal(t, "acct::BANK1", res.Details[0].Key)
}

func TestBankReconciledMissingSnapshotNotApplicablePolicy(t *testing.T) {
	ctx := bankContext(t)
	ctx.Reconciliations = nil
	withConfig(t, ctx, "BS-BANK-RECONCILED-THROUGH-PERIOD-END", map[string]any{
		"missing_data_policy": "NOT_APPLICABLE",
	})
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}

func TestBankReconciledPicksLatestSnapshot(t *testing.T) {
	ctx := bankContext(t)
	stale := ctx.Reconciliations[0]
	stale.StatementEndDate = dates.New(2025, time.October, 31)
	stale.BookBalanceAsOfStatementEnd = nullDec(t, "1.00")
	ctx.Reconciliations = append([]model.ReconciliationSnapshot{stale}, ctx.Reconciliations...)
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestBankReconciledMissingTypesBlocksInference(t *testing.T) {
	ctx := bankContext(t)
	ctx.BalanceSheet.Accounts = append(ctx.BalanceSheet.Accounts,
		model.AccountBalance{AccountRef: "acct::UNTYPED", Name: "Mystery", Balance: dec(t, "10.00")})
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
	require.Equal(t, "scope", res.Details[0].Key)
}

func TestBankReconciledMaintenanceCountMismatch(t *testing.T) {
	ctx := bankContext(t)
	withConfig(t, ctx, "BS-BANK-RECONCILED-THROUGH-PERIOD-END", map[string]any{
		"expected_accounts": []string{"acct::BANK1", "acct::BANK2"},
	})
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusFail)
	require.Equal(t, "scope_count", res.Details[0].Key)
	require.Equal(t, 2, res.Details[0].Values["maintenance_account_count"])
	require.Equal(t, 1, res.Details[0].Values["balance_sheet_bank_cc_count"])
}

func TestBankReconciledExcludeAccounts(t *testing.T) {
	ctx := bankContext(t)
	withConfig(t, ctx, "BS-BANK-RECONCILED-THROUGH-PERIOD-END", map[string]any{
		"exclude_accounts": []string{"acct::BANK1"},
	})
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}

func TestBankReconciledCreditCardInScope(t *testing.T) {
	ctx := bankContext(t)
	ctx.BalanceSheet.Accounts = append(ctx.BalanceSheet.Accounts,
		account("acct::VISA", "Corporate Visa", "Credit Card", "-210.55"))
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	// The card has no reconciliation snapshot, so it needs review.
	requireStatus(t, res, model.StatusNeedsReview)
	require.Len(t, res.Details, 2)
	require.Equal(t, "acct::VISA", res.Details[1].Key)
}

func TestBankReconciledQuantizedTieOut(t *testing.T) {
	ctx := bankContext(t)
	ctx.Reconciliations[0].BookBalanceAsOfStatementEnd = nullDec(t, "1000.001")
	withConfig(t, ctx, "BS-BANK-RECONCILED-THROUGH-PERIOD-END", map[string]any{
		"amount_quantize": "0.01",
	})
	res := evaluate(t, BankReconciledThroughPeriodEnd{}, ctx)
	requireStatus(t, res, model.StatusPass)
}
