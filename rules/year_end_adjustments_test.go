package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/model"
)

func TestYearEndGenericNamesFlagged(t *testing.T) {
	ctx := detailRowsContext(t,
		[]any{map[string]any{"name": "YER Supplier", "open_balance": "100.00"}},
		[]any{map[string]any{"name": "Beta Customer", "open_balance": "40.00"}},
	)
	res := evaluate(t, APARYearEndBatchAdjustments{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
	require.Equal(t, 1, res.Details[0].Values["flagged_count"])
	require.Equal(t, 0, res.Details[1].Values["flagged_count"])
}

func TestYearEndPrefixMatches(t *testing.T) {
	for _, name := range []string{"YE Adjustment Batch", "Y/E Cleanup", "Year End Review 2025"} {
		ctx := detailRowsContext(t,
			[]any{map[string]any{"name": name}},
			[]any{},
		)
		res := evaluate(t, APARYearEndBatchAdjustments{}, ctx)
		require.Equal(t, model.StatusNeedsReview, res.Status, "name %q should flag", name)
	}
}

func TestYearEndCleanNamesPass(t *testing.T) {
	ctx := detailRowsContext(t,
		[]any{map[string]any{"name": "Acme Supplies"}},
		[]any{map[string]any{"name": "Beta Customer"}},
	)
	res := evaluate(t, APARYearEndBatchAdjustments{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestYearEndNoEvidenceNotApplicable(t *testing.T) {
	ctx := newContext(account("acct::AP", "Accounts Payable", "Accounts Payable", "-920.00"))
	res := evaluate(t, APARYearEndBatchAdjustments{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}

func TestYearEndDateMismatchNotApplicable(t *testing.T) {
	ctx := detailRowsContext(t, []any{}, []any{})
	ctx.Evidence.Items[0].AsOfDate = ctx.Evidence.Items[0].AsOfDate.AddDate(0, -1, 0)
	res := evaluate(t, APARYearEndBatchAdjustments{}, ctx)
	require.Equal(t, model.StatusNotApplicable, res.Status)
}

func TestYearEndSingleSidedEvidenceStillEvaluates(t *testing.T) {
	ctx := newContext(account("acct::AP", "Accounts Payable", "Accounts Payable", "-920.00"))
	withEvidence(ctx, model.EvidenceItem{
		EvidenceType: "ap_aging_detail_rows",
		Amount:       nullDec(t, "100.00"),
		AsOfDate:     periodEnd,
		Meta:         map[string]any{"items": []any{map[string]any{"name": "ye adj Q4"}}},
	})
	res := evaluate(t, APARYearEndBatchAdjustments{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}
