package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
)

func unclearedContext(items ...map[string]any) *engine.Context {
	ctx := newContext(account("acct::BANK1", "Operating Chequing", "Bank", "1000.00"))
	asAt := make([]any, 0, len(items))
	for _, item := range items {
		asAt = append(asAt, item)
	}
	ctx.Reconciliations = []model.ReconciliationSnapshot{{
		AccountRef:       "acct::BANK1",
		AccountName:      "Operating Chequing",
		StatementEndDate: dates.New(2025, time.November, 30),
		Meta: map[string]any{
			"uncleared_items": map[string]any{
				"as_at": asAt,
				"after_date": []any{
					map[string]any{"txn_date": "2025-12-05", "description": "post-cutoff", "amount": "15.00"},
				},
			},
		},
	}}
	return ctx
}

func TestUnclearedItemsOldItemWarns(t *testing.T) {
	ctx := unclearedContext(
		map[string]any{"txn_date": "2025-08-15", "description": "stale cheque", "amount": "120.00"},
		map[string]any{"txn_date": "2025-10-20", "description": "recent cheque", "amount": "80.00"},
	)
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusWarn)
	require.Len(t, res.Details, 1)
	values := res.Details[0].Values
	require.Equal(t, 1, values["flagged_uncleared_items_count"])
	require.Equal(t, "2025-09-30", values["threshold_date"])
	require.Equal(t, 1, values["uncleared_items_after_date_ignored_count"])
}

func TestUnclearedItemsThresholdIsStrict(t *testing.T) {
	// An item dated exactly on the threshold date is not flagged.
	ctx := unclearedContext(map[string]any{"txn_date": "2025-09-30", "amount": "10.00"})
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusPass)
}

func TestUnclearedItemsSlashedDateFormat(t *testing.T) {
	ctx := unclearedContext(map[string]any{"txn_date": "15/08/2025", "amount": "120.00"})
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusWarn)
}

func TestUnclearedItemsUnparseableDateNeedsReview(t *testing.T) {
	ctx := unclearedContext(map[string]any{"txn_date": "eventually", "amount": "120.00"})
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
	require.Equal(t, 1, res.Details[0].Values["invalid_uncleared_item_date_count"])
}

func TestUnclearedItemsFlatMetaShape(t *testing.T) {
	ctx := unclearedContext()
	ctx.Reconciliations[0].Meta = map[string]any{
		"uncleared_items_as_at": []any{
			map[string]any{"txn_date": "2025-08-15", "amount": "120.00"},
		},
	}
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusWarn)
}

func TestUnclearedItemsMissingMetaNeedsReview(t *testing.T) {
	ctx := unclearedContext()
	ctx.Reconciliations[0].Meta = nil
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}

func TestUnclearedItemsEmptyAsAtPasses(t *testing.T) {
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, unclearedContext())
	requireStatus(t, res, model.StatusPass)
}

func TestUnclearedItemsStaleStatusFail(t *testing.T) {
	ctx := unclearedContext(map[string]any{"txn_date": "2025-01-01", "amount": "1.00"})
	withConfig(t, ctx, "BS-UNCLEARED-ITEMS-INVESTIGATED-AND-FLAGGED", map[string]any{
		"stale_item_status": "FAIL",
	})
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusFail)
}

func TestUnclearedItemsDetailSampleCapped(t *testing.T) {
	items := make([]map[string]any, 0, 6)
	for day := 1; day <= 6; day++ {
		items = append(items, map[string]any{
			"txn_date": dates.Format(dates.New(2025, time.March, day)),
			"amount":   "1.00",
		})
	}
	ctx := unclearedContext(items...)
	withConfig(t, ctx, "BS-UNCLEARED-ITEMS-INVESTIGATED-AND-FLAGGED", map[string]any{
		"max_flagged_items_in_detail": 3,
	})
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusWarn)
	values := res.Details[0].Values
	require.Equal(t, 6, values["flagged_uncleared_items_count"])
	sample, ok := values["flagged_uncleared_items_sample"].([]flaggedUnclearedItem)
	require.True(t, ok)
	require.Len(t, sample, 3)
	require.Equal(t, "2025-03-01", sample[0].TxnDate)
}

func TestUnclearedItemsExpectedAccountMissingSnapshot(t *testing.T) {
	ctx := unclearedContext()
	withConfig(t, ctx, "BS-UNCLEARED-ITEMS-INVESTIGATED-AND-FLAGGED", map[string]any{
		"expected_accounts": []string{"acct::BANK1", "acct::BANK2"},
	})
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
	require.Len(t, res.Details, 2)
	require.Equal(t, "acct::BANK2", res.Details[1].Key)
}

func TestUnclearedItemsNoSnapshotsNeedsReview(t *testing.T) {
	ctx := newContext(account("acct::BANK1", "Operating Chequing", "Bank", "1000.00"))
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusNeedsReview)
}

func TestUnclearedItemsMonthEndClamp(t *testing.T) {
	// Feb 28 minus 2 calendar months clamps to Dec 28, not Dec 31.
	ctx := unclearedContext(map[string]any{"txn_date": "2024-12-29", "amount": "5.00"})
	ctx.Reconciliations[0].StatementEndDate = dates.New(2025, time.February, 28)
	res := evaluate(t, UnclearedItemsInvestigatedAndFlagged{}, ctx)
	requireStatus(t, res, model.StatusPass)
	require.Equal(t, "2024-12-28", res.Details[0].Values["threshold_date"])
}
