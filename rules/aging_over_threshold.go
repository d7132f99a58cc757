package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// AgingOverThresholdConfig configures BS-AP-AR-ITEMS-OLDER-THAN-60-DAYS.
type AgingOverThresholdConfig struct {
	config.Base

	// AgeThresholdDays is the open-item age past which items need review.
	AgeThresholdDays int `json:"age_threshold_days" schema:"type:int,description:Flag open items older than this many days,category:basic,default:60"`

	APSummaryEvidenceType string `json:"ap_summary_evidence_type" schema:"type:string,description:AP over-threshold summary evidence type,category:advanced,default:ap_aging_summary_over_60"`
	APDetailEvidenceType  string `json:"ap_detail_evidence_type" schema:"type:string,description:AP over-threshold detail evidence type,category:advanced,default:ap_aging_detail_over_60"`
	ARSummaryEvidenceType string `json:"ar_summary_evidence_type" schema:"type:string,description:AR over-threshold summary evidence type,category:advanced,default:ar_aging_summary_over_60"`
	ARDetailEvidenceType  string `json:"ar_detail_evidence_type" schema:"type:string,description:AR over-threshold detail evidence type,category:advanced,default:ar_aging_detail_over_60"`

	RequireEvidenceAsOfDateMatchPeriodEnd bool `json:"require_evidence_as_of_date_match_period_end" schema:"type:bool,description:Require aging evidence to be as of period end,category:advanced,default:true"`
}

// DefaultAgingOverThresholdConfig returns the rule defaults.
func DefaultAgingOverThresholdConfig() AgingOverThresholdConfig {
	return AgingOverThresholdConfig{
		Base:                                  config.DefaultBase(),
		AgeThresholdDays:                      60,
		APSummaryEvidenceType:                 "ap_aging_summary_over_60",
		APDetailEvidenceType:                  "ap_aging_detail_over_60",
		ARSummaryEvidenceType:                 "ar_aging_summary_over_60",
		ARDetailEvidenceType:                  "ar_aging_detail_over_60",
		RequireEvidenceAsOfDateMatchPeriodEnd: true,
	}
}

// APARItemsOlderThanThreshold flags AP/AR open items older than the
// configured age and cross-checks the over-threshold detail report against
// its summary, aggregated by counterparty name.
type APARItemsOlderThanThreshold struct{}

func (APARItemsOlderThanThreshold) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-AP-AR-ITEMS-OLDER-THAN-60-DAYS",
		Title:                  "AP/AR items older than 60 days flagged",
		BestPracticesReference: "Accounts Payable/Receivable",
		Sources:                []string{"QBO (AP/AR Aging Summary + Detail)"},
		NewConfig:              func() any { cfg := DefaultAgingOverThresholdConfig(); return &cfg },
	}
}

type overThresholdItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TxnDate   string `json:"txn_date,omitempty"`
	Amount    string `json:"amount"`
	AgeBucket any    `json:"age_bucket,omitempty"`
}

type agingDiscrepancy struct {
	Name         string `json:"name"`
	DetailTotal  string `json:"detail_total"`
	SummaryTotal string `json:"summary_total"`
	Difference   string `json:"difference"`
}

func (r APARItemsOlderThanThreshold) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultAgingOverThresholdConfig()
	if err := loadConfig(ctx, info, &cfg); err != nil {
		return model.Result{}, err
	}
	if !cfg.Enabled {
		return disabledResult(info), nil
	}
	inc, err := cfg.Increment()
	if err != nil {
		return model.Result{}, engine.NewConfigError(err)
	}
	missingStatus := cfg.MissingStatus()

	thresholdDays := cfg.AgeThresholdDays
	if thresholdDays <= 0 {
		thresholdDays = 60
	}
	cutoff := ctx.PeriodEnd.AddDate(0, 0, -thresholdDays)

	type evidenceSlot struct {
		label string
		item  model.EvidenceItem
		found bool
	}
	slots := make([]evidenceSlot, 4)
	for i, spec := range []struct {
		label        string
		evidenceType string
	}{
		{"AP summary", cfg.APSummaryEvidenceType},
		{"AP detail", cfg.APDetailEvidenceType},
		{"AR summary", cfg.ARSummaryEvidenceType},
		{"AR detail", cfg.ARDetailEvidenceType},
	} {
		item, found := ctx.Evidence.First(spec.evidenceType)
		slots[i] = evidenceSlot{label: spec.label, item: item, found: found}
	}

	for _, slot := range slots {
		if !slot.found || !slot.item.Amount.Valid {
			res := newResult(info, missingStatus, fmt.Sprintf(
				"Missing %s aging total for %s; cannot verify.", slot.label, dates.Format(ctx.PeriodEnd)))
			if slot.found {
				res.EvidenceUsed = []model.EvidenceItem{slot.item}
			}
			res.HumanAction = "Provide AP/AR aging summary and detail totals as of period end."
			return res, nil
		}
		if cfg.RequireEvidenceAsOfDateMatchPeriodEnd && !asOfMatches(slot.item, ctx.PeriodEnd) {
			res := newResult(info, missingStatus, fmt.Sprintf(
				"%s aging report as-of date is missing or does not match period end; cannot verify.", slot.label))
			res.EvidenceUsed = []model.EvidenceItem{slot.item}
			res.HumanAction = "Provide AP/AR aging reports as of the period end date."
			return res, nil
		}
	}
	apSummary, apDetail, arSummary, arDetail := slots[0].item, slots[1].item, slots[2].item, slots[3].item

	apSummaryItems, apSummaryOK := apSummary.MetaItems()
	apDetailItems, apDetailOK := apDetail.MetaItems()
	arSummaryItems, arSummaryOK := arSummary.MetaItems()
	arDetailItems, arDetailOK := arDetail.MetaItems()
	if !apSummaryOK || !apDetailOK || !arSummaryOK || !arDetailOK {
		res := newResult(info, missingStatus,
			"Missing item-level metadata for AP/AR aging reports; cannot verify.")
		res.EvidenceUsed = []model.EvidenceItem{apSummary, apDetail, arSummary, arDetail}
		res.HumanAction = "Provide item-level metadata for AP/AR aging reports (items older than threshold)."
		return res, nil
	}

	apOver, apInvalid := filterOverThreshold(apDetailItems, cutoff, thresholdDays)
	arOver, arInvalid := filterOverThreshold(arDetailItems, cutoff, thresholdDays)
	if apInvalid > 0 || arInvalid > 0 {
		res := newResult(info, missingStatus,
			"Some AP/AR detail items are missing dates or amounts; cannot verify.")
		res.EvidenceUsed = []model.EvidenceItem{apDetail, arDetail}
		res.HumanAction = "Ensure AP/AR detail items include valid dates and amounts."
		return res, nil
	}

	apSummaryMap := aggregateByName(apSummaryItems)
	arSummaryMap := aggregateByName(arSummaryItems)
	apDetailMap := aggregateOverByName(apOver)
	arDetailMap := aggregateOverByName(arOver)

	apDiscrepancies := diffNameTotals(apDetailMap, apSummaryMap)
	arDiscrepancies := diffNameTotals(arDetailMap, arSummaryMap)

	apOverTotal := money.Quantize(apDetail.Amount.Decimal, inc)
	arOverTotal := money.Quantize(arDetail.Amount.Decimal, inc)
	apSummaryTotal := money.Quantize(apSummary.Amount.Decimal, inc)
	arSummaryTotal := money.Quantize(arSummary.Amount.Decimal, inc)

	apCalcTotal := sumNameTotals(apDetailMap)
	arCalcTotal := sumNameTotals(arDetailMap)
	if !apCalcTotal.Equal(apOverTotal) || !apCalcTotal.Equal(apSummaryTotal) {
		apDiscrepancies = append(apDiscrepancies, agingDiscrepancy{
			Name:         "__TOTAL__",
			DetailTotal:  decStr(apCalcTotal),
			SummaryTotal: decStr(apSummaryTotal),
			Difference:   decStr(apCalcTotal.Sub(apSummaryTotal).Abs()),
		})
	}
	if !arCalcTotal.Equal(arOverTotal) || !arCalcTotal.Equal(arSummaryTotal) {
		arDiscrepancies = append(arDiscrepancies, agingDiscrepancy{
			Name:         "__TOTAL__",
			DetailTotal:  decStr(arCalcTotal),
			SummaryTotal: decStr(arSummaryTotal),
			Difference:   decStr(arCalcTotal.Sub(arSummaryTotal).Abs()),
		})
	}

	hasOld := len(apOver) > 0 || len(arOver) > 0
	hasDiscrepancy := len(apDiscrepancies) > 0 || len(arDiscrepancies) > 0

	status := model.StatusPass
	summary := "No AP/AR items older than the threshold and reports reconcile."
	if hasOld || hasDiscrepancy {
		status = model.StatusNeedsReview
		summary = "AP/AR items older than threshold detected or report discrepancies found."
	}

	res := newResult(info, status, summary)
	res.Details = []model.Detail{
		overThresholdDetail("ap_over_60", "AP items older than threshold.", ctx, thresholdDays, cutoff,
			apOver, apInvalid, apOverTotal, apSummaryTotal, apDiscrepancies, status),
		overThresholdDetail("ar_over_60", "AR items older than threshold.", ctx, thresholdDays, cutoff,
			arOver, arInvalid, arOverTotal, arSummaryTotal, arDiscrepancies, status),
	}
	res.EvidenceUsed = []model.EvidenceItem{apSummary, apDetail, arSummary, arDetail}
	if status != model.StatusPass {
		res.HumanAction = "Review AP/AR items older than the threshold and reconcile summary vs detail report discrepancies."
	}
	return res, nil
}

func overThresholdDetail(
	key, message string,
	ctx *engine.Context,
	thresholdDays int,
	cutoff time.Time,
	over []overThresholdItem,
	invalid int,
	detailTotal, summaryTotal decimal.Decimal,
	discrepancies []agingDiscrepancy,
	status model.Status,
) model.Detail {
	values := statusValues(status)
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["threshold_days"] = thresholdDays
	values["cutoff_date"] = dates.Format(cutoff)
	values["over_threshold_count"] = len(over)
	values["over_threshold_items"] = capOverItems(over, 25)
	values["invalid_items_count"] = invalid
	values["detail_total_over_threshold"] = decStr(detailTotal)
	values["summary_total_over_threshold"] = decStr(summaryTotal)
	values["discrepancies"] = discrepancies
	return model.Detail{Key: key, Message: message, Values: values}
}

// filterOverThreshold identifies over-age detail items. Age comes from
// txn_date when present, else days-past-due, else an over_threshold flag,
// else an age-bucket label. Items with an amount but no age signal count as
// invalid.
func filterOverThreshold(items []map[string]any, cutoffDate time.Time, thresholdDays int) ([]overThresholdItem, int) {
	var out []overThresholdItem
	invalid := 0
	for _, item := range items {
		txnDate, hasTxnDate := dates.Parse(firstOf(item, "txn_date", "date", "transaction_date"))
		amt := money.ParseAny(item["amount"])
		ageDays := firstOf(item, "days_past_due", "age_days")
		ageBucket := strings.ToLower(strings.TrimSpace(fmt.Sprint(firstOf(item, "age_bucket"))))
		if ageBucket == "<nil>" {
			ageBucket = ""
		}
		overFlag := item["over_threshold"] == true

		hasAge := hasTxnDate || ageDays != nil || ageBucket != "" || overFlag
		if !amt.Valid || !hasAge {
			invalid++
			continue
		}

		isOver := false
		txnDateStr := ""
		switch {
		case hasTxnDate:
			isOver = txnDate.Before(cutoffDate)
			txnDateStr = dates.Format(txnDate)
		case ageDays != nil:
			if n, ok := intFromAny(ageDays); ok {
				isOver = n >= thresholdDays
			}
		case overFlag:
			isOver = true
		case ageBucket != "":
			isOver = strings.Contains(ageBucket, "61") ||
				strings.Contains(ageBucket, "90") ||
				strings.Contains(ageBucket, "over")
		}

		if isOver {
			out = append(out, overThresholdItem{
				ID:        firstStringOf(item, "id", "txn_id"),
				Name:      firstStringOf(item, "name", "vendor", "customer"),
				TxnDate:   txnDateStr,
				Amount:    amt.Decimal.String(),
				AgeBucket: item["age_bucket"],
			})
		}
	}
	return out, invalid
}

func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// aggregateByName sums item amounts per counterparty name; nameless or
// amountless entries are skipped.
func aggregateByName(items []map[string]any) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, item := range items {
		name := strings.TrimSpace(firstStringOf(item, "name", "vendor", "customer"))
		amt := money.ParseAny(item["amount"])
		if name == "" || !amt.Valid {
			continue
		}
		out[name] = out[name].Add(amt.Decimal)
	}
	return out
}

func aggregateOverByName(items []overThresholdItem) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		amt := money.ParseAny(item.Amount)
		if name == "" || !amt.Valid {
			continue
		}
		out[name] = out[name].Add(amt.Decimal)
	}
	return out
}

// diffNameTotals compares the per-name detail totals against the summary.
func diffNameTotals(detailMap, summaryMap map[string]decimal.Decimal) []agingDiscrepancy {
	names := make(map[string]bool, len(detailMap)+len(summaryMap))
	for name := range detailMap {
		names[name] = true
	}
	for name := range summaryMap {
		names[name] = true
	}
	keys := make([]string, 0, len(names))
	for name := range names {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	var diffs []agingDiscrepancy
	for _, name := range keys {
		d := detailMap[name]
		s := summaryMap[name]
		if !d.Equal(s) {
			diffs = append(diffs, agingDiscrepancy{
				Name:         name,
				DetailTotal:  decStr(d),
				SummaryTotal: decStr(s),
				Difference:   decStr(d.Sub(s).Abs()),
			})
		}
	}
	return diffs
}

func sumNameTotals(m map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}

func capOverItems(in []overThresholdItem, max int) []overThresholdItem {
	if len(in) <= max {
		return in
	}
	return in[:max]
}
