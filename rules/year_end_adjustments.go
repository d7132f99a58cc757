package rules

import (
	"fmt"
	"strings"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
)

// YearEndAdjustmentsConfig configures BS-AP-AR-YEAR_END_BATCH_ADJUSTMENTS.
type YearEndAdjustmentsConfig struct {
	config.Base

	// NamePatterns match generic year-end batch-adjustment counterparty
	// names left in the subledger instead of real suppliers/customers.
	NamePatterns []string `json:"name_patterns,omitempty" schema:"type:list,description:Generic year-end adjustment name fragments,category:basic"`

	APDetailRowsEvidenceType string `json:"ap_detail_rows_evidence_type" schema:"type:string,description:AP aging detail rows evidence type,category:advanced,default:ap_aging_detail_rows"`
	ARDetailRowsEvidenceType string `json:"ar_detail_rows_evidence_type" schema:"type:string,description:AR aging detail rows evidence type,category:advanced,default:ar_aging_detail_rows"`

	RequireEvidenceAsOfDateMatchPeriodEnd bool `json:"require_evidence_as_of_date_match_period_end" schema:"type:bool,description:Require aging evidence to be as of period end,category:advanced,default:true"`
}

// DefaultYearEndAdjustmentsConfig returns the rule defaults.
func DefaultYearEndAdjustmentsConfig() YearEndAdjustmentsConfig {
	return YearEndAdjustmentsConfig{
		Base: config.DefaultBase(),
		NamePatterns: []string{
			"yer supplier", "year-end review", "ye adj", "year end", "y/e",
		},
		APDetailRowsEvidenceType:              "ap_aging_detail_rows",
		ARDetailRowsEvidenceType:              "ar_aging_detail_rows",
		RequireEvidenceAsOfDateMatchPeriodEnd: true,
	}
}

// APARYearEndBatchAdjustments scans the aging detail for counterparty names
// that look like year-end batch adjustments: those entries should have been
// broken out to real suppliers/customers and cleared.
type APARYearEndBatchAdjustments struct{}

func (APARYearEndBatchAdjustments) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-AP-AR-YEAR_END_BATCH_ADJUSTMENTS",
		Title:                  "Year-end AP/AR batch adjustments not left as generic supplier/customer",
		BestPracticesReference: "Accounts Payable/Receivable → Year End Adjustments",
		Sources:                []string{"QBO (Aged Payables/Receivables Detail)"},
		NewConfig:              func() any { cfg := DefaultYearEndAdjustmentsConfig(); return &cfg },
	}
}

type flaggedGenericName struct {
	Name string `json:"name"`
}

func (r APARYearEndBatchAdjustments) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultYearEndAdjustmentsConfig()
	if err := loadConfig(ctx, info, &cfg); err != nil {
		return model.Result{}, err
	}
	if !cfg.Enabled {
		return disabledResult(info), nil
	}

	apDetail, apFound := ctx.Evidence.First(cfg.APDetailRowsEvidenceType)
	arDetail, arFound := ctx.Evidence.First(cfg.ARDetailRowsEvidenceType)
	if !apFound && !arFound {
		return newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"No AP/AR aging detail evidence for %s; not applicable.", dates.Format(ctx.PeriodEnd))), nil
	}

	if cfg.RequireEvidenceAsOfDateMatchPeriodEnd {
		for _, side := range []struct {
			label string
			item  model.EvidenceItem
			found bool
		}{
			{"AP", apDetail, apFound},
			{"AR", arDetail, arFound},
		} {
			if side.found && !asOfMatches(side.item, ctx.PeriodEnd) {
				res := newResult(info, model.StatusNotApplicable, fmt.Sprintf(
					"%s aging detail as-of date missing or does not match period end; not applicable.", side.label))
				res.EvidenceUsed = []model.EvidenceItem{side.item}
				return res, nil
			}
		}
	}

	var apItems, arItems []map[string]any
	if apFound {
		items, ok := apDetail.MetaItems()
		if !ok {
			return yearEndMissingItems(info, apDetail, arDetail, apFound, arFound), nil
		}
		apItems = items
	}
	if arFound {
		items, ok := arDetail.MetaItems()
		if !ok {
			return yearEndMissingItems(info, apDetail, arDetail, apFound, arFound), nil
		}
		arItems = items
	}

	apFlagged := findGenericNames(apItems, cfg.NamePatterns)
	arFlagged := findGenericNames(arItems, cfg.NamePatterns)
	hasFlagged := len(apFlagged) > 0 || len(arFlagged) > 0

	status := model.StatusPass
	summary := "No generic year-end AP/AR batch adjustment names detected."
	if hasFlagged {
		status = model.StatusNeedsReview
		summary = "Generic year-end AP/AR batch adjustment names detected; review required."
	}

	res := newResult(info, status, summary)
	res.Details = []model.Detail{
		genericNamesDetail("ap_generic_names", "AP aging detail generic year-end names.", ctx, apFlagged, status),
		genericNamesDetail("ar_generic_names", "AR aging detail generic year-end names.", ctx, arFlagged, status),
	}
	for _, pair := range []struct {
		item  model.EvidenceItem
		found bool
	}{{apDetail, apFound}, {arDetail, arFound}} {
		if pair.found {
			res.EvidenceUsed = append(res.EvidenceUsed, pair.item)
		}
	}
	if hasFlagged {
		res.HumanAction = "Replace generic year-end adjustment names with proper supplier/customer breakdown and clear items."
	}
	return res, nil
}

func yearEndMissingItems(info engine.Info, apDetail, arDetail model.EvidenceItem, apFound, arFound bool) model.Result {
	res := newResult(info, model.StatusNotApplicable, "AP/AR aging detail items missing; not applicable.")
	if apFound {
		res.EvidenceUsed = append(res.EvidenceUsed, apDetail)
	}
	if arFound {
		res.EvidenceUsed = append(res.EvidenceUsed, arDetail)
	}
	return res
}

func genericNamesDetail(key, message string, ctx *engine.Context, flagged []flaggedGenericName, status model.Status) model.Detail {
	values := statusValues(status)
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["flagged_count"] = len(flagged)
	if len(flagged) > 25 {
		flagged = flagged[:25]
	}
	values["flagged_items"] = flagged
	return model.Detail{Key: key, Message: message, Values: values}
}

// findGenericNames flags counterparty names that match a year-end pattern or
// start with a year-end prefix.
func findGenericNames(items []map[string]any, patterns []string) []flaggedGenericName {
	var flagged []flaggedGenericName
	for _, item := range items {
		name := strings.TrimSpace(firstStringOf(item, "name", "vendor", "customer"))
		if name == "" {
			continue
		}
		lowered := strings.ToLower(name)
		if matchesAny(name, patterns) ||
			strings.HasPrefix(lowered, "ye ") ||
			strings.HasPrefix(lowered, "y/e ") ||
			strings.HasPrefix(lowered, "year end") {
			flagged = append(flagged, flaggedGenericName{Name: name})
		}
	}
	return flagged
}
