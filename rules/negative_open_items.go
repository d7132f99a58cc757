package rules

import (
	"fmt"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// NegativeOpenItemsConfig configures BS-AP-AR-NEGATIVE-OPEN-ITEMS.
type NegativeOpenItemsConfig struct {
	config.Base

	APDetailRowsEvidenceType string `json:"ap_detail_rows_evidence_type" schema:"type:string,description:AP aging detail rows evidence type,category:advanced,default:ap_aging_detail_rows"`
	ARDetailRowsEvidenceType string `json:"ar_detail_rows_evidence_type" schema:"type:string,description:AR aging detail rows evidence type,category:advanced,default:ar_aging_detail_rows"`

	RequireEvidenceAsOfDateMatchPeriodEnd bool `json:"require_evidence_as_of_date_match_period_end" schema:"type:bool,description:Require aging evidence to be as of period end,category:advanced,default:true"`
}

// DefaultNegativeOpenItemsConfig returns the rule defaults.
func DefaultNegativeOpenItemsConfig() NegativeOpenItemsConfig {
	return NegativeOpenItemsConfig{
		Base:                                  config.DefaultBase(),
		APDetailRowsEvidenceType:              "ap_aging_detail_rows",
		ARDetailRowsEvidenceType:              "ar_aging_detail_rows",
		RequireEvidenceAsOfDateMatchPeriodEnd: true,
	}
}

// APARNegativeOpenItems surfaces negative open balances in the AP/AR aging
// detail (credits, overpayments, miscoded entries) for reviewer follow-up.
type APARNegativeOpenItems struct{}

func (APARNegativeOpenItems) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-AP-AR-NEGATIVE-OPEN-ITEMS",
		Title:                  "Negative open AP/AR items identified",
		BestPracticesReference: "Accounts Payable/Receivable",
		Sources:                []string{"QBO (Aged Payables/Receivables Detail)"},
		NewConfig:              func() any { cfg := DefaultNegativeOpenItemsConfig(); return &cfg },
	}
}

type negativeOpenItem struct {
	Name        string `json:"name"`
	OpenBalance string `json:"open_balance"`
}

func (r APARNegativeOpenItems) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultNegativeOpenItemsConfig()
	if err := loadConfig(ctx, info, &cfg); err != nil {
		return model.Result{}, err
	}
	if !cfg.Enabled {
		return disabledResult(info), nil
	}
	missingStatus := cfg.MissingStatus()

	sides := []struct {
		label        string
		evidenceType string
	}{
		{"AP", cfg.APDetailRowsEvidenceType},
		{"AR", cfg.ARDetailRowsEvidenceType},
	}
	items := make([]model.EvidenceItem, 2)
	for i, side := range sides {
		item, found := ctx.Evidence.First(side.evidenceType)
		if !found || !item.Amount.Valid {
			res := newResult(info, missingStatus, fmt.Sprintf(
				"Missing %s aging detail rows for %s; cannot verify.", side.label, dates.Format(ctx.PeriodEnd)))
			if found {
				res.EvidenceUsed = []model.EvidenceItem{item}
			}
			res.HumanAction = fmt.Sprintf("Provide %s aging detail report rows as of period end.", side.label)
			return res, nil
		}
		if cfg.RequireEvidenceAsOfDateMatchPeriodEnd && !asOfMatches(item, ctx.PeriodEnd) {
			res := newResult(info, missingStatus, fmt.Sprintf(
				"%s aging detail as-of date is missing or does not match period end; cannot verify.", side.label))
			res.EvidenceUsed = []model.EvidenceItem{item}
			res.HumanAction = fmt.Sprintf("Provide %s aging detail report as of the period end date.", side.label)
			return res, nil
		}
		items[i] = item
	}
	apDetail, arDetail := items[0], items[1]

	apItems, apOK := apDetail.MetaItems()
	arItems, arOK := arDetail.MetaItems()
	if !apOK || !arOK {
		res := newResult(info, missingStatus, "Missing AP/AR aging detail items; cannot verify.")
		res.EvidenceUsed = []model.EvidenceItem{apDetail, arDetail}
		res.HumanAction = "Provide AP/AR aging detail items (with open balance) as of period end."
		return res, nil
	}

	apNegatives := negativeOpenItems(apItems)
	arNegatives := negativeOpenItems(arItems)
	hasNegatives := len(apNegatives) > 0 || len(arNegatives) > 0

	status := model.StatusPass
	summary := "No negative open AP/AR items detected."
	if hasNegatives {
		status = model.StatusNeedsReview
		summary = "Negative open AP/AR items detected; review credits/overpayments."
	}

	res := newResult(info, status, summary)
	res.Details = []model.Detail{
		negativeOpenDetail("ap_negative_open_items", "AP negative open items.", ctx, apNegatives, status),
		negativeOpenDetail("ar_negative_open_items", "AR negative open items.", ctx, arNegatives, status),
	}
	res.EvidenceUsed = []model.EvidenceItem{apDetail, arDetail}
	if hasNegatives {
		res.HumanAction = "Investigate negative open balances (credits/overpayments) and document support."
	}
	return res, nil
}

func negativeOpenDetail(key, message string, ctx *engine.Context, negatives []negativeOpenItem, status model.Status) model.Detail {
	values := statusValues(status)
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["negative_item_count"] = len(negatives)
	if len(negatives) > 25 {
		negatives = negatives[:25]
	}
	values["negative_items"] = negatives
	return model.Detail{Key: key, Message: message, Values: values}
}

func negativeOpenItems(items []map[string]any) []negativeOpenItem {
	var out []negativeOpenItem
	for _, item := range items {
		amt := money.ParseAny(item["open_balance"])
		if !amt.Valid || amt.Decimal.Sign() >= 0 {
			continue
		}
		out = append(out, negativeOpenItem{
			Name:        firstStringOf(item, "name", "vendor", "customer"),
			OpenBalance: amt.Decimal.String(),
		})
	}
	return out
}
