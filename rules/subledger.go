package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// SubledgerConfig configures the AP/AR subledger reconciliation rules.
type SubledgerConfig struct {
	config.Base

	// AccountRefs is the explicit list of Balance Sheet control accounts to
	// sum. A matching report total row takes precedence over these refs; when
	// there is no total row and no refs, name inference determines the total.
	AccountRefs []string `json:"account_refs,omitempty" schema:"type:list,description:Control account refs summed into the Balance Sheet total,category:basic"`

	// AllowNameInference permits summing accounts matched by name when no
	// total row and no refs are configured.
	AllowNameInference bool `json:"allow_name_inference" schema:"type:bool,description:Infer control accounts by name match when unconfigured,category:advanced,default:false"`

	// AccountNameMatch is the name substring used for inference
	// ("accounts payable" / "accounts receivable").
	AccountNameMatch string `json:"account_name_match,omitempty" schema:"type:string,description:Name substring used for inference,category:advanced"`

	// SummaryEvidenceType and DetailEvidenceType name the aging totals the
	// Balance Sheet must tie to.
	SummaryEvidenceType string `json:"summary_evidence_type,omitempty" schema:"type:string,description:Evidence type carrying the aging summary total,category:advanced"`
	DetailEvidenceType  string `json:"detail_evidence_type,omitempty" schema:"type:string,description:Evidence type carrying the aging detail total,category:advanced"`

	// RequireEvidenceAsOfDateMatchPeriodEnd requires both totals to be as of
	// the MER period end.
	RequireEvidenceAsOfDateMatchPeriodEnd bool `json:"require_evidence_as_of_date_match_period_end" schema:"type:bool,description:Require aging evidence to be as of period end,category:advanced,default:true"`
}

// subledgerSide parameterizes the shared evaluation for AP vs AR.
type subledgerSide struct {
	label           string // "AP" / "AR"
	longName        string // "Accounts Payable" / "Accounts Receivable"
	initialism      string // "A/P" / "A/R"
	totalsDetailKey string // "ap_aging_totals" / "ar_aging_totals"
	defaultSummary  string
	defaultDetail   string
	defaultMatch    string
}

var apSide = subledgerSide{
	label:           "AP",
	longName:        "Accounts Payable",
	initialism:      "A/P",
	totalsDetailKey: "ap_aging_totals",
	defaultSummary:  "ap_aging_summary_total",
	defaultDetail:   "ap_aging_detail_total",
	defaultMatch:    "accounts payable",
}

var arSide = subledgerSide{
	label:           "AR",
	longName:        "Accounts Receivable",
	initialism:      "A/R",
	totalsDetailKey: "ar_aging_totals",
	defaultSummary:  "ar_aging_summary_total",
	defaultDetail:   "ar_aging_detail_total",
	defaultMatch:    "accounts receivable",
}

func defaultSubledgerConfig(side subledgerSide) SubledgerConfig {
	return SubledgerConfig{
		Base:                                  config.DefaultBase(),
		AccountNameMatch:                      side.defaultMatch,
		SummaryEvidenceType:                   side.defaultSummary,
		DetailEvidenceType:                    side.defaultDetail,
		RequireEvidenceAsOfDateMatchPeriodEnd: true,
	}
}

// isSubledgerTotalRow matches a Balance Sheet report-total line for the
// side, e.g. "Total Accounts Payable" or "Total A/P".
func isSubledgerTotalRow(name string, side subledgerSide) bool {
	if !containsFold(name, "total") {
		return false
	}
	return containsFold(name, side.longName) || hasToken(name, side.initialism)
}

// evaluateSubledger ties the aging summary and detail totals to the Balance
// Sheet control-account total for one side of the subledger.
func evaluateSubledger(ctx *engine.Context, info engine.Info, side subledgerSide) (model.Result, error) {
	cfg := defaultSubledgerConfig(side)
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

	type evalAccount struct {
		ref  string
		name string
		bal  decimal.Decimal
	}
	var (
		accountsToEval    []evalAccount
		missingRefs       []string
		usedNameInference bool
		usedTotalLine     bool
	)

	var totalMatches []model.AccountBalance
	for _, acct := range ctx.BalanceSheet.Accounts {
		if isSubledgerTotalRow(acct.Name, side) {
			totalMatches = append(totalMatches, acct)
		}
	}
	if len(totalMatches) > 1 {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Multiple %s total lines matched on the Balance Sheet as of %s; cannot verify.",
			side.label, dates.Format(ctx.PeriodEnd)))
		for _, acct := range totalMatches {
			values := statusValues(model.StatusNeedsReview)
			values["account_name"] = acct.Name
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			res.Details = append(res.Details, model.Detail{
				Key:     acct.AccountRef,
				Message: fmt.Sprintf("Multiple %s total lines matched.", side.label),
				Values:  values,
			})
		}
		res.HumanAction = fmt.Sprintf("Use a single %s total line or configure specific account refs.", side.label)
		return res, nil
	}

	switch {
	case len(totalMatches) == 1:
		acct := totalMatches[0]
		usedTotalLine = true
		accountsToEval = []evalAccount{{ref: acct.AccountRef, name: acct.Name, bal: acct.Balance}}
	case len(cfg.AccountRefs) > 0:
		for _, ref := range cfg.AccountRefs {
			acct, ok := ctx.BalanceSheet.Account(ref)
			if !ok {
				missingRefs = append(missingRefs, ref)
				continue
			}
			accountsToEval = append(accountsToEval, evalAccount{ref: ref, name: acct.Name, bal: acct.Balance})
		}
	case cfg.AllowNameInference:
		usedNameInference = true
		for _, acct := range ctx.BalanceSheet.Accounts {
			if !acct.IsLeaf() {
				continue
			}
			if (cfg.AccountNameMatch != "" && containsFold(acct.Name, cfg.AccountNameMatch)) ||
				hasToken(acct.Name, side.initialism) {
				accountsToEval = append(accountsToEval, evalAccount{ref: acct.AccountRef, name: acct.Name, bal: acct.Balance})
			}
		}
	}

	if len(accountsToEval) == 0 && len(missingRefs) == 0 {
		res := newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"No %s accounts found as of %s.", side.longName, dates.Format(ctx.PeriodEnd)))
		res.HumanAction = fmt.Sprintf("Configure %s account refs or name match to enable this rule.", side.label)
		return res, nil
	}
	if len(missingRefs) > 0 {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Some configured %s accounts were missing from the Balance Sheet as of %s; cannot verify.",
			side.label, dates.Format(ctx.PeriodEnd)))
		for _, ref := range missingRefs {
			values := statusValues(model.StatusNeedsReview)
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			res.Details = append(res.Details, model.Detail{
				Key:     ref,
				Message: "Configured account not found in balance sheet snapshot.",
				Values:  values,
			})
		}
		res.HumanAction = fmt.Sprintf(
			"Confirm %s account refs and ensure the Balance Sheet snapshot is complete.", side.label)
		return res, nil
	}

	summaryItem, summaryFound := ctx.Evidence.First(cfg.SummaryEvidenceType)
	if !summaryFound || !summaryItem.Amount.Valid {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Missing %s aging summary total for %s; cannot verify.", side.label, dates.Format(ctx.PeriodEnd)))
		if summaryFound {
			res.EvidenceUsed = []model.EvidenceItem{summaryItem}
		}
		res.HumanAction = fmt.Sprintf("Provide the %s aging summary total as of period end.", side.label)
		return res, nil
	}
	detailItem, detailFound := ctx.Evidence.First(cfg.DetailEvidenceType)
	if !detailFound || !detailItem.Amount.Valid {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Missing %s aging detail total for %s; cannot verify.", side.label, dates.Format(ctx.PeriodEnd)))
		if detailFound {
			res.EvidenceUsed = []model.EvidenceItem{detailItem}
		}
		res.HumanAction = fmt.Sprintf("Provide the %s aging detail total as of period end.", side.label)
		return res, nil
	}

	if cfg.RequireEvidenceAsOfDateMatchPeriodEnd {
		if !asOfMatches(summaryItem, ctx.PeriodEnd) {
			res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
				"%s aging summary as-of date is missing or does not match period end; cannot verify.", side.label))
			res.EvidenceUsed = []model.EvidenceItem{summaryItem}
			res.HumanAction = fmt.Sprintf("Provide the %s aging summary as of the period end date.", side.label)
			return res, nil
		}
		if !asOfMatches(detailItem, ctx.PeriodEnd) {
			res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
				"%s aging detail as-of date is missing or does not match period end; cannot verify.", side.label))
			res.EvidenceUsed = []model.EvidenceItem{detailItem}
			res.HumanAction = fmt.Sprintf("Provide the %s aging detail report as of the period end date.", side.label)
			return res, nil
		}
	}

	bsTotal := decimal.Zero
	for _, acct := range accountsToEval {
		bsTotal = bsTotal.Add(acct.bal)
	}
	bsQ := money.Quantize(bsTotal, inc)
	summaryQ := money.Quantize(summaryItem.Amount.Decimal, inc)
	detailQ := money.Quantize(detailItem.Amount.Decimal, inc)
	diffSummary := bsQ.Sub(summaryQ).Abs()
	diffDetail := bsQ.Sub(detailQ).Abs()

	status := model.StatusPass
	summary := fmt.Sprintf("%s aging totals reconcile to the Balance Sheet as of %s.",
		side.label, dates.Format(ctx.PeriodEnd))
	if !diffSummary.IsZero() || !diffDetail.IsZero() {
		status = model.StatusFail
		summary = fmt.Sprintf("%s aging totals do not reconcile to the Balance Sheet as of %s.",
			side.label, dates.Format(ctx.PeriodEnd))
	}

	res := newResult(info, status, summary)
	for _, acct := range accountsToEval {
		values := map[string]any{
			"account_name":           acct.name,
			"period_end":             dates.Format(ctx.PeriodEnd),
			"balance":                decStr(money.Quantize(acct.bal, inc)),
			"inferred_by_name_match": usedNameInference,
			"used_total_line":        usedTotalLine,
		}
		res.Details = append(res.Details, model.Detail{
			Key:     acct.ref,
			Message: fmt.Sprintf("%s account included in Balance Sheet total.", side.label),
			Values:  values,
		})
	}
	totalsValues := statusValues(status)
	totalsValues["period_end"] = dates.Format(ctx.PeriodEnd)
	totalsValues["bs_total"] = decStr(bsQ)
	totalsValues["summary_total"] = decStr(summaryQ)
	totalsValues["detail_total"] = decStr(detailQ)
	totalsValues["summary_difference"] = decStr(diffSummary)
	totalsValues["detail_difference"] = decStr(diffDetail)
	totalsValues["summary_evidence_type"] = cfg.SummaryEvidenceType
	totalsValues["detail_evidence_type"] = cfg.DetailEvidenceType
	totalsValues["summary_evidence_as_of_date"] = dates.Format(summaryItem.AsOfDate)
	totalsValues["detail_evidence_as_of_date"] = dates.Format(detailItem.AsOfDate)
	res.Details = append(res.Details, model.Detail{
		Key:     side.totalsDetailKey,
		Message: fmt.Sprintf("%s aging totals compared to Balance Sheet total.", side.label),
		Values:  totalsValues,
	})
	res.EvidenceUsed = []model.EvidenceItem{summaryItem, detailItem}
	if status != model.StatusPass {
		res.HumanAction = fmt.Sprintf(
			"Reconcile the %s aging summary/detail totals to the Balance Sheet and resolve discrepancies.", side.label)
	}
	return res, nil
}

// APSubledgerReconciles ties the Aged Payables summary and detail totals to
// the Balance Sheet AP total.
type APSubledgerReconciles struct{}

func (APSubledgerReconciles) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-AP-SUBLEDGER-RECONCILES",
		Title:                  "Aged Payables Detail reconciles to Balance Sheet",
		BestPracticesReference: "Accounts Payable/Receivable",
		Sources:                []string{"QBO"},
		NewConfig:              func() any { cfg := defaultSubledgerConfig(apSide); return &cfg },
	}
}

func (r APSubledgerReconciles) Evaluate(ctx *engine.Context) (model.Result, error) {
	return evaluateSubledger(ctx, r.Info(), apSide)
}

// ARSubledgerReconciles ties the Aged Receivables summary and detail totals
// to the Balance Sheet AR total.
type ARSubledgerReconciles struct{}

func (ARSubledgerReconciles) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-AR-SUBLEDGER-RECONCILES",
		Title:                  "Aged Receivables Detail reconciles to Balance Sheet",
		BestPracticesReference: "Accounts Payable/Receivable",
		Sources:                []string{"QBO"},
		NewConfig:              func() any { cfg := defaultSubledgerConfig(arSide); return &cfg },
	}
}

func (r ARSubledgerReconciles) Evaluate(ctx *engine.Context) (model.Result, error) {
	return evaluateSubledger(ctx, r.Info(), arSide)
}
