package rules

import (
	"fmt"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// WorkingPaperConfig configures BS-WORKING-PAPER-RECONCILES.
type WorkingPaperConfig struct {
	config.Base

	// NamePatterns select the Balance Sheet lines supported by working
	// papers (prepaid amortization, deferred revenue, accrual schedules).
	NamePatterns []string `json:"name_patterns,omitempty" schema:"type:list,description:Name substrings identifying working-paper-backed accounts,category:basic"`

	// EvidenceType names the working-paper balance evidence. Multiple items
	// map to accounts via meta.account_name_match.
	EvidenceType string `json:"evidence_type" schema:"type:string,description:Evidence type carrying working paper balances,category:advanced,default:working_paper_balance"`

	RequireEvidenceAsOfDateMatchPeriodEnd bool `json:"require_evidence_as_of_date_match_period_end" schema:"type:bool,description:Require working papers to be as of period end,category:advanced,default:true"`
}

// DefaultWorkingPaperConfig returns the rule defaults.
func DefaultWorkingPaperConfig() WorkingPaperConfig {
	return WorkingPaperConfig{
		Base:                                  config.DefaultBase(),
		NamePatterns:                          []string{"prepaid", "deferred revenue", "accrual"},
		EvidenceType:                          "working_paper_balance",
		RequireEvidenceAsOfDateMatchPeriodEnd: true,
	}
}

// WorkingPaperReconciles ties working-paper-backed Balance Sheet lines to
// their external schedule balances.
type WorkingPaperReconciles struct{}

func (WorkingPaperReconciles) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-WORKING-PAPER-RECONCILES",
		Title:                  "Working paper balances reconcile to Balance Sheet",
		BestPracticesReference: "Prepayments/Deferred Revenue/Accruals",
		Sources:                []string{"Working papers (schedules)", "QBO (Balance Sheet)"},
		NewConfig:              func() any { cfg := DefaultWorkingPaperConfig(); return &cfg },
	}
}

func (r WorkingPaperReconciles) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultWorkingPaperConfig()
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

	var inScope []model.AccountBalance
	for _, acct := range ctx.BalanceSheet.Accounts {
		if acct.IsLeaf() && acct.Name != "" && matchesAny(acct.Name, cfg.NamePatterns) {
			inScope = append(inScope, acct)
		}
	}
	if len(inScope) == 0 {
		return newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"No in-scope working paper accounts found as of %s.", dates.Format(ctx.PeriodEnd))), nil
	}

	evidenceItems := ctx.Evidence.All(cfg.EvidenceType)
	if len(evidenceItems) == 0 {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Missing working paper balances for %s; cannot verify.", dates.Format(ctx.PeriodEnd)))
		res.HumanAction = "Provide the working paper balances as of period end."
		return res, nil
	}
	if cfg.RequireEvidenceAsOfDateMatchPeriodEnd {
		for _, item := range evidenceItems {
			if !asOfMatches(item, ctx.PeriodEnd) {
				res := newResult(info, model.StatusNeedsReview,
					"Working paper as-of date is missing or does not match period end; cannot verify.")
				res.EvidenceUsed = []model.EvidenceItem{item}
				res.HumanAction = "Provide working paper balances as of the period end date."
				return res, nil
			}
		}
	}

	if len(inScope) > 1 && len(evidenceItems) == 1 {
		res := newResult(info, model.StatusNeedsReview,
			"Multiple in-scope accounts but only one working paper balance provided; cannot verify.")
		for _, acct := range inScope {
			values := statusValues(model.StatusNeedsReview)
			values["account_name"] = acct.Name
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			res.Details = append(res.Details, model.Detail{
				Key:     acct.AccountRef,
				Message: "In-scope account without clear working paper match.",
				Values:  values,
			})
		}
		res.EvidenceUsed = evidenceItems
		res.HumanAction = "Provide account-specific working paper balances or map by account name."
		return res, nil
	}

	var (
		details      []model.Detail
		evidenceUsed []model.EvidenceItem
		failures     int
	)
	for _, acct := range inScope {
		matched, ok := matchWorkingPaper(evidenceItems, acct.Name)
		if !ok || !matched.Amount.Valid {
			res := newResult(info, model.StatusNeedsReview,
				"Missing working paper balance for an in-scope account; cannot verify.")
			values := statusValues(model.StatusNeedsReview)
			values["account_name"] = acct.Name
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			res.Details = []model.Detail{{
				Key:     acct.AccountRef,
				Message: "Working paper balance missing for account.",
				Values:  values,
			}}
			res.EvidenceUsed = evidenceItems
			res.HumanAction = "Provide a working paper balance for the in-scope account."
			return res, nil
		}

		evidenceUsed = append(evidenceUsed, matched)
		bsQ := money.Quantize(acct.Balance, inc)
		evidenceQ := money.Quantize(matched.Amount.Decimal, inc)
		diff := bsQ.Sub(evidenceQ).Abs()

		status := model.StatusPass
		if !diff.IsZero() {
			status = model.StatusFail
			failures++
		}
		values := statusValues(status)
		values["account_name"] = acct.Name
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["bs_balance"] = decStr(bsQ)
		values["working_paper_balance"] = decStr(evidenceQ)
		values["difference"] = decStr(diff)
		values["evidence_type"] = cfg.EvidenceType
		values["evidence_as_of_date"] = dates.Format(matched.AsOfDate)
		values["working_paper_uri"] = matched.URI
		details = append(details, model.Detail{
			Key:     acct.AccountRef,
			Message: "Working paper balance compared to Balance Sheet.",
			Values:  values,
		})
	}

	status := model.StatusPass
	summary := fmt.Sprintf("Working paper balances reconcile to Balance Sheet as of %s.", dates.Format(ctx.PeriodEnd))
	if failures > 0 {
		status = model.StatusFail
		summary = fmt.Sprintf("Working paper balances do not match Balance Sheet for %d account(s).", failures)
	}
	res := newResult(info, status, summary)
	res.Details = details
	res.EvidenceUsed = evidenceUsed
	if failures > 0 {
		res.HumanAction = "Reconcile working paper balances to the Balance Sheet and document adjustments."
	}
	return res, nil
}

// matchWorkingPaper pairs an account with its working-paper item: a single
// item serves a single account, otherwise items map by
// meta.account_name_match substring.
func matchWorkingPaper(items []model.EvidenceItem, accountName string) (model.EvidenceItem, bool) {
	if len(items) == 1 {
		return items[0], true
	}
	for _, item := range items {
		match := item.MetaString("account_name_match")
		if match != "" && containsFold(accountName, match) {
			return item, true
		}
	}
	return model.EvidenceItem{}, false
}
