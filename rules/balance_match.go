package rules

import (
	"fmt"

	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// BalanceMatchConfig configures the loan/investment balance-match rules.
type BalanceMatchConfig struct {
	NamedAccountConfig

	// EvidenceType names the external schedule/statement balance evidence.
	EvidenceType string `json:"evidence_type,omitempty" schema:"type:string,description:Evidence type carrying the external balance,category:advanced"`

	RequireEvidenceAsOfDateMatchPeriodEnd bool `json:"require_evidence_as_of_date_match_period_end" schema:"type:bool,description:Require the external balance to be as of period end,category:advanced,default:true"`
}

// balanceMatchSpec parameterizes the shared single-account tie-out for the
// loan and investment variants.
type balanceMatchSpec struct {
	subject         string // "Loan" / "Investment"
	externalLabel   string // "schedule" / "statement"
	balanceValueKey string // "schedule_balance" / "statement_balance"
	defaultMatch    string
	defaultEvidence string
	mismatchAction  string
}

var loanMatchSpec = balanceMatchSpec{
	subject:         "Loan",
	externalLabel:   "schedule",
	balanceValueKey: "schedule_balance",
	defaultMatch:    "loan",
	defaultEvidence: "loan_schedule_balance",
	mismatchAction:  "Verify the loan schedule balance (principal only if applicable) and reconcile QBO.",
}

var investmentMatchSpec = balanceMatchSpec{
	subject:         "Investment",
	externalLabel:   "statement",
	balanceValueKey: "statement_balance",
	defaultMatch:    "investment",
	defaultEvidence: "investment_statement_balance",
	mismatchAction:  "Confirm the statement basis (cost vs market) and reconcile QBO if it should match.",
}

func defaultBalanceMatchConfig(spec balanceMatchSpec) BalanceMatchConfig {
	return BalanceMatchConfig{
		NamedAccountConfig:                    DefaultNamedAccountConfig(),
		EvidenceType:                          spec.defaultEvidence,
		RequireEvidenceAsOfDateMatchPeriodEnd: true,
	}
}

// evaluateBalanceMatch ties one Balance Sheet account to an external
// schedule/statement balance: exact match passes, anything else fails, and
// any ambiguity or missing evidence needs review.
func evaluateBalanceMatch(ctx *engine.Context, info engine.Info, spec balanceMatchSpec) (model.Result, error) {
	cfg := defaultBalanceMatchConfig(spec)
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

	accounts, usedInference, refMissing := locateNamedAccounts(ctx, cfg.NamedAccountConfig, spec.defaultMatch)
	if refMissing {
		res := newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"%s account not found in Balance Sheet snapshot as of %s.", spec.subject, dates.Format(ctx.PeriodEnd)))
		values := statusValues(model.StatusNotApplicable)
		values["account_name"] = cfg.AccountName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		res.Details = []model.Detail{{
			Key:     cfg.AccountRef,
			Message: "Account not found in balance sheet snapshot.",
			Values:  values,
		}}
		res.HumanAction = fmt.Sprintf(
			"Confirm whether the %s exists in QBO and map the correct %s account.",
			lowerFirst(spec.subject), lowerFirst(spec.subject))
		return res, nil
	}
	if len(accounts) == 0 {
		res := newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"No %s account found as of %s.", lowerFirst(spec.subject), dates.Format(ctx.PeriodEnd)))
		res.HumanAction = fmt.Sprintf(
			"Configure the %s account ref or name match to enable this rule.", lowerFirst(spec.subject))
		return res, nil
	}
	if len(accounts) > 1 {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Multiple %s accounts matched for %s; cannot verify.", lowerFirst(spec.subject), dates.Format(ctx.PeriodEnd)))
		for _, acct := range accounts {
			values := statusValues(model.StatusNeedsReview)
			values["account_name"] = acct.name
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			values["inferred_by_name_match"] = true
			res.Details = append(res.Details, model.Detail{
				Key:     acct.ref,
				Message: fmt.Sprintf("Multiple %s accounts matched by name inference.", lowerFirst(spec.subject)),
				Values:  values,
			})
		}
		res.HumanAction = fmt.Sprintf(
			"Configure a specific %s account ref to evaluate this rule.", lowerFirst(spec.subject))
		return res, nil
	}
	account := accounts[0]

	item, found := ctx.Evidence.First(cfg.EvidenceType)
	if !found || !item.Amount.Valid {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Missing %s %s balance for %s; cannot verify.",
			lowerFirst(spec.subject), spec.externalLabel, dates.Format(ctx.PeriodEnd)))
		if found {
			res.EvidenceUsed = []model.EvidenceItem{item}
		}
		res.HumanAction = fmt.Sprintf(
			"Request/attach the %s %s (or extracted balance) as of period end.",
			lowerFirst(spec.subject), spec.externalLabel)
		return res, nil
	}
	if cfg.RequireEvidenceAsOfDateMatchPeriodEnd && !asOfMatches(item, ctx.PeriodEnd) {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"%s %s as-of date is missing or does not match period end; cannot verify.",
			spec.subject, spec.externalLabel))
		res.EvidenceUsed = []model.EvidenceItem{item}
		res.HumanAction = fmt.Sprintf(
			"Provide a %s %s as of the period end date.", lowerFirst(spec.subject), spec.externalLabel)
		return res, nil
	}

	bsQ := money.Quantize(account.balance.Balance, inc)
	evidenceQ := money.Quantize(item.Amount.Decimal, inc)
	diff := bsQ.Sub(evidenceQ).Abs()

	status := model.StatusPass
	summary := fmt.Sprintf("%s balance matches the %s as of %s.",
		spec.subject, spec.externalLabel, dates.Format(ctx.PeriodEnd))
	if !diff.IsZero() {
		status = model.StatusFail
		summary = fmt.Sprintf("%s balance does not match the %s as of %s (diff %s).",
			spec.subject, spec.externalLabel, dates.Format(ctx.PeriodEnd), decStr(diff))
	}

	values := statusValues(status)
	values["account_name"] = account.name
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["bs_balance"] = decStr(bsQ)
	values[spec.balanceValueKey] = decStr(evidenceQ)
	values["difference"] = decStr(diff)
	values["evidence_type"] = cfg.EvidenceType
	values["evidence_as_of_date"] = dates.Format(item.AsOfDate)
	values["inferred_by_name_match"] = usedInference

	res := newResult(info, status, summary)
	res.Details = []model.Detail{{
		Key:     account.ref,
		Message: fmt.Sprintf("%s balance compared to %s.", spec.subject, spec.externalLabel),
		Values:  values,
	}}
	res.EvidenceUsed = []model.EvidenceItem{item}
	if status != model.StatusPass {
		res.HumanAction = spec.mismatchAction
	}
	return res, nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]|0x20) + s[1:]
}

// LoanBalanceMatch ties a loan account to its amortization-schedule balance.
type LoanBalanceMatch struct{}

func (LoanBalanceMatch) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-LOAN-BALANCE-MATCH",
		Title:                  "Loan balance matches QBO and loan schedule",
		BestPracticesReference: "Loans/investments schedules or statements should be available and reconciled monthly",
		Sources:                []string{"Google Drive (loan schedule)", "QBO (Balance Sheet)"},
		NewConfig:              func() any { cfg := defaultBalanceMatchConfig(loanMatchSpec); return &cfg },
	}
}

func (r LoanBalanceMatch) Evaluate(ctx *engine.Context) (model.Result, error) {
	return evaluateBalanceMatch(ctx, r.Info(), loanMatchSpec)
}

// InvestmentBalanceMatch ties an investment account to its statement balance.
type InvestmentBalanceMatch struct{}

func (InvestmentBalanceMatch) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-INVESTMENT-BALANCE-MATCH",
		Title:                  "Investment balance matches QBO and statement",
		BestPracticesReference: "Loans/investments schedules or statements should be available and reconciled monthly",
		Sources:                []string{"Google Drive (investment statement)", "QBO (Balance Sheet)"},
		NewConfig:              func() any { cfg := defaultBalanceMatchConfig(investmentMatchSpec); return &cfg },
	}
}

func (r InvestmentBalanceMatch) Evaluate(ctx *engine.Context) (model.Result, error) {
	return evaluateBalanceMatch(ctx, r.Info(), investmentMatchSpec)
}
