package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// IntercompanyConfig configures the two intercompany reconciliation rules.
type IntercompanyConfig struct {
	config.Base

	// NamePatterns select intercompany accounts by name substring.
	NamePatterns []string `json:"name_patterns,omitempty" schema:"type:list,description:Name substrings identifying intercompany accounts,category:basic"`

	// EvidenceType names the counterpart balance-sheet evidence with
	// meta.items[] of {counterparty, balance}.
	EvidenceType string `json:"evidence_type" schema:"type:string,description:Evidence type carrying counterpart balances,category:advanced,default:intercompany_balance_sheet"`

	// NonZeroOnly skips intercompany accounts with a zero balance.
	NonZeroOnly bool `json:"non_zero_only" schema:"type:bool,description:Skip intercompany accounts with a zero balance,category:advanced,default:true"`

	RequireEvidenceAsOfDateMatchPeriodEnd bool `json:"require_evidence_as_of_date_match_period_end" schema:"type:bool,description:Require counterpart evidence to be as of period end,category:advanced,default:true"`
}

// intercompanySpec parameterizes the shared evaluation for the narrow
// (AP/AR due-to/due-from) and broad (loans) variants.
type intercompanySpec struct {
	subject         string // "Intercompany balance" / "Intercompany loan balance"
	summaryKey      string
	defaultPatterns []string
}

var apArIntercompanySpec = intercompanySpec{
	subject:    "Intercompany balance",
	summaryKey: "intercompany_summary",
	defaultPatterns: []string{
		"due to", "due from", "intercompany", "inter-company",
	},
}

var loanIntercompanySpec = intercompanySpec{
	subject:    "Intercompany loan balance",
	summaryKey: "intercompany_loan_summary",
	defaultPatterns: []string{
		"due to", "due from", "intercompany", "inter-company",
		"intercompany loan", "loan from", "loan to", "shareholder loan",
	},
}

func defaultIntercompanyConfig(spec intercompanySpec) IntercompanyConfig {
	return IntercompanyConfig{
		Base:                                  config.DefaultBase(),
		NamePatterns:                          spec.defaultPatterns,
		EvidenceType:                          "intercompany_balance_sheet",
		NonZeroOnly:                           true,
		RequireEvidenceAsOfDateMatchPeriodEnd: true,
	}
}

type intercompanyMismatch struct {
	AccountName         string `json:"account_name"`
	Balance             string `json:"balance"`
	Counterparty        string `json:"counterparty"`
	CounterpartyBalance any    `json:"counterparty_balance"`
	Reason              string `json:"reason"`
}

// evaluateIntercompany matches intercompany accounts against counterpart
// balance-sheet evidence. The counterparty is inferred from the account-name
// remainder after the matched pattern; amounts compare on absolute value
// since the two companies carry opposite signs.
func evaluateIntercompany(ctx *engine.Context, info engine.Info, spec intercompanySpec) (model.Result, error) {
	cfg := defaultIntercompanyConfig(spec)
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

	patterns := make([]string, 0, len(cfg.NamePatterns))
	for _, p := range cfg.NamePatterns {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}

	var matched []model.AccountBalance
	for _, acct := range ctx.BalanceSheet.Accounts {
		if !acct.IsLeaf() || !matchesAny(acct.Name, patterns) {
			continue
		}
		if cfg.NonZeroOnly && acct.Balance.IsZero() {
			continue
		}
		matched = append(matched, acct)
	}
	if len(matched) == 0 {
		return newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"No %ss found as of %s.", strings.ToLower(spec.subject), dates.Format(ctx.PeriodEnd))), nil
	}

	item, found := ctx.Evidence.First(cfg.EvidenceType)
	if !found {
		res := newResult(info, missingStatus, fmt.Sprintf(
			"%ss detected but no counterpart Balance Sheet evidence provided for %s.",
			spec.subject, dates.Format(ctx.PeriodEnd)))
		res.HumanAction = "Provide counterpart company Balance Sheet evidence for intercompany balances."
		return res, nil
	}
	if cfg.RequireEvidenceAsOfDateMatchPeriodEnd && !asOfMatches(item, ctx.PeriodEnd) {
		res := newResult(info, missingStatus,
			"Counterpart Balance Sheet evidence date missing or does not match period end; cannot verify.")
		res.EvidenceUsed = []model.EvidenceItem{item}
		res.HumanAction = "Provide counterpart Balance Sheets as of period end."
		return res, nil
	}

	counterpartItems, ok := item.MetaItems()
	if !ok {
		res := newResult(info, missingStatus,
			"Counterpart Balance Sheet evidence missing items; cannot verify.")
		res.EvidenceUsed = []model.EvidenceItem{item}
		res.HumanAction = "Provide intercompany balances from counterpart Balance Sheets."
		return res, nil
	}

	counterpartMap := make(map[string]decimal.Decimal, len(counterpartItems))
	for _, entry := range counterpartItems {
		counterparty := strings.TrimSpace(firstStringOf(entry, "counterparty", "company"))
		amt := money.ParseAny(entry["balance"])
		if counterparty == "" || !amt.Valid {
			continue
		}
		counterpartMap[strings.ToLower(counterparty)] = amt.Decimal
	}

	var (
		mismatches []intercompanyMismatch
		details    []model.Detail
	)
	for _, acct := range matched {
		balQ := money.Quantize(acct.Balance, inc)
		counterparty := extractCounterparty(acct.Name, patterns)
		cpBalance, cpFound := counterpartMap[strings.ToLower(counterparty)]

		accountMismatched := false
		switch {
		case !cpFound:
			accountMismatched = true
			mismatches = append(mismatches, intercompanyMismatch{
				AccountName:  acct.Name,
				Balance:      decStr(balQ),
				Counterparty: counterparty,
				Reason:       "missing_counterparty_balance",
			})
		default:
			cpQ := money.Quantize(cpBalance, inc)
			if !balQ.Abs().Equal(cpQ.Abs()) {
				accountMismatched = true
				mismatches = append(mismatches, intercompanyMismatch{
					AccountName:         acct.Name,
					Balance:             decStr(balQ),
					Counterparty:        counterparty,
					CounterpartyBalance: decStr(cpQ),
					Reason:              "amount_mismatch",
				})
			}
		}

		detailStatus := model.StatusPass
		if accountMismatched {
			detailStatus = model.StatusNeedsReview
		}
		values := statusValues(detailStatus)
		values["account_name"] = acct.Name
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["balance"] = decStr(balQ)
		values["counterparty"] = counterparty
		if cpFound {
			values["counterparty_balance"] = decStr(cpBalance)
		} else {
			values["counterparty_balance"] = nil
		}
		details = append(details, model.Detail{
			Key:     acct.AccountRef,
			Message: fmt.Sprintf("%s evaluated.", spec.subject),
			Values:  values,
		})
	}

	status := model.StatusPass
	summary := fmt.Sprintf("%ss match counterpart Balance Sheets as of %s.",
		spec.subject, dates.Format(ctx.PeriodEnd))
	if len(mismatches) > 0 {
		status = model.StatusNeedsReview
		summary = fmt.Sprintf("%ss require review (missing or mismatched counterpart balances).", spec.subject)
	}

	summaryValues := statusValues(status)
	summaryValues["period_end"] = dates.Format(ctx.PeriodEnd)
	summaryValues["mismatch_count"] = len(mismatches)
	if len(mismatches) > 25 {
		summaryValues["mismatches"] = mismatches[:25]
	} else {
		summaryValues["mismatches"] = mismatches
	}
	details = append(details, model.Detail{
		Key:     spec.summaryKey,
		Message: fmt.Sprintf("%s comparison summary.", spec.subject),
		Values:  summaryValues,
	})

	res := newResult(info, status, summary)
	res.Details = details
	res.EvidenceUsed = []model.EvidenceItem{item}
	if status != model.StatusPass {
		res.HumanAction = "Confirm counterpart balances and reconcile intercompany accounts."
	}
	return res, nil
}

// extractCounterparty takes the account-name remainder after the first
// matched pattern ("Due from Alpha Holdings" → "Alpha Holdings"). When no
// remainder exists the full name is the best available key.
func extractCounterparty(name string, patterns []string) string {
	lowered := strings.ToLower(name)
	for _, p := range patterns {
		idx := strings.Index(lowered, strings.ToLower(p))
		if idx < 0 {
			continue
		}
		candidate := strings.TrimSpace(name[idx+len(p):])
		if candidate != "" {
			return candidate
		}
	}
	return name
}

// APARIntercompanyOrShareholderPaid identifies due-to/due-from and
// intercompany positions on the Balance Sheet and ties each to the
// counterpart company's reported balance.
type APARIntercompanyOrShareholderPaid struct{}

func (APARIntercompanyOrShareholderPaid) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-AP-AR-INTERCOMPANY-OR-SHAREHOLDER-PAID",
		Title:                  "Intercompany/shareholder-paid balances identified",
		BestPracticesReference: "Accounts Payable/Receivable",
		Sources:                []string{"QBO (Balance Sheet)"},
		NewConfig:              func() any { cfg := defaultIntercompanyConfig(apArIntercompanySpec); return &cfg },
	}
}

func (r APARIntercompanyOrShareholderPaid) Evaluate(ctx *engine.Context) (model.Result, error) {
	return evaluateIntercompany(ctx, r.Info(), apArIntercompanySpec)
}

// IntercompanyBalancesReconcile covers the broader loan-oriented account
// population (intercompany loans, shareholder loans, loan to/from).
type IntercompanyBalancesReconcile struct{}

func (IntercompanyBalancesReconcile) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-INTERCOMPANY-BALANCES-RECONCILE",
		Title:                  "Intercompany loan balances reconcile across related companies",
		BestPracticesReference: "Intercompany Loans",
		Sources:                []string{"QBO (Balance Sheet)", "Counterparty Balance Sheets"},
		NewConfig:              func() any { cfg := defaultIntercompanyConfig(loanIntercompanySpec); return &cfg },
	}
}

func (r IntercompanyBalancesReconcile) Evaluate(ctx *engine.Context) (model.Result, error) {
	return evaluateIntercompany(ctx, r.Info(), loanIntercompanySpec)
}
