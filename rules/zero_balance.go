package rules

import (
	"fmt"
	"strings"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// defaultCurrentAssetTypes are the account types that mark a clearing
// account as sales-side (interim cash/receivable positions).
var defaultCurrentAssetTypes = []string{
	"Bank",
	"Accounts Receivable",
	"Other Current Asset",
	"Cash and Cash Equivalents",
}

// ZeroBalanceConfig configures the zero-balance rules (Undeposited Funds and
// clearing accounts).
type ZeroBalanceConfig struct {
	config.Base

	// Accounts is the explicit scope, optionally with per-account
	// tolerances. Preferred over name inference.
	Accounts []config.AccountOverride `json:"accounts,omitempty" schema:"type:list,description:Accounts to evaluate with optional per-account tolerances,category:basic"`

	// DefaultThreshold is the tolerance applied when an account has no
	// override.
	DefaultThreshold config.VarianceThreshold `json:"default_threshold" schema:"type:object,description:Tolerance applied when no per-account override exists,category:basic"`

	// AllowNameInference permits falling back to case-insensitive name
	// matching when no accounts are configured.
	AllowNameInference bool `json:"allow_name_inference" schema:"type:bool,description:Infer scope by account-name substring when unconfigured,category:advanced,default:false"`

	// CurrentAssetTypes restricts name-inferred clearing accounts to
	// sales-side account types.
	CurrentAssetTypes []string `json:"current_asset_types,omitempty" schema:"type:list,description:Account types treated as sales-side current assets,category:advanced"`

	// UnconfiguredThresholdPolicy is the status for a non-zero balance when
	// no tolerance was configured at all.
	UnconfiguredThresholdPolicy model.Status `json:"unconfigured_threshold_policy" schema:"type:string,description:Status for a non-zero balance with no configured tolerance,category:advanced,default:NEEDS_REVIEW"`
}

// DefaultZeroBalanceConfig returns the shared defaults for zero-balance
// rules.
func DefaultZeroBalanceConfig() ZeroBalanceConfig {
	return ZeroBalanceConfig{
		Base:                        config.DefaultBase(),
		CurrentAssetTypes:           defaultCurrentAssetTypes,
		UnconfiguredThresholdPolicy: model.StatusNeedsReview,
	}
}

// Validate checks the payload on top of the base checks.
func (c ZeroBalanceConfig) Validate() error {
	if err := c.Base.Validate(); err != nil {
		return err
	}
	if !c.UnconfiguredThresholdPolicy.IsValid() {
		return fmt.Errorf("unconfigured_threshold_policy %q is not a valid status", c.UnconfiguredThresholdPolicy)
	}
	return nil
}

// zeroBalanceSpec parameterizes the shared zero-balance evaluation for the
// two rules that use it.
type zeroBalanceSpec struct {
	// accountLabel names the account kind in summaries ("Undeposited
	// Funds", "Clearing account").
	accountLabel string

	// inferSubstring is the name fragment used for inference.
	inferSubstring string

	// requireCurrentAssetType gates inferred accounts on the configured
	// current-asset types; accounts without type data then need review.
	requireCurrentAssetType bool

	detailMessage string
}

// evaluateZeroBalance runs the shared engine: explicit accounts (or inferred
// by name), exact-zero pass, tolerance WARN/FAIL, unconfigured-threshold
// policy, worst-wins across accounts.
func evaluateZeroBalance(ctx *engine.Context, info engine.Info, spec zeroBalanceSpec) (model.Result, error) {
	cfg := DefaultZeroBalanceConfig()
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

	var (
		accountsToEval    []config.AccountOverride
		usedNameInference bool
		typeUnknownRefs   []config.AccountOverride
	)
	switch {
	case len(cfg.Accounts) > 0:
		accountsToEval = cfg.Accounts
	case cfg.AllowNameInference:
		usedNameInference = true
		for _, acct := range ctx.BalanceSheet.Accounts {
			if !acct.IsLeaf() || !containsFold(acct.Name, spec.inferSubstring) {
				continue
			}
			override := config.AccountOverride{AccountRef: acct.AccountRef, AccountName: acct.Name}
			if spec.requireCurrentAssetType {
				if acct.Type == "" {
					typeUnknownRefs = append(typeUnknownRefs, override)
					continue
				}
				if !typeInList(acct.Type, cfg.CurrentAssetTypes) {
					continue
				}
			}
			accountsToEval = append(accountsToEval, override)
		}
	}

	if len(accountsToEval) == 0 && len(typeUnknownRefs) == 0 {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"No %s account(s) configured for period end %s.", spec.accountLabel, dates.Format(ctx.PeriodEnd)))
		res.HumanAction = fmt.Sprintf(
			"Configure %s account refs for this client and set acceptable variances per account (recommended).",
			spec.accountLabel)
		return res, nil
	}

	revenueTotal := ctx.RevenueTotal()
	defaultThresholdConfigured := cfg.DefaultThreshold.IsConfigured()
	hasAnyThreshold := defaultThresholdConfigured
	for _, acct := range accountsToEval {
		if acct.Threshold != nil {
			hasAnyThreshold = true
		}
	}

	var (
		statuses []model.Status
		details  []model.Detail
	)
	for _, acct := range typeUnknownRefs {
		statuses = append(statuses, model.StatusNeedsReview)
		values := statusValues(model.StatusNeedsReview)
		values["account_name"] = acct.AccountName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		details = append(details, model.Detail{
			Key:     acct.AccountRef,
			Message: "Account missing type data; cannot confirm it belongs to the inferred scope.",
			Values:  values,
		})
	}

	for _, acctCfg := range accountsToEval {
		bal := ctx.AccountBalance(acctCfg.AccountRef)
		if !bal.Valid {
			statuses = append(statuses, missingStatus)
			values := statusValues(missingStatus)
			values["account_name"] = acctCfg.AccountName
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			details = append(details, model.Detail{
				Key:     acctCfg.AccountRef,
				Message: "Account not found in balance sheet snapshot.",
				Values:  values,
			})
			continue
		}

		threshold := cfg.DefaultThreshold
		if acctCfg.Threshold != nil {
			threshold = *acctCfg.Threshold
		}
		thresholdConfigured := defaultThresholdConfigured || acctCfg.Threshold != nil
		allowed := money.AllowedVariance(threshold.FloorAmount, threshold.PctOfRevenue, revenueTotal)
		balQ := money.Quantize(bal.Decimal, inc)
		absBal := balQ.Abs()
		allowedQ := money.Quantize(allowed, inc)

		var status model.Status
		switch {
		case absBal.IsZero():
			status = model.StatusPass
		case !thresholdConfigured:
			status = cfg.UnconfiguredThresholdPolicy
		case absBal.LessThanOrEqual(allowedQ):
			status = model.StatusWarn
		default:
			status = model.StatusFail
		}

		statuses = append(statuses, status)
		values := statusValues(status)
		values["account_name"] = acctCfg.AccountName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["balance"] = decStr(balQ)
		values["abs_balance"] = decStr(absBal)
		values["allowed_variance"] = decStr(allowedQ)
		values["revenue_total"] = nullDecStr(revenueTotal)
		values["threshold_floor_amount"] = decStr(threshold.FloorAmount)
		values["threshold_pct_of_revenue"] = decStr(threshold.PctOfRevenue)
		values["threshold_configured"] = thresholdConfigured
		values["inferred_by_name_match"] = usedNameInference
		details = append(details, model.Detail{
			Key:     acctCfg.AccountRef,
			Message: spec.detailMessage,
			Values:  values,
		})
	}

	overall := model.WorstStatus(statuses...)
	res := newResult(info, overall, zeroBalanceSummary(ctx, spec, overall, len(accountsToEval), details))
	res.Details = details
	if overall == model.StatusWarn || overall == model.StatusFail || overall == model.StatusNeedsReview {
		action := fmt.Sprintf(
			"Verify %s activity near period end and explain any non-zero balances; adjust tolerances per account if warranted.",
			spec.accountLabel)
		if !hasAnyThreshold {
			action += " Note: no acceptable variance was configured; set thresholds (floor and/or % of revenue)."
		}
		if usedNameInference {
			action += fmt.Sprintf(" Note: accounts were inferred by name match (%q).", spec.inferSubstring)
		}
		res.HumanAction = action
	}
	return res, nil
}

func zeroBalanceSummary(ctx *engine.Context, spec zeroBalanceSpec, overall model.Status, n int, details []model.Detail) string {
	exemplar := exemplarDetail(details, overall)
	switch overall {
	case model.StatusPass:
		return fmt.Sprintf("All %d %s account(s) are exactly zero as of %s.", n, spec.accountLabel, dates.Format(ctx.PeriodEnd))
	case model.StatusWarn:
		if exemplar != nil {
			return fmt.Sprintf("%s '%v' is non-zero (%v) as of %s (%v allowed); verify.",
				spec.accountLabel, exemplar.Values["account_name"], exemplar.Values["balance"],
				dates.Format(ctx.PeriodEnd), exemplar.Values["allowed_variance"])
		}
	case model.StatusFail:
		if exemplar != nil {
			return fmt.Sprintf("%s '%v' exceeds allowed variance (%v vs %v) as of %s.",
				spec.accountLabel, exemplar.Values["account_name"], exemplar.Values["balance"],
				exemplar.Values["allowed_variance"], dates.Format(ctx.PeriodEnd))
		}
	case model.StatusNeedsReview:
		return fmt.Sprintf("Missing data prevented evaluation for one or more accounts as of %s.", dates.Format(ctx.PeriodEnd))
	}
	if overall == model.StatusWarn || overall == model.StatusFail {
		return fmt.Sprintf("%s balance requires attention as of %s.", spec.accountLabel, dates.Format(ctx.PeriodEnd))
	}
	return "Not applicable."
}

func typeInList(accountType string, types []string) bool {
	for _, t := range types {
		if strings.EqualFold(accountType, t) {
			return true
		}
	}
	return false
}

// UndepositedFundsZero verifies the Undeposited Funds interim account nets
// to zero at period end, within any configured tolerance.
type UndepositedFundsZero struct{}

func (UndepositedFundsZero) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-UNDEPOSITED-FUNDS-ZERO",
		Title:                  "Undeposited Funds should be zero at period end",
		BestPracticesReference: "Bank reconciliations",
		Sources:                []string{"QBO"},
		NewConfig:              func() any { cfg := DefaultZeroBalanceConfig(); return &cfg },
	}
}

func (r UndepositedFundsZero) Evaluate(ctx *engine.Context) (model.Result, error) {
	return evaluateZeroBalance(ctx, r.Info(), zeroBalanceSpec{
		accountLabel:   "Undeposited Funds",
		inferSubstring: "undeposited",
		detailMessage:  "Undeposited Funds balance evaluated.",
	})
}

// ClearingAccountsZero verifies sales-side clearing accounts net to zero at
// period end, within any configured tolerance. Name-inferred accounts must
// carry a sales-side current-asset type; typeless candidates need review.
type ClearingAccountsZero struct{}

func (ClearingAccountsZero) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-CLEARING-ACCOUNTS-ZERO",
		Title:                  "Clearing accounts should be zero at period end",
		BestPracticesReference: "Clearing accounts (a $0 balance)",
		Sources:                []string{"QBO"},
		NewConfig:              func() any { cfg := DefaultZeroBalanceConfig(); return &cfg },
	}
}

func (r ClearingAccountsZero) Evaluate(ctx *engine.Context) (model.Result, error) {
	return evaluateZeroBalance(ctx, r.Info(), zeroBalanceSpec{
		accountLabel:            "Clearing account",
		inferSubstring:          "clearing",
		requireCurrentAssetType: true,
		detailMessage:           "Clearing account balance evaluated.",
	})
}
