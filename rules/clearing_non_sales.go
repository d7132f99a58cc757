package rules

import (
	"fmt"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// NonSalesClearingConfig configures BS-CLEARING-ACCOUNTS-NON-SALES-ZERO.
type NonSalesClearingConfig struct {
	config.Base

	// NamePatterns select clearing accounts by name substring.
	NamePatterns []string `json:"name_patterns,omitempty" schema:"type:list,description:Name substrings identifying clearing accounts,category:basic"`

	// CurrentAssetTypes are the sales-side types excluded from this rule;
	// accounts of any other type are the non-sales scope.
	CurrentAssetTypes []string `json:"current_asset_types,omitempty" schema:"type:list,description:Account types treated as sales-side current assets,category:advanced"`
}

// DefaultNonSalesClearingConfig returns the rule defaults.
func DefaultNonSalesClearingConfig() NonSalesClearingConfig {
	return NonSalesClearingConfig{
		Base:              config.DefaultBase(),
		NamePatterns:      []string{"clearing"},
		CurrentAssetTypes: defaultCurrentAssetTypes,
	}
}

// ClearingAccountsNonSalesZero checks clearing accounts that sit outside the
// sales-side current-asset types. Those have no tolerance: any non-zero
// balance at period end fails.
type ClearingAccountsNonSalesZero struct{}

func (ClearingAccountsNonSalesZero) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-CLEARING-ACCOUNTS-NON-SALES-ZERO",
		Title:                  "Non-sales clearing accounts should be zero at period end",
		BestPracticesReference: "Clearing accounts (non-sales)",
		Sources:                []string{"QBO"},
		NewConfig:              func() any { cfg := DefaultNonSalesClearingConfig(); return &cfg },
	}
}

func (r ClearingAccountsNonSalesZero) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultNonSalesClearingConfig()
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

	var clearingAccounts []model.AccountBalance
	for _, acct := range ctx.BalanceSheet.Accounts {
		if acct.IsLeaf() && acct.Name != "" && matchesAny(acct.Name, cfg.NamePatterns) {
			clearingAccounts = append(clearingAccounts, acct)
		}
	}
	if len(clearingAccounts) == 0 {
		return newResult(info, model.StatusNotApplicable, "No clearing accounts found on Balance Sheet."), nil
	}

	var (
		statuses []model.Status
		details  []model.Detail
		nonSales []model.AccountBalance
	)
	for _, acct := range clearingAccounts {
		if acct.Type == "" {
			statuses = append(statuses, missingStatus)
			values := statusValues(missingStatus)
			values["account_name"] = acct.Name
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			details = append(details, model.Detail{
				Key:     acct.AccountRef,
				Message: "Clearing account missing account type; cannot classify sales vs non-sales.",
				Values:  values,
			})
			continue
		}
		if typeInList(acct.Type, cfg.CurrentAssetTypes) {
			continue
		}
		nonSales = append(nonSales, acct)
	}

	if len(nonSales) == 0 {
		overall := model.WorstStatus(statuses...)
		summary := "No non-sales clearing accounts found on Balance Sheet."
		if overall != model.StatusNotApplicable {
			summary = "Missing data prevented evaluation of non-sales clearing accounts."
		}
		res := newResult(info, overall, summary)
		res.Details = details
		if overall == missingStatus && overall != model.StatusNotApplicable {
			res.HumanAction = "Provide account types for clearing accounts to classify sales vs non-sales."
		}
		return res, nil
	}

	for _, acct := range nonSales {
		balQ := money.Quantize(acct.Balance, inc)
		status := model.StatusPass
		if !balQ.IsZero() {
			status = model.StatusFail
		}
		statuses = append(statuses, status)
		values := statusValues(status)
		values["account_name"] = acct.Name
		values["account_type"] = acct.Type
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["balance"] = decStr(balQ)
		details = append(details, model.Detail{
			Key:     acct.AccountRef,
			Message: "Non-sales clearing account balance evaluated.",
			Values:  values,
		})
	}

	overall := model.WorstStatus(statuses...)
	var summary string
	switch overall {
	case model.StatusPass:
		summary = fmt.Sprintf("All non-sales clearing accounts are zero as of %s.", dates.Format(ctx.PeriodEnd))
	case model.StatusFail:
		summary = fmt.Sprintf("One or more non-sales clearing accounts are non-zero as of %s.", dates.Format(ctx.PeriodEnd))
	case model.StatusNeedsReview:
		summary = fmt.Sprintf("Missing data prevented evaluation as of %s.", dates.Format(ctx.PeriodEnd))
	default:
		summary = "Not applicable."
	}
	res := newResult(info, overall, summary)
	res.Details = details
	if overall == model.StatusFail || overall == model.StatusNeedsReview {
		res.HumanAction = "Investigate non-sales clearing account balances and clear them to zero at period end."
	}
	return res, nil
}
