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

// BalanceUnchangedConfig configures BS-BALANCE-UNCHANGED-PRIOR-MONTH.
type BalanceUnchangedConfig struct {
	config.Base

	// IncludeZeroBalances also flags accounts whose balance is zero in both
	// months; by default a dormant zero account is not interesting.
	IncludeZeroBalances bool `json:"include_zero_balances" schema:"type:bool,description:Also flag balances that are zero in both months,category:advanced,default:false"`
}

// DefaultBalanceUnchangedConfig returns the rule defaults.
func DefaultBalanceUnchangedConfig() BalanceUnchangedConfig {
	return BalanceUnchangedConfig{Base: config.DefaultBase()}
}

// BalanceUnchangedPriorMonth flags leaf balances identical to the prior
// month: a balance that never moves can indicate a missed update (unamortized
// prepaid, stale accrual, forgotten loan entry).
type BalanceUnchangedPriorMonth struct{}

func (BalanceUnchangedPriorMonth) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-BALANCE-UNCHANGED-PRIOR-MONTH",
		Title:                  "Balances unchanged vs prior month",
		BestPracticesReference: "Significant balances should be reviewed monthly; unchanged balances can indicate missed updates.",
		Sources:                []string{"QBO (Balance Sheet)"},
		NewConfig:              func() any { cfg := DefaultBalanceUnchangedConfig(); return &cfg },
	}
}

func (r BalanceUnchangedPriorMonth) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultBalanceUnchangedConfig()
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

	prior := ctx.PriorBalanceSheet
	if prior == nil {
		res := newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"Missing prior month Balance Sheet snapshot for %s.", dates.Format(ctx.PeriodEnd)))
		res.HumanAction = "Add the prior month Balance Sheet snapshot to enable this review."
		return res, nil
	}

	priorBalances := make(map[string]decimal.Decimal, len(prior.Accounts))
	for _, acct := range prior.Accounts {
		priorBalances[acct.AccountRef] = acct.Balance
	}

	var unchanged []model.Detail
	for _, acct := range ctx.BalanceSheet.Accounts {
		if !acct.IsLeaf() {
			continue
		}
		priorBalance, present := priorBalances[acct.AccountRef]
		if !present {
			continue
		}
		currentQ := money.Quantize(acct.Balance, inc)
		priorQ := money.Quantize(priorBalance, inc)
		if !cfg.IncludeZeroBalances && currentQ.IsZero() {
			continue
		}
		if !currentQ.Equal(priorQ) {
			continue
		}
		values := statusValues(model.StatusWarn)
		values["account_name"] = acct.Name
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["prior_period_end"] = dates.Format(prior.AsOfDate)
		values["current_balance"] = decStr(currentQ)
		values["prior_balance"] = decStr(priorQ)
		values["flag"] = "SAME"
		unchanged = append(unchanged, model.Detail{
			Key:     acct.AccountRef,
			Message: "SAME (unchanged vs prior month).",
			Values:  values,
		})
	}

	if len(unchanged) == 0 {
		return newResult(info, model.StatusPass, fmt.Sprintf(
			"No unchanged balances detected versus %s.", dates.Format(prior.AsOfDate))), nil
	}

	res := newResult(info, model.StatusWarn, fmt.Sprintf(
		"%d balance(s) unchanged vs %s.", len(unchanged), dates.Format(prior.AsOfDate)))
	res.Details = unchanged
	res.HumanAction = "Confirm whether each unchanged balance is expected for the period."
	return res, nil
}
