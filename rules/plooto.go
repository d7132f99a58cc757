package rules

import (
	"fmt"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// NamedAccountConfig locates a single named account by explicit ref or by
// name inference. Shared by the Plooto rules and the balance-match rules.
type NamedAccountConfig struct {
	config.Base

	AccountRef  string `json:"account_ref,omitempty" schema:"type:string,description:Balance Sheet account ref,category:basic"`
	AccountName string `json:"account_name,omitempty" schema:"type:string,description:Display name for reporting,category:basic"`

	// AllowNameInference permits locating the account by name substring when
	// no ref is configured.
	AllowNameInference bool `json:"allow_name_inference" schema:"type:bool,description:Locate the account by name substring when no ref is configured,category:advanced,default:false"`

	// AccountNameMatch overrides the rule's default name fragment.
	AccountNameMatch string `json:"account_name_match,omitempty" schema:"type:string,description:Name substring used for inference,category:advanced"`
}

// DefaultNamedAccountConfig returns the shared defaults.
func DefaultNamedAccountConfig() NamedAccountConfig {
	return NamedAccountConfig{Base: config.DefaultBase()}
}

// namedAccount is one located account with its balance.
type namedAccount struct {
	ref     string
	name    string
	balance model.AccountBalance
}

// locateNamedAccounts resolves the configured ref, or name-matches when
// inference is allowed. The boolean reports whether inference was used.
// A configured ref that is missing from the snapshot yields no accounts and
// refMissing=true so each rule can apply its own policy.
func locateNamedAccounts(ctx *engine.Context, cfg NamedAccountConfig, defaultNameMatch string) (accounts []namedAccount, usedInference, refMissing bool) {
	if cfg.AccountRef != "" {
		acct, ok := ctx.BalanceSheet.Account(cfg.AccountRef)
		if !ok {
			return nil, false, true
		}
		name := cfg.AccountName
		if name == "" {
			name = acct.Name
		}
		return []namedAccount{{ref: cfg.AccountRef, name: name, balance: acct}}, false, false
	}
	if !cfg.AllowNameInference {
		return nil, false, false
	}
	match := cfg.AccountNameMatch
	if match == "" {
		match = defaultNameMatch
	}
	for _, acct := range ctx.BalanceSheet.Accounts {
		if acct.IsLeaf() && containsFold(acct.Name, match) {
			accounts = append(accounts, namedAccount{ref: acct.AccountRef, name: acct.Name, balance: acct})
		}
	}
	return accounts, true, false
}

// PlootoClearingZero verifies the Plooto Clearing pass-through account nets
// to exactly zero at period end.
type PlootoClearingZero struct{}

func (PlootoClearingZero) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-PLOOTO-CLEARING-ZERO",
		Title:                  "Plooto Clearing should be zero at period end",
		BestPracticesReference: "Plooto",
		Sources:                []string{"QBO (Balance Sheet)"},
		NewConfig:              func() any { cfg := DefaultNamedAccountConfig(); cfg.AllowNameInference = true; return &cfg },
	}
}

func (r PlootoClearingZero) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultNamedAccountConfig()
	cfg.AllowNameInference = true
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

	accounts, usedInference, refMissing := locateNamedAccounts(ctx, cfg, "Plooto Clearing")
	if refMissing {
		res := newResult(info, missingStatus, fmt.Sprintf(
			"Plooto Clearing account not found in Balance Sheet snapshot as of %s; cannot verify.",
			dates.Format(ctx.PeriodEnd)))
		values := statusValues(missingStatus)
		values["account_name"] = cfg.AccountName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		res.Details = []model.Detail{{
			Key:     cfg.AccountRef,
			Message: "Account not found in balance sheet snapshot.",
			Values:  values,
		}}
		res.HumanAction = "Confirm whether Plooto Clearing exists in QBO and map the correct Balance Sheet account."
		return res, nil
	}
	if len(accounts) == 0 {
		return newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"No Plooto Clearing account found as of %s.", dates.Format(ctx.PeriodEnd))), nil
	}

	var (
		statuses []model.Status
		details  []model.Detail
	)
	for _, acct := range accounts {
		balQ := money.Quantize(acct.balance.Balance, inc)
		status := model.StatusPass
		if !balQ.IsZero() {
			status = model.StatusFail
		}
		statuses = append(statuses, status)
		values := statusValues(status)
		values["account_name"] = acct.name
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["balance"] = decStr(balQ)
		values["inferred_by_name_match"] = usedInference
		details = append(details, model.Detail{
			Key:     acct.ref,
			Message: "Plooto Clearing balance evaluated.",
			Values:  values,
		})
	}

	overall := model.WorstStatus(statuses...)
	res := newResult(info, overall, "")
	res.Details = details
	if overall == model.StatusPass {
		res.Summary = fmt.Sprintf("Plooto Clearing balance is zero as of %s.", dates.Format(ctx.PeriodEnd))
	} else {
		exemplar := exemplarDetail(details, model.StatusFail)
		if exemplar != nil {
			res.Summary = fmt.Sprintf("Plooto Clearing balance is non-zero as of %s (balance %v).",
				dates.Format(ctx.PeriodEnd), exemplar.Values["balance"])
		} else {
			res.Summary = fmt.Sprintf("Plooto Clearing balance is non-zero as of %s.", dates.Format(ctx.PeriodEnd))
		}
		res.HumanAction = "Investigate Plooto Clearing activity near period end and clear any non-zero balance."
	}
	return res, nil
}

// PlootoInstantBalanceDisclosure surfaces a non-zero Plooto Instant balance
// for disclosure. No evidence is required: the balance only needs to be
// called out to the reviewer, so a non-zero balance warns rather than fails.
type PlootoInstantBalanceDisclosure struct{}

func (PlootoInstantBalanceDisclosure) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-PLOOTO-INSTANT-BALANCE-DISCLOSURE",
		Title:                  "Plooto Instant balance disclosed at period end",
		BestPracticesReference: "Plooto",
		Sources:                []string{"QBO (Balance Sheet)"},
		NewConfig:              func() any { cfg := DefaultNamedAccountConfig(); cfg.AllowNameInference = true; return &cfg },
	}
}

func (r PlootoInstantBalanceDisclosure) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultNamedAccountConfig()
	cfg.AllowNameInference = true
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

	accounts, usedInference, refMissing := locateNamedAccounts(ctx, cfg, "Plooto Instant")
	if refMissing || len(accounts) == 0 {
		res := newResult(info, missingStatus, fmt.Sprintf(
			"No Plooto Instant account found on the Balance Sheet as of %s.", dates.Format(ctx.PeriodEnd)))
		res.HumanAction = "Confirm whether Plooto Instant exists in QBO and map the correct Balance Sheet account."
		return res, nil
	}

	var (
		statuses []model.Status
		details  []model.Detail
	)
	for _, acct := range accounts {
		balQ := money.Quantize(acct.balance.Balance, inc)
		status := model.StatusPass
		if !balQ.IsZero() {
			status = model.StatusWarn
		}
		statuses = append(statuses, status)
		values := statusValues(status)
		values["account_name"] = acct.name
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["balance"] = decStr(balQ)
		values["inferred_by_name_match"] = usedInference
		details = append(details, model.Detail{
			Key:     acct.ref,
			Message: "Plooto Instant balance evaluated for disclosure.",
			Values:  values,
		})
	}

	overall := model.WorstStatus(statuses...)
	res := newResult(info, overall, "")
	res.Details = details
	if overall == model.StatusPass {
		res.Summary = fmt.Sprintf("Plooto Instant balance is zero as of %s.", dates.Format(ctx.PeriodEnd))
	} else {
		exemplar := exemplarDetail(details, model.StatusWarn)
		if exemplar != nil {
			res.Summary = fmt.Sprintf("Plooto Instant balance is non-zero as of %s (balance %v); disclose to the reviewer.",
				dates.Format(ctx.PeriodEnd), exemplar.Values["balance"])
		} else {
			res.Summary = fmt.Sprintf("Plooto Instant balance is non-zero as of %s; disclose to the reviewer.",
				dates.Format(ctx.PeriodEnd))
		}
		res.HumanAction = "Disclose the Plooto Instant balance in the MER notes and confirm expected timing with the client."
	}
	return res, nil
}
