package rules

import (
	"fmt"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// PettyCashConfig configures BS-PETTY-CASH-MATCH.
type PettyCashConfig struct {
	config.Base

	AccountRef  string `json:"account_ref,omitempty" schema:"type:string,description:Petty cash Balance Sheet account ref,category:basic,required:true"`
	AccountName string `json:"account_name,omitempty" schema:"type:string,description:Display name for reporting,category:basic"`

	// EvidenceType names the supporting-document evidence carrying the
	// counted petty cash amount.
	EvidenceType string `json:"evidence_type" schema:"type:string,description:Evidence type carrying the petty cash support amount,category:advanced,default:petty_cash_support"`
}

// DefaultPettyCashConfig returns the rule defaults.
func DefaultPettyCashConfig() PettyCashConfig {
	return PettyCashConfig{
		Base:         config.DefaultBase(),
		EvidenceType: "petty_cash_support",
	}
}

// PettyCashMatch ties the petty cash ledger balance to the client's counted
// support document exactly (after optional amount quantization).
type PettyCashMatch struct{}

func (PettyCashMatch) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-PETTY-CASH-MATCH",
		Title:                  "Petty cash matches between QBO and client's supporting document",
		BestPracticesReference: "Petty cash",
		Sources:                []string{"QBO", "Google Drive (supporting document)"},
		NewConfig:              func() any { cfg := DefaultPettyCashConfig(); return &cfg },
	}
}

func (r PettyCashMatch) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultPettyCashConfig()
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

	if cfg.AccountRef == "" {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Petty cash account not configured for period end %s.", dates.Format(ctx.PeriodEnd)))
		res.HumanAction = "Configure the petty cash account ref for this client."
		return res, nil
	}

	bsBalance := ctx.AccountBalance(cfg.AccountRef)
	if !bsBalance.Valid {
		res := newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"Petty cash account not found in balance sheet snapshot as of %s.", dates.Format(ctx.PeriodEnd)))
		values := statusValues(model.StatusNotApplicable)
		values["account_name"] = cfg.AccountName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		res.Details = []model.Detail{{
			Key:     cfg.AccountRef,
			Message: "Account not found in balance sheet snapshot.",
			Values:  values,
		}}
		res.HumanAction = "Confirm whether petty cash exists in QBO and map the correct petty cash account."
		return res, nil
	}

	item, found := ctx.Evidence.First(cfg.EvidenceType)
	if !found || !item.Amount.Valid {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Missing petty cash supporting document amount for %s; cannot verify.", dates.Format(ctx.PeriodEnd)))
		if found {
			res.EvidenceUsed = []model.EvidenceItem{item}
		}
		res.HumanAction = "Request/attach petty cash supporting document (or extracted amount) for this period end."
		return res, nil
	}

	bsQ := money.Quantize(bsBalance.Decimal, inc)
	supportQ := money.Quantize(item.Amount.Decimal, inc)
	diff := bsQ.Sub(supportQ).Abs()

	status := model.StatusPass
	summary := fmt.Sprintf("Petty cash matches exactly as of %s.", dates.Format(ctx.PeriodEnd))
	if !diff.IsZero() {
		status = model.StatusFail
		summary = fmt.Sprintf("Petty cash does not match support as of %s (diff %s).",
			dates.Format(ctx.PeriodEnd), decStr(diff))
	}

	values := statusValues(status)
	values["account_name"] = cfg.AccountName
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["bs_balance"] = decStr(bsQ)
	values["support_amount"] = decStr(supportQ)
	values["difference"] = decStr(diff)

	res := newResult(info, status, summary)
	res.Details = []model.Detail{{
		Key:     cfg.AccountRef,
		Message: "Petty cash compared to supporting document.",
		Values:  values,
	}}
	res.EvidenceUsed = []model.EvidenceItem{item}
	if status != model.StatusPass {
		res.HumanAction = "Verify petty cash support and explain the variance; correct entries or update support."
	}
	return res, nil
}
