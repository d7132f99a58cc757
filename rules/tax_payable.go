package rules

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// TaxPayableConfig configures BS-TAX-PAYABLE-AND-SUSPENSE-RECONCILE-TO-RETURN.
type TaxPayableConfig struct {
	config.Base

	// AccountNamePatterns select the tax payable/suspense Balance Sheet
	// accounts.
	AccountNamePatterns []string `json:"account_name_patterns,omitempty" schema:"type:list,description:Name substrings identifying tax payable/suspense accounts,category:basic"`

	TaxAgenciesEvidenceType string `json:"tax_agencies_evidence_type" schema:"type:string,description:Evidence type carrying tax agencies,category:advanced,default:tax_agencies"`
	TaxReturnsEvidenceType  string `json:"tax_returns_evidence_type" schema:"type:string,description:Evidence type carrying tax returns,category:advanced,default:tax_returns"`
	TaxPaymentsEvidenceType string `json:"tax_payments_evidence_type" schema:"type:string,description:Evidence type carrying tax payments,category:advanced,default:tax_payments"`

	// DelinquentStatus is the status when the combined balance does not
	// reconcile to the expected return position.
	DelinquentStatus model.Status `json:"delinquent_status" schema:"type:string,description:Status when balances do not reconcile to the return (WARN or FAIL),category:advanced,default:FAIL"`

	// RefundGraceDays is how long an expected refund may age before the
	// outstanding balance warrants a WARN.
	RefundGraceDays int `json:"refund_grace_days" schema:"type:int,description:Days an expected refund may remain outstanding,category:advanced,default:60"`
}

// DefaultTaxPayableConfig returns the rule defaults.
func DefaultTaxPayableConfig() TaxPayableConfig {
	return TaxPayableConfig{
		Base: config.DefaultBase(),
		AccountNamePatterns: []string{
			"gst/hst payable", "gst payable", "hst payable", "pst payable",
			"gst/hst suspense", "gst suspense", "hst suspense", "pst suspense",
		},
		TaxAgenciesEvidenceType: "tax_agencies",
		TaxReturnsEvidenceType:  "tax_returns",
		TaxPaymentsEvidenceType: "tax_payments",
		DelinquentStatus:        model.StatusFail,
		RefundGraceDays:         60,
	}
}

// Validate checks the payload on top of the base checks.
func (c TaxPayableConfig) Validate() error {
	if err := c.Base.Validate(); err != nil {
		return err
	}
	switch c.DelinquentStatus {
	case model.StatusWarn, model.StatusFail:
	default:
		return fmt.Errorf("delinquent_status must be WARN or FAIL, got %q", c.DelinquentStatus)
	}
	if c.RefundGraceDays < 0 {
		return fmt.Errorf("refund_grace_days must not be negative")
	}
	return nil
}

// taxPayment is one payment row from the tax_payments evidence.
type taxPayment struct {
	paymentDate   time.Time
	paymentAmount decimal.NullDecimal
	refund        bool
	agencyID      string
}

func parseTaxPayments(item model.EvidenceItem) []taxPayment {
	items, _ := item.MetaItems()
	payments := make([]taxPayment, 0, len(items))
	for _, entry := range items {
		paid, _ := dates.Parse(entry["payment_date"])
		payments = append(payments, taxPayment{
			paymentDate:   paid,
			paymentAmount: money.ParseAny(entry["payment_amount"]),
			refund:        entry["refund"] == true,
			agencyID:      firstStringOf(entry, "agency_id"),
		})
	}
	return payments
}

// inferAgencyForAccount maps a payable/suspense account to an agency: by the
// agency display name appearing in the account name, else GST/HST to the
// revenue agency and PST to the finance ministry.
func inferAgencyForAccount(accountName string, agencies []taxAgency) string {
	for _, agency := range agencies {
		if agency.displayName != "" && containsFold(accountName, agency.displayName) {
			return agency.agencyID
		}
	}
	if containsFold(accountName, "gst") || containsFold(accountName, "hst") {
		for _, agency := range agencies {
			if containsFold(agency.displayName, "revenue agency") {
				return agency.agencyID
			}
		}
	}
	if containsFold(accountName, "pst") {
		for _, agency := range agencies {
			if containsFold(agency.displayName, "finance") {
				return agency.agencyID
			}
		}
	}
	return ""
}

func isPayableName(name string) bool {
	return containsFold(name, "payable")
}

func isSuspenseName(name string) bool {
	// "suspence" shows up in real charts of accounts often enough to match.
	return containsFold(name, "suspense") || containsFold(name, "suspence")
}

// TaxPayableAndSuspenseReconcileToReturn ties the combined tax payable and
// suspense balances to the expected position from the most recent return
// net of payments made through period end.
type TaxPayableAndSuspenseReconcileToReturn struct{}

func (TaxPayableAndSuspenseReconcileToReturn) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-TAX-PAYABLE-AND-SUSPENSE-RECONCILE-TO-RETURN",
		Title:                  "Tax payable/suspense reconcile to most recent return",
		BestPracticesReference: "Tax accounts",
		Sources:                []string{"QBO (Balance Sheet, TaxReturn, TaxPayment)"},
		NewConfig:              func() any { cfg := DefaultTaxPayableConfig(); return &cfg },
	}
}

func (r TaxPayableAndSuspenseReconcileToReturn) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultTaxPayableConfig()
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

	agenciesItem, agenciesFound := ctx.Evidence.First(cfg.TaxAgenciesEvidenceType)
	returnsItem, returnsFound := ctx.Evidence.First(cfg.TaxReturnsEvidenceType)
	paymentsItem, paymentsFound := ctx.Evidence.First(cfg.TaxPaymentsEvidenceType)
	if !agenciesFound || !returnsFound || !paymentsFound {
		res := newResult(info, missingStatus,
			"Missing tax agency/return/payment data; cannot reconcile tax balances.")
		for _, pair := range []struct {
			item  model.EvidenceItem
			found bool
		}{{agenciesItem, agenciesFound}, {returnsItem, returnsFound}, {paymentsItem, paymentsFound}} {
			if pair.found {
				res.EvidenceUsed = append(res.EvidenceUsed, pair.item)
			}
		}
		res.HumanAction = "Provide TaxAgency, TaxReturn, and TaxPayment data from QBO."
		return res, nil
	}

	agencies := parseTaxAgencies(agenciesItem)
	returns := parseTaxReturns(returnsItem)
	payments := parseTaxPayments(paymentsItem)
	if len(agencies) == 0 || len(returns) == 0 {
		res := newResult(info, missingStatus,
			"Tax agency/return data is empty; cannot reconcile tax balances.")
		res.EvidenceUsed = []model.EvidenceItem{agenciesItem, returnsItem, paymentsItem}
		res.HumanAction = "Confirm TaxAgency and TaxReturn exports contain data."
		return res, nil
	}

	var scopeAccounts []model.AccountBalance
	for _, acct := range ctx.BalanceSheet.Accounts {
		if acct.IsLeaf() && acct.Name != "" && matchesAny(acct.Name, cfg.AccountNamePatterns) {
			scopeAccounts = append(scopeAccounts, acct)
		}
	}
	if len(scopeAccounts) == 0 {
		return newResult(info, model.StatusNotApplicable,
			"No tax payable/suspense accounts found on Balance Sheet."), nil
	}

	accountsByAgency := make(map[string][]model.AccountBalance)
	var agencyOrder []string
	var unmatched []model.AccountBalance
	for _, acct := range scopeAccounts {
		agencyID := inferAgencyForAccount(acct.Name, agencies)
		if agencyID == "" {
			unmatched = append(unmatched, acct)
			continue
		}
		if _, seen := accountsByAgency[agencyID]; !seen {
			agencyOrder = append(agencyOrder, agencyID)
		}
		accountsByAgency[agencyID] = append(accountsByAgency[agencyID], acct)
	}

	var (
		statuses []model.Status
		details  []model.Detail
	)
	for _, acct := range unmatched {
		statuses = append(statuses, missingStatus)
		values := statusValues(missingStatus)
		values["account_name"] = acct.Name
		values["balance"] = decStr(acct.Balance)
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		details = append(details, model.Detail{
			Key:     acct.AccountRef,
			Message: "Tax account could not be mapped to a tax agency.",
			Values:  values,
		})
	}

	// Payments map to agencies only when the export carries agency ids at
	// all; a payment feed without them cannot be attributed safely.
	paymentsMapped := false
	for _, p := range payments {
		if p.agencyID != "" {
			paymentsMapped = true
			break
		}
	}

	for _, agencyID := range agencyOrder {
		accounts := accountsByAgency[agencyID]
		agencyName := agencyID
		for _, agency := range agencies {
			if agency.agencyID == agencyID {
				agencyName = agency.displayName
				break
			}
		}

		var agencyReturns []taxReturn
		for _, ret := range returns {
			if ret.agencyID == agencyID {
				agencyReturns = append(agencyReturns, ret)
			}
		}
		status, detail := r.evaluateAgency(ctx, cfg, inc, agencyID, agencyName, accounts, agencyReturns, payments, paymentsMapped)
		statuses = append(statuses, status)
		details = append(details, detail)
	}

	overall := model.WorstStatus(statuses...)
	summary := fmt.Sprintf("Tax payable/suspense balances reconcile to expected returns as of %s.",
		dates.Format(ctx.PeriodEnd))
	if overall != model.StatusPass {
		summary = "Tax payable/suspense balances require review against the most recent returns."
	}
	res := newResult(info, overall, summary)
	res.Details = details
	res.EvidenceUsed = []model.EvidenceItem{agenciesItem, returnsItem, paymentsItem}
	if overall != model.StatusPass {
		res.HumanAction = "Reconcile tax payable/suspense balances to the expected return and payments."
	}
	return res, nil
}

func (r TaxPayableAndSuspenseReconcileToReturn) evaluateAgency(
	ctx *engine.Context,
	cfg TaxPayableConfig,
	inc decimal.Decimal,
	agencyID, agencyName string,
	accounts []model.AccountBalance,
	agencyReturns []taxReturn,
	payments []taxPayment,
	paymentsMapped bool,
) (model.Status, model.Detail) {
	missingStatus := cfg.MissingStatus()
	missing := func(message string, extra map[string]any) (model.Status, model.Detail) {
		values := statusValues(missingStatus)
		values["agency_name"] = agencyName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		for k, v := range extra {
			values[k] = v
		}
		return missingStatus, model.Detail{Key: agencyID, Message: message, Values: values}
	}

	latest, filed := latestFiledReturn(agencyReturns)
	if !filed {
		return missing("No filed tax returns found for agency.", nil)
	}
	cadence, cadenceOK := cadenceMonths(latest.startDate, latest.endDate)
	if !cadenceOK {
		return missing("Unable to infer filing cadence for agency.", nil)
	}

	var anchorEnd time.Time
	for _, ret := range agencyReturns {
		if !ret.endDate.IsZero() && ret.endDate.After(anchorEnd) {
			anchorEnd = ret.endDate
		}
	}
	expectedEnd, ok := expectedFilingPeriodEnd(ctx.PeriodEnd, cadence, anchorEnd)
	if !ok {
		return missing("Unable to determine expected filing period end.", nil)
	}

	// Target the return for the expected period, else the latest return
	// ending on or before it.
	var target *taxReturn
	for i := range agencyReturns {
		if dates.SameDay(agencyReturns[i].endDate, expectedEnd) {
			target = &agencyReturns[i]
			break
		}
	}
	if target == nil {
		for i := range agencyReturns {
			ret := &agencyReturns[i]
			if ret.endDate.IsZero() || ret.endDate.After(expectedEnd) {
				continue
			}
			if target == nil || ret.endDate.After(target.endDate) {
				target = ret
			}
		}
	}
	if target == nil || !target.netTaxAmountDue.Valid {
		return missing("No return found for expected filing period.", map[string]any{
			"expected_period_end": dates.Format(expectedEnd),
		})
	}

	payableOnly := decimal.Zero
	suspenseOnly := decimal.Zero
	for _, acct := range accounts {
		if isPayableName(acct.Name) {
			payableOnly = payableOnly.Add(acct.Balance)
		}
		if isSuspenseName(acct.Name) {
			suspenseOnly = suspenseOnly.Add(acct.Balance)
		}
	}
	actualTotal := payableOnly.Add(suspenseOnly)

	netPayments := decimal.Zero
	if paymentsMapped {
		for _, p := range payments {
			if p.agencyID != agencyID || !p.paymentAmount.Valid || p.paymentDate.IsZero() {
				continue
			}
			if p.paymentDate.After(ctx.PeriodEnd) {
				continue
			}
			amt := p.paymentAmount.Decimal
			if p.refund {
				amt = amt.Neg()
			}
			netPayments = netPayments.Add(amt)
		}
	}

	expectedTotal := target.netTaxAmountDue.Decimal.Sub(netPayments)
	actualQ := money.Quantize(actualTotal, inc)
	expectedQ := money.Quantize(expectedTotal, inc)
	diff := actualQ.Sub(expectedQ).Abs()

	status := model.StatusPass
	if !diff.IsZero() {
		status = cfg.DelinquentStatus
	}

	var note string
	if target.netTaxAmountDue.Decimal.Sign() < 0 && status == model.StatusPass {
		note = "Refund indicated on latest return; refund may not have been issued yet."
		if !target.fileDate.IsZero() {
			daysSinceFile := dates.DaysBetween(target.fileDate, ctx.PeriodEnd)
			if daysSinceFile > cfg.RefundGraceDays {
				status = model.StatusWarn
			}
		}
	}

	var placementWarning string
	if payableOnly.Sign() < 0 {
		if target.netTaxAmountDue.Decimal.Sign() < 0 && status == model.StatusPass {
			placementWarning = "Payable is negative; refund/credit scenario."
		} else {
			placementWarning = "Payable is negative; verify refund/overpayment/coding."
			status = model.WorstStatus(status, model.StatusWarn)
		}
	}

	values := statusValues(status)
	values["agency_name"] = agencyName
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["expected_period_end"] = dates.Format(expectedEnd)
	values["return_start_date"] = dates.Format(target.startDate)
	values["return_end_date"] = dates.Format(target.endDate)
	values["return_file_date"] = dates.Format(target.fileDate)
	values["return_net_tax_due"] = decStr(target.netTaxAmountDue.Decimal)
	values["net_payments"] = decStr(netPayments)
	values["payments_mapped_to_agency"] = paymentsMapped
	values["expected_total"] = decStr(expectedQ)
	values["actual_total"] = decStr(actualQ)
	values["difference"] = decStr(diff)
	values["payable_only"] = decStr(payableOnly)
	values["suspense_only"] = decStr(suspenseOnly)
	values["cadence_months"] = cadence
	if note != "" {
		values["note"] = note
	}
	if placementWarning != "" {
		values["placement_warning"] = placementWarning
	}

	return status, model.Detail{
		Key:     agencyID,
		Message: "Tax payable/suspense balance reconciled to expected return.",
		Values:  values,
	}
}
