package rules

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// BankReconciledConfig configures BS-BANK-RECONCILED-THROUGH-PERIOD-END.
type BankReconciledConfig struct {
	config.Base

	// IncludeAccounts and ExcludeAccounts refine the inferred bank/cc scope.
	IncludeAccounts []string `json:"include_accounts,omitempty" schema:"type:list,description:Account refs to add to the inferred scope,category:basic"`
	ExcludeAccounts []string `json:"exclude_accounts,omitempty" schema:"type:list,description:Account refs to drop from the scope,category:basic"`

	// ExpectedAccounts, when set, is the explicit maintenance list of
	// accounts to evaluate; its size is also compared against the inferred
	// bank/cc count as a scope-maintenance check.
	ExpectedAccounts []string `json:"expected_accounts,omitempty" schema:"type:list,description:Explicit maintenance list of bank/cc account refs,category:basic"`

	// RequireStatementEndDateGTEPeriodEnd fails accounts whose latest
	// statement ends before the MER period end.
	RequireStatementEndDateGTEPeriodEnd bool `json:"require_statement_end_date_gte_period_end" schema:"type:bool,description:Require statement coverage through period end,category:advanced,default:true"`

	// RequireBookBalancePeriodEndTiesToBalanceSheet requires the register
	// balance rolled to period end to equal the Balance Sheet balance.
	RequireBookBalancePeriodEndTiesToBalanceSheet bool `json:"require_book_balance_as_of_period_end_ties_to_balance_sheet" schema:"type:bool,description:Require register balance at period end to tie to the Balance Sheet,category:advanced,default:true"`

	// RequireStatementBalanceMatchesAttachment requires a statement artifact
	// whose extracted amount equals the reconciliation's statement balance.
	RequireStatementBalanceMatchesAttachment bool   `json:"require_statement_balance_matches_attachment" schema:"type:bool,description:Require the statement balance to tie to an attached statement,category:advanced,default:true"`
	AttachmentEvidenceType                   string `json:"statement_balance_attachment_evidence_type" schema:"type:string,description:Evidence type carrying the statement attachment amount,category:advanced,default:statement_balance_attachment"`

	// RequireStatementBalanceMatchesBalanceSheet requires the statement
	// ending balance to equal the Balance Sheet balance.
	RequireStatementBalanceMatchesBalanceSheet bool `json:"require_statement_balance_matches_balance_sheet" schema:"type:bool,description:Require the statement balance to tie to the Balance Sheet,category:advanced,default:true"`
}

// DefaultBankReconciledConfig returns the rule defaults.
func DefaultBankReconciledConfig() BankReconciledConfig {
	return BankReconciledConfig{
		Base:                                config.DefaultBase(),
		RequireStatementEndDateGTEPeriodEnd: true,
		RequireBookBalancePeriodEndTiesToBalanceSheet: true,
		RequireStatementBalanceMatchesAttachment:      true,
		AttachmentEvidenceType:                        "statement_balance_attachment",
		RequireStatementBalanceMatchesBalanceSheet:    true,
	}
}

// BankReconciledThroughPeriodEnd verifies that every in-scope bank and
// credit-card account is reconciled through the MER period end and that the
// statement, register, attachment, and Balance Sheet amounts all tie out
// exactly.
type BankReconciledThroughPeriodEnd struct{}

func (BankReconciledThroughPeriodEnd) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-BANK-RECONCILED-THROUGH-PERIOD-END",
		Title:                  "Bank/credit card accounts reconciled through statement date",
		BestPracticesReference: "Bank reconciliations → Banks and Credit cards",
		Sources:                []string{"QBO (reports/exports)", "Bank statements (evidence)"},
		NewConfig:              func() any { cfg := DefaultBankReconciledConfig(); return &cfg },
	}
}

func (r BankReconciledThroughPeriodEnd) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultBankReconciledConfig()
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

	inferredRefs, inferDetail := inferBankScope(ctx)
	if inferredRefs == nil && len(cfg.ExpectedAccounts) == 0 {
		res := newResult(info, model.StatusNeedsReview, fmt.Sprintf(
			"Cannot determine bank/credit card reconciliation scope for %s; account type/subtype data is missing.",
			dates.Format(ctx.PeriodEnd)))
		if inferDetail != nil {
			res.Details = []model.Detail{*inferDetail}
		}
		res.HumanAction = "Ensure the adapter provides Balance Sheet account type/subtype to infer bank/cc scope."
		return res, nil
	}

	requiredRefs := determineBankScope(cfg, inferredRefs)
	if len(requiredRefs) == 0 {
		return newResult(info, model.StatusNotApplicable, fmt.Sprintf(
			"No bank/credit card accounts in-scope as of %s.", dates.Format(ctx.PeriodEnd))), nil
	}

	nameByRef := make(map[string]string, len(ctx.BalanceSheet.Accounts))
	for _, acct := range ctx.BalanceSheet.Accounts {
		nameByRef[acct.AccountRef] = acct.Name
	}

	var (
		statuses []model.Status
		details  []model.Detail
	)
	if inferDetail != nil {
		statuses = append(statuses, model.StatusNeedsReview)
		details = append(details, *inferDetail)
	}
	if scopeStatus, scopeDetail := checkMaintenanceCount(ctx, cfg, inferredRefs); scopeDetail != nil {
		statuses = append(statuses, scopeStatus)
		details = append(details, *scopeDetail)
	}

	for _, ref := range requiredRefs {
		accountName := nameByRef[ref]
		rec, found := model.LatestReconciliation(ctx.Reconciliations, ref)
		if !found {
			statuses = append(statuses, missingStatus)
			values := statusValues(missingStatus)
			values["account_name"] = accountName
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			values["expected_from_maintenance"] = len(cfg.ExpectedAccounts) > 0
			details = append(details, model.Detail{
				Key:     ref,
				Message: "Missing reconciliation snapshot for this account.",
				Values:  values,
			})
			continue
		}
		status, detail := r.evaluateAccount(ctx, rec, cfg, inc, ctx.BalanceSheet.Balance(ref), accountName)
		statuses = append(statuses, status)
		details = append(details, detail)
	}

	overall := model.WorstStatus(statuses...)
	res := newResult(info, overall, bankSummary(ctx, overall, requiredRefs, details))
	res.Details = details
	if overall == model.StatusWarn || overall == model.StatusFail || overall == model.StatusNeedsReview {
		res.HumanAction = "Verify reconciliation status through MER period end, confirm statement ending balances against " +
			"bank statements, and tie out register/book balances to the Balance Sheet; explain or correct any variances."
	}
	return res, nil
}

func bankSummary(ctx *engine.Context, overall model.Status, requiredRefs []string, details []model.Detail) string {
	exemplar := exemplarDetail(details, overall)
	switch overall {
	case model.StatusPass:
		return fmt.Sprintf("All %d account(s) are reconciled through %s and tie out exactly.",
			len(requiredRefs), dates.Format(ctx.PeriodEnd))
	case model.StatusFail:
		if exemplar != nil && exemplar.Key == "scope_count" {
			return fmt.Sprintf("Maintenance bank/cc account count does not match Balance Sheet bank/cc count as of %s.",
				dates.Format(ctx.PeriodEnd))
		}
		if exemplar != nil {
			return fmt.Sprintf("Account '%v' is not reconciled through period end or fails tie-out as of %s.",
				exemplar.Values["account_name"], dates.Format(ctx.PeriodEnd))
		}
		return fmt.Sprintf("One or more accounts fail reconciliation tie-out as of %s.", dates.Format(ctx.PeriodEnd))
	case model.StatusNeedsReview:
		return fmt.Sprintf("Missing data prevented evaluation for one or more accounts as of %s.", dates.Format(ctx.PeriodEnd))
	}
	return "Not applicable."
}

// exemplarDetail picks the first detail carrying the overall status, used to
// surface a concrete account in the one-line summary.
func exemplarDetail(details []model.Detail, overall model.Status) *model.Detail {
	for i := range details {
		if details[i].Values["status"] == string(overall) {
			return &details[i]
		}
	}
	return nil
}

// isBankOrCreditCard classifies a Balance Sheet account into the bank/cc
// scope using type/subtype only; names are never trusted for scope.
func isBankOrCreditCard(acct model.AccountBalance) bool {
	for _, field := range []string{acct.Type, acct.Subtype} {
		if containsFold(field, "bank") || containsFold(field, "credit") || containsFold(field, "card") {
			return true
		}
	}
	return false
}

// inferBankScope infers the bank/cc refs from account type/subtype. When any
// account is missing both, inference is refused (nil refs) with a detail
// explaining why: guessing scope by name would silently drop accounts.
func inferBankScope(ctx *engine.Context) ([]string, *model.Detail) {
	var missingTypeRefs, inferred []string
	for _, acct := range ctx.BalanceSheet.Accounts {
		if acct.Type == "" && acct.Subtype == "" {
			missingTypeRefs = append(missingTypeRefs, acct.AccountRef)
			continue
		}
		if isBankOrCreditCard(acct) {
			inferred = append(inferred, acct.AccountRef)
		}
	}
	if len(missingTypeRefs) > 0 {
		values := statusValues(model.StatusNeedsReview)
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["missing_type_account_refs"] = capStrings(missingTypeRefs, 20)
		values["missing_type_account_count"] = len(missingTypeRefs)
		return nil, &model.Detail{
			Key:     "scope",
			Message: "Cannot infer bank/cc scope because some Balance Sheet accounts are missing type/subtype.",
			Values:  values,
		}
	}
	sort.Strings(inferred)
	return inferred, nil
}

func determineBankScope(cfg BankReconciledConfig, inferredRefs []string) []string {
	exclude := make(map[string]bool, len(cfg.ExcludeAccounts))
	for _, ref := range cfg.ExcludeAccounts {
		exclude[ref] = true
	}
	if len(cfg.ExpectedAccounts) > 0 {
		var refs []string
		for _, ref := range cfg.ExpectedAccounts {
			if !exclude[ref] {
				refs = append(refs, ref)
			}
		}
		sort.Strings(refs)
		return refs
	}
	set := make(map[string]bool, len(inferredRefs)+len(cfg.IncludeAccounts))
	for _, ref := range inferredRefs {
		set[ref] = true
	}
	for _, ref := range cfg.IncludeAccounts {
		set[ref] = true
	}
	var refs []string
	for ref := range set {
		if !exclude[ref] {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs
}

// checkMaintenanceCount compares the maintenance list size to the inferred
// bank/cc count; a mismatch means either the books or the maintenance list
// is stale.
func checkMaintenanceCount(ctx *engine.Context, cfg BankReconciledConfig, inferredRefs []string) (model.Status, *model.Detail) {
	if len(cfg.ExpectedAccounts) == 0 {
		return model.StatusPass, nil
	}
	if inferredRefs == nil {
		values := statusValues(model.StatusNeedsReview)
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["maintenance_account_count"] = len(cfg.ExpectedAccounts)
		return model.StatusNeedsReview, &model.Detail{
			Key:     "scope_count",
			Message: "Cannot compare maintenance list to Balance Sheet bank/cc count (missing type/subtype).",
			Values:  values,
		}
	}

	inferredSet := make(map[string]bool, len(inferredRefs))
	for _, ref := range inferredRefs {
		inferredSet[ref] = true
	}
	maintenanceSet := make(map[string]bool, len(cfg.ExpectedAccounts))
	for _, ref := range cfg.ExpectedAccounts {
		maintenanceSet[ref] = true
	}
	var missingInBS, extraInBS []string
	for ref := range maintenanceSet {
		if !inferredSet[ref] {
			missingInBS = append(missingInBS, ref)
		}
	}
	for ref := range inferredSet {
		if !maintenanceSet[ref] {
			extraInBS = append(extraInBS, ref)
		}
	}
	sort.Strings(missingInBS)
	sort.Strings(extraInBS)

	if len(cfg.ExpectedAccounts) != len(inferredRefs) {
		values := statusValues(model.StatusFail)
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["maintenance_account_count"] = len(cfg.ExpectedAccounts)
		values["balance_sheet_bank_cc_count"] = len(inferredRefs)
		values["missing_in_balance_sheet"] = capStrings(missingInBS, 20)
		values["extra_in_balance_sheet"] = capStrings(extraInBS, 20)
		return model.StatusFail, &model.Detail{
			Key:     "scope_count",
			Message: "Maintenance bank/cc account count does not match Balance Sheet bank/cc count.",
			Values:  values,
		}
	}
	values := statusValues(model.StatusPass)
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["maintenance_account_count"] = len(cfg.ExpectedAccounts)
	values["balance_sheet_bank_cc_count"] = len(inferredRefs)
	return model.StatusPass, &model.Detail{
		Key:     "scope_count",
		Message: "Maintenance bank/cc account count matches Balance Sheet bank/cc count.",
		Values:  values,
	}
}

// evaluateAccount runs the per-account tie-out checks against the latest
// reconciliation snapshot and folds them worst-wins.
func (r BankReconciledThroughPeriodEnd) evaluateAccount(
	ctx *engine.Context,
	rec model.ReconciliationSnapshot,
	cfg BankReconciledConfig,
	inc decimal.Decimal,
	bsBalance decimal.NullDecimal,
	accountNameFallback string,
) (model.Status, model.Detail) {
	accountName := rec.AccountName
	if accountName == "" {
		accountName = accountNameFallback
	}
	missingStatus := cfg.MissingStatus()

	missing := func(message string, extra map[string]any) (model.Status, model.Detail) {
		values := statusValues(missingStatus)
		values["account_name"] = accountName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		for k, v := range extra {
			values[k] = v
		}
		return missingStatus, model.Detail{Key: rec.AccountRef, Message: message, Values: values}
	}

	if rec.StatementEndDate.IsZero() {
		return missing("Missing statement end date; cannot verify reconciliation through period end.", nil)
	}
	if cfg.RequireStatementEndDateGTEPeriodEnd && rec.StatementEndDate.Before(ctx.PeriodEnd) {
		values := statusValues(model.StatusFail)
		values["account_name"] = accountName
		values["statement_end_date"] = dates.Format(rec.StatementEndDate)
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["coverage"] = string(model.StatusFail)
		return model.StatusFail, model.Detail{
			Key:     rec.AccountRef,
			Message: "Statement end date is before MER period end; not reconciled through period end.",
			Values:  values,
		}
	}
	if !rec.StatementEndingBalance.Valid {
		return missing("Missing statement ending balance; cannot tie out.", map[string]any{
			"statement_end_date": dates.Format(rec.StatementEndDate),
		})
	}
	if !rec.BookBalanceAsOfStatementEnd.Valid {
		return missing("Missing book/register balance as of statement end date; cannot tie out.", map[string]any{
			"statement_end_date":       dates.Format(rec.StatementEndDate),
			"statement_ending_balance": rec.StatementEndingBalance.Decimal.String(),
		})
	}

	statementBalQ := money.Quantize(rec.StatementEndingBalance.Decimal, inc)
	bookStatementQ := money.Quantize(rec.BookBalanceAsOfStatementEnd.Decimal, inc)
	statementDiff := bookStatementQ.Sub(statementBalQ).Abs()

	statementStatus := model.StatusPass
	if !statementDiff.IsZero() {
		statementStatus = model.StatusFail
	}
	statuses := []model.Status{statementStatus}

	values := statusValues(model.StatusPass)
	values["account_name"] = accountName
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["statement_end_date"] = dates.Format(rec.StatementEndDate)
	values["statement_ending_balance"] = decStr(statementBalQ)
	values["book_balance_as_of_statement_end"] = decStr(bookStatementQ)
	values["statement_tie_difference"] = decStr(statementDiff)
	values["statement_tie_status"] = string(statementStatus)

	if cfg.RequireBookBalancePeriodEndTiesToBalanceSheet {
		var periodEndStatus model.Status
		switch {
		case !bsBalance.Valid, !rec.BookBalanceAsOfPeriodEnd.Valid:
			periodEndStatus = missingStatus
		default:
			bsQ := money.Quantize(bsBalance.Decimal, inc)
			bookPeriodEndQ := money.Quantize(rec.BookBalanceAsOfPeriodEnd.Decimal, inc)
			diff := bookPeriodEndQ.Sub(bsQ).Abs()
			values["period_end_tie_difference"] = decStr(diff)
			if diff.IsZero() {
				periodEndStatus = model.StatusPass
			} else {
				periodEndStatus = model.StatusFail
			}
		}
		values["balance_sheet_balance"] = nullDecStr(money.QuantizeNull(bsBalance, inc))
		values["book_balance_as_of_period_end"] = nullDecStr(money.QuantizeNull(rec.BookBalanceAsOfPeriodEnd, inc))
		values["period_end_tie_status"] = string(periodEndStatus)
		statuses = append(statuses, periodEndStatus)
	}

	if cfg.RequireStatementBalanceMatchesBalanceSheet {
		var bsTieStatus model.Status
		if !bsBalance.Valid {
			bsTieStatus = missingStatus
		} else {
			bsQ := money.Quantize(bsBalance.Decimal, inc)
			diff := statementBalQ.Sub(bsQ).Abs()
			values["statement_balance_matches_balance_sheet_difference"] = decStr(diff)
			if diff.IsZero() {
				bsTieStatus = model.StatusPass
			} else {
				bsTieStatus = model.StatusFail
			}
		}
		values["statement_balance_matches_balance_sheet_status"] = string(bsTieStatus)
		statuses = append(statuses, bsTieStatus)
	}

	if cfg.RequireStatementBalanceMatchesAttachment {
		attachmentStatus := r.checkAttachment(ctx, rec, cfg, inc, statementBalQ, values)
		statuses = append(statuses, attachmentStatus)
	}

	status := model.WorstStatus(statuses...)
	values["status"] = string(status)
	return status, model.Detail{
		Key:     rec.AccountRef,
		Message: "Account reconciliation tie-out evaluated.",
		Values:  values,
	}
}

// checkAttachment ties the statement ending balance to the statement
// artifact extracted for this account.
func (r BankReconciledThroughPeriodEnd) checkAttachment(
	ctx *engine.Context,
	rec model.ReconciliationSnapshot,
	cfg BankReconciledConfig,
	inc decimal.Decimal,
	statementBalQ decimal.Decimal,
	values map[string]any,
) model.Status {
	values["statement_balance_attachment_evidence_type"] = cfg.AttachmentEvidenceType

	var attachment *model.EvidenceItem
	for _, item := range ctx.Evidence.All(cfg.AttachmentEvidenceType) {
		if item.MetaString("account_ref") == rec.AccountRef {
			attachment = &item
			break
		}
	}

	var status model.Status
	switch {
	case attachment == nil, attachment != nil && !attachment.Amount.Valid:
		status = cfg.MissingStatus()
	default:
		amountQ := money.Quantize(attachment.Amount.Decimal, inc)
		values["attachment_amount"] = decStr(amountQ)
		values["attachment_uri"] = attachment.URI
		if !attachment.StatementEndDate.IsZero() {
			values["attachment_statement_end_date"] = dates.Format(attachment.StatementEndDate)
		}
		if !attachment.StatementEndDate.IsZero() && !dates.SameDay(attachment.StatementEndDate, rec.StatementEndDate) {
			status = model.StatusFail
		} else {
			diff := statementBalQ.Sub(amountQ).Abs()
			values["attachment_balance_difference"] = decStr(diff)
			if diff.IsZero() {
				status = model.StatusPass
			} else {
				status = model.StatusFail
			}
		}
	}
	values["attachment_status"] = string(status)
	return status
}

// capStrings truncates a slice for detail payloads.
func capStrings(in []string, max int) []string {
	if len(in) <= max {
		return in
	}
	return in[:max]
}
