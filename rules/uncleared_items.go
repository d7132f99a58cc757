package rules

import (
	"fmt"
	"sort"

	"github.com/rayzelltj/mer-review-agent/config"
	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// UnclearedItemsConfig configures BS-UNCLEARED-ITEMS-INVESTIGATED-AND-FLAGGED.
type UnclearedItemsConfig struct {
	config.Base

	// ExpectedAccounts optionally pins the scope; a missing snapshot for an
	// expected account follows the missing-data policy. Empty means evaluate
	// every provided reconciliation snapshot.
	ExpectedAccounts []string `json:"expected_accounts,omitempty" schema:"type:list,description:Account refs expected to have reconciliation snapshots,category:basic"`

	// MonthsOldThreshold flags uncleared items older than this many calendar
	// months as of the statement end date: txn_date < statement_end - N
	// months, strictly earlier.
	MonthsOldThreshold int `json:"months_old_threshold" schema:"type:int,description:Flag uncleared items older than this many calendar months,category:basic,default:2"`

	// StaleItemStatus is the status when stale items are found (WARN by
	// default; FAIL per client policy).
	StaleItemStatus model.Status `json:"stale_item_status" schema:"type:string,description:Status assigned when stale uncleared items exist (WARN or FAIL),category:advanced,default:WARN"`

	// MaxFlaggedItemsInDetail caps the flagged-item sample per account.
	MaxFlaggedItemsInDetail int `json:"max_flagged_items_in_detail" schema:"type:int,description:Cap on flagged items included per detail entry,category:advanced,default:20"`
}

// DefaultUnclearedItemsConfig returns the rule defaults.
func DefaultUnclearedItemsConfig() UnclearedItemsConfig {
	return UnclearedItemsConfig{
		Base:                    config.DefaultBase(),
		MonthsOldThreshold:      2,
		StaleItemStatus:         model.StatusWarn,
		MaxFlaggedItemsInDetail: 20,
	}
}

// Validate checks the payload on top of the base checks.
func (c UnclearedItemsConfig) Validate() error {
	if err := c.Base.Validate(); err != nil {
		return err
	}
	switch c.StaleItemStatus {
	case model.StatusWarn, model.StatusFail:
	default:
		return fmt.Errorf("stale_item_status must be WARN or FAIL, got %q", c.StaleItemStatus)
	}
	if c.MonthsOldThreshold < 0 {
		return fmt.Errorf("months_old_threshold must not be negative")
	}
	return nil
}

// UnclearedItemsInvestigatedAndFlagged flags uncleared register items that
// have sat on the reconciliation's "as at" section for more than the
// configured number of calendar months. The "after date" section is new
// activity past the statement cutoff and is ignored entirely.
type UnclearedItemsInvestigatedAndFlagged struct{}

func (UnclearedItemsInvestigatedAndFlagged) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-UNCLEARED-ITEMS-INVESTIGATED-AND-FLAGGED",
		Title:                  "Uncleared transactions are investigated and explained",
		BestPracticesReference: "Bank reconciliations → Uncleared items",
		Sources:                []string{"Reconciliation report (detailed)"},
		NewConfig:              func() any { cfg := DefaultUnclearedItemsConfig(); return &cfg },
	}
}

func (r UnclearedItemsInvestigatedAndFlagged) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultUnclearedItemsConfig()
	if err := loadConfig(ctx, info, &cfg); err != nil {
		return model.Result{}, err
	}
	if !cfg.Enabled {
		return disabledResult(info), nil
	}
	missingStatus := cfg.MissingStatus()

	requiredRefs := cfg.ExpectedAccounts
	if len(requiredRefs) == 0 {
		for _, rec := range ctx.Reconciliations {
			requiredRefs = append(requiredRefs, rec.AccountRef)
		}
	}
	if len(requiredRefs) == 0 {
		res := newResult(info, missingStatus, fmt.Sprintf(
			"No reconciliation snapshots provided for %s; cannot evaluate uncleared items.",
			dates.Format(ctx.PeriodEnd)))
		res.HumanAction = "Provide reconciliation detailed report data (uncleared items as at statement end date)."
		return res, nil
	}

	nameByRef := make(map[string]string, len(ctx.BalanceSheet.Accounts))
	for _, acct := range ctx.BalanceSheet.Accounts {
		nameByRef[acct.AccountRef] = acct.Name
	}

	var (
		statuses []model.Status
		details  []model.Detail
	)
	for _, ref := range requiredRefs {
		rec, found := model.LatestReconciliation(ctx.Reconciliations, ref)
		if !found {
			values := statusValues(missingStatus)
			values["account_name"] = nameByRef[ref]
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			values["expected_from_maintenance"] = len(cfg.ExpectedAccounts) > 0
			statuses = append(statuses, missingStatus)
			details = append(details, model.Detail{
				Key:     ref,
				Message: "Missing reconciliation snapshot for this account; cannot evaluate uncleared items.",
				Values:  values,
			})
			continue
		}
		status, detail := r.evaluateAccount(ctx, rec, cfg, nameByRef[ref])
		statuses = append(statuses, status)
		details = append(details, detail)
	}

	overall := model.WorstStatus(statuses...)
	res := newResult(info, overall, unclearedSummary(ctx, cfg, overall, details))
	res.Details = details
	if overall == model.StatusWarn || overall == model.StatusFail || overall == model.StatusNeedsReview {
		res.HumanAction = fmt.Sprintf(
			"Review uncleared items as at the reconciliation statement end date; flag any items older than "+
				"%d month(s) and check with the client for explanations or corrections.", cfg.MonthsOldThreshold)
	}
	return res, nil
}

func unclearedSummary(ctx *engine.Context, cfg UnclearedItemsConfig, overall model.Status, details []model.Detail) string {
	exemplar := exemplarDetail(details, overall)
	switch overall {
	case model.StatusPass:
		return "No stale uncleared items detected (across evaluated accounts)."
	case model.StatusWarn, model.StatusFail:
		if exemplar != nil {
			return fmt.Sprintf("Uncleared items older than %d month(s) exist for '%v' as of %v; investigate and explain.",
				cfg.MonthsOldThreshold, exemplar.Values["account_name"], exemplar.Values["as_at_date"])
		}
		return fmt.Sprintf("Uncleared items older than %d month(s) exist; investigate and explain.", cfg.MonthsOldThreshold)
	case model.StatusNeedsReview:
		return fmt.Sprintf("Missing data prevented evaluation of uncleared items as of %s.", dates.Format(ctx.PeriodEnd))
	}
	return "Not applicable."
}

type flaggedUnclearedItem struct {
	TxnDate     string `json:"txn_date"`
	Description string `json:"description"`
	Amount      any    `json:"amount"`
	Type        string `json:"type"`
	Reference   string `json:"reference"`
}

func (r UnclearedItemsInvestigatedAndFlagged) evaluateAccount(
	ctx *engine.Context,
	rec model.ReconciliationSnapshot,
	cfg UnclearedItemsConfig,
	accountNameFallback string,
) (model.Status, model.Detail) {
	accountName := rec.AccountName
	if accountName == "" {
		accountName = accountNameFallback
	}
	missingStatus := cfg.MissingStatus()

	if rec.StatementEndDate.IsZero() {
		values := statusValues(missingStatus)
		values["account_name"] = accountName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		return missingStatus, model.Detail{
			Key:     rec.AccountRef,
			Message: "Missing statement end date; cannot evaluate uncleared item age.",
			Values:  values,
		}
	}

	asAtItems, afterDateItems := rec.UnclearedItems()
	if asAtItems == nil {
		values := statusValues(missingStatus)
		values["account_name"] = accountName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["as_at_date"] = dates.Format(rec.StatementEndDate)
		return missingStatus, model.Detail{
			Key:     rec.AccountRef,
			Message: "Missing uncleared items (as at statement end date) in reconciliation metadata.",
			Values:  values,
		}
	}

	thresholdDate := dates.AddMonths(rec.StatementEndDate, -cfg.MonthsOldThreshold)

	var flagged []flaggedUnclearedItem
	invalidCount := 0
	for _, item := range asAtItems {
		txnDate, ok := dates.Parse(firstOf(item, "txn_date", "date", "transaction_date"))
		if !ok {
			invalidCount++
			continue
		}
		if txnDate.Before(thresholdDate) {
			amount := item["amount"]
			if parsed := money.ParseAny(amount); parsed.Valid {
				amount = parsed.Decimal.String()
			}
			flagged = append(flagged, flaggedUnclearedItem{
				TxnDate:     dates.Format(txnDate),
				Description: firstStringOf(item, "description", "memo", "name"),
				Amount:      amount,
				Type:        firstStringOf(item, "type", "txn_type"),
				Reference:   firstStringOf(item, "reference", "ref"),
			})
		}
	}

	var status model.Status
	switch {
	case invalidCount > 0:
		status = missingStatus
	case len(flagged) > 0:
		status = cfg.StaleItemStatus
	default:
		status = model.StatusPass
	}

	sort.Slice(flagged, func(i, j int) bool { return flagged[i].TxnDate < flagged[j].TxnDate })
	sampleCap := cfg.MaxFlaggedItemsInDetail
	if sampleCap < 0 {
		sampleCap = 0
	}
	sample := flagged
	if len(sample) > sampleCap {
		sample = sample[:sampleCap]
	}

	values := statusValues(status)
	values["account_name"] = accountName
	values["period_end"] = dates.Format(ctx.PeriodEnd)
	values["as_at_date"] = dates.Format(rec.StatementEndDate)
	values["months_old_threshold"] = cfg.MonthsOldThreshold
	values["threshold_date"] = dates.Format(thresholdDate)
	values["uncleared_items_as_at_count"] = len(asAtItems)
	values["uncleared_items_after_date_ignored_count"] = len(afterDateItems)
	values["invalid_uncleared_item_date_count"] = invalidCount
	values["flagged_uncleared_items_count"] = len(flagged)
	values["flagged_uncleared_items_sample"] = sample

	return status, model.Detail{
		Key:     rec.AccountRef,
		Message: "Uncleared items age evaluated (as at statement end date; 'after date' items ignored).",
		Values:  values,
	}
}

// firstOf returns the first present key's value from an item map.
func firstOf(item map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := item[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstStringOf returns the first present key's non-empty string value.
func firstStringOf(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := item[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
