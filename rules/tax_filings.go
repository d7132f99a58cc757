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

// TaxFilingsConfig configures BS-TAX-FILINGS-UP-TO-DATE.
type TaxFilingsConfig struct {
	config.Base

	TaxAgenciesEvidenceType string `json:"tax_agencies_evidence_type" schema:"type:string,description:Evidence type carrying tax agencies,category:advanced,default:tax_agencies"`
	TaxReturnsEvidenceType  string `json:"tax_returns_evidence_type" schema:"type:string,description:Evidence type carrying tax returns,category:advanced,default:tax_returns"`

	// ExcludeAgencyNamePatterns drops placeholder agencies from scope.
	ExcludeAgencyNamePatterns []string `json:"exclude_agency_name_patterns,omitempty" schema:"type:list,description:Agency name fragments excluded from scope,category:advanced"`

	// DelinquentStatus is the status when filings are behind schedule.
	DelinquentStatus model.Status `json:"delinquent_status" schema:"type:string,description:Status when filings are behind the expected period (WARN or FAIL),category:advanced,default:FAIL"`
}

// DefaultTaxFilingsConfig returns the rule defaults.
func DefaultTaxFilingsConfig() TaxFilingsConfig {
	return TaxFilingsConfig{
		Base:                      config.DefaultBase(),
		TaxAgenciesEvidenceType:   "tax_agencies",
		TaxReturnsEvidenceType:    "tax_returns",
		ExcludeAgencyNamePatterns: []string{"no tax agency"},
		DelinquentStatus:          model.StatusFail,
	}
}

// Validate checks the payload on top of the base checks.
func (c TaxFilingsConfig) Validate() error {
	if err := c.Base.Validate(); err != nil {
		return err
	}
	switch c.DelinquentStatus {
	case model.StatusWarn, model.StatusFail:
	default:
		return fmt.Errorf("delinquent_status must be WARN or FAIL, got %q", c.DelinquentStatus)
	}
	return nil
}

// taxAgency is one agency row from the tax_agencies evidence.
type taxAgency struct {
	agencyID          string
	displayName       string
	lastFileDate      time.Time
	taxTrackedOnSales bool
}

// taxReturn is one return row from the tax_returns evidence.
type taxReturn struct {
	agencyID        string
	startDate       time.Time
	endDate         time.Time
	fileDate        time.Time
	netTaxAmountDue decimal.NullDecimal
}

func parseTaxAgencies(item model.EvidenceItem) []taxAgency {
	items, _ := item.MetaItems()
	agencies := make([]taxAgency, 0, len(items))
	for _, entry := range items {
		lastFile, _ := dates.Parse(entry["last_file_date"])
		agencies = append(agencies, taxAgency{
			agencyID:          firstStringOf(entry, "id", "agency_id"),
			displayName:       firstStringOf(entry, "display_name", "name"),
			lastFileDate:      lastFile,
			taxTrackedOnSales: entry["tax_tracked_on_sales"] == true,
		})
	}
	return agencies
}

func parseTaxReturns(item model.EvidenceItem) []taxReturn {
	items, _ := item.MetaItems()
	returns := make([]taxReturn, 0, len(items))
	for _, entry := range items {
		start, _ := dates.Parse(entry["start_date"])
		end, _ := dates.Parse(entry["end_date"])
		file, _ := dates.Parse(entry["file_date"])
		returns = append(returns, taxReturn{
			agencyID:        firstStringOf(entry, "agency_id"),
			startDate:       start,
			endDate:         end,
			fileDate:        file,
			netTaxAmountDue: money.ParseAny(entry["net_tax_amount_due"]),
		})
	}
	return returns
}

// cadenceMonths infers the filing cadence from a return's inclusive period
// length in days: 28–31 days is monthly, 89–92 quarterly, 365–366 annual.
// The ranges come from observed filing data; a period outside them is
// ambiguous and the caller reports it for review rather than guessing.
func cadenceMonths(start, end time.Time) (int, bool) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0, false
	}
	days := dates.DaysBetween(start, end) + 1
	switch {
	case days >= 28 && days <= 31:
		return 1, true
	case days >= 89 && days <= 92:
		return 3, true
	case days >= 365 && days <= 366:
		return 12, true
	}
	return 0, false
}

// expectedFilingPeriodEnd rolls the cadence from the anchor period end and
// returns the most recent scheduled period end on or before periodEnd. The
// cadence is rolling from the agency's own filing anchor, never aligned to
// calendar quarters.
func expectedFilingPeriodEnd(periodEnd time.Time, cadence int, anchorEnd time.Time) (time.Time, bool) {
	if anchorEnd.IsZero() {
		return time.Time{}, false
	}
	current := anchorEnd
	if current.After(periodEnd) {
		for current.After(periodEnd) {
			current = dates.AddMonthsPreservingMonthEnd(current, -cadence)
		}
		return current, true
	}
	for {
		next := dates.AddMonthsPreservingMonthEnd(current, cadence)
		if next.After(periodEnd) {
			return current, true
		}
		current = next
	}
}

// latestFiledReturn picks the filed return with the greatest period end,
// falling back to file date for returns without one.
func latestFiledReturn(returns []taxReturn) (taxReturn, bool) {
	var (
		best  taxReturn
		found bool
	)
	rank := func(r taxReturn) time.Time {
		if !r.endDate.IsZero() {
			return r.endDate
		}
		return r.fileDate
	}
	for _, r := range returns {
		if r.fileDate.IsZero() {
			continue
		}
		if !found || rank(r).After(rank(best)) {
			best = r
			found = true
		}
	}
	return best, found
}

// TaxFilingsUpToDate verifies every sales-tax agency has filed through the
// most recent scheduled period ending on or before the MER date, with the cadence
// inferred from the agency's own filed returns.
type TaxFilingsUpToDate struct{}

func (TaxFilingsUpToDate) Info() engine.Info {
	return engine.Info{
		ID:                     "BS-TAX-FILINGS-UP-TO-DATE",
		Title:                  "Sales tax filings completed through most recent period",
		BestPracticesReference: "Tax accounts",
		Sources:                []string{"QBO (TaxAgency, TaxReturn)"},
		NewConfig:              func() any { cfg := DefaultTaxFilingsConfig(); return &cfg },
	}
}

func (r TaxFilingsUpToDate) Evaluate(ctx *engine.Context) (model.Result, error) {
	info := r.Info()
	cfg := DefaultTaxFilingsConfig()
	if err := loadConfig(ctx, info, &cfg); err != nil {
		return model.Result{}, err
	}
	if !cfg.Enabled {
		return disabledResult(info), nil
	}
	missingStatus := cfg.MissingStatus()

	agenciesItem, agenciesFound := ctx.Evidence.First(cfg.TaxAgenciesEvidenceType)
	returnsItem, returnsFound := ctx.Evidence.First(cfg.TaxReturnsEvidenceType)
	if !agenciesFound || !returnsFound {
		res := newResult(info, missingStatus, "Missing tax agency/return data; cannot verify filings.")
		if agenciesFound {
			res.EvidenceUsed = append(res.EvidenceUsed, agenciesItem)
		}
		if returnsFound {
			res.EvidenceUsed = append(res.EvidenceUsed, returnsItem)
		}
		res.HumanAction = "Provide TaxAgency and TaxReturn data from QBO."
		return res, nil
	}

	agencies := parseTaxAgencies(agenciesItem)
	returns := parseTaxReturns(returnsItem)
	if len(agencies) == 0 || len(returns) == 0 {
		res := newResult(info, missingStatus, "Tax agency/return data is empty; cannot verify filings.")
		res.EvidenceUsed = []model.EvidenceItem{agenciesItem, returnsItem}
		res.HumanAction = "Confirm TaxAgency and TaxReturn exports contain data."
		return res, nil
	}

	var inScope []taxAgency
	for _, agency := range agencies {
		if agency.taxTrackedOnSales && !matchesAny(agency.displayName, cfg.ExcludeAgencyNamePatterns) {
			inScope = append(inScope, agency)
		}
	}
	if len(inScope) == 0 {
		res := newResult(info, model.StatusNotApplicable, "No sales tax agencies tracked on sales; not applicable.")
		res.EvidenceUsed = []model.EvidenceItem{agenciesItem}
		return res, nil
	}

	var (
		statuses []model.Status
		details  []model.Detail
	)
	for _, agency := range inScope {
		key := agency.agencyID
		if key == "" {
			key = agency.displayName
		}
		var agencyReturns []taxReturn
		for _, ret := range returns {
			if ret.agencyID == agency.agencyID {
				agencyReturns = append(agencyReturns, ret)
			}
		}

		// Filings can land after period end, so all filed returns count
		// toward coverage.
		latest, filed := latestFiledReturn(agencyReturns)
		if !filed {
			statuses = append(statuses, missingStatus)
			values := statusValues(missingStatus)
			values["agency_name"] = agency.displayName
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			details = append(details, model.Detail{
				Key:     key,
				Message: "No filed tax returns found for agency.",
				Values:  values,
			})
			continue
		}
		if latest.startDate.IsZero() || latest.endDate.IsZero() {
			statuses = append(statuses, missingStatus)
			values := statusValues(missingStatus)
			values["agency_name"] = agency.displayName
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			details = append(details, model.Detail{
				Key:     key,
				Message: "Latest filed return missing period dates.",
				Values:  values,
			})
			continue
		}

		cadence, cadenceOK := cadenceMonths(latest.startDate, latest.endDate)
		if !cadenceOK {
			statuses = append(statuses, missingStatus)
			values := statusValues(missingStatus)
			values["agency_name"] = agency.displayName
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			values["latest_filed_start"] = dates.Format(latest.startDate)
			values["latest_filed_end"] = dates.Format(latest.endDate)
			values["period_length_days"] = dates.DaysBetween(latest.startDate, latest.endDate) + 1
			details = append(details, model.Detail{
				Key:     key,
				Message: "Unable to infer tax filing cadence for agency.",
				Values:  values,
			})
			continue
		}

		expectedEnd, ok := expectedFilingPeriodEnd(ctx.PeriodEnd, cadence, latest.endDate)
		if !ok {
			statuses = append(statuses, missingStatus)
			values := statusValues(missingStatus)
			values["agency_name"] = agency.displayName
			values["period_end"] = dates.Format(ctx.PeriodEnd)
			details = append(details, model.Detail{
				Key:     key,
				Message: "Unable to determine expected filing period end.",
				Values:  values,
			})
			continue
		}

		status := model.StatusPass
		if latest.endDate.Before(expectedEnd) {
			status = cfg.DelinquentStatus
		}
		statuses = append(statuses, status)

		values := statusValues(status)
		values["agency_name"] = agency.displayName
		values["period_end"] = dates.Format(ctx.PeriodEnd)
		values["latest_filed_start"] = dates.Format(latest.startDate)
		values["latest_filed_end"] = dates.Format(latest.endDate)
		values["latest_file_date"] = dates.Format(latest.fileDate)
		values["expected_period_end"] = dates.Format(expectedEnd)
		values["cadence_months"] = cadence
		details = append(details, model.Detail{
			Key:     key,
			Message: "Tax filing cadence evaluated for agency.",
			Values:  values,
		})
	}

	overall := model.WorstStatus(statuses...)
	summary := fmt.Sprintf("Sales tax filings are up to date through %s.", dates.Format(ctx.PeriodEnd))
	if overall != model.StatusPass {
		summary = "Sales tax filings are not up to date for one or more agencies."
	}
	if overall == missingStatus && overall != model.StatusPass {
		summary = "Missing or incomplete tax return data; cannot verify filings."
	}

	res := newResult(info, overall, summary)
	res.Details = details
	res.EvidenceUsed = []model.EvidenceItem{agenciesItem, returnsItem}
	if overall == cfg.DelinquentStatus {
		res.HumanAction = "File missing sales tax returns and document filing periods."
	} else if overall == model.StatusNeedsReview {
		res.HumanAction = "Complete the tax agency/return data so filing cadence can be verified."
	}
	return res, nil
}
