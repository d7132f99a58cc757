// Package config carries the per-client rule configuration envelope. The
// envelope arrives fully resolved from the host: a JSON object per rule id.
// Unknown rule ids are ignored; a missing entry means the rule runs on its
// defaults; a payload that fails to decode is an invalid configuration for
// that rule only and never aborts a run.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rayzelltj/mer-review-agent/model"
	"github.com/rayzelltj/mer-review-agent/money"
)

// Client is the client-level configuration envelope keyed by rule id.
type Client struct {
	Rules map[string]json.RawMessage `json:"rules,omitempty"`
}

// NewClient builds an envelope from raw per-rule payloads.
func NewClient(rules map[string]json.RawMessage) Client {
	return Client{Rules: rules}
}

// SetPayload marshals payload and stores it under ruleID. Intended for hosts
// and tests assembling an envelope programmatically.
func (c *Client) SetPayload(ruleID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal config payload for %s: %w", ruleID, err)
	}
	if c.Rules == nil {
		c.Rules = make(map[string]json.RawMessage)
	}
	c.Rules[ruleID] = raw
	return nil
}

// Decode unmarshals the payload for ruleID into cfg, which should arrive
// pre-populated with the rule's defaults so absent fields keep them. Unknown
// fields in the payload are ignored; type mismatches and malformed JSON are
// errors. When cfg implements Validate() error, it is run after decoding.
func (c Client) Decode(ruleID string, cfg any) error {
	raw, ok := c.Rules[ruleID]
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("decode config for %s: %w", ruleID, err)
		}
	}
	if v, ok := cfg.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("validate config for %s: %w", ruleID, err)
		}
	}
	return nil
}

// Base holds the fields every rule config supports. Rules embed it in their
// typed payloads.
type Base struct {
	// Enabled gates the rule; a disabled rule reports NOT_APPLICABLE without
	// evaluating anything.
	Enabled bool `json:"enabled" schema:"type:bool,description:Evaluate this rule for the client,category:basic,default:true"`

	// MissingDataPolicy is the status reported when a required input is
	// absent: NEEDS_REVIEW (default) or NOT_APPLICABLE.
	MissingDataPolicy model.MissingDataPolicy `json:"missing_data_policy" schema:"type:string,description:Status when required data is missing (NEEDS_REVIEW or NOT_APPLICABLE),category:advanced,default:NEEDS_REVIEW"`

	// AmountQuantize is an optional decimal increment string such as "0.01".
	// When set, amounts are quantized (banker's rounding) before comparison;
	// otherwise comparisons are exact.
	AmountQuantize string `json:"amount_quantize,omitempty" schema:"type:string,description:Optional decimal increment for amount comparisons (e.g. 0.01),category:advanced"`
}

// DefaultBase returns the base defaults shared by every rule.
func DefaultBase() Base {
	return Base{
		Enabled:           true,
		MissingDataPolicy: model.MissingDataNeedsReview,
	}
}

// Validate checks the base fields.
func (b Base) Validate() error {
	switch b.MissingDataPolicy {
	case "", model.MissingDataNeedsReview, model.MissingDataNotApplicable:
	default:
		return fmt.Errorf("missing_data_policy must be NEEDS_REVIEW or NOT_APPLICABLE, got %q", b.MissingDataPolicy)
	}
	if _, err := money.ParseIncrement(b.AmountQuantize); err != nil {
		return err
	}
	return nil
}

// MissingStatus resolves the configured missing-data policy to a status.
func (b Base) MissingStatus() model.Status {
	return b.MissingDataPolicy.Status()
}

// Increment parses the configured quantization increment; zero when unset.
func (b Base) Increment() (decimal.Decimal, error) {
	return money.ParseIncrement(b.AmountQuantize)
}

// VarianceThreshold is the tolerance for a balance that should be zero:
// the allowed variance is max(floor_amount, |revenue| * pct_of_revenue).
type VarianceThreshold struct {
	FloorAmount  decimal.Decimal `json:"floor_amount" schema:"type:string,description:Absolute tolerance floor,category:basic,default:0"`
	PctOfRevenue decimal.Decimal `json:"pct_of_revenue" schema:"type:string,description:Tolerance as a fraction of period revenue,category:basic,default:0"`
}

// IsConfigured reports whether either component of the threshold is set.
func (t VarianceThreshold) IsConfigured() bool {
	return !t.FloorAmount.IsZero() || !t.PctOfRevenue.IsZero()
}

// AccountOverride names one account in a rule's scope, optionally with its
// own tolerance.
type AccountOverride struct {
	AccountRef  string             `json:"account_ref" schema:"type:string,description:Balance Sheet account ref,category:basic,required:true"`
	AccountName string             `json:"account_name,omitempty" schema:"type:string,description:Display name for reporting,category:basic"`
	Threshold   *VarianceThreshold `json:"threshold,omitempty" schema:"type:object,description:Per-account tolerance override,category:advanced"`
}
