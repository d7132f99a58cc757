package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EvidenceItem is one entry from the evidence manifest: a statement balance,
// an aging report total, a tax export, a working-paper amount. Rules key on
// EvidenceType; the per-type meta shapes are documented with each rule.
type EvidenceItem struct {
	// EvidenceType identifies the kind of evidence; never empty.
	EvidenceType string `json:"evidence_type"`

	// Source names where the item came from (adapter-assigned, informational).
	Source string `json:"source,omitempty"`

	// AsOfDate is the date the evidence speaks to; zero when unknown.
	AsOfDate time.Time `json:"as_of_date,omitempty"`

	// StatementEndDate is set for statement-style evidence; zero when unknown.
	StatementEndDate time.Time `json:"statement_end_date,omitempty"`

	// Amount is the extracted amount, when the evidence carries one.
	Amount decimal.NullDecimal `json:"amount,omitempty"`

	// URI points at the underlying artifact for reviewer drill-down.
	URI string `json:"uri,omitempty"`

	// Meta carries per-type structured payloads (items lists, account refs).
	Meta map[string]any `json:"meta,omitempty"`
}

// MetaString returns meta[key] as a trimmed-free string, or "" when the key
// is absent or not a string.
func (e EvidenceItem) MetaString(key string) string {
	if e.Meta == nil {
		return ""
	}
	s, _ := e.Meta[key].(string)
	return s
}

// MetaItems returns meta["items"] as a slice of maps. The second return is
// false when the key is missing or not a list; non-map entries are skipped.
func (e EvidenceItem) MetaItems() ([]map[string]any, bool) {
	if e.Meta == nil {
		return nil, false
	}
	raw, ok := e.Meta["items"].([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, true
}

// EvidenceBundle is the unordered collection of evidence for a run.
type EvidenceBundle struct {
	Items []EvidenceItem `json:"items"`
}

// First returns the first item of the given type, or false when none exists.
func (b *EvidenceBundle) First(evidenceType string) (EvidenceItem, bool) {
	if b == nil {
		return EvidenceItem{}, false
	}
	for _, item := range b.Items {
		if item.EvidenceType == evidenceType {
			return item, true
		}
	}
	return EvidenceItem{}, false
}

// All returns every item of the given type, preserving bundle order.
func (b *EvidenceBundle) All(evidenceType string) []EvidenceItem {
	if b == nil {
		return nil
	}
	var out []EvidenceItem
	for _, item := range b.Items {
		if item.EvidenceType == evidenceType {
			out = append(out, item)
		}
	}
	return out
}
