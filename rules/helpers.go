// Package rules implements the balance-sheet MER rule catalog. Every rule is
// independent: rules share only the domain model, the config envelope, and
// the money/dates utilities. RegisterBuiltins wires the catalog into an
// engine registry.
package rules

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/rayzelltj/mer-review-agent/dates"
	"github.com/rayzelltj/mer-review-agent/engine"
	"github.com/rayzelltj/mer-review-agent/model"
)

// newResult builds a result shell for a rule with severity derived from the
// status by the fixed firm mapping.
func newResult(info engine.Info, status model.Status, summary string) model.Result {
	return model.Result{
		RuleID:                 info.ID,
		RuleTitle:              info.Title,
		BestPracticesReference: info.BestPracticesReference,
		Sources:                info.Sources,
		Status:                 status,
		Severity:               model.SeverityForStatus(status),
		Summary:                summary,
	}
}

// disabledResult is the uniform preamble outcome for enabled=false.
func disabledResult(info engine.Info) model.Result {
	return newResult(info, model.StatusNotApplicable, "Rule disabled by client configuration.")
}

// loadConfig decodes the rule's payload over pre-populated defaults. Any
// decode or validation failure is wrapped as a ConfigError so the runner
// reports "configuration invalid" for this rule only.
func loadConfig(ctx *engine.Context, info engine.Info, cfg any) error {
	if err := ctx.Config.Decode(info.ID, cfg); err != nil {
		return engine.NewConfigError(err)
	}
	return nil
}

// containsFold reports whether s contains substr, case-insensitively.
// Whitespace is significant; only letter case folds.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// matchesAny reports whether name matches any of the given substring
// patterns, case-insensitively. Empty patterns never match.
func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if containsFold(name, p) {
			return true
		}
	}
	return false
}

// hasToken reports whether name contains token as a whole token: the
// characters on either side of the match, if any, must not be letters or
// digits. This keeps "A/P" from matching inside longer words while still
// matching "A/P Trade" or "Trade A/P".
func hasToken(name, token string) bool {
	lowered := strings.ToLower(name)
	token = strings.ToLower(token)
	for start := 0; ; {
		idx := strings.Index(lowered[start:], token)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(token)
		beforeOK := idx == 0 || !isWordChar(rune(lowered[idx-1]))
		afterOK := end == len(lowered) || !isWordChar(rune(lowered[end]))
		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
	}
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// asOfMatches reports whether the evidence item's as-of date equals the
// review period end.
func asOfMatches(item model.EvidenceItem, periodEnd time.Time) bool {
	return !item.AsOfDate.IsZero() && dates.SameDay(item.AsOfDate, periodEnd)
}

// statusValues returns the standard per-detail values map seeded with the
// detail's own status; callers add their fields on top.
func statusValues(status model.Status) map[string]any {
	return map[string]any{"status": string(status)}
}

// decStr renders a decimal for a detail value.
func decStr(d decimal.Decimal) string {
	return d.String()
}

// nullDecStr renders a nullable decimal for a detail value; nil when unset.
func nullDecStr(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
