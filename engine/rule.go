// Package engine defines the rule contract, the immutable evaluation
// context, the process-wide registry, and the runner that turns a context
// into a run report. The engine performs no I/O: rules are pure decision
// functions over the context.
package engine

import (
	"github.com/rayzelltj/mer-review-agent/model"
)

// Info is the static metadata a rule exposes for registration, reporting,
// and catalog export.
type Info struct {
	// ID uniquely identifies the rule (e.g. "BS-PETTY-CASH-MATCH").
	ID string

	// Title is the reviewer-facing one-liner for the check.
	Title string

	// BestPracticesReference points at the firm checklist section the rule
	// enforces.
	BestPracticesReference string

	// Sources names the upstream systems the rule's inputs come from.
	Sources []string

	// NewConfig returns a pointer to the rule's config payload populated
	// with defaults. The catalog reflects over it to emit the config schema;
	// the zero result must always be safe to evaluate with.
	NewConfig func() any
}

// Rule is a named evaluator over a Context. Implementations must be
// deterministic for identical inputs, must not mutate the context, and must
// not perform I/O. A non-nil error marks a failure the rule could not map to
// a status itself (invalid configuration, internal bug); the runner converts
// it into a NEEDS_REVIEW result.
type Rule interface {
	Info() Info
	Evaluate(ctx *Context) (model.Result, error)
}
