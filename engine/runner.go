package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rayzelltj/mer-review-agent/model"
)

// Runner executes every registered rule against a context and assembles a
// run report. Rules run in isolation: a rule that returns an error or panics
// becomes a NEEDS_REVIEW result and the run continues. No error ever escapes
// Run — the engine's contract is "always produce a report".
type Runner struct {
	registry    *Registry
	logger      *slog.Logger
	parallelism int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger used for isolation events (recovered panics,
// invalid configs). Rules themselves never log.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithParallelism evaluates rules across up to n goroutines. Rules share no
// mutable state, so this is safe; results are still emitted in registration
// order. n < 2 keeps the runner sequential.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) { r.parallelism = n }
}

// NewRunner creates a runner over the given registry.
func NewRunner(registry *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{registry: registry}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run evaluates every registered rule, in registration order, and returns
// the aggregated report.
func (r *Runner) Run(ctx *Context) model.RunReport {
	return r.run(ctx, nil)
}

// RunRules evaluates only the named rules (ids not in the registry are
// skipped), preserving registration order among those that remain. Hosts use
// this to re-run a subset of checks after data corrections.
func (r *Runner) RunRules(ctx *Context, ruleIDs ...string) model.RunReport {
	wanted := make(map[string]bool, len(ruleIDs))
	for _, id := range ruleIDs {
		wanted[id] = true
	}
	return r.run(ctx, wanted)
}

func (r *Runner) run(ctx *Context, wanted map[string]bool) model.RunReport {
	rules := r.registry.Rules()
	selected := rules[:0:0]
	for _, rule := range rules {
		if wanted != nil && !wanted[rule.Info().ID] {
			continue
		}
		selected = append(selected, rule)
	}

	results := make([]model.Result, len(selected))
	if r.parallelism > 1 && len(selected) > 1 {
		var wg sync.WaitGroup
		sem := make(chan struct{}, r.parallelism)
		for i, rule := range selected {
			wg.Add(1)
			go func(i int, rule Rule) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				results[i] = r.evaluate(ctx, rule)
			}(i, rule)
		}
		wg.Wait()
	} else {
		for i, rule := range selected {
			results[i] = r.evaluate(ctx, rule)
		}
	}

	totals := make(map[model.Status]int)
	for _, res := range results {
		totals[res.Status]++
	}

	return model.RunReport{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		PeriodEnd:   ctx.PeriodEnd,
		Results:     results,
		Totals:      totals,
	}
}

// evaluate runs one rule with panic and error isolation.
func (r *Runner) evaluate(ctx *Context, rule Rule) (result model.Result) {
	info := rule.Info()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("rule panicked during evaluation",
				"rule_id", info.ID, "panic", rec)
			result = r.failureResult(info, fmt.Errorf("panic: %v", rec))
		}
	}()

	result, err := rule.Evaluate(ctx)
	if err != nil {
		result = r.failureResult(info, err)
	}
	return result
}

// failureResult builds the NEEDS_REVIEW result for a rule the runner had to
// isolate. Configuration errors get a distinct summary so reviewers can route
// them to whoever maintains the client config.
func (r *Runner) failureResult(info Info, err error) model.Result {
	summary := "Rule evaluation failed with an internal error."
	action := "Report this rule failure to the engineering team; the check was not evaluated."
	if IsConfigError(err) {
		summary = "Rule configuration invalid; the check was not evaluated."
		action = "Fix the client configuration payload for this rule and re-run the review."
		r.logger.Warn("rule configuration invalid", "rule_id", info.ID, "error", err)
	} else {
		r.logger.Error("rule evaluation failed", "rule_id", info.ID, "error", err)
	}
	return model.Result{
		RuleID:                 info.ID,
		RuleTitle:              info.Title,
		BestPracticesReference: info.BestPracticesReference,
		Sources:                info.Sources,
		Status:                 model.StatusNeedsReview,
		Severity:               model.SeverityForStatus(model.StatusNeedsReview),
		Summary:                summary,
		Details: []model.Detail{{
			Key:     "error",
			Message: err.Error(),
			Values:  map[string]any{"status": string(model.StatusNeedsReview)},
		}},
		HumanAction: action,
	}
}
