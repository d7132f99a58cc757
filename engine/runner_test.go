package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/model"
)

type panicRule struct{}

func (panicRule) Info() Info { return Info{ID: "PANIC", Title: "Panics"} }

func (panicRule) Evaluate(ctx *Context) (model.Result, error) {
	panic("boom")
}

type errorRule struct{ err error }

func (r errorRule) Info() Info { return Info{ID: "ERROR", Title: "Errors"} }

func (r errorRule) Evaluate(ctx *Context) (model.Result, error) {
	return model.Result{}, r.err
}

func passResult(id string) model.Result {
	return model.Result{
		RuleID:   id,
		Status:   model.StatusPass,
		Severity: model.SeverityInfo,
	}
}

func testContext() *Context {
	return &Context{
		PeriodEnd: time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestRunnerAggregatesTotals(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubRule{id: "A", result: passResult("A")}))
	require.NoError(t, registry.Register(stubRule{id: "B", result: model.Result{RuleID: "B", Status: model.StatusFail}}))
	require.NoError(t, registry.Register(stubRule{id: "C", result: passResult("C")}))

	report := NewRunner(registry).Run(testContext())
	require.Len(t, report.Results, 3)
	require.Equal(t, map[model.Status]int{
		model.StatusPass: 2,
		model.StatusFail: 1,
	}, report.Totals)
	require.NotEmpty(t, report.RunID)
	require.False(t, report.GeneratedAt.IsZero())
	require.Equal(t, testContext().PeriodEnd, report.PeriodEnd)
}

func TestRunnerIsolatesPanics(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubRule{id: "A", result: passResult("A")}))
	require.NoError(t, registry.Register(panicRule{}))
	require.NoError(t, registry.Register(stubRule{id: "B", result: passResult("B")}))

	report := NewRunner(registry).Run(testContext())
	require.Len(t, report.Results, 3)
	require.Equal(t, model.StatusNeedsReview, report.Results[1].Status)
	require.Contains(t, report.Results[1].Summary, "internal error")
	require.Equal(t, model.StatusPass, report.Results[2].Status)
}

func TestRunnerIsolatesErrors(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(errorRule{err: errors.New("kaput")}))

	report := NewRunner(registry).Run(testContext())
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	require.Equal(t, model.StatusNeedsReview, res.Status)
	require.Equal(t, model.SeverityMedium, res.Severity)
	require.Contains(t, res.Summary, "internal error")
	require.Len(t, res.Details, 1)
	require.Equal(t, "kaput", res.Details[0].Message)
}

func TestRunnerConfigErrorGetsDistinctSummary(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(errorRule{err: NewConfigError(errors.New("bad payload"))}))

	report := NewRunner(registry).Run(testContext())
	res := report.Results[0]
	require.Equal(t, model.StatusNeedsReview, res.Status)
	require.Contains(t, res.Summary, "configuration invalid")
}

func TestRunnerParallelMatchesSequentialOrder(t *testing.T) {
	registry := NewRegistry()
	ids := []string{"E", "D", "C", "B", "A"}
	for _, id := range ids {
		require.NoError(t, registry.Register(stubRule{id: id, result: passResult(id)}))
	}

	sequential := NewRunner(registry).Run(testContext())
	parallel := NewRunner(registry, WithParallelism(4)).Run(testContext())

	require.Equal(t, sequential.Results, parallel.Results)
	for i, id := range ids {
		require.Equal(t, id, parallel.Results[i].RuleID)
	}
}

func TestRunnerRunRulesSubset(t *testing.T) {
	registry := NewRegistry()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, registry.Register(stubRule{id: id, result: passResult(id)}))
	}

	report := NewRunner(registry).RunRules(testContext(), "C", "A", "UNKNOWN")
	require.Len(t, report.Results, 2)
	// Registration order wins over the requested order.
	require.Equal(t, "A", report.Results[0].RuleID)
	require.Equal(t, "C", report.Results[1].RuleID)
}

func TestRunnerFreshRunIDs(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubRule{id: "A", result: passResult("A")}))
	runner := NewRunner(registry)
	first := runner.Run(testContext())
	second := runner.Run(testContext())
	require.NotEqual(t, first.RunID, second.RunID)
}
