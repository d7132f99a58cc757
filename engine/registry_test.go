package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rayzelltj/mer-review-agent/model"
)

type stubRule struct {
	id     string
	result model.Result
	err    error
}

func (r stubRule) Info() Info {
	return Info{ID: r.id, Title: "Stub " + r.id}
}

func (r stubRule) Evaluate(ctx *Context) (model.Result, error) {
	return r.result, r.err
}

type otherRule struct {
	id string
}

func (r otherRule) Info() Info {
	return Info{ID: r.id, Title: "Other " + r.id}
}

func (r otherRule) Evaluate(ctx *Context) (model.Result, error) {
	return model.Result{RuleID: r.id, Status: model.StatusPass}, nil
}

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	for _, id := range []string{"C", "A", "B"} {
		require.NoError(t, registry.Register(stubRule{id: id}))
	}
	require.Equal(t, []string{"C", "A", "B"}, registry.IDs())
}

func TestRegistryRejectsDistinctDuplicate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubRule{id: "R1"}))
	err := registry.Register(otherRule{id: "R1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate rule id")
}

func TestRegistryIdempotentForSameImplementation(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubRule{id: "R1"}))
	require.NoError(t, registry.Register(stubRule{id: "R1"}))
	require.Equal(t, 1, registry.Len())
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	registry := NewRegistry()
	require.Error(t, registry.Register(stubRule{}))
}

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubRule{id: "R1"}))
	_, ok := registry.Get("R1")
	require.True(t, ok)
	_, ok = registry.Get("R2")
	require.False(t, ok)
}
