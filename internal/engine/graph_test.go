package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stagesFor(deps map[string][]string, names ...string) []*Stage {
	var out []*Stage
	for _, n := range names {
		out = append(out, &Stage{Name: n, DependsOn: deps[n]})
	}
	return out
}

func TestBuildDAG_NoDependenciesKeepsDeclarationOrder(t *testing.T) {
	dag, err := BuildDAG(stagesFor(nil, "a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, dag.Order())
}

func TestBuildDAG_FunctionLayout(t *testing.T) {
	deps := map[string][]string{
		"function":    {"role"},
		"certificate": {"zone"},
		"gateway":     {"function", "certificate"},
		"dns":         {"zone", "gateway"},
	}
	// declared out of order on purpose
	dag, err := BuildDAG(stagesFor(deps, "dns", "gateway", "zone", "role", "function", "certificate"))
	require.NoError(t, err)

	order := dag.Order()
	require.Len(t, order, 6)
	assert.Less(t, indexOf(order, "role"), indexOf(order, "function"))
	assert.Less(t, indexOf(order, "zone"), indexOf(order, "certificate"))
	assert.Less(t, indexOf(order, "certificate"), indexOf(order, "gateway"))
	assert.Less(t, indexOf(order, "function"), indexOf(order, "gateway"))
	assert.Less(t, indexOf(order, "gateway"), indexOf(order, "dns"))

	assert.Equal(t, []string{"gateway", "dns"}, dag.TransitiveDependents("certificate"))
	assert.Equal(t, []string{"function", "certificate"}, dag.Dependencies("gateway"))
}

func TestBuildDAG_Stable(t *testing.T) {
	deps := map[string][]string{"c": {"a"}}
	for i := 0; i < 20; i++ {
		dag, err := BuildDAG(stagesFor(deps, "a", "b", "c", "d"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, dag.Order())
	}
}

func TestBuildDAG_Cycle(t *testing.T) {
	deps := map[string][]string{"a": {"b"}, "b": {"a"}}
	_, err := BuildDAG(stagesFor(deps, "a", "b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildDAG_UnknownDependency(t *testing.T) {
	_, err := BuildDAG(stagesFor(map[string][]string{"a": {"ghost"}}, "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildDAG_Duplicate(t *testing.T) {
	_, err := BuildDAG(stagesFor(nil, "a", "a"))
	require.Error(t, err)
}

func indexOf(slice []string, val string) int {
	for i, v := range slice {
		if v == val {
			return i
		}
	}
	return -1
}
