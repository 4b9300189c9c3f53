package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/multinet/internal/core"
)

const nestedDoc = `{
	"node_data": {"name": "root"},
	"children": [
		{
			"node_data": {"name": "left"},
			"edge_data": {"weight": 1},
			"children": [
				{"node_data": {"name": "ll"}, "edge_data": {"weight": 2}},
				{"node_data": {"name": "lr", "_key": "fixed"}}
			]
		},
		{"node_data": {"name": "right"}, "edge_data": {"weight": 3}}
	]
}`

func TestBuildNestedJSON(t *testing.T) {
	plan, err := buildNestedJSON(nestedDoc, core.BuildOptions{Table: "g"})
	require.NoError(t, err)

	assert.Equal(t, []string{"g_internal_nodes", "g_leaf_nodes", "g_edges"}, plan.TableNames())
	assert.Equal(t, map[string]int{"edgecount": 4, "int_nodecount": 2, "leaf_nodecount": 3}, plan.Counts)

	keysOf := func(recs []core.Record) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.Key
		}
		return out
	}

	// root=100, its children 101 and 102, then left's child ll=103.
	assert.Equal(t, []string{"100", "101"}, keysOf(plan.Tables[0].Records))
	assert.Equal(t, []string{"103", "fixed", "102"}, keysOf(plan.Tables[1].Records))
	assert.Equal(t, map[string]any{"name": "root"}, plan.Tables[0].Records[0].Attributes)

	edges := plan.Tables[2].Records
	require.Len(t, edges, 4)
	assert.Equal(t, "g_internal_nodes/101", edges[0].From)
	assert.Equal(t, "g_internal_nodes/100", edges[0].To)
	assert.Equal(t, "g_leaf_nodes/102", edges[1].From)
	assert.Equal(t, "g_leaf_nodes/103", edges[2].From)
	assert.Equal(t, "g_internal_nodes/101", edges[2].To)
	assert.Equal(t, "g_leaf_nodes/fixed", edges[3].From)
	assert.Empty(t, edges[3].Attributes)
}

func TestBuildNestedJSON_SkipsExplicitKeys(t *testing.T) {
	doc := `{"node_data": {}, "children": [{"node_data": {"_key": "100"}}, {}]}`

	plan, err := buildNestedJSON(doc, core.BuildOptions{Table: "g"})
	require.NoError(t, err)

	assert.Equal(t, "101", plan.Tables[0].Records[0].Key)
	leaves := plan.Tables[1].Records
	require.Len(t, leaves, 2)
	assert.Equal(t, "100", leaves[0].Key)
	assert.Equal(t, "102", leaves[1].Key)
}

func TestBuildNestedJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []core.Failure
	}{
		{"not an object", `[]`, []core.Failure{core.InvalidStructure{}}},
		{"children not a list", `{"children": {}}`, []core.Failure{core.InvalidStructure{}}},
		{"child not an object", `{"children": [1]}`, []core.Failure{core.InvalidStructure{}}},
		{
			"duplicate explicit keys",
			`{"node_data": {"_key": "a"}, "children": [{"node_data": {"_key": "a"}}, {"node_data": {"_key": "a"}}]}`,
			[]core.Failure{core.DuplicateKey{Key: "a"}, core.DuplicateKey{Key: "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildNestedJSON(tt.doc, core.BuildOptions{Table: "g"})
			assert.Equal(t, tt.want, validationFailures(t, err))
		})
	}
}
