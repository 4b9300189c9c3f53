package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/multinet/internal/core"
)

func names(n *TreeNode) []string {
	var out []string
	n.Walk(func(n *TreeNode) { out = append(out, n.Name) })
	return out
}

func TestParseNewick(t *testing.T) {
	trees, err := ParseNewick("(B:6.0,(A:5.0,C:3.0,E:4.0)Ancestor1:5.0,D:11.0);")
	require.NoError(t, err)
	require.Len(t, trees, 1)

	root := trees[0]
	assert.Equal(t, []string{"", "B", "Ancestor1", "A", "C", "E", "D"}, names(root))
	require.NotNil(t, root.Children[0].Length)
	assert.InDelta(t, 6.0, *root.Children[0].Length, 1e-9)
	assert.InDelta(t, 5.0, *root.Children[1].Length, 1e-9)
	assert.Nil(t, root.Length, "root has no branch length")
	assert.Len(t, root.Children[1].Children, 3)
}

func TestParseNewick_Syntax(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		names []string
	}{
		{"single leaf", "A;", []string{"A"}},
		{"unnamed inner nodes", "(,(,));", []string{"", "", "", "", ""}},
		{"quoted label", "('it''s here',B);", []string{"", "it's here", "B"}},
		{"comments and whitespace", "( A [note] ,\n B:1.5 [len] ) root ;", []string{"root", "A", "B"}},
		{"missing final semicolon", "(A,B)C", []string{"C", "A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trees, err := ParseNewick(tt.text)
			require.NoError(t, err)
			require.NotEmpty(t, trees)
			assert.Equal(t, tt.names, names(trees[0]))
		})
	}
}

func TestParseNewick_MultipleTrees(t *testing.T) {
	trees, err := ParseNewick("(A,B);\n(C,D);\n")
	require.NoError(t, err)
	assert.Len(t, trees, 2)
}

func TestParseNewick_Malformed(t *testing.T) {
	for _, text := range []string{"(A,B;", "(A,B));", "(A:x,B);", "('A,B);"} {
		_, err := ParseNewick(text)
		assert.ErrorIs(t, err, core.ErrMalformedBody, "input %q", text)
	}
}

func TestValidateNewick(t *testing.T) {
	trees, err := ParseNewick("(B,(A,C,E),D,A);")
	require.NoError(t, err)

	failures := validationFailures(t, ValidateNewick(trees[0]))
	assert.Equal(t, []core.Failure{core.DuplicateKey{Key: "A"}}, failures)

	trees, err = ParseNewick("(,(,A),B);")
	require.NoError(t, err)
	assert.NoError(t, ValidateNewick(trees[0]), "unnamed nodes never collide")
}

func TestBuildNewick(t *testing.T) {
	plan, err := buildNewick("(A:1,(B:2,C:3)D:4)R;", core.BuildOptions{Table: "tree"})
	require.NoError(t, err)

	assert.Equal(t, []string{"tree_nodes", "tree_edges"}, plan.TableNames())
	assert.Equal(t, map[string]int{"nodecount": 5, "edgecount": 4}, plan.Counts)

	nodes := plan.Tables[0]
	assert.True(t, nodes.SkipExisting)
	keys := make([]string, len(nodes.Records))
	for i, r := range nodes.Records {
		keys[i] = r.Key
	}
	assert.Equal(t, []string{"R", "A", "D", "B", "C"}, keys)

	edges := plan.Tables[1]
	assert.Equal(t, core.KindEdge, edges.Kind)
	assert.Equal(t, core.Record{
		From:       "tree_nodes/R",
		To:         "tree_nodes/A",
		Attributes: map[string]any{"length": 1.0},
	}, edges.Records[0])
	// A child's edge is emitted after its own subtree.
	assert.Equal(t, "tree_nodes/B", edges.Records[1].To)
	assert.Equal(t, "tree_nodes/D", edges.Records[3].To)
}

func TestBuildNewick_LengthOmittedOrZero(t *testing.T) {
	plan, err := buildNewick("(A,B:0)R;", core.BuildOptions{Table: "t"})
	require.NoError(t, err)

	edges := plan.Tables[1].Records
	require.Len(t, edges, 2)
	assert.Equal(t, map[string]any{"length": nil}, edges[0].Attributes)
	assert.Equal(t, map[string]any{"length": 0.0}, edges[1].Attributes)
}

func TestBuildNewick_GeneratedKeys(t *testing.T) {
	plan, err := buildNewick("(,);", core.BuildOptions{Table: "t"})
	require.NoError(t, err)

	nodes := plan.Tables[0].Records
	require.Len(t, nodes, 3)
	for _, n := range nodes {
		assert.Regexp(t, `^[0-9a-f]{32}$`, n.Key)
	}
	assert.NotEqual(t, nodes[1].Key, nodes[2].Key)
}

func TestBuildNewick_Empty(t *testing.T) {
	_, err := buildNewick("  \n", core.BuildOptions{Table: "t"})
	assert.Equal(t, []core.Failure{core.MissingBody{}}, validationFailures(t, err))
}

func TestNewickUTF16IsDecodeFailure(t *testing.T) {
	// "(B,(A,C,E),D);" as UTF-16BE without a byte order mark
	text := "(B,(A,C,E),D);"
	body := make([]byte, 0, 2*len(text))
	for i := 0; i < len(text); i++ {
		body = append(body, 0, text[i])
	}

	_, err := core.BuildPlan(FormatNewick, body, core.BuildOptions{Table: "t"})
	var decodeErr *core.DecodeFailed
	assert.ErrorAs(t, err, &decodeErr)

	_, err = core.BuildPlan(FormatNewick, append([]byte{0xFF, 0xFE}, body[1:]...), core.BuildOptions{Table: "t"})
	assert.ErrorAs(t, err, &decodeErr)
}
