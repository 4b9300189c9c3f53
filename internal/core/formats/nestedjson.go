package formats

import (
	"strconv"

	"github.com/JonMunkholm/multinet/internal/core"
	"github.com/JonMunkholm/multinet/internal/store"
)

func init() {
	core.Register(core.FormatDefinition{
		Info: core.FormatInfo{
			Key:         FormatNestedJSON,
			Label:       "Nested JSON tree",
			ContentType: "application/json",
			Description: `Tree of {"node_data":{}, "edge_data":{}, "children":[...]} stored as <graph>_internal_nodes, <graph>_leaf_nodes and <graph>_edges`,
			Tables: func(name string) []string {
				return []string{name + "_internal_nodes", name + "_leaf_nodes", name + "_edges"}
			},
		},
		Build: buildNestedJSON,
	})
}

// firstGeneratedKey is where generated nested-tree keys start counting.
const firstGeneratedKey = 100

// NestedNode is one subtree of a nested JSON upload.
type NestedNode struct {
	Data     map[string]any
	Edge     map[string]any
	Children []*NestedNode
}

// ParseNestedTree converts a decoded JSON value into a tree. Any level that
// is not an object, or whose node_data, edge_data or children have the
// wrong shape, is an InvalidStructure failure.
func ParseNestedTree(v any) (*NestedNode, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, core.Fail(core.InvalidStructure{})
	}

	node := &NestedNode{Data: map[string]any{}, Edge: map[string]any{}}

	if raw, ok := obj["node_data"]; ok && raw != nil {
		data, ok := raw.(map[string]any)
		if !ok {
			return nil, core.Fail(core.InvalidStructure{})
		}
		node.Data = without(data)
	}
	if raw, ok := obj["edge_data"]; ok && raw != nil {
		edge, ok := raw.(map[string]any)
		if !ok {
			return nil, core.Fail(core.InvalidStructure{})
		}
		node.Edge = without(edge)
	}
	if raw, ok := obj["children"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return nil, core.Fail(core.InvalidStructure{})
		}
		for _, item := range list {
			child, err := ParseNestedTree(item)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}

	return node, nil
}

func (n *NestedNode) walk(fn func(*NestedNode)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

// ValidateNestedTree reports a DuplicateKey for every repeated explicit
// _key, and InvalidStructure for a _key that is not a scalar.
func ValidateNestedTree(root *NestedNode) error {
	var failures core.Failures
	seen := make(map[string]bool)
	badKey := false

	root.walk(func(n *NestedNode) {
		raw, ok := n.Data[store.FieldKey]
		if !ok {
			return
		}
		key, ok := core.KeyString(raw)
		if !ok {
			badKey = true
			return
		}
		if seen[key] {
			failures.Add(core.DuplicateKey{Key: key})
			return
		}
		seen[key] = true
	})

	if badKey {
		failures.Add(core.InvalidStructure{})
	}
	return failures.Err()
}

// nestedKeys hands out sequential keys, skipping any used explicitly.
type nestedKeys struct {
	next  int
	taken map[string]bool
}

// assign gives n a key unless it already has one and returns it.
func (k *nestedKeys) assign(n *NestedNode) string {
	if raw, ok := n.Data[store.FieldKey]; ok {
		key, _ := core.KeyString(raw)
		n.Data[store.FieldKey] = key
		return key
	}
	for {
		key := strconv.Itoa(k.next)
		k.next++
		if !k.taken[key] {
			n.Data[store.FieldKey] = key
			return key
		}
	}
}

func buildNestedJSON(text string, opts core.BuildOptions) (*core.Plan, error) {
	raw, err := decodeJSON(text)
	if err != nil {
		return nil, err
	}

	root, err := ParseNestedTree(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateNestedTree(root); err != nil {
		return nil, err
	}

	internalTable := opts.Table + "_internal_nodes"
	leafTable := opts.Table + "_leaf_nodes"
	edgeTable := opts.Table + "_edges"

	keys := &nestedKeys{next: firstGeneratedKey, taken: map[string]bool{}}
	root.walk(func(n *NestedNode) {
		if raw, ok := n.Data[store.FieldKey]; ok {
			key, _ := core.KeyString(raw)
			keys.taken[key] = true
		}
	})

	var internal, leaves, edges []core.Record

	// A subtree's root is keyed before its children, and every child is
	// keyed before any grandchild.
	var visit func(n *NestedNode)
	visit = func(n *NestedNode) {
		rootKey := keys.assign(n)
		rec := core.Record{Key: rootKey, Attributes: without(n.Data, store.FieldKey)}
		if len(n.Children) > 0 {
			internal = append(internal, rec)
		} else {
			leaves = append(leaves, rec)
		}

		for _, child := range n.Children {
			childKey := keys.assign(child)
			childTable := leafTable
			if len(child.Children) > 0 {
				childTable = internalTable
			}
			edges = append(edges, core.Record{
				From:       ref(childTable, childKey),
				To:         ref(internalTable, rootKey),
				Attributes: without(child.Edge),
			})
		}

		for _, child := range n.Children {
			visit(child)
		}
	}
	visit(root)

	return &core.Plan{
		Tables: []core.Table{
			{Name: internalTable, Kind: core.KindNode, Records: internal},
			{Name: leafTable, Kind: core.KindNode, Records: leaves},
			{Name: edgeTable, Kind: core.KindEdge, Records: edges},
		},
		Counts: map[string]int{
			"edgecount":      len(edges),
			"int_nodecount":  len(internal),
			"leaf_nodecount": len(leaves),
		},
	}, nil
}
