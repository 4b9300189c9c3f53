package formats

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/multinet/internal/core"
	"github.com/JonMunkholm/multinet/internal/store"
)

func init() {
	core.Register(core.FormatDefinition{
		Info: core.FormatInfo{
			Key:         FormatNewick,
			Label:       "Newick tree",
			ContentType: "text/plain",
			Description: "Phylogenetic tree stored as <table>_nodes and <table>_edges with branch lengths",
			Tables: func(name string) []string {
				return []string{name + "_nodes", name + "_edges"}
			},
		},
		Build: buildNewick,
	})
}

// TreeNode is one node of a parsed Newick tree.
type TreeNode struct {
	Name     string
	Length   *float64 // nil when the branch length is omitted
	Children []*TreeNode
}

// branchLength returns the length as a document value, nil when absent.
func (n *TreeNode) branchLength() any {
	if n.Length == nil {
		return nil
	}
	return *n.Length
}

// Walk calls fn for n and its descendants in pre-order.
func (n *TreeNode) Walk(fn func(*TreeNode)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// ParseNewick parses one or more ';'-terminated trees. The terminator of
// the last tree may be omitted.
func ParseNewick(text string) ([]*TreeNode, error) {
	p := &newickParser{src: text}

	var trees []*TreeNode
	for {
		p.skipSpace()
		if p.eof() {
			return trees, nil
		}

		tree, err := p.subtree()
		if err != nil {
			return nil, err
		}
		trees = append(trees, tree)

		p.skipSpace()
		switch {
		case p.eof():
			return trees, nil
		case p.peek() == ';':
			p.pos++
		default:
			return nil, p.errorf("expected ';'")
		}
	}
}

type newickParser struct {
	src string
	pos int
}

func (p *newickParser) eof() bool  { return p.pos >= len(p.src) }
func (p *newickParser) peek() byte { return p.src[p.pos] }

func (p *newickParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: newick: %s at offset %d", core.ErrMalformedBody, fmt.Sprintf(format, args...), p.pos)
}

// skipSpace skips whitespace and [bracketed] comments.
func (p *newickParser) skipSpace() {
	for !p.eof() {
		switch c := p.peek(); {
		case isNewickSpace(c):
			p.pos++
		case c == '[':
			end := strings.IndexByte(p.src[p.pos:], ']')
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos += end + 1
		default:
			return
		}
	}
}

// subtree := ["(" subtree {"," subtree} ")"] [label] [":" length]
func (p *newickParser) subtree() (*TreeNode, error) {
	node := &TreeNode{}

	p.skipSpace()
	if !p.eof() && p.peek() == '(' {
		p.pos++
		for {
			child, err := p.subtree()
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)

			p.skipSpace()
			if p.eof() {
				return nil, p.errorf("unclosed '('")
			}
			if p.peek() == ',' {
				p.pos++
				continue
			}
			if p.peek() == ')' {
				p.pos++
				break
			}
			return nil, p.errorf("unexpected %q", p.peek())
		}
	}

	name, err := p.label()
	if err != nil {
		return nil, err
	}
	node.Name = name

	p.skipSpace()
	if !p.eof() && p.peek() == ':' {
		p.pos++
		p.skipSpace()
		start := p.pos
		for !p.eof() && !isNewickDelim(p.peek()) && !isNewickSpace(p.peek()) && p.peek() != '[' {
			p.pos++
		}
		raw := p.src[start:p.pos]
		if raw != "" {
			length, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, p.errorf("invalid branch length %q", raw)
			}
			node.Length = &length
		}
	}

	return node, nil
}

func (p *newickParser) label() (string, error) {
	p.skipSpace()
	if p.eof() {
		return "", nil
	}

	if p.peek() == '\'' {
		var b strings.Builder
		p.pos++
		for {
			if p.eof() {
				return "", p.errorf("unterminated quoted label")
			}
			c := p.peek()
			p.pos++
			if c != '\'' {
				b.WriteByte(c)
				continue
			}
			// '' inside quotes is a literal quote.
			if !p.eof() && p.peek() == '\'' {
				b.WriteByte('\'')
				p.pos++
				continue
			}
			return b.String(), nil
		}
	}

	start := p.pos
	for !p.eof() && !isNewickDelim(p.peek()) && p.peek() != '[' {
		p.pos++
	}
	return strings.TrimSpace(p.src[start:p.pos]), nil
}

func isNewickSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isNewickDelim(c byte) bool {
	switch c {
	case '(', ')', ',', ':', ';':
		return true
	}
	return false
}

// ValidateNewick reports a DuplicateKey for every repeated node name.
// Unnamed nodes get generated keys and never collide.
func ValidateNewick(tree *TreeNode) error {
	var failures core.Failures
	seen := make(map[string]bool)

	tree.Walk(func(n *TreeNode) {
		if n.Name == "" {
			return
		}
		if seen[n.Name] {
			failures.Add(core.DuplicateKey{Key: n.Name})
			return
		}
		seen[n.Name] = true
	})

	return failures.Err()
}

func buildNewick(text string, opts core.BuildOptions) (*core.Plan, error) {
	trees, err := ParseNewick(text)
	if err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, core.Fail(core.MissingBody{})
	}

	tree := trees[0]
	if err := ValidateNewick(tree); err != nil {
		return nil, err
	}

	nodeTable := opts.Table + "_nodes"
	edgeTable := opts.Table + "_edges"

	var nodes, edges []core.Record

	var visit func(parent string, n *TreeNode)
	visit = func(parent string, n *TreeNode) {
		key := n.Name
		if key == "" {
			key = store.NewKey()
		}
		nodes = append(nodes, core.Record{Key: key, Attributes: map[string]any{}})

		for _, c := range n.Children {
			visit(key, c)
		}

		if parent != "" {
			edges = append(edges, core.Record{
				From:       ref(nodeTable, parent),
				To:         ref(nodeTable, key),
				Attributes: map[string]any{"length": n.branchLength()},
			})
		}
	}
	visit("", tree)

	return &core.Plan{
		Tables: []core.Table{
			{Name: nodeTable, Kind: core.KindNode, Records: nodes, SkipExisting: true},
			{Name: edgeTable, Kind: core.KindEdge, Records: edges},
		},
		Counts: map[string]int{
			"nodecount": len(nodes),
			"edgecount": len(edges),
		},
	}, nil
}
