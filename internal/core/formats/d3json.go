package formats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JonMunkholm/multinet/internal/core"
)

func init() {
	core.Register(core.FormatDefinition{
		Info: core.FormatInfo{
			Key:         FormatD3JSON,
			Label:       "D3 force graph",
			ContentType: "application/json",
			Description: `{"nodes":[{"id":...}], "links":[{"source":...,"target":...}]} stored as <table>_nodes and <table>_links`,
			Tables: func(name string) []string {
				return []string{name + "_nodes", name + "_links"}
			},
		},
		Build: buildD3JSON,
	})
}

// decodeJSON parses text keeping numbers as json.Number so ids like 1 and
// 1.0 keep their written form.
func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: json: %v", core.ErrMalformedBody, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: json: trailing data after value", core.ErrMalformedBody)
	}
	return v, nil
}

// objects returns v as a list of JSON objects.
func objects(v any) ([]map[string]any, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		out[i] = obj
	}
	return out, true
}

// ValidateD3JSON checks a decoded D3 graph. Every check runs on its own,
// so a document missing links still reports duplicate nodes.
func ValidateD3JSON(data map[string]any) error {
	var failures core.Failures
	invalidStructure := false

	rawNodes, hasNodes := data["nodes"]
	rawLinks, hasLinks := data["links"]
	if !hasNodes || !hasLinks {
		invalidStructure = true
	}

	var (
		nodes, links     []map[string]any
		nodesOK, linksOK bool
	)
	if hasNodes {
		if nodes, nodesOK = objects(rawNodes); !nodesOK {
			invalidStructure = true
		}
	}
	if hasLinks {
		if links, linksOK = objects(rawLinks); !linksOK {
			invalidStructure = true
		}
	}

	var linkFailures []core.Failure
	if linksOK {
		for _, link := range links {
			_, srcOK := core.KeyString(link["source"])
			_, dstOK := core.KeyString(link["target"])
			if !srcOK || !dstOK {
				linkFailures = append(linkFailures, core.InvalidLinkKeys{})
				break
			}
		}
		if len(links) > 0 {
			for _, link := range links[1:] {
				if !sameKeys(links[0], link) {
					linkFailures = append(linkFailures, core.InconsistentLinkKeys{})
					break
				}
			}
		}
	}

	duplicates := false
	if nodesOK {
		ids := make(map[string]struct{}, len(nodes))
		withID := 0
		for _, node := range nodes {
			id, ok := core.KeyString(node["id"])
			if !ok {
				invalidStructure = true
				continue
			}
			withID++
			ids[id] = struct{}{}
		}
		duplicates = len(ids) < withID
	}

	if invalidStructure {
		failures.Add(core.InvalidStructure{})
	}
	for _, f := range linkFailures {
		failures.Add(f)
	}
	if duplicates {
		failures.Add(core.NodeDuplicates{})
	}

	return failures.Err()
}

func sameKeys(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func buildD3JSON(text string, opts core.BuildOptions) (*core.Plan, error) {
	raw, err := decodeJSON(text)
	if err != nil {
		return nil, err
	}

	data, ok := raw.(map[string]any)
	if !ok {
		return nil, core.Fail(core.InvalidStructure{})
	}
	if err := ValidateD3JSON(data); err != nil {
		return nil, err
	}

	nodeTable := opts.Table + "_nodes"
	linkTable := opts.Table + "_links"

	nodes, _ := objects(data["nodes"])
	links, _ := objects(data["links"])

	nodeRecords := make([]core.Record, len(nodes))
	for i, node := range nodes {
		id, _ := core.KeyString(node["id"])
		nodeRecords[i] = core.Record{Key: id, Attributes: without(node, "id")}
	}

	linkRecords := make([]core.Record, len(links))
	for i, link := range links {
		src, _ := core.KeyString(link["source"])
		dst, _ := core.KeyString(link["target"])
		linkRecords[i] = core.Record{
			From:       ref(nodeTable, src),
			To:         ref(nodeTable, dst),
			Attributes: without(link, "source", "target"),
		}
	}

	return &core.Plan{
		Tables: []core.Table{
			{Name: nodeTable, Kind: core.KindNode, Records: nodeRecords},
			{Name: linkTable, Kind: core.KindEdge, Records: linkRecords},
		},
		Counts: map[string]int{
			"nodecount": len(nodeRecords),
			"edgecount": len(linkRecords),
		},
	}, nil
}

// without copies obj minus the named fields.
func without(obj map[string]any, fields ...string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}
