package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/multinet/internal/store"
)

// TableKind classifies a table by its columns.
type TableKind int

const (
	KindUnsupported TableKind = iota
	KindNode
	KindEdge
)

func (k TableKind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	default:
		return "unsupported"
	}
}

// MarshalText renders the kind by name in JSON output.
func (k TableKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Edge reports whether k is stored as an edge collection.
func (k TableKind) Edge() bool { return k == KindEdge }

// Record is one row to be stored. The reserved fields map to _key, _from
// and _to; everything else is an attribute.
type Record struct {
	Key        string
	From       string
	To         string
	Attributes map[string]any
}

// Document renders r as a storage document. Empty reserved fields are
// omitted so the backend can assign a key.
func (r Record) Document() store.Document {
	doc := make(store.Document, len(r.Attributes)+3)
	for k, v := range r.Attributes {
		doc[k] = v
	}
	if r.Key != "" {
		doc[store.FieldKey] = r.Key
	}
	if r.From != "" {
		doc[store.FieldFrom] = r.From
	}
	if r.To != "" {
		doc[store.FieldTo] = r.To
	}
	return doc
}

// Table is a validated, transformed set of records bound for one
// collection.
type Table struct {
	Name    string    `json:"name"`
	Kind    TableKind `json:"kind"`
	Records []Record  `json:"-"`

	// SkipExisting drops records whose key is already stored instead of
	// failing on them.
	SkipExisting bool `json:"skip_existing,omitempty"`
}

// Plan is the output of a format build: the tables to write and the
// counts reported to the client on success.
type Plan struct {
	Tables []Table        `json:"tables"`
	Counts map[string]int `json:"counts"`
}

// TableNames returns the names of every table in the plan.
func (p *Plan) TableNames() []string {
	names := make([]string, len(p.Tables))
	for i, t := range p.Tables {
		names[i] = t.Name
	}
	return names
}

// BuildOptions are the per-request inputs to a format build.
type BuildOptions struct {
	// Table is the target table, or graph name for multi-table formats.
	Table string

	// KeyField is the CSV column used as the node key. Empty means _key.
	KeyField string
}

// UploadRequest is a single upload handed to the service.
type UploadRequest struct {
	Format    string
	Workspace string
	Options   BuildOptions
	Body      []byte
}

// UploadResult reports what an upload wrote.
type UploadResult struct {
	Format    string         `json:"format"`
	Workspace string         `json:"workspace"`
	Tables    []string       `json:"tables"`
	Counts    map[string]int `json:"counts"`
	Inserted  int            `json:"inserted"`
	Duration  time.Duration  `json:"duration"`
}

// KeyString converts a JSON scalar used as an identifier to a string key.
func KeyString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
