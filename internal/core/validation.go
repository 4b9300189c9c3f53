package core

// validation.go defines the structured failures reported by the format
// validators.
//
// Every failure is a small immutable value naming the defect. Validators
// collect failures with a Failures batch and return them together as one
// *ValidationFailed error, so the client sees every duplicate key or bad
// row in a single response rather than one at a time.

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Failure is one validation defect. Type returns the variant name used as
// the "type" field in responses.
type Failure interface {
	Type() string
}

// MissingBody reports an upload with no data rows.
type MissingBody struct{}

// DuplicateKey reports a key value that appears more than once.
type DuplicateKey struct {
	Key string `json:"key"`
}

// InvalidRow reports a row with an empty key or malformed _from/_to
// references. Row is the 1-based line number in the file, counting the
// header.
type InvalidRow struct {
	Row    int      `json:"row"`
	Fields []string `json:"fields"`
}

// KeyFieldAlreadyExists is reported when a custom key field is requested
// for a file that already has a _key column.
type KeyFieldAlreadyExists struct {
	Key string `json:"key"`
}

// KeyFieldDoesNotExist is reported when the requested key field is not a column.
type KeyFieldDoesNotExist struct {
	Key string `json:"key"`
}

// UnsupportedTable is reported when the columns describe neither a node
// nor an edge table.
type UnsupportedTable struct{}

// InvalidStructure reports a JSON document that lacks its required shape.
type InvalidStructure struct{}

// InvalidLinkKeys reports a D3 link without source or target.
type InvalidLinkKeys struct{}

// InconsistentLinkKeys reports D3 links that do not share one key set.
type InconsistentLinkKeys struct{}

// NodeDuplicates reports D3 node ids that are not unique.
type NodeDuplicates struct{}

func (MissingBody) Type() string           { return "MissingBody" }
func (DuplicateKey) Type() string          { return "DuplicateKey" }
func (InvalidRow) Type() string            { return "InvalidRow" }
func (KeyFieldAlreadyExists) Type() string { return "KeyFieldAlreadyExists" }
func (KeyFieldDoesNotExist) Type() string  { return "KeyFieldDoesNotExist" }
func (UnsupportedTable) Type() string      { return "UnsupportedTable" }
func (InvalidStructure) Type() string      { return "InvalidStructure" }
func (InvalidLinkKeys) Type() string       { return "InvalidLinkKeys" }
func (InconsistentLinkKeys) Type() string  { return "InconsistentLinkKeys" }
func (NodeDuplicates) Type() string        { return "NodeDuplicates" }

// Describe renders a failure as a flat map: its fields plus "type".
func Describe(f Failure) map[string]any {
	out := map[string]any{}
	if raw, err := json.Marshal(f); err == nil {
		_ = json.Unmarshal(raw, &out)
	}
	out["type"] = f.Type()
	return out
}

// ValidationFailed is the aggregate error returned by validators.
type ValidationFailed struct {
	Failures []Failure
}

func (e *ValidationFailed) Error() string {
	types := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		types[i] = f.Type()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(types, ", "))
}

// MarshalJSON renders {"errors": [...]}.
func (e *ValidationFailed) MarshalJSON() ([]byte, error) {
	errs := make([]map[string]any, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = Describe(f)
	}
	return json.Marshal(map[string]any{"errors": errs})
}

// Has reports whether the batch contains a failure equal to f.
func (e *ValidationFailed) Has(f Failure) bool {
	want := Describe(f)
	for _, got := range e.Failures {
		if describeEqual(Describe(got), want) {
			return true
		}
	}
	return false
}

func describeEqual(a, b map[string]any) bool {
	ra, _ := json.Marshal(a)
	rb, _ := json.Marshal(b)
	return string(ra) == string(rb)
}

// Fail returns a ValidationFailed holding failures. Use it for checks
// that stop validation immediately.
func Fail(failures ...Failure) error {
	return &ValidationFailed{Failures: failures}
}

// AsValidationFailed unwraps err to a *ValidationFailed.
func AsValidationFailed(err error) (*ValidationFailed, bool) {
	var vf *ValidationFailed
	ok := errors.As(err, &vf)
	return vf, ok
}

// Failures accumulates failures in order.
type Failures struct {
	list []Failure
}

// Add appends f.
func (b *Failures) Add(f Failure) {
	b.list = append(b.list, f)
}

// Len returns the number of collected failures.
func (b *Failures) Len() int { return len(b.list) }

// Err returns nil for an empty batch, else a *ValidationFailed.
func (b *Failures) Err() error {
	if len(b.list) == 0 {
		return nil
	}
	return &ValidationFailed{Failures: append([]Failure(nil), b.list...)}
}

// DecodeFailed reports an upload body that is not UTF-8 text.
type DecodeFailed struct {
	Offset int
	Reason string
}

func (e *DecodeFailed) Error() string {
	return fmt.Sprintf("encoding error: %s at byte %d", e.Reason, e.Offset)
}

// ErrMalformedBody is returned when text cannot be parsed in the declared
// format (bad JSON, unbalanced Newick parentheses, broken CSV quoting).
var ErrMalformedBody = errors.New("malformed request body")
