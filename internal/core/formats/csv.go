package formats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/JonMunkholm/multinet/internal/core"
	"github.com/JonMunkholm/multinet/internal/store"
)

func init() {
	core.Register(core.FormatDefinition{
		Info: core.FormatInfo{
			Key:         FormatCSV,
			Label:       "CSV table",
			ContentType: "text/csv",
			Description: "Node table (with a key column) or edge table (with _from and _to columns)",
		},
		Build: buildCSV,
	})
}

// Row is one CSV data row keyed by column name.
type Row = map[string]string

// referencePattern matches "<collection>/<key>". It is anchored at the
// start only, so trailing path segments are accepted.
var referencePattern = regexp.MustCompile(`^[^/]+/[^/]+`)

// ParseCSV reads text whose first record is the header. Blank lines are
// skipped; cells missing from short rows are empty and extra cells are
// dropped.
func ParseCSV(text string) ([]string, []Row, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: csv header: %v", core.ErrMalformedBody, err)
	}

	var rows []Row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: csv: %v", core.ErrMalformedBody, err)
		}

		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return header, rows, nil
}

// ValidateCSV checks rows against the table kind their header implies.
//
// An empty table, a requested key field that is not a column, and a
// requested key field alongside an existing _key column each stop
// validation immediately. Otherwise every empty or duplicate key (node
// tables) or malformed reference (edge tables) is collected and reported
// together.
func ValidateCSV(header []string, rows []Row, keyField string) error {
	if len(rows) == 0 {
		return core.Fail(core.MissingBody{})
	}
	if keyField == "" {
		keyField = store.FieldKey
	}

	columns := make(map[string]bool, len(header))
	for _, c := range header {
		columns[c] = true
	}

	if keyField != store.FieldKey && !columns[keyField] {
		return core.Fail(core.KeyFieldDoesNotExist{Key: keyField})
	}
	if keyField != store.FieldKey && columns[store.FieldKey] {
		return core.Fail(core.KeyFieldAlreadyExists{Key: keyField})
	}

	var failures core.Failures

	switch core.Classify(header, keyField) {
	case core.KindNode:
		seen := make(map[string]bool, len(rows))
		for i, row := range rows {
			key := row[keyField]
			if key == "" {
				failures.Add(core.InvalidRow{Row: i + 2, Fields: []string{keyField}})
				continue
			}
			if seen[key] {
				failures.Add(core.DuplicateKey{Key: key})
				continue
			}
			seen[key] = true
		}

	case core.KindEdge:
		for i, row := range rows {
			var fields []string
			if !referencePattern.MatchString(row[store.FieldFrom]) {
				fields = append(fields, store.FieldFrom)
			}
			if !referencePattern.MatchString(row[store.FieldTo]) {
				fields = append(fields, store.FieldTo)
			}
			if len(fields) > 0 {
				// +1 for 1-based rows, +1 for the header line
				failures.Add(core.InvalidRow{Row: i + 2, Fields: fields})
			}
		}

	default:
		failures.Add(core.UnsupportedTable{})
	}

	return failures.Err()
}

// SetTableKey returns copies of rows with the key column copied into _key.
// The original column is kept. It returns rows unchanged when key is empty
// or already _key.
func SetTableKey(rows []Row, key string) []Row {
	if key == "" || key == store.FieldKey {
		return rows
	}

	out := make([]Row, len(rows))
	for i, row := range rows {
		next := make(Row, len(row)+1)
		for k, v := range row {
			next[k] = v
		}
		next[store.FieldKey] = row[key]
		out[i] = next
	}
	return out
}

func buildCSV(text string, opts core.BuildOptions) (*core.Plan, error) {
	header, rows, err := ParseCSV(text)
	if err != nil {
		return nil, err
	}

	keyField := opts.KeyField
	if keyField == "" {
		keyField = store.FieldKey
	}

	if err := ValidateCSV(header, rows, keyField); err != nil {
		return nil, err
	}

	kind := core.Classify(header, keyField)
	rows = SetTableKey(rows, keyField)

	records := make([]core.Record, len(rows))
	for i, row := range rows {
		records[i] = csvRecord(row, kind)
	}

	return &core.Plan{
		Tables: []core.Table{{Name: opts.Table, Kind: kind, Records: records}},
		Counts: map[string]int{"count": len(records)},
	}, nil
}

func csvRecord(row Row, kind core.TableKind) core.Record {
	rec := core.Record{Attributes: make(map[string]any, len(row))}
	for col, val := range row {
		switch {
		case col == store.FieldKey:
			rec.Key = val
		case kind == core.KindEdge && col == store.FieldFrom:
			rec.From = val
		case kind == core.KindEdge && col == store.FieldTo:
			rec.To = val
		default:
			rec.Attributes[col] = val
		}
	}
	return rec
}
