// Package rowstore defines the header-driven tabular store that battery log
// rows live in, and the helpers that turn its raw cells into keyed records.
package rowstore

import (
	"context"
	"fmt"
	"strings"
)

// Store is a two-dimensional table of string cells whose first row is the header.
// Implementations give no transactional guarantee: a ReadAll followed by an Append
// can interleave with other writers.
type Store interface {
	// ReadAll returns every row, header first.
	ReadAll(ctx context.Context) ([][]string, error)
	// Append writes one row positionally after the current data range.
	Append(ctx context.Context, values []string) error
}

// Record is one data row keyed by header column name.
type Record map[string]string

// Table is the keyed view of a store snapshot. Columns keeps the header order.
type Table struct {
	Columns []string
	Records []Record
}

// Header returns the first row of values, or nil for an empty store.
func Header(values [][]string) []string {
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// NewTable applies the header row to every data row. Empty header cells get a
// positional key col<i>; missing trailing cells read as "".
func NewTable(values [][]string) Table {
	if len(values) == 0 {
		return Table{Columns: []string{}, Records: []Record{}}
	}

	header := values[0]
	keys := make([]string, len(header))
	columns := make([]string, 0, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		key := strings.TrimSpace(h)
		if key == "" {
			key = fmt.Sprintf("col%d", i)
		}
		keys[i] = key
		if !seen[key] {
			seen[key] = true
			columns = append(columns, key)
		}
	}

	records := make([]Record, 0, len(values)-1)
	for _, row := range values[1:] {
		rec := make(Record, len(keys))
		for i, key := range keys {
			rec[key] = cell(row, i)
		}
		records = append(records, rec)
	}

	return Table{Columns: columns, Records: records}
}

// ReadTable reads the whole store and returns its keyed view.
func ReadTable(ctx context.Context, store Store) (Table, error) {
	values, err := store.ReadAll(ctx)
	if err != nil {
		return Table{}, err
	}
	return NewTable(values), nil
}

// Filter returns a table with the same columns and only the records keep accepts.
func (t Table) Filter(keep func(Record) bool) Table {
	out := Table{Columns: t.Columns, Records: []Record{}}
	for _, rec := range t.Records {
		if keep(rec) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

func cell(row []string, index int) string {
	if index < len(row) {
		return row[index]
	}
	return ""
}
