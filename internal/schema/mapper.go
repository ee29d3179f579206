package schema

import "battery_log/internal/rowstore"

// Map lays a semantic record out in header order. Each header cell is
// normalized and resolved to a semantic key; columns the schema does not know,
// or keys the record lacks, yield "". Map never fails: manual edits to the
// sheet add columns, they do not break submissions.
func Map(rec rowstore.Record, header []string) []string {
	byKey := make(map[string]string, len(rec))
	for k, v := range rec {
		if key, ok := KeyFor(k); ok {
			byKey[key] = v
		}
	}

	out := make([]string, len(header))
	for i, h := range header {
		key, ok := KeyFor(h)
		if !ok {
			continue
		}
		out[i] = byKey[key]
	}
	return out
}

// LegacyOrder lays a record out in the fixed legacy column order. Used when the
// header row cannot be read.
func LegacyOrder(rec rowstore.Record) []string {
	keys := LegacyKeys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = rec[k]
	}
	return out
}
