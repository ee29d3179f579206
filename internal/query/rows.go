// Package query reads battery log rows back for administrators: listing,
// search by battery, date filters and file exports.
package query

import (
	"context"
	"strings"

	"battery_log/internal/apperr"
	"battery_log/internal/rowstore"
	"battery_log/internal/schema"

	"github.com/rs/zerolog/log"
)

// Service answers read-only questions about the store. Every call reads the
// whole sheet.
type Service struct {
	store rowstore.Store
}

func NewService(store rowstore.Store) *Service {
	return &Service{store: store}
}

// Filter selects rows. The zero Filter matches everything. BatteryID takes
// precedence over the date fields; Date takes precedence over a range.
type Filter struct {
	BatteryID string
	Date      string
	DateFrom  string
	DateTo    string
}

// IsZero reports whether f selects every row.
func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.BatteryID) == "" &&
		strings.TrimSpace(f.Date) == "" &&
		strings.TrimSpace(f.DateFrom) == "" &&
		strings.TrimSpace(f.DateTo) == ""
}

func (s *Service) table(ctx context.Context) (rowstore.Table, error) {
	t, err := rowstore.ReadTable(ctx, s.store)
	if err != nil {
		return rowstore.Table{}, apperr.StoreUnavailable("failed to read rows", err)
	}
	return t, nil
}

// List returns every data row.
func (s *Service) List(ctx context.Context) (rowstore.Table, error) {
	t, err := s.table(ctx)
	if err != nil {
		return rowstore.Table{}, err
	}
	log.Debug().Int("rows", len(t.Records)).Msg("Listed rows")
	return t, nil
}

// SearchByID returns the rows whose primary battery id equals batteryID after
// trimming. No match is an empty table, not an error.
func (s *Service) SearchByID(ctx context.Context, batteryID string) (rowstore.Table, error) {
	id := strings.TrimSpace(batteryID)
	if id == "" {
		return rowstore.Table{}, apperr.Validation("batteryId is required")
	}

	t, err := s.table(ctx)
	if err != nil {
		return rowstore.Table{}, err
	}
	return searchByID(t, id), nil
}

func searchByID(t rowstore.Table, id string) rowstore.Table {
	column := schema.ColumnName(t.Columns, schema.FieldID)
	if column == "" {
		log.Debug().Strs("columns", t.Columns).Msg("No battery id column, search matches nothing")
		return t.Filter(func(rowstore.Record) bool { return false })
	}
	return t.Filter(func(rec rowstore.Record) bool {
		return strings.TrimSpace(rec[column]) == id
	})
}

// ByDate returns the rows matching a single date or an inclusive range.
func (s *Service) ByDate(ctx context.Context, f Filter) (rowstore.Table, error) {
	match, err := dateMatcher(f)
	if err != nil {
		return rowstore.Table{}, err
	}

	t, err := s.table(ctx)
	if err != nil {
		return rowstore.Table{}, err
	}
	return filterByDate(t, match)
}

func filterByDate(t rowstore.Table, match func(string) bool) (rowstore.Table, error) {
	column := DateColumn(t.Columns)
	if column == "" {
		return rowstore.Table{}, apperr.NotConfigured("date column not found")
	}
	return t.Filter(func(rec rowstore.Record) bool {
		return match(rec[column])
	}), nil
}

// Find applies f to the store: by battery id, by date, or everything.
func (s *Service) Find(ctx context.Context, f Filter) (rowstore.Table, error) {
	switch {
	case strings.TrimSpace(f.BatteryID) != "":
		return s.SearchByID(ctx, f.BatteryID)
	case f.IsZero():
		return s.List(ctx)
	default:
		return s.ByDate(ctx, f)
	}
}

// DateColumn picks the header column holding the row date: the first whose
// normalized name is exactly "date", else the first containing "date".
func DateColumn(columns []string) string {
	for _, c := range columns {
		if schema.Normalize(c) == schema.FieldDate {
			return c
		}
	}
	for _, c := range columns {
		if strings.Contains(schema.Normalize(c), schema.FieldDate) {
			return c
		}
	}
	return ""
}
