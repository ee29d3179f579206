package cycles

import (
	"context"
	"strings"

	"battery_log/internal/apperr"
	"battery_log/internal/rowstore"
	"battery_log/internal/schema"

	"github.com/rs/zerolog/log"
)

// Counter derives charging cycle counts by scanning the whole store. Nothing
// is cached: every call reads the sheet again.
type Counter struct {
	store rowstore.Store
}

func NewCounter(store rowstore.Store) *Counter {
	return &Counter{store: store}
}

// Count returns how many rows name batteryID as either the primary or the
// secondary battery.
func (c *Counter) Count(ctx context.Context, batteryID string) (int, error) {
	id := strings.TrimSpace(batteryID)
	if id == "" {
		return 0, apperr.Validation("batteryId is required")
	}

	values, err := c.store.ReadAll(ctx)
	if err != nil {
		return 0, apperr.StoreUnavailable("failed to read rows", err)
	}

	count := CountIn(values, id)
	log.Debug().
		Str("battery_id", id).
		Int("rows", max(len(values)-1, 0)).
		Int("cycles", count).
		Msg("Counted battery participation")
	return count, nil
}

// CountIn counts participation of batteryID in a store snapshot (header
// first). Cells are trimmed and compared exactly, case-sensitive.
func CountIn(values [][]string, batteryID string) int {
	id := strings.TrimSpace(batteryID)
	if id == "" || len(values) == 0 {
		return 0
	}

	primaryCol, secondaryCol := idColumns(rowstore.Header(values))

	count := 0
	for _, row := range values[1:] {
		if matchesCell(row, primaryCol, id) || matchesCell(row, secondaryCol, id) {
			count++
		}
	}
	return count
}

// idColumns locates the primary and secondary id columns in header. A header
// that names neither falls back to the legacy positions.
func idColumns(header []string) (primary, secondary int) {
	primary = schema.ColumnIndex(header, schema.FieldID)
	secondary = schema.ColumnIndex(header, schema.Secondary(schema.FieldID))
	if primary < 0 && secondary < 0 {
		log.Debug().Strs("header", header).Msg("No id column in header, using legacy positions")
		return schema.LegacyIndex(schema.FieldID), schema.LegacyIndex(schema.Secondary(schema.FieldID))
	}
	return primary, secondary
}

func matchesCell(row []string, index int, id string) bool {
	if index < 0 || index >= len(row) {
		return false
	}
	return strings.TrimSpace(row[index]) == id
}
