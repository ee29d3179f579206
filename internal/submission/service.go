// Package submission appends battery log rows, computing charging cycle
// counts from the current contents of the store.
package submission

import (
	"context"
	"strconv"
	"strings"

	"battery_log/internal/apperr"
	"battery_log/internal/cycles"
	"battery_log/internal/rowstore"
	"battery_log/internal/schema"

	"github.com/rs/zerolog/log"
)

// Service runs the read, compute, append sequence. It holds no lock: two
// concurrent submissions for one battery can both observe the same count.
type Service struct {
	store rowstore.Store
}

func NewService(store rowstore.Store) *Service {
	return &Service{store: store}
}

// Result reports the charging cycle count of every battery in the appended
// row, read back after the append.
type Result struct {
	Cycles map[string]int `json:"cycles"`
}

// snapshot is what the pre-append read produced.
type snapshot struct {
	values [][]string
	err    error
}

func (s snapshot) header() []string {
	if s.err != nil {
		return nil
	}
	header := rowstore.Header(s.values)
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			return header
		}
	}
	return nil
}

// Submit validates sub and appends exactly one row for it.
func (s *Service) Submit(ctx context.Context, sub schema.Submission) (Result, error) {
	if err := sub.Validate(); err != nil {
		return Result{}, err
	}

	rec := sub.Record()
	ids := batteryIDs(sub)

	values, err := s.store.ReadAll(ctx)
	snap := snapshot{values: values, err: err}

	needsCycle := map[string]string{}
	if strings.TrimSpace(sub.Primary.Get(schema.FieldChargingCycle)) == "" {
		needsCycle[schema.FieldChargingCycle] = rec[schema.FieldID]
	}
	if sub.HasSecondary() && strings.TrimSpace(sub.Secondary.Get(schema.FieldChargingCycle)) == "" {
		needsCycle[schema.Secondary(schema.FieldChargingCycle)] = rec[schema.Secondary(schema.FieldID)]
	}

	if snap.err != nil {
		if len(needsCycle) > 0 {
			return Result{}, apperr.StoreUnavailable("failed to read rows", snap.err)
		}
		log.Warn().
			Err(snap.err).
			Str("battery_id", rec[schema.FieldID]).
			Msg("Failed to read header, appending in legacy column order")
	}

	preCounts := make(map[string]int, len(ids))
	if snap.err == nil {
		for _, id := range ids {
			preCounts[id] = cycles.CountIn(snap.values, id)
		}
	}
	for key, id := range needsCycle {
		rec[key] = strconv.Itoa(preCounts[id] + 1)
	}

	row := layout(rec, snap.header())
	if err := s.store.Append(ctx, row); err != nil {
		return Result{}, apperr.StoreUnavailable("failed to append row", err)
	}

	log.Info().
		Str("battery_id", rec[schema.FieldID]).
		Str("battery_id_2", rec[schema.Secondary(schema.FieldID)]).
		Str("cycle", rec[schema.FieldChargingCycle]).
		Int("columns", len(row)).
		Msg("Appended battery log row")

	return Result{Cycles: s.postCounts(ctx, ids, preCounts, snap.err == nil)}, nil
}

// postCounts re-scans the store after the append. If that read fails the
// snapshot estimate is reported instead.
func (s *Service) postCounts(ctx context.Context, ids []string, pre map[string]int, havePre bool) map[string]int {
	counts := make(map[string]int, len(ids))

	values, err := s.store.ReadAll(ctx)
	if err != nil {
		log.Warn().
			Err(err).
			Strs("battery_ids", ids).
			Msg("Failed to re-read rows after append, reporting estimated cycles")
		if havePre {
			for _, id := range ids {
				counts[id] = pre[id] + 1
			}
		}
		return counts
	}

	for _, id := range ids {
		counts[id] = cycles.CountIn(values, id)
	}
	return counts
}

func layout(rec rowstore.Record, header []string) []string {
	if len(header) == 0 {
		return schema.LegacyOrder(rec)
	}
	return schema.Map(rec, header)
}

func batteryIDs(sub schema.Submission) []string {
	ids := []string{sub.Primary.ID()}
	if sub.HasSecondary() && sub.Secondary.ID() != sub.Primary.ID() {
		ids = append(ids, sub.Secondary.ID())
	}
	return ids
}
