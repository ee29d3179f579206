package query

import (
	"fmt"
	"strings"
	"time"

	"battery_log/internal/apperr"
)

// dateLayouts are the cell and query date shapes accepted, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// parseDay reads s as a calendar day at local noon.
func parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 12, 0, 0, 0, time.Local), true
	}
	return time.Time{}, false
}

// dateMatcher builds the row predicate for f. A single date matches cells that
// are equal as text or name the same day; a range is inclusive on both ends and
// open on a missing end. Rows whose date cannot be parsed never match a range.
func dateMatcher(f Filter) (func(string) bool, error) {
	if date := strings.TrimSpace(f.Date); date != "" {
		day, ok := parseDay(date)
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("invalid date: %s", date))
		}
		return func(cell string) bool {
			if strings.TrimSpace(cell) == date {
				return true
			}
			d, ok := parseDay(cell)
			return ok && d.Equal(day)
		}, nil
	}

	from, to := strings.TrimSpace(f.DateFrom), strings.TrimSpace(f.DateTo)
	if from == "" && to == "" {
		return nil, apperr.Validation("date or dateFrom/dateTo is required")
	}

	var lo, hi time.Time
	if from != "" {
		var ok bool
		if lo, ok = parseDay(from); !ok {
			return nil, apperr.Validation(fmt.Sprintf("invalid dateFrom: %s", from))
		}
	}
	if to != "" {
		var ok bool
		if hi, ok = parseDay(to); !ok {
			return nil, apperr.Validation(fmt.Sprintf("invalid dateTo: %s", to))
		}
	}
	if from != "" && to != "" && lo.After(hi) {
		return nil, apperr.Validation("dateFrom must not be after dateTo")
	}

	return func(cell string) bool {
		d, ok := parseDay(cell)
		if !ok {
			return false
		}
		if from != "" && d.Before(lo) {
			return false
		}
		if to != "" && d.After(hi) {
			return false
		}
		return true
	}, nil
}
