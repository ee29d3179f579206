package schema

import (
	"fmt"
	"strconv"
	"strings"

	"battery_log/internal/apperr"
	"battery_log/internal/rowstore"
)

// Battery holds the fields of one battery event keyed by primary field key.
type Battery map[string]string

// Get returns the value of key, "" when absent.
func (b Battery) Get(key string) string {
	return b[key]
}

// ID returns the trimmed battery identifier.
func (b Battery) ID() string {
	return strings.TrimSpace(b[FieldID])
}

// Submission is one client payload: a primary battery and an optional second
// one sent with `_2` suffixed keys.
type Submission struct {
	Primary   Battery
	Secondary Battery
}

// HasSecondary reports whether the payload names a second battery.
func (s Submission) HasSecondary() bool {
	return s.Secondary != nil && s.Secondary.ID() != ""
}

// ParseSubmission builds a Submission from a decoded JSON object. Header
// spellings and aliases are accepted for keys; numbers and booleans are kept
// in their textual form because every cell in the store is text. When both an
// alias and the canonical key are sent, the canonical key wins.
func ParseSubmission(body map[string]any) Submission {
	sub := Submission{Primary: Battery{}}
	for _, exact := range []bool{false, true} {
		for rawKey, rawValue := range body {
			key, ok := KeyFor(rawKey)
			if !ok || (Normalize(rawKey) == Normalize(key)) != exact {
				continue
			}
			sub.set(key, stringify(rawValue))
		}
	}
	return sub
}

func (s *Submission) set(key, value string) {
	if primary, isSecondary := strings.CutSuffix(key, SecondarySuffix); isSecondary {
		if s.Secondary == nil {
			s.Secondary = Battery{}
		}
		s.Secondary[primary] = value
		return
	}
	s.Primary[key] = value
}

// Validate checks the primary battery and names the first missing field.
// The secondary battery is not validated; its absent fields stay empty.
func (s Submission) Validate() error {
	for _, key := range []string{FieldID, FieldDate, FieldName} {
		if strings.TrimSpace(s.Primary[key]) == "" {
			return apperr.Validation(fmt.Sprintf("%s is required", key))
		}
	}
	return nil
}

// Record builds the full semantic record: every primary field and every
// secondary twin, defaulted to "". Ids are trimmed.
func (s Submission) Record() rowstore.Record {
	rec := make(rowstore.Record, len(Fields)*2)
	for _, f := range Fields {
		rec[f.Key] = s.Primary.Get(f.Key)
		rec[Secondary(f.Key)] = ""
		if s.Secondary != nil {
			rec[Secondary(f.Key)] = s.Secondary.Get(f.Key)
		}
	}
	rec[FieldID] = s.Primary.ID()
	if s.Secondary != nil {
		rec[Secondary(FieldID)] = s.Secondary.ID()
	}
	return rec
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
