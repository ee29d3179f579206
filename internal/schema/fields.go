// Package schema describes the battery log row: its semantic fields, how
// spreadsheet header names map onto them, and how a submission becomes a
// positional row that matches whatever header the sheet currently has.
package schema

import (
	"strings"
	"unicode"
)

// Version identifies the field set below. Bump it when fields change meaning.
const Version = 2

// SecondarySuffix marks the fields of the second battery in a dual submission.
const SecondarySuffix = "_2"

const (
	FieldID                = "id"
	FieldDate              = "date"
	FieldChargingCycle     = "chargingCycle"
	FieldChargeCurrent     = "chargeCurrent"
	FieldBattVoltInitial   = "battVoltInitial"
	FieldBattVoltFinal     = "battVoltFinal"
	FieldChargeTimeInitial = "chargeTimeInitial"
	FieldChargeTimeFinal   = "chargeTimeFinal"
	FieldDuration          = "duration"
	FieldCapacity          = "capacity"
	FieldTemp              = "temp"
	FieldDeformation       = "deformation"
	FieldOthers            = "others"
	FieldUIN               = "uin"
	FieldName              = "name"
	FieldPhoto             = "photo"
)

// Field is one semantic column. Aliases are alternative header spellings,
// compared after Normalize.
type Field struct {
	Key     string
	Aliases []string
}

// Fields lists the primary battery fields in legacy column order.
var Fields = []Field{
	{Key: FieldID, Aliases: []string{"batteryid", "battery"}},
	{Key: FieldDate},
	{Key: FieldChargingCycle, Aliases: []string{"cycle", "cycles", "chargingcycles"}},
	{Key: FieldChargeCurrent},
	{Key: FieldBattVoltInitial},
	{Key: FieldBattVoltFinal},
	{Key: FieldChargeTimeInitial},
	{Key: FieldChargeTimeFinal},
	{Key: FieldDuration},
	{Key: FieldCapacity},
	{Key: FieldTemp, Aliases: []string{"temperature"}},
	{Key: FieldDeformation},
	{Key: FieldOthers},
	{Key: FieldUIN},
	{Key: FieldName, Aliases: []string{"responsibleperson", "responsiblename"}},
	{Key: FieldPhoto},
}

// Secondary returns the key of the second-battery twin of a primary field.
func Secondary(key string) string {
	return key + SecondarySuffix
}

// PrimaryKeys returns the primary field keys in legacy order.
func PrimaryKeys() []string {
	keys := make([]string, len(Fields))
	for i, f := range Fields {
		keys[i] = f.Key
	}
	return keys
}

// LegacyKeys returns the full fixed column order used when no header can be
// read: the primary fields followed by their secondary twins.
func LegacyKeys() []string {
	keys := PrimaryKeys()
	for _, f := range Fields {
		keys = append(keys, Secondary(f.Key))
	}
	return keys
}

// Normalize folds a column name for matching: lower-case, keeping only
// letters and digits. "BatteryID", "battery_id" and "battery id" all become
// "batteryid".
func Normalize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// lookup maps every normalized spelling to its semantic key.
var lookup = buildLookup()

func buildLookup() map[string]string {
	m := make(map[string]string)
	for _, f := range Fields {
		sec := Secondary(f.Key)
		m[Normalize(f.Key)] = f.Key
		m[Normalize(sec)] = sec
		for _, alias := range f.Aliases {
			a := Normalize(alias)
			if _, taken := m[a]; !taken {
				m[a] = f.Key
			}
			if _, taken := m[a+"2"]; !taken {
				m[a+"2"] = sec
			}
		}
	}
	return m
}

// KeyFor resolves a header name to a semantic key. ok is false for columns
// the schema does not know.
func KeyFor(header string) (key string, ok bool) {
	key, ok = lookup[Normalize(header)]
	return key, ok
}

// ColumnIndex returns the position of the first header column that resolves
// to key, or -1.
func ColumnIndex(header []string, key string) int {
	for i, h := range header {
		if k, ok := KeyFor(h); ok && k == key {
			return i
		}
	}
	return -1
}

// ColumnName returns the first header column that resolves to key, or "".
func ColumnName(header []string, key string) string {
	if i := ColumnIndex(header, key); i >= 0 {
		return strings.TrimSpace(header[i])
	}
	return ""
}

// LegacyIndex returns key's position in LegacyKeys, or -1.
func LegacyIndex(key string) int {
	for i, k := range LegacyKeys() {
		if k == key {
			return i
		}
	}
	return -1
}
