package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one row of a generic view. Column names are the keys.
type Record map[string]any

// NormalizeRecord converts driver-level values (raw bytes, decimals) into
// JSON-friendly ones so records can be cached, mirrored and compared.
func NormalizeRecord(in map[string]any) Record {
	out := make(Record, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case []byte:
			out[k] = string(val)
		case decimal.Decimal:
			out[k] = val.String()
		case *time.Time:
			if val == nil {
				out[k] = nil
			} else {
				out[k] = *val
			}
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the textual form of column, or "" when absent.
func (r Record) String(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// Int returns column as an int. Numeric strings are accepted.
func (r Record) Int(column string) (int, bool) {
	switch val := r[column].(type) {
	case int:
		return val, true
	case int32:
		return int(val), true
	case int64:
		return int(val), true
	case uint64:
		return int(val), true
	case float64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(val)
		return n, err == nil
	case []byte:
		n, err := strconv.Atoi(string(val))
		return n, err == nil
	}
	return 0, false
}

// Time returns column as a time. Strings are parsed with ParseDateTime.
func (r Record) Time(column string) (time.Time, bool) {
	switch val := r[column].(type) {
	case time.Time:
		return val, true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, true
	case string:
		return ParseDateTime(val)
	case []byte:
		return ParseDateTime(string(val))
	}
	return time.Time{}, false
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDateTime accepts the date-time forms the store and the audit trail emit.
// Values without a zone are read as UTC.
func ParseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
