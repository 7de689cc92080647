package sdk

import "time"

// convertISODates replaces RFC 3339 strings with time.Time values, walking
// nested maps and slices.
func convertISODates(m map[string]any) {
	for k, v := range m {
		m[k] = convertValue(v)
	}
}

func convertValue(v any) any {
	switch val := v.(type) {
	case string:
		if len(val) < len("2006-01-02T15:04:05Z") {
			return val
		}
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t
		}
		return val
	case map[string]any:
		convertISODates(val)
		return val
	case []any:
		for i := range val {
			val[i] = convertValue(val[i])
		}
		return val
	default:
		return v
	}
}
