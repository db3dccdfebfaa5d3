package pipeline

import (
	"strconv"
	"strings"
	"time"
)

// Stage-duration encodings seen across CRM API versions. The unit is
// configured per integration, never guessed.
const (
	DurationUnitHHMMSS  = "hhmmss"
	DurationUnitSeconds = "seconds"
	DurationUnitMillis  = "millis"
)

const (
	secondsPerDay = 86400
	millisPerDay  = 86400000
)

// timeLayouts are tried in order when a timestamp arrives as text.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
}

// asString coerces a raw value to a trimmed string. Blank strings report
// false so they behave like absent values.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		trimmed := strings.TrimSpace(s)
		return trimmed, trimmed != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}

// asFloat coerces a raw value to a float64. Unparsable text reports false;
// it never panics, whatever the source handed over.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// asTime coerces a raw value to an instant in the reference timezone.
// Unparsable values report false; a malformed date never leaks through as
// a zero time.
func asTime(v any, loc *time.Location) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.In(loc), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.In(loc), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// durationDays converts the stage-duration counter to fractional days
// according to the configured unit. Anything malformed reports false.
func durationDays(v any, unit string) (float64, bool) {
	switch unit {
	case DurationUnitSeconds:
		secs, ok := asFloat(v)
		if !ok {
			return 0, false
		}
		return secs / secondsPerDay, true
	case DurationUnitMillis:
		ms, ok := asFloat(v)
		if !ok {
			return 0, false
		}
		return ms / millisPerDay, true
	default:
		s, ok := asString(v)
		if !ok {
			return 0, false
		}
		return hhmmssToDays(s)
	}
}

// hhmmssToDays parses "HH:MM" or "HH:MM:SS" text into fractional days.
// Wrong token counts or non-numeric parts report false.
func hhmmssToDays(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}
	sec := 0
	if len(parts) == 3 {
		sec, err = strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return 0, false
		}
	}
	total := h*3600 + m*60 + sec
	return float64(total) / secondsPerDay, true
}

// personMapper resolves owner/BDR identifiers to display names.
type personMapper struct {
	idToName map[string]string
	names    map[string]struct{}
}

func newPersonMapper(idToName map[string]string) personMapper {
	m := personMapper{idToName: idToName, names: make(map[string]struct{}, len(idToName))}
	for _, name := range idToName {
		m.names[name] = struct{}{}
	}
	return m
}

// resolve maps a raw owner/BDR value to a display name. With no mapping
// table configured every non-blank value passes through; with one, values
// must be a known id or a known display name, anything else degrades to
// fallback so typos do not mint phantom people.
func (m personMapper) resolve(v any, fallback string) string {
	s, ok := asString(v)
	if !ok {
		return fallback
	}
	if len(m.idToName) == 0 {
		return s
	}
	if name, ok := m.idToName[s]; ok {
		return name
	}
	if _, ok := m.names[s]; ok {
		return s
	}
	return fallback
}

// resolveStage maps a stage code to its display name. Unknown codes pass
// through verbatim so configuration gaps stay visible in the output.
func resolveStage(v any, idToName map[string]string, fallback string) string {
	s, ok := asString(v)
	if !ok {
		return fallback
	}
	if name, ok := idToName[s]; ok {
		return name
	}
	return s
}
