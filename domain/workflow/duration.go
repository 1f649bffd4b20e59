package workflow

import (
	"regexp"
	"strconv"
)

// durationPattern matches the grammar from §4.1: an optional hour, minute
// and second component in that order, e.g. "1h30m15s", "45m", "90s".
var durationPattern = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

var bareSecondsPattern = regexp.MustCompile(`^\d+$`)

// ParseDuration parses a duration string of the form "1h30m15s" (any subset
// of the three components, in that order) or a bare integer number of
// seconds, returning the total number of seconds. "0s" is valid and means
// no wait. Negative values and anything that doesn't match either grammar
// return a DurationError.
func ParseDuration(s string) (int64, error) {
	if s == "" {
		return 0, NewDurationError(s)
	}

	if bareSecondsPattern.MatchString(s) {
		seconds, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, NewDurationError(s)
		}
		return seconds, nil
	}

	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, NewDurationError(s)
	}
	if m[1] == "" && m[2] == "" && m[3] == "" {
		return 0, NewDurationError(s)
	}

	var total int64
	if m[1] != "" {
		h, _ := strconv.ParseInt(m[1], 10, 64)
		total += h * 3600
	}
	if m[2] != "" {
		mm, _ := strconv.ParseInt(m[2], 10, 64)
		total += mm * 60
	}
	if m[3] != "" {
		s, _ := strconv.ParseInt(m[3], 10, 64)
		total += s
	}

	return total, nil
}
