package navigator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// ParseDuration accepts ISO-8601 durations (PT30S, P1DT2H), Go durations
// (1m30s) and bare integers as milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		return parseISODuration(strings.ToUpper(s))
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d, nil
}

func parseISODuration(s string) (time.Duration, error) {
	// A designator with no components is not a duration.
	if s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("parse duration %q: no duration components", s)
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d.ToTimeDuration(), nil
}
