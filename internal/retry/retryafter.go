package retry

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter converts a Retry-After header value into a duration.
//
// Both forms are accepted: delta-seconds and an HTTP-date. A date in the past
// yields zero. Missing or malformed values yield -1.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return -1
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		if secs > int(MaxDelay/time.Second) {
			return MaxDelay
		}
		return time.Duration(secs) * time.Second
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return -1
	}
	return max(0, at.Sub(now))
}
