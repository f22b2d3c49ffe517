package retry

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
)

// DefaultSoftLimitCodes are the body error codes treated as overload signals.
var DefaultSoftLimitCodes = []int{429, 503}

// SoftLimit detects rate-limit signals embedded in a 200 response body.
//
// Some backends answer overload with HTTP 200 and a JSON object such as
// {"success": false, "errorCode": 429}. The code list is configurable because
// this is a backend convention, not HTTP semantics. A nil *SoftLimit detects
// nothing.
type SoftLimit struct {
	Codes []int
}

// NewSoftLimit returns a detector for codes. An empty list disables detection.
func NewSoftLimit(codes []int) *SoftLimit {
	return &SoftLimit{Codes: slices.Clone(codes)}
}

type softEnvelope struct {
	Success   *bool           `json:"success"`
	ErrorCode json.RawMessage `json:"errorCode"`
}

// Detect returns the embedded status when body is a JSON object whose
// errorCode is one of the configured codes and whose success flag is not
// true. It returns 0 otherwise.
func (s *SoftLimit) Detect(body []byte) int {
	if s == nil || len(s.Codes) == 0 {
		return 0
	}

	var env softEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0
	}
	if env.Success != nil && *env.Success {
		return 0
	}

	code, ok := parseCode(env.ErrorCode)
	if !ok || !slices.Contains(s.Codes, code) {
		return 0
	}
	return code
}

// parseCode accepts a JSON number or a numeric string.
func parseCode(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	code, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}
	return code, true
}
