package http

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/wintopic/iDanmu-Speed/internal/retry"
)

// maxBodyInError bounds how many characters of a response body Detail
// includes.
const maxBodyInError = 200

// ErrUnsupportedScheme is returned for request URLs that are not http(s).
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// HTTPError is a final non-success response. Status may come from a JSON
// body (soft rate limit) rather than the status line.
type HTTPError struct {
	Status int
	Body   string
	Header http.Header
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Detail returns the error with a truncated body, suitable for reports.
func (e *HTTPError) Detail() string {
	return fmt.Sprintf("%s; body=%s", e.Error(), truncate(e.Body, maxBodyInError))
}

// NetworkError is a final transport failure.
type NetworkError struct {
	Kind retry.Kind
	Msg  string
	Err  error
}

func (e *NetworkError) Error() string { return e.Msg }

func (e *NetworkError) Unwrap() error { return e.Err }

// Describe renders err for display, expanding HTTP errors with their body.
func Describe(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Detail()
	}
	return err.Error()
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
