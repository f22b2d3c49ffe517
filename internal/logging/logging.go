// Package logging configures the process-wide zerolog logger.
//
// Library packages log through github.com/rs/zerolog/log and never configure
// it; only entry points call Setup.
package logging

import (
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DebugFromEnv reports whether DEBUG=1 or DEBUG=true is set.
func DebugFromEnv() bool {
	v := strings.ToLower(os.Getenv("DEBUG"))
	return v == "1" || v == "true"
}

// Setup points the global logger at w with a human-readable console format.
// debug lowers the level from info to debug.
func Setup(w io.Writer, debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
	}).With().Timestamp().Logger()
}

// Discard silences all logging. Front-ends that own the terminal use it.
func Discard() {
	log.Logger = zerolog.Nop()
}

// RedactURL hides credentials and the API token path segment of rawURL.
//
// The token is carried as the first path segment of the API root, so every
// path segment before "/api/" is replaced with "***".
func RedactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[INVALID_URL]"
	}
	if u.User != nil {
		u.User = url.User("***")
	}

	if idx := strings.Index(u.Path, "/api/"); idx > 0 {
		u.Path = "/***" + u.Path[idx:]
		u.RawPath = ""
	}
	return u.String()
}
