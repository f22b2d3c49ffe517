package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestRedactURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"http://127.0.0.1:9321/secret/api/v2/comment/1?format=xml", "http://127.0.0.1:9321/***/api/v2/comment/1?format=xml"},
		{"http://127.0.0.1:9321/api/v2/match", "http://127.0.0.1:9321/api/v2/match"},
		{"https://user:pw@danmu.example/t/api/config", "https://***@danmu.example/***/api/config"},
		{"https://v.example/play/1", "https://v.example/play/1"},
		{"://bad", "[INVALID_URL]"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactURL(tt.raw))
		})
	}
}

func TestSetup(t *testing.T) {
	defer func(l zerolog.Logger, lvl zerolog.Level) {
		log.Logger = l
		zerolog.SetGlobalLevel(lvl)
	}(log.Logger, zerolog.GlobalLevel())

	var buf bytes.Buffer
	Setup(&buf, false)
	log.Debug().Msg("hidden")
	log.Info().Str("k", "v").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")

	buf.Reset()
	Setup(&buf, true)
	log.Debug().Msg("now visible")
	assert.Contains(t, buf.String(), "now visible")

	buf.Reset()
	Discard()
	log.Info().Msg("dropped")
	assert.Empty(t, buf.String())
}

func TestDebugFromEnv(t *testing.T) {
	t.Setenv("DEBUG", "TRUE")
	assert.True(t, DebugFromEnv())

	t.Setenv("DEBUG", "0")
	assert.False(t, DebugFromEnv())
}
