package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/wintopic/iDanmu-Speed/internal/model"
	"github.com/wintopic/iDanmu-Speed/internal/naming"
	"github.com/wintopic/iDanmu-Speed/internal/retry"
)

// Local API modes.
const (
	LocalAPIAuto = "auto"
	LocalAPIOn   = "on"
	LocalAPIOff  = "off"
)

// Settings holds all configuration options.
type Settings struct {
	// Backend
	BaseURL  string `json:"base_url"`
	Token    string `json:"token"`
	LocalAPI string `json:"local_api"` // auto, on, off

	// Output
	Output     string `json:"output"`
	Format     string `json:"format"` // json, xml
	NamingRule string `json:"naming_rule"`

	// Scheduling
	Concurrency  int `json:"concurrency"`
	Retries      int `json:"retries"`
	RetryDelayMs int `json:"retry_delay_ms"`
	ThrottleMs   int `json:"throttle_ms"`
	TimeoutMs    int `json:"timeout_ms"`

	// Body errorCode values treated as rate limits
	SoftLimitCodes []int `json:"soft_limit_codes"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		BaseURL:  "http://127.0.0.1:9321",
		Token:    "",
		LocalAPI: LocalAPIAuto,

		Output:     "downloads",
		Format:     string(model.FormatXML),
		NamingRule: naming.DefaultRule,

		Concurrency:  6,
		Retries:      5,
		RetryDelayMs: 1500,
		ThrottleMs:   120,
		TimeoutMs:    45000,

		SoftLimitCodes: append([]int(nil), retry.DefaultSoftLimitCodes...),
	}
}

// Load reads settings from a JSON file. A missing file yields defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return settings, nil
}

// Save writes settings to a JSON file.
func (s *Settings) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Normalize trims text fields, lowercases enums and fills blanks with
// defaults.
func (s *Settings) Normalize() {
	def := DefaultSettings()

	s.BaseURL = strings.TrimSpace(s.BaseURL)
	s.Token = strings.TrimSpace(s.Token)
	s.Output = strings.TrimSpace(s.Output)
	s.Format = strings.ToLower(strings.TrimSpace(s.Format))
	s.NamingRule = strings.TrimSpace(s.NamingRule)
	s.LocalAPI = strings.ToLower(strings.TrimSpace(s.LocalAPI))

	if s.Output == "" {
		s.Output = def.Output
	}
	if s.Format == "" {
		s.Format = def.Format
	}
	if s.NamingRule == "" {
		s.NamingRule = def.NamingRule
	}
	if s.LocalAPI == "" {
		s.LocalAPI = def.LocalAPI
	}
}

// Validate reports the first invalid option.
func (s *Settings) Validate() error {
	if s.Format != string(model.FormatJSON) && s.Format != string(model.FormatXML) {
		return fmt.Errorf("format must be json or xml, got %q", s.Format)
	}
	switch s.LocalAPI {
	case LocalAPIAuto, LocalAPIOn, LocalAPIOff:
	default:
		return fmt.Errorf("local_api must be auto, on or off, got %q", s.LocalAPI)
	}

	for _, opt := range []struct {
		name  string
		value int
	}{
		{"concurrency", s.Concurrency},
		{"retries", s.Retries},
		{"retry_delay_ms", s.RetryDelayMs},
		{"throttle_ms", s.ThrottleMs},
		{"timeout_ms", s.TimeoutMs},
	} {
		if opt.value < 0 {
			return fmt.Errorf("%s must be >= 0", opt.name)
		}
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1")
	}

	if _, err := naming.Parse(s.NamingRule); err != nil {
		return err
	}
	if _, err := APIRoot(s.BaseURL, s.Token); err != nil {
		return err
	}
	return nil
}

// DefaultFormat returns the run-wide payload format.
func (s *Settings) DefaultFormat() model.Format {
	return model.Format(s.Format)
}

// RetryDelay returns the base retry delay.
func (s *Settings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// Throttle returns the task start spacing.
func (s *Settings) Throttle() time.Duration {
	return time.Duration(s.ThrottleMs) * time.Millisecond
}

// Timeout returns the per-request timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

var (
	schemeRe   = regexp.MustCompile(`(?i)^https?://`)
	loopbackRe = regexp.MustCompile(`^127(?:\.\d{1,3}){3}$`)
)

var localHosts = map[string]struct{}{
	"127.0.0.1": {},
	"localhost": {},
	"::1":       {},
	"0.0.0.0":   {},
}

func isLocalHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if _, ok := localHosts[host]; ok {
		return true
	}
	return loopbackRe.MatchString(host)
}

// WithDefaultScheme prefixes raw with http:// for loopback hosts and
// https:// otherwise, unless it already has an http(s) scheme.
func WithDefaultScheme(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" || schemeRe.MatchString(text) {
		return text
	}

	if strings.HasPrefix(text, "[::1]") {
		return "http://" + text
	}
	host, _, _ := strings.Cut(text, "/")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if isLocalHost(host) {
		return "http://" + text
	}
	return "https://" + text
}

// IsLocalBaseURL reports whether baseURL points at this machine.
func IsLocalBaseURL(baseURL string) bool {
	u, err := url.Parse(WithDefaultScheme(baseURL))
	if err != nil {
		return false
	}
	return isLocalHost(u.Hostname())
}

// APIRoot builds the API root from a base URL and an optional token.
//
// The token becomes an escaped path segment. Query and fragment are dropped
// and the result has no trailing slash:
//
//	APIRoot("127.0.0.1:9321", "abc") // "http://127.0.0.1:9321/abc"
func APIRoot(baseURL, token string) (string, error) {
	u, err := url.Parse(WithDefaultScheme(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid base URL: %s", baseURL)
	}

	root := u.Scheme + "://"
	if u.User != nil {
		root += u.User.String() + "@"
	}
	root += u.Host + strings.TrimRight(u.EscapedPath(), "/")
	if t := strings.TrimSpace(token); t != "" {
		root += "/" + url.PathEscape(t)
	}
	return root, nil
}
