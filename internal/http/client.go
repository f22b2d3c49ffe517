package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wintopic/iDanmu-Speed/internal/gate"
	"github.com/wintopic/iDanmu-Speed/internal/logging"
	"github.com/wintopic/iDanmu-Speed/internal/metrics"
	"github.com/wintopic/iDanmu-Speed/internal/retry"
)

const (
	// DefaultUserAgent identifies the downloader to the danmu API.
	DefaultUserAgent = "iDanmu-Speed/1.0"

	acceptJSON  = "application/json, text/plain, */*"
	minTimeout  = 100 * time.Millisecond
)

// Expect selects how a successful body is interpreted.
type Expect int

const (
	// ExpectJSON validates the body as JSON. Empty bodies become "{}".
	ExpectJSON Expect = iota

	// ExpectText returns the body as UTF-8 text, replacing invalid bytes.
	ExpectText
)

// Request describes one logical API call. Retries reuse it unchanged.
type Request struct {
	Method string
	URL    string

	// Query parameters are appended to URL. Empty values are dropped.
	Query map[string]string

	// Body is encoded as JSON when non-nil.
	Body any

	Expect Expect

	// Endpoint labels metrics and logs. It must not contain secrets.
	Endpoint string
}

// Response is the final successful outcome of Do.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Config configures a Client. Zero values get defaults in NewClient.
type Config struct {
	Timeout   time.Duration
	Retries   int
	Policy    *retry.Policy
	Gate      gate.Gate
	SoftLimit *retry.SoftLimit
	UserAgent string
	Clock     gate.Clock
}

// Client is the retrying transport every API call goes through.
//
// A Client is safe for concurrent use. Connection state lives in the
// *Session passed to Do, not in the Client.
type Client struct {
	timeout   time.Duration
	retries   int
	policy    *retry.Policy
	gate      gate.Gate
	soft      *retry.SoftLimit
	userAgent string
	clock     gate.Clock
}

// NewClient returns a Client for cfg.
func NewClient(cfg Config) *Client {
	c := &Client{
		timeout:   max(cfg.Timeout, minTimeout),
		retries:   max(cfg.Retries, 0),
		policy:    cfg.Policy,
		gate:      cfg.Gate,
		soft:      cfg.SoftLimit,
		userAgent: cfg.UserAgent,
		clock:     cfg.Clock,
	}
	if c.policy == nil {
		c.policy = retry.NewPolicy(retry.MinDelay)
	}
	if c.gate == nil {
		c.gate = gate.New()
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.clock == nil {
		c.clock = gate.RealClock
	}
	return c
}

// Retries returns the configured retry count.
func (c *Client) Retries() int { return c.retries }

// attemptResult is the outcome of a single round trip.
type attemptResult struct {
	status int
	header http.Header
	body   []byte
}

// Do performs req with up to Retries+1 attempts.
//
// Before every attempt Do waits on the shared gate. Retryable failures
// extend the gate by the backoff delay and sleep for it; when retries run
// out on a rate-limit status or a retryable network error the gate is
// extended by the exhaustion cooldown so other workers back off too.
// Final failures are *HTTPError or *NetworkError. Cancellation of ctx is
// returned as ctx.Err().
func (c *Client) Do(ctx context.Context, sess *Session, req Request) (*Response, error) {
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if req.Body != nil {
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	redacted := logging.RedactURL(target.String())
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = endpointLabel(target)
	}

	for attempt := 0; ; attempt++ {
		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}

		res, err := c.roundTrip(ctx, sess, method, target, payload, req.Expect, endpoint)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			kind := retry.Classify(err)
			netErr := &NetworkError{Kind: kind, Msg: retry.Message(err), Err: err}
			if !kind.Retryable() {
				return nil, netErr
			}
			if attempt >= c.retries {
				c.gate.Extend(c.policy.ExhaustedNetworkCooldown(attempt))
				log.Warn().
					Str("url", redacted).
					Str("kind", kind.String()).
					Int("attempts", attempt+1).
					Msg("Network retries exhausted")
				return nil, netErr
			}
			if err := c.backoff(ctx, kind.String(), redacted, attempt, c.policy.Delay(attempt, 0, -1)); err != nil {
				return nil, err
			}
			continue
		}

		if res.status >= 400 {
			httpErr := &HTTPError{Status: res.status, Body: string(res.body), Header: res.header}
			if !retry.RetryableStatus(res.status) {
				return nil, httpErr
			}
			if attempt >= c.retries {
				c.exhausted(attempt, res.status, redacted)
				return nil, httpErr
			}
			wait := c.policy.Delay(attempt, res.status, c.retryAfter(res, res.status))
			if err := c.backoff(ctx, fmt.Sprintf("http_%d", res.status), redacted, attempt, wait); err != nil {
				return nil, err
			}
			continue
		}

		if req.Expect == ExpectText {
			return &Response{Status: res.status, Header: res.header, Body: res.body}, nil
		}

		body := res.body
		if len(bytes.TrimSpace(body)) == 0 {
			body = []byte("{}")
		}

		var raw json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			if attempt >= c.retries {
				return nil, fmt.Errorf("invalid JSON response: %w", err)
			}
			if err := c.backoff(ctx, "invalid_json", redacted, attempt, c.policy.Delay(attempt, 0, -1)); err != nil {
				return nil, err
			}
			continue
		}

		if status := c.soft.Detect(body); status != 0 {
			if attempt >= c.retries {
				c.exhausted(attempt, status, redacted)
				return nil, &HTTPError{Status: status, Body: string(body), Header: res.header}
			}
			wait := c.policy.Delay(attempt, status, c.retryAfter(res, status))
			if err := c.backoff(ctx, fmt.Sprintf("soft_%d", status), redacted, attempt, wait); err != nil {
				return nil, err
			}
			continue
		}

		return &Response{Status: res.status, Header: res.header, Body: body}, nil
	}
}

// backoff extends the gate by wait and then sleeps for it.
func (c *Client) backoff(ctx context.Context, reason, url string, attempt int, wait time.Duration) error {
	metrics.RecordRetry(reason)
	c.gate.Extend(wait)

	log.Debug().
		Str("url", url).
		Str("reason", reason).
		Int("attempt", attempt+1).
		Dur("wait", wait).
		Msg("Retrying request")

	return c.clock.Sleep(ctx, wait)
}

func (c *Client) exhausted(attempt, status int, url string) {
	if !retry.RateLimitStatus(status) {
		return
	}
	cooldown := c.policy.ExhaustedCooldown(attempt, status)
	c.gate.Extend(cooldown)
	log.Warn().
		Str("url", url).
		Int("status", status).
		Dur("cooldown", cooldown).
		Msg("Rate limit retries exhausted")
}

// retryAfter returns the Retry-After hint for rate-limit statuses, or -1.
func (c *Client) retryAfter(res *attemptResult, status int) time.Duration {
	if !retry.RateLimitStatus(status) {
		return -1
	}
	return retry.ParseRetryAfter(res.header.Get("Retry-After"), c.clock.Now())
}

// roundTrip sends one request over the session's pooled connection.
func (c *Client) roundTrip(ctx context.Context, sess *Session, method string, target *url.URL, payload []byte, expect Expect, endpoint string) (*attemptResult, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	// Requests already sent are not aborted by cancellation; the client
	// timeout still bounds them.
	httpReq, err := http.NewRequestWithContext(context.WithoutCancel(ctx), method, target.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if expect == ExpectJSON {
		httpReq.Header.Set("Accept", acceptJSON)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	key, client := sess.get(target, c.timeout)
	started := time.Now()

	resp, err := client.Do(httpReq)
	if err != nil {
		sess.evict(key)
		metrics.RecordRequest(endpoint, 0, err, time.Since(started))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	metrics.RecordRequest(endpoint, resp.StatusCode, err, time.Since(started))
	if err != nil {
		sess.evict(key)
		return nil, err
	}
	if resp.Close {
		sess.evict(key)
	}

	return &attemptResult{
		status: resp.StatusCode,
		header: resp.Header,
		body:   []byte(strings.ToValidUTF8(string(data), "�")),
	}, nil
}

// buildURL parses raw and appends the non-empty query values.
func buildURL(raw string, query map[string]string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid request URL: missing host in %q", logging.RedactURL(raw))
	}

	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			if v != "" {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// endpointLabel keeps metric cardinality bounded: the token and ids are
// dropped, only the API route prefix survives.
func endpointLabel(u *url.URL) string {
	path := u.Path
	if idx := strings.Index(path, "/api/"); idx >= 0 {
		path = path[idx:]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 4 {
		parts = parts[:4]
	}
	if len(parts) == 4 && parts[2] == "comment" {
		parts = parts[:3]
	}
	return "/" + strings.Join(parts, "/")
}

// IsHTTPStatus reports whether err is an *HTTPError with the given status.
func IsHTTPStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}
