package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wintopic/iDanmu-Speed/internal/gate"
	"github.com/wintopic/iDanmu-Speed/internal/gate/gatetest"
	"github.com/wintopic/iDanmu-Speed/internal/retry"
)

type harness struct {
	clock  *gatetest.Clock
	gate   *gate.Shared
	client *Client

	mu         sync.Mutex
	extensions []time.Duration
}

func newHarness(retries int, soft []int) *harness {
	h := &harness{clock: gatetest.NewClock()}
	h.gate = gate.New(gate.WithClock(h.clock), gate.OnExtend(func(d time.Duration) {
		h.mu.Lock()
		h.extensions = append(h.extensions, d)
		h.mu.Unlock()
	}))
	h.client = NewClient(Config{
		Timeout: 5 * time.Second,
		Retries: retries,
		Policy: &retry.Policy{
			BaseDelay: 100 * time.Millisecond,
			Jitter:    func(int64) int64 { return 0 },
		},
		Gate:      h.gate,
		SoftLimit: retry.NewSoftLimit(soft),
		Clock:     h.clock,
	})
	return h
}

func (h *harness) Extensions() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.extensions...)
}

// scripted serves the given handlers in order, repeating the last one.
func scripted(t *testing.T, steps ...http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		steps[min(n, len(steps)-1)](w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func status(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_RetriesRateLimitThenSucceeds(t *testing.T) {
	srv, calls := scripted(t, status(429, "slow down"), status(429, "slow down"), status(200, "<xml/>"))
	h := newHarness(3, nil)

	sess := NewSession()
	defer sess.Close()

	res, err := h.client.Do(context.Background(), sess, Request{URL: srv.URL + "/api/v2/comment/1", Expect: ExpectText})
	require.NoError(t, err)

	assert.Equal(t, "<xml/>", res.Text())
	assert.EqualValues(t, 3, calls.Load())
	assert.GreaterOrEqual(t, len(h.Extensions()), 2)
	for _, d := range h.clock.Sleeps() {
		assert.GreaterOrEqual(t, d, retry.RateLimitFloor)
	}
}

func TestClient_RetryAfterIsHonored(t *testing.T) {
	srv, _ := scripted(t,
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		status(200, `{"ok":true}`),
	)
	h := newHarness(2, nil)

	_, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{7 * time.Second}, h.clock.Sleeps())
}

func TestClient_NonRetryableStatusFailsImmediately(t *testing.T) {
	srv, calls := scripted(t, status(404, `{"errorMessage":"not found"}`))
	h := newHarness(3, nil)

	_, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL})

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 404, httpErr.Status)
	assert.Equal(t, "HTTP 404", err.Error())
	assert.Equal(t, `HTTP 404; body={"errorMessage":"not found"}`, Describe(err))
	assert.True(t, IsHTTPStatus(err, 404))
	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, h.Extensions())
}

func TestClient_ExhaustedRateLimitCoolsDownGate(t *testing.T) {
	srv, calls := scripted(t, status(503, "busy"))
	h := newHarness(1, nil)

	_, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL})

	assert.True(t, IsHTTPStatus(err, 503))
	assert.EqualValues(t, 2, calls.Load())
	ext := h.Extensions()
	require.NotEmpty(t, ext)
	assert.GreaterOrEqual(t, ext[len(ext)-1], retry.RateLimitCooldown)
}

func TestClient_ExhaustedServerErrorDoesNotCoolDown(t *testing.T) {
	srv, calls := scripted(t, status(500, "boom"))
	h := newHarness(1, nil)

	_, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL})

	assert.True(t, IsHTTPStatus(err, 500))
	assert.EqualValues(t, 2, calls.Load())
	for _, d := range h.Extensions() {
		assert.Less(t, d, retry.RateLimitCooldown)
	}
}

func TestClient_SoftRateLimit(t *testing.T) {
	srv, calls := scripted(t,
		status(200, `{"success":false,"errorCode":429,"errorMessage":"busy"}`),
		status(200, `{"success":true,"count":3}`),
	)
	h := newHarness(2, retry.DefaultSoftLimitCodes)

	res, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL})
	require.NoError(t, err)

	assert.JSONEq(t, `{"success":true,"count":3}`, res.Text())
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []time.Duration{retry.RateLimitFloor}, h.clock.Sleeps())
}

func TestClient_SoftRateLimitExhausted(t *testing.T) {
	srv, _ := scripted(t, status(200, `{"success":false,"errorCode":"503"}`))
	h := newHarness(0, retry.DefaultSoftLimitCodes)

	_, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL})

	assert.True(t, IsHTTPStatus(err, 503))
	require.Len(t, h.Extensions(), 1)
	assert.GreaterOrEqual(t, h.Extensions()[0], retry.RateLimitCooldown)
}

func TestClient_InvalidJSON(t *testing.T) {
	srv, calls := scripted(t, status(200, "<html>oops"))
	h := newHarness(1, nil)

	_, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL})

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid JSON response:"), err.Error())
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_EmptyJSONBody(t *testing.T) {
	srv, _ := scripted(t, status(200, "  "))
	h := newHarness(0, nil)

	res, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "{}", res.Text())
}

func TestClient_InvalidUTF8IsReplaced(t *testing.T) {
	srv, _ := scripted(t, status(200, "a\xffb"))
	h := newHarness(0, nil)

	res, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL, Expect: ExpectText})
	require.NoError(t, err)
	assert.Equal(t, "a�b", res.Text())
}

func TestClient_Headers(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	h := newHarness(0, nil)
	sess := NewSession()

	_, err := h.client.Do(context.Background(), sess, Request{URL: srv.URL, Method: http.MethodPost, Body: map[string]string{"a": "b"}})
	require.NoError(t, err)
	_, err = h.client.Do(context.Background(), sess, Request{URL: srv.URL, Expect: ExpectText})
	require.NoError(t, err)

	require.Len(t, headers, 2)
	assert.Equal(t, DefaultUserAgent, headers[0].Get("User-Agent"))
	assert.Equal(t, acceptJSON, headers[0].Get("Accept"))
	assert.Equal(t, "application/json", headers[0].Get("Content-Type"))
	assert.NotEqual(t, acceptJSON, headers[1].Get("Accept"))
	assert.Empty(t, headers[1].Get("Content-Type"))
}

func TestClient_QueryDropsEmptyValues(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.RawQuery)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	h := newHarness(0, nil)

	_, err := h.client.Do(context.Background(), NewSession(), Request{
		URL:   srv.URL + "/api/v2/search/episodes",
		Query: map[string]string{"anime": "Frieren", "episode": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "anime=Frieren", got.Load())
}

func TestClient_UnsupportedScheme(t *testing.T) {
	h := newHarness(3, nil)

	_, err := h.client.Do(context.Background(), NewSession(), Request{URL: "ftp://example.test/file"})
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = h.client.Do(context.Background(), NewSession(), Request{URL: "http:///nohost"})
	assert.ErrorContains(t, err, "missing host")
	assert.Empty(t, h.Extensions())
}

func TestClient_NetworkFailureExhaustion(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	h := newHarness(1, nil)

	_, err = h.client.Do(context.Background(), NewSession(), Request{URL: "http://" + addr + "/api"})

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, retry.KindConnectionReset, netErr.Kind)
	ext := h.Extensions()
	require.Len(t, ext, 2)
	assert.GreaterOrEqual(t, ext[1], retry.NetworkCooldown)
}

func TestClient_CancelledBeforeSend(t *testing.T) {
	srv, calls := scripted(t, status(200, `{}`))
	h := newHarness(0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.client.Do(ctx, NewSession(), Request{URL: srv.URL})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, calls.Load())
}

func TestClient_ReusesConnectionPerWorker(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			conns.Add(1)
		}
	}
	srv.Start()
	defer srv.Close()

	h := newHarness(0, nil)
	sess := NewSession()
	defer sess.Close()

	for range 5 {
		_, err := h.client.Do(context.Background(), sess, Request{URL: srv.URL + "/api/config"})
		require.NoError(t, err)
	}

	assert.EqualValues(t, 1, conns.Load())
	assert.Equal(t, 1, sess.Len())
}

func TestSession_EvictsIdleAndLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := NewSession()
	sess.maxEntries = 2
	sess.now = func() time.Time { return now }

	hosts := []string{"http://a.test", "http://b.test", "http://c.test"}
	for _, raw := range hosts[:2] {
		u, err := buildURL(raw, nil)
		require.NoError(t, err)
		sess.get(u, time.Second)
		now = now.Add(time.Second)
	}
	assert.Equal(t, 2, sess.Len())

	u, _ := buildURL(hosts[2], nil)
	sess.get(u, time.Second)
	assert.Equal(t, 2, sess.Len())
	_, stillThere := sess.conns[connKey{scheme: "http", host: "a.test", timeout: time.Second}]
	assert.False(t, stillThere, "least recently used entry should be evicted")

	now = now.Add(defaultIdleTimeout + time.Second)
	sess.get(u, time.Second)
	assert.Equal(t, 1, sess.Len())

	sess.Close()
	assert.Zero(t, sess.Len())
}

func TestSession_KeyIncludesTimeout(t *testing.T) {
	sess := NewSession()
	u, _ := buildURL("https://a.test/x", nil)

	k1, c1 := sess.get(u, time.Second)
	k2, c2 := sess.get(u, 2*time.Second)

	assert.NotEqual(t, k1, k2)
	assert.NotSame(t, c1, c2)
	assert.Equal(t, 2, sess.Len())

	sess.evict(k1)
	assert.Equal(t, 1, sess.Len())
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://127.0.0.1:9321/secret/api/v2/comment/123", "/api/v2/comment"},
		{"http://127.0.0.1:9321/secret/api/v2/match", "/api/v2/match"},
		{"http://127.0.0.1:9321/secret/api/v2/search/episodes", "/api/v2/search/episodes"},
	}
	for _, tt := range tests {
		u, err := buildURL(tt.raw, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, endpointLabel(u))
	}
}

func TestHTTPError_DetailTruncatesBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"short", "oops", "oops"},
		{"ascii", strings.Repeat("x", 250), strings.Repeat("x", maxBodyInError)},
		{"multibyte", strings.Repeat("é", 250), strings.Repeat("é", maxBodyInError)},
		{"cjk", strings.Repeat("弹", 250), strings.Repeat("弹", maxBodyInError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &HTTPError{Status: 500, Body: tt.body}
			assert.Equal(t, "HTTP 500; body="+tt.want, err.Detail())
		})
	}
}

func TestClient_ReadsLargeBodiesWhole(t *testing.T) {
	const size = 64<<20 + 10
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		chunk := []byte(strings.Repeat("d", 1<<20))
		for written := 0; written < size; {
			n := min(len(chunk), size-written)
			_, _ = w.Write(chunk[:n])
			written += n
		}
	}))
	defer srv.Close()

	h := newHarness(0, nil)
	res, err := h.client.Do(context.Background(), NewSession(), Request{URL: srv.URL, Expect: ExpectText})
	require.NoError(t, err)
	assert.Len(t, res.Body, size)
}
