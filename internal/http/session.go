package http

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	defaultMaxEntries  = 8
	defaultIdleTimeout = 90 * time.Second
)

// connKey identifies a reusable connection: scheme, host:port and timeout.
type connKey struct {
	scheme  string
	host    string
	timeout time.Duration
}

type conn struct {
	client    *http.Client
	transport *http.Transport
	lastUsed  time.Time
}

// Session is a per-worker connection pool.
//
// Each worker owns one Session and passes it to every Client.Do call, so
// sequential requests from the same worker reuse one keep-alive connection
// per (scheme, host, timeout) instead of re-handshaking. An entry is evicted
// and its connection closed when a request on it fails, when the server
// announces it will close the connection, when it has been idle longer than
// the idle timeout, or when the pool is full and it is the least recently
// used.
type Session struct {
	mu          sync.Mutex
	conns       map[connKey]*conn
	maxEntries  int
	idleTimeout time.Duration
	now         func() time.Time

	// newTransport builds the transport for a new entry.
	newTransport func() *http.Transport
}

// NewSession returns an empty per-worker pool.
func NewSession() *Session {
	return &Session{
		conns:        make(map[connKey]*conn),
		maxEntries:   defaultMaxEntries,
		idleTimeout:  defaultIdleTimeout,
		now:          time.Now,
		newTransport: defaultTransport,
	}
}

func defaultTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 1
	t.MaxIdleConnsPerHost = 1
	t.MaxConnsPerHost = 1
	t.IdleConnTimeout = defaultIdleTimeout
	return t
}

// Len returns the number of pooled entries.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Session) get(u *url.URL, timeout time.Duration) (connKey, *http.Client) {
	key := connKey{scheme: u.Scheme, host: u.Host, timeout: timeout}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, c := range s.conns {
		if now.Sub(c.lastUsed) > s.idleTimeout {
			c.transport.CloseIdleConnections()
			delete(s.conns, k)
		}
	}

	if c, ok := s.conns[key]; ok {
		c.lastUsed = now
		return key, c.client
	}

	if len(s.conns) >= s.maxEntries {
		s.evictOldestLocked()
	}

	t := s.newTransport()
	c := &conn{
		client:    &http.Client{Transport: t, Timeout: timeout},
		transport: t,
		lastUsed:  now,
	}
	s.conns[key] = c
	return key, c.client
}

func (s *Session) evictOldestLocked() {
	var (
		oldest    connKey
		oldestAt  time.Time
		haveFirst bool
	)
	for k, c := range s.conns {
		if !haveFirst || c.lastUsed.Before(oldestAt) {
			oldest, oldestAt, haveFirst = k, c.lastUsed, true
		}
	}
	if haveFirst {
		s.conns[oldest].transport.CloseIdleConnections()
		delete(s.conns, oldest)
	}
}

func (s *Session) evict(key connKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conns[key]; ok {
		c.transport.CloseIdleConnections()
		delete(s.conns, key)
	}
}

// Close drops every pooled connection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, c := range s.conns {
		c.transport.CloseIdleConnections()
		delete(s.conns, k)
	}
}
