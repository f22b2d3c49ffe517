// Package http provides the retrying transport for danmu API requests.
//
// The Client in this package handles:
//   - Waiting on the shared rate-limit gate before every attempt
//   - Exponential backoff with jitter, Retry-After and soft rate limits
//   - Classification of network failures into retryable and permanent
//   - Per-worker connection reuse through Session
//
// # Basic Usage
//
//	g := gate.New()
//	client := http.NewClient(http.Config{
//	    Timeout: 45 * time.Second,
//	    Retries: 5,
//	    Policy:  retry.NewPolicy(1500 * time.Millisecond),
//	    Gate:    g,
//	})
//
//	sess := http.NewSession() // one per worker
//	defer sess.Close()
//
//	resp, err := client.Do(ctx, sess, http.Request{
//	    URL:    root + "/api/v2/comment/42",
//	    Query:  map[string]string{"format": "xml"},
//	    Expect: http.ExpectText,
//	})
//
// # Errors
//
// Final failures are either *HTTPError, carrying the status, body and
// headers of the last response, or *NetworkError, carrying the failure kind
// and a readable message. A cancelled context is returned as is.
package http
