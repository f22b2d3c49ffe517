package retry

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind classifies a transport failure.
type Kind int

const (
	// KindPermanent is any failure that retrying will not fix.
	KindPermanent Kind = iota
	KindTimeout
	KindConnectionReset
	KindDNSFailure
	KindTLSFailure
	// KindGeneric covers retryable transport failures that do not fit the
	// other kinds, such as protocol errors and unreachable networks.
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionReset:
		return "connection reset"
	case KindDNSFailure:
		return "dns failure"
	case KindTLSFailure:
		return "tls failure"
	case KindGeneric:
		return "transport failure"
	}
	return "permanent"
}

// Retryable reports whether a failure of this kind should be retried.
func (k Kind) Retryable() bool {
	return k != KindPermanent
}

// Windows socket error codes (WSAECONNABORTED, WSAECONNRESET, WSAETIMEDOUT,
// WSAECONNREFUSED). Compared numerically so no build tags are needed.
var windowsErrnos = map[uintptr]Kind{
	10053: KindConnectionReset,
	10054: KindConnectionReset,
	10060: KindTimeout,
	10061: KindConnectionReset,
}

var unixErrnos = map[syscall.Errno]Kind{
	syscall.ECONNRESET:   KindConnectionReset,
	syscall.ECONNABORTED: KindConnectionReset,
	syscall.ECONNREFUSED: KindConnectionReset,
	syscall.EPIPE:        KindConnectionReset,
	syscall.ETIMEDOUT:    KindTimeout,
	syscall.EHOSTUNREACH: KindGeneric,
	syscall.ENETUNREACH:  KindGeneric,
}

type hint struct {
	text string
	kind Kind
}

// hints is the fallback for errors that only carry a message. Keep entries
// lowercase.
var hints = []hint{
	{"connection reset", KindConnectionReset},
	{"connection aborted", KindConnectionReset},
	{"connection refused", KindConnectionReset},
	{"forcibly closed", KindConnectionReset},
	{"broken pipe", KindConnectionReset},
	{"server closed idle connection", KindConnectionReset},
	{"unexpected eof", KindConnectionReset},
	{"timed out", KindTimeout},
	{"timeout", KindTimeout},
	{"temporary failure", KindDNSFailure},
	{"getaddrinfo failed", KindDNSFailure},
	{"name or service not known", KindDNSFailure},
	{"no such host", KindDNSFailure},
	{"eof occurred in violation of protocol", KindTLSFailure},
	{"wrong version number", KindTLSFailure},
	{"tls handshake", KindTLSFailure},
	{"tls: handshake failure", KindTLSFailure},
	{"no route to host", KindGeneric},
	{"network is unreachable", KindGeneric},
	{"malformed http", KindGeneric},
	{"winerror 10053", KindConnectionReset},
	{"winerror 10054", KindConnectionReset},
	{"winerror 10060", KindTimeout},
	{"winerror 10061", KindConnectionReset},
	// Localized Windows message for WSAECONNRESET.
	{"强迫关闭了一个现有的连接", KindConnectionReset},
}

const maxChainDepth = 32

// Classify walks the full error chain, including joined errors, and returns
// the first recognized kind. Structured checks run before message hints at
// every level. Context cancellation is always permanent.
func Classify(err error) Kind {
	if err == nil || errors.Is(err, context.Canceled) {
		return KindPermanent
	}

	pending := []error{err}
	for depth := 0; len(pending) > 0 && depth < maxChainDepth; depth++ {
		current := pending[0]
		pending = pending[1:]

		if kind := classifyOne(current); kind != KindPermanent {
			return kind
		}

		switch x := current.(type) {
		case interface{ Unwrap() error }:
			if next := x.Unwrap(); next != nil {
				pending = append(pending, next)
			}
		case interface{ Unwrap() []error }:
			for _, next := range x.Unwrap() {
				if next != nil {
					pending = append(pending, next)
				}
			}
		}
	}
	return KindPermanent
}

func classifyOne(err error) Kind {
	switch x := err.(type) {
	case syscall.Errno:
		if kind, ok := unixErrnos[x]; ok {
			return kind
		}
		if kind, ok := windowsErrnos[uintptr(x)]; ok {
			return kind
		}
	case *net.DNSError:
		return KindDNSFailure
	case tls.RecordHeaderError, *tls.RecordHeaderError:
		return KindTLSFailure
	case net.Error:
		if x.Timeout() {
			return KindTimeout
		}
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return KindConnectionReset
	}
	if err == os.ErrDeadlineExceeded || err == context.DeadlineExceeded {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, h := range hints {
		if strings.Contains(msg, h.text) {
			return h.kind
		}
	}
	return KindPermanent
}

// Message returns the innermost meaningful message of a transport error,
// dropping wrapper noise such as the method and URL that *url.Error adds.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Error()
	}
	inner := err
	for {
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}
	return inner.Error()
}
