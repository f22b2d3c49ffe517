// Package gate provides the shared cooldown window that every request must
// pass before it is sent.
//
// When one worker hits a rate limit or a network failure it extends the
// gate, and every other worker sharing the same Gate pauses too. A Gate is an
// explicitly owned value: independent engines in one process use independent
// gates.
package gate

import (
	"context"
	"sync"
	"time"
)

// maxSlice bounds a single sleep inside Wait so extensions made while a
// worker is already waiting are picked up promptly.
const maxSlice = time.Second

// Gate is the contract the transport depends on.
type Gate interface {
	// Wait blocks until the cooldown deadline has passed or ctx is done.
	Wait(ctx context.Context) error

	// Extend pushes the deadline to at least now+d. It never moves the
	// deadline backwards and ignores d <= 0.
	Extend(d time.Duration)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealClock is the wall/monotonic clock.
var RealClock Clock = realClock{}

// Shared is the default Gate implementation.
type Shared struct {
	mu       sync.Mutex
	deadline time.Time

	clock    Clock
	onExtend func(d time.Duration)
}

// Option configures a Shared gate.
type Option func(*Shared)

// WithClock replaces the clock.
func WithClock(c Clock) Option {
	return func(s *Shared) { s.clock = c }
}

// OnExtend registers a callback invoked for every effective Extend call
// (d > 0), outside the lock.
func OnExtend(fn func(d time.Duration)) Option {
	return func(s *Shared) { s.onExtend = fn }
}

// New returns an open gate.
func New(opts ...Option) *Shared {
	s := &Shared{clock: RealClock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait implements Gate.
func (s *Shared) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		remaining := s.deadline.Sub(s.clock.Now())
		s.mu.Unlock()

		if remaining <= 0 {
			return nil
		}
		if err := s.clock.Sleep(ctx, min(remaining, maxSlice)); err != nil {
			return err
		}
	}
}

// Extend implements Gate.
func (s *Shared) Extend(d time.Duration) {
	if d <= 0 {
		return
	}

	s.mu.Lock()
	target := s.clock.Now().Add(d)
	if target.After(s.deadline) {
		s.deadline = target
	}
	s.mu.Unlock()

	if s.onExtend != nil {
		s.onExtend(d)
	}
}

// Deadline returns the current cooldown deadline. The zero time means the
// gate has never been extended.
func (s *Shared) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

// Remaining returns how long a request issued now would wait.
func (s *Shared) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(0, s.deadline.Sub(s.clock.Now()))
}
