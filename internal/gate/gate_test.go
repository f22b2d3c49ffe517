package gate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wintopic/iDanmu-Speed/internal/gate"
	"github.com/wintopic/iDanmu-Speed/internal/gate/gatetest"
)

func TestShared_OpenGateDoesNotWait(t *testing.T) {
	clock := gatetest.NewClock()
	g := gate.New(gate.WithClock(clock))

	require.NoError(t, g.Wait(context.Background()))
	assert.Empty(t, clock.Sleeps())
	assert.True(t, g.Deadline().IsZero())
}

func TestShared_WaitSleepsInSlices(t *testing.T) {
	clock := gatetest.NewClock()
	g := gate.New(gate.WithClock(clock))

	g.Extend(2500 * time.Millisecond)
	require.NoError(t, g.Wait(context.Background()))

	assert.Equal(t, []time.Duration{time.Second, time.Second, 500 * time.Millisecond}, clock.Sleeps())
	assert.Zero(t, g.Remaining())
}

func TestShared_ExtendNeverShortens(t *testing.T) {
	clock := gatetest.NewClock()
	g := gate.New(gate.WithClock(clock))

	g.Extend(10 * time.Second)
	g.Extend(2 * time.Second)
	g.Extend(0)
	g.Extend(-time.Minute)

	assert.Equal(t, clock.Now().Add(10*time.Second), g.Deadline())
}

func TestShared_ConcurrentExtendKeepsMaximum(t *testing.T) {
	clock := gatetest.NewClock()

	var (
		mu       sync.Mutex
		extended []time.Duration
	)
	g := gate.New(gate.WithClock(clock), gate.OnExtend(func(d time.Duration) {
		mu.Lock()
		extended = append(extended, d)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			g.Extend(time.Duration(n) * 100 * time.Millisecond)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, clock.Now().Add(6400*time.Millisecond), g.Deadline())
	assert.Len(t, extended, 64)
}

func TestShared_WaitHonorsCancellation(t *testing.T) {
	g := gate.New()
	g.Extend(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestShared_WaitPicksUpLateExtension(t *testing.T) {
	g := gate.New()
	g.Extend(50 * time.Millisecond)

	start := time.Now()
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Extend(200 * time.Millisecond)
	}()
	require.NoError(t, g.Wait(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)
}
