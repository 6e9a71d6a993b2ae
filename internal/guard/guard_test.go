package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "203.0.113.1")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "203.0.113.1")
	rl.Check(ctx, "203.0.113.1")
	result := rl.Check(ctx, "203.0.113.1")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, "key-a").Allowed)
	assert.True(t, rl.Check(ctx, "key-b").Allowed)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter(1, time.Minute)
	rl.now = clock.now
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "ip").Allowed)
	require.False(t, rl.Check(ctx, "ip").Allowed)

	clock.advance(61 * time.Second)
	assert.True(t, rl.Check(ctx, "ip").Allowed)
}

func TestRateLimiter_SweepDropsIdleKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter(5, time.Minute)
	rl.now = clock.now
	ctx := context.Background()

	rl.Check(ctx, "a")
	rl.Check(ctx, "b")
	clock.advance(2 * time.Minute)
	rl.Sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.windows)
}

func TestRateLimiter_DisabledWhenLimitNotPositive(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Check(context.Background(), "ip").Allowed)
	}
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	assert.True(t, cb.Check(context.Background(), "gotrue").Allowed)
	assert.Equal(t, CircuitClosed, cb.State("gotrue"))
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.RecordFailure("gotrue")
	cb.RecordFailure("gotrue")

	result := cb.Check(ctx, "gotrue")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
	assert.Equal(t, "open", cb.State("gotrue").String())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)

	cb.RecordFailure("gotrue")
	cb.RecordSuccess("gotrue")
	cb.RecordFailure("gotrue")

	assert.True(t, cb.Check(context.Background(), "gotrue").Allowed)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(1, 5*time.Second)
	cb.now = clock.now
	ctx := context.Background()

	cb.RecordFailure("gotrue")
	require.False(t, cb.Check(ctx, "gotrue").Allowed)

	clock.advance(6 * time.Second)
	require.True(t, cb.Check(ctx, "gotrue").Allowed, "first probe allowed")
	assert.False(t, cb.Check(ctx, "gotrue").Allowed, "second probe rejected")
	assert.Equal(t, CircuitHalfOpen, cb.State("gotrue"))

	cb.RecordFailure("gotrue")
	assert.Equal(t, CircuitOpen, cb.State("gotrue"), "failed probe reopens")

	clock.advance(6 * time.Second)
	require.True(t, cb.Check(ctx, "gotrue").Allowed)
	cb.RecordSuccess("gotrue")
	assert.Equal(t, CircuitClosed, cb.State("gotrue"))
}

func TestCircuitBreaker_Do(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	ctx := context.Background()
	upstream := errors.New("upstream down")
	rejected := errors.New("bad password")
	onlyUpstream := func(err error) bool { return errors.Is(err, upstream) }

	err := cb.Do(ctx, "gotrue", onlyUpstream, func() error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, CircuitClosed, cb.State("gotrue"), "caller errors do not trip the circuit")

	err = cb.Do(ctx, "gotrue", onlyUpstream, func() error { return upstream })
	assert.ErrorIs(t, err, upstream)

	called := false
	err = cb.Do(ctx, "gotrue", onlyUpstream, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "user-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, km.Len(), "idle keys are freed")
}

func TestKeyedMutex_DifferentKeysDoNotContend(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "user-a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, "user-b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	km := NewKeyedMutex()

	unlock, err := km.Lock(context.Background(), "user-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "user-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	assert.Zero(t, km.Len())

	again, err := km.Lock(context.Background(), "user-1")
	require.NoError(t, err)
	again()
}
