package cron

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

// fakeClock fires After channels only when advanced.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{at: at, ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func TestSchedulerRunsOnInterval(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock))

	var runs atomic.Int32
	s.Register(Job{Name: "tick", Interval: time.Minute, Fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return clock.pending() == 1 }, time.Second, time.Millisecond)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 1 && clock.pending() == 1 }, time.Second, time.Millisecond)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunSyncRecordsStatus(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.Register(Job{Name: "ok", Interval: time.Hour, Fn: func(context.Context) error { return nil }})
	s.Register(Job{Name: "bad", Interval: time.Hour, Fn: func(context.Context) error { return boom }})

	require.NoError(t, s.RunSync(context.Background(), "ok"))
	assert.ErrorIs(t, s.RunSync(context.Background(), "bad"), boom)

	res, err := s.GetTask("ok")
	require.NoError(t, err)
	assert.Equal(t, StatusFulfill, res.Status)

	res, err = s.GetTask("bad")
	require.NoError(t, err)
	assert.Equal(t, StatusReject, res.Status)
	assert.Equal(t, "boom", res.Message)

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "bad", items[0].Name)
	assert.NotNil(t, items[0].LastRunAt)
}

func TestUnknownJob(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Run(context.Background(), "nope"), ErrJobNotFound)
	_, err := s.GetTask("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
