package app

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func TestFireTimeFor(t *testing.T) {
	// Diffusion dans 3 minutes: la fenêtre de 5 minutes est déjà passée.
	_, ok := FireTimeFor(t0.Add(3*time.Minute), DefaultAdvanceWindow, t0)
	assert.False(t, ok)

	fireAt, ok := FireTimeFor(t0.Add(10*time.Minute), DefaultAdvanceWindow, t0)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Minute), fireAt)

	_, ok = FireTimeFor(t0.Add(5*time.Minute), DefaultAdvanceWindow, t0)
	assert.False(t, ok)
}

func TestScheduler_FiresOnceAtFireTime(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s := NewScheduler(clock)

	var fired atomic.Int32
	fireAt, ok := FireTimeFor(t0.Add(10*time.Minute), DefaultAdvanceWindow, clock.Now())
	assert.True(t, ok)
	assert.True(t, s.Schedule("a", fireAt, func() { fired.Add(1) }))
	assert.Equal(t, 1, s.Pending())

	got, ok := s.FireAt("a")
	assert.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Minute), got)

	clock.Advance(4*time.Minute + 59*time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestScheduler_PastFireTimeIsNoop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s := NewScheduler(clock)

	assert.False(t, s.Schedule("a", t0, func() {}))
	assert.False(t, s.Schedule("a", t0.Add(-time.Minute), func() {}))
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_ReplaceKeepsSingleTimer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s := NewScheduler(clock)

	var first, second atomic.Int32
	s.Schedule("a", t0.Add(time.Minute), func() { first.Add(1) })
	s.Schedule("a", t0.Add(2*time.Minute), func() { second.Add(1) })
	assert.Equal(t, 1, s.Pending())

	clock.Advance(3 * time.Minute)
	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestScheduler_PastScheduleStillCancelsPrevious(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s := NewScheduler(clock)

	var fired atomic.Int32
	s.Schedule("a", t0.Add(time.Minute), func() { fired.Add(1) })
	assert.False(t, s.Schedule("a", t0.Add(-time.Minute), func() { fired.Add(1) }))
	assert.Equal(t, 0, s.Pending())

	clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestScheduler_CancelAll(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	s := NewScheduler(clock)

	var fired atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		s.Schedule(id, t0.Add(time.Minute), func() { fired.Add(1) })
	}
	s.Cancel("a")
	assert.Equal(t, 2, s.Pending())

	s.CancelAll()
	assert.Equal(t, 0, s.Pending())

	clock.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
