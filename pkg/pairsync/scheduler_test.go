package pairsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleReplacesPendingAction(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var first, second atomic.Int32
	s.Schedule("k", 30*time.Millisecond, func(context.Context) { first.Add(1) })
	s.Schedule("k", 30*time.Millisecond, func(context.Context) { second.Add(1) })
	assert.Equal(t, 1, s.Pending())

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var ran atomic.Int32
	s.Schedule("commit/p1/1", 20*time.Millisecond, func(context.Context) { ran.Add(1) })
	s.Schedule("commit/p1/2", 20*time.Millisecond, func(context.Context) { ran.Add(1) })
	s.Schedule("commit/p2/1", 20*time.Millisecond, func(context.Context) { ran.Add(1) })

	assert.True(t, s.Cancel("commit/p2/1"))
	assert.False(t, s.Cancel("commit/p2/1"))
	assert.Equal(t, 2, s.CancelPrefix("commit/p1/"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), ran.Load())
}

func TestFlushRunsPendingActionsNow(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var ran atomic.Int32
	s.Schedule("a", time.Hour, func(context.Context) {
		ran.Add(1)
		s.Schedule("b", time.Hour, func(context.Context) { ran.Add(1) })
	})
	s.Flush()
	assert.Equal(t, int32(2), ran.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestStopCancelsPendingAndRunningContext(t *testing.T) {
	s := NewScheduler()

	started := make(chan struct{})
	var cancelled atomic.Bool
	s.Schedule("running", 0, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	var pendingRan atomic.Bool
	s.Schedule("pending", time.Hour, func(context.Context) { pendingRan.Store(true) })

	<-started
	s.Stop()
	assert.True(t, cancelled.Load())
	assert.False(t, pendingRan.Load())
	assert.Equal(t, 0, s.Pending())

	s.Schedule("after", 0, func(context.Context) { pendingRan.Store(true) })
	time.Sleep(20 * time.Millisecond)
	assert.False(t, pendingRan.Load(), "stopped scheduler accepts no work")
}
