package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu    sync.Mutex
	runs  int
	err   error
	sleep time.Duration
}

func (c *countingRunner) RunCycle(ctx context.Context) (*Summary, error) {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	if c.sleep > 0 {
		select {
		case <-time.After(c.sleep):
		case <-ctx.Done():
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &Summary{}, nil
}

func (c *countingRunner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func TestScheduler_TriggerNowFiresImmediately(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	s.TriggerNow()
	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestScheduler_IntervalFiresRepeatedly(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	require.Eventually(t, func() bool { return runner.count() >= 3 }, time.Second, time.Millisecond)
}

func TestScheduler_PendingTriggersCoalesce(t *testing.T) {
	runner := &countingRunner{sleep: 30 * time.Millisecond}
	s := NewScheduler(runner, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// A burst of triggers while a cycle is running folds into at most one
	// extra run.
	s.TriggerNow()
	require.Eventually(t, func() bool { return runner.count() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 10; i++ {
		s.TriggerNow()
	}

	require.Eventually(t, func() bool { return runner.count() >= 2 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, runner.count(), 3)

	cancel()
	<-done
}

func TestScheduler_CycleErrorDoesNotStopLoop(t *testing.T) {
	runner := &countingRunner{err: assert.AnError}
	s := NewScheduler(runner, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)

	require.Eventually(t, func() bool { return runner.count() >= 2 }, time.Second, time.Millisecond)
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
