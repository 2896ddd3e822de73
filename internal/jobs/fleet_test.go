package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rep4rep/steam-commenter/internal/service"
)

type countingRunner struct {
	calls int32
	err   error
}

func (r *countingRunner) Run(ctx context.Context) (*service.FleetSummary, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.err != nil {
		return nil, r.err
	}
	return &service.FleetSummary{Accounts: []service.AccountResult{{Username: "alice", Comments: 2}}}, nil
}

type memLock struct {
	mu       sync.Mutex
	held     bool
	released int
}

func (l *memLock) Acquire(ctx context.Context) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "token", true, nil
}

func (l *memLock) Release(ctx context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.released++
	return nil
}

func TestRunExclusive(t *testing.T) {
	ctx := context.Background()

	t.Run("nil lock always runs", func(t *testing.T) {
		called := false
		ran, err := RunExclusive(ctx, nil, func(context.Context) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
		assert.True(t, called)
	})

	t.Run("releases after running", func(t *testing.T) {
		lock := &memLock{}
		ran, err := RunExclusive(ctx, lock, func(context.Context) error { return assert.AnError })
		assert.ErrorIs(t, err, assert.AnError)
		assert.True(t, ran)
		assert.False(t, lock.held)
		assert.Equal(t, 1, lock.released)
	})

	t.Run("skips when held elsewhere", func(t *testing.T) {
		lock := &memLock{held: true}
		called := false
		ran, err := RunExclusive(ctx, lock, func(context.Context) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ran)
		assert.False(t, called)
		assert.Zero(t, lock.released)
	})
}

func TestFleetJob_RunsImmediatelyAndOnTick(t *testing.T) {
	runner := &countingRunner{}
	job := NewFleetJob(runner, &memLock{}, 20*time.Millisecond)

	job.Start()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runner.calls) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	job.Stop()

	calls := atomic.LoadInt32(&runner.calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&runner.calls), "no runs after Stop")
}

func TestFleetJob_SurvivesRunErrors(t *testing.T) {
	runner := &countingRunner{err: assert.AnError}
	job := NewFleetJob(runner, nil, 10*time.Millisecond)

	job.Start()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&runner.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	job.Stop()
}
