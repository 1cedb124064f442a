package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BoundsConcurrency(t *testing.T) {
	const k, n = 5, 23
	var inFlight, maxSeen atomic.Int64

	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{Name: fmt.Sprintf("task-%d", i), Run: func(ctx context.Context) error {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxSeen.Load()
				if cur <= m || maxSeen.CompareAndSwap(m, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return nil
		}}
	}

	stats := NewLimiter(k).Run(context.Background(), tasks)

	assert.Equal(t, n, stats.Total)
	assert.Equal(t, n, stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.LessOrEqual(t, stats.MaxInFlight, k)
	assert.LessOrEqual(t, int(maxSeen.Load()), k)
	assert.Zero(t, inFlight.Load())
}

func TestLimiter_StartsInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	tasks := make([]Task, 8)
	for i := range tasks {
		i := i
		tasks[i] = Task{Name: fmt.Sprint(i), Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}}
	}

	NewLimiter(1).Run(context.Background(), tasks)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestLimiter_FailuresAndPanicsDoNotStopSiblings(t *testing.T) {
	var ran atomic.Int64
	tasks := []Task{
		{Name: "ok", Run: func(ctx context.Context) error { ran.Add(1); return nil }},
		{Name: "fail", Run: func(ctx context.Context) error { ran.Add(1); return errors.New("boom") }},
		{Name: "panic", Run: func(ctx context.Context) error { ran.Add(1); panic("kaboom") }},
		{Name: "ok2", Run: func(ctx context.Context) error { ran.Add(1); return nil }},
	}

	stats := NewLimiter(2).Run(context.Background(), tasks)

	assert.Equal(t, int64(4), ran.Load())
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Panicked)
}

func TestLimiter_CancelledContextSkipsQueuedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	tasks := make([]Task, 3)
	for i := range tasks {
		tasks[i] = Task{Name: fmt.Sprint(i), Run: func(ctx context.Context) error { ran.Add(1); return nil }}
	}

	stats := NewLimiter(2).Run(ctx, tasks)

	assert.Zero(t, ran.Load())
	assert.Equal(t, 3, stats.Failed)
}

func TestNewLimiter_ClampsK(t *testing.T) {
	assert.Equal(t, 1, NewLimiter(0).k)
}
