package agent

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/cloo-solutions/reposcout/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of work submitted to a Limiter.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// LimiterStats summarizes a Limiter run.
type LimiterStats struct {
	Total       int
	Succeeded   int
	Failed      int
	Panicked    int
	MaxInFlight int
}

// Limiter runs tasks with at most K in flight. Tasks start in submission
// order; a failing or panicking task does not stop the others.
type Limiter struct {
	k int
}

func NewLimiter(k int) *Limiter {
	if k < 1 {
		k = 1
	}
	return &Limiter{k: k}
}

// Run blocks until every task has finished. Tasks not yet started when ctx is
// cancelled are counted as failed without running.
func (l *Limiter) Run(ctx context.Context, tasks []Task) LimiterStats {
	var (
		g         errgroup.Group
		inFlight  atomic.Int64
		maxSeen   atomic.Int64
		succeeded atomic.Int64
		failed    atomic.Int64
		panicked  atomic.Int64
	)
	g.SetLimit(l.k)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}

			n := inFlight.Add(1)
			metrics.AnalystsInFlight.Inc()
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			defer func() {
				inFlight.Add(-1)
				metrics.AnalystsInFlight.Dec()
			}()

			if err := runTask(ctx, task); err != nil {
				if _, ok := err.(*panicError); ok {
					panicked.Add(1)
				}
				log.Printf("limiter: task %s failed: %v", task.Name, err)
				failed.Add(1)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return LimiterStats{
		Total:       len(tasks),
		Succeeded:   int(succeeded.Load()),
		Failed:      int(failed.Load()),
		Panicked:    int(panicked.Load()),
		MaxInFlight: int(maxSeen.Load()),
	}
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return task.Run(ctx)
}
