package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cloo-solutions/reposcout/internal/metrics"
)

// Poller does one pass of background work: claim what is due, process it,
// return.
type Poller interface {
	Poll(ctx context.Context) error
}

// Worker calls a Poller on a fixed interval until stopped. A panicking pass
// is logged and counted; the loop keeps going.
type Worker struct {
	kind      string
	name      string
	poller    Poller
	interval  time.Duration
	immediate bool

	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
}

type Option func(*Worker)

// Immediately runs the first pass on Start instead of one interval later.
func Immediately() Option {
	return func(w *Worker) { w.immediate = true }
}

// LogName overrides the kind in log lines, e.g. to add a request id without
// adding it to metric labels.
func LogName(name string) Option {
	return func(w *Worker) { w.name = name }
}

// New creates a worker. kind labels its metrics.
func New(kind string, poller Poller, interval time.Duration, opts ...Option) *Worker {
	w := &Worker{
		kind:     kind,
		name:     kind,
		poller:   poller,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks until ctx is done or Stop is called. Stop cancels the context
// of an in-flight pass.
func (w *Worker) Start(ctx context.Context) {
	started := false
	w.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(w.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	log.Printf("%s: started with poll interval %v", w.name, w.interval)
	defer log.Printf("%s: stopped", w.name)

	if w.immediate {
		w.pass(runCtx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			// Stop may have raced the tick.
			if runCtx.Err() != nil {
				return
			}
			w.pass(runCtx)
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	err := w.safePoll(ctx)
	switch {
	case err == nil:
		metrics.WorkerPasses.WithLabelValues(w.kind, "ok").Inc()
	case ctx.Err() != nil:
		// cancelled by Stop or shutdown, not a failure
	default:
		log.Printf("%s: pass failed: %v", w.name, err)
		metrics.WorkerPasses.WithLabelValues(w.kind, outcomeOf(err)).Inc()
	}
}

type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

func (w *Worker) safePoll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return w.poller.Poll(ctx)
}

func outcomeOf(err error) string {
	if _, ok := err.(panicError); ok {
		return "panic"
	}
	return "error"
}

// Stop ends the loop and waits for it. Safe to call more than once and
// before Start, which then never runs.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	started := true
	w.startOnce.Do(func() {
		started = false
		close(w.done)
	})
	if started {
		<-w.done
	}
}
