package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/telemetry"
)

// JobKind names an engine entry point.
type JobKind string

const (
	JobStart    JobKind = "start"
	JobContinue JobKind = "continue"
)

// Dispatch runs an entry point on a tracked goroutine bound to the engine's
// base context, so it outlives the HTTP request that triggered it. Dispatches
// after Shutdown are dropped.
func (e *Engine) Dispatch(kind JobKind, requestID string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		log.Printf("engine: dropping %s for %s after shutdown", kind, requestID)
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		ctx, run := telemetry.StartRun(e.baseCtx, requestID, string(kind))
		var err error
		switch kind {
		case JobStart:
			err = e.Start(ctx, requestID)
		case JobContinue:
			err = e.Continue(ctx, requestID)
		default:
			err = fmt.Errorf("unknown job kind %q", kind)
		}
		switch {
		case err == nil:
			run.Finish(nil)
		case errors.Is(err, domain.ErrContinueNotReady), errors.Is(err, domain.ErrInvalidTransition):
			log.Printf("engine: %s for %s skipped: %v", kind, requestID, err)
			run.Skip(err.Error())
		default:
			log.Printf("engine: %s for %s failed: %v", kind, requestID, err)
			run.Finish(err)
		}
	}()
}

func (e *Engine) DispatchStart(requestID string) {
	e.Dispatch(JobStart, requestID)
}

func (e *Engine) DispatchContinue(requestID string) {
	e.Dispatch(JobContinue, requestID)
}

// Shutdown stops accepting dispatches and waits for in-flight runs. If ctx
// ends first the runs are cancelled, which fails their requests, and ctx's
// error is returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}
