// Package telemetry reports engine runs, phases and failures of search
// requests to Sentry. Without a DSN the SDK runs on a disabled client and
// every call here is a no-op.
package telemetry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

const serverName = "reposcout"

// Transactions the sampler never keeps. Scrapes and probes would drown the
// engine runs otherwise.
var unsampled = map[string]bool{
	"GET /health":  true,
	"GET /metrics": true,
}

type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client. The returned func flushes
// buffered events and must run before exit.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:           cfg.DSN,
		Environment:   cfg.Environment,
		EnableTracing: true,
		TracesSampler: sampler(cfg.TracesSampleRate),
		Debug:         cfg.Debug,
		ServerName:    serverName,
	})
	if err != nil {
		log.Printf("sentry: failed to initialize (continuing without tracing): %v", err)
		return func() {}, nil
	}

	log.Printf("sentry: initialized (environment: %s, sample_rate: %.2f)", cfg.Environment, cfg.TracesSampleRate)
	return func() { sentry.Flush(5 * time.Second) }, nil
}

// sampler keeps every child span of a sampled run so a phase is never
// reported without the run it belongs to.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span == nil {
			return rate
		}
		if unsampled[ctx.Span.Name] {
			return 0
		}
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// Run is the transaction for one engine entry point (start or continue) of
// a search request. It carries its own hub so tags set for one request never
// leak into another run on a different goroutine.
type Run struct {
	tx  *sentry.Span
	hub *sentry.Hub
}

func StartRun(ctx context.Context, requestID, kind string) (context.Context, *Run) {
	parent := sentry.GetHubFromContext(ctx)
	if parent == nil {
		parent = sentry.CurrentHub()
	}
	hub := parent.Clone()
	hub.Scope().SetTag("request_id", requestID)
	hub.Scope().SetTag("run", kind)
	ctx = sentry.SetHubOnContext(ctx, hub)

	tx := sentry.StartTransaction(ctx, "engine."+kind,
		sentry.WithOpName("engine.run"),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	tx.SetTag("request_id", requestID)
	return tx.Context(), &Run{tx: tx, hub: hub}
}

// Finish closes the run with a status derived from err. Errors are captured
// by CaptureRequestError where the phase is known, not here.
func (r *Run) Finish(err error) {
	r.tx.Status = statusOf(err)
	r.tx.Finish()
}

// Skip closes a run that found nothing to do, such as a continue that raced
// another one.
func (r *Run) Skip(reason string) {
	r.tx.Status = sentry.SpanStatusAborted
	r.tx.SetData("skipped", reason)
	r.tx.Finish()
}

// Phase is a child span covering one engine phase. Outside a run it becomes
// its own transaction.
type Phase struct {
	span *sentry.Span
}

func StartPhase(ctx context.Context, requestID, phase string) (context.Context, *Phase) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild("engine.phase", sentry.WithDescription(phase))
	} else {
		span = sentry.StartTransaction(ctx, "engine."+phase,
			sentry.WithOpName("engine.phase"),
			sentry.WithTransactionSource(sentry.SourceTask),
		)
	}
	span.SetTag("request_id", requestID)
	span.SetTag("phase", phase)
	return span.Context(), &Phase{span: span}
}

func (p *Phase) End() {
	p.span.Finish()
}

// Operation is a span around a synchronous service call, such as accepting a
// new search. Unlike a phase it captures its own failure.
type Operation struct {
	span *sentry.Span
}

func StartOperation(ctx context.Context, name string) (context.Context, *Operation) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild("service", sentry.WithDescription(name))
	} else {
		span = sentry.StartTransaction(ctx, name, sentry.WithOpName("service"))
	}
	return span.Context(), &Operation{span: span}
}

// Tag labels the operation once its subject, e.g. the new request id, is known.
func (o *Operation) Tag(key, value string) {
	o.span.SetTag(key, value)
}

func (o *Operation) Fail(err error) {
	o.span.Status = statusOf(err)
	hubFor(o.span.Context()).CaptureException(err)
}

func (o *Operation) End() {
	o.span.Finish()
}

func statusOf(err error) sentry.SpanStatus {
	switch {
	case err == nil:
		return sentry.SpanStatusOK
	case errors.Is(err, context.Canceled):
		return sentry.SpanStatusCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return sentry.SpanStatusDeadlineExceeded
	}
	return sentry.SpanStatusInternalError
}

func hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

func CaptureError(ctx context.Context, err error) {
	hubFor(ctx).CaptureException(err)
}

// CaptureRequestError reports the failure that moved a request to error,
// tagged with the phase it failed in.
func CaptureRequestError(ctx context.Context, requestID, phase string, err error) {
	hub := hubFor(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", requestID)
		scope.SetTag("phase", phase)
		scope.SetFingerprint([]string{"request-failed", phase})
		hub.CaptureException(err)
	})
}

// CaptureDegraded records a fallback the engine took instead of failing,
// such as approving every result when the judge is unavailable.
func CaptureDegraded(ctx context.Context, requestID, what string, err error) {
	hub := hubFor(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("request_id", requestID)
		scope.SetTag("degraded", what)
		hub.CaptureMessage(what + ": " + err.Error())
	})
}

// PhaseEntered leaves a breadcrumb so a later error event shows the phases
// the request went through.
func PhaseEntered(ctx context.Context, requestID, phase string) {
	breadcrumb(ctx, "phase", requestID+" -> "+phase)
}

// ReviewRecorded leaves a breadcrumb for a human verdict.
func ReviewRecorded(ctx context.Context, reviewID, verdict string) {
	breadcrumb(ctx, "review", verdict+" on "+reviewID)
}

func breadcrumb(ctx context.Context, category, message string) {
	hubFor(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
