package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/jobs"
	"github.com/cloo-solutions/reposcout/internal/metrics"
)

const (
	DefaultCorrectionThreshold = 10
	DefaultMonitorInterval     = 15 * time.Second
)

// ResultLister lists the results of a request.
type ResultLister interface {
	ListByRequest(ctx context.Context, requestID string) ([]*domain.RepoAnalysisResult, error)
}

// Monitor watches a request's rankings while analysts run and sends a
// Correction to every open analyst when any complete ranking falls below the
// threshold.
type Monitor struct {
	requestID  string
	results    ResultLister
	registry   *Registry
	threshold  int
	correction string
	worker     *jobs.Worker
}

func NewMonitor(requestID string, results ResultLister, registry *Registry, threshold int, interval time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultCorrectionThreshold
	}
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	m := &Monitor{
		requestID:  requestID,
		results:    results,
		registry:   registry,
		threshold:  threshold,
		correction: DefaultCorrection,
	}
	m.worker = jobs.New("monitor", m, interval, jobs.LogName("monitor "+requestID))
	return m
}

// Start runs the monitor in the background until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go m.worker.Start(ctx)
}

// Stop cancels an in-flight tick and waits for the loop to exit. No
// correction is sent after Stop returns.
func (m *Monitor) Stop() {
	m.worker.Stop()
}

// Poll implements jobs.Poller.
func (m *Monitor) Poll(ctx context.Context) error {
	results, err := m.results.ListByRequest(ctx, m.requestID)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	if !m.belowThreshold(results) {
		return nil
	}

	for _, a := range m.registry.ForRequest(m.requestID) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := a.Channel().Send(ctx, Correction{Text: m.correction}); err != nil {
			if errors.Is(err, ErrChannelClosed) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("monitor: correction to %s failed: %v", a.RepoURL(), err)
			continue
		}
		metrics.CorrectionsSent.Inc()
	}
	return nil
}

func (m *Monitor) belowThreshold(results []*domain.RepoAnalysisResult) bool {
	for _, r := range results {
		if r.IsComplete() && r.Ranking < m.threshold {
			return true
		}
	}
	return false
}
