package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/metrics"
)

const (
	// MaxRetries is the maximum number of attempts for an enrichment
	MaxRetries = 3
)

// EnrichmentRepository defines the interface for enrichment persistence
type EnrichmentRepository interface {
	// GetPendingEnrichments retrieves and claims pending enrichments
	GetPendingEnrichments(ctx context.Context) ([]*domain.Enrichment, error)

	// UpdateEnrichmentStatus updates the status of an enrichment
	UpdateEnrichmentStatus(ctx context.Context, id string, status domain.EnrichmentStatus, errMsg string) error

	// CompleteEnrichment stores the outcome and marks the enrichment completed
	CompleteEnrichment(ctx context.Context, id string, outcome domain.EnrichmentOutcome) error

	// IncrementRetries increments the retry count for an enrichment
	IncrementRetries(ctx context.Context, id string) error
}

// Enricher regenerates an analysis for a rejected result.
type Enricher interface {
	Enrich(ctx context.Context, e *domain.Enrichment) (*domain.EnrichmentOutcome, error)
}

// EnrichmentWorker drains enrichments recorded during handoff
type EnrichmentWorker struct {
	repo     EnrichmentRepository
	enricher Enricher
}

// NewEnrichmentWorker creates a new EnrichmentWorker instance
func NewEnrichmentWorker(repo EnrichmentRepository, enricher Enricher) *EnrichmentWorker {
	return &EnrichmentWorker{
		repo:     repo,
		enricher: enricher,
	}
}

// Poll implements Poller.
func (w *EnrichmentWorker) Poll(ctx context.Context) error {
	pending, err := w.repo.GetPendingEnrichments(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch pending enrichments: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	log.Printf("enrichment: processing %d pending enrichments", len(pending))

	for _, e := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.process(ctx, e); err != nil {
			log.Printf("enrichment: error processing %s: %v", e.ID, err)
		}
	}

	return nil
}

func (w *EnrichmentWorker) process(ctx context.Context, e *domain.Enrichment) error {
	log.Printf("enrichment: processing %s for %s", e.ID, e.RepoURL)

	outcome, err := w.enricher.Enrich(ctx, e)
	if err != nil {
		return w.handleFailure(ctx, e, err)
	}

	if err := w.repo.CompleteEnrichment(ctx, e.ID, *outcome); err != nil {
		return fmt.Errorf("failed to complete enrichment: %w", err)
	}

	metrics.EnrichmentsProcessed.WithLabelValues(string(domain.EnrichmentStatusCompleted)).Inc()
	log.Printf("enrichment: %s completed", e.ID)
	return nil
}

// handleFailure handles a failed enrichment with retry logic
func (w *EnrichmentWorker) handleFailure(ctx context.Context, e *domain.Enrichment, cause error) error {
	log.Printf("enrichment: %s failed: %v", e.ID, cause)

	if err := w.repo.IncrementRetries(ctx, e.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if e.Retries+1 >= MaxRetries {
		log.Printf("enrichment: %s exceeded max retries (%d), marking as failed", e.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", cause)
		if err := w.repo.UpdateEnrichmentStatus(ctx, e.ID, domain.EnrichmentStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update enrichment status to failed: %w", err)
		}
		metrics.EnrichmentsProcessed.WithLabelValues(string(domain.EnrichmentStatusFailed)).Inc()
		return nil
	}

	log.Printf("enrichment: %s will be retried (attempt %d/%d)", e.ID, e.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", e.Retries+1, cause)
	if err := w.repo.UpdateEnrichmentStatus(ctx, e.ID, domain.EnrichmentStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset enrichment status to pending: %w", err)
	}

	return nil
}
