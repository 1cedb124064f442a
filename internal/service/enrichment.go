package service

import (
	"context"

	"github.com/cloo-solutions/reposcout/internal/domain"
)

// EnrichmentRepositoryInterface defines persistence for enrichments
type EnrichmentRepositoryInterface interface {
	Create(ctx context.Context, e *domain.Enrichment) error
	GetByID(ctx context.Context, id string) (*domain.Enrichment, error)
	ListByRequest(ctx context.Context, requestID string) ([]*domain.Enrichment, error)
}

// EnrichmentService lists the deferred re-analyses of a request.
type EnrichmentService struct {
	requests    SearchRequestRepositoryInterface
	enrichments EnrichmentRepositoryInterface
}

func NewEnrichmentService(requests SearchRequestRepositoryInterface, enrichments EnrichmentRepositoryInterface) *EnrichmentService {
	return &EnrichmentService{requests: requests, enrichments: enrichments}
}

func (s *EnrichmentService) List(ctx context.Context, requestID string) ([]*domain.Enrichment, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.enrichments.ListByRequest(ctx, requestID)
}
