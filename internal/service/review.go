package service

import (
	"context"
	"log"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/telemetry"
)

// ReviewItemRepositoryInterface defines persistence for HITL review items
type ReviewItemRepositoryInterface interface {
	CreateBatch(ctx context.Context, items []*domain.HitlReviewItem) error
	GetByID(ctx context.Context, id string) (*domain.HitlReviewItem, error)
	ListByRequest(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error)
	ListPendingByRequest(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error)
	SubmitVerdict(ctx context.Context, id string, verdict domain.Verdict, rationale string) (*domain.HitlReviewItem, error)
	CountPending(ctx context.Context, requestID string) (int, error)
}

// ContinueDispatcher schedules the resumption of a request.
type ContinueDispatcher interface {
	DispatchContinue(requestID string)
}

// ReviewService records human verdicts on preview candidates.
type ReviewService struct {
	items      ReviewItemRepositoryInterface
	requests   SearchRequestRepositoryInterface
	dispatcher ContinueDispatcher
}

func NewReviewService(items ReviewItemRepositoryInterface, requests SearchRequestRepositoryInterface, dispatcher ContinueDispatcher) *ReviewService {
	return &ReviewService{items: items, requests: requests, dispatcher: dispatcher}
}

// ListPending returns the items still awaiting a verdict.
func (s *ReviewService) ListPending(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.items.ListPendingByRequest(ctx, requestID)
}

// ReviewResult reports the stored item and whether it completed the review.
type ReviewResult struct {
	Item      *domain.HitlReviewItem
	Continued bool
}

// SubmitReview stores a verdict. When it was the last pending item the
// request is dispatched to continue; the continue claim itself rejects
// duplicates, so concurrent final reviews are safe.
func (s *ReviewService) SubmitReview(ctx context.Context, reviewID, verdict, rationale string) (*ReviewResult, error) {
	v, err := domain.ParseVerdict(verdict)
	if err != nil {
		return nil, err
	}

	item, err := s.items.SubmitVerdict(ctx, reviewID, v, rationale)
	if err != nil {
		return nil, err
	}
	telemetry.ReviewRecorded(ctx, item.ID, string(v))

	pending, err := s.items.CountPending(ctx, item.RequestID)
	if err != nil {
		// The resume worker picks the request up if this read failed.
		log.Printf("review: count pending for %s failed: %v", item.RequestID, err)
		return &ReviewResult{Item: item}, nil
	}
	if pending > 0 {
		return &ReviewResult{Item: item}, nil
	}

	s.dispatcher.DispatchContinue(item.RequestID)
	return &ReviewResult{Item: item, Continued: true}, nil
}
