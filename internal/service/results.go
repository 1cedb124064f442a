package service

import (
	"context"

	"github.com/cloo-solutions/reposcout/internal/domain"
)

// AnalysisResultRepositoryInterface defines persistence for analysis results
type AnalysisResultRepositoryInterface interface {
	InsertAnalyzing(ctx context.Context, res *domain.RepoAnalysisResult) (bool, error)
	Complete(ctx context.Context, res *domain.RepoAnalysisResult) error
	MarkError(ctx context.Context, id, message string) error
	GetByID(ctx context.Context, id string) (*domain.RepoAnalysisResult, error)
	ListByRequest(ctx context.Context, requestID string) ([]*domain.RepoAnalysisResult, error)
	ListJudged(ctx context.Context, requestID string) ([]*domain.RepoAnalysisResult, error)
	SetJudgeVerdict(ctx context.Context, id string, verdict domain.JudgeVerdict, reasoning string) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	SearchByEmbedding(ctx context.Context, requestID string, embedding []float32, limit int) ([]*ScoredResult, error)
}

// ScoredResult is a result ranked by similarity to a chat question.
type ScoredResult struct {
	Result *domain.RepoAnalysisResult
	Score  float64
}

// ResultsService reads analysis results.
type ResultsService struct {
	requests SearchRequestRepositoryInterface
	results  AnalysisResultRepositoryInterface
}

func NewResultsService(requests SearchRequestRepositoryInterface, results AnalysisResultRepositoryInterface) *ResultsService {
	return &ResultsService{requests: requests, results: results}
}

// List returns the judge-approved shortlist once the request has completed
// and every result row otherwise, or whenever all is set.
func (s *ResultsService) List(ctx context.Context, requestID string, all bool) ([]*domain.RepoAnalysisResult, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !all && req.Status == domain.RequestStatusCompleted {
		return s.results.ListJudged(ctx, requestID)
	}
	return s.results.ListByRequest(ctx, requestID)
}
