package handlers

import (
	"context"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/service"
	"github.com/stretchr/testify/mock"
)

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Submit(ctx context.Context, input service.SubmitInput) (*domain.SearchRequest, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchRequest), args.Error(1)
}

func (m *MockSearchService) Get(ctx context.Context, id string) (*domain.SearchRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchRequest), args.Error(1)
}

func (m *MockSearchService) List(ctx context.Context, input service.ListRequestsInput) (*service.ListRequestsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListRequestsOutput), args.Error(1)
}

type MockReviewService struct {
	mock.Mock
}

func (m *MockReviewService) ListPending(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.HitlReviewItem), args.Error(1)
}

func (m *MockReviewService) SubmitReview(ctx context.Context, reviewID, verdict, rationale string) (*service.ReviewResult, error) {
	args := m.Called(ctx, reviewID, verdict, rationale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ReviewResult), args.Error(1)
}

type MockResultsService struct {
	mock.Mock
}

func (m *MockResultsService) List(ctx context.Context, requestID string, all bool) ([]*domain.RepoAnalysisResult, error) {
	args := m.Called(ctx, requestID, all)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RepoAnalysisResult), args.Error(1)
}

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) DownloadURL(ctx context.Context, requestID string) (string, error) {
	args := m.Called(ctx, requestID)
	return args.String(0), args.Error(1)
}

type MockEnrichmentService struct {
	mock.Mock
}

func (m *MockEnrichmentService) List(ctx context.Context, requestID string) ([]*domain.Enrichment, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Enrichment), args.Error(1)
}

type MockConfigurationService struct {
	mock.Mock
}

func (m *MockConfigurationService) Create(ctx context.Context, input service.ConfigurationInput) (*domain.SearchConfiguration, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchConfiguration), args.Error(1)
}

func (m *MockConfigurationService) Get(ctx context.Context, id string) (*domain.SearchConfiguration, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchConfiguration), args.Error(1)
}

func (m *MockConfigurationService) List(ctx context.Context) ([]*domain.SearchConfiguration, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchConfiguration), args.Error(1)
}

func (m *MockConfigurationService) Update(ctx context.Context, id string, input service.ConfigurationInput) (*domain.SearchConfiguration, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchConfiguration), args.Error(1)
}

func (m *MockConfigurationService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Ask(ctx context.Context, requestID, question string) (string, error) {
	args := m.Called(ctx, requestID, question)
	return args.String(0), args.Error(1)
}
