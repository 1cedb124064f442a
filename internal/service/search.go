package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/pagination"
	"github.com/cloo-solutions/reposcout/internal/telemetry"
	"github.com/google/uuid"
)

// SearchRequestRepositoryInterface defines persistence for search requests
type SearchRequestRepositoryInterface interface {
	Create(ctx context.Context, req *domain.SearchRequest) error
	GetByID(ctx context.Context, id string) (*domain.SearchRequest, error)
	ListWithCursor(ctx context.Context, status domain.RequestStatus, cursor *pagination.Cursor, limit int) (*RequestPageResult, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) error
	ClaimContinue(ctx context.Context, id string) (*domain.SearchRequest, error)
	MarkFailed(ctx context.Context, id string, message string) error
	ListResumable(ctx context.Context, limit int) ([]string, error)
}

type RequestPageResult struct {
	Items      []*domain.SearchRequest
	NextCursor string
	HasMore    bool
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// StartDispatcher schedules the sampling run of a new request.
type StartDispatcher interface {
	DispatchStart(requestID string)
}

// SearchService accepts search submissions and reads them back.
type SearchService struct {
	requests   SearchRequestRepositoryInterface
	configs    ConfigurationRepositoryInterface
	dispatcher StartDispatcher
	uuidGen    UUIDGenerator
}

func NewSearchService(requests SearchRequestRepositoryInterface, configs ConfigurationRepositoryInterface, dispatcher StartDispatcher) *SearchService {
	return NewSearchServiceWithUUIDGen(requests, configs, dispatcher, &DefaultUUIDGenerator{})
}

func NewSearchServiceWithUUIDGen(requests SearchRequestRepositoryInterface, configs ConfigurationRepositoryInterface, dispatcher StartDispatcher, uuidGen UUIDGenerator) *SearchService {
	return &SearchService{
		requests:   requests,
		configs:    configs,
		dispatcher: dispatcher,
		uuidGen:    uuidGen,
	}
}

// SubmitInput is a new search submission.
type SubmitInput struct {
	Query           string
	Config          domain.SearchRequestConfig
	ConfigurationID string
}

// Submit persists a pending request and dispatches sampling. A configuration
// id pins the request's analysis count to that configuration.
func (s *SearchService) Submit(ctx context.Context, input SubmitInput) (*domain.SearchRequest, error) {
	ctx, span := telemetry.StartOperation(ctx, "search.submit")
	defer span.End()

	if strings.TrimSpace(input.Query) == "" {
		return nil, domain.ErrEmptyQuery
	}

	cfg := input.Config
	if input.ConfigurationID != "" {
		cfg.ConfigurationID = input.ConfigurationID
	}
	if cfg.ConfigurationID != "" && cfg.TargetAnalysisCount == 0 {
		c, err := s.configs.GetByID(ctx, cfg.ConfigurationID)
		if err != nil {
			return nil, err
		}
		cfg.TargetAnalysisCount = c.TargetAnalysisCount
	}

	req := domain.NewSearchRequest(s.uuidGen.NewString(), input.Query, cfg, time.Now().UTC())
	if err := domain.ValidateSearchRequest(req); err != nil {
		return nil, err
	}
	if err := s.requests.Create(ctx, req); err != nil {
		span.Fail(err)
		return nil, fmt.Errorf("create search request: %w", err)
	}

	span.Tag("request_id", req.ID)
	s.dispatcher.DispatchStart(req.ID)
	return req, nil
}

func (s *SearchService) Get(ctx context.Context, id string) (*domain.SearchRequest, error) {
	return s.requests.GetByID(ctx, id)
}

type ListRequestsOutput struct {
	Items   []*domain.SearchRequest
	Cursor  string
	HasMore bool
}

// ListRequestsInput filters and pages the request listing. Status is
// empty for every request.
type ListRequestsInput struct {
	Status string
	Cursor string
	Limit  int
}

// List pages through requests newest first.
func (s *SearchService) List(ctx context.Context, input ListRequestsInput) (*ListRequestsOutput, error) {
	var status domain.RequestStatus
	if input.Status != "" {
		parsed, err := domain.ParseRequestStatus(input.Status)
		if err != nil {
			return nil, err
		}
		status = parsed
	}
	decoded, err := pagination.DecodeCursor(input.Cursor, string(status))
	if err != nil {
		return nil, domain.ErrInvalidCursor.WithCause(err)
	}

	page, err := s.requests.ListWithCursor(ctx, status, decoded, pagination.ClampLimit(input.Limit))
	if err != nil {
		return nil, err
	}
	return &ListRequestsOutput{Items: page.Items, Cursor: page.NextCursor, HasMore: page.HasMore}, nil
}
