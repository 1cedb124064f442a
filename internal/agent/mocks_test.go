package agent

import (
	"context"
	"encoding/json"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/openai"
	"github.com/stretchr/testify/mock"
)

type MockResultStore struct {
	mock.Mock
}

func (m *MockResultStore) InsertAnalyzing(ctx context.Context, res *domain.RepoAnalysisResult) (bool, error) {
	args := m.Called(ctx, res)
	return args.Bool(0), args.Error(1)
}

func (m *MockResultStore) Complete(ctx context.Context, res *domain.RepoAnalysisResult) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockResultStore) MarkError(ctx context.Context, id, msg string) error {
	args := m.Called(ctx, id, msg)
	return args.Error(0)
}

func (m *MockResultStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	args := m.Called(ctx, id, embedding)
	return args.Error(0)
}

func (m *MockResultStore) GetByID(ctx context.Context, id string) (*domain.RepoAnalysisResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RepoAnalysisResult), args.Error(1)
}

func (m *MockResultStore) ListByRequest(ctx context.Context, requestID string) ([]*domain.RepoAnalysisResult, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RepoAnalysisResult), args.Error(1)
}

type MockCodeHost struct {
	mock.Mock
}

func (m *MockCodeHost) GetRepoMetadata(ctx context.Context, owner, repo string) (*domain.RepoMetadata, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RepoMetadata), args.Error(1)
}

func (m *MockCodeHost) ReadFile(ctx context.Context, owner, repo, path string) (string, error) {
	args := m.Called(ctx, owner, repo, path)
	return args.String(0), args.Error(1)
}

// MockGenerator decodes the first return value, a JSON string, into out.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateStructured(ctx context.Context, req openai.StructuredRequest, out any) error {
	args := m.Called(ctx, req)
	if raw, ok := args.Get(0).(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return err
		}
	}
	return args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockQueryLookup struct {
	mock.Mock
}

func (m *MockQueryLookup) GetByID(ctx context.Context, id string) (*domain.SearchRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SearchRequest), args.Error(1)
}

func testMetadata() *domain.RepoMetadata {
	return &domain.RepoMetadata{
		FullName: "acme/widget",
		URL:      "https://github.com/acme/widget",
		Stars:    420,
		Language: "Go",
	}
}

const validAnalysis = `{"ranking": 72, "summary": "A widget toolkit", "pros": ["fast"], "cons": ["young"], "tech_stack": ["Go"]}`
