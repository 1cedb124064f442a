package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockResumableRequestFinder struct {
	mock.Mock
}

func (m *MockResumableRequestFinder) ListResumable(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockContinueDispatcher struct {
	mock.Mock
}

func (m *MockContinueDispatcher) DispatchContinue(requestID string) {
	m.Called(requestID)
}

func TestResumeWorker_DispatchesEachRequest(t *testing.T) {
	finder := new(MockResumableRequestFinder)
	dispatcher := new(MockContinueDispatcher)

	finder.On("ListResumable", mock.Anything, 50).Return([]string{"req-1", "req-2"}, nil)
	dispatcher.On("DispatchContinue", "req-1").Return()
	dispatcher.On("DispatchContinue", "req-2").Return()

	err := NewResumeWorker(finder, dispatcher).Poll(context.Background())

	assert.NoError(t, err)
	dispatcher.AssertExpectations(t)
}

func TestResumeWorker_FinderError(t *testing.T) {
	finder := new(MockResumableRequestFinder)
	dispatcher := new(MockContinueDispatcher)

	finder.On("ListResumable", mock.Anything, 50).Return(nil, errors.New("db down"))

	err := NewResumeWorker(finder, dispatcher).Poll(context.Background())

	assert.ErrorContains(t, err, "failed to list resumable requests")
	dispatcher.AssertNotCalled(t, "DispatchContinue", mock.Anything)
}
