//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitVector(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

func TestAnalysisResultRepository_InsertAnalyzingIsUnique(t *testing.T) {
	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)
	req := createRequest(ctx, t, NewSearchRequestRepository(pool), domain.RequestStatusDelegation)
	repo := NewAnalysisResultRepository(pool)

	first := domain.NewAnalyzingResult(uuid.NewString(), req.ID, "https://github.com/a/one", "analyst-1", testNow())
	inserted, err := repo.InsertAnalyzing(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := domain.NewAnalyzingResult(uuid.NewString(), req.ID, "https://github.com/a/one", "analyst-2", testNow())
	inserted, err = repo.InsertAnalyzing(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := repo.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "analyst-1", all[0].AnalystKey)
	assert.Equal(t, domain.AnalysisStatusAnalyzing, all[0].Status)
}

func TestAnalysisResultRepository_CompleteAndError(t *testing.T) {
	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)
	req := createRequest(ctx, t, NewSearchRequestRepository(pool), domain.RequestStatusDelegation)
	repo := NewAnalysisResultRepository(pool)

	done := createCompleteResult(ctx, t, repo, req.ID, "https://github.com/a/one", 80)

	got, err := repo.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisStatusComplete, got.Status)
	assert.Equal(t, 80, got.Ranking)
	assert.Equal(t, []string{"fast"}, got.Pros)
	assert.Equal(t, []string{}, got.Cons)
	assert.True(t, got.ManifestFound)

	assert.ErrorIs(t, repo.Complete(ctx, done), domain.ErrAnalysisNotFound, "only analyzing rows complete")

	failing := domain.NewAnalyzingResult(uuid.NewString(), req.ID, "https://github.com/b/two", "analyst-2", testNow())
	_, err = repo.InsertAnalyzing(ctx, failing)
	require.NoError(t, err)
	require.NoError(t, repo.MarkError(ctx, failing.ID, "timeout"))

	got, err = repo.GetByID(ctx, failing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisStatusError, got.Status)
	assert.Equal(t, "timeout", got.Error)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrAnalysisNotFound)
}

func TestAnalysisResultRepository_ListJudged(t *testing.T) {
	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)
	req := createRequest(ctx, t, NewSearchRequestRepository(pool), domain.RequestStatusSynthesis)
	repo := NewAnalysisResultRepository(pool)

	low := createCompleteResult(ctx, t, repo, req.ID, "https://github.com/a/low", 40)
	high := createCompleteResult(ctx, t, repo, req.ID, "https://github.com/a/high", 90)
	rejected := createCompleteResult(ctx, t, repo, req.ID, "https://github.com/a/rejected", 95)

	require.NoError(t, repo.SetJudgeVerdict(ctx, low.ID, domain.JudgeVerdictApproved, ""))
	require.NoError(t, repo.SetJudgeVerdict(ctx, high.ID, domain.JudgeVerdictApproved, "solid"))
	require.NoError(t, repo.SetJudgeVerdict(ctx, rejected.ID, domain.JudgeVerdictRejected, "off topic"))

	judged, err := repo.ListJudged(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, judged, 2)
	assert.Equal(t, high.ID, judged[0].ID)
	assert.Equal(t, "solid", judged[0].JudgeReasoning)
	assert.Equal(t, low.ID, judged[1].ID)

	assert.ErrorIs(t, repo.SetJudgeVerdict(ctx, uuid.NewString(), domain.JudgeVerdictApproved, ""), domain.ErrAnalysisNotFound)
}

func TestAnalysisResultRepository_SearchByEmbedding(t *testing.T) {
	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)
	req := createRequest(ctx, t, NewSearchRequestRepository(pool), domain.RequestStatusCompleted)
	repo := NewAnalysisResultRepository(pool)

	near := createCompleteResult(ctx, t, repo, req.ID, "https://github.com/a/near", 70)
	far := createCompleteResult(ctx, t, repo, req.ID, "https://github.com/a/far", 70)
	createCompleteResult(ctx, t, repo, req.ID, "https://github.com/a/unembedded", 70)

	require.NoError(t, repo.UpdateEmbedding(ctx, near.ID, unitVector(0)))
	require.NoError(t, repo.UpdateEmbedding(ctx, far.ID, unitVector(1)))

	scored, err := repo.SearchByEmbedding(ctx, req.ID, unitVector(0), 5)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, near.ID, scored[0].Result.ID)
	assert.InDelta(t, 1.0, scored[0].Score, 0.001)
	assert.Greater(t, scored[0].Score, scored[1].Score)

	other := createRequest(ctx, t, NewSearchRequestRepository(pool), domain.RequestStatusCompleted)
	scored, err = repo.SearchByEmbedding(ctx, other.ID, unitVector(0), 5)
	require.NoError(t, err)
	assert.Empty(t, scored)
}
