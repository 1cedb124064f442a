//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func newIntegrationPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	return testutil.StartPostgres(ctx, t).Pool
}

func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func createRequest(ctx context.Context, t *testing.T, repo *SearchRequestRepository, status domain.RequestStatus) *domain.SearchRequest {
	t.Helper()
	req := domain.NewSearchRequest(uuid.NewString(), "embedded key value stores", domain.SearchRequestConfig{
		MinStars:  100,
		Languages: []string{"go"},
	}, testNow())
	req.Status = status
	require.NoError(t, repo.Create(ctx, req))
	return req
}

func createReviewItems(ctx context.Context, t *testing.T, repo *ReviewItemRepository, requestID string, names ...string) []*domain.HitlReviewItem {
	t.Helper()
	items := make([]*domain.HitlReviewItem, 0, len(names))
	for _, name := range names {
		item, err := domain.NewHitlReviewItem(uuid.NewString(), requestID, domain.Candidate{
			URL:      "https://github.com/" + name,
			FullName: name,
			Stars:    500,
		}, testNow())
		require.NoError(t, err)
		items = append(items, item)
	}
	require.NoError(t, repo.CreateBatch(ctx, items))
	return items
}

func createCompleteResult(ctx context.Context, t *testing.T, repo *AnalysisResultRepository, requestID, repoURL string, ranking int) *domain.RepoAnalysisResult {
	t.Helper()
	res := domain.NewAnalyzingResult(uuid.NewString(), requestID, repoURL, "analyst-"+repoURL, testNow())
	inserted, err := repo.InsertAnalyzing(ctx, res)
	require.NoError(t, err)
	require.True(t, inserted)

	res.Ranking = ranking
	res.Summary = "summary of " + repoURL
	res.Pros = []string{"fast"}
	res.TechStack = []string{"go"}
	res.ManifestFound = true
	require.NoError(t, repo.Complete(ctx, res))
	return res
}
