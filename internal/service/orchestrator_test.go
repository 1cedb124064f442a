package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/reposcout/internal/agent"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	store    *memStore
	searcher *fakeSearcher
	gen      *fakeGenerator
	judge    *fakeJudge
	bus      *events.MemoryBus
	engine   *Engine
}

func newEngineFixture(t *testing.T, candidates int) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:    newMemStore(),
		searcher: &fakeSearcher{n: candidates},
		gen:      &fakeGenerator{},
		judge:    &fakeJudge{},
		bus:      events.NewMemoryBus(),
	}
	registry := agent.NewRegistry(agent.Deps{
		Store:   f.store.Results(),
		Host:    fakeHost{},
		Gen:     f.gen,
		Timeout: 5 * time.Second,
	})
	f.engine = NewEngine(EngineDeps{
		Requests: f.store.Requests(),
		Items:    f.store.ReviewItems(),
		Results:  f.store.Results(),
		Configs:  f.store.Configurations(),
		TxRunner: f.store,
		Searcher: f.searcher,
		Gen:      f.gen,
		Registry: registry,
		Judge:    f.judge,
		Bus:      f.bus,
		UUIDGen:  &seqUUID{},
	}, EngineConfig{
		PreviewSize:          5,
		DefaultAnalysisCount: 20,
		Concurrency:          3,
		MonitorInterval:      time.Hour,
		SynthesisTopN:        12,
	})
	return f
}

func (f *engineFixture) seedRequest(t *testing.T, id string, cfg domain.SearchRequestConfig) {
	t.Helper()
	req := domain.NewSearchRequest(id, "auth libraries for CF Workers", cfg, time.Now().UTC())
	require.NoError(t, f.store.Requests().Create(context.Background(), req))
}

func (f *engineFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Shutdown(ctx))
}

// recordingDispatcher forwards continues to the engine and counts them.
type recordingDispatcher struct {
	mu     sync.Mutex
	calls  []string
	engine *Engine
}

func (d *recordingDispatcher) DispatchContinue(requestID string) {
	d.mu.Lock()
	d.calls = append(d.calls, requestID)
	d.mu.Unlock()
	d.engine.DispatchContinue(requestID)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func TestEngine_ReviewScenario(t *testing.T) {
	f := newEngineFixture(t, 20)
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{MinStars: 100, Languages: []string{"typescript"}})
	ctx := context.Background()

	phaseCh, err := f.bus.Subscribe(ctx, "req-1")
	require.NoError(t, err)

	require.NoError(t, f.engine.Start(ctx, "req-1"))
	assert.Equal(t, domain.RequestStatusHITL, f.store.status("req-1"))
	for _, q := range f.searcher.seen() {
		assert.True(t, strings.HasSuffix(q, "stars:>=100 language:typescript"), q)
	}

	dispatcher := &recordingDispatcher{engine: f.engine}
	reviews := NewReviewService(f.store.ReviewItems(), f.store.Requests(), dispatcher)
	pending, err := reviews.ListPending(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, pending, 5)

	verdicts := []string{"approve", "approve", "approve", "reject", "reject"}
	for i, item := range pending {
		res, err := reviews.SubmitReview(ctx, item.ID, verdicts[i], "")
		require.NoError(t, err)
		if i < 4 {
			assert.False(t, res.Continued)
			assert.Equal(t, domain.RequestStatusHITL, f.store.status("req-1"))
			assert.Zero(t, dispatcher.count())
		} else {
			assert.True(t, res.Continued)
		}
	}
	f.drain(t)

	assert.Equal(t, 1, dispatcher.count())
	assert.Equal(t, domain.RequestStatusCompleted, f.store.status("req-1"))

	results, err := NewResultsService(f.store.Requests(), f.store.Results()).List(ctx, "req-1", false)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 12)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Ranking, domain.MinRanking)
		assert.LessOrEqual(t, r.Ranking, domain.MaxRanking)
		assert.Equal(t, domain.JudgeVerdictApproved, r.JudgeVerdict)
	}

	// 20 found, minus the 2 rejected previews
	all, err := NewResultsService(f.store.Requests(), f.store.Results()).List(ctx, "req-1", true)
	require.NoError(t, err)
	assert.Len(t, all, 18)

	var phases []domain.RequestStatus
	for len(phaseCh) > 0 {
		phases = append(phases, (<-phaseCh).Phase)
	}
	assert.Contains(t, phases, domain.RequestStatusExpansion)
	assert.Equal(t, domain.RequestStatusCompleted, phases[len(phases)-1])
}

func TestEngine_ExpansionSkipsRejectedPreviews(t *testing.T) {
	f := newEngineFixture(t, 8)
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx, "req-1"))
	items, _ := f.store.ReviewItems().ListByRequest(ctx, "req-1")
	rejectedURL := ""
	for i, it := range items {
		verdict := domain.VerdictApprove
		if i == 0 {
			verdict = domain.VerdictReject
			c, _ := it.Candidate()
			rejectedURL = c.URL
		}
		_, err := f.store.ReviewItems().SubmitVerdict(ctx, it.ID, verdict, "")
		require.NoError(t, err)
	}

	require.NoError(t, f.engine.Continue(ctx, "req-1"))

	all, _ := f.store.Results().ListByRequest(ctx, "req-1")
	assert.Len(t, all, 7)
	for _, r := range all {
		assert.NotEqual(t, rejectedURL, r.RepoURL)
	}
	assert.True(t, f.gen.sawPrompt("They approved these repositories"))
}

func TestEngine_StartTwiceRejected(t *testing.T) {
	f := newEngineFixture(t, 3)
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})

	require.NoError(t, f.engine.Start(context.Background(), "req-1"))
	err := f.engine.Start(context.Background(), "req-1")

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 3, f.store.itemCount("req-1"))
}

func TestEngine_ContinueRejectedWhilePending(t *testing.T) {
	f := newEngineFixture(t, 3)
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})
	require.NoError(t, f.engine.Start(context.Background(), "req-1"))

	err := f.engine.Continue(context.Background(), "req-1")

	assert.ErrorIs(t, err, domain.ErrContinueNotReady)
	assert.Equal(t, domain.RequestStatusHITL, f.store.status("req-1"))
}

func TestEngine_DuplicateContinueRunsOnce(t *testing.T) {
	f := newEngineFixture(t, 4)
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, "req-1"))
	items, _ := f.store.ReviewItems().ListByRequest(ctx, "req-1")
	for _, it := range items {
		_, err := f.store.ReviewItems().SubmitVerdict(ctx, it.ID, domain.VerdictApprove, "")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.engine.Continue(ctx, "req-1")
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInvalidTransition):
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, f.judge.calls)
	assert.Equal(t, domain.RequestStatusCompleted, f.store.status("req-1"))

	assert.ErrorIs(t, f.engine.Continue(ctx, "req-1"), domain.ErrInvalidTransition)
}

func TestEngine_ZeroCandidatesContinuesImmediately(t *testing.T) {
	f := newEngineFixture(t, 0)
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})

	require.NoError(t, f.engine.Start(context.Background(), "req-1"))
	f.drain(t)

	assert.Zero(t, f.store.itemCount("req-1"))
	assert.Equal(t, domain.RequestStatusCompleted, f.store.status("req-1"))
}

func TestEngine_ResumesWithoutResampling(t *testing.T) {
	f := newEngineFixture(t, 6)
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{TargetAnalysisCount: 4})
	ctx := context.Background()

	// state as left by a process that stopped after the review
	require.NoError(t, f.store.Requests().TransitionStatus(ctx, "req-1", domain.RequestStatusPending, domain.RequestStatusSampling))
	require.NoError(t, f.store.Requests().TransitionStatus(ctx, "req-1", domain.RequestStatusSampling, domain.RequestStatusHITL))
	item, err := domain.NewHitlReviewItem("item-1", "req-1", domain.Candidate{URL: "https://github.com/acme/repo01", FullName: "acme/repo01", Stars: 990}, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.ReviewItems().CreateBatch(ctx, []*domain.HitlReviewItem{item}))
	_, err = f.store.ReviewItems().SubmitVerdict(ctx, "item-1", domain.VerdictApprove, "")
	require.NoError(t, err)

	require.NoError(t, f.engine.Continue(ctx, "req-1"))

	assert.Equal(t, domain.RequestStatusCompleted, f.store.status("req-1"))
	assert.Equal(t, 1, f.store.itemCount("req-1"))
	assert.False(t, f.gen.sawPrompt("diverse search queries"))
	all, _ := f.store.Results().ListByRequest(ctx, "req-1")
	assert.Len(t, all, 4)
}

func TestEngine_TargetCountFallsBackToDefaultConfiguration(t *testing.T) {
	f := newEngineFixture(t, 10)
	ctx := context.Background()
	require.NoError(t, f.store.Configurations().Create(ctx, domain.NewSearchConfiguration("cfg-1", "small", 3, true, time.Now())))
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})
	require.NoError(t, f.engine.Start(ctx, "req-1"))
	items, _ := f.store.ReviewItems().ListByRequest(ctx, "req-1")
	for _, it := range items {
		_, _ = f.store.ReviewItems().SubmitVerdict(ctx, it.ID, domain.VerdictReject, "")
	}

	require.NoError(t, f.engine.Continue(ctx, "req-1"))

	all, _ := f.store.Results().ListByRequest(ctx, "req-1")
	assert.Len(t, all, 3)
}

func TestEngine_JudgeRejectionsBecomeEnrichments(t *testing.T) {
	f := newEngineFixture(t, 5)
	f.judge.reject = map[string]bool{"https://github.com/acme/repo00": true}
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, "req-1"))
	items, _ := f.store.ReviewItems().ListByRequest(ctx, "req-1")
	for _, it := range items {
		_, _ = f.store.ReviewItems().SubmitVerdict(ctx, it.ID, domain.VerdictApprove, "")
	}

	require.NoError(t, f.engine.Continue(ctx, "req-1"))

	enrichments, _ := f.store.Enrichments().ListByRequest(ctx, "req-1")
	require.Len(t, enrichments, 1)
	assert.Equal(t, "https://github.com/acme/repo00", enrichments[0].RepoURL)
	assert.Equal(t, "dig deeper", enrichments[0].Instruction)
	assert.Equal(t, domain.EnrichmentStatusPending, enrichments[0].Status)

	judged, _ := f.store.Results().ListJudged(ctx, "req-1")
	assert.Len(t, judged, 4)
	rejected, _ := f.store.Results().GetByID(ctx, enrichments[0].ResultID)
	assert.Equal(t, domain.JudgeVerdictRejected, rejected.JudgeVerdict)
	assert.Equal(t, "fits", rejected.Summary)
}

func TestEngine_JudgeFailureApprovesAll(t *testing.T) {
	f := newEngineFixture(t, 4)
	f.judge.err = errors.New("model unavailable")
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})
	ctx := context.Background()
	require.NoError(t, f.engine.Start(ctx, "req-1"))
	items, _ := f.store.ReviewItems().ListByRequest(ctx, "req-1")
	for _, it := range items {
		_, _ = f.store.ReviewItems().SubmitVerdict(ctx, it.ID, domain.VerdictApprove, "")
	}

	require.NoError(t, f.engine.Continue(ctx, "req-1"))

	assert.Equal(t, domain.RequestStatusCompleted, f.store.status("req-1"))
	judged, _ := f.store.Results().ListJudged(ctx, "req-1")
	assert.Len(t, judged, 4)
	assert.Zero(t, f.store.enrichmentCount())
}

func TestEngine_SamplingFailureMarksError(t *testing.T) {
	f := newEngineFixture(t, 3)
	f.searcher.err = errors.New("github unavailable")
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})

	err := f.engine.Start(context.Background(), "req-1")

	require.Error(t, err)
	req := f.store.request("req-1")
	assert.Equal(t, domain.RequestStatusError, req.Status)
	assert.Contains(t, req.FailureMessage, "github unavailable")
	assert.Zero(t, f.store.itemCount("req-1"))
}

func TestEngine_DispatchAfterShutdownDropped(t *testing.T) {
	f := newEngineFixture(t, 3)
	f.seedRequest(t, "req-1", domain.SearchRequestConfig{})
	f.drain(t)

	f.engine.DispatchStart("req-1")

	assert.Equal(t, domain.RequestStatusPending, f.store.status("req-1"))
}

func TestRankComplete(t *testing.T) {
	in := []*domain.RepoAnalysisResult{
		{ID: "a", RepoURL: "https://x/b", Status: domain.AnalysisStatusComplete, Ranking: 70, Stars: 5},
		{ID: "b", RepoURL: "https://x/a", Status: domain.AnalysisStatusComplete, Ranking: 70, Stars: 5},
		{ID: "c", RepoURL: "https://x/c", Status: domain.AnalysisStatusComplete, Ranking: 70, Stars: 9},
		{ID: "d", RepoURL: "https://x/d", Status: domain.AnalysisStatusComplete, Ranking: 90},
		{ID: "e", RepoURL: "https://x/e", Status: domain.AnalysisStatusError},
	}

	out := RankComplete(in)

	ids := make([]string, 0, len(out))
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids)
}

func TestWithOriginal(t *testing.T) {
	got := withOriginal("auth libs", []string{"Auth Libs", "", "edge auth", "jwt", "extra"})
	assert.Equal(t, []string{"auth libs", "edge auth", "jwt"}, got)
}
