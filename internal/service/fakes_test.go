package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/reposcout/internal/agent"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/openai"
	"github.com/cloo-solutions/reposcout/internal/pagination"
)

// memStore is an in-memory store whose conditional updates mirror the SQL
// ones, so engine tests exercise the same guards.
type memStore struct {
	mu          sync.Mutex
	requests    map[string]*domain.SearchRequest
	items       []*domain.HitlReviewItem
	results     []*domain.RepoAnalysisResult
	configs     map[string]*domain.SearchConfiguration
	enrichments []*domain.Enrichment
}

func newMemStore() *memStore {
	return &memStore{
		requests: make(map[string]*domain.SearchRequest),
		configs:  make(map[string]*domain.SearchConfiguration),
	}
}

func (s *memStore) Requests() SearchRequestRepositoryInterface       { return memRequests{s} }
func (s *memStore) ReviewItems() ReviewItemRepositoryInterface       { return memItems{s} }
func (s *memStore) Results() AnalysisResultRepositoryInterface       { return memResults{s} }
func (s *memStore) Configurations() ConfigurationRepositoryInterface { return memConfigs{s} }
func (s *memStore) Enrichments() EnrichmentRepositoryInterface       { return memEnrichments{s} }

func (s *memStore) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	return fn(s)
}

func (s *memStore) status(id string) domain.RequestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id].Status
}

func (s *memStore) request(id string) domain.SearchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.requests[id]
}

func (s *memStore) enrichmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enrichments)
}

func (s *memStore) itemCount(requestID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if it.RequestID == requestID {
			n++
		}
	}
	return n
}

type memRequests struct{ s *memStore }

func (r memRequests) Create(ctx context.Context, req *domain.SearchRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *req
	r.s.requests[req.ID] = &cp
	return nil
}

func (r memRequests) GetByID(ctx context.Context, id string) (*domain.SearchRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (r memRequests) ListWithCursor(ctx context.Context, status domain.RequestStatus, cursor *pagination.Cursor, limit int) (*RequestPageResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []*domain.SearchRequest
	for _, req := range r.s.requests {
		if status != "" && req.Status != status {
			continue
		}
		cp := *req
		items = append(items, &cp)
	}
	return &RequestPageResult{Items: items}, nil
}

func (r memRequests) TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	if !from.CanTransitionTo(to) || req.Status != from {
		return domain.ErrInvalidTransition
	}
	req.Status = to
	return nil
}

func (r memRequests) ClaimContinue(ctx context.Context, id string) (*domain.SearchRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	if req.Status != domain.RequestStatusHITL {
		return nil, domain.ErrInvalidTransition
	}
	for _, it := range r.s.items {
		if it.RequestID == id && it.Status == domain.ReviewStatusPending {
			return nil, domain.ErrContinueNotReady
		}
	}
	req.Status = domain.RequestStatusExpansion
	cp := *req
	return &cp, nil
}

func (r memRequests) MarkFailed(ctx context.Context, id string, message string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return domain.ErrRequestNotFound
	}
	if req.Status.IsTerminal() {
		return domain.ErrInvalidTransition
	}
	req.Status = domain.RequestStatusError
	req.FailureMessage = message
	return nil
}

func (r memRequests) ListResumable(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

type memItems struct{ s *memStore }

func (r memItems) CreateBatch(ctx context.Context, items []*domain.HitlReviewItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range items {
		cp := *it
		r.s.items = append(r.s.items, &cp)
	}
	return nil
}

func (r memItems) GetByID(ctx context.Context, id string) (*domain.HitlReviewItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.items {
		if it.ID == id {
			cp := *it
			return &cp, nil
		}
	}
	return nil, domain.ErrReviewItemNotFound
}

func (r memItems) ListByRequest(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error) {
	return r.filter(requestID, false), nil
}

func (r memItems) ListPendingByRequest(ctx context.Context, requestID string) ([]*domain.HitlReviewItem, error) {
	return r.filter(requestID, true), nil
}

func (r memItems) filter(requestID string, pendingOnly bool) []*domain.HitlReviewItem {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.HitlReviewItem, 0)
	for _, it := range r.s.items {
		if it.RequestID != requestID || (pendingOnly && it.Status != domain.ReviewStatusPending) {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	return out
}

func (r memItems) SubmitVerdict(ctx context.Context, id string, verdict domain.Verdict, rationale string) (*domain.HitlReviewItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, it := range r.s.items {
		if it.ID != id {
			continue
		}
		if it.Status != domain.ReviewStatusPending {
			return nil, domain.ErrReviewAlreadySubmitted
		}
		now := time.Now().UTC()
		it.Verdict = verdict
		it.Rationale = rationale
		it.Status = domain.ReviewStatusReviewed
		it.ReviewedAt = &now
		cp := *it
		return &cp, nil
	}
	return nil, domain.ErrReviewItemNotFound
}

func (r memItems) CountPending(ctx context.Context, requestID string) (int, error) {
	return len(r.filter(requestID, true)), nil
}

type memResults struct{ s *memStore }

func (r memResults) InsertAnalyzing(ctx context.Context, res *domain.RepoAnalysisResult) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.results {
		if existing.RequestID == res.RequestID && existing.RepoURL == res.RepoURL {
			return false, nil
		}
	}
	cp := *res
	r.s.results = append(r.s.results, &cp)
	return true, nil
}

func (r memResults) find(id string) *domain.RepoAnalysisResult {
	for _, res := range r.s.results {
		if res.ID == id {
			return res
		}
	}
	return nil
}

func (r memResults) Complete(ctx context.Context, res *domain.RepoAnalysisResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing := r.find(res.ID)
	if existing == nil || existing.Status != domain.AnalysisStatusAnalyzing {
		return domain.ErrAnalysisNotFound
	}
	cp := *res
	cp.Status = domain.AnalysisStatusComplete
	*existing = cp
	return nil
}

func (r memResults) MarkError(ctx context.Context, id, message string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing := r.find(id)
	if existing == nil || existing.Status != domain.AnalysisStatusAnalyzing {
		return domain.ErrAnalysisNotFound
	}
	existing.Status = domain.AnalysisStatusError
	existing.Error = message
	return nil
}

func (r memResults) GetByID(ctx context.Context, id string) (*domain.RepoAnalysisResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing := r.find(id)
	if existing == nil {
		return nil, domain.ErrAnalysisNotFound
	}
	cp := *existing
	return &cp, nil
}

func (r memResults) ListByRequest(ctx context.Context, requestID string) ([]*domain.RepoAnalysisResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.RepoAnalysisResult, 0)
	for _, res := range r.s.results {
		if res.RequestID == requestID {
			cp := *res
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memResults) ListJudged(ctx context.Context, requestID string) ([]*domain.RepoAnalysisResult, error) {
	all, _ := r.ListByRequest(ctx, requestID)
	out := make([]*domain.RepoAnalysisResult, 0)
	for _, res := range all {
		if res.JudgeVerdict == domain.JudgeVerdictApproved {
			out = append(out, res)
		}
	}
	return RankComplete(out), nil
}

func (r memResults) SetJudgeVerdict(ctx context.Context, id string, verdict domain.JudgeVerdict, reasoning string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing := r.find(id)
	if existing == nil {
		return domain.ErrAnalysisNotFound
	}
	existing.JudgeVerdict = verdict
	existing.JudgeReasoning = reasoning
	return nil
}

func (r memResults) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	return nil
}

func (r memResults) SearchByEmbedding(ctx context.Context, requestID string, embedding []float32, limit int) ([]*ScoredResult, error) {
	return nil, nil
}

type memConfigs struct{ s *memStore }

func (r memConfigs) Create(ctx context.Context, c *domain.SearchConfiguration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *c
	r.s.configs[c.ID] = &cp
	return nil
}

func (r memConfigs) GetByID(ctx context.Context, id string) (*domain.SearchConfiguration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.configs[id]
	if !ok {
		return nil, domain.ErrConfigurationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memConfigs) GetDefault(ctx context.Context) (*domain.SearchConfiguration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.configs {
		if c.IsDefault {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrConfigurationNotFound
}

func (r memConfigs) List(ctx context.Context) ([]*domain.SearchConfiguration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.SearchConfiguration, 0, len(r.s.configs))
	for _, c := range r.s.configs {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r memConfigs) Update(ctx context.Context, c *domain.SearchConfiguration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.configs[c.ID]
	if !ok {
		return domain.ErrConfigurationNotFound
	}
	c.Version = existing.Version + 1
	cp := *c
	r.s.configs[c.ID] = &cp
	return nil
}

func (r memConfigs) ClearDefault(ctx context.Context, keepID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, c := range r.s.configs {
		if id != keepID {
			c.IsDefault = false
		}
	}
	return nil
}

func (r memConfigs) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.configs, id)
	return nil
}

type memEnrichments struct{ s *memStore }

func (r memEnrichments) Create(ctx context.Context, e *domain.Enrichment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.enrichments = append(r.s.enrichments, &cp)
	return nil
}

func (r memEnrichments) GetByID(ctx context.Context, id string) (*domain.Enrichment, error) {
	return nil, domain.ErrEnrichmentNotFound
}

func (r memEnrichments) ListByRequest(ctx context.Context, requestID string) ([]*domain.Enrichment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Enrichment, 0)
	for _, e := range r.s.enrichments {
		if e.RequestID == requestID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeSearcher returns n candidates per query, with stars derived from the
// query so different queries overlap on some URLs.
type fakeSearcher struct {
	mu      sync.Mutex
	n       int
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]domain.Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Candidate, 0, f.n)
	for i := 0; i < f.n; i++ {
		name := fmt.Sprintf("repo%02d", i)
		out = append(out, domain.Candidate{
			URL:      "https://github.com/acme/" + name,
			FullName: "acme/" + name,
			Stars:    1000 - i*10,
			Language: "TypeScript",
		})
	}
	return out, nil
}

func (f *fakeSearcher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

var repoLine = regexp.MustCompile(`Repository: acme/repo(\d+)`)

// fakeGenerator answers by schema name and records prompts.
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeGenerator) GenerateStructured(ctx context.Context, req openai.StructuredRequest, out any) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	var payload any
	switch req.Schema.Name() {
	case "search_queries":
		payload = map[string]any{"queries": []string{"edge auth", "workers jwt"}}
	case "repo_analysis":
		ranking := 50
		if m := repoLine.FindStringSubmatch(req.Prompt); m != nil {
			n, _ := strconv.Atoi(m[1])
			ranking = 95 - n*3
		}
		payload = map[string]any{
			"ranking": ranking, "summary": "fits", "pros": []string{"small"},
			"cons": []string{}, "tech_stack": []string{"TypeScript"},
		}
	default:
		return fmt.Errorf("unexpected schema %s", req.Schema.Name())
	}
	raw, _ := json.Marshal(payload)
	return json.Unmarshal(raw, out)
}

func (f *fakeGenerator) sawPrompt(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.prompts {
		if strings.Contains(p, substr) {
			return true
		}
	}
	return false
}

type fakeHost struct{}

func (fakeHost) GetRepoMetadata(ctx context.Context, owner, repo string) (*domain.RepoMetadata, error) {
	return &domain.RepoMetadata{FullName: owner + "/" + repo, URL: "https://github.com/" + owner + "/" + repo, Stars: 100}, nil
}

func (fakeHost) ReadFile(ctx context.Context, owner, repo, path string) (string, error) {
	if path == "README.md" {
		return "# " + repo, nil
	}
	return "", domain.ErrFileNotFound
}

// fakeJudge rejects the listed ids and approves the rest, or fails with err.
type fakeJudge struct {
	reject map[string]bool
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeJudge) Review(ctx context.Context, requestID, userQuery string, results []*domain.RepoAnalysisResult) (*agent.JudgeVerdict, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	v := &agent.JudgeVerdict{Approvals: make(map[string]string)}
	for _, r := range results {
		if f.reject[r.RepoURL] {
			v.Rejections = append(v.Rejections, agent.Rejection{ID: r.ID, Reasoning: "weak", Instruction: "dig deeper"})
			continue
		}
		v.Approved = append(v.Approved, r)
		v.Approvals[r.ID] = "good"
	}
	return v, nil
}

type seqUUID struct {
	mu sync.Mutex
	n  int
}

func (g *seqUUID) NewString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}
