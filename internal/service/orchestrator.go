package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/reposcout/internal/agent"
	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/events"
	"github.com/cloo-solutions/reposcout/internal/metrics"
	"github.com/cloo-solutions/reposcout/internal/openai"
	"github.com/cloo-solutions/reposcout/internal/telemetry"
)

// CodeSearcher finds candidate repositories for a query.
type CodeSearcher interface {
	Search(ctx context.Context, query string) ([]domain.Candidate, error)
}

// StructuredGenerator produces schema-validated structured output.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, req openai.StructuredRequest, out any) error
}

// Reviewer partitions synthesized results.
type Reviewer interface {
	Review(ctx context.Context, requestID, userQuery string, results []*domain.RepoAnalysisResult) (*agent.JudgeVerdict, error)
}

// EngineConfig tunes the orchestration phases.
type EngineConfig struct {
	PreviewSize          int
	DefaultAnalysisCount int
	Concurrency          int
	MonitorInterval      time.Duration
	CorrectionThreshold  int
	SynthesisTopN        int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.PreviewSize <= 0 {
		c.PreviewSize = 5
	}
	if c.DefaultAnalysisCount <= 0 {
		c.DefaultAnalysisCount = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = agent.DefaultMonitorInterval
	}
	if c.CorrectionThreshold <= 0 {
		c.CorrectionThreshold = agent.DefaultCorrectionThreshold
	}
	if c.SynthesisTopN <= 0 {
		c.SynthesisTopN = 12
	}
	return c
}

// EngineDeps are the collaborators of an Engine. Archive and Bus are optional.
type EngineDeps struct {
	Requests SearchRequestRepositoryInterface
	Items    ReviewItemRepositoryInterface
	Results  AnalysisResultRepositoryInterface
	Configs  ConfigurationRepositoryInterface
	TxRunner TxRunner
	Searcher CodeSearcher
	Gen      StructuredGenerator
	Registry *agent.Registry
	Judge    Reviewer
	Archive  ReportArchive
	Bus      events.Bus
	UUIDGen  UUIDGenerator
}

// Engine drives search requests through their phases. Start runs sampling
// and suspends at hitl; Continue runs everything after the human review.
// Phase and review state live in the store, so a restarted process resumes
// with Continue without repeating sampling.
type Engine struct {
	deps EngineDeps
	cfg  EngineConfig

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

func NewEngine(deps EngineDeps, cfg EngineConfig) *Engine {
	if deps.UUIDGen == nil {
		deps.UUIDGen = &DefaultUUIDGenerator{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{deps: deps, cfg: cfg.withDefaults(), baseCtx: ctx, cancel: cancel}
}

// Start claims a pending request and runs sampling. A request that is not
// pending is rejected with ErrInvalidTransition.
func (e *Engine) Start(ctx context.Context, requestID string) error {
	req, err := e.deps.Requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if err := e.advance(ctx, req, domain.RequestStatusPending, domain.RequestStatusSampling); err != nil {
		return err
	}

	if err := e.sample(ctx, req); err != nil {
		e.fail(ctx, req, err)
		return err
	}
	return nil
}

func (e *Engine) sample(ctx context.Context, req *domain.SearchRequest) error {
	ctx, span := telemetry.StartPhase(ctx, req.ID, string(domain.RequestStatusSampling))
	defer span.End()

	queries, err := e.generateQueries(ctx, req.Query, buildSamplingPrompt(req.Query))
	if err != nil {
		return err
	}
	candidates, err := e.searchAll(ctx, req, queries)
	if err != nil {
		return err
	}
	preview := domain.TruncateCandidates(candidates, e.cfg.PreviewSize)

	now := time.Now().UTC()
	items := make([]*domain.HitlReviewItem, 0, len(preview))
	for _, c := range preview {
		item, err := domain.NewHitlReviewItem(e.deps.UUIDGen.NewString(), req.ID, c, now)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	err = e.deps.TxRunner.WithTx(ctx, func(repos TxRepositories) error {
		if len(items) > 0 {
			if err := repos.ReviewItems().CreateBatch(ctx, items); err != nil {
				return fmt.Errorf("persist review items: %w", err)
			}
		}
		return repos.Requests().TransitionStatus(ctx, req.ID, domain.RequestStatusSampling, domain.RequestStatusHITL)
	})
	if err != nil {
		return err
	}
	e.entered(ctx, req, domain.RequestStatusHITL, fmt.Sprintf("%d candidates awaiting review", len(items)))

	if len(items) == 0 {
		log.Printf("engine: request %s has no candidates, continuing", req.ID)
		e.DispatchContinue(req.ID)
	}
	return nil
}

// Continue resumes a request whose review items are all reviewed. The claim
// is a single conditional update, so duplicate calls get ErrContinueNotReady
// or ErrInvalidTransition and change nothing.
func (e *Engine) Continue(ctx context.Context, requestID string) error {
	req, err := e.deps.Requests.ClaimContinue(ctx, requestID)
	if err != nil {
		return err
	}
	e.entered(ctx, req, domain.RequestStatusExpansion, "")

	if err := e.runAfterReview(ctx, req); err != nil {
		e.fail(ctx, req, err)
		return err
	}
	return nil
}

func (e *Engine) runAfterReview(ctx context.Context, req *domain.SearchRequest) error {
	candidates, err := e.expand(ctx, req)
	if err != nil {
		return err
	}

	if err := e.advance(ctx, req, domain.RequestStatusExpansion, domain.RequestStatusDelegation); err != nil {
		return err
	}
	count, err := e.targetCount(ctx, req)
	if err != nil {
		return err
	}
	analysts := e.delegate(req, candidates, count)

	if err := e.advance(ctx, req, domain.RequestStatusDelegation, domain.RequestStatusSupervision); err != nil {
		return err
	}
	e.supervise(ctx, req, analysts)

	if err := e.advance(ctx, req, domain.RequestStatusSupervision, domain.RequestStatusSynthesis); err != nil {
		return err
	}
	synthesized, err := e.synthesize(ctx, req)
	if err != nil {
		return err
	}

	if err := e.advance(ctx, req, domain.RequestStatusSynthesis, domain.RequestStatusHandoff); err != nil {
		return err
	}
	return e.handoff(ctx, req, synthesized)
}

func (e *Engine) expand(ctx context.Context, req *domain.SearchRequest) ([]domain.Candidate, error) {
	ctx, span := telemetry.StartPhase(ctx, req.ID, string(domain.RequestStatusExpansion))
	defer span.End()

	items, err := e.deps.Items.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load review items: %w", err)
	}
	var approved []domain.Candidate
	rejected := make(map[string]bool)
	for _, item := range items {
		c, err := item.Candidate()
		if err != nil {
			return nil, err
		}
		if item.IsApproved() {
			approved = append(approved, c)
		} else {
			rejected[c.URL] = true
		}
	}

	queries := []string{req.Query}
	if len(approved) > 0 {
		queries, err = e.generateQueries(ctx, req.Query, buildExpansionPrompt(req.Query, approved))
		if err != nil {
			return nil, err
		}
	}

	found, err := e.searchAll(ctx, req, queries)
	if err != nil {
		return nil, err
	}
	// approved previews are always analyzed, rejected ones never
	kept := found[:0]
	for _, c := range found {
		if !rejected[c.URL] {
			kept = append(kept, c)
		}
	}
	return domain.MergeCandidates(approved, kept), nil
}

func (e *Engine) targetCount(ctx context.Context, req *domain.SearchRequest) (int, error) {
	if req.Config.TargetAnalysisCount > 0 {
		return req.Config.TargetAnalysisCount, nil
	}
	def, err := e.deps.Configs.GetDefault(ctx)
	if err == nil {
		return def.TargetAnalysisCount, nil
	}
	if errors.Is(err, domain.ErrConfigurationNotFound) {
		return e.cfg.DefaultAnalysisCount, nil
	}
	return 0, fmt.Errorf("load default configuration: %w", err)
}

func (e *Engine) delegate(req *domain.SearchRequest, candidates []domain.Candidate, count int) []*agent.Analyst {
	candidates = domain.TruncateCandidates(candidates, count)
	analysts := make([]*agent.Analyst, 0, len(candidates))
	for _, c := range candidates {
		analysts = append(analysts, e.deps.Registry.GetOrCreate(req.ID, c.URL))
	}
	return analysts
}

// supervise runs the analysts under the limiter while the monitor watches.
// The monitor is stopped before any channel closes.
func (e *Engine) supervise(ctx context.Context, req *domain.SearchRequest, analysts []*agent.Analyst) {
	ctx, span := telemetry.StartPhase(ctx, req.ID, string(domain.RequestStatusSupervision))
	defer span.End()
	defer e.deps.Registry.CloseRequest(req.ID)

	monitor := agent.NewMonitor(req.ID, e.deps.Results, e.deps.Registry, e.cfg.CorrectionThreshold, e.cfg.MonitorInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	tasks := make([]agent.Task, 0, len(analysts))
	for _, a := range analysts {
		a := a
		tasks = append(tasks, agent.Task{
			Name: a.RepoURL(),
			Run: func(ctx context.Context) error {
				if a.Run(ctx, req.Query) == agent.OutcomeError {
					return fmt.Errorf("analysis of %s failed", a.RepoURL())
				}
				return nil
			},
		})
	}

	stats := agent.NewLimiter(e.cfg.Concurrency).Run(ctx, tasks)
	log.Printf("engine: request %s analysts done (%d ok, %d failed, max in flight %d)",
		req.ID, stats.Succeeded, stats.Failed, stats.MaxInFlight)
}

func (e *Engine) synthesize(ctx context.Context, req *domain.SearchRequest) ([]*domain.RepoAnalysisResult, error) {
	all, err := e.deps.Results.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	ranked := RankComplete(all)
	if len(ranked) > e.cfg.SynthesisTopN {
		ranked = ranked[:e.cfg.SynthesisTopN]
	}
	return ranked, nil
}

// RankComplete keeps complete results ordered by ranking descending, then
// stars descending, then URL.
func RankComplete(results []*domain.RepoAnalysisResult) []*domain.RepoAnalysisResult {
	out := make([]*domain.RepoAnalysisResult, 0, len(results))
	for _, r := range results {
		if r.IsComplete() {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ranking != out[j].Ranking {
			return out[i].Ranking > out[j].Ranking
		}
		if out[i].Stars != out[j].Stars {
			return out[i].Stars > out[j].Stars
		}
		return out[i].RepoURL < out[j].RepoURL
	})
	return out
}

func (e *Engine) handoff(ctx context.Context, req *domain.SearchRequest, synthesized []*domain.RepoAnalysisResult) error {
	ctx, span := telemetry.StartPhase(ctx, req.ID, string(domain.RequestStatusHandoff))
	defer span.End()

	verdict, err := e.deps.Judge.Review(ctx, req.ID, req.Query, synthesized)
	if err != nil {
		log.Printf("engine: judge failed for %s, approving all: %v", req.ID, err)
		telemetry.CaptureDegraded(ctx, req.ID, "judge unavailable", err)
		verdict = agent.ApproveAll(synthesized)
		metrics.JudgeDecisions.WithLabelValues("degraded").Add(float64(len(synthesized)))
	}

	rejections := make(map[string]agent.Rejection, len(verdict.Rejections))
	for _, r := range verdict.Rejections {
		rejections[r.ID] = r
	}
	approved := make(map[string]bool, len(verdict.Approved))
	for _, r := range verdict.Approved {
		approved[r.ID] = true
	}

	now := time.Now().UTC()
	var enrichments []*domain.Enrichment
	err = e.deps.TxRunner.WithTx(ctx, func(repos TxRepositories) error {
		for _, res := range synthesized {
			if approved[res.ID] {
				res.JudgeVerdict = domain.JudgeVerdictApproved
				res.JudgeReasoning = verdict.Approvals[res.ID]
			} else {
				rej := rejections[res.ID]
				res.JudgeVerdict = domain.JudgeVerdictRejected
				res.JudgeReasoning = rej.Reasoning
				en := domain.NewEnrichment(e.deps.UUIDGen.NewString(), res, rej.Reasoning, rej.Instruction, now)
				if err := repos.Enrichments().Create(ctx, en); err != nil {
					return fmt.Errorf("record enrichment: %w", err)
				}
				enrichments = append(enrichments, en)
			}
			if err := repos.Results().SetJudgeVerdict(ctx, res.ID, res.JudgeVerdict, res.JudgeReasoning); err != nil {
				return fmt.Errorf("store judge verdict: %w", err)
			}
		}
		return repos.Requests().TransitionStatus(ctx, req.ID, domain.RequestStatusHandoff, domain.RequestStatusCompleted)
	})
	if err != nil {
		return err
	}
	e.entered(ctx, req, domain.RequestStatusCompleted,
		fmt.Sprintf("%d approved, %d queued for enrichment", len(verdict.Approved), len(enrichments)))

	e.archive(ctx, req, synthesized, enrichments)
	return nil
}

// archive failures are logged; the request stays completed.
func (e *Engine) archive(ctx context.Context, req *domain.SearchRequest, synthesized []*domain.RepoAnalysisResult, enrichments []*domain.Enrichment) {
	if e.deps.Archive == nil {
		return
	}
	report, err := buildReport(req, synthesized, enrichments)
	if err == nil {
		err = e.deps.Archive.Archive(ctx, report)
	}
	if err != nil {
		log.Printf("engine: archive report for %s failed: %v", req.ID, err)
		telemetry.CaptureError(ctx, err)
	}
}

func (e *Engine) generateQueries(ctx context.Context, original, prompt string) ([]string, error) {
	var out queriesOutput
	req := openai.StructuredRequest{Schema: queriesSchema, System: querySystemPrompt, Prompt: prompt}
	if err := e.deps.Gen.GenerateStructured(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}
	return withOriginal(original, out.Queries), nil
}

func (e *Engine) searchAll(ctx context.Context, req *domain.SearchRequest, queries []string) ([]domain.Candidate, error) {
	qualifiers := req.Config.Qualifiers()
	sets := make([][]domain.Candidate, 0, len(queries))
	for _, q := range queries {
		if qualifiers != "" {
			q = q + " " + qualifiers
		}
		found, err := e.deps.Searcher.Search(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", q, err)
		}
		sets = append(sets, found)
	}
	return domain.MergeCandidates(sets...), nil
}

// advance moves req from one phase to the next through a conditional update.
func (e *Engine) advance(ctx context.Context, req *domain.SearchRequest, from, to domain.RequestStatus) error {
	if err := e.deps.Requests.TransitionStatus(ctx, req.ID, from, to); err != nil {
		return err
	}
	e.entered(ctx, req, to, "")
	return nil
}

func (e *Engine) entered(ctx context.Context, req *domain.SearchRequest, phase domain.RequestStatus, message string) {
	req.Status = phase
	metrics.PhaseTransitions.WithLabelValues(string(phase)).Inc()
	telemetry.PhaseEntered(ctx, req.ID, string(phase))
	log.Printf("engine: request %s entered %s", req.ID, phase)
	e.publish(ctx, events.PhaseEvent{RequestID: req.ID, Phase: phase, Message: message, At: time.Now().UTC()})
}

// fail moves the request to error. Completed phases are not rolled back.
func (e *Engine) fail(ctx context.Context, req *domain.SearchRequest, cause error) {
	phase := string(req.Status)
	log.Printf("engine: request %s failed in %s: %v", req.ID, phase, cause)
	telemetry.CaptureRequestError(ctx, req.ID, phase, cause)

	// ctx may be the reason for the failure
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.deps.Requests.MarkFailed(markCtx, req.ID, cause.Error()); err != nil {
		log.Printf("engine: mark request %s failed: %v", req.ID, err)
		return
	}
	req.Status = domain.RequestStatusError
	req.FailureMessage = cause.Error()
	metrics.PhaseTransitions.WithLabelValues(string(domain.RequestStatusError)).Inc()
	e.publish(markCtx, events.PhaseEvent{RequestID: req.ID, Phase: domain.RequestStatusError, Message: cause.Error(), At: time.Now().UTC()})
}

func (e *Engine) publish(ctx context.Context, ev events.PhaseEvent) {
	if e.deps.Bus == nil {
		return
	}
	if err := e.deps.Bus.Publish(ctx, ev); err != nil {
		log.Printf("engine: publish %s event for %s failed: %v", ev.Phase, ev.RequestID, err)
	}
}
