// Package agent holds the per-candidate analysts, the typed channel used to
// steer them, the concurrency limiter that runs them, the ranking monitor and
// the judge that reviews the synthesized shortlist.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/metrics"
	"github.com/cloo-solutions/reposcout/internal/openai"
	"github.com/google/uuid"
)

// DefaultTimeout bounds one analyst run.
const DefaultTimeout = 3 * time.Minute

// Manifests are the package manifests an analyst looks for, in order.
var Manifests = []string{"package.json", "go.mod", "Cargo.toml", "pyproject.toml"}

var analystNamespace = uuid.MustParse("6f1c3a52-8d8e-4b8f-9a57-3f0c2e9b7d41")

// ResultStore persists analysis results.
type ResultStore interface {
	InsertAnalyzing(ctx context.Context, res *domain.RepoAnalysisResult) (bool, error)
	Complete(ctx context.Context, res *domain.RepoAnalysisResult) error
	MarkError(ctx context.Context, id, msg string) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	GetByID(ctx context.Context, id string) (*domain.RepoAnalysisResult, error)
}

// CodeHost reads repository metadata and files.
type CodeHost interface {
	GetRepoMetadata(ctx context.Context, owner, repo string) (*domain.RepoMetadata, error)
	ReadFile(ctx context.Context, owner, repo, path string) (string, error)
}

// Generator produces schema-validated structured output.
type Generator interface {
	GenerateStructured(ctx context.Context, req openai.StructuredRequest, out any) error
}

// Embedder turns text into a vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Deps are shared by every analyst a registry creates. Embedder is optional.
type Deps struct {
	Store    ResultStore
	Host     CodeHost
	Gen      Generator
	Embedder Embedder
	NewID    func() string
	Timeout  time.Duration
}

func (d Deps) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.New().String()
}

func (d Deps) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

// Outcome is how an analyst run ended.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeComplete Outcome = "complete"
	OutcomeError    Outcome = "error"
)

// AnalystKey derives the stable analyst identity for a candidate of a request.
func AnalystKey(requestID, repoURL string) string {
	return uuid.NewSHA1(analystNamespace, []byte(requestID+"|"+repoURL)).String()
}

// Analyst evaluates one candidate repository for one request. It owns a
// Channel through which corrections arrive while it works.
type Analyst struct {
	key       string
	requestID string
	repoURL   string
	deps      Deps
	ch        *Channel

	mu         sync.RWMutex
	correction string
}

func newAnalyst(requestID, repoURL string, deps Deps) *Analyst {
	a := &Analyst{
		key:       AnalystKey(requestID, repoURL),
		requestID: requestID,
		repoURL:   repoURL,
		deps:      deps,
		ch:        newChannel(),
	}
	go a.ch.serve(a.handle)
	return a
}

func (a *Analyst) Key() string       { return a.key }
func (a *Analyst) RequestID() string { return a.requestID }
func (a *Analyst) RepoURL() string   { return a.repoURL }

// Channel returns the analyst's inbound channel.
func (a *Analyst) Channel() *Channel { return a.ch }

// Correction returns the most recent correction received.
func (a *Analyst) Correction() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.correction
}

func (a *Analyst) handle(msg Message) (Reply, error) {
	switch m := msg.(type) {
	case Correction:
		a.mu.Lock()
		a.correction = m.Text
		a.mu.Unlock()
		return Ack{}, nil
	default:
		return nil, ErrUnsupportedMessage
	}
}

// Run analyzes the repository once. A result row already present for the
// candidate means another run owns it and Run returns OutcomeSkipped.
func (a *Analyst) Run(ctx context.Context, userQuery string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, a.deps.timeout())
	defer cancel()

	res := domain.NewAnalyzingResult(a.deps.newID(), a.requestID, a.repoURL, a.key, time.Now().UTC())
	inserted, err := a.deps.Store.InsertAnalyzing(ctx, res)
	if err != nil {
		log.Printf("analyst: insert placeholder for %s failed: %v", a.repoURL, err)
		metrics.AnalystOutcomes.WithLabelValues(string(OutcomeError)).Inc()
		return OutcomeError
	}
	if !inserted {
		metrics.AnalystOutcomes.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped
	}

	if err := a.analyze(ctx, userQuery, res); err != nil {
		log.Printf("analyst: %s failed: %v", a.repoURL, err)
		// ctx may already be done
		markCtx, markCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer markCancel()
		if markErr := a.deps.Store.MarkError(markCtx, res.ID, err.Error()); markErr != nil {
			log.Printf("analyst: mark error for %s failed: %v", a.repoURL, markErr)
		}
		metrics.AnalystOutcomes.WithLabelValues(string(OutcomeError)).Inc()
		return OutcomeError
	}

	a.embed(ctx, res)
	metrics.AnalystOutcomes.WithLabelValues(string(OutcomeComplete)).Inc()
	return OutcomeComplete
}

func (a *Analyst) analyze(ctx context.Context, userQuery string, res *domain.RepoAnalysisResult) error {
	rc, err := gatherContext(ctx, a.deps.Host, a.repoURL)
	if err != nil {
		return err
	}

	var out analysisOutput
	req := openai.StructuredRequest{
		Schema: analysisSchema,
		System: analystSystemPrompt,
		Prompt: buildAnalysisPrompt(userQuery, rc, a.Correction()),
	}
	if err := a.deps.Gen.GenerateStructured(ctx, req, &out); err != nil {
		return fmt.Errorf("generate analysis: %w", err)
	}

	res.Status = domain.AnalysisStatusComplete
	res.Ranking = out.Ranking
	res.Summary = out.Summary
	res.Pros = out.Pros
	res.Cons = out.Cons
	res.TechStack = out.TechStack
	res.Stars = rc.meta.Stars
	res.ManifestFound = len(rc.manifests) > 0
	res.UpdatedAt = time.Now().UTC()
	if err := domain.ValidateRepoAnalysisResult(res); err != nil {
		return err
	}
	if err := a.deps.Store.Complete(ctx, res); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}
	return nil
}

// embed is best effort; chat falls back to rankings without vectors.
func (a *Analyst) embed(ctx context.Context, res *domain.RepoAnalysisResult) {
	if a.deps.Embedder == nil {
		return
	}
	emb, err := a.deps.Embedder.GenerateEmbedding(ctx, embeddingText(res))
	if err != nil {
		log.Printf("analyst: embedding for %s failed: %v", a.repoURL, err)
		return
	}
	if err := a.deps.Store.UpdateEmbedding(ctx, res.ID, emb); err != nil {
		log.Printf("analyst: store embedding for %s failed: %v", a.repoURL, err)
	}
}

func embeddingText(res *domain.RepoAnalysisResult) string {
	parts := []string{res.RepoURL, res.Summary}
	parts = append(parts, res.TechStack...)
	parts = append(parts, res.Pros...)
	return strings.Join(parts, "\n")
}

// gatherContext fetches metadata, the README and any manifests. Missing files
// are not errors; only metadata is required.
func gatherContext(ctx context.Context, host CodeHost, repoURL string) (repoContext, error) {
	owner, repo, err := domain.OwnerRepo(repoURL)
	if err != nil {
		return repoContext{}, err
	}
	meta, err := host.GetRepoMetadata(ctx, owner, repo)
	if err != nil {
		return repoContext{}, fmt.Errorf("fetch metadata: %w", err)
	}

	rc := repoContext{meta: meta, manifests: make(map[string]string)}
	rc.readme = readOptional(ctx, host, owner, repo, "README.md")
	for _, name := range Manifests {
		if content := readOptional(ctx, host, owner, repo, name); content != "" {
			rc.manifests[name] = content
		}
	}
	return rc, nil
}

func readOptional(ctx context.Context, host CodeHost, owner, repo, path string) string {
	content, err := host.ReadFile(ctx, owner, repo, path)
	if err != nil {
		if !errors.Is(err, domain.ErrFileNotFound) {
			log.Printf("analyst: read %s/%s/%s: %v", owner, repo, path, err)
		}
		return ""
	}
	return content
}
