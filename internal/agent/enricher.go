package agent

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/openai"
)

// QueryLookup resolves the user query of a request.
type QueryLookup interface {
	GetByID(ctx context.Context, id string) (*domain.SearchRequest, error)
}

// Enricher re-analyzes results the judge rejected, following the judge's
// instruction. The rejected result row is never modified.
type Enricher struct {
	requests QueryLookup
	results  ResultStore
	host     CodeHost
	gen      Generator
}

func NewEnricher(requests QueryLookup, results ResultStore, host CodeHost, gen Generator) *Enricher {
	return &Enricher{requests: requests, results: results, host: host, gen: gen}
}

// Enrich implements jobs.Enricher.
func (e *Enricher) Enrich(ctx context.Context, en *domain.Enrichment) (*domain.EnrichmentOutcome, error) {
	req, err := e.requests.GetByID(ctx, en.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	prior, err := e.results.GetByID(ctx, en.ResultID)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	rc, err := gatherContext(ctx, e.host, en.RepoURL)
	if err != nil {
		return nil, err
	}

	var out analysisOutput
	sreq := openai.StructuredRequest{
		Schema: analysisSchema,
		System: analystSystemPrompt,
		Prompt: buildEnrichmentPrompt(req.Query, prior, en, rc),
	}
	if err := e.gen.GenerateStructured(ctx, sreq, &out); err != nil {
		return nil, fmt.Errorf("generate enrichment: %w", err)
	}
	return &domain.EnrichmentOutcome{Summary: out.Summary, Ranking: out.Ranking}, nil
}
