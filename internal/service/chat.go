package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/reposcout/internal/domain"
)

const chatContextSize = 5

// EmbeddingServiceInterface defines the interface for embedding generation
type EmbeddingServiceInterface interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// TextGenerator produces a free-form answer.
type TextGenerator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
}

// ChatService answers follow-up questions about a request's results.
type ChatService struct {
	requests SearchRequestRepositoryInterface
	results  AnalysisResultRepositoryInterface
	embedder EmbeddingServiceInterface
	gen      TextGenerator
}

func NewChatService(requests SearchRequestRepositoryInterface, results AnalysisResultRepositoryInterface, embedder EmbeddingServiceInterface, gen TextGenerator) *ChatService {
	return &ChatService{requests: requests, results: results, embedder: embedder, gen: gen}
}

const chatSystemPrompt = `You answer questions about a set of analyzed open source repositories.
Use only the analyses provided. Say so when they do not contain the answer.`

// Ask retrieves the analyses closest to the question by embedding and falls
// back to the best-ranked results when no vectors are available.
func (s *ChatService) Ask(ctx context.Context, requestID, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", domain.ErrEmptyQuery
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return "", err
	}

	contextResults, err := s.retrieve(ctx, requestID, question)
	if err != nil {
		return "", err
	}
	if len(contextResults) == 0 {
		return "No analyses are available for this request yet.", nil
	}

	answer, err := s.gen.GenerateText(ctx, chatSystemPrompt, buildChatPrompt(req.Query, question, contextResults))
	if err != nil {
		return "", fmt.Errorf("generate chat answer: %w", err)
	}
	return answer, nil
}

func (s *ChatService) retrieve(ctx context.Context, requestID, question string) ([]*domain.RepoAnalysisResult, error) {
	if s.embedder != nil {
		emb, err := s.embedder.GenerateEmbedding(ctx, question)
		if err == nil {
			scored, err := s.results.SearchByEmbedding(ctx, requestID, emb, chatContextSize)
			if err == nil && len(scored) > 0 {
				out := make([]*domain.RepoAnalysisResult, 0, len(scored))
				for _, sr := range scored {
					out = append(out, sr.Result)
				}
				return out, nil
			}
			if err != nil {
				log.Printf("chat: vector search for %s failed: %v", requestID, err)
			}
		} else {
			log.Printf("chat: embedding question failed: %v", err)
		}
	}

	all, err := s.results.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	ranked := RankComplete(all)
	if len(ranked) > chatContextSize {
		ranked = ranked[:chatContextSize]
	}
	return ranked, nil
}

func buildChatPrompt(userQuery, question string, results []*domain.RepoAnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original search: %s\n\n", userQuery)
	for _, r := range results {
		fmt.Fprintf(&b, "- %s (ranking %d, %d stars): %s\n", r.RepoURL, r.Ranking, r.Stars, r.Summary)
		if len(r.TechStack) > 0 {
			fmt.Fprintf(&b, "  stack: %s\n", strings.Join(r.TechStack, ", "))
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", question)
	return b.String()
}
