// Package openai is the engine's language model: schema-checked structured
// generation, free text for chat, and embeddings for result similarity.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/reposcout/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// text-embedding-3-small matches the vector(1536) column of
	// repo_analysis_results.
	DefaultEmbeddingModel      = openai.SmallEmbedding3
	DefaultEmbeddingDimensions = 1536
	DefaultChatModel           = openai.GPT4oMini
	DefaultMaxAttempts         = 3

	transportAttempts = 3
)

var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrWrongDimensions = errors.New("embedding has unexpected dimensions")
	// ErrTransport wraps failures talking to the model API that survived
	// the transient retries.
	ErrTransport       = errors.New("generation transport failure")
	ErrEmptyCompletion = errors.New("completion returned no content")
)

// Completion is one chat call. JSON forces a JSON object response.
type Completion struct {
	Messages []openai.ChatCompletionMessage
	JSON     bool
}

// Backend is the model API. The production backend is go-openai; tests
// substitute their own.
type Backend interface {
	Complete(ctx context.Context, c Completion) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible server.
	BaseURL             string
	ChatModel           string
	Temperature         float32
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	MaxAttempts         int
}

type Client struct {
	backend     Backend
	dimensions  int
	maxAttempts int
	backoff     time.Duration
}

func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	backend := &apiBackend{
		client:         openai.NewClientWithConfig(apiCfg),
		chatModel:      cfg.ChatModel,
		temperature:    cfg.Temperature,
		embeddingModel: cfg.EmbeddingModel,
	}
	if backend.chatModel == "" {
		backend.chatModel = DefaultChatModel
	}
	if backend.temperature == 0 {
		backend.temperature = 0.2
	}
	if backend.embeddingModel == "" {
		backend.embeddingModel = DefaultEmbeddingModel
	}
	return NewClientWithBackend(backend, cfg.EmbeddingDimensions, cfg.MaxAttempts)
}

func NewClientWithBackend(backend Backend, dimensions, maxAttempts int) *Client {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Client{
		backend:     backend,
		dimensions:  dimensions,
		maxAttempts: maxAttempts,
		backoff:     time.Second,
	}
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	var embedding []float32
	err := c.withRetry(ctx, func() error {
		var err error
		embedding, err = c.backend.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create embedding: %v", ErrTransport, err)
	}
	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongDimensions, len(embedding), c.dimensions)
	}
	return embedding, nil
}

// GenerateText returns a plain-text completion.
func (c *Client) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyText
	}
	out, err := c.complete(ctx, Completion{Messages: buildMessages(system, prompt)})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) complete(ctx context.Context, req Completion) (string, error) {
	var out string
	err := c.withRetry(ctx, func() error {
		var err error
		out, err = c.backend.Complete(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return out, nil
}

// withRetry repeats fn while it fails with a rate limit, a server error or a
// broken connection. Anything else (bad key, bad request) fails at once.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	delay := c.backoff
	var err error
	for attempt := 1; attempt <= transportAttempts; attempt++ {
		if err = fn(); err == nil || !transient(err) || attempt == transportAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return false
}

// retryableStatus treats 0 as a connection that never got a response.
func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

type apiBackend struct {
	client         *openai.Client
	chatModel      string
	temperature    float32
	embeddingModel openai.EmbeddingModel
}

func (b *apiBackend) Complete(ctx context.Context, c Completion) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       b.chatModel,
		Messages:    c.Messages,
		Temperature: b.temperature,
	}
	if c.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	metrics.GenerationTokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (b *apiBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: b.embeddingModel,
	})
	if err != nil {
		return nil, err
	}
	metrics.GenerationTokens.WithLabelValues("embedding").Add(float64(resp.Usage.PromptTokens))
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}
