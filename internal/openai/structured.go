package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/reposcout/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
)

// StructuredRequest asks for a JSON object matching Schema.
type StructuredRequest struct {
	Schema *Schema
	System string
	Prompt string
}

// GenerateStructured requests JSON output, validates it against the schema and
// decodes it into out. Output that fails validation is retried with the
// validation error fed back, up to the configured attempt count. Transport
// failures that outlast the transient retries end the call with ErrTransport;
// exhausted schema retries return a *SchemaError.
func (c *Client) GenerateStructured(ctx context.Context, req StructuredRequest, out any) error {
	if req.Schema == nil {
		return fmt.Errorf("structured request requires a schema")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyText
	}

	system := strings.TrimSpace(req.System + "\n\nRespond with a single JSON object that validates against this JSON Schema:\n" + req.Schema.Source())
	messages := buildMessages(system, req.Prompt)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		raw, err := c.complete(ctx, Completion{Messages: messages, JSON: true})
		if err != nil {
			metrics.GenerationAttempts.WithLabelValues("transport_error").Inc()
			return err
		}

		lastErr = req.Schema.Validate([]byte(raw))
		if lastErr == nil {
			if err := json.Unmarshal([]byte(raw), out); err != nil {
				lastErr = fmt.Errorf("decode output: %w", err)
			}
		}
		if lastErr == nil {
			metrics.GenerationAttempts.WithLabelValues("ok").Inc()
			return nil
		}

		metrics.GenerationAttempts.WithLabelValues("schema_error").Inc()
		log.Printf("generation: schema %s attempt %d/%d rejected: %v", req.Schema.Name(), attempt, c.maxAttempts, lastErr)
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: raw},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: "That output was invalid: " + lastErr.Error() + ". Reply again with corrected JSON only."},
		)
	}

	return &SchemaError{Schema: req.Schema.Name(), Attempts: c.maxAttempts, Err: lastErr}
}

func buildMessages(system, prompt string) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}
