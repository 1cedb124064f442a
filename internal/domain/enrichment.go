package domain

import (
	"fmt"
	"time"
)

// EnrichmentStatus represents the status of an enrichment
type EnrichmentStatus string

const (
	EnrichmentStatusPending    EnrichmentStatus = "pending"
	EnrichmentStatusProcessing EnrichmentStatus = "processing"
	EnrichmentStatusCompleted  EnrichmentStatus = "completed"
	EnrichmentStatusFailed     EnrichmentStatus = "failed"
)

// Enrichment is a deferred re-analysis of a result the judge rejected.
// The rejected result row itself is left untouched.
type Enrichment struct {
	ID              string           `json:"id"`
	RequestID       string           `json:"request_id"`
	ResultID        string           `json:"result_id"`
	RepoURL         string           `json:"repo_url"`
	Reasoning       string           `json:"reasoning"`
	Instruction     string           `json:"instruction"`
	Status          EnrichmentStatus `json:"status"`
	Retries         int32            `json:"retries"`
	Error           string           `json:"error,omitempty"`
	EnrichedSummary string           `json:"enriched_summary,omitempty"`
	EnrichedRanking int              `json:"enriched_ranking,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}

// NewEnrichment creates a pending Enrichment for a rejected result.
func NewEnrichment(id string, result *RepoAnalysisResult, reasoning, instruction string, now time.Time) *Enrichment {
	return &Enrichment{
		ID:          id,
		RequestID:   result.RequestID,
		ResultID:    result.ID,
		RepoURL:     result.RepoURL,
		Reasoning:   reasoning,
		Instruction: instruction,
		Status:      EnrichmentStatusPending,
		CreatedAt:   now,
	}
}

// ValidateEnrichment validates an Enrichment instance
func ValidateEnrichment(e *Enrichment) error {
	if e == nil {
		return fmt.Errorf("enrichment cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("enrichment ID is required")
	}

	if e.RequestID == "" || e.ResultID == "" {
		return fmt.Errorf("enrichment must reference a request and a result")
	}

	if !isValidEnrichmentStatus(e.Status) {
		return fmt.Errorf("enrichment Status is invalid: %s", e.Status)
	}

	if e.Retries < 0 {
		return fmt.Errorf("enrichment Retries cannot be negative")
	}

	return nil
}

func isValidEnrichmentStatus(s EnrichmentStatus) bool {
	switch s {
	case EnrichmentStatusPending, EnrichmentStatusProcessing,
		EnrichmentStatusCompleted, EnrichmentStatusFailed:
		return true
	}
	return false
}

// EnrichmentOutcome is the regenerated analysis produced for an Enrichment.
type EnrichmentOutcome struct {
	Summary string
	Ranking int
}
