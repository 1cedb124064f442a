package domain

import (
	"fmt"
	"time"
)

// AnalysisStatus represents the status of a per-candidate analysis
type AnalysisStatus string

const (
	AnalysisStatusAnalyzing AnalysisStatus = "analyzing"
	AnalysisStatusComplete  AnalysisStatus = "complete"
	AnalysisStatusError     AnalysisStatus = "error"
)

// JudgeVerdict is the judge's decision on a synthesized result.
type JudgeVerdict string

const (
	JudgeVerdictNone     JudgeVerdict = ""
	JudgeVerdictApproved JudgeVerdict = "approved"
	JudgeVerdictRejected JudgeVerdict = "rejected"
)

const (
	MinRanking = 1
	MaxRanking = 100
)

// RepoAnalysisResult is the persisted output of one analyst for one candidate.
// At most one exists per (RequestID, RepoURL).
type RepoAnalysisResult struct {
	ID             string         `json:"id"`
	RequestID      string         `json:"request_id"`
	RepoURL        string         `json:"repo_url"`
	AnalystKey     string         `json:"analyst_key"`
	Status         AnalysisStatus `json:"status"`
	Ranking        int            `json:"ranking,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Pros           []string       `json:"pros,omitempty"`
	Cons           []string       `json:"cons,omitempty"`
	Stars          int            `json:"stars"`
	TechStack      []string       `json:"tech_stack,omitempty"`
	ManifestFound  bool           `json:"manifest_found"`
	Error          string         `json:"error,omitempty"`
	JudgeVerdict   JudgeVerdict   `json:"judge_verdict,omitempty"`
	JudgeReasoning string         `json:"judge_reasoning,omitempty"`
	Embedding      []float32      `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewAnalyzingResult creates the placeholder row written before an analyst starts work.
func NewAnalyzingResult(id, requestID, repoURL, analystKey string, now time.Time) *RepoAnalysisResult {
	return &RepoAnalysisResult{
		ID:         id,
		RequestID:  requestID,
		RepoURL:    repoURL,
		AnalystKey: analystKey,
		Status:     AnalysisStatusAnalyzing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsComplete reports whether the analysis produced a usable ranking.
func (r *RepoAnalysisResult) IsComplete() bool {
	return r.Status == AnalysisStatusComplete
}

// ValidateRepoAnalysisResult validates a RepoAnalysisResult instance
func ValidateRepoAnalysisResult(r *RepoAnalysisResult) error {
	if r == nil {
		return fmt.Errorf("analysis result cannot be nil")
	}
	if r.ID == "" {
		return fmt.Errorf("analysis result ID is required")
	}
	if r.RequestID == "" {
		return fmt.Errorf("analysis result RequestID is required")
	}
	if r.RepoURL == "" {
		return fmt.Errorf("analysis result RepoURL is required")
	}
	switch r.Status {
	case AnalysisStatusAnalyzing, AnalysisStatusError:
	case AnalysisStatusComplete:
		if r.Ranking < MinRanking || r.Ranking > MaxRanking {
			return fmt.Errorf("analysis result Ranking must be between %d and %d, got %d", MinRanking, MaxRanking, r.Ranking)
		}
	default:
		return fmt.Errorf("analysis result Status is invalid: %s", r.Status)
	}
	return nil
}
