package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Verdict is the human decision on a preview candidate.
type Verdict string

const (
	VerdictUnset   Verdict = ""
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// ParseVerdict accepts the two settable verdicts.
func ParseVerdict(s string) (Verdict, error) {
	switch Verdict(s) {
	case VerdictApprove, VerdictReject:
		return Verdict(s), nil
	}
	return VerdictUnset, ErrInvalidVerdict
}

// ReviewStatus tracks whether the human has acted on an item.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusReviewed ReviewStatus = "reviewed"
)

// HitlReviewItem is one preview candidate awaiting a human verdict.
type HitlReviewItem struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"request_id"`
	RepoSnapshot json.RawMessage `json:"repo_snapshot"`
	Verdict      Verdict         `json:"verdict,omitempty"`
	Rationale    string          `json:"rationale,omitempty"`
	Status       ReviewStatus    `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	ReviewedAt   *time.Time      `json:"reviewed_at,omitempty"`
}

// NewHitlReviewItem snapshots a candidate into a pending review item.
func NewHitlReviewItem(id, requestID string, candidate Candidate, now time.Time) (*HitlReviewItem, error) {
	snapshot, err := json.Marshal(candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot candidate: %w", err)
	}
	return &HitlReviewItem{
		ID:           id,
		RequestID:    requestID,
		RepoSnapshot: snapshot,
		Status:       ReviewStatusPending,
		CreatedAt:    now,
	}, nil
}

// Candidate decodes the snapshot back into a descriptor.
func (h *HitlReviewItem) Candidate() (Candidate, error) {
	var c Candidate
	if err := json.Unmarshal(h.RepoSnapshot, &c); err != nil {
		return Candidate{}, fmt.Errorf("failed to decode repo snapshot: %w", err)
	}
	return c, nil
}

// IsApproved reports a reviewed item with an approve verdict.
func (h *HitlReviewItem) IsApproved() bool {
	return h.Status == ReviewStatusReviewed && h.Verdict == VerdictApprove
}
