package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle phase of a search request.
type RequestStatus string

const (
	RequestStatusPending     RequestStatus = "pending"
	RequestStatusSampling    RequestStatus = "sampling"
	RequestStatusHITL        RequestStatus = "hitl"
	RequestStatusExpansion   RequestStatus = "expansion"
	RequestStatusDelegation  RequestStatus = "delegation"
	RequestStatusSupervision RequestStatus = "supervision"
	RequestStatusSynthesis   RequestStatus = "synthesis"
	RequestStatusHandoff     RequestStatus = "handoff"
	RequestStatusCompleted   RequestStatus = "completed"
	RequestStatusError       RequestStatus = "error"
)

// phaseOrder ranks statuses so transitions can be checked for monotonicity.
var phaseOrder = map[RequestStatus]int{
	RequestStatusPending:     0,
	RequestStatusSampling:    1,
	RequestStatusHITL:        2,
	RequestStatusExpansion:   3,
	RequestStatusDelegation:  4,
	RequestStatusSupervision: 5,
	RequestStatusSynthesis:   6,
	RequestStatusHandoff:     7,
	RequestStatusCompleted:   8,
	RequestStatusError:       9,
}

// IsTerminal reports whether no further transitions are possible.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusError
}

// CanTransitionTo reports whether moving from s to next keeps the phase order.
// Any non-terminal phase may fail into error.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == RequestStatusError {
		return true
	}
	from, ok := phaseOrder[s]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// ParseRequestStatus accepts a status name as used in list filters.
func ParseRequestStatus(s string) (RequestStatus, error) {
	status := RequestStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := phaseOrder[status]; !ok {
		return "", NewValidationError(fmt.Sprintf("unknown request status %q", s))
	}
	return status, nil
}

// SearchRequestConfig is the per-request filter blob submitted with the query.
type SearchRequestConfig struct {
	SearchBase          string   `json:"search_base,omitempty"`
	MinStars            int      `json:"min_stars,omitempty"`
	Languages           []string `json:"languages,omitempty"`
	ConfigurationID     string   `json:"configuration_id,omitempty"`
	TargetAnalysisCount int      `json:"target_analysis_count,omitempty"`
}

// UnmarshalJSON also accepts a singular "language" key, as a string or a
// list, and folds it into Languages.
func (c *SearchRequestConfig) UnmarshalJSON(data []byte) error {
	type plain SearchRequestConfig
	var aux struct {
		plain
		Language json.RawMessage `json:"language"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = SearchRequestConfig(aux.plain)

	raw := bytes.TrimSpace(aux.Language)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var extra []string
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &extra); err != nil {
			return NewValidationError("language must be a string or a list of strings")
		}
	} else {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return NewValidationError("language must be a string or a list of strings")
		}
		extra = []string{one}
	}
	for _, lang := range extra {
		c.addLanguage(lang)
	}
	return nil
}

func (c *SearchRequestConfig) addLanguage(lang string) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return
	}
	for _, have := range c.Languages {
		if strings.EqualFold(have, lang) {
			return
		}
	}
	c.Languages = append(c.Languages, lang)
}

// Qualifiers renders the config as code-search qualifiers appended to a query.
func (c SearchRequestConfig) Qualifiers() string {
	var parts []string
	if base := strings.TrimSpace(c.SearchBase); base != "" {
		parts = append(parts, base)
	}
	if c.MinStars > 0 {
		parts = append(parts, fmt.Sprintf("stars:>=%d", c.MinStars))
	}
	for _, lang := range c.Languages {
		lang = strings.TrimSpace(lang)
		if lang != "" {
			parts = append(parts, "language:"+lang)
		}
	}
	return strings.Join(parts, " ")
}

// SearchRequest is one user submission driven through the orchestration phases.
type SearchRequest struct {
	ID             string              `json:"id"`
	Query          string              `json:"query"`
	Config         SearchRequestConfig `json:"config"`
	Status         RequestStatus       `json:"status"`
	FailureMessage string              `json:"failure_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NewSearchRequest creates a pending SearchRequest.
func NewSearchRequest(id, query string, cfg SearchRequestConfig, now time.Time) *SearchRequest {
	return &SearchRequest{
		ID:        id,
		Query:     strings.TrimSpace(query),
		Config:    cfg,
		Status:    RequestStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateSearchRequest validates a SearchRequest instance
func ValidateSearchRequest(r *SearchRequest) error {
	if r == nil {
		return fmt.Errorf("search request cannot be nil")
	}
	if r.ID == "" {
		return fmt.Errorf("search request ID is required")
	}
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if r.Config.MinStars < 0 {
		return NewValidationError("min_stars cannot be negative")
	}
	if r.Config.TargetAnalysisCount < 0 {
		return NewValidationError("target_analysis_count cannot be negative")
	}
	if _, ok := phaseOrder[r.Status]; !ok {
		return ErrInvalidRequestState
	}
	return nil
}
