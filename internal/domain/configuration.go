package domain

import (
	"fmt"
	"strings"
	"time"
)

// SearchConfiguration is a named, versioned fan-out setting. At most one is default.
type SearchConfiguration struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Version             int       `json:"version"`
	TargetAnalysisCount int       `json:"target_analysis_count"`
	IsDefault           bool      `json:"is_default"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewSearchConfiguration creates a SearchConfiguration at version 1.
func NewSearchConfiguration(id, name string, target int, isDefault bool, now time.Time) *SearchConfiguration {
	return &SearchConfiguration{
		ID:                  id,
		Name:                strings.TrimSpace(name),
		Version:             1,
		TargetAnalysisCount: target,
		IsDefault:           isDefault,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ValidateSearchConfiguration validates a SearchConfiguration instance
func ValidateSearchConfiguration(c *SearchConfiguration) error {
	if c == nil {
		return fmt.Errorf("search configuration cannot be nil")
	}
	if c.ID == "" {
		return fmt.Errorf("search configuration ID is required")
	}
	if c.Name == "" {
		return NewValidationError("configuration name is required")
	}
	if c.TargetAnalysisCount <= 0 {
		return NewValidationError("target_analysis_count must be positive")
	}
	if c.Version < 1 {
		return fmt.Errorf("search configuration Version must be at least 1")
	}
	return nil
}
