package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Candidate is a repository descriptor returned by code search.
type Candidate struct {
	URL         string   `json:"url"`
	FullName    string   `json:"full_name"`
	Description string   `json:"description,omitempty"`
	Stars       int      `json:"stars"`
	Language    string   `json:"language,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// OwnerRepo splits a repository URL such as https://github.com/owner/repo.
func OwnerRepo(repoURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", "", fmt.Errorf("invalid repository url %q: %w", repoURL, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository url %q must contain owner and name", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// MergeCandidates merges result sets by URL, keeping the higher star count,
// and returns them ordered by stars descending then URL.
func MergeCandidates(sets ...[]Candidate) []Candidate {
	byURL := make(map[string]Candidate)
	for _, set := range sets {
		for _, c := range set {
			if c.URL == "" {
				continue
			}
			existing, ok := byURL[c.URL]
			if !ok || c.Stars > existing.Stars {
				byURL[c.URL] = c
			}
		}
	}
	out := make([]Candidate, 0, len(byURL))
	for _, c := range byURL {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stars == out[j].Stars {
			return out[i].URL < out[j].URL
		}
		return out[i].Stars > out[j].Stars
	})
	return out
}

// TruncateCandidates returns at most n candidates.
func TruncateCandidates(cs []Candidate, n int) []Candidate {
	if n < 0 {
		n = 0
	}
	if len(cs) <= n {
		return cs
	}
	return cs[:n]
}

// RepoMetadata is what the code host reports about a repository.
type RepoMetadata struct {
	FullName      string    `json:"full_name"`
	URL           string    `json:"url"`
	Description   string    `json:"description,omitempty"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	Language      string    `json:"language,omitempty"`
	Topics        []string  `json:"topics,omitempty"`
	License       string    `json:"license,omitempty"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	Archived      bool      `json:"archived"`
	PushedAt      time.Time `json:"pushed_at"`
}
