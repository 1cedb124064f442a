package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/google/go-github/v81/github"
)

// Search runs a repository search ordered by stars and maps hits to candidates.
func (c *Client) Search(ctx context.Context, query string) ([]domain.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("github search: empty query")
	}

	result, _, err := c.gh.Search.Repositories(ctx, query, &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: c.perPage},
	})
	if err != nil {
		return nil, fmt.Errorf("github search %q: %w", query, err)
	}

	candidates := make([]domain.Candidate, 0, len(result.Repositories))
	for _, repo := range result.Repositories {
		if repo.GetHTMLURL() == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			URL:         repo.GetHTMLURL(),
			FullName:    repo.GetFullName(),
			Description: repo.GetDescription(),
			Stars:       repo.GetStargazersCount(),
			Language:    repo.GetLanguage(),
			Topics:      repo.Topics,
		})
	}
	return candidates, nil
}
