package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/google/go-github/v81/github"
)

// ErrFileNotFound means the path does not exist in the repository.
var ErrFileNotFound = domain.ErrFileNotFound

// GetRepoMetadata fetches repository metadata. Concurrent calls for the same
// repository share one API request.
func (c *Client) GetRepoMetadata(ctx context.Context, owner, repo string) (*domain.RepoMetadata, error) {
	key := owner + "/" + repo
	v, err, _ := c.meta.Do(key, func() (interface{}, error) {
		r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return nil, fmt.Errorf("get repository %s: %w", key, err)
		}
		return toMetadata(r), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.RepoMetadata), nil
}

// ReadFile returns the decoded content of path on the default branch.
func (c *Client) ReadFile(ctx context.Context, owner, repo, path string) (string, error) {
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", ErrFileNotFound
		}
		return "", fmt.Errorf("read %s/%s/%s: %w", owner, repo, path, err)
	}
	// a directory listing is not a file
	if file == nil {
		return "", ErrFileNotFound
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode %s/%s/%s: %w", owner, repo, path, err)
	}
	return content, nil
}

func toMetadata(r *github.Repository) *domain.RepoMetadata {
	m := &domain.RepoMetadata{
		FullName:      r.GetFullName(),
		URL:           r.GetHTMLURL(),
		Description:   r.GetDescription(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Language:      r.GetLanguage(),
		Topics:        r.Topics,
		DefaultBranch: r.GetDefaultBranch(),
		Archived:      r.GetArchived(),
		PushedAt:      r.GetPushedAt().Time,
	}
	if r.License != nil {
		m.License = r.License.GetSPDXID()
	}
	return m
}
