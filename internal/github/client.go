// Package github adapts the GitHub REST API to the search and code-host
// capabilities the orchestrator consumes.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v81/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	Token   string
	BaseURL string
	// PerPage bounds each search call's page size.
	PerPage int
	Timeout time.Duration
}

// Client wraps go-github with token auth and per-repository metadata dedupe.
type Client struct {
	gh      *github.Client
	perPage int
	meta    singleflight.Group
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("github client: ctx is nil")
	}

	transport := http.DefaultTransport
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	gh := github.NewClient(&http.Client{Transport: transport, Timeout: timeout})

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github client: invalid base url: %w", err)
		}
		gh.BaseURL = u
		gh.UploadURL = u
	}

	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 30
	}

	return &Client{gh: gh, perPage: perPage}, nil
}
