package client

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// SearchConfig is the filter blob sent with a query.
type SearchConfig struct {
	SearchBase          string   `json:"search_base,omitempty"`
	MinStars            int      `json:"min_stars,omitempty"`
	Languages           []string `json:"languages,omitempty"`
	ConfigurationID     string   `json:"configuration_id,omitempty"`
	TargetAnalysisCount int      `json:"target_analysis_count,omitempty"`
}

// SubmitRequest is the body of POST /search.
type SubmitRequest struct {
	Query           string       `json:"query"`
	Config          SearchConfig `json:"config"`
	ConfigurationID string       `json:"configuration_id,omitempty"`
}

// SubmitResponse is returned when a search is accepted.
type SubmitResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// RequestView is a search request as the API reports it.
type RequestView struct {
	ID             string       `json:"id"`
	Query          string       `json:"query"`
	Status         string       `json:"status"`
	Config         SearchConfig `json:"config"`
	FailureMessage string       `json:"failure_message,omitempty"`
	CreatedAt      string       `json:"created_at"`
	UpdatedAt      string       `json:"updated_at"`
}

// RequestList is a page of search requests.
type RequestList struct {
	Items   []RequestView `json:"items"`
	Cursor  string        `json:"cursor,omitempty"`
	HasMore bool          `json:"has_more"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		cfg   SearchConfig
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Submit a repository search",
		Long: `Submits a search. Sampling starts in the background and the request stops
at human review; use 'reposcout review' to approve or reject the preview.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			profile, err := LoadProfile()
			if err != nil {
				return err
			}
			applySearchDefaults(cmd, &cfg, profile.Search)
			created, err := submitSearch(api, args[0], cfg)
			if err != nil {
				return err
			}
			if outputJSON {
				if err := printJSON(cmd.OutOrStdout(), created); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Search accepted: %s\n", bold.Sprint(created.RequestID))
			}
			if watch {
				return watchRequest(cmd.Context(), api, created.RequestID, cmd.OutOrStdout(), outputJSON)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigurationID, "configuration", "c", "", "Search configuration id (default configuration when empty)")
	cmd.Flags().IntVar(&cfg.MinStars, "min-stars", 0, "Minimum star count")
	cmd.Flags().StringSliceVarP(&cfg.Languages, "language", "l", nil, "Restrict to languages (repeatable)")
	cmd.Flags().StringVar(&cfg.SearchBase, "search-base", "", "Extra code-search qualifiers")
	cmd.Flags().IntVarP(&cfg.TargetAnalysisCount, "target", "t", 0, "Repositories to analyze (overrides the configuration)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream phase changes after submitting")

	return cmd
}

func submitSearch(api *APIClient, query string, cfg SearchConfig) (*SubmitResponse, error) {
	resp, err := api.Post("/search", SubmitRequest{
		Query:           query,
		Config:          cfg,
		ConfigurationID: cfg.ConfigurationID,
	})
	if err != nil {
		return nil, err
	}
	var out SubmitResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StatusCmd shows one request, or lists requests when no id is given.
func StatusCmd() *cobra.Command {
	var (
		limit  int
		cursor string
		phase  string
	)

	cmd := &cobra.Command{
		Use:   "status [request-id]",
		Short: "Show search request status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return runStatus(api, args[0], cmd.OutOrStdout(), outputJSON)
			}
			return runList(api, listOptions{Limit: limit, Cursor: cursor, Status: phase}, cmd.OutOrStdout(), outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of requests")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.Flags().StringVar(&phase, "phase", "", "Only list requests in this phase (e.g. hitl, completed, error)")

	return cmd
}

type listOptions struct {
	Limit  int
	Cursor string
	Status string
}

func runStatus(api *APIClient, id string, w io.Writer, outputJSON bool) error {
	resp, err := api.Get("/requests/" + url.PathEscape(id))
	if err != nil {
		return err
	}
	var req RequestView
	if err := resp.Decode(&req); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(w, req)
	}

	fmt.Fprintf(w, "%s %s\n", bold.Sprint(req.ID), phaseColor(req.Status).Sprint(req.Status))
	fmt.Fprintf(w, "  Query:   %s\n", req.Query)
	if req.Config.ConfigurationID != "" {
		fmt.Fprintf(w, "  Config:  %s (target %d)\n", req.Config.ConfigurationID, req.Config.TargetAnalysisCount)
	}
	fmt.Fprintf(w, "  Created: %s\n", req.CreatedAt)
	fmt.Fprintf(w, "  Updated: %s\n", req.UpdatedAt)
	if req.FailureMessage != "" {
		fmt.Fprintf(w, "  Failure: %s\n", red.Sprint(req.FailureMessage))
	}
	return nil
}

func runList(api *APIClient, opts listOptions, w io.Writer, outputJSON bool) error {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(opts.Limit))
	if opts.Cursor != "" {
		params.Set("cursor", opts.Cursor)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	resp, err := api.Get("/requests?" + params.Encode())
	if err != nil {
		return err
	}
	var page RequestList
	if err := resp.Decode(&page); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(w, page)
	}

	if len(page.Items) == 0 {
		if opts.Status != "" {
			fmt.Fprintf(w, "No search requests in %s\n", opts.Status)
			return nil
		}
		fmt.Fprintln(w, "No search requests found")
		return nil
	}
	for _, req := range page.Items {
		fmt.Fprintf(w, "%s  %-12s %s\n", req.ID, phaseColor(req.Status).Sprint(req.Status), truncate(req.Query, 60))
	}
	if page.HasMore && page.Cursor != "" {
		hint := "--cursor " + page.Cursor
		if opts.Status != "" {
			hint = "--phase " + opts.Status + " " + hint
		}
		fmt.Fprintf(w, "\nMore results available. Use %s\n", hint)
	}
	return nil
}
