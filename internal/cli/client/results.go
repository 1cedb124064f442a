package client

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// ResultView is an analysis of one repository.
type ResultView struct {
	ID             string   `json:"id"`
	RepoURL        string   `json:"repo_url"`
	AnalystKey     string   `json:"analyst_key"`
	Status         string   `json:"status"`
	Ranking        int      `json:"ranking,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Pros           []string `json:"pros,omitempty"`
	Cons           []string `json:"cons,omitempty"`
	Stars          int      `json:"stars"`
	TechStack      []string `json:"tech_stack,omitempty"`
	Error          string   `json:"error,omitempty"`
	JudgeVerdict   string   `json:"judge_verdict,omitempty"`
	JudgeReasoning string   `json:"judge_reasoning,omitempty"`
}

// EnrichmentView is a deferred re-analysis of a rejected result.
type EnrichmentView struct {
	ID              string `json:"id"`
	RepoURL         string `json:"repo_url"`
	Status          string `json:"status"`
	Instruction     string `json:"instruction"`
	Error           string `json:"error,omitempty"`
	EnrichedSummary string `json:"enriched_summary,omitempty"`
	EnrichedRanking int    `json:"enriched_ranking,omitempty"`
}

// ResultsCmd shows the analyses of a request.
func ResultsCmd() *cobra.Command {
	var (
		all         bool
		enrichments bool
		report      bool
		download    string
	)

	cmd := &cobra.Command{
		Use:   "results <request-id>",
		Short: "Show analysis results of a search request",
		Long: `Shows judged results of a completed request, or every analysis so far while it
is still running. Running analyses print the agent key used by 'chat' and 'correct'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			id := url.PathEscape(args[0])

			switch {
			case report || download != "":
				return runReport(api, id, download, w, outputJSON)
			case enrichments:
				return runEnrichments(api, id, w, outputJSON)
			default:
				return runResults(api, id, all, w, outputJSON)
			}
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include analyses the judge has not ruled on")
	cmd.Flags().BoolVarP(&enrichments, "enrichments", "e", false, "Show re-analyses of rejected results")
	cmd.Flags().BoolVar(&report, "report", false, "Print the archived report URL")
	cmd.Flags().StringVarP(&download, "download", "d", "", "Download the archived report to this path")

	return cmd
}

func runResults(api *APIClient, id string, all bool, w io.Writer, outputJSON bool) error {
	path := "/results/" + id
	if all {
		path += "?all=true"
	}
	resp, err := api.Get(path)
	if err != nil {
		return err
	}
	var results []ResultView
	if err := resp.Decode(&results); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(w, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No results yet")
		return nil
	}

	for _, r := range results {
		header := fmt.Sprintf("%s  %s", bold.Sprint(r.RepoURL), yellow.Sprintf("★ %d", r.Stars))
		switch {
		case r.Status == "analyzing":
			fmt.Fprintf(w, "%s  %s  agent %s\n", header, cyan.Sprint("analyzing"), r.AnalystKey)
			continue
		case r.Status == "error":
			fmt.Fprintf(w, "%s  %s %s\n", header, red.Sprint("error"), r.Error)
			continue
		}
		verdict := r.JudgeVerdict
		if verdict == "" {
			verdict = "unjudged"
		}
		fmt.Fprintf(w, "%s  ranking %d  %s\n", header, r.Ranking, verdictColor(verdict).Sprint(verdict))
		if r.Summary != "" {
			fmt.Fprintf(w, "    %s\n", r.Summary)
		}
		if len(r.TechStack) > 0 {
			fmt.Fprintf(w, "    stack: %s\n", strings.Join(r.TechStack, ", "))
		}
		for _, p := range r.Pros {
			fmt.Fprintf(w, "    %s %s\n", green.Sprint("+"), p)
		}
		for _, c := range r.Cons {
			fmt.Fprintf(w, "    %s %s\n", red.Sprint("-"), c)
		}
		if r.JudgeReasoning != "" {
			fmt.Fprintf(w, "    %s\n", faint.Sprint(r.JudgeReasoning))
		}
	}
	return nil
}

func runEnrichments(api *APIClient, id string, w io.Writer, outputJSON bool) error {
	resp, err := api.Get("/enrichments/" + id)
	if err != nil {
		return err
	}
	var items []EnrichmentView
	if err := resp.Decode(&items); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(w, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No enrichments")
		return nil
	}
	for _, e := range items {
		fmt.Fprintf(w, "%s  %s\n", bold.Sprint(e.RepoURL), verdictColor(e.Status).Sprint(e.Status))
		fmt.Fprintf(w, "    instruction: %s\n", e.Instruction)
		if e.EnrichedSummary != "" {
			fmt.Fprintf(w, "    ranking %d: %s\n", e.EnrichedRanking, e.EnrichedSummary)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "    %s\n", red.Sprint(e.Error))
		}
	}
	return nil
}

func runReport(api *APIClient, id, download string, w io.Writer, outputJSON bool) error {
	resp, err := api.Get("/results/" + id + "/report")
	if err != nil {
		return err
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := resp.Decode(&out); err != nil {
		return err
	}

	if download == "" {
		if outputJSON {
			return printJSON(w, out)
		}
		fmt.Fprintln(w, out.URL)
		return nil
	}

	if err := api.DownloadTo(out.URL, download); err != nil {
		return err
	}
	fmt.Fprintf(w, "Report saved to %s\n", download)
	return nil
}
