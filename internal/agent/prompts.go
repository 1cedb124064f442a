package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/openai"
)

// maxFileChars caps how much of any one file goes into a prompt.
const maxFileChars = 6000

// DefaultCorrection is what the monitor sends when rankings run too low.
const DefaultCorrection = "Your rankings so far are too conservative. Be less conservative: rank on how well the repository could serve the query, not only on an exact match."

var analysisSchema = openai.MustCompileSchema("repo_analysis", `{
	"type": "object",
	"required": ["ranking", "summary", "pros", "cons", "tech_stack"],
	"properties": {
		"ranking": {"type": "integer", "minimum": 1, "maximum": 100},
		"summary": {"type": "string", "minLength": 1},
		"pros": {"type": "array", "items": {"type": "string"}},
		"cons": {"type": "array", "items": {"type": "string"}},
		"tech_stack": {"type": "array", "items": {"type": "string"}}
	}
}`)

var judgeSchema = openai.MustCompileSchema("judge_review", `{
	"type": "object",
	"required": ["approved", "rejected"],
	"properties": {
		"approved": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "reasoning"],
				"properties": {"id": {"type": "string"}, "reasoning": {"type": "string"}}
			}
		},
		"rejected": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "reasoning", "instruction"],
				"properties": {
					"id": {"type": "string"},
					"reasoning": {"type": "string"},
					"instruction": {"type": "string"}
				}
			}
		}
	}
}`)

const analystSystemPrompt = `You are a senior engineer evaluating an open source repository for a user's need.
Rank how relevant and useful the repository is for the query on a 1-100 scale.`

const judgeSystemPrompt = `You are a strict reviewer checking a shortlist of repository analyses against the user's query.
Approve analyses that are accurate and relevant. Reject the rest and say what a deeper analysis should look at.`

type analysisOutput struct {
	Ranking   int      `json:"ranking"`
	Summary   string   `json:"summary"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
	TechStack []string `json:"tech_stack"`
}

type repoContext struct {
	meta      *domain.RepoMetadata
	readme    string
	manifests map[string]string
}

func buildAnalysisPrompt(userQuery string, rc repoContext, correction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n\n", userQuery)

	m := rc.meta
	fmt.Fprintf(&b, "Repository: %s (%s)\n", m.FullName, m.URL)
	fmt.Fprintf(&b, "Stars: %d, forks: %d, language: %s\n", m.Stars, m.Forks, orNone(m.Language))
	if m.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", m.Description)
	}
	if len(m.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(m.Topics, ", "))
	}
	if m.License != "" {
		fmt.Fprintf(&b, "License: %s\n", m.License)
	}
	if m.Archived {
		b.WriteString("The repository is archived.\n")
	}

	if rc.readme != "" {
		fmt.Fprintf(&b, "\nREADME.md:\n%s\n", truncate(rc.readme, maxFileChars))
	} else {
		b.WriteString("\nREADME.md: absent\n")
	}

	if len(rc.manifests) == 0 {
		b.WriteString("\nNo package manifest found.\n")
	} else {
		names := make([]string, 0, len(rc.manifests))
		for name := range rc.manifests {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "\n%s:\n%s\n", name, truncate(rc.manifests[name], maxFileChars))
		}
	}

	if correction != "" {
		fmt.Fprintf(&b, "\nReviewer correction: %s\n", correction)
	}
	return b.String()
}

func buildEnrichmentPrompt(userQuery string, prior *domain.RepoAnalysisResult, e *domain.Enrichment, rc repoContext) string {
	var b strings.Builder
	b.WriteString(buildAnalysisPrompt(userQuery, rc, ""))
	fmt.Fprintf(&b, "\nA previous analysis ranked this repository %d with summary:\n%s\n", prior.Ranking, prior.Summary)
	fmt.Fprintf(&b, "\nIt was rejected because: %s\n", e.Reasoning)
	if e.Instruction != "" {
		fmt.Fprintf(&b, "Redo the analysis and follow this instruction: %s\n", e.Instruction)
	}
	return b.String()
}

type judgeCandidate struct {
	ID        string   `json:"id"`
	RepoURL   string   `json:"repo_url"`
	Ranking   int      `json:"ranking"`
	Stars     int      `json:"stars"`
	Summary   string   `json:"summary"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
	TechStack []string `json:"tech_stack"`
}

func buildJudgePrompt(userQuery string, results []*domain.RepoAnalysisResult) (string, error) {
	candidates := make([]judgeCandidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, judgeCandidate{
			ID:        r.ID,
			RepoURL:   r.RepoURL,
			Ranking:   r.Ranking,
			Stars:     r.Stars,
			Summary:   r.Summary,
			Pros:      r.Pros,
			Cons:      r.Cons,
			TechStack: r.TechStack,
		})
	}
	payload, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal judge candidates: %w", err)
	}
	return fmt.Sprintf("User query: %s\n\nAnalyses (refer to them by id):\n%s\n", userQuery, payload), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
