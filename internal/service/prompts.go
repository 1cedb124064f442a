package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/openai"
)

// queryCount is how many queries sampling and expansion search with,
// the original query included.
const queryCount = 3

var queriesSchema = openai.MustCompileSchema("search_queries", `{
	"type": "object",
	"required": ["queries"],
	"properties": {
		"queries": {
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		}
	}
}`)

type queriesOutput struct {
	Queries []string `json:"queries"`
}

const querySystemPrompt = `You write GitHub repository search queries.
Return short keyword queries without qualifiers such as stars: or language:.`

func buildSamplingPrompt(userQuery string) string {
	return fmt.Sprintf("Write %d diverse search queries that would find repositories for this need, each taking a different angle:\n%s\n",
		queryCount-1, userQuery)
}

func buildExpansionPrompt(userQuery string, approved []domain.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user is looking for: %s\n\nThey approved these repositories as good examples:\n", userQuery)
	for _, c := range approved {
		fmt.Fprintf(&b, "- %s", c.FullName)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		if len(c.Topics) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(c.Topics, ", "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nWrite %d refined search queries that would find more repositories like the approved ones.\n", queryCount-1)
	return b.String()
}

// withOriginal puts the original query first, drops blanks and duplicates,
// and caps the list at queryCount.
func withOriginal(original string, generated []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, queryCount)
	for _, q := range append([]string{original}, generated...) {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == queryCount {
			break
		}
	}
	return out
}
