package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/reposcout/internal/domain"
	"github.com/cloo-solutions/reposcout/internal/metrics"
	"github.com/cloo-solutions/reposcout/internal/openai"
)

// Rejection is a result the judge turned down, with what a re-analysis
// should look at.
type Rejection struct {
	ID          string
	Reasoning   string
	Instruction string
}

// JudgeVerdict partitions a shortlist. Approved keeps the order the results
// were passed in.
type JudgeVerdict struct {
	Approved   []*domain.RepoAnalysisResult
	Approvals  map[string]string
	Rejections []Rejection
}

type judgeOutput struct {
	Approved []struct {
		ID        string `json:"id"`
		Reasoning string `json:"reasoning"`
	} `json:"approved"`
	Rejected []struct {
		ID          string `json:"id"`
		Reasoning   string `json:"reasoning"`
		Instruction string `json:"instruction"`
	} `json:"rejected"`
}

// Judge reviews synthesized results against the user query.
type Judge struct {
	gen Generator
}

func NewJudge(gen Generator) *Judge {
	return &Judge{gen: gen}
}

// Review asks the model to approve or reject each result. Unknown ids in the
// output are ignored. An id listed as both approved and rejected is approved.
// A result the model omits is rejected.
func (j *Judge) Review(ctx context.Context, requestID, userQuery string, results []*domain.RepoAnalysisResult) (*JudgeVerdict, error) {
	v := &JudgeVerdict{Approvals: make(map[string]string)}
	if len(results) == 0 {
		return v, nil
	}

	prompt, err := buildJudgePrompt(userQuery, results)
	if err != nil {
		return nil, err
	}
	var out judgeOutput
	req := openai.StructuredRequest{Schema: judgeSchema, System: judgeSystemPrompt, Prompt: prompt}
	if err := j.gen.GenerateStructured(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("judge review for %s: %w", requestID, err)
	}

	approved := make(map[string]string, len(out.Approved))
	for _, a := range out.Approved {
		approved[strings.TrimSpace(a.ID)] = a.Reasoning
	}
	rejected := make(map[string]Rejection, len(out.Rejected))
	for _, r := range out.Rejected {
		id := strings.TrimSpace(r.ID)
		rejected[id] = Rejection{ID: id, Reasoning: r.Reasoning, Instruction: r.Instruction}
	}

	for _, res := range results {
		if reason, ok := approved[res.ID]; ok {
			v.Approved = append(v.Approved, res)
			v.Approvals[res.ID] = reason
			continue
		}
		if rej, ok := rejected[res.ID]; ok {
			v.Rejections = append(v.Rejections, rej)
			continue
		}
		log.Printf("judge: request %s result %s missing from verdict, rejecting", requestID, res.ID)
		v.Rejections = append(v.Rejections, Rejection{
			ID:          res.ID,
			Reasoning:   "not assessed by the judge",
			Instruction: "re-analyze against the user query",
		})
	}

	metrics.JudgeDecisions.WithLabelValues(string(domain.JudgeVerdictApproved)).Add(float64(len(v.Approved)))
	metrics.JudgeDecisions.WithLabelValues(string(domain.JudgeVerdictRejected)).Add(float64(len(v.Rejections)))
	return v, nil
}

// ApproveAll is the verdict used when the judge cannot be reached.
func ApproveAll(results []*domain.RepoAnalysisResult) *JudgeVerdict {
	v := &JudgeVerdict{Approved: results, Approvals: make(map[string]string, len(results))}
	for _, r := range results {
		v.Approvals[r.ID] = "judge unavailable; approved by default"
	}
	return v
}
