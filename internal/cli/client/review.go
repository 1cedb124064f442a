package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// PendingReview is a preview candidate awaiting a human verdict.
type PendingReview struct {
	ID               string          `json:"id"`
	RepoSnapshotJSON json.RawMessage `json:"repoSnapshotJson"`
}

// RepoSnapshot is the candidate captured for review.
type RepoSnapshot struct {
	URL         string `json:"url"`
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Stars       int    `json:"stars"`
	Language    string `json:"language,omitempty"`
}

// ReviewBody is the body of POST /hitl/{id}/review.
type ReviewBody struct {
	UserVerdict string `json:"userVerdict"`
	Rationale   string `json:"rationale"`
}

// ReviewCmd lists pending review items of a request and submits verdicts.
func ReviewCmd() *cobra.Command {
	var (
		approve     []string
		reject      []string
		rationale   string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "review <request-id>",
		Short: "Review the preview of a search request",
		Long: `Without flags, lists the preview repositories waiting for a verdict.
Use --approve/--reject with review item ids, or -i to decide one by one.
The search continues once the last item is reviewed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if len(approve) > 0 || len(reject) > 0 {
				return submitVerdicts(api, approve, reject, rationale, cmd.OutOrStdout())
			}

			pending, err := listPending(api, args[0])
			if err != nil {
				return err
			}
			if interactive {
				return reviewInteractively(api, pending, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), pending)
			}
			printPending(cmd.OutOrStdout(), pending)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&approve, "approve", nil, "Review item ids to approve")
	cmd.Flags().StringSliceVar(&reject, "reject", nil, "Review item ids to reject")
	cmd.Flags().StringVar(&rationale, "rationale", "", "Rationale recorded with the verdicts")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for each pending item")

	return cmd
}

func listPending(api *APIClient, requestID string) ([]PendingReview, error) {
	resp, err := api.Get("/hitl/" + url.PathEscape(requestID))
	if err != nil {
		return nil, err
	}
	var pending []PendingReview
	if err := resp.Decode(&pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func snapshotOf(item PendingReview) RepoSnapshot {
	var snap RepoSnapshot
	_ = json.Unmarshal(item.RepoSnapshotJSON, &snap)
	if snap.FullName == "" {
		snap.FullName = snap.URL
	}
	return snap
}

func printPending(w io.Writer, pending []PendingReview) {
	if len(pending) == 0 {
		fmt.Fprintln(w, "Nothing waiting for review")
		return
	}
	for _, item := range pending {
		snap := snapshotOf(item)
		fmt.Fprintf(w, "%s  %s  %s\n", faint.Sprint(item.ID), bold.Sprint(snap.FullName), yellow.Sprintf("★ %d", snap.Stars))
		if snap.Description != "" {
			fmt.Fprintf(w, "    %s\n", truncate(snap.Description, 100))
		}
	}
}

func submitVerdict(api *APIClient, itemID, verdict, rationale string) (string, error) {
	resp, err := api.Post("/hitl/"+url.PathEscape(itemID)+"/review", ReviewBody{UserVerdict: verdict, Rationale: rationale})
	if err != nil {
		return "", err
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func submitVerdicts(api *APIClient, approve, reject []string, rationale string, w io.Writer) error {
	submit := func(id, verdict string) error {
		msg, err := submitVerdict(api, id, verdict, rationale)
		if err != nil {
			return fmt.Errorf("review %s: %w", id, err)
		}
		fmt.Fprintf(w, "%s %s: %s\n", verdictColor(verdict).Sprint(verdict), id, msg)
		return nil
	}
	for _, id := range approve {
		if err := submit(id, "approve"); err != nil {
			return err
		}
	}
	for _, id := range reject {
		if err := submit(id, "reject"); err != nil {
			return err
		}
	}
	return nil
}

func reviewInteractively(api *APIClient, pending []PendingReview, in io.Reader, w io.Writer) error {
	if len(pending) == 0 {
		fmt.Fprintln(w, "Nothing waiting for review")
		return nil
	}
	reader := bufio.NewReader(in)
	for _, item := range pending {
		snap := snapshotOf(item)
		fmt.Fprintf(w, "\n%s  %s\n", bold.Sprint(snap.FullName), yellow.Sprintf("★ %d", snap.Stars))
		if snap.Description != "" {
			fmt.Fprintf(w, "  %s\n", snap.Description)
		}
		if snap.URL != "" {
			fmt.Fprintf(w, "  %s\n", faint.Sprint(snap.URL))
		}

		verdict, err := promptVerdict(reader, w)
		if err != nil {
			return err
		}
		fmt.Fprint(w, "Rationale (optional): ")
		line, _ := reader.ReadString('\n')

		msg, err := submitVerdict(api, item.ID, verdict, strings.TrimSpace(line))
		if err != nil {
			return fmt.Errorf("review %s: %w", item.ID, err)
		}
		fmt.Fprintf(w, "%s %s\n", verdictColor(verdict).Sprint(verdict), msg)
	}
	return nil
}

func promptVerdict(reader *bufio.Reader, w io.Writer) (string, error) {
	for {
		fmt.Fprint(w, "Approve? [y/n]: ")
		line, err := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return "approve", nil
		case "n", "no":
			return "reject", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to read verdict: %w", err)
		}
	}
}
