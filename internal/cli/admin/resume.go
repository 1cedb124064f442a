package admin

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloo-solutions/reposcout/internal/config"
	"github.com/spf13/cobra"
)

// ResumeCmd runs the post-review phases in the foreground for requests
// whose review is complete but whose continue never ran.
func ResumeCmd() *cobra.Command {
	var (
		limit  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "resume [request-id...]",
		Short: "Resume stalled search requests",
		Long: `Run the analysis, synthesis and review phases for requests that passed
human review but never continued. Without arguments every resumable request
is processed, oldest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(args, limit, dryRun)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of requests to resume")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List resumable requests without running them")

	return cmd
}

func runResume(ids []string, limit int, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a, err := buildApp(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer a.close()

	if len(ids) == 0 {
		ids, err = a.requests.ListResumable(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to list resumable requests: %w", err)
		}
	}
	if len(ids) == 0 {
		fmt.Println("No resumable requests")
		return nil
	}

	if dryRun {
		fmt.Println("Resumable requests:")
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
		return nil
	}

	var failed int
	for _, id := range ids {
		log.Printf("resume: continuing request %s", id)
		if err := a.engine.Continue(ctx, id); err != nil {
			failed++
			log.Printf("resume: request %s failed: %v", id, err)
			continue
		}
		fmt.Printf("Request %s completed\n", id)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed to resume", failed, len(ids))
	}
	return nil
}
