package client

import (
	"github.com/cloo-solutions/reposcout/internal/cli"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the reposcout client command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reposcout",
		Short: "reposcout CLI - human-in-the-loop repository search",
		Long: `reposcout submits repository searches, collects your review of the preview
and shows the analyzed, judged results.

Environment variables:
  REPOSCOUT_API_KEY   API key for authentication
  REPOSCOUT_API_URL   API base URL (default: http://localhost:8080)

Flags beat environment variables, which beat the profile written by
'reposcout auth login' and 'reposcout defaults'.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.BindEnv(rootCmd.PersistentFlags(), "api-key", envAPIKey)
	cli.BindEnv(rootCmd.PersistentFlags(), "api-url", envAPIURL)
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(SearchCmd())
	rootCmd.AddCommand(StatusCmd())
	rootCmd.AddCommand(WatchCmd())
	rootCmd.AddCommand(ReviewCmd())
	rootCmd.AddCommand(ResultsCmd())
	rootCmd.AddCommand(ConfigsCmd())
	rootCmd.AddCommand(ChatCmd())
	rootCmd.AddCommand(CorrectCmd())
	rootCmd.AddCommand(AuthCmd())
	rootCmd.AddCommand(DefaultsCmd())

	return rootCmd
}
