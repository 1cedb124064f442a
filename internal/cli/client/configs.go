package client

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"
)

// ConfigurationView is a named search configuration.
type ConfigurationView struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Version             int    `json:"version"`
	TargetAnalysisCount int    `json:"target_analysis_count"`
	IsDefault           bool   `json:"is_default"`
	CreatedAt           string `json:"created_at"`
	UpdatedAt           string `json:"updated_at"`
}

// ConfigurationBody is the body of configuration create and update.
type ConfigurationBody struct {
	Name                string `json:"name"`
	TargetAnalysisCount int    `json:"target_analysis_count"`
	IsDefault           bool   `json:"is_default"`
}

// ConfigsCmd manages search configurations over the API.
func ConfigsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Manage search configurations",
	}

	cmd.AddCommand(configsListCmd())
	cmd.AddCommand(configsCreateCmd())
	cmd.AddCommand(configsUpdateCmd())
	cmd.AddCommand(configsDeleteCmd())

	return cmd
}

func configsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List search configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := api.Get("/configurations")
			if err != nil {
				return err
			}
			var configs []ConfigurationView
			if err := resp.Decode(&configs); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), configs)
			}
			printConfigurations(cmd.OutOrStdout(), configs)
			return nil
		},
	}
}

func printConfigurations(w io.Writer, configs []ConfigurationView) {
	if len(configs) == 0 {
		fmt.Fprintln(w, "No configurations found")
		return
	}
	for _, c := range configs {
		line := fmt.Sprintf("%s  %s v%d  target %d", c.ID, bold.Sprint(c.Name), c.Version, c.TargetAnalysisCount)
		if c.IsDefault {
			line += "  " + green.Sprint("default")
		}
		fmt.Fprintln(w, line)
	}
}

func configurationFlags(cmd *cobra.Command, body *ConfigurationBody) {
	cmd.Flags().IntVarP(&body.TargetAnalysisCount, "target", "t", 20, "Number of repositories to analyze")
	cmd.Flags().BoolVar(&body.IsDefault, "default", false, "Make this the default configuration")
}

func configsCreateCmd() *cobra.Command {
	var body ConfigurationBody

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a search configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body.Name = args[0]
			return saveConfiguration(cmd, func(api *APIClient) (*APIResponse, error) {
				return api.Post("/configurations", body)
			})
		},
	}
	configurationFlags(cmd, &body)

	return cmd
}

func configsUpdateCmd() *cobra.Command {
	var body ConfigurationBody

	cmd := &cobra.Command{
		Use:   "update <id> <name>",
		Short: "Replace a search configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body.Name = args[1]
			return saveConfiguration(cmd, func(api *APIClient) (*APIResponse, error) {
				return api.Put("/configurations/"+url.PathEscape(args[0]), body)
			})
		},
	}
	configurationFlags(cmd, &body)

	return cmd
}

func saveConfiguration(cmd *cobra.Command, send func(api *APIClient) (*APIResponse, error)) error {
	outputJSON, _ := cmd.Flags().GetBool("output")
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}
	resp, err := send(api)
	if err != nil {
		return err
	}
	var c ConfigurationView
	if err := resp.Decode(&c); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), c)
	}
	printConfigurations(cmd.OutOrStdout(), []ConfigurationView{c})
	return nil
}

func configsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a search configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/configurations/" + url.PathEscape(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration %s deleted\n", args[0])
			return nil
		},
	}
}
