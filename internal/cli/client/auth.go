package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// AuthCmd groups the commands that manage the daemon endpoint and key.
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the daemon endpoint and API key",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd checks a key against the daemon and stores it in the profile.
func AuthLoginCmd() *cobra.Command {
	var (
		apiKey     string
		apiURL     string
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API key for a reposcout daemon",
		Long: `Stores the daemon URL and API key in the user profile. The key is tried
against the daemon first; pass --skip-verify to save it while the daemon is down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				key, err := promptKey(cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
				apiKey = key
			}
			return runAuthLogin(cmd.OutOrStdout(), apiKey, apiURL, !skipVerify)
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "API key configured on the daemon (prompted when empty)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "Daemon base URL")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Save without contacting the daemon")

	return cmd
}

// AuthLogoutCmd drops the stored key. Search defaults are kept.
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout())
		},
	}
}

// AuthStatusCmd reports the resolved endpoint and whether the daemon answers.
func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which daemon and key the CLI will use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")
			return runAuthStatus(cmd.OutOrStdout(), flagKey, flagURL, outputJSON)
		},
	}
}

func promptKey(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "API key: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runAuthLogin(w io.Writer, apiKey, apiURL string, verify bool) error {
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	if verify {
		api, err := NewAPIClientWithConfig(apiKey, apiURL)
		if err != nil {
			return err
		}
		// any authenticated route will do; /health is open and proves nothing
		if _, err := api.Get("/requests?limit=1"); err != nil {
			if statusOf(err) == http.StatusUnauthorized {
				return fmt.Errorf("the daemon at %s rejected this key", apiURL)
			}
			return fmt.Errorf("could not verify key against %s: %w", apiURL, err)
		}
	}

	p, err := LoadProfile()
	if err != nil {
		return err
	}
	p.APIKey = apiKey
	p.APIURL = apiURL
	if err := SaveProfile(p); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintf(w, "Logged in to %s\n", bold.Sprint(apiURL))
	return nil
}

func runAuthLogout(w io.Writer) error {
	p, err := LoadProfile()
	if err != nil {
		return err
	}
	p.APIKey = ""
	p.APIURL = ""
	if err := SaveProfile(p); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	fmt.Fprintln(w, "Logged out")
	return nil
}

type authStatus struct {
	APIURL    string `json:"api_url"`
	URLSource Source `json:"url_source"`
	APIKey    string `json:"api_key,omitempty"`
	KeySource Source `json:"key_source"`
	Reachable bool   `json:"reachable"`
	Accepted  bool   `json:"accepted"`
	Problem   string `json:"problem,omitempty"`
}

func runAuthStatus(w io.Writer, flagKey, flagURL string, outputJSON bool) error {
	p, err := LoadProfile()
	if err != nil {
		return err
	}
	e := ResolveEndpoint(flagKey, flagURL, p)
	st := probeEndpoint(e)

	if outputJSON {
		return printJSON(w, st)
	}

	fmt.Fprintf(w, "Daemon:  %s (%s)\n", st.APIURL, st.URLSource)
	if st.KeySource == SourceNone {
		fmt.Fprintln(w, "API key: none")
	} else {
		fmt.Fprintf(w, "API key: %s (%s)\n", st.APIKey, st.KeySource)
	}
	switch {
	case !st.Reachable:
		fmt.Fprintf(w, "Status:  %s %s\n", red.Sprint("unreachable"), faint.Sprint(st.Problem))
	case !st.Accepted:
		fmt.Fprintf(w, "Status:  %s\n", red.Sprint("key rejected"))
		fmt.Fprintln(w, "Run 'reposcout auth login' to store a valid key")
	default:
		fmt.Fprintf(w, "Status:  %s\n", green.Sprint("ok"))
	}
	return nil
}

func probeEndpoint(e Endpoint) authStatus {
	st := authStatus{
		APIURL:    e.APIURL,
		URLSource: e.URLSource,
		APIKey:    maskAPIKey(e.APIKey),
		KeySource: e.KeySource,
	}
	api, err := NewAPIClientWithConfig(e.APIKey, e.APIURL)
	if err != nil {
		st.Problem = err.Error()
		return st
	}
	if _, err := api.Get("/health"); err != nil {
		st.Problem = err.Error()
		return st
	}
	st.Reachable = true

	_, err = api.Get("/requests?limit=1")
	switch {
	case err == nil:
		st.Accepted = true
	case statusOf(err) == http.StatusUnauthorized:
	default:
		st.Problem = err.Error()
	}
	return st
}

func maskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) < 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
