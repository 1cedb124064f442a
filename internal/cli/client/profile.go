package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// SearchDefaults are applied to `reposcout search` for every flag the user
// did not pass explicitly.
type SearchDefaults struct {
	MinStars        int      `json:"min_stars,omitempty"`
	Languages       []string `json:"languages,omitempty"`
	ConfigurationID string   `json:"configuration_id,omitempty"`
}

func (d SearchDefaults) empty() bool {
	return d.MinStars == 0 && len(d.Languages) == 0 && d.ConfigurationID == ""
}

// Profile is the per-user client state kept in the user config directory.
type Profile struct {
	APIURL string         `json:"api_url,omitempty"`
	APIKey string         `json:"api_key,omitempty"`
	Search SearchDefaults `json:"search,omitempty"`
}

func (p *Profile) empty() bool {
	return p.APIURL == "" && p.APIKey == "" && p.Search.empty()
}

// profileDirFunc is swapped in tests.
var profileDirFunc = func() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "reposcout"), nil
}

func profilePath() (string, error) {
	dir, err := profileDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// LoadProfile returns an empty profile when none has been saved yet.
func LoadProfile() (*Profile, error) {
	path, err := profilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	return &p, nil
}

// SaveProfile writes the profile with owner-only permissions, or removes the
// file once nothing is left in it.
func SaveProfile(p *Profile) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	if p == nil || p.empty() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove profile: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	// write then rename so a crash never leaves a truncated key behind
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// Source names where an endpoint setting came from.
type Source string

const (
	SourceFlag    Source = "flag"
	SourceEnv     Source = "env"
	SourceProfile Source = "profile"
	SourceDefault Source = "default"
	SourceNone    Source = "none"
)

// Endpoint is the daemon the client talks to. The key and the URL are
// resolved independently: flag, then env, then profile.
type Endpoint struct {
	APIURL    string
	URLSource Source
	APIKey    string
	KeySource Source
}

func ResolveEndpoint(flagKey, flagURL string, p *Profile) Endpoint {
	if p == nil {
		p = &Profile{}
	}
	e := Endpoint{}
	e.APIKey, e.KeySource = firstSet(flagKey, os.Getenv(envAPIKey), p.APIKey)
	e.APIURL, e.URLSource = firstSet(flagURL, os.Getenv(envAPIURL), p.APIURL)
	if e.URLSource == SourceNone {
		e.APIURL, e.URLSource = defaultAPIURL, SourceDefault
	}
	return e
}

func firstSet(flag, env, profile string) (string, Source) {
	switch {
	case flag != "":
		return flag, SourceFlag
	case env != "":
		return env, SourceEnv
	case profile != "":
		return profile, SourceProfile
	}
	return "", SourceNone
}

// applySearchDefaults fills cfg from the profile for flags left unset.
func applySearchDefaults(cmd *cobra.Command, cfg *SearchConfig, d SearchDefaults) {
	flags := cmd.Flags()
	if !flags.Changed("min-stars") && d.MinStars > 0 {
		cfg.MinStars = d.MinStars
	}
	if !flags.Changed("language") && len(d.Languages) > 0 {
		cfg.Languages = append([]string(nil), d.Languages...)
	}
	if !flags.Changed("configuration") && d.ConfigurationID != "" {
		cfg.ConfigurationID = d.ConfigurationID
	}
}

// DefaultsCmd shows or edits the search defaults stored in the profile.
func DefaultsCmd() *cobra.Command {
	var (
		next  SearchDefaults
		reset bool
	)

	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Show or set default search filters",
		Long: `Without flags, prints the stored defaults. Flags replace the matching
default; --clear drops all of them. Explicit flags on 'reposcout search'
always win over these defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			p, err := LoadProfile()
			if err != nil {
				return err
			}

			changed := false
			if reset {
				p.Search = SearchDefaults{}
				changed = true
			}
			if cmd.Flags().Changed("min-stars") {
				p.Search.MinStars = next.MinStars
				changed = true
			}
			if cmd.Flags().Changed("language") {
				p.Search.Languages = next.Languages
				changed = true
			}
			if cmd.Flags().Changed("configuration") {
				p.Search.ConfigurationID = next.ConfigurationID
				changed = true
			}
			if changed {
				if err := SaveProfile(p); err != nil {
					return err
				}
			}
			return printDefaults(cmd.OutOrStdout(), p.Search, outputJSON)
		},
	}

	cmd.Flags().IntVar(&next.MinStars, "min-stars", 0, "Default minimum star count (0 clears)")
	cmd.Flags().StringSliceVarP(&next.Languages, "language", "l", nil, "Default languages (empty clears)")
	cmd.Flags().StringVarP(&next.ConfigurationID, "configuration", "c", "", "Default search configuration id")
	cmd.Flags().BoolVar(&reset, "clear", false, "Remove all search defaults")

	return cmd
}

func printDefaults(w io.Writer, d SearchDefaults, outputJSON bool) error {
	if outputJSON {
		return printJSON(w, d)
	}
	if d.empty() {
		fmt.Fprintln(w, "No search defaults set")
		return nil
	}
	if d.MinStars > 0 {
		fmt.Fprintf(w, "Min stars:     %d\n", d.MinStars)
	}
	if len(d.Languages) > 0 {
		fmt.Fprintf(w, "Languages:     %s\n", strings.Join(d.Languages, ", "))
	}
	if d.ConfigurationID != "" {
		fmt.Fprintf(w, "Configuration: %s\n", d.ConfigurationID)
	}
	return nil
}
