// Package cli holds what reposcout and reposcoutd share: a machine-readable
// description of the command tree, printed by --help-json, for agents and
// scripts that drive the CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	helpJSONFlag = "help-json"

	// envAnnotation records the environment variable a flag falls back to.
	envAnnotation = "reposcout_env"
)

type Flag struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Env         string `json:"env,omitempty"`
	Required    bool   `json:"required"`
	Inherited   bool   `json:"inherited,omitempty"`
}

// Arg is a positional argument taken from the command's Use line:
// <name> is required, [name] optional, and a trailing ... repeats.
type Arg struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Repeated bool   `json:"repeated,omitempty"`
}

type Command struct {
	Path        string    `json:"path"`
	Aliases     []string  `json:"aliases,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Long        string    `json:"long,omitempty"`
	Example     string    `json:"example,omitempty"`
	Runnable    bool      `json:"runnable"`
	Args        []Arg     `json:"args,omitempty"`
	Flags       []Flag    `json:"flags,omitempty"`
	Subcommands []Command `json:"subcommands,omitempty"`
}

// BindEnv marks flag name on fs as falling back to env. The flag must exist.
func BindEnv(fs *pflag.FlagSet, name, env string) {
	_ = fs.SetAnnotation(name, envAnnotation, []string{env})
}

// Describe walks cmd and its visible subcommands.
func Describe(cmd *cobra.Command) Command {
	d := Command{
		Path:     cmd.CommandPath(),
		Aliases:  cmd.Aliases,
		Summary:  cmd.Short,
		Long:     cmd.Long,
		Example:  cmd.Example,
		Runnable: cmd.Runnable(),
		Args:     parseArgs(cmd.Use),
		Flags:    describeFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		d.Subcommands = append(d.Subcommands, Describe(sub))
	}
	return d
}

func parseArgs(use string) []Arg {
	fields := strings.Fields(use)
	if len(fields) < 2 {
		return nil
	}
	var args []Arg
	for _, f := range fields[1:] {
		a := Arg{Repeated: strings.HasSuffix(f, "...")}
		f = strings.TrimSuffix(f, "...")
		switch {
		case strings.HasPrefix(f, "<") && strings.HasSuffix(f, ">"):
			a.Name, a.Required = f[1:len(f)-1], true
		case strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]"):
			a.Name = f[1 : len(f)-1]
		default:
			continue
		}
		if a.Name == "flags" {
			continue
		}
		args = append(args, a)
	}
	return args
}

func describeFlags(cmd *cobra.Command) []Flag {
	var flags []Flag
	add := func(inherited bool) func(*pflag.Flag) {
		return func(f *pflag.Flag) {
			if f.Hidden || f.Name == helpJSONFlag || f.Name == "help" {
				return
			}
			_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
			flag := Flag{
				Name:        f.Name,
				Shorthand:   f.Shorthand,
				Type:        f.Value.Type(),
				Default:     f.DefValue,
				Description: f.Usage,
				Required:    required,
				Inherited:   inherited,
			}
			if env := f.Annotations[envAnnotation]; len(env) > 0 {
				flag.Env = env[0]
			}
			flags = append(flags, flag)
		}
	}
	cmd.LocalFlags().VisitAll(add(false))
	cmd.InheritedFlags().VisitAll(add(true))
	return flags
}

// AddHelpJSONFlag registers --help-json on root and everything below it.
func AddHelpJSONFlag(root *cobra.Command) {
	root.PersistentFlags().Bool(helpJSONFlag, false, "Describe the command as JSON and exit")
}

// HandleHelpJSON writes the description of the command args address when
// args contain --help-json, and reports whether it did. Run it before
// Execute so argument validation never sees the flag.
func HandleHelpJSON(root *cobra.Command, args []string, w io.Writer) (bool, error) {
	for i, arg := range args {
		if arg != "--"+helpJSONFlag {
			continue
		}
		out, err := json.MarshalIndent(Describe(resolve(root, args[:i])), "", "  ")
		if err != nil {
			return true, fmt.Errorf("describe command: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return true, err
	}
	return false, nil
}

// resolve follows command names through args, skipping leading flags, and
// stops at the first word that is not a subcommand.
func resolve(cmd *cobra.Command, args []string) *cobra.Command {
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		args = args[1:]
	}
	if len(args) == 0 {
		return cmd
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return resolve(sub, args[1:])
		}
	}
	return cmd
}

// Execute runs root with args, answering --help-json first. It returns the
// process exit code.
func Execute(root *cobra.Command, args []string, stdout, stderr io.Writer) int {
	handled, err := HandleHelpJSON(root, args, stdout)
	if !handled {
		root.SetArgs(args)
		root.SetOut(stdout)
		root.SetErr(stderr)
		root.SilenceErrors = true
		_, err = root.ExecuteC()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
