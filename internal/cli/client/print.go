package client

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	bold    = color.New(color.Bold)
	faint   = color.New(color.Faint)
	green   = color.New(color.FgGreen)
	red     = color.New(color.FgRed)
	yellow  = color.New(color.FgYellow)
	cyan    = color.New(color.FgCyan)
	magenta = color.New(color.FgMagenta)
)

// phaseColor picks the colour a request phase is printed in.
func phaseColor(phase string) *color.Color {
	switch phase {
	case "completed":
		return green
	case "error":
		return red
	case "hitl":
		return magenta
	case "pending":
		return faint
	default:
		return yellow
	}
}

func verdictColor(verdict string) *color.Color {
	switch verdict {
	case "approved", "approve", "completed":
		return green
	case "rejected", "reject", "failed":
		return red
	default:
		return cyan
	}
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
