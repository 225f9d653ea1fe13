package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/peerledger/internal/ui"
)

// helpRule recolors every match of re; paint receives the submatches.
type helpRule struct {
	re    *regexp.Regexp
	paint func(m []string) string
}

var helpRules = []helpRule{
	// Section headings: "Records:", "Ledger:", "Flags:".
	{regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`), func(m []string) string {
		return ui.RenderAccent(m[1])
	}},
	// Command names in a listing.
	{regexp.MustCompile(`(?m)^  (\S+)  `), func(m []string) string {
		return "  " + ui.RenderCommand(m[1]) + "  "
	}},
	// Flag value types.
	{regexp.MustCompile(`(--?\S+\s+)(string|int|duration|stringSlice|category)\b`), func(m []string) string {
		return m[1] + ui.RenderMuted(m[2])
	}},
	{regexp.MustCompile(`\(default [^)]*\)`), func(m []string) string {
		return ui.RenderMuted(m[0])
	}},
}

func colorizeHelpOutput(s string) string {
	for _, r := range helpRules {
		s = r.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.paint(r.re.FindStringSubmatch(match))
		})
	}
	return s
}

// colorizedHelpFunc renders usage through colorizeHelpOutput when stdout
// takes color.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		out := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}
