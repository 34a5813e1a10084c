package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"grokrelay/internal/browser"
	"grokrelay/internal/observe"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <page.html>",
	Short: "Show what the configured selectors find in a saved chat page",
	Long: `Reads a page saved from the browser and reports the newest message
bubble and its generation markers, using page.selectors from the config.
Useful for checking selectors after the chat site changes its markup.

The file is parsed as HTML, so DOM built by script that a parser would
restructure may read differently than in the live page.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		src := observe.NewHTMLSource(func(context.Context) (string, error) {
			data, err := os.ReadFile(path)
			return string(data), err
		}, browser.SelectorsFrom(cfg).Selectors)

		b, err := src.LastBubble(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if b == nil {
			fmt.Fprintln(out, "no message bubbles found")
			return nil
		}
		fmt.Fprintf(out, "container:  %t\n", b.HasContainer)
		fmt.Fprintf(out, "spinner:    %t\n", b.Spinner)
		fmt.Fprintf(out, "typing:     %t\n", b.Typing)
		fmt.Fprintf(out, "share:      %t\n", b.ShareButton)
		fmt.Fprintf(out, "generating: %t\n", b.Generating())
		fmt.Fprintf(out, "paragraphs: %d\n", len(b.Texts))
		if text := b.Text(); text != "" {
			fmt.Fprintf(out, "text:\n%s\n", indent(text))
		}
		return nil
	},
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
