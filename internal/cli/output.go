package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/macropower/rulepool/pkg/yaml"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

var outputFormats = []string{outputYAML, outputJSON}

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", outputYAML, fmt.Sprintf("Output format, one of: %s", outputFormats))

	err := cmd.RegisterFlagCompletionFunc("output",
		cobra.FixedCompletions(outputFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

// printData writes v to the command's stdout as YAML or JSON, highlighted
// when stdout is a terminal.
func printData(cmd *cobra.Command, v any, format string) error {
	var (
		b   []byte
		err error
	)

	switch format {
	case outputJSON:
		b, err = json.MarshalIndent(v, "", "  ")
		b = append(b, '\n')
	case outputYAML, "":
		format = outputYAML
		b, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("unknown output format %q, one of: %s", format, outputFormats)
	}
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	w := cmd.OutOrStdout()

	err = yaml.Highlight(w, b, format, writerIsTerminal(w))
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}

// printMarkdown writes md to w, rendered for the terminal when w is one.
func printMarkdown(w io.Writer, md string) error {
	if !writerIsTerminal(w) {
		_, err := io.WriteString(w, md)
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}

		return nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}

	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}

	_, err = io.WriteString(w, out)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}

// printLines writes one line per entry of lines.
func printLines(w io.Writer, lines ...string) {
	for _, l := range lines {
		mustN(fmt.Fprintln(w, l))
	}
}
