package extract

import (
	"fmt"
	"strings"
	"time"
)

// Report renders migrations as a markdown migration report.
func Report(migrations []*Migration, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString("# Mode Migration Report\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n\n", generatedAt.UTC().Format(time.RFC3339))

	for _, mig := range migrations {
		fmt.Fprintf(&b, "## %s Mode Migration\n\n", strings.ToUpper(string(mig.Type)))

		status := "❌ Failed"
		if mig.Success {
			status = "✅ Success"
		}

		fmt.Fprintf(&b, "**Status**: %s\n\n", status)

		if mig.Path != "" {
			fmt.Fprintf(&b, "**Configuration**: %s\n\n", mig.Path)
		}

		list(&b, "Original Files", mig.OriginalFiles)

		if len(mig.Mappings) > 0 {
			b.WriteString("**Content Mapping**:\n")

			for _, mp := range mig.Mappings {
				fmt.Fprintf(&b, "- **%s** (confidence: %.1f%%)\n", mp.Section, mp.Confidence*100)

				note := ""
				if !mp.Used && len(mp.Rules) > 0 {
					note = ", below threshold"
				}

				fmt.Fprintf(&b, "  - Mapped to %d rules%s\n", len(mp.Rules), note)
			}

			fmt.Fprintf(&b, "\n**Average Confidence**: %.1f%%\n\n", mig.Confidence*100)
		}

		if mig.Config != nil && mig.Config.RuleSelection != nil {
			fmt.Fprintf(&b, "**Included Rules**: %d\n\n", len(mig.Config.RuleSelection.ExplicitIncludes))
		}

		list(&b, "Errors", mig.Errors)
		list(&b, "Warnings", mig.Warnings)

		b.WriteString("---\n\n")
	}

	return b.String()
}

func list(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}

	fmt.Fprintf(b, "**%s**:\n", title)

	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}

	b.WriteString("\n")
}
