package generate

import (
	"fmt"
	"strings"

	"docpipe/pkg/models"
)

// RenderMinutes writes the meeting-minutes artifact as Markdown.
func RenderMinutes(summary *models.MeetingSummary, sourceName string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Meeting Minutes\n\n_Source: %s_\n\n", sourceName)

	b.WriteString("## Decisions\n\n")
	if len(summary.Decisions) == 0 {
		b.WriteString("None recorded.\n")
	}
	for _, d := range summary.Decisions {
		fmt.Fprintf(&b, "- %s\n", d)
	}

	b.WriteString("\n## Action Items\n\n")
	if len(summary.ActionItems) == 0 {
		b.WriteString("None recorded.\n")
	}
	for _, item := range summary.ActionItems {
		owner := strings.TrimSpace(item.Owner)
		if owner == "" {
			owner = "unassigned"
		}
		line := fmt.Sprintf("- **%s**: %s", owner, item.Task)
		if due := strings.TrimSpace(item.Due); due != "" {
			line += fmt.Sprintf(" (due %s)", due)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n## Key Points\n\n")
	if len(summary.KeyPoints) == 0 {
		b.WriteString("None recorded.\n")
	}
	for _, p := range summary.KeyPoints {
		fmt.Fprintf(&b, "- %s\n", p)
	}

	return []byte(b.String())
}
