package output

import (
	"fmt"
	"strings"

	"github.com/meshrider/meshgate/internal/store"
	"github.com/meshrider/meshgate/internal/trust"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatDevices renders the registry as Markdown.
func (f *MarkdownFormatter) FormatDevices(devices []store.Device) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Devices\n\n")
	sb.WriteString("| Address | Name | Fingerprint | Last Seen | Notes |\n")
	sb.WriteString("|---------|------|-------------|-----------|-------|\n")

	for _, d := range devices {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(d.Address),
			escapeMarkdownCell(d.Name),
			escapeMarkdownCell(shortFingerprint(d.Fingerprint)),
			escapeMarkdownCell(lastSeen(d)),
			escapeMarkdownCell(d.Notes),
		))
	}
	return sb.String(), nil
}

// FormatProbe renders probe results as Markdown.
func (f *MarkdownFormatter) FormatProbe(results []trust.ProbeResult) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Certificate probe\n\n")
	sb.WriteString("| Address | Name | Status | Observed | Notes |\n")
	sb.WriteString("|---------|------|--------|----------|-------|\n")

	for _, r := range results {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			escapeMarkdownCell(r.Address),
			escapeMarkdownCell(r.Name),
			escapeMarkdownCell(string(r.Status)),
			escapeMarkdownCell(shortFingerprint(r.Observed)),
			escapeMarkdownCell(probeNotes(r)),
		))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
