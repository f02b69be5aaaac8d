package output

import (
	"fmt"
	"strings"

	"github.com/meshrider/meshgate/internal/store"
	"github.com/meshrider/meshgate/internal/trust"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders device registry views.
type Formatter interface {
	FormatDevices(devices []store.Device) (string, error)
	FormatProbe(results []trust.ProbeResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func shortFingerprint(fp string) string {
	if fp == "" {
		return "-"
	}
	if len(fp) <= 16 {
		return fp
	}
	return fp[:8] + "…" + fp[len(fp)-8:]
}

func lastSeen(device store.Device) string {
	if device.LastSeenAt == nil {
		return "never"
	}
	return device.LastSeenAt.Format("2006-01-02 15:04")
}

func probeNotes(result trust.ProbeResult) string {
	switch result.Status {
	case trust.ProbeError:
		return result.Error
	case trust.ProbeDrift:
		return "pinned " + shortFingerprint(result.Pinned)
	default:
		return ""
	}
}
