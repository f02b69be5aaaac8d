package chat

import (
	"encoding/json"
	"strings"
)

// MaxLogExcerpt is the number of log characters forwarded to the provider.
const MaxLogExcerpt = 8000

const assistantPersona = `You are the Mesh Rider radio assistant embedded in the device dashboard.
Help operators configure, monitor and troubleshoot Mesh Rider radios and mesh networks.
Answer concisely, prefer concrete steps, and say so when a question needs information you do not have.`

// Context is the dashboard state sent alongside a conversation.
type Context struct {
	ActiveTool  string          `json:"activeTool,omitempty"`
	ProductData json.RawMessage `json:"productData,omitempty"`
	LogData     string          `json:"logData,omitempty"`
}

// BuildSystemPrompt renders the system message for a conversation.
func BuildSystemPrompt(c Context) string {
	var b strings.Builder
	b.WriteString(assistantPersona)

	if tool := strings.TrimSpace(c.ActiveTool); tool != "" {
		b.WriteString("\n\nThe operator is currently using the ")
		b.WriteString(tool)
		b.WriteString(" tool.")
	}

	if data := compactJSON(c.ProductData); data != "" {
		b.WriteString("\n\nProduct information:\n")
		b.WriteString(data)
	}

	if logs := strings.TrimSpace(c.LogData); logs != "" {
		b.WriteString("\n\nRecent device log excerpt:\n")
		b.WriteString(truncateRunes(logs, MaxLogExcerpt))
	}

	return b.String()
}

func compactJSON(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return trimmed
	}
	if err := enc.Encode(v); err != nil {
		return trimmed
	}
	return strings.TrimSpace(buf.String())
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
