package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshrider/meshgate/internal/store"
	"github.com/meshrider/meshgate/internal/trust"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleDevices() []store.Device {
	seen := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	return []store.Device{
		{Address: "10.223.106.148", Name: "gateway", Fingerprint: strings.Repeat("ab", 32), LastSeenAt: &seen},
		{Address: "10.223.106.150", Name: "relay|roof", Notes: "spare"},
	}
}

func TestFormatDevices(t *testing.T) {
	devices := sampleDevices()

	rendered, err := NewFormatter(FormatTable).FormatDevices(devices)
	require.NoError(t, err)
	require.Contains(t, rendered, "10.223.106.148")
	require.Contains(t, rendered, "abababab…abababab")
	require.Contains(t, rendered, "2025-04-02 09:30")
	require.Contains(t, rendered, "never")
	require.Contains(t, rendered, "1/2 pinned")

	rendered, err = NewFormatter(FormatMarkdown).FormatDevices(devices)
	require.NoError(t, err)
	require.Contains(t, rendered, "| Address | Name |")
	require.Contains(t, rendered, "relay\\|roof")

	rendered, err = NewFormatter(FormatJSON).FormatDevices(devices)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "gateway", decoded[0]["name"])

	rendered, err = NewFormatter(FormatJSON).FormatDevices(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", rendered)
}

func TestFormatProbe(t *testing.T) {
	results := []trust.ProbeResult{
		{Address: "10.0.0.1", Status: trust.ProbeMatch, Observed: strings.Repeat("ab", 32)},
		{Address: "10.0.0.2", Status: trust.ProbeDrift, Observed: strings.Repeat("cd", 32), Pinned: strings.Repeat("ab", 32)},
		{Address: "10.0.0.3", Status: trust.ProbeError, Error: "connection refused"},
	}

	rendered, err := NewFormatter(FormatTable).FormatProbe(results)
	require.NoError(t, err)
	require.Contains(t, rendered, "drift")
	require.Contains(t, rendered, "1 drifted")
	require.Contains(t, rendered, "connection refused")

	rendered, err = NewFormatter(FormatMarkdown).FormatProbe(results)
	require.NoError(t, err)
	require.Contains(t, rendered, "pinned abababab")

	rendered, err = NewFormatter(FormatJSON).FormatProbe(results)
	require.NoError(t, err)
	require.Contains(t, rendered, `"status": "error"`)
}
