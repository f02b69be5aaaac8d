package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/meshrider/meshgate/internal/store"
	"github.com/meshrider/meshgate/internal/trust"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatDevices renders the registry as a table.
func (f *TableFormatter) FormatDevices(devices []store.Device) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Address", "Name", "Fingerprint", "Last Seen", "Notes"})

	for _, d := range devices {
		t.AppendRow(table.Row{d.Address, d.Name, shortFingerprint(d.Fingerprint), lastSeen(d), d.Notes})
	}

	pinned := 0
	for _, d := range devices {
		if d.Fingerprint != "" {
			pinned++
		}
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d pinned", pinned, len(devices)), "", ""})

	return t.Render(), nil
}

// FormatProbe renders probe results as a table.
func (f *TableFormatter) FormatProbe(results []trust.ProbeResult) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Address", "Name", "Status", "Observed", "Notes"})

	drift := 0
	for _, r := range results {
		if r.Status == trust.ProbeDrift {
			drift++
		}
		t.AppendRow(table.Row{r.Address, r.Name, string(r.Status), shortFingerprint(r.Observed), probeNotes(r)})
	}
	if drift > 0 {
		t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d drifted", drift), "", ""})
	}

	return t.Render(), nil
}
