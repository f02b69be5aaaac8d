package output

import (
	"encoding/json"

	"github.com/meshrider/meshgate/internal/store"
	"github.com/meshrider/meshgate/internal/trust"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatDevices renders the registry as a JSON array.
func (f *JSONFormatter) FormatDevices(devices []store.Device) (string, error) {
	if devices == nil {
		devices = []store.Device{}
	}
	return f.marshal(devices)
}

// FormatProbe renders probe results as a JSON array.
func (f *JSONFormatter) FormatProbe(results []trust.ProbeResult) (string, error) {
	if results == nil {
		results = []trust.ProbeResult{}
	}
	return f.marshal(results)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
