// Package appid holds the static identity of the meshgate binary: the names
// used for help text, config discovery, env var prefixes and telemetry.
package appid

import (
	"context"
	"errors"
	"os"
	"strings"
)

// EnvBinaryName overrides the binary name (useful for white-label builds).
const EnvBinaryName = "MESHGATE_BINARY_NAME"

// Identity describes how the application presents itself.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
	Vendor      string
}

var defaultIdentity = Identity{
	BinaryName:  "meshgate",
	ConfigName:  "meshgate",
	EnvPrefix:   "MESHGATE_",
	Description: "Mesh Rider dashboard gateway: rate-limited ubus and REST relay to radio devices",
	Vendor:      "meshrider",
}

// TelemetryNamespace returns the metric namespace derived from the binary name.
func (i *Identity) TelemetryNamespace() string {
	if i == nil || strings.TrimSpace(i.BinaryName) == "" {
		return "meshgate"
	}
	return strings.ReplaceAll(strings.ToLower(i.BinaryName), "-", "_")
}

// Validate reports missing identity fields.
func (i *Identity) Validate() error {
	switch {
	case i == nil:
		return errors.New("identity is nil")
	case strings.TrimSpace(i.BinaryName) == "":
		return errors.New("identity missing binary name")
	case strings.TrimSpace(i.EnvPrefix) == "":
		return errors.New("identity missing env prefix")
	case strings.TrimSpace(i.ConfigName) == "":
		return errors.New("identity missing config name")
	}
	return nil
}

// Get returns a copy of the application identity.
func Get(ctx context.Context) (*Identity, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	identity := defaultIdentity
	if name := strings.TrimSpace(os.Getenv(EnvBinaryName)); name != "" {
		identity.BinaryName = name
	}
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	return &identity, nil
}
