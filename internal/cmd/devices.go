package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	apperrors "github.com/meshrider/meshgate/internal/errors"
	"github.com/meshrider/meshgate/internal/observability"
	"github.com/meshrider/meshgate/internal/output"
	"github.com/meshrider/meshgate/internal/store"
	"github.com/meshrider/meshgate/internal/trust"
)

var (
	deviceAddName        string
	deviceAddFingerprint string
	deviceAddNotes       string

	devicePinExpect  string
	devicePinTimeout time.Duration

	deviceProbeConcurrency int
	deviceProbeTimeout     time.Duration
	deviceProbeFailOnDrift bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the device registry",
	Long: `Manage registered radios and their pinned TLS certificate fingerprints.

Pins from the registry are loaded when the server starts and used when
trust.mode is "pinned".`,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		return withRegistry(cmd, func(ctx context.Context, db *store.Store) error {
			devices, err := db.ListDevices(ctx)
			if err != nil {
				return err
			}

			if len(devices) == 0 && format == output.FormatTable {
				return writeReport(cmd, "devices", format, ascii.DrawBox("Devices\n\n(no registered devices)", 0))
			}

			rendered, err := output.NewFormatter(format).FormatDevices(devices)
			if err != nil {
				return err
			}
			return writeReport(cmd, "devices", format, rendered)
		})
	},
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Register or update a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device := store.Device{
			Address: args[0],
			Name:    deviceAddName,
			Notes:   deviceAddNotes,
		}
		if strings.TrimSpace(deviceAddFingerprint) != "" {
			fp, err := trust.NormalizeFingerprint(deviceAddFingerprint)
			if err != nil {
				return apperrors.NewInvalidInputError("invalid --fingerprint: " + err.Error())
			}
			device.Fingerprint = fp
		}

		return withRegistry(cmd, func(ctx context.Context, db *store.Store) error {
			if err := db.UpsertDevice(ctx, device, time.Now()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", device.Address)
			return nil
		})
	},
}

var devicesRemoveCmd = &cobra.Command{
	Use:     "remove <address>",
	Aliases: []string{"rm"},
	Short:   "Remove a device from the registry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(ctx context.Context, db *store.Store) error {
			if err := db.DeleteDevice(ctx, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		})
	},
}

var devicesPinCmd = &cobra.Command{
	Use:   "pin <address>",
	Short: "Fetch and store a device's current certificate fingerprint",
	Long: `Connect to the device, read the SHA-256 fingerprint of its leaf certificate
and store it as the pin (trust on first use). Pass --expect to compare against a
fingerprint obtained out of band before storing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.TrimSpace(args[0])

		ctx, cancel := context.WithTimeout(cmd.Context(), devicePinTimeout)
		defer cancel()

		observed, err := trust.FetchFingerprint(ctx, address)
		if err != nil {
			return fmt.Errorf("fetch fingerprint from %s: %w", address, err)
		}

		if strings.TrimSpace(devicePinExpect) != "" {
			expected, err := trust.NormalizeFingerprint(devicePinExpect)
			if err != nil {
				return err
			}
			if expected != observed {
				return &trust.FingerprintMismatchError{Host: address, Expected: expected, Actual: observed}
			}
		}

		return withRegistry(cmd, func(ctx context.Context, db *store.Store) error {
			now := time.Now()
			err := db.SetFingerprint(ctx, address, observed, now)
			if errors.Is(err, store.ErrDeviceNotFound) {
				err = db.UpsertDevice(ctx, store.Device{Address: address, Fingerprint: observed}, now)
			}
			if err != nil {
				return err
			}
			if err := db.TouchDevice(ctx, address, now); err != nil {
				return err
			}

			observability.CLILogger.Debug("Pinned device certificate",
				zap.String("address", address),
				zap.String("fingerprint", observed))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Pinned %s\n  %s\n", address, trust.FormatFingerprint(observed))
			return nil
		})
	},
}

var devicesProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check every registered device's certificate against its pin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		return withRegistry(cmd, func(ctx context.Context, db *store.Store) error {
			devices, err := db.ListDevices(ctx)
			if err != nil {
				return err
			}

			targets := make([]trust.ProbeTarget, 0, len(devices))
			for _, d := range devices {
				targets = append(targets, trust.ProbeTarget{Address: d.Address, Name: d.Name, Pinned: d.Fingerprint})
			}

			results := trust.Probe(ctx, targets, deviceProbeConcurrency, timedFetcher(deviceProbeTimeout))

			drifted, err := recordProbe(ctx, db, results, time.Now())
			if err != nil {
				return err
			}

			rendered, err := output.NewFormatter(format).FormatProbe(results)
			if err != nil {
				return err
			}
			if err := writeReport(cmd, "devices.probe", format, rendered); err != nil {
				return err
			}

			if drifted > 0 && deviceProbeFailOnDrift {
				return fmt.Errorf("%d device(s) present a certificate that does not match the pin", drifted)
			}
			return nil
		})
	},
}

var devicesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Bulk register devices from a YAML file",
	Long: `Register devices listed in a YAML file:

  devices:
    - address: 10.223.106.148
      name: gate-north
      fingerprint: sha256:AB:CD:...
      notes: roof mast`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		devices, err := parseDeviceFile(data)
		if err != nil {
			return apperrors.WrapInvalidInput(cmd.Context(), err, "parse "+args[0])
		}

		return withRegistry(cmd, func(ctx context.Context, db *store.Store) error {
			now := time.Now()
			for _, d := range devices {
				if err := db.UpsertDevice(ctx, d, now); err != nil {
					return fmt.Errorf("import %s: %w", d.Address, err)
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d device(s)\n", len(devices))
			return nil
		})
	},
}

// withRegistry opens the configured store for the duration of fn.
func withRegistry(cmd *cobra.Command, fn func(ctx context.Context, db *store.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	return fn(ctx, db)
}

func timedFetcher(timeout time.Duration) trust.Fetcher {
	return func(ctx context.Context, address string) (string, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return trust.FetchFingerprint(ctx, address)
	}
}

// recordProbe marks reachable devices as seen and returns how many drifted.
func recordProbe(ctx context.Context, db *store.Store, results []trust.ProbeResult, now time.Time) (int, error) {
	drifted := 0
	for _, r := range results {
		if r.Status == trust.ProbeError {
			continue
		}
		if r.Status == trust.ProbeDrift {
			drifted++
		}
		if err := db.TouchDevice(ctx, r.Address, now); err != nil && !errors.Is(err, store.ErrDeviceNotFound) {
			return drifted, err
		}
	}
	return drifted, nil
}

type deviceFile struct {
	Devices []store.Device `yaml:"devices"`
}

// parseDeviceFile accepts either {devices: [...]} or a bare list.
func parseDeviceFile(data []byte) ([]store.Device, error) {
	var file deviceFile
	if err := yaml.Unmarshal(data, &file); err != nil || len(file.Devices) == 0 {
		var list []store.Device
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			if err != nil {
				return nil, err
			}
			return nil, listErr
		}
		file.Devices = list
	}

	for i := range file.Devices {
		d := &file.Devices[i]
		d.Address = strings.TrimSpace(d.Address)
		if d.Address == "" {
			return nil, fmt.Errorf("device %d: address is required", i+1)
		}
		if strings.TrimSpace(d.Fingerprint) != "" {
			fp, err := trust.NormalizeFingerprint(d.Fingerprint)
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", d.Address, err)
			}
			d.Fingerprint = fp
		}
	}
	return file.Devices, nil
}

func init() {
	devicesAddCmd.Flags().StringVar(&deviceAddName, "name", "", "Display name")
	devicesAddCmd.Flags().StringVar(&deviceAddFingerprint, "fingerprint", "", "SHA-256 certificate fingerprint to pin")
	devicesAddCmd.Flags().StringVar(&deviceAddNotes, "notes", "", "Free-form notes")

	devicesPinCmd.Flags().StringVar(&devicePinExpect, "expect", "", "Only store the pin if it matches this fingerprint")
	devicesPinCmd.Flags().DurationVar(&devicePinTimeout, "timeout", 10*time.Second, "TLS handshake timeout")

	devicesProbeCmd.Flags().IntVar(&deviceProbeConcurrency, "concurrency", trust.DefaultProbeConcurrency, "Parallel handshakes")
	devicesProbeCmd.Flags().DurationVar(&deviceProbeTimeout, "timeout", 5*time.Second, "Per-device handshake timeout")
	devicesProbeCmd.Flags().BoolVar(&deviceProbeFailOnDrift, "fail-on-drift", false, "Exit non-zero when a device no longer matches its pin")

	addOutputFlags(devicesListCmd)
	addOutputFlags(devicesProbeCmd)

	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesAddCmd)
	devicesCmd.AddCommand(devicesRemoveCmd)
	devicesCmd.AddCommand(devicesPinCmd)
	devicesCmd.AddCommand(devicesProbeCmd)
	devicesCmd.AddCommand(devicesImportCmd)
	rootCmd.AddCommand(devicesCmd)
}
