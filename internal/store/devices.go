package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDeviceNotFound is returned when no device matches an address.
var ErrDeviceNotFound = errors.New("device not found")

// Device is a registered radio.
type Device struct {
	Address     string     `json:"address" yaml:"address"`
	Name        string     `json:"name,omitempty" yaml:"name,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Notes       string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"-"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty" yaml:"-"`
}

// UpsertDevice creates or updates a device record. Empty name, fingerprint or
// notes on update keep the stored value.
func (s *Store) UpsertDevice(ctx context.Context, device Device, now time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	address := strings.TrimSpace(device.Address)
	if address == "" {
		return errors.New("device address is required")
	}

	ts := now.UTC().Unix()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO devices (address, name, fingerprint, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE devices.name END,
			fingerprint = CASE WHEN excluded.fingerprint != '' THEN excluded.fingerprint ELSE devices.fingerprint END,
			notes = CASE WHEN excluded.notes != '' THEN excluded.notes ELSE devices.notes END,
			updated_at = excluded.updated_at
	`, address, strings.TrimSpace(device.Name), strings.TrimSpace(device.Fingerprint), strings.TrimSpace(device.Notes), ts, ts)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// SetFingerprint replaces the pinned fingerprint for a registered device.
func (s *Store) SetFingerprint(ctx context.Context, address, fingerprint string, now time.Time) error {
	return s.updateDevice(ctx, address, `UPDATE devices SET fingerprint = ?, updated_at = ? WHERE address = ?`, fingerprint, now.UTC().Unix())
}

// TouchDevice records that the device answered at the given time.
func (s *Store) TouchDevice(ctx context.Context, address string, seenAt time.Time) error {
	return s.updateDevice(ctx, address, `UPDATE devices SET last_seen_at = ? WHERE address = ?`, seenAt.UTC().Unix())
}

func (s *Store) updateDevice(ctx context.Context, address, query string, args ...any) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx, query, append(args, strings.TrimSpace(address))...)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
	}
	return nil
}

// GetDevice fetches a device by address.
func (s *Store) GetDevice(ctx context.Context, address string) (*Device, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT address, name, fingerprint, notes, created_at, updated_at, last_seen_at
		FROM devices WHERE address = ?
	`, strings.TrimSpace(address))

	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}

// ListDevices returns all devices ordered by address.
func (s *Store) ListDevices(ctx context.Context) ([]Device, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT address, name, fingerprint, notes, created_at, updated_at, last_seen_at
		FROM devices ORDER BY address
	`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes a device. Missing devices yield ErrDeviceNotFound.
func (s *Store) DeleteDevice(ctx context.Context, address string) error {
	return s.updateDevice(ctx, address, `DELETE FROM devices WHERE address = ?`)
}

// Pins returns address -> fingerprint for every device with a pin.
func (s *Store) Pins(ctx context.Context) (map[string]string, error) {
	devices, err := s.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	pins := make(map[string]string)
	for _, device := range devices {
		if device.Fingerprint != "" {
			pins[device.Address] = device.Fingerprint
		}
	}
	return pins, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		device    Device
		createdAt int64
		updatedAt int64
		lastSeen  sql.NullInt64
	)
	if err := row.Scan(&device.Address, &device.Name, &device.Fingerprint, &device.Notes, &createdAt, &updatedAt, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}

	device.CreatedAt = time.Unix(createdAt, 0).UTC()
	device.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if lastSeen.Valid {
		seen := time.Unix(lastSeen.Int64, 0).UTC()
		device.LastSeenAt = &seen
	}
	return &device, nil
}
