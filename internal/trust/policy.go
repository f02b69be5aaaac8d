// Package trust decides how TLS connections to radios are verified.
package trust

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/meshrider/meshgate/internal/observability"
)

// Mode selects the verification strategy for device TLS.
type Mode string

const (
	// ModeInsecure accepts any certificate. Radios ship self-signed certs.
	ModeInsecure Mode = "insecure"
	// ModePinned accepts only certificates whose leaf SHA-256 matches the
	// pin registered for the host.
	ModePinned Mode = "pinned"
	// ModeVerify uses the system CA pool and hostname checks.
	ModeVerify Mode = "verify"
)

// ErrNoPin is returned in pinned mode for hosts without a fingerprint.
var ErrNoPin = errors.New("no pinned fingerprint for host")

// FingerprintMismatchError reports a pinned certificate mismatch.
type FingerprintMismatchError struct {
	Host     string
	Expected string
	Actual   string
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("certificate fingerprint mismatch for %s: expected %s, got %s", e.Host, e.Expected, e.Actual)
}

// ParseMode validates a configured mode name. Empty means insecure.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeInsecure:
		return ModeInsecure, nil
	case ModePinned:
		return ModePinned, nil
	case ModeVerify:
		return ModeVerify, nil
	default:
		return "", fmt.Errorf("unknown trust mode %q (expected insecure, pinned or verify)", value)
	}
}

// Policy holds the trust mode and per-host pins. Pins can be changed while
// the policy is in use.
type Policy struct {
	mode Mode

	mu   sync.RWMutex
	pins map[string]string

	warned sync.Map
}

// NewPolicy builds a policy. Pin keys are hosts (IP or name, no port); values
// are fingerprints in any form NormalizeFingerprint accepts.
func NewPolicy(mode Mode, pins map[string]string) (*Policy, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeInsecure
	}

	p := &Policy{mode: mode, pins: make(map[string]string, len(pins))}
	for host, fp := range pins {
		if err := p.SetPin(host, fp); err != nil {
			return nil, fmt.Errorf("pin for %s: %w", host, err)
		}
	}
	return p, nil
}

// Mode returns the configured mode.
func (p *Policy) Mode() Mode {
	return p.mode
}

// SetPin registers or replaces the fingerprint for host.
func (p *Policy) SetPin(host, fingerprint string) error {
	fp, err := NormalizeFingerprint(fingerprint)
	if err != nil {
		return err
	}
	key := pinKey(host)
	if key == "" {
		return errors.New("host is required")
	}

	p.mu.Lock()
	p.pins[key] = fp
	p.mu.Unlock()
	return nil
}

// Pin returns the fingerprint registered for host.
func (p *Policy) Pin(host string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fp, ok := p.pins[pinKey(host)]
	return fp, ok
}

// PinCount returns the number of registered pins.
func (p *Policy) PinCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pins)
}

// TLSConfig returns the client configuration for a connection to host.
func (p *Policy) TLSConfig(host string) (*tls.Config, error) {
	host = pinKey(host)

	switch p.mode {
	case ModeVerify:
		return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}, nil

	case ModePinned:
		expected, ok := p.Pin(host)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoPin, host)
		}
		return &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, // #nosec G402 -- leaf is checked against the pin below
			VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
				if len(rawCerts) == 0 {
					return fmt.Errorf("no certificates presented by %s", host)
				}
				if actual := LeafFingerprint(rawCerts[0]); actual != expected {
					return &FingerprintMismatchError{Host: host, Expected: expected, Actual: actual}
				}
				return nil
			},
		}, nil

	default:
		p.warnInsecure(host)
		return &tls.Config{ServerName: host, InsecureSkipVerify: true}, nil // #nosec G402 -- explicit insecure mode
	}
}

// DialTLSContext returns a transport dial function that opens TCP through
// dial and completes the handshake with the per-host configuration.
func (p *Policy) DialTLSContext(dial func(ctx context.Context, network, addr string) (net.Conn, error)) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		cfg, err := p.TLSConfig(host)
		if err != nil {
			return nil, err
		}

		raw, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		conn := tls.Client(raw, cfg)
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (p *Policy) warnInsecure(host string) {
	if _, seen := p.warned.LoadOrStore(host, struct{}{}); seen {
		return
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Warn("TLS verification disabled for device", zap.String("target", host))
	}
}

func pinKey(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
