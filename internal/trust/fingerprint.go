package trust

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// DefaultTLSPort is assumed when an address carries no port.
const DefaultTLSPort = "443"

// ErrInvalidFingerprint is returned for values that are not a SHA-256 hex digest.
var ErrInvalidFingerprint = errors.New("fingerprint must be 64 hex characters (sha256)")

// NormalizeFingerprint lower-cases a SHA-256 fingerprint and strips an optional
// "sha256:" prefix, colons and whitespace.
func NormalizeFingerprint(value string) (string, error) {
	fp := strings.ToLower(strings.TrimSpace(value))
	fp = strings.TrimPrefix(fp, "sha256:")
	fp = strings.NewReplacer(":", "", " ", "", "\t", "").Replace(fp)

	if len(fp) != sha256.Size*2 {
		return "", ErrInvalidFingerprint
	}
	if _, err := hex.DecodeString(fp); err != nil {
		return "", ErrInvalidFingerprint
	}
	return fp, nil
}

// LeafFingerprint returns the hex SHA-256 of a DER certificate.
func LeafFingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// FormatFingerprint renders a fingerprint as colon-separated upper-case pairs.
func FormatFingerprint(fp string) string {
	fp = strings.ToUpper(fp)
	var b strings.Builder
	for i := 0; i < len(fp); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		end := i + 2
		if end > len(fp) {
			end = len(fp)
		}
		b.WriteString(fp[i:end])
	}
	return b.String()
}

// FetchFingerprint connects to address and returns the SHA-256 fingerprint of
// the leaf certificate it presents, without verifying it. Used for
// trust-on-first-use pinning. Address may be host, host:port or an https URL.
func FetchFingerprint(ctx context.Context, address string) (string, error) {
	target, err := tlsAddress(address)
	if err != nil {
		return "", err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 5 * time.Second},
		Config:    &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- fingerprint capture only
	}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	defer func() { _ = conn.Close() }()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return "", fmt.Errorf("unexpected connection type from %s", target)
	}

	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", fmt.Errorf("no certificates presented by %s", target)
	}
	return LeafFingerprint(certs[0].Raw), nil
}

func tlsAddress(address string) (string, error) {
	target := strings.TrimSpace(address)
	if strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "http://") {
		parsed, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("failed to parse host URL: %w", err)
		}
		target = parsed.Host
	}
	if target == "" {
		return "", errors.New("address is required")
	}

	if _, _, err := net.SplitHostPort(target); err != nil {
		host := strings.TrimSuffix(strings.TrimPrefix(target, "["), "]")
		target = net.JoinHostPort(host, DefaultTLSPort)
	}
	return target, nil
}
