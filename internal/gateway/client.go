package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Device client defaults.
const (
	DefaultTarget      = "10.223.106.148"
	DefaultUbusScheme  = "http"
	DefaultUbusPath    = "/ubus"
	DefaultUbusTimeout = 5 * time.Second
	DefaultPassScheme  = "https"

	// TargetHeader selects the device a request is relayed to.
	TargetHeader = "X-Target-IP"

	maxUpstreamBody = 16 << 20
)

// DeviceClient relays requests to a radio's management interface.
type DeviceClient struct {
	// Client carries the transport (and its TLS trust policy). Its Timeout
	// should be zero; deadlines are applied per call.
	Client *http.Client

	DefaultTarget string

	UbusScheme  string
	UbusPath    string
	UbusTimeout time.Duration

	PassthroughScheme string
	// PassthroughTimeout of zero leaves passthrough calls unbounded.
	PassthroughTimeout time.Duration

	Clock func() time.Time
}

// Response is a relayed device answer.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
	URL         string
}

// ResolveTarget picks the device address from the header value, falling back
// to the configured default. The value must be a bare host or host:port.
func (c *DeviceClient) ResolveTarget(header string) (string, error) {
	target := strings.TrimSpace(header)
	if target == "" {
		target = c.DefaultTarget
	}
	if target == "" {
		target = DefaultTarget
	}
	if err := validateTarget(target); err != nil {
		return "", err
	}
	if ip := net.ParseIP(target); ip != nil && ip.To4() == nil {
		target = "[" + target + "]"
	}
	return target, nil
}

// CallUbus posts an already validated envelope to the device's ubus endpoint.
// A non-2xx status yields *UpstreamStatusError; a body that is not JSON yields
// ErrInvalidUpstreamBody; a missed deadline yields ErrUpstreamTimeout. A ubus
// application error inside a 200 answer is not an error here; see UbusErrorFrom.
func (c *DeviceClient) CallUbus(ctx context.Context, target string, envelope []byte) (*Response, error) {
	if c == nil || c.Client == nil {
		return nil, errors.New("device client is not configured")
	}

	endpoint := url.URL{
		Scheme: c.ubusScheme(),
		Host:   target,
		Path:   c.ubusPath(),
	}

	timeout := c.UbusTimeout
	if timeout <= 0 {
		timeout = DefaultUbusTimeout
	}

	resp, err := c.do(ctx, timeout, http.MethodPost, endpoint.String(), bytes.NewReader(envelope), "application/json")
	if err != nil {
		return resp, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &UpstreamStatusError{StatusCode: resp.StatusCode}
	}
	if !json.Valid(resp.Body) {
		return resp, ErrInvalidUpstreamBody
	}
	return resp, nil
}

// Forward relays a passthrough request to {scheme}://{target}/{path}. The
// upstream status and body are returned as-is.
func (c *DeviceClient) Forward(ctx context.Context, method, target, path, rawQuery string, body io.Reader, contentType string) (*Response, error) {
	if c == nil || c.Client == nil {
		return nil, errors.New("device client is not configured")
	}

	scheme := c.PassthroughScheme
	if scheme == "" {
		scheme = DefaultPassScheme
	}

	endpoint := url.URL{
		Scheme:   scheme,
		Host:     target,
		Path:     "/" + strings.TrimPrefix(path, "/"),
		RawQuery: rawQuery,
	}

	return c.do(ctx, c.PassthroughTimeout, method, endpoint.String(), body, contentType)
}

func (c *DeviceClient) do(ctx context.Context, timeout time.Duration, method, endpoint string, body io.Reader, contentType string) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	started := c.now()
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
		Duration:    c.now().Sub(started),
		URL:         endpoint,
	}, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return err
}

func validateTarget(target string) error {
	if strings.ContainsAny(target, "/?#@ \\") {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	host := target
	if h, port, err := net.SplitHostPort(target); err == nil {
		if port == "" {
			return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
		}
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if net.ParseIP(host) != nil {
		return nil
	}

	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
		}
	}
	return nil
}

func (c *DeviceClient) ubusScheme() string {
	if c.UbusScheme != "" {
		return c.UbusScheme
	}
	return DefaultUbusScheme
}

func (c *DeviceClient) ubusPath() string {
	if c.UbusPath != "" {
		return "/" + strings.TrimPrefix(c.UbusPath, "/")
	}
	return DefaultUbusPath
}

func (c *DeviceClient) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}
