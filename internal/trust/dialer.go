package trust

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/dnscache"
	"go.uber.org/zap"

	"github.com/meshrider/meshgate/internal/observability"
)

// DefaultDNSCacheTTL is how often cached lookups are refreshed.
const DefaultDNSCacheTTL = 5 * time.Minute

// Dialer opens TCP connections, resolving host names through a shared cache.
type Dialer struct {
	resolver *dnscache.Resolver
	dialer   *net.Dialer

	stop     chan struct{}
	stopOnce sync.Once
}

// NewDialer starts a cached dialer. A ttl of zero uses DefaultDNSCacheTTL.
func NewDialer(ttl time.Duration) *Dialer {
	if ttl <= 0 {
		ttl = DefaultDNSCacheTTL
	}

	d := &Dialer{
		resolver: &dnscache.Resolver{},
		dialer: &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		},
		stop: make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.resolver.Refresh(true)
				if observability.ServerLogger != nil {
					observability.ServerLogger.Debug("DNS cache refreshed", zap.Duration("ttl", ttl))
				}
			case <-d.stop:
				return
			}
		}
	}()

	return d
}

// DialContext dials address, trying each cached address for the host in turn.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(host) != nil {
		return d.dialer.DialContext(ctx, network, address)
	}

	ips, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no IP addresses found", Name: host}
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := d.dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// Close stops the refresh loop.
func (d *Dialer) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// NewTransport builds the transport used for all device traffic. Proxy
// environment variables are ignored; radios sit on the local mesh.
func NewTransport(policy *Policy, dialer *Dialer) *http.Transport {
	return &http.Transport{
		DialContext:           dialer.DialContext,
		DialTLSContext:        policy.DialTLSContext(dialer.DialContext),
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewHTTPClient wraps NewTransport in a client without an overall timeout;
// callers set per-request deadlines.
func NewHTTPClient(policy *Policy, dialer *Dialer) *http.Client {
	return &http.Client{Transport: NewTransport(policy, dialer)}
}
