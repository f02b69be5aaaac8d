package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/meshrider/meshgate/internal/chat"
	"github.com/meshrider/meshgate/internal/chat/driver/openai"
	"github.com/meshrider/meshgate/internal/config"
	"github.com/meshrider/meshgate/internal/gateway"
	"github.com/meshrider/meshgate/internal/observability"
	"github.com/meshrider/meshgate/internal/store"
	"github.com/meshrider/meshgate/internal/trust"
)

// gatewayRuntime holds the long-lived pieces behind the /api routes.
type gatewayRuntime struct {
	policy  *trust.Policy
	dialer  *trust.Dialer
	limiter *gateway.RateLimiter
	devices *gateway.DeviceClient
	chat    *chat.Service
}

// Close stops the limiter sweep and the DNS refresh loop.
func (g *gatewayRuntime) Close() {
	if g == nil {
		return
	}
	if g.limiter != nil {
		g.limiter.Close()
	}
	if g.dialer != nil {
		g.dialer.Close()
	}
}

// buildGatewayRuntime assembles the trust policy, dialer, device client,
// limiter and chat service. Registry pins are applied first so config pins
// take precedence for the same host.
func buildGatewayRuntime(cfg *config.Config, registryPins map[string]string, getenv func(string) string) (*gatewayRuntime, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	mode, err := trust.ParseMode(cfg.Trust.Mode)
	if err != nil {
		return nil, err
	}

	pins := make(map[string]string, len(registryPins)+len(cfg.Trust.Pins))
	for host, fp := range registryPins {
		pins[host] = fp
	}
	for host, fp := range cfg.Trust.PinMap() {
		pins[host] = fp
	}

	policy, err := trust.NewPolicy(mode, pins)
	if err != nil {
		return nil, fmt.Errorf("trust policy: %w", err)
	}

	limiter, err := gateway.NewRateLimiter(gateway.RateLimiterConfig{
		Requests:      cfg.Gateway.RateLimit.Requests,
		Window:        cfg.Gateway.RateLimit.Window,
		MaxClients:    cfg.Gateway.RateLimit.MaxClients,
		SweepInterval: cfg.Gateway.RateLimit.SweepInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	dialer := trust.NewDialer(cfg.Trust.DNSCacheTTL)

	rt := &gatewayRuntime{
		policy:  policy,
		dialer:  dialer,
		limiter: limiter,
		devices: &gateway.DeviceClient{
			Client:             trust.NewHTTPClient(policy, dialer),
			DefaultTarget:      cfg.Gateway.DefaultTarget,
			UbusScheme:         cfg.Gateway.Ubus.Scheme,
			UbusPath:           cfg.Gateway.Ubus.Path,
			UbusTimeout:        cfg.Gateway.Ubus.Timeout,
			PassthroughScheme:  cfg.Gateway.Passthrough.Scheme,
			PassthroughTimeout: cfg.Gateway.Passthrough.Timeout,
		},
		chat: buildChatService(cfg.Chat, getenv),
	}
	return rt, nil
}

// buildChatService returns a disabled service when no API key is present;
// the chat route then answers 500 while the gateway keeps working.
func buildChatService(cfg config.ChatConfig, getenv func(string) string) *chat.Service {
	svc := &chat.Service{Model: cfg.Model, Timeout: cfg.Timeout}

	keyEnv := strings.TrimSpace(cfg.APIKeyEnv)
	if keyEnv == "" {
		return svc
	}
	key := strings.TrimSpace(getenv(keyEnv))
	if key == "" {
		return svc
	}

	client := openai.NewClient(cfg.BaseURL, key)
	client.Timeout = cfg.Timeout
	svc.Driver = client
	return svc
}

// registryPins reads pinned fingerprints from the device registry. A missing
// or unreadable store yields no pins.
func registryPins(ctx context.Context, cfg *config.Config) (*store.Store, map[string]string) {
	logger := observability.ServerLogger

	st, err := openStore(ctx, cfg)
	if err != nil {
		if logger != nil {
			logger.Warn("Device registry unavailable; using configured pins only", zap.Error(err))
		}
		return nil, nil
	}

	pins, err := st.Pins(ctx)
	if err != nil {
		if logger != nil {
			logger.Warn("Failed to read registry pins", zap.Error(err))
		}
		return st, nil
	}
	return st, pins
}
