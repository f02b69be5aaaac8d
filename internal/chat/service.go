// Package chat relays dashboard conversations to a completion provider.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meshrider/meshgate/internal/chat/driver"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

var (
	// ErrNotConfigured is returned when no provider credentials are available.
	ErrNotConfigured = errors.New("chat provider is not configured")
	// ErrNoMessages is returned for an empty conversation.
	ErrNoMessages = errors.New("messages are required")
	// ErrEmptyCompletion is returned when the provider answers with no text.
	ErrEmptyCompletion = errors.New("provider returned an empty completion")
)

var allowedRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// Request is the body of a dashboard chat call.
type Request struct {
	Messages []driver.Message `json:"messages"`
	Context
}

// Service builds prompts and calls the configured driver. A nil Driver
// leaves chat disabled without affecting anything else.
type Service struct {
	Driver  driver.Driver
	Model   string
	Timeout time.Duration
}

// Enabled reports whether a driver is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.Driver != nil
}

// Reply returns the completion text for a conversation.
func (s *Service) Reply(ctx context.Context, req Request) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return "", ErrNoMessages
	}

	messages := make([]driver.Message, 0, len(req.Messages)+1)
	messages = append(messages, driver.Message{Role: "system", Content: BuildSystemPrompt(req.Context)})
	for i, msg := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if !allowedRoles[role] {
			return "", fmt.Errorf("message %d: unsupported role %q", i, msg.Role)
		}
		messages = append(messages, driver.Message{Role: role, Content: msg.Content})
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	model := strings.TrimSpace(s.Model)
	if model == "" {
		model = DefaultModel
	}

	resp, err := s.Driver.Complete(ctx, &driver.Request{Model: model, Messages: messages})
	if err != nil {
		return "", describeProviderError(err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Content, nil
}

// describeProviderError turns provider failures into operator-readable
// messages while keeping the original error in the chain.
func describeProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("provider request timed out: %w", err)
	}

	var perr *driver.ProviderError
	if !errors.As(err, &perr) || perr == nil {
		return err
	}

	status := perr.StatusCode
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("provider authentication failed: %w", err)
	case status == 429:
		return fmt.Errorf("provider rate limited: %w", err)
	case status >= 500 && status <= 599:
		return fmt.Errorf("provider unavailable: %w", err)
	case status >= 400 && status <= 499:
		return fmt.Errorf("provider rejected request: %w", err)
	default:
		return err
	}
}
