package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamTimeout is returned when the device does not answer before
	// the forwarding deadline.
	ErrUpstreamTimeout = errors.New("upstream request timed out")
	// ErrUpstreamStatus matches any *UpstreamStatusError.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	// ErrInvalidUpstreamBody is returned when a ubus response is not JSON.
	ErrInvalidUpstreamBody = errors.New("upstream response is not valid JSON")
	// ErrInvalidTarget is returned for target addresses that are not a bare
	// host or host:port.
	ErrInvalidTarget = errors.New("invalid target address")
)

// UpstreamStatusError reports a non-2xx answer from the device.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

func (e *UpstreamStatusError) Is(target error) bool {
	return target == ErrUpstreamStatus
}
