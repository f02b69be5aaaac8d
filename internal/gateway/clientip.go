package gateway

import (
	"net/http"
	"strings"
)

// DefaultClientID identifies callers that present no forwarding headers.
const DefaultClientID = "127.0.0.1"

// ClientID derives the rate-limit identity for a request: the first
// X-Forwarded-For entry, then X-Real-IP, then DefaultClientID. The value is
// taken from headers as-is and is trivially spoofable by direct callers.
func ClientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return DefaultClientID
}
