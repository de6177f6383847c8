// Package reliability classifies errors and retry policy for the engine's
// collaborator calls (LLM, TTS, decomposition).
package reliability

import (
	"strings"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// ErrorKind is one of the error kinds surfaced in slot.error events.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindTimeout     ErrorKind = "timeout"
	KindRateLimit   ErrorKind = "rate_limit"
	KindServerError ErrorKind = "server_error"
	KindTTSError    ErrorKind = "tts_error"
	KindUnknown     ErrorKind = "unknown"
)

// ClassifyError maps an arbitrary error to one of the error kinds, per the
// substring rules: "timeout" in the name, "ratelimit"/"rate_limit", or a
// connection-ish name ("connection", "network", "dns", "socket",
// "refused"). Anything else is server_error, unless err is nil, which
// yields an empty kind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	name := strings.ToLower(err.Error())
	switch {
	case strings.Contains(name, "timeout"):
		return KindTimeout
	case strings.Contains(name, "ratelimit"), strings.Contains(name, "rate_limit"), strings.Contains(name, "rate limit"):
		return KindRateLimit
	case strings.Contains(name, "connection"), strings.Contains(name, "network"),
		strings.Contains(name, "dns"), strings.Contains(name, "socket"), strings.Contains(name, "refused"):
		return KindNetwork
	default:
		return KindServerError
	}
}
