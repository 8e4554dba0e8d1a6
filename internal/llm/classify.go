package llm

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
	"throttl",
	"quota exceeded",
}

var transportMarkers = []string{
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"overloaded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"unexpected eof",
	"tls handshake",
}

var timeoutMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

var modelUnavailableMarkers = []string{
	"model not found",
	"no such model",
	"unknown model",
	"invalid model",
	"does not exist",
	"not supported",
	"404",
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"invalid api key",
	"access denied",
}

// ClassifyError maps a provider error onto the orchestrator error
// kinds. Providers surface failures as message text, so markers are
// matched in priority order: rate limiting first, then server-side
// transport errors (a 504 must not land in the generic timeout class).
func ClassifyError(err error) types.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return types.KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.KindTimeout
	}

	msg := strings.ToLower(err.Error())
	if matchesAny(msg, rateLimitMarkers) {
		return types.KindRateLimited
	}
	if matchesAny(msg, transportMarkers) {
		return types.KindTransport
	}
	if matchesAny(msg, timeoutMarkers) {
		return types.KindTimeout
	}
	if matchesAny(msg, modelUnavailableMarkers) {
		return types.KindModelUnavailable
	}
	return types.KindBadResponse
}

func matchesAny(msg string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// retryAfterPattern picks the wait hint out of provider rate-limit
// messages such as "Please try again in 20s" or "retry-after: 30".
var retryAfterPattern = regexp.MustCompile(`(?i)(?:retry[\s_-]?after[:\s]*|try again in\s*)(\d+(?:\.\d+)?)\s*(ms|milliseconds?|s|secs?|seconds?|m|mins?|minutes?)?`)

// RetryAfterHint extracts the provider-suggested wait from a
// rate-limit error, when one is present.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	m := retryAfterPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	value, parseErr := strconv.ParseFloat(m[1], 64)
	if parseErr != nil || value <= 0 {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	var d time.Duration
	switch {
	case strings.HasPrefix(unit, "ms") || strings.HasPrefix(unit, "milli"):
		d = time.Duration(value * float64(time.Millisecond))
	case strings.HasPrefix(unit, "m"):
		d = time.Duration(value * float64(time.Minute))
	default:
		d = time.Duration(value * float64(time.Second))
	}
	if d <= 0 {
		return 0, false
	}
	return d, true
}
