package observability

import (
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
)

const (
	ProviderConsole = "console"
	ProviderNoop    = "noop"
)

// GetTracer returns a Tracer implementation based on the provider string.
func GetTracer(provider string) Tracer {
	return GetTracerWithLogger(provider, nil)
}

// GetTracerWithLogger returns a Tracer implementation with an injected logger.
func GetTracerWithLogger(provider string, logger utils.ExtendedLogger) Tracer {
	provider = strings.ToLower(provider)

	switch provider {
	case ProviderConsole:
		return NewConsoleTracer(logger)
	case ProviderNoop:
		return NoopTracer{}
	default:
		return NoopTracer{}
	}
}
