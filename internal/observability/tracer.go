package observability

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
)

// TraceID identifies one end-to-end orchestrator run.
type TraceID string

// SpanID identifies a single operation inside a trace.
type SpanID string

// UsageMetrics carries token accounting for one LLM generation.
type UsageMetrics struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	TotalTokens  int    `json:"total_tokens"`
	Unit         string `json:"unit"`
}

// AgentEvent is the minimal event surface the tracer consumes. The
// concrete type lives in pkg/events; this interface avoids the import
// cycle.
type AgentEvent interface {
	GetType() string
	GetCorrelationID() string
	GetTimestamp() time.Time
	GetData() interface{}
	GetTraceID() string
	GetParentID() string
}

// Tracer records orchestrator runs and the events they emit.
type Tracer interface {
	StartTrace(name string, metadata map[string]interface{}) TraceID
	EndTrace(traceID TraceID, metadata map[string]interface{})
	EmitEvent(event AgentEvent) error
}

// NoopTracer drops everything.
type NoopTracer struct{}

func (NoopTracer) StartTrace(name string, metadata map[string]interface{}) TraceID {
	return ""
}

func (NoopTracer) EndTrace(traceID TraceID, metadata map[string]interface{}) {}

func (NoopTracer) EmitEvent(event AgentEvent) error {
	return nil
}

// ConsoleTracer logs traces and events through the shared logger.
type ConsoleTracer struct {
	logger  utils.ExtendedLogger
	counter atomic.Int64
}

// NewConsoleTracer creates a tracer that writes to the given logger.
func NewConsoleTracer(logger utils.ExtendedLogger) *ConsoleTracer {
	return &ConsoleTracer{logger: logger}
}

func (t *ConsoleTracer) StartTrace(name string, metadata map[string]interface{}) TraceID {
	id := TraceID(fmt.Sprintf("trace-%d-%d", time.Now().UnixNano(), t.counter.Add(1)))
	if t.logger != nil {
		t.logger.Infof("🔍 Trace started: %s (%s)", name, id)
	}
	return id
}

func (t *ConsoleTracer) EndTrace(traceID TraceID, metadata map[string]interface{}) {
	if t.logger != nil {
		t.logger.Infof("🏁 Trace ended: %s", traceID)
	}
}

func (t *ConsoleTracer) EmitEvent(event AgentEvent) error {
	if t.logger != nil {
		t.logger.Debugf("📡 Trace event: %s", event.GetType())
	}
	return nil
}
