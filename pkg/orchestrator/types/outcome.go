package types

import "time"

// OutcomeStatus is the coarse result of one pipeline stage.
type OutcomeStatus string

const (
	OutcomeOK       OutcomeStatus = "ok"
	OutcomeFallback OutcomeStatus = "fallback"
	OutcomeFail     OutcomeStatus = "fail"
)

// StageMeta records how a stage ran, independent of its payload.
type StageMeta struct {
	StageID      string        `json:"stage_id"`
	PromptID     string        `json:"prompt_id,omitempty"`
	ModelUsed    string        `json:"model_used,omitempty"`
	Duration     time.Duration `json:"duration"`
	Attempts     int           `json:"attempts,omitempty"`
	ParseLevel   string        `json:"parse_level,omitempty"`
	FallbackUsed bool          `json:"fallback_used,omitempty"`
}

// Outcome is the result of one stage: a value on success, a partial
// value plus reason when the stage degraded to a deterministic
// fallback, or a StageError when it failed outright. Folding on
// Status keeps stage handling exhaustive at call sites.
type Outcome[T any] struct {
	Status OutcomeStatus `json:"status"`
	Value  T             `json:"value,omitempty"`
	Reason string        `json:"reason,omitempty"`
	Err    *StageError   `json:"error,omitempty"`
	Meta   StageMeta     `json:"meta,omitempty"`
}

// Ok wraps a successful stage value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Status: OutcomeOK, Value: v}
}

// FallbackOutcome wraps a degraded value with the reason the stage
// could not produce a full-quality answer.
func FallbackOutcome[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Status: OutcomeFallback, Value: v, Reason: reason}
}

// Fail wraps a stage failure.
func Fail[T any](err *StageError) Outcome[T] {
	return Outcome[T]{Status: OutcomeFail, Err: err}
}

// Usable reports whether the outcome carries a value the pipeline can
// continue with.
func (o Outcome[T]) Usable() bool {
	return o.Status != OutcomeFail
}

// Fold dispatches on the outcome status. Exactly one branch runs.
func (o Outcome[T]) Fold(onOK func(T), onFallback func(T, string), onFail func(*StageError)) {
	switch o.Status {
	case OutcomeOK:
		onOK(o.Value)
	case OutcomeFallback:
		onFallback(o.Value, o.Reason)
	default:
		onFail(o.Err)
	}
}
