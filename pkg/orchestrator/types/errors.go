package types

import "fmt"

// ErrorKind classifies stage and transport failures so retry policy can
// branch on the class instead of string-matching provider messages.
type ErrorKind string

const (
	KindRateLimited        ErrorKind = "RateLimited"
	KindTimeout            ErrorKind = "Timeout"
	KindTransport          ErrorKind = "Transport"
	KindModelUnavailable   ErrorKind = "ModelUnavailable"
	KindBadResponse        ErrorKind = "BadResponse"
	KindParseFailure       ErrorKind = "ParseFailure"
	KindSchemaValidation   ErrorKind = "SchemaValidation"
	KindEmptyPlan          ErrorKind = "EmptyPlan"
	KindUnknownServer      ErrorKind = "UnknownServer"
	KindUnknownTool        ErrorKind = "UnknownTool"
	KindToolExecution      ErrorKind = "ToolExecution"
	KindVisionUnstructured ErrorKind = "VisionUnstructured"
	KindVerificationFailed ErrorKind = "VerificationFailed"
	KindNeedsSplit         ErrorKind = "NeedsSplit"
	KindAuthRequired       ErrorKind = "AuthRequired"
	KindCancelled          ErrorKind = "Cancelled"
)

// Retryable reports whether a failure of this kind may succeed on a
// clean retry of the same operation.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindTransport:
		return true
	default:
		return false
	}
}

// StageError carries the failing stage, the error class and the
// underlying cause through the orchestrator pipeline.
type StageError struct {
	Kind   ErrorKind `json:"kind"`
	Stage  string    `json:"stage,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Err    error     `json:"-"`
}

func (e *StageError) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError builds a StageError for the given stage and kind.
func NewStageError(stage string, kind ErrorKind, detail string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Detail: detail, Err: err}
}
