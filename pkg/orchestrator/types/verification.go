package types

// VerifyPath selects which evidence source verification should lead with.
type VerifyPath string

const (
	VerifyPathVisual VerifyPath = "visual"
	VerifyPathData   VerifyPath = "data"
	VerifyPathHybrid VerifyPath = "hybrid"
)

// VerifyState is the position of the verification escalation ladder.
type VerifyState string

const (
	VerifyStart       VerifyState = "start"
	VerifyVisual1     VerifyState = "visual_1"
	VerifyVisual2     VerifyState = "visual_2"
	VerifyVisual3     VerifyState = "visual_3"
	VerifyMCPFallback VerifyState = "mcp_fallback"
	VerifyDecided     VerifyState = "decided"
)

// CaptureMode names the screenshot scope taken for a visual attempt.
type CaptureMode string

const (
	CaptureActiveWindow CaptureMode = "active_window"
	CaptureFullScreen   CaptureMode = "full_screen"
	CaptureDesktopOnly  CaptureMode = "desktop_only"
)

// AdditionalCheck is one concrete MCP probe the router recommends for
// data-path verification.
type AdditionalCheck struct {
	Server           string                 `json:"server"`
	Tool             string                 `json:"tool"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	ExpectedEvidence string                 `json:"expected_evidence,omitempty"`
}

// VerificationDecision is the router's routing plan for verifying one
// todo item. VerificationAction is the item action rewritten into an
// idempotent check ("create X" becomes "confirm X exists").
type VerificationDecision struct {
	VisualPossible      bool               `json:"visual_possible"`
	Confidence          float64            `json:"confidence"`
	Reason              string             `json:"reason,omitempty"`
	RecommendedPath     VerifyPath         `json:"recommended_path"`
	AdditionalChecks    []*AdditionalCheck `json:"additional_checks,omitempty"`
	AllowVisualFallback bool               `json:"allow_visual_fallback"`
	VerificationAction  string             `json:"verification_action,omitempty"`
}

// VisualEvidence is what a vision model reported about a screenshot.
type VisualEvidence struct {
	Observed        string `json:"observed"`
	MatchesCriteria bool   `json:"matches_criteria"`
	Details         string `json:"details,omitempty"`
}

// Verification is the final verdict for one todo item attempt.
// FallbackDetected records that the vision answer only parsed through
// the tolerant fallback path and was therefore rejected as evidence.
type Verification struct {
	Verified             bool                   `json:"verified"`
	Confidence           float64                `json:"confidence"`
	Reason               string                 `json:"reason,omitempty"`
	Method               string                 `json:"method,omitempty"`
	VisualEvidence       *VisualEvidence        `json:"visual_evidence,omitempty"`
	ScreenshotPath       string                 `json:"screenshot_path,omitempty"`
	VisionModel          string                 `json:"vision_model,omitempty"`
	MCPResults           []*ToolResult          `json:"mcp_results,omitempty"`
	TTSPhrase            string                 `json:"tts_phrase,omitempty"`
	FallbackDetected     bool                   `json:"_fallback_detected,omitempty"`
	SecurityChecksPassed bool                   `json:"_security_checks_passed"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}

// NextAction is what the orchestrator does with an item after its
// verification verdict.
type NextAction string

const (
	NextContinue NextAction = "continue"
	NextRetry    NextAction = "retry"
	NextAdjust   NextAction = "adjust"
)

// RootCause classifies why an item failed, steering the replanner.
type RootCause string

const (
	CauseMissingPrerequisite       RootCause = "missing_prerequisite"
	CausePermissionIssue           RootCause = "permission_issue"
	CauseWrongParameters           RootCause = "wrong_parameters"
	CauseToolExecutionFailed       RootCause = "tool_execution_failed"
	CauseTimingIssue               RootCause = "timing_issue"
	CauseWrongApproach             RootCause = "wrong_approach"
	CauseUnrealisticCriteria       RootCause = "unrealistic_criteria"
	CauseUnclearState              RootCause = "unclear_state"
	CauseVisionModelFailure        RootCause = "vision_model_failure"
	CauseExecutionErrorVisible     RootCause = "execution_error_visible"
	CauseToolsSucceededWrongResult RootCause = "tools_succeeded_but_wrong_result"
)

// VerificationOutcome pairs the verdict with the follow-up decision.
type VerificationOutcome struct {
	Verification *Verification `json:"verification"`
	NextAction   NextAction    `json:"next_action"`
	RootCause    RootCause     `json:"root_cause,omitempty"`
	Guidance     string        `json:"guidance,omitempty"`
}
