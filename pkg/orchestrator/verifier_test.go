package orchestrator

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/capture"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

func visualDecision() *types.VerificationDecision {
	return &types.VerificationDecision{
		RecommendedPath:     types.VerifyPathVisual,
		VisualPossible:      true,
		AllowVisualFallback: true,
	}
}

func TestVerifierAcceptsStructuredMatchOnFirstRung(t *testing.T) {
	model := &scriptedModel{script: []scriptStep{
		reply(`{"observed":"Finder window shows folder demo at /tmp/demo","matches_criteria":true,"confidence":72,"details":"folder name and path visible"}`),
	}}
	sink := &eventSink{}
	verifier := NewVerifier(newTestRunner(t, model, sink), newFakeCatalog(), &capture.Stub{})

	item := testItem("1", "Створи папку /tmp/demo", "Папка demo існує в /tmp")
	outcome := verifier.Verify(context.Background(), item, visualDecision(), &types.ExecutionReport{AllSuccessful: true})

	require.NotNil(t, outcome.Verification)
	assert.True(t, outcome.Verification.Verified)
	assert.Equal(t, types.NextContinue, outcome.NextAction)
	assert.InDelta(t, 72, outcome.Verification.Confidence, 0.01)
	assert.Equal(t, methodVisual, outcome.Verification.Method)
	assert.Equal(t, "vision-fast", outcome.Verification.VisionModel)
	assert.Equal(t, "stub_active_window.png", outcome.Verification.ScreenshotPath)
	assert.True(t, outcome.Verification.SecurityChecksPassed)

	calls := model.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "vision-fast", calls[0].Model)
	assert.Equal(t, 1, calls[0].Images)
	assert.Contains(t, calls[0].User, "verify existence of")

	decided := sink.ofType(events.VerificationDecided)
	require.Len(t, decided, 1)
	evt := decided[0].(*events.VerificationDecidedEvent)
	assert.True(t, evt.Verified)
	assert.Equal(t, string(types.NextContinue), evt.NextAction)
}

func TestVerifierRejectsUnstructuredResponseAndEscalates(t *testing.T) {
	model := &scriptedModel{script: []scriptStep{
		reply(`The folder was created successfully and is visible in Finder.`),
		reply(`{"observed":"Directory demo exists at /tmp/demo","matches_criteria":true,"confidence":85,"details":""}`),
	}}
	sink := &eventSink{}
	shots := &capture.Stub{}
	verifier := NewVerifier(newTestRunner(t, model, sink), newFakeCatalog(), shots)

	item := testItem("1", "Create folder /tmp/demo", "Folder demo exists")
	outcome := verifier.Verify(context.Background(), item, visualDecision(), nil)

	assert.True(t, outcome.Verification.Verified)
	assert.Equal(t, types.NextContinue, outcome.NextAction)
	assert.InDelta(t, 85, outcome.Verification.Confidence, 0.01)
	assert.Equal(t, "vision-primary", outcome.Verification.VisionModel)
	assert.False(t, outcome.Verification.FallbackDetected)
	assert.True(t, outcome.Verification.SecurityChecksPassed)

	rejections := sink.ofType(events.SecurityRejection)
	require.Len(t, rejections, 1)
	rej := rejections[0].(*events.SecurityRejectionEvent)
	assert.Equal(t, string(types.VerifyVisual1), rej.State)
	assert.Contains(t, rej.Detail, "structured")

	assert.Equal(t, []types.CaptureMode{types.CaptureActiveWindow, types.CaptureFullScreen}, shots.Calls)

	calls := model.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "vision-fast", calls[0].Model)
	assert.Equal(t, "vision-primary", calls[1].Model)
}

func TestVerifierContradictionRejectsDespiteMatchClaim(t *testing.T) {
	contradiction := `{"observed":"Calculator displays 27, expected 27, does not match","matches_criteria":true,"confidence":90,"details":""}`
	model := &scriptedModel{script: []scriptStep{
		reply(contradiction),
		reply(contradiction),
		reply(contradiction),
		reply(`{"root_cause":"tools_succeeded_but_wrong_result","next_action":"adjust","guidance":"recompute the expression and compare digits"}`),
	}}
	sink := &eventSink{}
	verifier := NewVerifier(newTestRunner(t, model, sink), newFakeCatalog(), &capture.Stub{})

	item := testItem("2", "Compute 13 + 14 in Calculator", "Calculator shows 27")
	outcome := verifier.Verify(context.Background(), item, visualDecision(), &types.ExecutionReport{AllSuccessful: true})

	assert.False(t, outcome.Verification.Verified)
	assert.Contains(t, outcome.Verification.Reason, "contradiction")
	assert.Equal(t, types.NextAdjust, outcome.NextAction)
	assert.Equal(t, types.CauseToolsSucceededWrongResult, outcome.RootCause)
	assert.Equal(t, "recompute the expression and compare digits", outcome.Guidance)

	// The full ladder ran before giving up.
	calls := model.recorded()
	require.Len(t, calls, 4)
	assert.Equal(t, "vision-fast", calls[0].Model)
	assert.Equal(t, "vision-primary", calls[1].Model)
	assert.Equal(t, "vision-top", calls[2].Model)
	assert.Equal(t, "test-model", calls[3].Model)
	assert.Equal(t, 0, calls[3].Images)

	assert.Len(t, sink.ofType(events.VerificationEscalated), 2)
	assert.Empty(t, sink.ofType(events.SecurityRejection))
}

func TestVerifierExplicitSuccessWordingAcceptsWithFloor(t *testing.T) {
	model := &scriptedModel{script: []scriptStep{
		reply(`{"observed":"Task completed successfully, folder created","matches_criteria":false,"confidence":0.3,"details":""}`),
	}}
	verifier := NewVerifier(newTestRunner(t, model, nil), newFakeCatalog(), &capture.Stub{})

	outcome := verifier.Verify(context.Background(), testItem("1", "Create folder /tmp/demo", "Folder exists"), visualDecision(), nil)

	assert.True(t, outcome.Verification.Verified)
	// Explicit success wording accepts, but never below the floor.
	assert.InDelta(t, 50, outcome.Verification.Confidence, 0.01)
	assert.Contains(t, outcome.Verification.Reason, "model states success")
}

func TestVerifierDataChecksVerifyWithoutVision(t *testing.T) {
	catalog := newFakeCatalog().
		addServer("filesystem", "get_file_info").
		addServer("applescript", "run_applescript").
		scriptReply("filesystem__get_file_info", `{"type":"directory","name":"demo"}`).
		scriptReply("applescript__run_applescript", `window list: Finder`)
	model := &scriptedModel{}
	sink := &eventSink{}
	verifier := NewVerifier(newTestRunner(t, model, sink), catalog, nil)

	decision := &types.VerificationDecision{
		RecommendedPath: types.VerifyPathData,
		VisualPossible:  false,
		AdditionalChecks: []*types.AdditionalCheck{
			{Server: "applescript", Tool: "run_applescript", Parameters: map[string]interface{}{"script": "tell app"}},
			{Server: "filesystem", Tool: "get_file_info", Parameters: map[string]interface{}{"path": "/tmp/demo"}},
		},
	}
	outcome := verifier.Verify(context.Background(), testItem("1", "Create folder /tmp/demo", "Folder demo exists"), decision, nil)

	assert.True(t, outcome.Verification.Verified)
	assert.Equal(t, types.NextContinue, outcome.NextAction)
	assert.InDelta(t, dataCheckPassConfidence, outcome.Verification.Confidence, 0.01)
	assert.Equal(t, methodMCP, outcome.Verification.Method)
	require.Len(t, outcome.Verification.MCPResults, 2)

	// Filesystem probes run before everything else.
	calls := catalog.recordedCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "filesystem", calls[0].Server)
	assert.Equal(t, "applescript", calls[1].Server)

	assert.Empty(t, model.recorded(), "no vision calls on the data path")
}

func TestVerifierFailedProbeClassifiesMissingPrerequisite(t *testing.T) {
	catalog := newFakeCatalog().
		addServer("filesystem", "get_file_info").
		scriptToolError("filesystem__get_file_info", "Error: ENOENT: no such file or directory, stat '/tmp/demo'")
	verifier := NewVerifier(newTestRunner(t, &scriptedModel{}, nil), catalog, nil)

	decision := &types.VerificationDecision{
		RecommendedPath: types.VerifyPathData,
		VisualPossible:  false,
		AdditionalChecks: []*types.AdditionalCheck{
			{Server: "filesystem", Tool: "get_file_info", Parameters: map[string]interface{}{"path": "/tmp/demo"}},
		},
	}
	outcome := verifier.Verify(context.Background(), testItem("1", "Create folder /tmp/demo", "Folder demo exists"), decision, nil)

	assert.False(t, outcome.Verification.Verified)
	assert.InDelta(t, dataCheckFailConfidence, outcome.Verification.Confidence, 0.01)
	assert.Equal(t, types.NextAdjust, outcome.NextAction)
	assert.Equal(t, types.CauseMissingPrerequisite, outcome.RootCause)
}

func TestVerifierTransientReasonRetries(t *testing.T) {
	loading := `{"observed":"Page is still loading, spinner visible","matches_criteria":false,"confidence":40,"details":""}`
	model := &scriptedModel{script: []scriptStep{reply(loading), reply(loading), reply(loading)}}
	verifier := NewVerifier(newTestRunner(t, model, nil), newFakeCatalog(), &capture.Stub{})

	outcome := verifier.Verify(context.Background(), testItem("3", "Open https://example.com", "Page is shown"), visualDecision(), nil)

	assert.False(t, outcome.Verification.Verified)
	assert.Equal(t, types.NextRetry, outcome.NextAction)
	assert.Equal(t, types.CauseTimingIssue, outcome.RootCause)
}

func TestVerifierExhaustedAttemptsAdjust(t *testing.T) {
	vague := `{"observed":"window shows an empty desktop","matches_criteria":false,"confidence":60,"details":""}`
	model := &scriptedModel{script: []scriptStep{reply(vague), reply(vague), reply(vague)}}
	verifier := NewVerifier(newTestRunner(t, model, nil), newFakeCatalog(), &capture.Stub{})

	item := testItem("1", "Open the report window", "Report window is visible")
	item.Attempt = 3
	outcome := verifier.Verify(context.Background(), item, visualDecision(), nil)

	assert.False(t, outcome.Verification.Verified)
	assert.Equal(t, types.NextAdjust, outcome.NextAction)
	assert.Equal(t, types.CauseUnrealisticCriteria, outcome.RootCause)
}

func TestVerifierAnalysisMayDowngradeDefaultAdjustToRetry(t *testing.T) {
	unclear := `{"observed":"Window content unchanged and stable","matches_criteria":false,"confidence":65,"details":""}`
	model := &scriptedModel{script: []scriptStep{
		reply(unclear),
		reply(unclear),
		reply(unclear),
		reply(`{"root_cause":"unclear_state","next_action":"retry","guidance":"wait a moment and check the window again"}`),
	}}
	verifier := NewVerifier(newTestRunner(t, model, nil), newFakeCatalog(), &capture.Stub{})

	outcome := verifier.Verify(context.Background(), testItem("2", "Click the refresh button", "Table shows new rows"), visualDecision(), nil)

	assert.False(t, outcome.Verification.Verified)
	assert.Equal(t, types.NextRetry, outcome.NextAction)
	assert.Equal(t, types.CauseUnclearState, outcome.RootCause)
	assert.Equal(t, "wait a moment and check the window again", outcome.Guidance)
}

func TestVerifierNoEvidenceAvailable(t *testing.T) {
	verifier := NewVerifier(newTestRunner(t, &scriptedModel{}, nil), newFakeCatalog(), nil)

	decision := &types.VerificationDecision{RecommendedPath: types.VerifyPathData, VisualPossible: false}
	outcome := verifier.Verify(context.Background(), testItem("1", "Create folder /tmp/demo", "Folder exists"), decision, nil)

	assert.False(t, outcome.Verification.Verified)
	assert.Equal(t, methodNone, outcome.Verification.Method)
	assert.Equal(t, types.NextAdjust, outcome.NextAction)
	assert.Equal(t, types.CauseUnclearState, outcome.RootCause)
}

func TestContradictionDetector(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"explicit assertion", "Calculator displays 27, expected 27, does not match", true},
		{"value mismatch while claiming success", "The display shows 28 but expected 27, result matches the criteria", true},
		{"clean match", "The display shows 27, expected 27, values match as expected", false},
		{"plain failure wording", "The folder is missing from the listing", false},
		{"ukrainian assertion", "Значення не збігається з очікуваним", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := contradictionIn(tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnippetTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("перевірка ", 40))
	got := snippet(long)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 163, utf8.RuneCountInString(got))

	short := "Папка demo існує в /tmp"
	assert.Equal(t, short, snippet(short))
}
