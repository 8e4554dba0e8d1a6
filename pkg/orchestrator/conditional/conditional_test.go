package conditional

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/llm"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/parser"
)

type scriptedModel struct {
	mu     sync.Mutex
	script []string
	errs   []error
	idx    int
	users  []string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		if msg.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.users = append(m.users, text.Text)
			}
		}
	}
	if m.idx >= len(m.script) {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", len(m.script))
	}
	i := m.idx
	m.idx++
	if m.errs != nil && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.script[i]}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func newDecider(model *scriptedModel) *Decider {
	gateway := llm.NewGatewayWithClient(model, llm.Config{
		Provider:    llm.ProviderOpenAI,
		ModelID:     "test-model",
		MaxAttempts: 1,
		Timeout:     5 * time.Second,
	})
	return New(gateway, parser.New(nil), "", nil)
}

func TestDecideStructuredVerdict(t *testing.T) {
	model := &scriptedModel{script: []string{
		`{"result": true, "confidence": 90, "reason": "the error repeats across restarts"}`,
	}}
	decider := newDecider(model)

	decision, err := decider.Decide(context.Background(), "Does this problem warrant a deeper analysis pass?", "timeout repeats in error.log")
	require.NoError(t, err)
	assert.True(t, decision.Result)
	assert.InDelta(t, 90, decision.Confidence, 0.01)
	assert.Equal(t, "the error repeats across restarts", decision.Reason)

	// The question and the context both reached the model verbatim.
	require.Len(t, model.users, 1)
	assert.Contains(t, model.users[0], "Does this problem warrant a deeper analysis pass?")
	assert.Contains(t, model.users[0], "timeout repeats in error.log")
}

func TestDecideNegativeVerdict(t *testing.T) {
	model := &scriptedModel{script: []string{
		`{"result": false, "confidence": 70, "reason": "a one-off warning"}`,
	}}
	decision, err := newDecider(model).Decide(context.Background(), "Deeper pass?", "single warning")
	require.NoError(t, err)
	assert.False(t, decision.Result)
}

func TestDecideRecoversFromUnstructuredAnswer(t *testing.T) {
	model := &scriptedModel{script: []string{
		`Based on the context the answer is true, the failure is systemic.`,
	}}
	decision, err := newDecider(model).Decide(context.Background(), "Deeper pass?", "context")
	require.NoError(t, err)
	assert.True(t, decision.Result)
	assert.Equal(t, "recovered from unstructured answer", decision.Reason)
}

func TestDecideAmbiguousTokenScanIsFalse(t *testing.T) {
	// Both tokens present means no clear verdict, so the scan stays
	// conservative.
	model := &scriptedModel{script: []string{
		`It could be true or false depending on the log window.`,
	}}
	decision, err := newDecider(model).Decide(context.Background(), "Deeper pass?", "context")
	require.NoError(t, err)
	assert.False(t, decision.Result)
}

func TestDecidePropagatesGatewayFailure(t *testing.T) {
	model := &scriptedModel{script: []string{""}, errs: []error{fmt.Errorf("provider down")}}
	decision, err := newDecider(model).Decide(context.Background(), "Deeper pass?", "context")
	require.Error(t, err)
	assert.Nil(t, decision)
	assert.Contains(t, err.Error(), "conditional decision failed")
}
