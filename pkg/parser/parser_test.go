package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrictJSON(t *testing.T) {
	p := New(nil)
	result := p.Parse(`{"mode": "task", "confidence": 0.9}`)

	assert.Equal(t, LevelStrict, result.Level)
	assert.False(t, result.Fallback)
	assert.Equal(t, "task", result.Object["mode"])
	assert.InDelta(t, 0.9, result.Object["confidence"], 0.001)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestParseStripsCodeFences(t *testing.T) {
	p := New(nil)
	raw := "Here is the plan:\n```json\n{\"mode\": \"chat\"}\n```\nHope that helps."
	result := p.Parse(raw)

	assert.Equal(t, LevelStrict, result.Level)
	assert.Equal(t, "chat", result.Object["mode"])
}

func TestParseFenceWithoutNewline(t *testing.T) {
	p := New(nil)
	result := p.Parse("```json{\"ok\": true}```")

	assert.Equal(t, LevelStrict, result.Level)
	assert.Equal(t, true, result.Object["ok"])
}

func TestParseRepairsUnquotedKeys(t *testing.T) {
	p := New(nil)
	result := p.Parse(`{mode: "dev", confidence: 0.8}`)

	assert.Equal(t, LevelRepaired, result.Level)
	assert.Equal(t, "dev", result.Object["mode"])
}

func TestParseRepairsSingleQuotes(t *testing.T) {
	p := New(nil)
	result := p.Parse(`{'mode': 'task'}`)

	assert.Equal(t, LevelRepaired, result.Level)
	assert.Equal(t, "task", result.Object["mode"])
}

func TestParseRepairsTrailingComma(t *testing.T) {
	p := New(nil)
	result := p.Parse(`{"items": [1, 2, 3,], "done": true,}`)

	assert.Equal(t, LevelRepaired, result.Level)
	assert.Equal(t, true, result.Object["done"])
}

func TestParseRepairsTruncatedObject(t *testing.T) {
	p := New(nil)
	result := p.Parse(`{"mode": "task", "reasoning": "the user wants`)

	assert.Equal(t, LevelRepaired, result.Level)
	assert.Equal(t, "task", result.Object["mode"])
}

func TestParseExtractsLargestBlock(t *testing.T) {
	p := New(nil)
	raw := `Sure thing {"small": 1} but the real answer is {"mode": "task", "confidence": 0.75, "reasoning": "needs tools"} as requested: also note the dangling { here`
	result := p.Parse(raw)

	assert.Equal(t, LevelExtracted, result.Level)
	assert.Equal(t, "task", result.Object["mode"])
	assert.False(t, result.Fallback)
}

func TestParseWrapsTopLevelArray(t *testing.T) {
	p := New(nil)
	result := p.Parse(`[{"action": "open browser"}, {"action": "search"}]`)

	assert.Equal(t, LevelStrict, result.Level)
	items, ok := result.Object["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestParseKeywordSalvage(t *testing.T) {
	p := New(nil)
	p.SetKnownServers([]string{"filesystem", "playwright"})
	raw := "I think this is a task for the filesystem server, confidence: 0.6, verified: true"
	result := p.Parse(raw)

	assert.Equal(t, LevelKeyword, result.Level)
	assert.True(t, result.Fallback)
	assert.Equal(t, true, result.Object[FallbackKey])
	assert.Equal(t, "task", result.Object["mode"])
	assert.InDelta(t, 0.6, result.Object["confidence"], 0.001)
	assert.Equal(t, true, result.Object["verified"])

	servers, ok := result.Object["selected_servers"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "filesystem", servers[0])
}

func TestParseEmptyInputStillReturnsObject(t *testing.T) {
	p := New(nil)
	result := p.Parse("")

	require.NotNil(t, result.Object)
	assert.True(t, result.Fallback)
	assert.Equal(t, true, result.Object[FallbackKey])
}

func TestParseNullLiteralFallsThrough(t *testing.T) {
	p := New(nil)
	result := p.Parse("null")

	require.NotNil(t, result.Object)
	assert.Equal(t, LevelKeyword, result.Level)
}

func TestDecodeIntoStruct(t *testing.T) {
	p := New(nil)
	result := p.Parse(`{"mode": "chat", "confidence": 0.95, "reasoning": "greeting"}`)

	var decision struct {
		Mode       string  `json:"mode"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	require.NoError(t, result.Decode(&decision))
	assert.Equal(t, "chat", decision.Mode)
	assert.InDelta(t, 0.95, decision.Confidence, 0.001)
}

func TestRepairJSONClosesNestedBrackets(t *testing.T) {
	repaired := repairJSON(`{"a": [1, 2, {"b": "c"`)
	assert.Equal(t, `{"a": [1, 2, {"b": "c"}]}`, repaired)
}

func TestLargestJSONBlockIgnoresBracesInStrings(t *testing.T) {
	block := largestJSONBlock(`text {"msg": "look a } inside", "n": 5} tail`)
	assert.Equal(t, `{"msg": "look a } inside", "n": 5}`, block)
}
