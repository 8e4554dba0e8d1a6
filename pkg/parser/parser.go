package parser

import (
	"encoding/json"
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
)

// FallbackKey marks objects synthesized by the keyword salvage pass.
// Downstream consumers treat such objects as hints, never as evidence.
const FallbackKey = "_fallbackParsed"

// Level records which pass produced the parsed object.
type Level string

const (
	LevelStrict    Level = "strict"
	LevelRepaired  Level = "repaired"
	LevelExtracted Level = "extracted"
	LevelKeyword   Level = "keyword"
)

var levelConfidence = map[Level]float64{
	LevelStrict:    1.0,
	LevelRepaired:  0.85,
	LevelExtracted: 0.7,
	LevelKeyword:   0.3,
}

// Result is a parse outcome. Object is never nil; Confidence is a
// hint about how much surgery the text needed.
type Result struct {
	Object     map[string]interface{} `json:"object"`
	Level      Level                  `json:"level"`
	Confidence float64                `json:"confidence"`
	Fallback   bool                   `json:"fallback"`
}

// Decode maps the parsed object onto a typed struct.
func (r *Result) Decode(target interface{}) error {
	data, err := json.Marshal(r.Object)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// Parser turns messy assistant text into a JSON object. It never
// fails: when every parse pass loses, it synthesizes a minimal object
// from recognizable keywords and flags it.
type Parser struct {
	logger       utils.ExtendedLogger
	knownServers []string
}

// New returns a parser. The logger may be nil.
func New(logger utils.ExtendedLogger) *Parser {
	return &Parser{logger: logger}
}

// SetKnownServers feeds the keyword salvage pass the server names it
// may recognize in free text.
func (p *Parser) SetKnownServers(servers []string) {
	p.knownServers = servers
}

// Parse runs the four passes in order: strict parse, repair parse,
// largest-block extraction, keyword salvage.
func (p *Parser) Parse(raw string) *Result {
	cleaned := p.stripCodeFences(raw)

	if obj, ok := tryUnmarshal(cleaned); ok {
		return &Result{Object: obj, Level: LevelStrict, Confidence: levelConfidence[LevelStrict]}
	}

	p.debugf("🔧 Strict JSON parse failed, attempting repair")
	if obj, ok := tryUnmarshal(repairJSON(cleaned)); ok {
		return &Result{Object: obj, Level: LevelRepaired, Confidence: levelConfidence[LevelRepaired]}
	}

	p.debugf("🔧 Repair parse failed, extracting largest JSON block")
	if block := largestJSONBlock(cleaned); block != "" {
		if obj, ok := tryUnmarshal(block); ok {
			return &Result{Object: obj, Level: LevelExtracted, Confidence: levelConfidence[LevelExtracted]}
		}
		if obj, ok := tryUnmarshal(repairJSON(block)); ok {
			return &Result{Object: obj, Level: LevelExtracted, Confidence: levelConfidence[LevelExtracted]}
		}
	}

	p.warnf("⚠️ All JSON parse attempts failed, synthesizing keyword fallback object")
	obj := p.keywordSalvage(raw)
	obj[FallbackKey] = true
	return &Result{Object: obj, Level: LevelKeyword, Confidence: levelConfidence[LevelKeyword], Fallback: true}
}

// stripCodeFences extracts the body of a fenced block and drops an
// optional json language tag. Text outside the fence is discarded.
func (p *Parser) stripCodeFences(content string) string {
	cleaned := strings.TrimSpace(content)
	if !strings.Contains(cleaned, "```") {
		return cleaned
	}
	p.debugf("🔍 Detected markdown code fences, extracting body")
	startIdx := strings.Index(cleaned, "```")
	rest := cleaned[startIdx+3:]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "JSON")
	if endIdx := strings.LastIndex(rest, "```"); endIdx != -1 {
		rest = rest[:endIdx]
	}
	return strings.TrimSpace(rest)
}

// tryUnmarshal parses content into an object. Top-level arrays are
// wrapped under an "items" key so stages that expect lists still get
// an object shape.
func tryUnmarshal(content string) (map[string]interface{}, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, false
	}
	if strings.HasPrefix(trimmed, "[") {
		var arr []interface{}
		if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
			return map[string]interface{}{"items": arr}, true
		}
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}

func (p *Parser) debugf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debugf(format, args...)
	}
}

func (p *Parser) warnf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warnf(format, args...)
	}
}
