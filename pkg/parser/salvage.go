package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	modeTokenPattern  = regexp.MustCompile(`(?i)\b(chat|task|dev)\b`)
	confidencePattern = regexp.MustCompile(`(?i)"?confidence"?\s*[:=]\s*([0-9]*\.?[0-9]+)`)
	verifiedPattern   = regexp.MustCompile(`(?i)"?verified"?\s*[:=]\s*(true|false)`)
	successPattern    = regexp.MustCompile(`(?i)"?success"?\s*[:=]\s*(true|false)`)
	matchesPattern    = regexp.MustCompile(`(?i)"?matches_criteria"?\s*[:=]\s*(true|false)`)
)

// keywordSalvage scrapes whatever recognizable signals survive in
// unparseable text: a mode token, numeric confidence, boolean verdict
// fields and known server names. The caller flags the result.
func (p *Parser) keywordSalvage(raw string) map[string]interface{} {
	obj := make(map[string]interface{})

	if m := modeTokenPattern.FindStringSubmatch(raw); m != nil {
		obj["mode"] = strings.ToLower(m[1])
	}
	if m := confidencePattern.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			obj["confidence"] = v
		}
	}
	if m := verifiedPattern.FindStringSubmatch(raw); m != nil {
		obj["verified"] = strings.EqualFold(m[1], "true")
	}
	if m := successPattern.FindStringSubmatch(raw); m != nil {
		obj["success"] = strings.EqualFold(m[1], "true")
	}
	if m := matchesPattern.FindStringSubmatch(raw); m != nil {
		obj["matches_criteria"] = strings.EqualFold(m[1], "true")
	}

	lower := strings.ToLower(raw)
	var found []interface{}
	for _, server := range p.knownServers {
		if server != "" && strings.Contains(lower, strings.ToLower(server)) {
			found = append(found, server)
		}
	}
	if len(found) > 0 {
		obj["selected_servers"] = found
	}

	return obj
}
