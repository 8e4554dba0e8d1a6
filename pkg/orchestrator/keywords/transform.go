package keywords

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const genericVerification = "verify the result"

// verbTransform rewrites one family of action verbs into a verification
// instruction. The template's %s slot takes the remainder of the action;
// generic covers actions with no object.
type verbTransform struct {
	stems    []string
	template string
	generic  string
}

var verbTransforms = []verbTransform{
	{
		stems:    normalizeAll([]string{"create", "make", "mkdir", "створ", "зроб", "додай"}),
		template: "verify existence of %s",
		generic:  genericVerification,
	},
	{
		stems:   normalizeAll([]string{"compute", "calculate", "count", "обчисл", "порахуй", "підрахуй"}),
		generic: genericVerification,
	},
	{
		stems:    normalizeAll([]string{"open", "launch", "start", "activate", "відкри", "запуст"}),
		template: "verify %s is open",
		generic:  genericVerification,
	},
	{
		stems:    normalizeAll([]string{"delete", "remove", "видал", "прибер"}),
		template: "verify %s no longer exists",
		generic:  genericVerification,
	},
	{
		stems:   normalizeAll([]string{"type", "enter", "input", "введ", "напиш"}),
		generic: "verify the entered value",
	},
	{
		stems:   normalizeAll([]string{"click", "press", "натисн"}),
		generic: "verify the resulting state",
	},
}

// VerificationAction turns an item action into the instruction a verifier
// model can check. Applying it to its own output returns the input
// unchanged, so routed items never double-wrap.
func VerificationAction(action string) string {
	normalized := Normalize(action)
	if normalized == "" {
		return genericVerification
	}
	if strings.HasPrefix(normalized, "verify") || strings.HasPrefix(normalized, "перевір") {
		return action
	}

	fields := strings.Fields(normalized)
	first := fields[0]
	rest := ""
	if len(fields) > 1 {
		rest = strings.Join(fields[1:], " ")
	}

	for _, tr := range verbTransforms {
		if !tr.matches(first) {
			continue
		}
		if tr.template != "" && rest != "" {
			return fmt.Sprintf(tr.template, rest)
		}
		return tr.generic
	}
	return genericVerification
}

// matches accepts the whole first word, or a prefix when the stem is long
// enough to not collide with unrelated words.
func (tr verbTransform) matches(word string) bool {
	for _, stem := range tr.stems {
		if word == stem {
			return true
		}
		if utf8.RuneCountInString(stem) >= 4 && strings.HasPrefix(word, stem) {
			return true
		}
	}
	return false
}
