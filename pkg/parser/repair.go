package parser

import (
	"regexp"
	"strings"
)

var (
	unquotedKeyPattern   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	singleQuotedPattern  = regexp.MustCompile(`'([^'\\]*)'`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// repairJSON applies the mechanical fixes models most often need:
// unquoted keys, single quotes, trailing commas and truncated output
// with unclosed braces.
func repairJSON(content string) string {
	repaired := unquotedKeyPattern.ReplaceAllString(content, `$1"$2":`)
	repaired = singleQuotedPattern.ReplaceAllString(repaired, `"$1"`)
	repaired = trailingCommaPattern.ReplaceAllString(repaired, `$1`)
	return closeOpenBrackets(repaired)
}

// closeOpenBrackets appends the closers a truncated payload is
// missing, matched by a string-aware scan of the opener stack.
func closeOpenBrackets(content string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, ch)
			}
		case '}':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 && !inString {
		return content
	}
	var builder strings.Builder
	builder.WriteString(content)
	if inString {
		builder.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			builder.WriteByte('}')
		} else {
			builder.WriteByte(']')
		}
	}
	return builder.String()
}

// largestJSONBlock returns the longest balanced {...} substring, or
// empty when none exists.
func largestJSONBlock(content string) string {
	best := ""
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i := 0; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString && depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidate := content[start : i+1]
					if len(candidate) > len(best) {
						best = candidate
					}
				}
			}
		}
	}
	return best
}
