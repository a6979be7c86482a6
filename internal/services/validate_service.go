package services

import (
	"fmt"
	"strings"

	"github.com/yungbote/manimstudio-backend/internal/types"
)

// ValidateService statically checks generated Manim source before any
// resources are committed to rendering. It never executes the script.
type ValidateService interface {
	Validate(code string) types.ValidationResult
}

type validateService struct{}

func NewValidateService() ValidateService {
	return &validateService{}
}

func (v *validateService) Validate(code string) types.ValidationResult {
	if strings.TrimSpace(code) == "" {
		return types.ValidationResult{Valid: false, Error: "Script is empty"}
	}
	if msg := checkPythonWellFormed(code); msg != "" {
		return types.ValidationResult{Valid: false, Error: msg}
	}
	if !strings.Contains(code, "from manim import") {
		return types.ValidationResult{Valid: false, Error: "Missing 'from manim import' statement"}
	}
	if !sceneClassRe.MatchString(code) {
		return types.ValidationResult{Valid: false, Error: "No Scene class found"}
	}
	if !strings.Contains(code, "def construct(") {
		return types.ValidationResult{Valid: false, Error: "No construct method found"}
	}
	return types.ValidationResult{Valid: true}
}

type openBracket struct {
	ch   byte
	line int
}

// checkPythonWellFormed is a lightweight structural parse: bracket balance,
// string termination and triple-quote tracking, with line numbers in every
// message. It accepts a superset of valid Python; anything it rejects would
// also fail the real parser.
func checkPythonWellFormed(code string) string {
	var stack []openBracket
	var tripleDelim string

	lines := strings.Split(code, "\n")
	for lineIdx, line := range lines {
		lineNo := lineIdx + 1
		i := 0
		for i < len(line) {
			if tripleDelim != "" {
				if strings.HasPrefix(line[i:], tripleDelim) {
					tripleDelim = ""
					i += 3
					continue
				}
				i++
				continue
			}

			c := line[i]
			switch c {
			case '#':
				i = len(line)
			case '\'', '"':
				delim := string(c)
				if strings.HasPrefix(line[i:], delim+delim+delim) {
					tripleDelim = delim + delim + delim
					i += 3
					continue
				}
				end := scanStringEnd(line, i)
				if end < 0 {
					return fmt.Sprintf("Syntax error: unterminated string literal at line %d", lineNo)
				}
				i = end + 1
			case '(', '[', '{':
				stack = append(stack, openBracket{ch: c, line: lineNo})
				i++
			case ')', ']', '}':
				if len(stack) == 0 {
					return fmt.Sprintf("Syntax error: unmatched '%c' at line %d", c, lineNo)
				}
				top := stack[len(stack)-1]
				if !bracketsMatch(top.ch, c) {
					return fmt.Sprintf("Syntax error: mismatched '%c' at line %d (expected closing for '%c' from line %d)", c, lineNo, top.ch, top.line)
				}
				stack = stack[:len(stack)-1]
				i++
			default:
				i++
			}
		}
	}

	if tripleDelim != "" {
		return fmt.Sprintf("Syntax error: unterminated triple-quoted string at end of file (line %d)", len(lines))
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return fmt.Sprintf("Syntax error: unclosed '%c' opened at line %d", top.ch, top.line)
	}
	return ""
}

// scanStringEnd returns the index of the closing quote of the single-line
// string starting at start, or -1 when the line ends first. Backslash escapes
// are honored.
func scanStringEnd(line string, start int) int {
	delim := line[start]
	for i := start + 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case delim:
			return i
		}
	}
	return -1
}

func bracketsMatch(open, close byte) bool {
	switch open {
	case '(':
		return close == ')'
	case '[':
		return close == ']'
	case '{':
		return close == '}'
	}
	return false
}
