package research

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON value found in reply")

// ExtractJSON returns the first well-formed JSON object or array embedded in
// s. Replies often wrap the payload in prose or markdown fences, and may
// contain bracketed text before it, so each candidate opening bracket is
// scanned to its balanced close and validated before being accepted.
func ExtractJSON(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		end, ok := balancedEnd(s, i)
		if !ok {
			continue
		}
		candidate := s[i : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// balancedEnd finds the index of the bracket closing the one at start,
// skipping brackets that appear inside string literals.
func balancedEnd(s string, start int) (int, bool) {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false
	for j := start; j < len(s); j++ {
		c := s[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return j, true
			}
		}
	}
	return 0, false
}

func decodeReply(reply string, v any) error {
	raw, ok := ExtractJSON(reply)
	if !ok {
		return errNoJSON
	}
	return json.Unmarshal([]byte(raw), v)
}

func isArray(b []byte) bool {
	return strings.HasPrefix(strings.TrimSpace(string(b)), "[")
}
