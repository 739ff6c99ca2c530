package llm

import (
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnparseable is returned when a model reply holds no usable JSON.
var ErrUnparseable = errors.New("unparseable model output")

var fencePattern = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n\\s*```")

// ExtractJSON pulls a JSON document out of a model reply. A fenced json
// block wins; otherwise the first balanced object or array is taken.
func ExtractJSON(reply string) (string, error) {
	for _, m := range fencePattern.FindAllStringSubmatch(reply, -1) {
		lang, body := strings.ToLower(m[1]), strings.TrimSpace(m[2])
		if (lang == "" || lang == "json") && gjson.Valid(body) {
			return body, nil
		}
	}

	trimmed := strings.TrimSpace(reply)
	if gjson.Valid(trimmed) && (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) {
		return trimmed, nil
	}

	start := strings.IndexAny(reply, "{[")
	for start >= 0 {
		if doc := balanced(reply[start:]); doc != "" && gjson.Valid(doc) {
			return doc, nil
		}
		next := strings.IndexAny(reply[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrUnparseable
}

// balanced returns the prefix of s up to the bracket closing s[0].
func balanced(s string) string {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
