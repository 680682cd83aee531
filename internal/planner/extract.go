package planner

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply carries no JSON object.
var ErrNoJSON = errors.New("reply contains no JSON object")

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ExtractJSON pulls the JSON object out of a model reply. It tries, in order,
// the whole reply, the first fenced code block that holds valid JSON, and the
// span from the first '{' to the last '}'.
func ExtractJSON(reply string) ([]byte, error) {
	raw := strings.TrimSpace(reply)
	if raw == "" {
		return nil, ErrNoJSON
	}
	if isObject(raw) {
		return []byte(raw), nil
	}

	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		if body := strings.TrimSpace(m[1]); isObject(body) {
			return []byte(body), nil
		}
	}

	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first < 0 || last < first {
		return nil, ErrNoJSON
	}
	body := raw[first : last+1]
	if !json.Valid([]byte(body)) {
		return nil, errors.New("reply contains malformed JSON")
	}
	return []byte(body), nil
}

func isObject(s string) bool {
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}
