package textgen

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoPayload = errors.New("response does not contain a structured payload")

	fencedBlockPattern = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\r?\n?(.*?)```")
)

// ExtractJSON returns the structured payload of a model reply. The payload may be wrapped
// in a fenced code block or returned bare; anything that is not valid JSON is rejected.
func ExtractJSON(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrNoPayload
	}
	for _, match := range fencedBlockPattern.FindAllStringSubmatch(trimmed, -1) {
		candidate := strings.TrimSpace(match[1])
		if isStructured(candidate) {
			return candidate, nil
		}
	}
	if isStructured(trimmed) {
		return trimmed, nil
	}
	if candidate, ok := outermostStructure(trimmed); ok {
		return candidate, nil
	}
	return "", ErrNoPayload
}

func isStructured(candidate string) bool {
	if candidate == "" {
		return false
	}
	if candidate[0] != '{' && candidate[0] != '[' {
		return false
	}
	return json.Valid([]byte(candidate))
}

// outermostStructure handles replies that surround the payload with prose.
func outermostStructure(text string) (string, bool) {
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])
		if start < 0 || end <= start {
			continue
		}
		candidate := text[start : end+1]
		if isStructured(candidate) {
			return candidate, true
		}
	}
	return "", false
}
