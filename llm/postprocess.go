package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeFenceRE = regexp.MustCompile("(?s)```(?:json|sql|javascript)?\\s*(.*?)\\s*```")

// stripCodeFence removes a single leading/trailing markdown code fence, if
// present, and trims surrounding whitespace. Used by every GenerateX
// convenience wrapper before the caller sees the completion (spec §4.2).
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if m := codeFenceRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// tryParseJSONObject accepts either a raw JSON object or one fenced in
// triple backticks (spec §4.3.2's mongo_query.tpl parser contract, reused
// here for every JSON-shaped completion).
func tryParseJSONObject(text string) (map[string]any, bool) {
	candidate := stripCodeFence(text)
	var out map[string]any
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, false
	}
	return out, true
}
