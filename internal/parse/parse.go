package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Fields is the structured payload extracted from a model response.
type Fields struct {
	Reasoning      string
	Classification string
}

// Result carries the extracted fields. Degraded means no strategy could
// extract structure and the raw text was kept as reasoning; the row still
// completes.
type Result struct {
	Fields
	Degraded bool
}

// A strategy attempts one response shape. Strategies are pure and tried in
// order until one succeeds.
type strategy func(text string) (Fields, bool)

var strategies = []strategy{
	parseJSONObject,
	parseEmbeddedJSON,
	parseLabeledLines,
}

// Parse extracts (reasoning, classification) from raw model output. It
// never fails: when every strategy misses, the whole text becomes the
// reasoning and the result is marked degraded.
func Parse(text string) Result {
	for _, s := range strategies {
		if f, ok := s(text); ok {
			return Result{Fields: f}
		}
	}
	return Result{
		Fields:   Fields{Reasoning: strings.TrimSpace(text)},
		Degraded: true,
	}
}

// key aliases, matched case-insensitively. "thoughts" comes from older
// prompt templates that asked for Thoughts/Category.
var (
	reasoningKeys      = []string{"reasoning", "analysis", "thoughts"}
	classificationKeys = []string{"classification", "category", "result"}
)

func matchKey(key string, aliases []string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, a := range aliases {
		if k == a {
			return true
		}
	}
	return false
}

func fieldsFromMap(m map[string]any) (Fields, bool) {
	var f Fields
	found := false
	for k, v := range m {
		s := stringify(v)
		switch {
		case matchKey(k, reasoningKeys):
			f.Reasoning = s
			found = true
		case matchKey(k, classificationKeys):
			f.Classification = s
			found = true
		}
	}
	return f, found
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// parseJSONObject handles a response that is one well-formed JSON object.
func parseJSONObject(text string) (Fields, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return Fields{}, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return Fields{}, false
	}
	return fieldsFromMap(m)
}

// parseEmbeddedJSON handles a JSON object wrapped in prose or a fenced
// code block: the first balanced {...} span is cut out and parsed.
func parseEmbeddedJSON(text string) (Fields, bool) {
	span, ok := firstBalancedObject(text)
	if !ok {
		return Fields{}, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(span), &m); err != nil {
		return Fields{}, false
	}
	return fieldsFromMap(m)
}

// firstBalancedObject returns the first {...} span with balanced braces,
// ignoring braces inside JSON string literals.
func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

var labeledLine = regexp.MustCompile(`(?i)^\s*[*\-"']*\s*([a-z_ ]+?)\s*[*"']*\s*[:：]\s*(.+?)\s*,?\s*$`)

// parseLabeledLines scans for "<label>: <value>" lines whose label loosely
// matches the target field names.
func parseLabeledLines(text string) (Fields, bool) {
	var f Fields
	found := false
	for _, line := range strings.Split(text, "\n") {
		m := labeledLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.Trim(m[2], `"' `)
		switch {
		case f.Reasoning == "" && matchKey(m[1], reasoningKeys):
			f.Reasoning = value
			found = true
		case f.Classification == "" && matchKey(m[1], classificationKeys):
			f.Classification = value
			found = true
		}
	}
	return f, found
}
