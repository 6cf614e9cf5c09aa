// Package repair recovers JSON from model output that may be fenced, prefixed with
// prose or cut off mid-element. Nothing here returns an error or panics: the worst
// case is an empty value.
package repair

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/plays3000/ai-server/internal/models"
)

// JSONArray parses text as a JSON array, repairing it when needed.
func JSONArray(text string) []any {
	var out []any
	if err := json.Unmarshal([]byte(repairText(text, '[', ']')), &out); err != nil || out == nil {
		return []any{}
	}
	return out
}

// JSONObject parses text as a JSON object, repairing it when needed.
func JSONObject(text string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(repairText(text, '{', '}')), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// Mappings parses a learn response into field mappings. Elements that are not
// objects are skipped; key, cell and desc tolerate numbers and booleans.
func Mappings(text string) []models.FieldMapping {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(repairText(text, '[', ']')), &raw); err != nil {
		return []models.FieldMapping{}
	}

	out := make([]models.FieldMapping, 0, len(raw))
	for _, elem := range raw {
		var m struct {
			Key         json.RawMessage `json:"key"`
			Cell        json.RawMessage `json:"cell"`
			Desc        json.RawMessage `json:"desc"`
			Description json.RawMessage `json:"description"`
		}
		if err := json.Unmarshal(elem, &m); err != nil {
			continue
		}
		desc := StringValue(m.Desc)
		if desc == "" {
			desc = StringValue(m.Description)
		}
		out = append(out, models.FieldMapping{
			Key:         strings.TrimSpace(StringValue(m.Key)),
			Cell:        strings.ToUpper(strings.TrimSpace(StringValue(m.Cell))),
			Description: strings.TrimSpace(desc),
		})
	}
	return out
}

// repairText returns a JSON document of the requested kind, or the empty one.
func repairText(text string, open, close byte) string {
	empty := string([]byte{open, close})

	// 1. direct parse
	trimmed := strings.TrimSpace(text)
	if startsWith(trimmed, open) && json.Valid([]byte(trimmed)) {
		return trimmed
	}

	// 2. strip fences and leading prose
	cleaned := stripFences(text)
	start := strings.IndexByte(cleaned, open)
	if start < 0 {
		return empty
	}
	cleaned = cleaned[start:]
	if json.Valid([]byte(cleaned)) {
		return cleaned
	}
	// trailing prose after a complete value
	if end, ok := balancedEnd(cleaned, open, close); ok && json.Valid([]byte(cleaned[:end])) {
		return cleaned[:end]
	}

	// 3. cut back to the last complete top-level element. Object members and
	// nested array elements end at a known boundary; scalar array elements do not,
	// so those are only cut after the bare bracket has been tried.
	if candidate, ok := cutBack(cleaned, close, open == '{'); ok {
		return candidate
	}

	// 4. bare closing bracket
	if candidate := cleaned + string(close); json.Valid([]byte(candidate)) {
		return candidate
	}
	if open == '[' {
		if candidate, ok := cutBack(cleaned, close, true); ok {
			return candidate
		}
	}

	// 5. give up
	return empty
}

func cutBack(s string, close byte, commas bool) (string, bool) {
	for _, cut := range elementBoundaries(s, commas) {
		candidate := strings.TrimRightFunc(s[:cut], isSpace) + string(close)
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func startsWith(s string, c byte) bool {
	return len(s) > 0 && s[0] == c
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// balancedEnd returns the index just past the bracket that closes s[0].
func balancedEnd(s string, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// elementBoundaries lists cut points, last first, where s can be truncated so that
// only complete top-level elements remain: the position just after each nested value
// that closes back at the top level and, with commas set, each top-level comma.
func elementBoundaries(s string, commas bool) []int {
	var cuts []int
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 1 {
				cuts = append(cuts, i+1)
			}
		case ',':
			if commas && depth == 1 {
				cuts = append(cuts, i)
			}
		}
	}

	for l, r := 0, len(cuts)-1; l < r; l, r = l+1, r-1 {
		cuts[l], cuts[r] = cuts[r], cuts[l]
	}
	return cuts
}

// Value normalizes a decoded JSON value for a cell write: integral numbers become
// int64 so they are not written as 1e+06.
func Value(v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}

// StringValue converts a json.RawMessage to a string, handling models that return
// numbers or booleans instead of strings. Returns "" for null or empty input.
func StringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}
