package textgen

import (
	"encoding/json"
	"strings"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

// Normalize coerces a generator's raw output into a map[string]any.
// Accepted shapes: a map[string]any, or a string holding a JSON object
// (optionally wrapped in a markdown code fence). Anything else is a
// generation error.
func Normalize(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		text := stripFence(v)
		var out map[string]any
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, agenterrors.NewGenerationError("normalize", "output is not a JSON object", err)
		}
		return out, nil
	case nil:
		return nil, agenterrors.NewGenerationError("normalize", "generator returned nil", nil)
	default:
		return nil, agenterrors.NewGenerationError("normalize", "unsupported output type", nil)
	}
}

// stripFence removes a surrounding markdown code fence, with or without a
// language tag, leaving the inner text untouched otherwise.
func stripFence(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 && !strings.HasPrefix(text, "{") {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// StringField reads a non-empty string value from a normalized output map.
func StringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// FloatField reads a numeric value from a normalized output map.
func FloatField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
