package audit

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	// maxDepth bounds recursion through nested containers; anything deeper
	// collapses to a fallback leaf.
	maxDepth = 8
	// maxLeafLen bounds string leaves and stringified fallbacks.
	maxLeafLen = 1000
	// previewLen bounds the raw-content preview kept for non-JSON payloads.
	previewLen = 100
)

// tooLargeMarker replaces response bodies over the capture ceiling.
func tooLargeMarker() map[string]any {
	return map[string]any{"code": 0, "msg": "Response too large to log", "data": nil}
}

// Sanitize walks an arbitrary decoded value and returns a copy that is safe to
// persist: recursion depth is bounded, string leaves are truncated, and values
// that are not JSON-shaped collapse to a stringified fallback leaf.
func Sanitize(v any) any {
	return sanitize(v, 0)
}

func sanitize(v any, depth int) any {
	if depth >= maxDepth {
		return truncate(fmt.Sprintf("%v", v), maxLeafLen)
	}
	switch t := v.(type) {
	case nil, bool, float64, int, int64, json.Number:
		return t
	case string:
		return truncate(t, maxLeafLen)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[truncate(k, maxLeafLen)] = sanitize(val, depth+1)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			out = append(out, sanitize(val, depth+1))
		}
		return out
	default:
		return truncate(fmt.Sprintf("%v", t), maxLeafLen)
	}
}

// LenientJSON decodes a payload without ever failing: empty or whitespace
// input becomes an empty object, valid JSON is decoded and sanitized, and
// anything else is kept as a bounded raw-content preview.
func LenientJSON(body []byte) any {
	if len(body) == 0 || isSpace(body) {
		return map[string]any{}
	}
	if !utf8.Valid(body) {
		return map[string]any{"raw_content": "Binary content"}
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		s := string(body)
		if len(s) > previewLen {
			s = truncate(s, previewLen) + "..."
		}
		return map[string]any{"raw_content": s}
	}
	return Sanitize(v)
}

func isSpace(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary so truncation never splits a character.
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
