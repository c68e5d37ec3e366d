package audit

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLenientJSONEmpty(t *testing.T) {
	for _, body := range [][]byte{nil, {}, []byte("   \n\t")} {
		got := LenientJSON(body)
		obj, ok := got.(map[string]any)
		if !ok || len(obj) != 0 {
			t.Fatalf("expected empty object for %q, got %#v", body, got)
		}
	}
}

func TestLenientJSONObject(t *testing.T) {
	got := LenientJSON([]byte(`{"name":"alice","age":30}`))
	want := map[string]any{"name": "alice", "age": float64(30)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}

func TestLenientJSONNonJSONPreview(t *testing.T) {
	payload := strings.Repeat("x", 150)
	got := LenientJSON([]byte(payload))
	obj, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected wrapper object, got %#v", got)
	}
	raw, _ := obj["raw_content"].(string)
	if len(raw) != previewLen+3 || !strings.HasSuffix(raw, "...") {
		t.Fatalf("expected %d-char preview with ellipsis, got %q", previewLen, raw)
	}
}

func TestLenientJSONPreviewKeepsRunesWhole(t *testing.T) {
	payload := strings.Repeat("世", previewLen)
	got := LenientJSON([]byte(payload))
	obj, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected wrapper object, got %#v", got)
	}
	raw, _ := obj["raw_content"].(string)
	if !utf8.ValidString(raw) {
		t.Fatalf("preview split a rune: %q", raw)
	}
	if !strings.HasSuffix(raw, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", raw)
	}
}

func TestLenientJSONBinary(t *testing.T) {
	got := LenientJSON([]byte{0xff, 0xfe, 0x00, 0x01})
	obj, ok := got.(map[string]any)
	if !ok || obj["raw_content"] != "Binary content" {
		t.Fatalf("expected binary marker, got %#v", got)
	}
}

func TestSanitizeTruncatesLeaves(t *testing.T) {
	long := strings.Repeat("a", 2*maxLeafLen)
	got := Sanitize(map[string]any{"note": long})
	obj := got.(map[string]any)
	if s := obj["note"].(string); len(s) != maxLeafLen {
		t.Fatalf("expected %d-byte leaf, got %d", maxLeafLen, len(s))
	}
}

func TestSanitizeRuneBoundary(t *testing.T) {
	// 世 is three bytes; a cap landing mid-rune must back off to a boundary.
	long := strings.Repeat("世", maxLeafLen)
	got := Sanitize(long).(string)
	if len(got) > maxLeafLen {
		t.Fatalf("leaf over cap: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "世") {
		t.Fatal("truncation split a rune")
	}
}

func TestSanitizeDepthBound(t *testing.T) {
	deep := map[string]any{}
	cur := deep
	for i := 0; i < maxDepth+4; i++ {
		next := map[string]any{}
		cur["n"] = next
		cur = next
	}
	cur["leaf"] = "value"

	got := Sanitize(deep)
	depth := 0
	v := got
	for {
		obj, ok := v.(map[string]any)
		if !ok {
			break
		}
		v = obj["n"]
		depth++
	}
	if depth > maxDepth {
		t.Fatalf("sanitized value nests %d levels, cap is %d", depth, maxDepth)
	}
	if _, ok := v.(string); !ok {
		t.Fatalf("expected stringified fallback past the depth cap, got %T", v)
	}
}

func TestOperationTypeFor(t *testing.T) {
	cases := map[string]string{
		"GET":    "查询",
		"POST":   "创建",
		"PUT":    "更新",
		"DELETE": "删除",
		"PATCH":  "其他",
	}
	for method, want := range cases {
		if got := OperationTypeFor(method); got != want {
			t.Fatalf("%s: expected %q, got %q", method, want, got)
		}
	}
}

func TestLogLevelFor(t *testing.T) {
	cases := map[int]string{200: "info", 204: "info", 302: "warning", 404: "error", 500: "error"}
	for status, want := range cases {
		if got := LogLevelFor(status); got != want {
			t.Fatalf("%d: expected %q, got %q", status, want, got)
		}
	}
}
