package bridge

import (
	"strings"
	"testing"
)

func TestCleanValueDehydrated(t *testing.T) {
	v := cleanValue(map[string]any{
		"type":          "object",
		"preview_short": "Map(3)",
		"preview_long":  "Map(3) {…}",
		"inspectable":   true,
	})
	if v != "Map(3)" {
		t.Errorf("dehydrated object: got %v", v)
	}
}

func TestCleanValueFunctionMarker(t *testing.T) {
	v := cleanValue(map[string]any{
		"type":          "function",
		"name":          "handleClick",
		"preview_short": "ƒ handleClick()",
	})
	if v != FunctionMarker {
		t.Errorf("function: got %v", v)
	}
}

func TestCleanValueRecursion(t *testing.T) {
	v := cleanValue(map[string]any{
		"items": []any{
			map[string]any{"type": "array", "preview_short": "Array(100)"},
			"plain",
		},
		"nested": map[string]any{"cb": map[string]any{"type": "function"}},
	})
	obj := v.(map[string]any)
	items := obj["items"].([]any)
	if items[0] != "Array(100)" || items[1] != "plain" {
		t.Errorf("items: %v", items)
	}
	if obj["nested"].(map[string]any)["cb"] != FunctionMarker {
		t.Errorf("nested function: %v", obj["nested"])
	}
}

func TestCleanValueStringTruncation(t *testing.T) {
	long := strings.Repeat("x", 100)
	v := cleanValue(long).(string)
	if len(v) != 60 || !strings.HasSuffix(v, "...") {
		t.Errorf("truncated string: len=%d %q", len(v), v)
	}
	if prefix := strings.Repeat("x", 57); v[:57] != prefix {
		t.Errorf("truncated prefix lost: %q", v[:57])
	}

	// 58 plain chars encode to exactly 60 with the quotes: kept.
	short := strings.Repeat("y", 58)
	if got := cleanValue(short); got != short {
		t.Errorf("58-char string modified: %v", got)
	}

	// The bound counts JSON escape overhead: 50 raw chars, but every
	// backslash doubles when encoded, pushing it past 60.
	escaped := strings.Repeat(`a\`, 25)
	got := cleanValue(escaped).(string)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("escape-heavy string not truncated: %q", got)
	}
	if want := escaped + "..."; got != want {
		t.Errorf("escape-heavy truncation: got %q, want %q", got, want)
	}
}

func TestCleanValuePlainMapKept(t *testing.T) {
	// A user object that happens to have a "type" key but no dehydration
	// marker must survive as a map.
	v := cleanValue(map[string]any{"type": "primary", "label": "Save"})
	obj, ok := v.(map[string]any)
	if !ok || obj["type"] != "primary" || obj["label"] != "Save" {
		t.Errorf("plain map: %v", v)
	}
}

func TestParseInspectedHooks(t *testing.T) {
	elem := parseInspected(7, map[string]any{
		"displayName": "Counter",
		"type":        5,
		"key":         "row-1",
		"props":       map[string]any{},
		"state":       nil,
		"hooks": []any{
			map[string]any{
				"name":  "State",
				"value": float64(42),
				"subHooks": []any{
					map[string]any{"name": "Ref", "value": map[string]any{"type": "function"}},
				},
			},
		},
		"renderedAt": float64(1700000000123),
	})

	if elem.DisplayName != "Counter" || elem.Key == nil || *elem.Key != "row-1" {
		t.Fatalf("element: %+v", elem)
	}
	if len(elem.Hooks) != 1 || elem.Hooks[0].Name != "State" || elem.Hooks[0].Value.(float64) != 42 {
		t.Errorf("hooks: %+v", elem.Hooks)
	}
	if len(elem.Hooks[0].SubHooks) != 1 || elem.Hooks[0].SubHooks[0].Value != FunctionMarker {
		t.Errorf("subhooks: %+v", elem.Hooks[0].SubHooks)
	}
	if elem.RenderedAt == nil || *elem.RenderedAt != 1700000000123 {
		t.Errorf("renderedAt: %v", elem.RenderedAt)
	}
}

func TestInspectDuplicateReplacesResolver(t *testing.T) {
	b := New(0, Handlers{})

	first := make(chan *InspectedElement, 1)
	b.mu.Lock()
	b.pending[4] = first
	b.mu.Unlock()

	// A duplicate registration resolves the earlier waiter with nil.
	second := make(chan *InspectedElement, 1)
	b.mu.Lock()
	if prev, ok := b.pending[4]; ok {
		prev <- nil
	}
	b.pending[4] = second
	b.mu.Unlock()

	select {
	case elem := <-first:
		if elem != nil {
			t.Errorf("replaced resolver got %+v", elem)
		}
	default:
		t.Error("replaced resolver not resolved")
	}

	b.handleInspected(map[string]any{
		"type":  "full-data",
		"id":    float64(4),
		"value": map[string]any{"displayName": "B", "type": float64(5)},
	})
	select {
	case elem := <-second:
		if elem == nil || elem.DisplayName != "B" {
			t.Errorf("second resolver: %+v", elem)
		}
	default:
		t.Error("second resolver not resolved")
	}
}
