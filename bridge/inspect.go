package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hazyhaar/reactwatch/wall"
)

// FunctionMarker is the opaque stand-in for function values in inspected
// props, state, and hooks. Functions do not survive serialisation.
const FunctionMarker = "[Function]"

// maxStringPreview bounds inspected string values by their JSON-encoded
// length; longer strings are truncated to 57 characters plus an ellipsis.
const maxStringPreview = 60

// Hook is one hook slot of an inspected component.
type Hook struct {
	Name     string `json:"name"`
	Value    any    `json:"value"`
	SubHooks []Hook `json:"subHooks,omitempty"`
}

// InspectedElement is the cleaned result of an inspectElement round trip.
type InspectedElement struct {
	ID          uint32           `json:"id"`
	DisplayName string           `json:"displayName"`
	Kind        wall.ElementKind `json:"kind"`
	Key         *string          `json:"key"`
	Props       map[string]any   `json:"props"`
	State       map[string]any   `json:"state"`
	Hooks       []Hook           `json:"hooks"`
	RenderedAt  *int64           `json:"renderedAt"`
}

// InspectElement broadcasts an inspectElement request for id and waits for
// the matching inspectedElement response. The request id reuses the node
// id; only one inspection per id is outstanding — a duplicate replaces the
// earlier resolver, which resolves nil.
//
// Returns nil when no backend is connected, when the response type is
// neither "full-data" nor "hydrated-path", or when the deadline fires.
func (b *Bridge) InspectElement(ctx context.Context, id, rendererID uint32, timeout time.Duration) *InspectedElement {
	ch := make(chan *InspectedElement, 1)

	b.mu.Lock()
	if len(b.conns) == 0 {
		b.mu.Unlock()
		return nil
	}
	if prev, ok := b.pending[id]; ok {
		prev <- nil
	}
	b.pending[id] = ch
	b.mu.Unlock()

	b.broadcast(wall.Message{
		Event: wall.EventInspectElement,
		Payload: map[string]any{
			"id":            id,
			"rendererID":    rendererID,
			"forceFullData": true,
			"requestID":     id,
			"path":          nil,
		},
	})

	select {
	case elem := <-ch:
		return elem
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	// Deadline or cancellation: drop the resolver unless a duplicate
	// request already replaced it.
	b.mu.Lock()
	if b.pending[id] == ch {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	return nil
}

// handleInspected resolves the pending inspection matching the response's
// request id. Out-of-order responses across multiple outstanding
// inspections deliver correctly because correlation is per id.
func (b *Bridge) handleInspected(payload any) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return
	}
	idF, ok := obj["id"].(float64)
	if !ok {
		return
	}
	id := uint32(idF)

	b.mu.Lock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	typ, _ := obj["type"].(string)
	if typ != "full-data" && typ != "hydrated-path" {
		ch <- nil
		return
	}
	ch <- parseInspected(id, obj["value"])
}

func parseInspected(id uint32, value any) *InspectedElement {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	elem := &InspectedElement{ID: id, Kind: wall.KindOther}
	if name, ok := obj["displayName"].(string); ok {
		elem.DisplayName = name
	}
	if code, ok := obj["type"].(float64); ok {
		elem.Kind = wall.KindFromWire(int(code))
	}
	if key, ok := obj["key"].(string); ok {
		elem.Key = &key
	}
	if props, ok := cleanValue(obj["props"]).(map[string]any); ok {
		elem.Props = props
	}
	if state, ok := cleanValue(obj["state"]).(map[string]any); ok {
		elem.State = state
	}
	elem.Hooks = parseHooks(obj["hooks"])
	if ts, ok := obj["renderedAt"].(float64); ok {
		at := int64(ts)
		elem.RenderedAt = &at
	}
	return elem
}

func parseHooks(v any) []Hook {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	hooks := make([]Hook, 0, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		h := Hook{Value: cleanValue(obj["value"])}
		if name, ok := obj["name"].(string); ok {
			h.Name = name
		}
		h.SubHooks = parseHooks(obj["subHooks"])
		hooks = append(hooks, h)
	}
	return hooks
}

// cleanValue rewrites the runtime's dehydrated serialisation into plain
// JSON values: dehydration markers collapse to their short preview,
// functions become an opaque marker, long strings are truncated, and
// arrays/objects are cleaned recursively.
func cleanValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if t, ok := val["type"].(string); ok && t == "function" {
			return FunctionMarker
		}
		if preview, ok := val["preview_short"].(string); ok {
			if _, dehydrated := val["type"]; dehydrated {
				return preview
			}
		}
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cleanValue(inner)
		}
		return out

	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cleanValue(inner)
		}
		return out

	case string:
		// The bound applies to the JSON-encoded form, so escape and
		// quote overhead count against it.
		if encoded, err := json.Marshal(val); err == nil && len(encoded) > maxStringPreview {
			runes := []rune(val)
			if len(runes) > maxStringPreview-3 {
				runes = runes[:maxStringPreview-3]
			}
			return string(runes) + "..."
		}
		return val

	default:
		return v
	}
}
