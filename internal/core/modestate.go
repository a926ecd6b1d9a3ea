package core

import (
	"encoding/json"
	"time"
)

// MarshalJSON flattens the typed fields and Extra into one JSON object, so
// a ModeState round-trips through the same shape the spec's state_write
// tool reads and writes (spec.md §6: "JSON object with at least active:
// boolean ... other fields mode-specific").
func (m ModeState) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(m.Extra)+4)
	for k, v := range m.Extra {
		flat[k] = v
	}
	flat["active"] = m.Active
	if m.CurrentPhase != "" {
		flat["current_phase"] = m.CurrentPhase
	}
	if m.CompletedAt != nil {
		flat["completed_at"] = m.CompletedAt
	}
	if m.RuntimeContext != nil {
		flat["runtime_context"] = m.RuntimeContext
	}
	return json.Marshal(flat)
}

// UnmarshalJSON splits known fields out of the flat object into their typed
// slots and keeps the rest in Extra.
func (m *ModeState) UnmarshalJSON(data []byte) error {
	var flat map[string]interface{}
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*m = ModeState{Extra: make(map[string]interface{})}
	for k, v := range flat {
		switch k {
		case "active":
			if b, ok := v.(bool); ok {
				m.Active = b
			}
		case "current_phase":
			if s, ok := v.(string); ok {
				m.CurrentPhase = s
			}
		case "completed_at":
			// Re-marshal/unmarshal through time.Time's own codec rather
			// than hand-parsing the RFC3339 string ourselves.
			if v != nil {
				b, _ := json.Marshal(v)
				var t time.Time
				if err := json.Unmarshal(b, &t); err == nil {
					m.CompletedAt = &t
				}
			}
		case "runtime_context":
			if rc, ok := v.(map[string]interface{}); ok {
				m.RuntimeContext = rc
			}
		default:
			m.Extra[k] = v
		}
	}
	return nil
}

// DeepMergePatch merges patch over base (both arbitrary JSON-object shaped
// maps): scalar and array values in patch replace base's; nested objects
// merge recursively. A nil value in patch deletes the corresponding base
// key. This is the generic engine state_write's deep-merge semantics
// (spec.md §4.11) run on top of.
func DeepMergePatch(base, patch map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, pv := range patch {
		if pv == nil {
			delete(out, k)
			continue
		}
		if pm, ok := pv.(map[string]interface{}); ok {
			if bm, ok := out[k].(map[string]interface{}); ok {
				out[k] = DeepMergePatch(bm, pm)
				continue
			}
		}
		out[k] = pv
	}
	return out
}
