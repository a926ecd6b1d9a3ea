package core

import (
	"encoding/json"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(CategoryBlockedDependency, "dependencies=%v", []string{"1", "2"})
	if err.Category != CategoryBlockedDependency {
		t.Fatalf("unexpected category: %v", err.Category)
	}
	if !Is(err, CategoryBlockedDependency) {
		t.Fatal("expected Is to match category")
	}
	if Is(err, CategoryClaimConflict) {
		t.Fatal("expected Is to not match a different category")
	}
}

func TestDeepMergePatchReplacesScalarsMergesObjectsDeletesNils(t *testing.T) {
	base := map[string]interface{}{
		"a": 1.0,
		"nested": map[string]interface{}{
			"x": "old",
			"y": "keep",
		},
		"drop_me": "bye",
	}
	patch := map[string]interface{}{
		"a": 2.0,
		"nested": map[string]interface{}{
			"x": "new",
		},
		"drop_me": nil,
	}
	got := DeepMergePatch(base, patch)
	if got["a"] != 2.0 {
		t.Errorf("expected scalar replace, got %v", got["a"])
	}
	nested, ok := got["nested"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected nested map, got %T", got["nested"])
	}
	if nested["x"] != "new" || nested["y"] != "keep" {
		t.Errorf("expected merged nested object, got %v", nested)
	}
	if _, present := got["drop_me"]; present {
		t.Error("expected nil patch value to delete base key")
	}
}

func TestModeStateRoundTripsExtraFields(t *testing.T) {
	raw := []byte(`{"active":true,"current_phase":"plan","custom_field":"x"}`)
	var ms ModeState
	if err := json.Unmarshal(raw, &ms); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !ms.Active || ms.CurrentPhase != "plan" {
		t.Fatalf("unexpected typed fields: %+v", ms)
	}
	if ms.Extra["custom_field"] != "x" {
		t.Fatalf("expected custom_field preserved in Extra, got %v", ms.Extra)
	}
	out, err := json.Marshal(ms)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var roundTrip map[string]interface{}
	if err := json.Unmarshal(out, &roundTrip); err != nil {
		t.Fatalf("Unmarshal roundtrip: %v", err)
	}
	if roundTrip["custom_field"] != "x" || roundTrip["current_phase"] != "plan" {
		t.Fatalf("expected fields to survive round trip, got %v", roundTrip)
	}
}
