package domain

import (
	"encoding/json"
	"testing"
)

func TestCompareFieldsDetectsValueAndShapeChanges(t *testing.T) {
	old := map[string]any{
		"title":  "first",
		"body":   "unchanged",
		"rating": int64(4),
	}
	new := map[string]any{
		"title":  "second",
		"body":   "unchanged",
		"rating": float64(4),
		"extra":  true,
	}

	changes := CompareFields(old, new)

	if !changes.Changed("title") {
		t.Errorf("expected title to be changed")
	}
	if changes.Changed("body") {
		t.Errorf("body did not change")
	}
	if changes.Changed("rating") {
		t.Errorf("rating should compare equal across numeric representations")
	}
	if !changes.Changed("extra") {
		t.Errorf("added field should count as changed")
	}

	names := changes.Names()
	if len(names) != 2 || names[0] != "extra" || names[1] != "title" {
		t.Fatalf("unexpected change names: %v", names)
	}
}

func TestCompareFieldsRemovedField(t *testing.T) {
	changes := CompareFields(map[string]any{"gone": 1}, map[string]any{})
	if !changes.Changed("gone") {
		t.Fatalf("removed field should count as changed")
	}
}

func TestCompareFieldsJSONNumberEquality(t *testing.T) {
	changes := CompareFields(
		map[string]any{"count": json.Number("2.5")},
		map[string]any{"count": float64(2.5)},
	)
	if !changes.Empty() {
		t.Fatalf("json.Number and float64 with same value should compare equal, got %v", changes.Names())
	}
}

func TestAlteredDistinguishesLargeIntegers(t *testing.T) {
	// Adjacent int64 values past float64's exact range collapse onto the
	// same float, so the comparison must not go through float64.
	if !Altered(
		map[string]any{"counter": int64(9007199254740993)},
		map[string]any{"counter": int64(9007199254740992)},
		nil,
	) {
		t.Fatalf("distinct int64 values beyond 2^53 must count as changed")
	}
	if Altered(
		map[string]any{"counter": int64(9007199254740993)},
		map[string]any{"counter": int64(9007199254740993)},
		nil,
	) {
		t.Fatalf("equal large int64 values must not count as changed")
	}
	if !Altered(
		map[string]any{"counter": json.Number("9007199254740993")},
		map[string]any{"counter": json.Number("9007199254740992")},
		nil,
	) {
		t.Fatalf("distinct large json.Number integers must count as changed")
	}
	// Small integers still compare equal across representations.
	if Altered(
		map[string]any{"counter": int64(42)},
		map[string]any{"counter": float64(42)},
		nil,
	) {
		t.Fatalf("small int64 and float64 with the same value must compare equal")
	}
}

func TestAlteredWithoutWatchList(t *testing.T) {
	if Altered(map[string]any{"a": 1}, map[string]any{"a": 1}, nil) {
		t.Errorf("identical fields should not be altered")
	}
	if !Altered(map[string]any{"a": 1}, map[string]any{"a": 2}, nil) {
		t.Errorf("changed field should be altered")
	}
}

func TestAlteredWithWatchList(t *testing.T) {
	old := map[string]any{"watched": "x", "ignored": "a"}

	if Altered(old, map[string]any{"watched": "x", "ignored": "b"}, []string{"watched"}) {
		t.Errorf("change outside the watch list must not qualify")
	}
	if !Altered(old, map[string]any{"watched": "y", "ignored": "a"}, []string{"watched"}) {
		t.Errorf("change inside the watch list must qualify")
	}
	if !Altered(old, map[string]any{"watched": "y", "ignored": "b"}, []string{"watched"}) {
		t.Errorf("mixed change including a watched field must qualify")
	}
}
