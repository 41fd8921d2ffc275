// ABOUTME: Tests for the update engine
// ABOUTME: Covers operator updates, full replacement, change detection, and _id protection

package update

import (
	"strings"
	"testing"

	"github.com/nainya/docsync/pkg/document"
)

func baseDoc() document.Document {
	return document.Document{
		"_id":   "d1",
		"name":  "widget",
		"price": float64(10),
		"stock": map[string]interface{}{
			"count": float64(5),
		},
	}
}

func TestApplySet(t *testing.T) {
	out, changed, err := Apply(baseDoc(), map[string]interface{}{
		"$set": map[string]interface{}{"name": "gadget", "color": "red"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !changed {
		t.Error("Expected change reported")
	}
	if out["name"] != "gadget" || out["color"] != "red" {
		t.Errorf("Unexpected result: %v", out)
	}
}

func TestApplySetNoOpWhenEqual(t *testing.T) {
	out, changed, err := Apply(baseDoc(), map[string]interface{}{
		"$set": map[string]interface{}{"name": "widget"},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if changed {
		t.Error("Setting an already-equal value must not report change")
	}
	if out["name"] != "widget" {
		t.Errorf("Unexpected result: %v", out)
	}
}

func TestApplySetDottedPath(t *testing.T) {
	out, changed, err := Apply(baseDoc(), map[string]interface{}{
		"$set": map[string]interface{}{"stock.count": float64(8)},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !changed {
		t.Error("Expected change reported")
	}
	if got, _ := out.GetPath("stock.count"); got != float64(8) {
		t.Errorf("Expected stock.count 8, got %v", got)
	}
}

func TestApplySetNestedDocumentValue(t *testing.T) {
	doc := baseDoc()
	doc["meta"] = document.Document{"k": "v"}

	// Setting an already-equal nested Document value is a no-op, not a crash
	_, changed, err := Apply(doc, map[string]interface{}{
		"$set": map[string]interface{}{"meta": document.Document{"k": "v"}},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if changed {
		t.Error("Equal nested Document value must not report change")
	}

	out, changed, err := Apply(doc, map[string]interface{}{
		"$set": map[string]interface{}{"meta": document.Document{"k": "w"}},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !changed {
		t.Error("Expected change for a differing nested Document value")
	}
	if got, _ := out.GetPath("meta.k"); got != "w" {
		t.Errorf("Expected meta.k w, got %v", got)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	doc := baseDoc()
	_, _, err := Apply(doc, map[string]interface{}{
		"$set": map[string]interface{}{"stock.count": float64(99)},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got, _ := doc.GetPath("stock.count"); got != float64(5) {
		t.Errorf("Input document mutated: stock.count %v", got)
	}
}

func TestApplyUnset(t *testing.T) {
	out, changed, err := Apply(baseDoc(), map[string]interface{}{
		"$unset": map[string]interface{}{"price": ""},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !changed {
		t.Error("Expected change reported")
	}
	if _, exists := out["price"]; exists {
		t.Error("price still present after $unset")
	}

	_, changed, err = Apply(baseDoc(), map[string]interface{}{
		"$unset": map[string]interface{}{"ghost": ""},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if changed {
		t.Error("Unsetting a missing field must not report change")
	}
}

func TestApplyInc(t *testing.T) {
	out, changed, err := Apply(baseDoc(), map[string]interface{}{
		"$inc": map[string]interface{}{"price": 2.5},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !changed || out["price"] != float64(12.5) {
		t.Errorf("Expected price 12.5, got %v (changed=%v)", out["price"], changed)
	}

	// Missing field seeds with the operand
	out, _, err = Apply(baseDoc(), map[string]interface{}{
		"$inc": map[string]interface{}{"views": 3},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["views"] != float64(3) {
		t.Errorf("Expected views 3, got %v", out["views"])
	}

	// Non-numeric target is an error
	_, _, err = Apply(baseDoc(), map[string]interface{}{
		"$inc": map[string]interface{}{"name": 1},
	})
	if err == nil {
		t.Error("Expected error incrementing a string field")
	}
}

func TestApplyMul(t *testing.T) {
	out, _, err := Apply(baseDoc(), map[string]interface{}{
		"$mul": map[string]interface{}{"price": 3},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["price"] != float64(30) {
		t.Errorf("Expected price 30, got %v", out["price"])
	}

	// Missing field seeds with zero
	out, _, err = Apply(baseDoc(), map[string]interface{}{
		"$mul": map[string]interface{}{"views": 3},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["views"] != float64(0) {
		t.Errorf("Expected views 0, got %v", out["views"])
	}
}

func TestApplyMinMax(t *testing.T) {
	out, changed, err := Apply(baseDoc(), map[string]interface{}{
		"$min": map[string]interface{}{"price": 4},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !changed || out["price"] != 4 {
		t.Errorf("Expected price lowered to 4, got %v (changed=%v)", out["price"], changed)
	}

	_, changed, err = Apply(baseDoc(), map[string]interface{}{
		"$min": map[string]interface{}{"price": 20},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if changed {
		t.Error("$min above current value must not report change")
	}

	out, changed, err = Apply(baseDoc(), map[string]interface{}{
		"$max": map[string]interface{}{"price": 20},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !changed || out["price"] != 20 {
		t.Errorf("Expected price raised to 20, got %v (changed=%v)", out["price"], changed)
	}

	// Missing field adopts the operand
	out, _, err = Apply(baseDoc(), map[string]interface{}{
		"$max": map[string]interface{}{"rating": 5},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["rating"] != 5 {
		t.Errorf("Expected rating 5, got %v", out["rating"])
	}
}

func TestApplyReplacement(t *testing.T) {
	out, changed, err := Apply(baseDoc(), map[string]interface{}{
		"name": "replacement",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !changed {
		t.Error("Expected change reported")
	}
	if out["name"] != "replacement" {
		t.Errorf("Unexpected result: %v", out)
	}
	if out.ID() != "d1" {
		t.Errorf("Replacement must preserve _id, got %q", out.ID())
	}
	if _, exists := out["price"]; exists {
		t.Error("Replacement must drop fields absent from the spec")
	}
}

func TestApplyReplacementUnchanged(t *testing.T) {
	doc := baseDoc()
	_, changed, err := Apply(doc, map[string]interface{}{
		"_id":   "d1",
		"name":  "widget",
		"price": float64(10),
		"stock": map[string]interface{}{
			"count": float64(5),
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if changed {
		t.Error("Identical replacement must not report change")
	}
}

func TestApplyRejectsMixedSpec(t *testing.T) {
	_, _, err := Apply(baseDoc(), map[string]interface{}{
		"$set": map[string]interface{}{"name": "x"},
		"name": "y",
	})
	if err == nil {
		t.Fatal("Expected error for mixed operator and replacement fields")
	}
	if !strings.Contains(err.Error(), "mix") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestApplyProtectsID(t *testing.T) {
	_, _, err := Apply(baseDoc(), map[string]interface{}{
		"$set": map[string]interface{}{"_id": "other"},
	})
	if err == nil {
		t.Error("Expected error setting _id")
	}
	_, _, err = Apply(baseDoc(), map[string]interface{}{
		"$unset": map[string]interface{}{"_id": ""},
	})
	if err == nil {
		t.Error("Expected error unsetting _id")
	}
}

func TestApplyUnknownOperator(t *testing.T) {
	_, _, err := Apply(baseDoc(), map[string]interface{}{
		"$rename": map[string]interface{}{"name": "title"},
	})
	if err == nil {
		t.Error("Expected error for unknown operator")
	}
}

func TestApplyOperatorExpectsFieldMap(t *testing.T) {
	_, _, err := Apply(baseDoc(), map[string]interface{}{
		"$set": "not-a-map",
	})
	if err == nil {
		t.Error("Expected error for non-map operator body")
	}
}
