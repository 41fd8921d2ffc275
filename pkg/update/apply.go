// ABOUTME: MongoDB-style update engine for schemaless documents
// ABOUTME: Implements $set, $inc, $mul, $min, $max, $unset and full replacement

package update

import (
	"fmt"
	"strings"

	"github.com/nainya/docsync/pkg/document"
	"github.com/nainya/docsync/pkg/query"
)

// Apply evaluates an update specification against doc and returns the
// resulting document plus whether anything changed. The input document is
// never mutated.
//
// A spec whose keys are all $-operators is an operator update; a spec with
// no $-keys replaces the whole document, preserving its _id. Mixing the two
// forms is an error.
func Apply(doc document.Document, spec map[string]interface{}) (document.Document, bool, error) {
	operators, plain := splitKeys(spec)
	if len(operators) > 0 && len(plain) > 0 {
		return nil, false, fmt.Errorf("update: cannot mix operator and replacement fields")
	}

	if len(operators) == 0 {
		return applyReplacement(doc, spec)
	}

	out := doc.Clone()
	changed := false
	for _, op := range operators {
		fields, ok := spec[op].(map[string]interface{})
		if !ok {
			return nil, false, fmt.Errorf("update: %s expects a field map, got %T", op, spec[op])
		}
		for path, operand := range fields {
			fieldChanged, err := applyOperator(out, op, path, operand)
			if err != nil {
				return nil, false, err
			}
			changed = changed || fieldChanged
		}
	}
	return out, changed, nil
}

func splitKeys(spec map[string]interface{}) (operators, plain []string) {
	for key := range spec {
		if strings.HasPrefix(key, "$") {
			operators = append(operators, key)
		} else {
			plain = append(plain, key)
		}
	}
	return operators, plain
}

func applyReplacement(doc document.Document, spec map[string]interface{}) (document.Document, bool, error) {
	out := document.Document(spec).Clone()
	if id := doc.ID(); id != "" {
		out[document.IDField] = id
	}
	return out, !query.Equal(map[string]interface{}(doc), map[string]interface{}(out)), nil
}

func applyOperator(doc document.Document, op, path string, operand interface{}) (bool, error) {
	if path == document.IDField {
		return false, fmt.Errorf("update: %s may not modify %s", op, document.IDField)
	}

	switch op {
	case "$set":
		current, exists := doc.GetPath(path)
		if exists && query.Equal(current, operand) {
			return false, nil
		}
		doc.SetPath(path, operand)
		return true, nil

	case "$unset":
		if _, exists := doc.GetPath(path); !exists {
			return false, nil
		}
		doc.DeletePath(path)
		return true, nil

	case "$inc", "$mul":
		amount, ok := toFloat(operand)
		if !ok {
			return false, fmt.Errorf("update: %s expects a numeric operand for %q, got %T", op, path, operand)
		}
		current, exists := doc.GetPath(path)
		if !exists {
			// Mongo semantics: $inc seeds with the operand, $mul with zero
			if op == "$inc" {
				doc.SetPath(path, amount)
			} else {
				doc.SetPath(path, float64(0))
			}
			return true, nil
		}
		base, ok := toFloat(current)
		if !ok {
			return false, fmt.Errorf("update: %s target %q holds non-numeric value %T", op, path, current)
		}
		if op == "$inc" {
			doc.SetPath(path, base+amount)
		} else {
			doc.SetPath(path, base*amount)
		}
		return true, nil

	case "$min", "$max":
		current, exists := doc.GetPath(path)
		if !exists {
			doc.SetPath(path, operand)
			return true, nil
		}
		cmp, ok := query.Compare(operand, current)
		if !ok {
			return false, fmt.Errorf("update: %s cannot compare %T with %T at %q", op, operand, current, path)
		}
		if (op == "$min" && cmp < 0) || (op == "$max" && cmp > 0) {
			doc.SetPath(path, operand)
			return true, nil
		}
		return false, nil

	default:
		return false, fmt.Errorf("update: unknown operator %q", op)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
