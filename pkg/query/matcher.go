// ABOUTME: MongoDB-style filter matcher for schemaless documents
// ABOUTME: Implements comparison, membership, and logical operators over dotted paths

package query

import (
	"fmt"
	"strings"

	"github.com/nainya/docsync/pkg/document"
)

// Match reports whether doc satisfies filter. An empty filter matches
// every document. Filter values that are maps of $-operators are operator
// expressions; anything else is an implicit equality test.
func Match(doc document.Document, filter map[string]interface{}) (bool, error) {
	for key, condition := range filter {
		switch key {
		case "$and":
			ok, err := matchAll(doc, condition)
			if err != nil || !ok {
				return false, err
			}
		case "$or":
			ok, err := matchAny(doc, condition)
			if err != nil || !ok {
				return false, err
			}
		case "$nor":
			ok, err := matchAny(doc, condition)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("query: unknown top-level operator %q", key)
			}
			ok, err := matchField(doc, key, condition)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func matchAll(doc document.Document, condition interface{}) (bool, error) {
	filters, err := subFilters(condition)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := Match(doc, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAny(doc document.Document, condition interface{}) (bool, error) {
	filters, err := subFilters(condition)
	if err != nil {
		return false, err
	}
	for _, f := range filters {
		ok, err := Match(doc, f)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func subFilters(condition interface{}) ([]map[string]interface{}, error) {
	list, ok := condition.([]interface{})
	if ok {
		out := make([]map[string]interface{}, 0, len(list))
		for _, item := range list {
			f, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("query: logical operator expects filter objects, got %T", item)
			}
			out = append(out, f)
		}
		return out, nil
	}
	if typed, ok := condition.([]map[string]interface{}); ok {
		return typed, nil
	}
	return nil, fmt.Errorf("query: logical operator expects an array, got %T", condition)
}

func matchField(doc document.Document, path string, condition interface{}) (bool, error) {
	value, exists := doc.GetPath(path)

	ops, isOps := operatorExpression(condition)
	if !isOps {
		return exists && Equal(value, condition), nil
	}

	for op, operand := range ops {
		ok, err := applyOperator(value, exists, op, operand)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// operatorExpression reports whether condition is a map whose keys are all
// $-operators. Maps with plain keys are matched as literal sub-documents.
func operatorExpression(condition interface{}) (map[string]interface{}, bool) {
	m, ok := condition.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return nil, false
		}
	}
	return m, true
}

func applyOperator(value interface{}, exists bool, op string, operand interface{}) (bool, error) {
	switch op {
	case "$eq":
		return exists && Equal(value, operand), nil
	case "$ne":
		return !exists || !Equal(value, operand), nil
	case "$gt":
		cmp, ok := Compare(value, operand)
		return exists && ok && cmp > 0, nil
	case "$gte":
		cmp, ok := Compare(value, operand)
		return exists && ok && cmp >= 0, nil
	case "$lt":
		cmp, ok := Compare(value, operand)
		return exists && ok && cmp < 0, nil
	case "$lte":
		cmp, ok := Compare(value, operand)
		return exists && ok && cmp <= 0, nil
	case "$in":
		members, err := memberList(op, operand)
		if err != nil {
			return false, err
		}
		return exists && contains(members, value), nil
	case "$nin":
		members, err := memberList(op, operand)
		if err != nil {
			return false, err
		}
		return !exists || !contains(members, value), nil
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false, fmt.Errorf("query: $exists expects a boolean, got %T", operand)
		}
		return exists == want, nil
	case "$not":
		inner, ok := operatorExpression(operand)
		if !ok {
			return false, fmt.Errorf("query: $not expects an operator expression, got %T", operand)
		}
		for innerOp, innerOperand := range inner {
			matched, err := applyOperator(value, exists, innerOp, innerOperand)
			if err != nil {
				return false, err
			}
			if matched {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("query: unknown operator %q", op)
	}
}

func memberList(op string, operand interface{}) ([]interface{}, error) {
	list, ok := operand.([]interface{})
	if !ok {
		return nil, fmt.Errorf("query: %s expects an array, got %T", op, operand)
	}
	return list, nil
}

func contains(members []interface{}, value interface{}) bool {
	for _, member := range members {
		if Equal(value, member) {
			return true
		}
	}
	return false
}
