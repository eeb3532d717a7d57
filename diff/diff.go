// Package diff compares two JSON documents structurally or line by line,
// producing located edits. Long traversals observe cooperative cancellation
// and report an aborted outcome instead of a partial edit list.
package diff

import (
	"encoding/json"

	"github.com/nullstack-solutions/iMock2-sub003/jsonpath"
	"github.com/nullstack-solutions/iMock2-sub003/jsonval"
)

// Type classifies an edit.
type Type string

const (
	Added       Type = "added"
	Deleted     Type = "deleted"
	ValueChange Type = "value_change"
	TypeChange  Type = "type_change"
	Renamed     Type = "renamed"
	// Changed is used by the line diff only.
	Changed Type = "changed"
)

// Similarity carries the rename heuristic's two scores, rounded to three
// decimals.
type Similarity struct {
	Key   float64 `json:"key"`
	Value float64 `json:"value"`
}

// Edit is one located difference between the two documents.
type Edit struct {
	Path       jsonpath.Path
	Type       Type
	Left       interface{}
	Right      interface{}
	FromKey    string
	ToKey      string
	Similarity *Similarity
}

// Stats aggregates an edit list. It is always derived from the final list
// via Summarize, never tracked incrementally.
type Stats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
	Changed int `json:"changed"`
	Renamed int `json:"renamed"`
	Total   int `json:"total"`
}

// Summarize recomputes aggregate counts from an edit list.
func Summarize(edits []Edit) Stats {
	stats := Stats{Total: len(edits)}
	for _, e := range edits {
		switch e.Type {
		case Added:
			stats.Added++
		case Deleted:
			stats.Deleted++
		case ValueChange, TypeChange:
			stats.Changed++
		case Renamed:
			stats.Renamed++
		}
	}
	return stats
}

// Liveness lets the traversal observe cooperative cancellation. A nil
// Liveness never cancels.
type Liveness interface {
	Cancelled() bool
}

func cancelled(live Liveness) bool {
	return live != nil && live.Cancelled()
}

// Structural compares two parsed JSON values. When ignoreKeyOrder is set,
// both trees are normalized (object keys sorted, once per side) before the
// walk, making the result insensitive to serialization key order.
//
// aborted is true when the task was cancelled mid-traversal; the edit list
// is then meaningless and must not be delivered.
func Structural(left, right interface{}, ignoreKeyOrder bool, live Liveness) (edits []Edit, aborted bool) {
	if ignoreKeyOrder {
		left = jsonval.SortKeysDeep(left)
		right = jsonval.SortKeysDeep(right)
	}
	return walk(left, right, jsonpath.Path{}, live)
}

// walk applies the comparison cases in order; each case is terminal.
func walk(left, right interface{}, path jsonpath.Path, live Liveness) ([]Edit, bool) {
	if cancelled(live) {
		return nil, true
	}

	// identical leaves and identical references produce no edit
	if identical(left, right) {
		return nil, false
	}

	if typeOf(left) != typeOf(right) {
		return []Edit{{Path: path, Type: TypeChange, Left: left, Right: right}}, false
	}

	// null reports as a value change, never recursed into
	if left == nil || right == nil {
		return []Edit{{Path: path, Type: ValueChange, Left: left, Right: right}}, false
	}

	if !isContainer(left) && !isContainer(right) {
		return []Edit{{Path: path, Type: ValueChange, Left: left, Right: right}}, false
	}

	leftArr, leftIsArr := left.([]interface{})
	rightArr, rightIsArr := right.([]interface{})
	if leftIsArr && rightIsArr {
		return walkArrays(leftArr, rightArr, path, live)
	}

	leftObj, leftIsObj := left.(*jsonval.Object)
	rightObj, rightIsObj := right.(*jsonval.Object)
	if leftIsObj && rightIsObj {
		return walkObjects(leftObj, rightObj, path, live)
	}

	// array on one side, object on the other
	return []Edit{{Path: path, Type: TypeChange, Left: left, Right: right}}, false
}

func walkArrays(left, right []interface{}, path jsonpath.Path, live Liveness) ([]Edit, bool) {
	var edits []Edit
	longest := len(left)
	if len(right) > longest {
		longest = len(right)
	}
	for i := 0; i < longest; i++ {
		if cancelled(live) {
			return nil, true
		}
		at := path.Child(jsonpath.Element(i))
		switch {
		case i >= len(left):
			edits = append(edits, Edit{Path: at, Type: Added, Right: right[i]})
		case i >= len(right):
			edits = append(edits, Edit{Path: at, Type: Deleted, Left: left[i]})
		default:
			sub, aborted := walk(left[i], right[i], at, live)
			if aborted {
				return nil, true
			}
			edits = append(edits, sub...)
		}
	}
	return edits, false
}

// walkObjects visits the left side's keys in their own order, then keys only
// the right side has, in their order. That fixed order keeps output
// reproducible.
func walkObjects(left, right *jsonval.Object, path jsonpath.Path, live Liveness) ([]Edit, bool) {
	var edits []Edit
	for _, key := range left.Keys() {
		if cancelled(live) {
			return nil, true
		}
		at := path.Child(jsonpath.Field(key))
		leftVal, _ := left.Get(key)
		rightVal, ok := right.Get(key)
		if !ok {
			edits = append(edits, Edit{Path: at, Type: Deleted, Left: leftVal})
			continue
		}
		sub, aborted := walk(leftVal, rightVal, at, live)
		if aborted {
			return nil, true
		}
		edits = append(edits, sub...)
	}
	for _, key := range right.Keys() {
		if cancelled(live) {
			return nil, true
		}
		if left.Has(key) {
			continue
		}
		rightVal, _ := right.Get(key)
		edits = append(edits, Edit{Path: path.Child(jsonpath.Field(key)), Type: Added, Right: rightVal})
	}
	return edits, false
}

// identical mirrors strict equality on parsed values: leaves compare by
// value (numbers numerically), containers by reference.
func identical(a, b interface{}) bool {
	switch av := a.(type) {
	case *jsonval.Object:
		bv, ok := b.(*jsonval.Object)
		return ok && av == bv
	case []interface{}:
		return false
	case json.Number:
		bv, ok := b.(json.Number)
		return ok && jsonval.NumberEqual(av, bv)
	default:
		return a == b
	}
}

// typeOf buckets values the way a dynamic runtime would: null, arrays and
// objects all report "object", so genuine type changes are only
// primitive/primitive or primitive/container mismatches at this level.
func typeOf(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return "object"
	}
}

func isContainer(v interface{}) bool {
	switch v.(type) {
	case *jsonval.Object, []interface{}:
		return true
	}
	return false
}
