package jsonval

import (
	"encoding/json"
	"sort"
	"strings"
)

// Format serializes a parsed value back to text. indent <= 0 produces compact
// output; otherwise each nesting level is indented by that many spaces.
// Object key order is preserved as stored.
func Format(value interface{}, indent int) (string, error) {
	if indent <= 0 {
		out, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	out, err := json.MarshalIndent(value, "", strings.Repeat(" ", indent))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SortKeysDeep rebuilds every object in the tree with its keys sorted
// lexicographically. Array element order is untouched. The input value is not
// modified.
func SortKeysDeep(value interface{}) interface{} {
	switch v := value.(type) {
	case *Object:
		keys := v.Keys()
		sort.Strings(keys)
		out := NewObject()
		for _, key := range keys {
			child, _ := v.Get(key)
			out.Set(key, SortKeysDeep(child))
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			out[i] = SortKeysDeep(child)
		}
		return out
	default:
		return value
	}
}
