package jsonpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nullstack-solutions/iMock2-sub003/jsonval"
)

// ErrUnsupported is returned by a Capability that cannot serve a query; the
// evaluator then falls back to its built-in subset implementation.
var ErrUnsupported = errors.New("jsonpath: query not supported by capability")

// Capability is an optional externally supplied JSONPath engine. The
// evaluator consults it before its own fallback, so an implementation may
// decline any query with ErrUnsupported.
type Capability interface {
	Query(rawJSON, query string) ([]Result, error)
}

// GjsonCapability serves concrete (wildcard-free) queries straight from the
// raw JSON text via gjson, skipping a full parse of the document. Wildcard
// queries are declined so the fallback evaluator keeps its fan-out
// semantics.
type GjsonCapability struct{}

// Query resolves a concrete path. A missing location yields an empty result
// set, mirroring the fallback's silent branch drop.
func (GjsonCapability) Query(rawJSON, query string) ([]Result, error) {
	segments, err := parseQuery(query)
	if err != nil {
		return nil, ErrUnsupported
	}

	var path Path
	var gpath strings.Builder
	for _, seg := range segments {
		if seg.wildcard {
			return nil, ErrUnsupported
		}
		if seg.name != "" {
			if gpath.Len() > 0 {
				gpath.WriteByte('.')
			}
			gpath.WriteString(escapeGjson(seg.name))
			path = path.Child(Field(seg.name))
		}
		for _, b := range seg.brackets {
			if b.wildcard {
				return nil, ErrUnsupported
			}
			if gpath.Len() > 0 {
				gpath.WriteByte('.')
			}
			gpath.WriteString(strconv.Itoa(b.index))
			path = path.Child(Element(b.index))
		}
	}

	if gpath.Len() == 0 {
		// root query: the whole document matches
		value, err := jsonval.Parse(rawJSON)
		if err != nil {
			return nil, err
		}
		return []Result{{Value: value, Path: Path{}, JSONPath: "$", Pointer: "$"}}, nil
	}

	res := gjson.Get(rawJSON, gpath.String())
	if !res.Exists() {
		return []Result{}, nil
	}
	value, err := jsonval.Parse(res.Raw)
	if err != nil {
		return nil, fmt.Errorf("reparse gjson result: %w", err)
	}
	return []Result{{Value: value, Path: path, JSONPath: path.JSONPath(), Pointer: path.Pointer()}}, nil
}

// escapeGjson protects characters gjson treats as path syntax.
func escapeGjson(name string) string {
	var out strings.Builder
	for _, ch := range name {
		switch ch {
		case '.', '*', '?', '\\', '#', '@', '|':
			out.WriteByte('\\')
		}
		out.WriteRune(ch)
	}
	return out.String()
}
