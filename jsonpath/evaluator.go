package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nullstack-solutions/iMock2-sub003/jsonval"
)

// Result is one match of a query: the value, its internal Path, and both
// derived string notations.
type Result struct {
	Value    interface{}
	Path     Path
	JSONPath string
	Pointer  string
}

// Liveness lets long evaluations observe cooperative cancellation. A nil
// Liveness never cancels.
type Liveness interface {
	Cancelled() bool
}

// Evaluator runs JSONPath queries. When a Capability is injected it is
// consulted first; the built-in subset evaluator is the always-available
// fallback, so behavior is well defined either way.
type Evaluator struct {
	capability Capability
	logger     *zap.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCapability injects an external JSONPath engine tried before the
// built-in evaluator.
func WithCapability(c Capability) Option {
	return func(e *Evaluator) {
		e.capability = c
	}
}

// WithLogger sets the logger used for query warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// NewEvaluator creates an evaluator with the given options.
func NewEvaluator(options ...Option) *Evaluator {
	e := &Evaluator{logger: zap.NewNop()}
	for _, option := range options {
		option(e)
	}
	return e
}

// QueryText parses rawJSON and evaluates query against it. The capability,
// when present and able, serves the query from the raw text directly.
func (e *Evaluator) QueryText(rawJSON, query string, live Liveness) ([]Result, error) {
	if e.capability != nil {
		results, err := e.capability.Query(rawJSON, query)
		if err == nil {
			return results, nil
		}
		if err != ErrUnsupported {
			e.logger.Warn("jsonpath capability failed, using fallback", zap.String("query", query), zap.Error(err))
		}
	}
	root, err := jsonval.Parse(rawJSON)
	if err != nil {
		return nil, err
	}
	return e.Query(root, query, live), nil
}

// Query evaluates the subset query against an already parsed root value.
// Malformed queries yield an empty result set, never an error: the worker
// treats query syntax as user input, not a fault.
func (e *Evaluator) Query(root interface{}, query string, live Liveness) []Result {
	segments, err := parseQuery(query)
	if err != nil {
		e.logger.Warn("malformed jsonpath query", zap.String("query", query), zap.Error(err))
		return nil
	}

	working := []match{{value: root, path: Path{}, jsonPath: "$", pointer: "$"}}
	for _, seg := range segments {
		var next []match
		for _, m := range working {
			if cancelled(live) {
				return nil
			}
			next = append(next, applySegment(m, seg, live)...)
		}
		if len(next) == 0 {
			return nil
		}
		working = next
	}

	results := make([]Result, 0, len(working))
	for _, m := range working {
		if cancelled(live) {
			return nil
		}
		results = append(results, Result{Value: m.value, Path: m.path, JSONPath: m.jsonPath, Pointer: m.pointer})
	}
	return results
}

type match struct {
	value    interface{}
	path     Path
	jsonPath string
	pointer  string
}

func (m match) child(step Step, value interface{}) match {
	out := match{value: value, path: m.path.Child(step)}
	if step.IsIndex() {
		out.jsonPath = AppendIndex(m.jsonPath, step.Index)
		out.pointer = AppendPointerIndex(m.pointer, step.Index)
	} else {
		out.jsonPath = AppendName(m.jsonPath, step.Key)
		out.pointer = AppendPointerName(m.pointer, step.Key)
	}
	return out
}

type segment struct {
	name     string
	wildcard bool
	brackets []bracket
}

type bracket struct {
	index    int
	wildcard bool
}

// parseQuery splits a subset query into segments: dot-separated member names
// (or the * wildcard) each carrying optional bracket suffixes. Brackets hold
// a non-negative index, *, or nothing (treated as wildcard).
func parseQuery(query string) ([]segment, error) {
	trimmed := strings.TrimSpace(query)
	trimmed = strings.TrimPrefix(trimmed, "$")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return nil, nil
	}

	var segments []segment
	for _, part := range splitDots(trimmed) {
		if part == "" {
			return nil, fmt.Errorf("empty path segment in %q", query)
		}
		seg, err := parseSegment(part)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// splitDots splits on dots that are outside bracket suffixes.
func splitDots(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, ch := range s {
		switch ch {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '.':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func parseSegment(part string) (segment, error) {
	seg := segment{}
	name := part
	if idx := strings.Index(part, "["); idx >= 0 {
		name = part[:idx]
		rest := part[idx:]
		for rest != "" {
			if rest[0] != '[' {
				return segment{}, fmt.Errorf("unexpected character %q in segment %q", rest[0], part)
			}
			end := strings.Index(rest, "]")
			if end < 0 {
				return segment{}, fmt.Errorf("unterminated bracket in segment %q", part)
			}
			inner := strings.TrimSpace(rest[1:end])
			switch {
			case inner == "" || inner == "*":
				seg.brackets = append(seg.brackets, bracket{wildcard: true})
			default:
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return segment{}, fmt.Errorf("invalid bracket index %q in segment %q", inner, part)
				}
				seg.brackets = append(seg.brackets, bracket{index: n})
			}
			rest = rest[end+1:]
		}
	}
	switch name {
	case "*":
		seg.wildcard = true
	default:
		seg.name = name
	}
	if seg.name == "" && !seg.wildcard && len(seg.brackets) == 0 {
		return segment{}, fmt.Errorf("empty segment %q", part)
	}
	return seg, nil
}

// applySegment fans one working-set entry out through a segment. Missing
// members and out-of-range indices drop the branch silently.
func applySegment(m match, seg segment, live Liveness) []match {
	current := []match{m}

	if seg.wildcard {
		current = fanOut(current, live)
	} else if seg.name != "" {
		var next []match
		for _, c := range current {
			obj, ok := c.value.(*jsonval.Object)
			if !ok {
				continue
			}
			child, ok := obj.Get(seg.name)
			if !ok {
				continue
			}
			next = append(next, c.child(Field(seg.name), child))
		}
		current = next
	}

	for _, b := range seg.brackets {
		if b.wildcard {
			current = fanOut(current, live)
			continue
		}
		var next []match
		for _, c := range current {
			arr, ok := c.value.([]interface{})
			if !ok || b.index >= len(arr) {
				continue
			}
			next = append(next, c.child(Element(b.index), arr[b.index]))
		}
		current = next
	}
	return current
}

// fanOut expands every entry over its array elements or object keys.
// Leaves fan out to nothing.
func fanOut(current []match, live Liveness) []match {
	var next []match
	for _, c := range current {
		switch v := c.value.(type) {
		case []interface{}:
			for i, elem := range v {
				if cancelled(live) {
					return nil
				}
				next = append(next, c.child(Element(i), elem))
			}
		case *jsonval.Object:
			for _, key := range v.Keys() {
				if cancelled(live) {
					return nil
				}
				child, _ := v.Get(key)
				next = append(next, c.child(Field(key), child))
			}
		}
	}
	return next
}

func cancelled(live Liveness) bool {
	return live != nil && live.Cancelled()
}
