// Package jsonpath addresses locations inside parsed JSON trees and
// evaluates a small JSONPath subset against them.
//
// A location has three equivalent notations: the internal Path (a sequence
// of steps from the root), a JSONPath-like string ("$.items[0].id") and a
// pointer-like string ("$/items/0/id"). The string forms are views derived
// from the same Path; the incremental Append* helpers produce byte-identical
// output to converting a fully built Path in one shot.
package jsonpath

import (
	"regexp"
	"strconv"
	"strings"
)

// Step is one hop from a parent value to a child: an object key or an array
// index.
type Step struct {
	Key   string
	Index int
	array bool
}

// Field returns a step addressing an object key.
func Field(name string) Step {
	return Step{Key: name}
}

// Element returns a step addressing an array index.
func Element(index int) Step {
	return Step{Index: index, array: true}
}

// IsIndex reports whether the step addresses an array element.
func (s Step) IsIndex() bool {
	return s.array
}

// Path is an ordered address of a location in a JSON tree. The empty Path is
// the root. Paths are treated as immutable: Child copies.
type Path []Step

// Child returns a new Path extended by one step. The receiver is never
// aliased, so sibling paths built during a traversal stay independent.
func (p Path) Child(step Step) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = step
	return out
}

// Parent returns the path with its last step removed, or the root path.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Last returns the final step. ok is false for the root path.
func (p Path) Last() (Step, bool) {
	if len(p) == 0 {
		return Step{}, false
	}
	return p[len(p)-1], true
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// JSONPath renders the path in dotted/bracket notation rooted at "$".
// Non-identifier keys use quoted bracket form with single quotes escaped.
func (p Path) JSONPath() string {
	out := "$"
	for _, step := range p {
		if step.IsIndex() {
			out = AppendIndex(out, step.Index)
		} else {
			out = AppendName(out, step.Key)
		}
	}
	return out
}

// Pointer renders the path in "$"-rooted, slash-delimited notation with
// RFC 6901 style escaping of key characters.
func (p Path) Pointer() string {
	out := "$"
	for _, step := range p {
		if step.IsIndex() {
			out = AppendPointerIndex(out, step.Index)
		} else {
			out = AppendPointerName(out, step.Key)
		}
	}
	return out
}

// AppendName extends a JSONPath string by one object key.
func AppendName(base, name string) string {
	if identifierPattern.MatchString(name) {
		return base + "." + name
	}
	escaped := strings.ReplaceAll(name, "'", `\'`)
	return base + "['" + escaped + "']"
}

// AppendIndex extends a JSONPath string by one array index.
func AppendIndex(base string, index int) string {
	return base + "[" + strconv.Itoa(index) + "]"
}

// AppendPointerName extends a pointer string by one object key. Tilde is
// escaped before slash so the two escapes cannot interfere.
func AppendPointerName(base, name string) string {
	escaped := strings.ReplaceAll(name, "~", "~0")
	escaped = strings.ReplaceAll(escaped, "/", "~1")
	return base + "/" + escaped
}

// AppendPointerIndex extends a pointer string by one array index.
func AppendPointerIndex(base string, index int) string {
	return base + "/" + strconv.Itoa(index)
}
