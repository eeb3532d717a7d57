// Package worker exposes the background engine through an asynchronous
// request/response message protocol. Inbound requests name an operation and
// a task id; outbound messages are "<op>_complete", "error" or
// "task_cancelled". The package is payload-agnostic glue: all JSON semantics
// live in the jsonval, jsonpath and diff packages, all scheduling in task.
package worker

import (
	"encoding/json"

	"github.com/nullstack-solutions/iMock2-sub003/diff"
	"github.com/nullstack-solutions/iMock2-sub003/jsonpath"
)

// Operation names accepted on the inbound channel.
const (
	OpFormat    = "format"
	OpMinify    = "minify"
	OpValidate  = "validate"
	OpSortKeys  = "sort_keys"
	OpJSONPath  = "jsonpath"
	OpDiff      = "diff"
	OpCancel    = "cancel"
	OpCancelAll = "cancel_all"
)

// Outbound message types besides "<op>_complete".
const (
	MsgError         = "error"
	MsgTaskCancelled = "task_cancelled"
)

// Request is one inbound message.
type Request struct {
	Type    string          `json:"type"`
	TaskID  string          `json:"taskId"`
	Payload json.RawMessage `json:"payload"`
}

// Response is one outbound message.
type Response struct {
	Type   string      `json:"type"`
	TaskID string      `json:"taskId"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	Stack  string      `json:"stack,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

type formatPayload struct {
	Text      string `json:"text"`
	ChunkSize int    `json:"chunkSize"`
}

type minifyPayload struct {
	Text string `json:"text"`
}

type validatePayload struct {
	Text          string `json:"text"`
	WithPositions bool   `json:"withPositions"`
}

type sortKeysPayload struct {
	Text   string `json:"text"`
	Indent *int   `json:"indent"`
}

type jsonPathPayload struct {
	Text string `json:"text"`
	Path string `json:"path"`
}

type diffPayload struct {
	LeftText       string `json:"leftText"`
	RightText      string `json:"rightText"`
	Mode           string `json:"mode"`
	IgnoreKeyOrder bool   `json:"ignoreKeyOrder"`
}

type cancelPayload struct {
	TaskID string `json:"taskId"`
}

// KeySpan is the best-effort source span of a `"key":` occurrence.
type KeySpan struct {
	Line      int `json:"line"`
	Column    int `json:"column"`
	EndColumn int `json:"endColumn"`
}

// ValidateResult reports validity plus parse diagnostics. Invalid input is a
// successful validation outcome, not an operation error.
type ValidateResult struct {
	Valid     bool               `json:"valid"`
	Data      interface{}        `json:"data,omitempty"`
	Positions map[string]KeySpan `json:"positions,omitempty"`
	Error     string             `json:"error,omitempty"`
	Line      int                `json:"line,omitempty"`
	Column    int                `json:"column,omitempty"`
}

// JSONPathResult carries matches in all three path notations. Count is the
// true match count before truncation.
type JSONPathResult struct {
	Values       []interface{}   `json:"values"`
	Paths        [][]interface{} `json:"paths"`
	JSONPaths    []string        `json:"jsonPaths"`
	PointerPaths []string        `json:"pointerPaths"`
	Count        int             `json:"count"`
	Truncated    bool            `json:"truncated"`
}

// DiffEntry is the wire form of one structural edit.
type DiffEntry struct {
	Path       string           `json:"path"`
	Pointer    string           `json:"pointer"`
	Type       string           `json:"type"`
	Left       interface{}      `json:"left,omitempty"`
	Right      interface{}      `json:"right,omitempty"`
	FromKey    string           `json:"fromKey,omitempty"`
	ToKey      string           `json:"toKey,omitempty"`
	Similarity *diff.Similarity `json:"similarity,omitempty"`
}

// DiffResult is the wire form of a diff operation.
type DiffResult struct {
	Type        string      `json:"type"`
	Differences interface{} `json:"differences"`
	Stats       interface{} `json:"stats"`
}

// pathArray renders a Path in its internal wire form: the "$" root marker
// followed by string keys and numeric indices.
func pathArray(p jsonpath.Path) []interface{} {
	out := make([]interface{}, 0, len(p)+1)
	out = append(out, "$")
	for _, step := range p {
		if step.IsIndex() {
			out = append(out, step.Index)
		} else {
			out = append(out, step.Key)
		}
	}
	return out
}

func diffEntries(edits []diff.Edit) []DiffEntry {
	out := make([]DiffEntry, 0, len(edits))
	for _, e := range edits {
		out = append(out, DiffEntry{
			Path:       e.Path.JSONPath(),
			Pointer:    e.Path.Pointer(),
			Type:       string(e.Type),
			Left:       e.Left,
			Right:      e.Right,
			FromKey:    e.FromKey,
			ToKey:      e.ToKey,
			Similarity: e.Similarity,
		})
	}
	return out
}
