package worker

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullstack-solutions/iMock2-sub003/jsonpath"
	"github.com/nullstack-solutions/iMock2-sub003/task"
)

func newTestWorker(t *testing.T, options ...Option) (*Worker, chan Response) {
	t.Helper()
	ch := make(chan Response, 64)
	w := New(func(resp Response) { ch <- resp }, options...)
	return w, ch
}

func waitFor(t *testing.T, ch chan Response, match func(Response) bool) Response {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case resp := <-ch:
			if match(resp) {
				return resp
			}
		case <-deadline:
			t.Fatal("timed out waiting for response")
		}
	}
}

func terminalFor(taskID string) func(Response) bool {
	return func(r Response) bool { return r.TaskID == taskID }
}

func request(t *testing.T, op, taskID string, payload interface{}) Request {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Request{Type: op, TaskID: taskID, Payload: raw}
}

func TestFormatPreservesKeyOrder(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpFormat, "f1", map[string]interface{}{"text": `{"b":1,"a":2}`}))

	resp := waitFor(t, ch, terminalFor("f1"))
	assert.Equal(t, "format_complete", resp.Type)
	assert.Equal(t, "{\n  \"b\": 1,\n  \"a\": 2\n}", resp.Result)
	assert.False(t, w.Active("f1"))
}

func TestMinify(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpMinify, "m1", map[string]interface{}{"text": "{ \"a\" : [ 1 , 2 ] }"}))

	resp := waitFor(t, ch, terminalFor("m1"))
	assert.Equal(t, "minify_complete", resp.Type)
	assert.Equal(t, `{"a":[1,2]}`, resp.Result)
}

func TestSortKeysCompact(t *testing.T) {
	w, ch := newTestWorker(t)
	indent := 0
	w.Handle(request(t, OpSortKeys, "s1", map[string]interface{}{"text": `{"b":1,"a":2}`, "indent": indent}))

	resp := waitFor(t, ch, terminalFor("s1"))
	assert.Equal(t, "sort_keys_complete", resp.Type)
	assert.Equal(t, `{"a":2,"b":1}`, resp.Result)
}

func TestJSONPathOperation(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpJSONPath, "j1", map[string]interface{}{
		"text": `{"items":[{"id":1},{"id":2}]}`,
		"path": "$.items[*].id",
	}))

	resp := waitFor(t, ch, terminalFor("j1"))
	require.Equal(t, "jsonpath_complete", resp.Type)
	result, ok := resp.Result.(JSONPathResult)
	require.True(t, ok)

	assert.Equal(t, 2, result.Count)
	assert.False(t, result.Truncated)
	assert.Equal(t, []string{"$.items[0].id", "$.items[1].id"}, result.JSONPaths)
	assert.Equal(t, []string{"$/items/0/id", "$/items/1/id"}, result.PointerPaths)
	assert.Equal(t, []interface{}{json.Number("1"), json.Number("2")}, result.Values)
	assert.Equal(t, []interface{}{"$", "items", 0, "id"}, result.Paths[0])
}

func TestJSONPathTruncation(t *testing.T) {
	w, ch := newTestWorker(t, WithResultCap(2))
	w.Handle(request(t, OpJSONPath, "j2", map[string]interface{}{
		"text": `{"items":[1,2,3,4]}`,
		"path": "$.items[*]",
	}))

	resp := waitFor(t, ch, terminalFor("j2"))
	result := resp.Result.(JSONPathResult)
	assert.Equal(t, 4, result.Count)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Values, 2)
	assert.Len(t, result.JSONPaths, 2)
}

func TestStructuralDiffWithRename(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpDiff, "d1", map[string]interface{}{
		"leftText":  `{"old":"x"}`,
		"rightText": `{"new":"x"}`,
		"mode":      "structural",
	}))

	resp := waitFor(t, ch, terminalFor("d1"))
	require.Equal(t, "diff_complete", resp.Type)
	result := resp.Result.(DiffResult)
	entries := result.Differences.([]DiffEntry)

	require.Len(t, entries, 1)
	assert.Equal(t, "renamed", entries[0].Type)
	assert.Equal(t, "old", entries[0].FromKey)
	assert.Equal(t, "new", entries[0].ToKey)
	require.NotNil(t, entries[0].Similarity)
	assert.Equal(t, 1.0, entries[0].Similarity.Value)
}

func TestLineDiffOperation(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpDiff, "d2", map[string]interface{}{
		"leftText":  "a\nb",
		"rightText": "a\nc",
		"mode":      "line",
	}))

	resp := waitFor(t, ch, terminalFor("d2"))
	require.Equal(t, "diff_complete", resp.Type)
	result := resp.Result.(DiffResult)
	assert.NotEmpty(t, result.Differences)
}

func TestDiffUnknownMode(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpDiff, "d3", map[string]interface{}{
		"leftText": "{}", "rightText": "{}", "mode": "semantic",
	}))

	resp := waitFor(t, ch, terminalFor("d3"))
	assert.Equal(t, MsgError, resp.Type)
	assert.Contains(t, resp.Error, "unknown mode")
}

func TestValidateValidWithPositions(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpValidate, "v1", map[string]interface{}{
		"text":          "{\n  \"alpha\": 1,\n  \"beta\": {\"gamma\": 2}\n}",
		"withPositions": true,
	}))

	resp := waitFor(t, ch, terminalFor("v1"))
	require.Equal(t, "validate_complete", resp.Type)
	result := resp.Result.(ValidateResult)

	assert.True(t, result.Valid)
	assert.NotNil(t, result.Data)
	require.Contains(t, result.Positions, "alpha")
	assert.Equal(t, 2, result.Positions["alpha"].Line)
	assert.Equal(t, 3, result.Positions["alpha"].Column)
}

func TestValidateInvalidReportsPosition(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpValidate, "v2", map[string]interface{}{
		"text": "{\n  \"a\": ,\n}",
	}))

	resp := waitFor(t, ch, terminalFor("v2"))
	require.Equal(t, "validate_complete", resp.Type)
	result := resp.Result.(ValidateResult)

	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 2, result.Line)
}

func TestMalformedInputIsErrorNotCrash(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpFormat, "e1", map[string]interface{}{"text": "{not json"}))

	resp := waitFor(t, ch, terminalFor("e1"))
	assert.Equal(t, MsgError, resp.Type)
	assert.NotEmpty(t, resp.Error)
	assert.False(t, w.Active("e1"))
}

func TestUnknownOperation(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(Request{Type: "transmogrify", TaskID: "u1"})

	resp := waitFor(t, ch, terminalFor("u1"))
	assert.Equal(t, MsgError, resp.Type)
	assert.Contains(t, resp.Error, "transmogrify")
}

func TestTaskIDGeneratedWhenMissing(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpMinify, "", map[string]interface{}{"text": "{}"}))

	resp := waitFor(t, ch, func(r Response) bool { return r.Type == "minify_complete" })
	assert.NotEmpty(t, resp.TaskID)
}

// Submitting two same-type tasks back to back: the first gets exactly one
// superseded cancellation and never completes; only the second delivers. The
// blocking capability keeps the first task reliably in flight.
func TestSameTypeSupersession(t *testing.T) {
	blocker := &blockingCapability{started: make(chan struct{}, 2), release: make(chan struct{})}
	w, ch := newTestWorker(t, WithCapability(blocker))
	payload := map[string]interface{}{"text": "{}", "path": "$.a"}

	w.Handle(request(t, OpJSONPath, "first", payload))
	<-blocker.started
	w.Handle(request(t, OpJSONPath, "second", payload))

	cancelled := waitFor(t, ch, func(r Response) bool { return r.Type == MsgTaskCancelled })
	assert.Equal(t, "first", cancelled.TaskID)
	assert.Equal(t, string(task.ReasonSuperseded), cancelled.Reason)

	close(blocker.release)
	completed := waitFor(t, ch, func(r Response) bool { return r.Type == "jsonpath_complete" })
	assert.Equal(t, "second", completed.TaskID)

	// the first task must stay silent: no late result, no second event
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case extra := <-ch:
			assert.NotEqual(t, "first", extra.TaskID)
		default:
			return
		}
	}
}

// blockingCapability parks the jsonpath handler until released, so tests can
// cancel a task that is reliably in flight.
type blockingCapability struct {
	started chan struct{}
	release chan struct{}
}

func (c *blockingCapability) Query(rawJSON, query string) ([]jsonpath.Result, error) {
	c.started <- struct{}{}
	<-c.release
	return []jsonpath.Result{}, nil
}

func TestCancelSuppressesInFlightResult(t *testing.T) {
	blocker := &blockingCapability{started: make(chan struct{}, 1), release: make(chan struct{})}
	w, ch := newTestWorker(t, WithCapability(blocker))

	w.Handle(request(t, OpJSONPath, "c1", map[string]interface{}{"text": "{}", "path": "$.a"}))
	<-blocker.started

	w.Handle(request(t, OpCancel, "", map[string]interface{}{"taskId": "c1"}))
	cancelled := waitFor(t, ch, func(r Response) bool { return r.Type == MsgTaskCancelled })
	assert.Equal(t, "c1", cancelled.TaskID)
	assert.Equal(t, string(task.ReasonUser), cancelled.Reason)

	close(blocker.release)
	time.Sleep(50 * time.Millisecond)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected late message: %+v", extra)
	default:
	}
}

func TestCancelAllDrainsActiveTasks(t *testing.T) {
	blocker := &blockingCapability{started: make(chan struct{}, 1), release: make(chan struct{})}
	w, ch := newTestWorker(t, WithCapability(blocker))

	w.Handle(request(t, OpJSONPath, "c2", map[string]interface{}{"text": "{}", "path": "$.a"}))
	<-blocker.started

	w.Handle(Request{Type: OpCancelAll})
	cancelled := waitFor(t, ch, func(r Response) bool { return r.Type == MsgTaskCancelled })
	assert.Equal(t, "c2", cancelled.TaskID)
	assert.Equal(t, string(task.ReasonCancelAll), cancelled.Reason)
	assert.False(t, w.Active("c2"))

	close(blocker.release)
}

func TestTimeoutCancelsLongTask(t *testing.T) {
	blocker := &blockingCapability{started: make(chan struct{}, 1), release: make(chan struct{})}
	w, ch := newTestWorker(t, WithCapability(blocker), WithTaskTimeout(20*time.Millisecond))

	w.Handle(request(t, OpJSONPath, "t1", map[string]interface{}{"text": "{}", "path": "$.a"}))
	<-blocker.started

	cancelled := waitFor(t, ch, func(r Response) bool { return r.Type == MsgTaskCancelled })
	assert.Equal(t, "t1", cancelled.TaskID)
	assert.Equal(t, string(task.ReasonTimeout), cancelled.Reason)

	close(blocker.release)
}

// panicCapability simulates an unexpected handler crash.
type panicCapability struct{}

func (panicCapability) Query(rawJSON, query string) ([]jsonpath.Result, error) {
	panic(fmt.Errorf("capability exploded"))
}

func TestPanicBecomesErrorMessage(t *testing.T) {
	w, ch := newTestWorker(t, WithCapability(panicCapability{}))
	w.Handle(request(t, OpJSONPath, "p1", map[string]interface{}{"text": "{}", "path": "$.a"}))

	resp := waitFor(t, ch, terminalFor("p1"))
	assert.Equal(t, MsgError, resp.Type)
	assert.Contains(t, resp.Error, "capability exploded")
	assert.NotEmpty(t, resp.Stack)
	assert.False(t, w.Active("p1"))
}

func TestCancelUnknownTaskIsNoOp(t *testing.T) {
	w, ch := newTestWorker(t)
	w.Handle(request(t, OpCancel, "", map[string]interface{}{"taskId": "ghost"}))

	time.Sleep(20 * time.Millisecond)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected message: %+v", extra)
	default:
	}
}

func TestScanKeyPositionsHeuristic(t *testing.T) {
	text := "{\n  \"a\": 1,\n  \"b\": {\"a\": 2}\n}"
	positions := scanKeyPositions(text, nil)

	// first occurrence wins; the nested "a" on line 3 does not override
	assert.Equal(t, 2, positions["a"].Line)
	assert.Equal(t, 3, positions["b"].Line)
}
