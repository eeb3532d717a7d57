package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nullstack-solutions/iMock2-sub003/diff"
	"github.com/nullstack-solutions/iMock2-sub003/jsonpath"
	"github.com/nullstack-solutions/iMock2-sub003/jsonval"
	"github.com/nullstack-solutions/iMock2-sub003/task"
)

// DefaultResultCap bounds jsonpath result arrays; matches beyond it are
// truncated, never errored.
const DefaultResultCap = 10000

// defaultLargePayload is the size above which format/minify insert an extra
// liveness checkpoint before the expensive parse.
const defaultLargePayload = 1 << 20

// errAborted is the sentinel for work that observed its own cancellation.
// It never reaches the outbound channel: the cancellation event has already
// been emitted by the task manager.
var errAborted = errors.New("worker: task aborted")

// inputError wraps malformed user input so it surfaces as an error message
// rather than crashing the worker.
type inputError struct{ err error }

func (e inputError) Error() string { return e.err.Error() }

// Worker dispatches inbound requests to operation handlers running under the
// task manager's last-wins/timeout discipline.
type Worker struct {
	manager   *task.Manager
	evaluator *jsonpath.Evaluator
	logger    *zap.Logger

	emitMu sync.Mutex
	emit   func(Response)
	wg     sync.WaitGroup

	resultCap    int
	largePayload int
	taskTimeout  time.Duration
	capability   jsonpath.Capability
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithCapability injects an external JSONPath engine tried before the
// built-in evaluator.
func WithCapability(c jsonpath.Capability) Option {
	return func(w *Worker) {
		w.capability = c
	}
}

// WithResultCap overrides the jsonpath truncation cap.
func WithResultCap(limit int) Option {
	return func(w *Worker) {
		w.resultCap = limit
	}
}

// WithTaskTimeout overrides the per-task hard timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(w *Worker) {
		w.taskTimeout = d
	}
}

// New creates a worker that sends outbound messages through emit. Emission
// is serialized, so emit itself does not need to be goroutine-safe.
func New(emit func(Response), options ...Option) *Worker {
	w := &Worker{
		logger:       zap.NewNop(),
		resultCap:    DefaultResultCap,
		largePayload: defaultLargePayload,
		taskTimeout:  task.DefaultTimeout,
	}
	for _, option := range options {
		option(w)
	}
	w.emit = emit

	evalOptions := []jsonpath.Option{jsonpath.WithLogger(w.logger)}
	if w.capability != nil {
		evalOptions = append(evalOptions, jsonpath.WithCapability(w.capability))
	}
	w.evaluator = jsonpath.NewEvaluator(evalOptions...)

	w.manager = task.NewManager(
		task.WithTimeout(w.taskTimeout),
		task.WithCancelListener(func(taskID string, reason task.Reason) {
			w.send(Response{Type: MsgTaskCancelled, TaskID: taskID, Reason: string(reason)})
		}),
	)
	return w
}

// Active reports whether a task id is still tracked.
func (w *Worker) Active(taskID string) bool {
	return w.manager.IsActive(taskID)
}

// Handle accepts one inbound request. Operations return immediately and run
// on their own goroutine; cancellations apply synchronously.
func (w *Worker) Handle(req Request) {
	switch req.Type {
	case OpCancel:
		var p cancelPayload
		if err := json.Unmarshal(req.Payload, &p); err != nil || p.TaskID == "" {
			w.send(Response{Type: MsgError, TaskID: req.TaskID, Error: "cancel: missing taskId"})
			return
		}
		w.manager.Cancel(p.TaskID, task.ReasonUser)
	case OpCancelAll:
		w.manager.CancelAll()
	case OpFormat:
		w.start(req, w.handleFormat)
	case OpMinify:
		w.start(req, w.handleMinify)
	case OpValidate:
		w.start(req, w.handleValidate)
	case OpSortKeys:
		w.start(req, w.handleSortKeys)
	case OpJSONPath:
		w.start(req, w.handleJSONPath)
	case OpDiff:
		w.start(req, w.handleDiff)
	default:
		w.send(Response{Type: MsgError, TaskID: req.TaskID, Error: fmt.Sprintf("unknown operation %q", req.Type)})
	}
}

type handler func(t *task.Task, payload json.RawMessage) (interface{}, error)

// start registers the task (superseding any live task of the same type) and
// runs the handler on its own goroutine.
func (w *Worker) start(req Request, fn handler) {
	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}
	t := w.manager.Submit(taskID, req.Type, nil, 0)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(t, req, fn)
	}()
}

// Wait blocks until every started handler has finished. Used on shutdown so
// in-flight results are not dropped with the process.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// run executes one handler and emits its single terminal message. A panic is
// the last-resort path out of a handler: the task is force-completed and the
// panic crosses the boundary as an error message with a stack.
func (w *Worker) run(t *task.Task, req Request, fn handler) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panic", zap.String("taskId", t.ID), zap.Any("panic", r))
			if w.manager.Complete(t.ID) {
				w.send(Response{Type: MsgError, TaskID: t.ID, Error: fmt.Sprint(r), Stack: string(debug.Stack())})
			}
		}
	}()

	result, err := fn(t, req.Payload)
	if errors.Is(err, errAborted) || t.Token.Cancelled() {
		// the cancellation event is the terminal message; force completion
		// in case the token was cancelled outside the manager
		w.manager.Complete(t.ID)
		return
	}
	// Complete atomically re-checks liveness: a task cancelled after its
	// computation finished must not have its reply delivered.
	if !w.manager.Complete(t.ID) {
		return
	}
	if err != nil {
		w.send(Response{Type: MsgError, TaskID: t.ID, Error: err.Error()})
		return
	}
	w.send(Response{Type: req.Type + "_complete", TaskID: t.ID, Result: result})
}

func (w *Worker) send(resp Response) {
	w.emitMu.Lock()
	defer w.emitMu.Unlock()
	w.emit(resp)
}

func (w *Worker) handleFormat(t *task.Task, payload json.RawMessage) (interface{}, error) {
	var p formatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, inputError{fmt.Errorf("format: %w", err)}
	}
	threshold := w.largePayload
	if p.ChunkSize > 0 {
		threshold = p.ChunkSize
	}
	// oversized payloads get a checkpoint before the expensive parse
	if len(p.Text) > threshold && t.Token.Cancelled() {
		return nil, errAborted
	}
	value, err := jsonval.Parse(p.Text)
	if err != nil {
		return nil, inputError{err}
	}
	if t.Token.Cancelled() {
		return nil, errAborted
	}
	out, err := jsonval.Format(value, 2)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Worker) handleMinify(t *task.Task, payload json.RawMessage) (interface{}, error) {
	var p minifyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, inputError{fmt.Errorf("minify: %w", err)}
	}
	if len(p.Text) > w.largePayload && t.Token.Cancelled() {
		return nil, errAborted
	}
	value, err := jsonval.Parse(p.Text)
	if err != nil {
		return nil, inputError{err}
	}
	if t.Token.Cancelled() {
		return nil, errAborted
	}
	out, err := jsonval.Format(value, 0)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Worker) handleValidate(t *task.Task, payload json.RawMessage) (interface{}, error) {
	var p validatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, inputError{fmt.Errorf("validate: %w", err)}
	}
	value, err := jsonval.Parse(p.Text)
	if err != nil {
		result := ValidateResult{Valid: false, Error: err.Error()}
		var syn *jsonval.SyntaxError
		if errors.As(err, &syn) {
			result.Line = syn.Line
			result.Column = syn.Column
		}
		return result, nil
	}
	result := ValidateResult{Valid: true, Data: value}
	if p.WithPositions {
		result.Positions = scanKeyPositions(p.Text, t.Token)
		if t.Token.Cancelled() {
			return nil, errAborted
		}
	}
	return result, nil
}

func (w *Worker) handleSortKeys(t *task.Task, payload json.RawMessage) (interface{}, error) {
	var p sortKeysPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, inputError{fmt.Errorf("sort_keys: %w", err)}
	}
	value, err := jsonval.Parse(p.Text)
	if err != nil {
		return nil, inputError{err}
	}
	if t.Token.Cancelled() {
		return nil, errAborted
	}
	indent := 2
	if p.Indent != nil {
		indent = *p.Indent
	}
	out, err := jsonval.Format(jsonval.SortKeysDeep(value), indent)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Worker) handleJSONPath(t *task.Task, payload json.RawMessage) (interface{}, error) {
	var p jsonPathPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, inputError{fmt.Errorf("jsonpath: %w", err)}
	}
	matches, err := w.evaluator.QueryText(p.Text, p.Path, t.Token)
	if err != nil {
		return nil, inputError{err}
	}
	if t.Token.Cancelled() {
		return nil, errAborted
	}

	count := len(matches)
	truncated := count > w.resultCap
	if truncated {
		matches = matches[:w.resultCap]
	}

	result := JSONPathResult{
		Values:       make([]interface{}, 0, len(matches)),
		Paths:        make([][]interface{}, 0, len(matches)),
		JSONPaths:    make([]string, 0, len(matches)),
		PointerPaths: make([]string, 0, len(matches)),
		Count:        count,
		Truncated:    truncated,
	}
	for _, m := range matches {
		if t.Token.Cancelled() {
			return nil, errAborted
		}
		result.Values = append(result.Values, m.Value)
		result.Paths = append(result.Paths, pathArray(m.Path))
		result.JSONPaths = append(result.JSONPaths, m.JSONPath)
		result.PointerPaths = append(result.PointerPaths, m.Pointer)
	}
	return result, nil
}

func (w *Worker) handleDiff(t *task.Task, payload json.RawMessage) (interface{}, error) {
	var p diffPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, inputError{fmt.Errorf("diff: %w", err)}
	}
	switch p.Mode {
	case "line":
		edits, stats, aborted := diff.Lines(p.LeftText, p.RightText, t.Token)
		if aborted {
			return nil, errAborted
		}
		if edits == nil {
			edits = []diff.LineEdit{}
		}
		return DiffResult{Type: "line", Differences: edits, Stats: stats}, nil
	case "structural":
		left, err := jsonval.Parse(p.LeftText)
		if err != nil {
			return nil, inputError{fmt.Errorf("left document: %w", err)}
		}
		right, err := jsonval.Parse(p.RightText)
		if err != nil {
			return nil, inputError{fmt.Errorf("right document: %w", err)}
		}
		edits, aborted := diff.Structural(left, right, p.IgnoreKeyOrder, t.Token)
		if aborted {
			return nil, errAborted
		}
		merged := diff.DetectRenames(edits)
		if t.Token.Cancelled() {
			return nil, errAborted
		}
		return DiffResult{
			Type:        "structural",
			Differences: diffEntries(merged),
			Stats:       diff.Summarize(merged),
		}, nil
	default:
		return nil, inputError{fmt.Errorf("diff: unknown mode %q", p.Mode)}
	}
}
