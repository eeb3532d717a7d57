package task

import (
	"sync"
	"time"
)

// DefaultTimeout is the hard deadline armed for every submitted task.
const DefaultTimeout = 30 * time.Second

// Task is one tracked unit of work. It is owned by the Manager for its
// lifetime; handlers only read it and poll its Token.
type Task struct {
	ID        string
	Type      string
	Payload   interface{}
	Priority  int
	Token     *Token
	StartedAt time.Time

	timer *time.Timer
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout overrides the per-task hard timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithCancelListener registers the sink for cancellation events. The
// listener fires exactly once per cancelled task, never for completed ones.
func WithCancelListener(fn func(taskID string, reason Reason)) Option {
	return func(m *Manager) {
		m.onCancel = fn
	}
}

// Manager tracks active tasks with a last-wins discipline: submitting a task
// supersedes any live task of the same type.
type Manager struct {
	mu       sync.Mutex
	timeout  time.Duration
	tasks    map[string]*Task
	byType   map[string]*Task
	onCancel func(taskID string, reason Reason)
}

// NewManager creates a manager with the given options.
func NewManager(options ...Option) *Manager {
	m := &Manager{
		timeout: DefaultTimeout,
		tasks:   make(map[string]*Task),
		byType:  make(map[string]*Task),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Submit registers a task, cancelling any live task of the same type first,
// and arms its timeout. It never blocks on the work itself.
func (m *Manager) Submit(id, taskType string, payload interface{}, priority int) *Task {
	m.mu.Lock()
	var superseded *Task
	if prev, ok := m.byType[taskType]; ok {
		superseded = m.removeLocked(prev)
	}

	t := &Task{
		ID:        id,
		Type:      taskType,
		Payload:   payload,
		Priority:  priority,
		Token:     NewToken(),
		StartedAt: time.Now(),
	}
	t.timer = time.AfterFunc(m.timeout, func() {
		m.cancelTask(t, ReasonTimeout)
	})
	m.tasks[id] = t
	m.byType[taskType] = t
	m.mu.Unlock()

	if superseded != nil {
		m.finishCancel(superseded, ReasonSuperseded)
	}
	return t
}

// Cancel cancels a tracked task. Unknown ids are a no-op, which makes
// cancellation idempotent.
func (m *Manager) Cancel(id string, reason Reason) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.removeLocked(t)
	m.mu.Unlock()

	m.finishCancel(t, reason)
	return true
}

// CancelAll cancels every tracked task and returns how many were cancelled.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	var cancelled []*Task
	for _, t := range m.tasks {
		cancelled = append(cancelled, m.removeLocked(t))
	}
	m.mu.Unlock()

	for _, t := range cancelled {
		m.finishCancel(t, ReasonCancelAll)
	}
	return len(cancelled)
}

// IsActive reports whether a task id is still tracked. Completed, cancelled
// and never-registered ids all report false.
func (m *Manager) IsActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}

// ActiveCount returns the number of tracked tasks.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Complete removes a finished task without emitting a cancellation event.
// Handlers call it on success and on handled errors alike.
func (m *Manager) Complete(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if ok {
		m.removeLocked(t)
	}
	m.mu.Unlock()
	return ok
}

// cancelTask cancels by task identity, not id, so a stale timer cannot hit a
// later task that reused the id.
func (m *Manager) cancelTask(t *Task, reason Reason) {
	m.mu.Lock()
	current, ok := m.tasks[t.ID]
	if !ok || current != t {
		m.mu.Unlock()
		return
	}
	m.removeLocked(t)
	m.mu.Unlock()

	m.finishCancel(t, reason)
}

// removeLocked drops a task from the bookkeeping maps and disarms its timer.
// Callers hold the mutex.
func (m *Manager) removeLocked(t *Task) *Task {
	delete(m.tasks, t.ID)
	if m.byType[t.Type] == t {
		delete(m.byType, t.Type)
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	return t
}

// finishCancel marks the token and notifies the listener, outside the lock.
func (m *Manager) finishCancel(t *Task, reason Reason) {
	t.Token.Cancel(reason)
	if m.onCancel != nil {
		m.onCancel(t.ID, reason)
	}
}
