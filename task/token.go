// Package task schedules cooperative background work: at most one live task
// per type, a hard timeout per task, and explicit cancellation tokens that
// handlers poll at safe points. Cancellation is never pre-emptive; a handler
// that ignores its token simply has its result suppressed once the task is
// no longer active.
package task

import "sync"

// Reason says why a task was cancelled.
type Reason string

const (
	ReasonSuperseded Reason = "superseded"
	ReasonTimeout    Reason = "timeout"
	ReasonUser       Reason = "user_cancelled"
	ReasonCancelAll  Reason = "cancel_all"
)

// Token is an explicit cancellation signal passed into long-running work.
// It satisfies the Liveness interfaces of the diff and jsonpath packages.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	reason    Reason
	callbacks []func(Reason)
}

// NewToken creates a live token.
func NewToken() *Token {
	return &Token{}
}

// Cancelled reports whether the token has been cancelled.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reason returns the cancellation reason; ok is false while the token is
// still live.
func (t *Token) Reason() (Reason, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason, t.cancelled
}

// Cancel marks the token. The first reason wins; later calls are no-ops.
// Subscribed callbacks run once, on the calling goroutine.
func (t *Token) Cancel(reason Reason) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.reason = reason
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, fn := range callbacks {
		fn(reason)
	}
}

// OnCancel subscribes a callback. A token that is already cancelled invokes
// the callback immediately.
func (t *Token) OnCancel(fn func(Reason)) {
	t.mu.Lock()
	if t.cancelled {
		reason := t.reason
		t.mu.Unlock()
		fn(reason)
		return
	}
	t.callbacks = append(t.callbacks, fn)
	t.mu.Unlock()
}
