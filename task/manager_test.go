package task

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cancelRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *cancelRecorder) record(taskID string, reason Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, taskID+":"+string(reason))
}

func (r *cancelRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func TestSubmitSupersedesSameType(t *testing.T) {
	rec := &cancelRecorder{}
	m := NewManager(WithCancelListener(rec.record))

	first := m.Submit("t1", "diff", nil, 0)
	second := m.Submit("t2", "diff", nil, 0)

	assert.False(t, m.IsActive("t1"))
	assert.True(t, m.IsActive("t2"))
	assert.True(t, first.Token.Cancelled())
	assert.False(t, second.Token.Cancelled())

	reason, ok := first.Token.Reason()
	require.True(t, ok)
	assert.Equal(t, ReasonSuperseded, reason)
	assert.Equal(t, []string{"t1:superseded"}, rec.snapshot())
}

func TestDifferentTypesCoexist(t *testing.T) {
	m := NewManager()
	m.Submit("t1", "diff", nil, 0)
	m.Submit("t2", "format", nil, 0)

	assert.True(t, m.IsActive("t1"))
	assert.True(t, m.IsActive("t2"))
	assert.Equal(t, 2, m.ActiveCount())
}

func TestCancelIsIdempotent(t *testing.T) {
	rec := &cancelRecorder{}
	m := NewManager(WithCancelListener(rec.record))

	m.Submit("t1", "diff", nil, 0)
	assert.True(t, m.Cancel("t1", ReasonUser))
	assert.False(t, m.Cancel("t1", ReasonUser))
	assert.False(t, m.Cancel("never-registered", ReasonUser))

	assert.Equal(t, []string{"t1:user_cancelled"}, rec.snapshot())
}

func TestCompleteEmitsNoCancellation(t *testing.T) {
	rec := &cancelRecorder{}
	m := NewManager(WithCancelListener(rec.record))

	m.Submit("t1", "diff", nil, 0)
	assert.True(t, m.Complete("t1"))
	assert.False(t, m.IsActive("t1"))
	assert.False(t, m.Complete("t1"))
	assert.Empty(t, rec.snapshot())
}

func TestCancelAll(t *testing.T) {
	rec := &cancelRecorder{}
	m := NewManager(WithCancelListener(rec.record))

	m.Submit("t1", "diff", nil, 0)
	m.Submit("t2", "format", nil, 0)
	m.Submit("t3", "jsonpath", nil, 0)

	assert.Equal(t, 3, m.CancelAll())
	assert.Equal(t, 0, m.ActiveCount())

	events := rec.snapshot()
	assert.Len(t, events, 3)
	for _, e := range events {
		assert.Contains(t, e, ":cancel_all")
	}
}

func TestTimeoutCancelsTask(t *testing.T) {
	rec := &cancelRecorder{}
	m := NewManager(WithTimeout(10*time.Millisecond), WithCancelListener(rec.record))

	submitted := m.Submit("t1", "diff", nil, 0)

	require.Eventually(t, func() bool {
		return submitted.Token.Cancelled()
	}, time.Second, time.Millisecond)

	reason, ok := submitted.Token.Reason()
	require.True(t, ok)
	assert.Equal(t, ReasonTimeout, reason)
	assert.False(t, m.IsActive("t1"))
	assert.Equal(t, []string{"t1:timeout"}, rec.snapshot())
}

func TestCompletionDisarmsTimeout(t *testing.T) {
	rec := &cancelRecorder{}
	m := NewManager(WithTimeout(20*time.Millisecond), WithCancelListener(rec.record))

	m.Submit("t1", "diff", nil, 0)
	m.Complete("t1")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

// A timer left over from a completed task must not cancel a new task that
// reused the id.
func TestStaleTimerCannotHitReusedID(t *testing.T) {
	rec := &cancelRecorder{}
	m := NewManager(WithTimeout(20*time.Millisecond), WithCancelListener(rec.record))

	first := m.Submit("t1", "diff", nil, 0)
	m.Complete("t1")
	// fire the stale timer by hand; Stop may already have won, the cancel
	// must be a no-op either way
	m.cancelTask(first, ReasonTimeout)

	second := m.Submit("t1", "format", nil, 0)
	assert.True(t, m.IsActive("t1"))
	assert.False(t, second.Token.Cancelled())
	assert.Empty(t, rec.snapshot())
}

func TestTokenCancelFirstReasonWins(t *testing.T) {
	token := NewToken()
	token.Cancel(ReasonUser)
	token.Cancel(ReasonTimeout)

	reason, ok := token.Reason()
	require.True(t, ok)
	assert.Equal(t, ReasonUser, reason)
}

func TestTokenOnCancel(t *testing.T) {
	token := NewToken()

	var got []Reason
	token.OnCancel(func(r Reason) { got = append(got, r) })
	token.Cancel(ReasonUser)
	// subscribing after cancellation fires immediately
	token.OnCancel(func(r Reason) { got = append(got, r) })

	assert.Equal(t, []Reason{ReasonUser, ReasonUser}, got)
}
