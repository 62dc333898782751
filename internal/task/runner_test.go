package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabe/botpool/internal/models"
)

type fakeTracker struct {
	mu         sync.Mutex
	retries    int
	maxSeen    int
	heartbeats int
	outcomes   []models.Outcome
	reported   map[string]bool
	stop       chan struct{}
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{reported: make(map[string]bool), stop: make(chan struct{})}
}

func (f *fakeTracker) Stopping() <-chan struct{} {
	return f.stop
}

func (f *fakeTracker) Heartbeat() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
}

func (f *fakeTracker) RecordOutcome(out models.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, out)
}

func (f *fakeTracker) IncRetries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
	if f.retries > f.maxSeen {
		f.maxSeen = f.retries
	}
	return f.retries
}

func (f *fakeTracker) ResetRetries() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = 0
}

func (f *fakeTracker) Retries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retries
}

func (f *fakeTracker) FirstReport(sig string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reported[sig] {
		return false
	}
	f.reported[sig] = true
	return true
}

type fakeCapturer struct {
	mu       sync.Mutex
	captured []error
	panics   []interface{}
}

func (c *fakeCapturer) Capture(err error) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = append(c.captured, err)
	return "hash"
}

func (c *fakeCapturer) CapturePanic(v interface{}, stack []byte) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panics = append(c.panics, v)
	return "hash"
}

// failingExecutor fails the first n attempts, then succeeds
func failingExecutor(n int, err error) (Executor, *int) {
	calls := 0
	return ExecutorFunc(func(ctx context.Context, sc SlotContext) models.Outcome {
		calls++
		if calls <= n {
			return models.Outcome{Err: err}
		}
		return models.Outcome{Success: true, Category: models.CategoryAmateur}
	}), &calls
}

func fastPolicy(max int) RetryPolicy {
	return RetryPolicy{MaxAttempts: max, Delay: 0}
}

func TestRunner_SuccessFirstAttempt(t *testing.T) {
	exec, _ := failingExecutor(0, nil)
	tracker := newFakeTracker()

	res := NewRunner(exec, fastPolicy(3), nil, nil).Run(context.Background(), tracker, SlotContext{SlotID: 1})

	assert.True(t, res.Outcome.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Exhausted)
	assert.Equal(t, 1, tracker.heartbeats)
	assert.NoError(t, res.Err())
}

func TestRunner_RetriesThenSucceeds(t *testing.T) {
	exec, calls := failingExecutor(2, errors.New("join button missing"))
	tracker := newFakeTracker()

	res := NewRunner(exec, fastPolicy(3), nil, nil).Run(context.Background(), tracker, SlotContext{SlotID: 1})

	assert.True(t, res.Outcome.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, 0, tracker.Retries(), "retry counter resets on success")
	assert.Equal(t, 3, tracker.heartbeats, "every attempt touches the heartbeat")
	assert.Len(t, tracker.outcomes, 3)
}

func TestRunner_ExhaustsBudget(t *testing.T) {
	exec, calls := failingExecutor(100, errors.New("session dead"))
	tracker := newFakeTracker()

	res := NewRunner(exec, fastPolicy(3), nil, nil).Run(context.Background(), tracker, SlotContext{SlotID: 4})

	assert.True(t, res.Exhausted)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, 3, tracker.maxSeen)
	assert.ErrorIs(t, res.Err(), ErrMaxAttemptsExceeded)
}

func TestRunner_AttemptNumberPassedToExecutor(t *testing.T) {
	var attempts []int
	exec := ExecutorFunc(func(ctx context.Context, sc SlotContext) models.Outcome {
		attempts = append(attempts, sc.Attempt)
		return models.Outcome{}
	})

	NewRunner(exec, fastPolicy(3), nil, nil).Run(context.Background(), newFakeTracker(), SlotContext{})
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

// Restart cycles as the scheduler drives them: exhaustion resets the counter
func runCycles(t *testing.T, exec Executor, max, budget int) (restarts, attempts int, tracker *fakeTracker) {
	t.Helper()
	tracker = newFakeTracker()
	runner := NewRunner(exec, fastPolicy(max), nil, nil)

	for attempts < budget {
		res := runner.Run(context.Background(), tracker, SlotContext{SlotID: 1})
		attempts += res.Attempts
		if res.Exhausted {
			restarts++
			tracker.ResetRetries()
			continue
		}
		if res.Outcome.Success {
			return
		}
	}
	return
}

func TestRunner_RetryBoundedness(t *testing.T) {
	alwaysFail, _ := failingExecutor(1000, errors.New("boom"))
	restarts, attempts, tracker := runCycles(t, alwaysFail, 3, 6)

	assert.Equal(t, 6, attempts)
	assert.Equal(t, 2, restarts, "restarts after attempt 3 and attempt 6")
	assert.LessOrEqual(t, tracker.maxSeen, 3)

	fiveFailures, _ := failingExecutor(5, errors.New("boom"))
	restarts, attempts, tracker = runCycles(t, fiveFailures, 3, 100)
	assert.Equal(t, 1, restarts)
	assert.Equal(t, 6, attempts)
	assert.Equal(t, 0, tracker.Retries())
}

func TestRunner_ReportsOncePerSignature(t *testing.T) {
	capturer := &fakeCapturer{}
	n := 0
	exec := ExecutorFunc(func(ctx context.Context, sc SlotContext) models.Outcome {
		n++
		if n == 4 {
			return models.Outcome{Err: errors.New("proxy refused")}
		}
		return models.Outcome{Err: errors.New("timeout waiting for button")}
	})

	tracker := newFakeTracker()
	runner := NewRunner(exec, fastPolicy(5), capturer, nil)
	runner.Run(context.Background(), tracker, SlotContext{})
	tracker.ResetRetries()
	runner.Run(context.Background(), tracker, SlotContext{})

	assert.Len(t, capturer.captured, 2, "one capture per distinct error")
}

func TestRunner_RecoversPanics(t *testing.T) {
	capturer := &fakeCapturer{}
	exec := ExecutorFunc(func(ctx context.Context, sc SlotContext) models.Outcome {
		panic("nil selector")
	})

	res := NewRunner(exec, fastPolicy(2), capturer, nil).Run(context.Background(), newFakeTracker(), SlotContext{})

	require.True(t, res.Exhausted)
	assert.ErrorIs(t, res.Outcome.Err, ErrTaskPanicked)
	assert.Equal(t, []interface{}{"nil selector"}, capturer.panics)
	assert.Empty(t, capturer.captured)
}

func TestRunner_CancelDuringDelay(t *testing.T) {
	exec, _ := failingExecutor(100, errors.New("boom"))
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := NewRunner(exec, RetryPolicy{MaxAttempts: 5, Delay: time.Minute}, nil, nil).Run(ctx, newFakeTracker(), SlotContext{})

	assert.True(t, res.Cancelled)
	assert.False(t, res.Exhausted)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_CancelledAttemptNotCounted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := ExecutorFunc(func(ctx context.Context, sc SlotContext) models.Outcome {
		cancel()
		return models.Outcome{Err: ctx.Err()}
	})
	tracker := newFakeTracker()

	res := NewRunner(exec, fastPolicy(3), nil, nil).Run(ctx, tracker, SlotContext{})

	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, 0, tracker.Retries())
}

func TestRunner_StoppingEndsRetries(t *testing.T) {
	exec, calls := failingExecutor(100, errors.New("boom"))
	tracker := newFakeTracker()

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(tracker.stop)
	}()

	res := NewRunner(exec, RetryPolicy{MaxAttempts: 5, Delay: time.Minute}, nil, nil).Run(context.Background(), tracker, SlotContext{})

	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, res.Attempts, "in-flight attempt completes, no new one starts")
	assert.Equal(t, 1, *calls)
}

func TestNewRunner_ClampsPolicy(t *testing.T) {
	r := NewRunner(ExecutorFunc(nil), RetryPolicy{MaxAttempts: 0}, nil, nil)
	assert.Equal(t, 1, r.Policy().MaxAttempts)
	assert.Equal(t, 5, DefaultRetryPolicy().MaxAttempts)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("noop", ExecutorFunc(func(ctx context.Context, sc SlotContext) models.Outcome {
		return models.Outcome{Success: true}
	}))
	reg.Register("navigate", NavigateExecutor{URL: "about:blank"})

	e, err := reg.Get("noop")
	require.NoError(t, err)
	assert.True(t, e.Run(context.Background(), SlotContext{}).Success)

	_, err = reg.Get("keydrop")
	assert.ErrorIs(t, err, ErrExecutorNotFound)
	assert.Equal(t, []string{"navigate", "noop"}, reg.Names())
}

func TestNavigateExecutor_RequiresBrowser(t *testing.T) {
	out := NavigateExecutor{URL: "https://example.com"}.Run(context.Background(), SlotContext{})
	assert.False(t, out.Success)
	assert.Error(t, out.Err)
}
