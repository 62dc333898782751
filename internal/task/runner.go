package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gabe/botpool/internal/errreport"
	"github.com/gabe/botpool/internal/logger"
	"github.com/gabe/botpool/internal/models"
)

// RetryPolicy bounds local retries before the slot is restarted
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns 5 attempts 10s apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 10 * time.Second}
}

// Tracker is the slot state the runner updates after every attempt
type Tracker interface {
	Heartbeat()
	RecordOutcome(out models.Outcome)
	// IncRetries increments the retry counter and returns the new value
	IncRetries() int
	ResetRetries()
	Retries() int
	// FirstReport returns true the first time signature is seen for this slot
	FirstReport(signature string) bool
	// Stopping is closed when the slot should finish without starting
	// another attempt
	Stopping() <-chan struct{}
}

// Capturer records unexpected errors
type Capturer interface {
	Capture(err error) string
	CapturePanic(v interface{}, stack []byte) string
}

// Result is the outcome of a Run
type Result struct {
	Outcome   models.Outcome
	Attempts  int
	Exhausted bool // retry budget spent; the slot needs a structural restart
	Cancelled bool // ctx ended before an outcome was reached
}

// Err returns the error that ended the run, wrapping ErrMaxAttemptsExceeded
// when the retry budget was spent.
func (r Result) Err() error {
	if !r.Exhausted {
		return r.Outcome.Err
	}
	if r.Outcome.Err != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrMaxAttemptsExceeded, r.Attempts, r.Outcome.Err)
	}
	return fmt.Errorf("%w after %d attempts", ErrMaxAttemptsExceeded, r.Attempts)
}

// Runner executes tasks for slots
type Runner struct {
	executor Executor
	policy   RetryPolicy
	capturer Capturer
	log      logger.Logger
}

// NewRunner creates a runner. capturer may be nil.
func NewRunner(executor Executor, policy RetryPolicy, capturer Capturer, log logger.Logger) *Runner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		executor: executor,
		policy:   policy,
		capturer: capturer,
		log:      log.With(logger.String("component", "runner")),
	}
}

// Policy returns the runner's retry policy
func (r *Runner) Policy() RetryPolicy {
	return r.policy
}

// Run attempts the task until it succeeds, the slot's retry counter reaches
// MaxAttempts, or ctx ends.
func (r *Runner) Run(ctx context.Context, slot Tracker, sc SlotContext) Result {
	var res Result

	for {
		if ctx.Err() != nil || stopped(slot.Stopping()) {
			res.Cancelled = true
			return res
		}

		sc.Attempt = slot.Retries() + 1
		out := r.attempt(ctx, sc)

		// An attempt interrupted by stop or restart is not a task failure
		if ctx.Err() != nil && !out.Success {
			res.Cancelled = true
			return res
		}

		res.Attempts++
		res.Outcome = out
		slot.Heartbeat()
		slot.RecordOutcome(out)

		if out.Success {
			slot.ResetRetries()
			return res
		}

		retries := slot.IncRetries()
		r.report(slot, sc, out.Err)

		if retries >= r.policy.MaxAttempts {
			res.Exhausted = true
			r.log.Warn("Retry budget exhausted",
				logger.Int("slot", sc.SlotID),
				logger.Int("attempts", retries))
			return res
		}

		r.log.Debug("Task attempt failed, retrying",
			logger.Int("slot", sc.SlotID),
			logger.Int("attempt", retries),
			logger.Duration("delay", r.policy.Delay))

		if !sleep(ctx, slot.Stopping(), r.policy.Delay) {
			res.Cancelled = true
			return res
		}
	}
}

// PanicError is the error of an attempt whose executor panicked
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: %v", ErrTaskPanicked, e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrTaskPanicked
}

func (r *Runner) attempt(ctx context.Context, sc SlotContext) (out models.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = models.Outcome{Err: &PanicError{Value: p, Stack: debug.Stack()}}
		}
	}()
	return r.executor.Run(ctx, sc)
}

// report captures err once per distinct signature per slot
func (r *Runner) report(slot Tracker, sc SlotContext, err error) {
	if err == nil {
		return
	}
	if !slot.FirstReport(errreport.Hash(errreport.FormatError(err))) {
		return
	}
	r.log.Warn("Task failed", logger.Int("slot", sc.SlotID), logger.Error(err))
	if r.capturer == nil {
		return
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		r.capturer.CapturePanic(pe.Value, pe.Stack)
		return
	}
	r.capturer.Capture(err)
}

// sleep waits d or until ctx ends or stop closes, reporting whether the
// full wait elapsed
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil && !stopped(stop)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
