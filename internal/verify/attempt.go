package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/mocaport/internal/credential"
)

// ErrCancelled is returned by Wait when the attempt was cancelled.
var ErrCancelled = errors.New("verification cancelled")

// AttemptState is the lifecycle of one verification run.
type AttemptState int

const (
	AttemptRunning AttemptState = iota
	AttemptSucceeded
	AttemptDenied
	AttemptCancelled
)

func (s AttemptState) String() string {
	switch s {
	case AttemptRunning:
		return "running"
	case AttemptSucceeded:
		return "succeeded"
	case AttemptDenied:
		return "denied"
	case AttemptCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Event is emitted when a stage begins and once more when the run ends.
type Event struct {
	Stage int
	Total int
	Step  Step
	// Final marks the last event; Result is set on it.
	Final  bool
	Result Result
}

// commitFunc runs once on success, before the final event is emitted. It
// returns the credential it stored, if any.
type commitFunc func(Result) (*credential.Credential, error)

// Attempt is one running verification. Stages advance on timers; the
// caller observes them through Events and may Cancel at any point before
// the run ends. A cancelled attempt emits nothing further and never
// commits.
type Attempt struct {
	mu        deadlock.Mutex
	method    credential.Method
	steps     []Step
	provider  Provider
	commit    commitFunc
	stage     int
	state     AttemptState
	result    Result
	commitErr error
	timer     *time.Timer
	stopCtx   func() bool
	events    chan Event
	done      chan struct{}
}

func newAttempt(method credential.Method, steps []Step, p Provider, commit commitFunc) *Attempt {
	return &Attempt{
		method:   method,
		steps:    steps,
		provider: p,
		commit:   commit,
		stage:    -1,
		events:   make(chan Event, len(steps)+1),
		done:     make(chan struct{}),
	}
}

// start enters the first stage. Cancelling ctx cancels the attempt.
func (a *Attempt) start(ctx context.Context) {
	a.mu.Lock()
	a.stopCtx = context.AfterFunc(ctx, func() { a.Cancel() })
	a.advanceLocked()
	a.mu.Unlock()
}

// Events delivers stage events in order. It is closed when the attempt ends.
func (a *Attempt) Events() <-chan Event {
	return a.events
}

// Done is closed when the attempt ends for any reason.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Method returns the verification method.
func (a *Attempt) Method() credential.Method {
	return a.method
}

// Steps returns the stage plan.
func (a *Attempt) Steps() []Step {
	return append([]Step(nil), a.steps...)
}

// Progress returns the current stage index (-1 before the first) and the
// stage count.
func (a *Attempt) Progress() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stage, len(a.steps)
}

// State returns the lifecycle state.
func (a *Attempt) State() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Cancel abandons a running attempt. It reports whether the attempt was
// still running; once the run has ended Cancel has no effect.
func (a *Attempt) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != AttemptRunning {
		return false
	}
	a.state = AttemptCancelled
	if a.timer != nil {
		a.timer.Stop()
	}
	a.finishLocked()
	return true
}

// Wait blocks until the attempt ends or ctx is done. It returns
// ErrCancelled for a cancelled attempt. A denial is a Result with Success
// false and a nil error. A failure to store the granted credential is
// returned alongside the successful result.
func (a *Attempt) Wait(ctx context.Context) (Result, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == AttemptCancelled {
		return Result{}, ErrCancelled
	}
	if a.commitErr != nil {
		return a.result, fmt.Errorf("store credential: %w", a.commitErr)
	}
	return a.result, nil
}

// advanceLocked enters the next stage or resolves the run.
func (a *Attempt) advanceLocked() {
	if a.state != AttemptRunning {
		return
	}

	next := a.stage + 1
	if next >= len(a.steps) {
		a.resolveLocked()
		return
	}

	a.stage = next
	step := a.steps[next]
	a.events <- Event{Stage: next, Total: len(a.steps), Step: step}

	a.timer = time.AfterFunc(a.provider.StepDelay(a.method, step), a.tick)
}

func (a *Attempt) tick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advanceLocked()
}

func (a *Attempt) resolveLocked() {
	res := a.provider.Resolve(a.method)

	if res.Success {
		a.state = AttemptSucceeded
		if a.commit != nil {
			cred, err := a.commit(res)
			res.Credential = cred
			a.commitErr = err
		}
	} else {
		a.state = AttemptDenied
	}

	a.result = res
	a.events <- Event{Stage: a.stage, Total: len(a.steps), Final: true, Result: res}
	a.finishLocked()
}

func (a *Attempt) finishLocked() {
	if a.stopCtx != nil {
		a.stopCtx()
	}
	close(a.events)
	close(a.done)
}
