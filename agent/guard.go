package agent

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GuardState is the in-flight state of a capability instance.
type GuardState int32

const (
	// GuardIdle means no invocation is outstanding
	GuardIdle GuardState = iota

	// GuardRunning means an invocation is in progress
	GuardRunning

	// GuardTimedOut means the caller gave up on an invocation that has not returned yet
	GuardTimedOut
)

// String returns a string representation of the state.
func (s GuardState) String() string {
	switch s {
	case GuardIdle:
		return "idle"
	case GuardRunning:
		return "running"
	case GuardTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Guard enforces at-most-one-in-flight for a behavior or handler instance.
// A call is only admitted from GuardIdle; the state returns to GuardIdle when
// the guarded function itself returns, whether it finished, failed, panicked
// or was abandoned after a timeout.
type Guard struct {
	name    string
	mu      sync.Mutex
	state   GuardState
	current *guardCall
	wg      sync.WaitGroup
}

// NewGuard creates an idle guard. The name is used in errors.
func NewGuard(name string) *Guard {
	return &Guard{name: name}
}

// State returns the current state.
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Do runs fn in its own goroutine bounded by timeout (no bound when timeout <= 0)
// and waits for it. It returns ErrBusy without running fn when a previous call
// is still outstanding, and ErrTimeout when the deadline passes first. fn
// receives a context that is cancelled at the deadline.
func (g *Guard) Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	done, err := g.start(ctx, timeout, fn)
	if err != nil {
		return err
	}

	select {
	case err := <-done.result:
		return err
	case <-done.ctx.Done():
		select {
		case err := <-done.result:
			return err
		default:
		}
		g.abandon(done)
		if ctx.Err() != nil {
			return NewAgentErrorWithCause(ErrContextCancelled, g.name+" cancelled", ctx.Err())
		}
		return NewAgentError(ErrTimeout, fmt.Sprintf("%s timed out after %s", g.name, timeout))
	}
}

// Go is the fire-and-forget form of Do. It returns ErrBusy if a call is
// outstanding; otherwise fn runs in the background and onDone, if set,
// receives its result (or the timeout error).
func (g *Guard) Go(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error, onDone func(error)) error {
	done, err := g.start(ctx, timeout, fn)
	if err != nil {
		return err
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		var result error
		select {
		case result = <-done.result:
		case <-done.ctx.Done():
			select {
			case result = <-done.result:
			default:
				g.abandon(done)
				result = NewAgentErrorWithCause(ErrTimeout, g.name+" did not complete", done.ctx.Err())
			}
		}
		if onDone != nil {
			onDone(result)
		}
	}()
	return nil
}

// Wait blocks until no invocation started through this guard is outstanding.
func (g *Guard) Wait() {
	g.wg.Wait()
}

type guardCall struct {
	ctx    context.Context
	result chan error
}

func (g *Guard) start(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) (*guardCall, error) {
	g.mu.Lock()
	if g.state != GuardIdle {
		state := g.state
		g.mu.Unlock()
		return nil, NewAgentError(ErrBusy, fmt.Sprintf("%s is busy (%s)", g.name, state)).
			WithContext("state", state.String())
	}

	var callCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}

	call := &guardCall{ctx: callCtx, result: make(chan error, 1)}
	g.state = GuardRunning
	g.current = call
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer cancel()

		err := g.invoke(callCtx, fn)
		g.release(call)
		call.result <- err
	}()

	return call, nil
}

func (g *Guard) invoke(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewAgentError(ErrUnknown, fmt.Sprintf("%s panicked: %v", g.name, r))
		}
	}()
	return fn(ctx)
}

// abandon marks call as timed out if it is still the outstanding one.
func (g *Guard) abandon(call *guardCall) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == call && g.state == GuardRunning {
		g.state = GuardTimedOut
	}
}

// release returns the guard to idle once call's function has returned.
func (g *Guard) release(call *guardCall) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == call {
		g.current = nil
		g.state = GuardIdle
	}
}
