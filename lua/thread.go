// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Status is a coroutine's lifecycle state, matching coroutine.status's
// vocabulary (spec §4.3).
type Status uint8

const (
	ThreadInitial Status = iota
	ThreadRunning
	ThreadSuspended
	ThreadNormal // resumed another thread and is waiting for it
	ThreadDead
)

func (s Status) String() string {
	switch s {
	case ThreadInitial:
		return "initial"
	case ThreadRunning:
		return "running"
	case ThreadSuspended:
		return "suspended"
	case ThreadNormal:
		return "normal"
	case ThreadDead:
		return "dead"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

const minStack = 32

// Thread is a Lua coroutine: a call stack and a register stack, with no
// OS thread or goroutine of its own. Resuming and yielding are plain Go
// calls that return through explicit [callResult] values (spec §4.3).
type Thread struct {
	uid    uuid.UUID
	state  *LuaState
	status Status

	regs   []Value
	frames []DebugFrame

	// protection is the stack of active pcall/xpcall boundaries, in call
	// order (innermost last), mirroring the nesting of frames. It lets
	// callValue find the nearest enclosing xpcall's message handler and
	// fire it at the error site, before any frame between there and the
	// boundary is popped (spec §4.3).
	protection []*protectionEntry

	resumer *Thread // who last resumed this thread, for coroutine.running/status

	// entry holds the function a freshly-created coroutine will run on
	// its first resume (spec §4.3: the C API only resumes at a yield;
	// the *first* resume instead starts a fresh function call).
	entry closure

	// yieldedValues holds the arguments most recently passed to
	// [Thread.Yield] by this thread.
	yieldedValues []Value

	started bool

	// Debug hook state (spec §4.4). hookCount/hookCountReset implement
	// the count hook's "every N instructions" interval: hookCount is the
	// countdown, reset to hookCountReset each time it reaches zero.
	hookFn         HookFunc
	hookMask       HookMask
	hookCount      int
	hookCountReset int
}

func newThread(state *LuaState) *Thread {
	return &Thread{
		uid:   uuid.New(),
		state: state,
		regs:  make([]Value, 0, minStack),
	}
}

func (t *Thread) id() uuid.UUID { return t.uid }

// Status reports the coroutine's current lifecycle state.
func (t *Thread) Status() Status { return t.status }

// NewCoroutine creates a thread in the [ThreadInitial] state that will
// call fn with the first resume's arguments. fn must be a value of function type, as
// returned by [LuaState.Load] or registered with a Go closure.
func (state *LuaState) NewCoroutine(fn Value) (*Thread, error) {
	c, ok := fn.(closure)
	if !ok {
		return nil, fmt.Errorf("lua: NewCoroutine: %s is not a function", state.TypeName(fn))
	}
	t := newThread(state)
	t.entry = c
	t.status = ThreadInitial
	return t, nil
}

// Resume runs t until it either returns, yields, or errors (spec §4.3).
// On the first resume of a freshly-created coroutine, args become the
// entry function's arguments; on every subsequent resume, args become
// the results of the [Thread.Yield] call that suspended it.
func (t *Thread) Resume(ctx context.Context, args []Value) ([]Value, error) {
	if err := t.state.tryEnter(); err != nil {
		return nil, err
	}
	defer t.state.exit()
	return t.resumeLocked(ctx, args)
}

// resumeLocked is Resume's body, called directly (skipping the
// single-runner semaphore) by coroutine.resume/coroutine.wrap: those
// drive a nested Thread.Resume from Go code that is itself running
// inside an already-acquired outer Resume/Call on the same goroutine,
// and the semaphore's weight of 1 means a naive re-acquire there would
// fail the very re-entrancy this interpreter relies on (spec §5's
// exclusion is about a second OS thread, not a coroutine nested within
// the one already driving the call).
func (t *Thread) resumeLocked(ctx context.Context, args []Value) ([]Value, error) {
	switch t.status {
	case ThreadDead:
		return nil, &LuaError{Value: &String{s: "cannot resume dead coroutine"}}
	case ThreadRunning, ThreadNormal:
		return nil, &LuaError{Value: &String{s: "cannot resume non-suspended coroutine"}}
	}

	caller := t.state.currentThread()
	if caller != nil {
		caller.status = ThreadNormal
	}
	t.resumer = caller
	t.state.setCurrentThread(t)
	t.status = ThreadRunning
	defer func() {
		if t.status == ThreadRunning {
			t.status = ThreadSuspended
		}
		t.state.setCurrentThread(caller)
		if caller != nil {
			caller.status = ThreadRunning
		}
	}()

	var r callResult
	if !t.started {
		t.started = true
		r = t.startEntry(ctx, args)
	} else {
		r = t.resumeTop(ctx, args)
	}

	switch r.kind {
	case resultOk:
		t.status = ThreadDead
		return r.values, nil
	case resultErr:
		t.status = ThreadDead
		return nil, r.err
	case resultFatal:
		t.status = ThreadDead
		return nil, r.fatal
	default: // resultUnwind: a yield reached the top of this thread's stack.
		t.status = ThreadSuspended
		return t.yieldedValues, nil
	}
}

// setYielded records the arguments most recently passed to
// [Thread.Yield] by this thread in yieldedValues, consumed by the Resume
// call that observes the suspension.
func (t *Thread) setYielded(vs []Value) { t.yieldedValues = vs }

func (t *Thread) startEntry(ctx context.Context, args []Value) callResult {
	return t.callValue(ctx, t.entry, args, -1)
}

// resumeTop continues the innermost suspended frame, then lets that
// call's ordinary return path bubble the result up through the frames
// that called it — each of which, per [Resumable], may itself need to
// observe the resumed values before it can finish (spec §4.3: "resume
// replays continuations top-down", top meaning the outermost frame of
// the call chain being reconstructed). See [Thread.resumeFrame] in
// vm.go for the actual walk.
func (t *Thread) resumeTop(ctx context.Context, args []Value) callResult {
	return t.resumeFrame(ctx, 0, args, nil)
}
