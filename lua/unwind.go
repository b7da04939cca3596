// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "context"

// resultKind discriminates the outcomes a call into Lua or a Resumable
// Go function can produce. This is the CallResult sum type from the
// design notes, implemented as a tagged struct rather than an
// interface: every point that can suspend a computation returns one of
// these instead of using panic/recover, so a yield unwinds the actual
// Go call stack cleanly and can be replayed later without needing the
// original goroutine still alive.
type resultKind uint8

const (
	resultOk resultKind = iota
	resultErr
	resultUnwind
	resultFatal
)

// callResult is returned by every function in the call graph that might
// invoke Lua code: callValue, execFrame, the tag-method dispatchers,
// pcall, and Resumable.Run/Resume/ResumeError. Exactly one field is meaningful, selected
// by kind.
type callResult struct {
	kind resultKind

	values []Value // resultOk
	err    *LuaError
	fatal  *Uncatchable
}

func okResult(values ...Value) callResult {
	return callResult{kind: resultOk, values: values}
}

func errResult(err *LuaError) callResult {
	return callResult{kind: resultErr, err: err}
}

func fatalResult(err *Uncatchable) callResult {
	return callResult{kind: resultFatal, fatal: err}
}

var unwindResult = callResult{kind: resultUnwind}

func (r callResult) isSuspend() bool { return r.kind == resultUnwind }

// asError converts a non-Ok, non-Unwind callResult to a Go error,
// suitable for returning from the public [Thread.Call]/[Thread.Resume]
// API where the distinction between LuaError and Uncatchable collapses
// to "error, and here's why".
func (r callResult) asError() error {
	switch r.kind {
	case resultErr:
		return r.err
	case resultFatal:
		return r.fatal
	default:
		return nil
	}
}

// Resumable is implemented by a Go function that can suspend partway
// through — typically because it calls back into Lua ([Thread.Call])
// or yields directly ([Thread.Yield]) — and therefore needs its Go-level
// progress reified so [Thread.Resume] can continue it later without a
// live goroutine.
//
// Grounded on Cobalt's ResumableVarArgFunction: run starts the call
// fresh; resume continues it after a nested yield returned control with
// values; resumeError continues it after a nested protected call caught
// an error the function must still observe (e.g. to run cleanup before
// re-raising).
type Resumable interface {
	// Run starts the function. frame is the DebugFrame this Resumable is
	// bound to: implementations store whatever they need to resume in
	// frame.state before returning an unwind callResult.
	Run(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, args []Value) callResult
	// Resume continues a call that previously returned an unwind result,
	// now that the nested computation produced values.
	Resume(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, args []Value) callResult
	// ResumeError continues a call whose nested computation raised a Lua
	// error instead of returning normally.
	ResumeError(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, errVal Value) callResult
}

// suspend records that frame is unwinding with cont as the state to
// hand back to its Resumable when the thread is next resumed, and
// returns the unwind callResult callers should propagate immediately.
func suspend(frame *DebugFrame, cont any) callResult {
	frame.state = cont
	return unwindResult
}

// noYield runs a Resumable-shaped action to completion in a context
// that cannot itself be suspended (spec §4.3's "some contexts, such as
// a metamethod invoked by a Go function that isn't itself resumable,
// cannot forward a yield"). If action yields anyway, that is a bug in
// the caller's contract, surfaced as an [Uncatchable] rather than
// silently losing the suspension.
func noYield(state *LuaState, t *Thread, frame *DebugFrame, run func() callResult) callResult {
	r := run()
	if r.isSuspend() {
		return fatalResult(&Uncatchable{Reason: "attempt to yield across a non-yieldable call boundary"})
	}
	return r
}
