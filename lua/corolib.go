// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "context"

// RegisterCoroutineLib installs the "coroutine" table in state.Globals:
// create, resume, yield, status, wrap, running, and isyieldable (spec
// §4.3). Grounded on Cobalt's CoroutineLib, adapted from its
// Java-thread-per-coroutine model to this package's explicit
// [callResult]-based suspension: only yield itself needs to be a
// [Resumable] — resume and wrap drive a nested [Thread.Resume] call
// synchronously and absorb that coroutine's own yields internally,
// so from the caller's perspective they never suspend.
func RegisterCoroutineLib(state *LuaState) {
	lib := NewTable(0, 7)
	lib.RawSet(libString("create"), newGoClosure("create", coroutineCreate))
	lib.RawSet(libString("status"), newGoClosure("status", coroutineStatus))
	lib.RawSet(libString("running"), newGoClosure("running", coroutineRunning))
	lib.RawSet(libString("isyieldable"), newGoClosure("isyieldable", coroutineIsYieldable))
	lib.RawSet(libString("wrap"), newGoClosure("wrap", coroutineWrap))
	lib.RawSet(libString("resume"), newGoClosure("resume", coroutineResume))
	lib.RawSet(libString("yield"), newResumableClosure("yield", coroutineYield{}))
	state.Globals.RawSet(libString("coroutine"), lib)
}

func libString(s string) *String {
	return &String{s: s, hash: fnv1a32(s)}
}

func coroutineCreate(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	fn := first(args)
	if _, ok := fn.(closure); !ok {
		return nil, typeError(state, "create", 1, "function", fn)
	}
	co, err := state.NewCoroutine(fn)
	if err != nil {
		return nil, runtimeErrorf("%v", err)
	}
	return []Value{co}, nil
}

func coroutineStatus(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	co, ok := first(args).(*Thread)
	if !ok {
		return nil, typeError(state, "status", 1, "coroutine", first(args))
	}
	return []Value{libString(coroutineStatusName(state, co))}, nil
}

// coroutineStatusName reports co's status the way coroutine.status does,
// which distinguishes "running" (co is the one actually executing
// bytecode right now, across every nested resume) from "normal" (co
// resumed another coroutine and is waiting on it).
func coroutineStatusName(state *LuaState, co *Thread) string {
	if co == state.currentThread() {
		return ThreadRunning.String()
	}
	return co.Status().String()
}

func coroutineRunning(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	cur := state.currentThread()
	return []Value{cur, cur == state.MainThread()}, nil
}

func coroutineIsYieldable(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	return []Value{state.currentThread() != state.MainThread()}, nil
}

// coroutineResume drives the target coroutine to its next suspension
// or completion and translates the outcome into the (true, ...)/(false,
// err) convention coroutine.resume promises its caller.
func coroutineResume(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	co, ok := first(args).(*Thread)
	if !ok {
		return nil, typeError(state, "resume", 1, "coroutine", first(args))
	}
	results, err := co.resumeLocked(ctx, args[1:])
	if err != nil {
		if isUncatchable(err) {
			// An allocation-tracker refusal or context cancellation inside
			// the target coroutine must bypass coroutine.resume's own
			// (false, err) convention and reach the host as an exceptional
			// result, not ordinary Lua values (spec §7/§8).
			return nil, err
		}
		return []Value{false, errorToValue(err)}, nil
	}
	return append([]Value{true}, results...), nil
}

// coroutineWrap returns a function that resumes a freshly-created
// coroutine and re-raises any error instead of returning a status
// boolean, matching coroutine.wrap's contract.
func coroutineWrap(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	fn := first(args)
	if _, ok := fn.(closure); !ok {
		return nil, typeError(state, "wrap", 1, "function", fn)
	}
	co, err := state.NewCoroutine(fn)
	if err != nil {
		return nil, runtimeErrorf("%v", err)
	}
	wrapped := func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
		return co.resumeLocked(ctx, args)
	}
	return []Value{newGoClosure("wrapped coroutine", wrapped)}, nil
}

// coroutineYield implements coroutine.yield: it unwinds t all the way
// to the [Thread.Resume] call currently running it, handing back args
// as that call's result, and resumes with whatever values the next
// Resume call supplies.
type coroutineYield struct{}

func (coroutineYield) Run(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, args []Value) callResult {
	if t == state.MainThread() {
		return errResult(runtimeErrorf("attempt to yield from outside a coroutine"))
	}
	return t.Yield(args)
}

func (coroutineYield) Resume(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, args []Value) callResult {
	return okResult(args...)
}

func (coroutineYield) ResumeError(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, errVal Value) callResult {
	return errResult(newLuaError(errVal))
}
