// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"strconv"
)

// RegisterBaseLib installs pcall, xpcall, error, and assert in
// state.Globals. Grounded on the reference implementation's ldo.c
// (luaD_pcall/luaD_rawrunprotected), adapted from its
// setjmp/longjmp-and-recover error propagation to this package's
// explicit [callResult] values: a protected call here is just a
// callValue whose error result is caught and translated instead of
// unwound through a panic, and it is a [Resumable] rather than a
// blocking call so that Lua code running underneath pcall can still
// yield straight through it (spec §4.3 and §7's yieldable-pcall case).
func RegisterBaseLib(state *LuaState) {
	state.Globals.RawSet(libString("pcall"), newResumableClosure("pcall", protectedCall{}))
	state.Globals.RawSet(libString("xpcall"), newResumableClosure("xpcall", protectedCallWithHandler{}))
	state.Globals.RawSet(libString("error"), newGoClosure("error", baseError))
	state.Globals.RawSet(libString("assert"), newGoClosure("assert", baseAssert))
}

// protectionEntry is the boundary a live pcall/xpcall call pushes onto
// [Thread.protection] for the duration of its protected call, and the
// reified continuation the [DebugFrame] of a suspended one records:
// enough to translate whatever the protected call eventually produces,
// on any number of intervening yields, back into pcall's
// (true, ...)/(false, err) convention. handler is nil for a plain
// pcall, which still needs an entry on the stack so it shadows any
// enclosing xpcall's handler from firing for errors it absorbs itself.
//
// fired/results record that [Thread.maybeRunHandlerBeforeUnwind]
// already ran the handler at the error site, before the frames between
// there and this boundary were popped (spec §4.3): by the time the
// error reaches back here, the handler's output is already computed
// and just needs relaying.
type protectionEntry struct {
	handler Value
	fired   bool
	results []Value
}

// pcallState is what a suspended pcall/xpcall frame stores as its
// [DebugFrame] state: a pointer back to its entry on [Thread.protection].
type pcallState struct {
	entry *protectionEntry
}

// pushProtection registers a new pcall/xpcall boundary and returns it.
func (t *Thread) pushProtection(handler Value) *protectionEntry {
	entry := &protectionEntry{handler: handler}
	t.protection = append(t.protection, entry)
	return entry
}

// popProtection removes entry, which must be the innermost active
// boundary, once its protected call has finally resolved.
func (t *Thread) popProtection(*protectionEntry) {
	t.protection = t.protection[:len(t.protection)-1]
}

// protectedCall implements pcall(f, ...): call f with the given
// arguments, catching any [*LuaError] it raises (directly or via a
// metamethod) and reporting it as a second return value instead of
// propagating it. [*Uncatchable] errors are not caught, matching real
// Lua's pcall leaving memory errors and similar host faults alone.
type protectedCall struct{}

func (protectedCall) Run(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, args []Value) callResult {
	fn := first(args)
	rest := args
	if len(args) > 0 {
		rest = args[1:]
	}
	entry := t.pushProtection(nil)
	frame.flags |= flagYieldableProtectedCall
	frame.state = &pcallState{entry: entry}
	r := t.callValue(ctx, fn, rest, -1)
	return t.landProtectedCall(r, entry)
}

func (protectedCall) Resume(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, args []Value) callResult {
	ps, _ := frame.state.(*pcallState)
	return t.landProtectedCall(okResult(args...), ps.entry)
}

func (protectedCall) ResumeError(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, errVal Value) callResult {
	ps, _ := frame.state.(*pcallState)
	return t.landProtectedCall(errResult(newLuaError(errVal)), ps.entry)
}

// protectedCallWithHandler implements xpcall(f, handler, ...): like
// pcall, but a caught error is first passed through handler. handler
// runs synchronously via [Thread.maybeRunHandlerBeforeUnwind] at the
// point the error is raised, while the stack between there and this
// xpcall's own frame is still intact, matching the reference
// implementation's message handler running before the stack unwinds
// past the protected boundary.
type protectedCallWithHandler struct{}

func (protectedCallWithHandler) Run(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, args []Value) callResult {
	fn := first(args)
	var handler Value
	var rest []Value
	if len(args) > 1 {
		handler = args[1]
		rest = args[2:]
	}
	entry := t.pushProtection(handler)
	frame.flags |= flagYieldableProtectedCall
	frame.state = &pcallState{entry: entry}
	r := t.callValue(ctx, fn, rest, -1)
	return t.landProtectedCallWithHandler(ctx, r, entry)
}

func (protectedCallWithHandler) Resume(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, args []Value) callResult {
	ps, _ := frame.state.(*pcallState)
	return t.landProtectedCallWithHandler(ctx, okResult(args...), ps.entry)
}

func (protectedCallWithHandler) ResumeError(ctx context.Context, state *LuaState, t *Thread, frame *DebugFrame, errVal Value) callResult {
	ps, _ := frame.state.(*pcallState)
	return t.landProtectedCallWithHandler(ctx, errResult(newLuaError(errVal)), ps.entry)
}

func (t *Thread) landProtectedCall(r callResult, entry *protectionEntry) callResult {
	if r.isSuspend() {
		return r
	}
	t.popProtection(entry)
	switch r.kind {
	case resultOk:
		return okResult(append([]Value{true}, r.values...)...)
	case resultErr:
		return okResult(false, r.err.Value)
	default: // resultFatal propagates undisturbed.
		return r
	}
}

func (t *Thread) landProtectedCallWithHandler(ctx context.Context, r callResult, entry *protectionEntry) callResult {
	if r.isSuspend() {
		return r
	}
	t.popProtection(entry)
	switch r.kind {
	case resultOk:
		return okResult(append([]Value{true}, r.values...)...)
	case resultErr:
		if entry.handler == nil {
			return okResult(false, r.err.Value)
		}
		if !entry.fired {
			// maybeRunHandlerBeforeUnwind should already have run the
			// handler at the error site; this only covers an error
			// manufactured directly by ResumeError without ever passing
			// through callValue's unwind path.
			results, err := t.callMetaSync(ctx, entry.handler, r.err.Value)
			if err != nil {
				entry.results = []Value{errorToValue(err)}
			} else {
				entry.results = results
			}
		}
		return okResult(append([]Value{false}, entry.results...)...)
	default:
		return r
	}
}

// baseError implements error(message, level): wraps a string message
// with position information at the given stack level (default 1, the
// caller of error) unless level is 0 or message is not a string,
// matching luaB_error.
func baseError(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	msg := first(args)
	level := 1
	if len(args) > 1 {
		if f, ok := ToNumber(args[1]); ok {
			level = int(f)
		}
	}
	if s, ok := msg.(*String); ok && level > 0 {
		if where := t.where(level); where != "" {
			msg = &String{s: where + s.s, hash: fnv1a32(where + s.s)}
		}
	}
	return nil, newLuaError(msg)
}

// where formats "source:line: " for the Lua frame level steps up from
// the currently-running one, or "" if there is no such frame or it has
// no debug info, matching luaL_where.
func (t *Thread) where(level int) string {
	idx := len(t.frames) - 1 - level
	if idx < 0 || idx >= len(t.frames) {
		return ""
	}
	f := &t.frames[idx]
	if !f.isLua() {
		return ""
	}
	p := f.proto()
	return p.Source.ShortSource() + ":" + strconv.Itoa(p.LineAt(f.pc)) + ": "
}

// baseAssert implements assert(v, message, ...): if v is falsy, raises
// message (or the default "assertion failed!") as an error; otherwise
// returns all of its arguments unchanged.
func baseAssert(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	if len(args) == 0 || !Truthy(args[0]) {
		if len(args) > 1 {
			return nil, newLuaError(args[1])
		}
		return nil, runtimeErrorf("assertion failed!")
	}
	return args, nil
}
