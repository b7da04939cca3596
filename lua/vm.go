// Copyright (C) 1994-2013 Lua.org, PUC-Rio.
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
)

// luaContinuation is the state.state a suspended Lua frame stores: the
// CALL or TFORCALL that yielded, so resuming can drop the eventual
// results into the right registers and pick the bytecode loop back up
// (spec §4.3).
type luaContinuation struct {
	destReg     int
	wantResults int
	// isForCall marks a suspended TFORCALL. Its results land at destReg
	// exactly like a CALL's; the saved pc already points at the
	// following TFORLOOP.
	isForCall bool
	// isTailReturn marks a suspended TAILCALL: on resume, the nested
	// call's results become this frame's own return values instead of
	// landing in a register and resuming the bytecode loop.
	isTailReturn bool
}

// Call invokes fn synchronously on t and returns its results. It must
// not be used from within a running Lua frame that might need to
// suspend across the call — use the CALL opcode path (i.e. plain Lua
// code) for that. Call is the entry point a host uses to invoke a
// loaded chunk or any other Lua value directly (spec §6). Like
// [Thread.Resume], it acquires the state's single-runner semaphore for
// its duration (spec §5); calling it re-entrantly from within an
// already-running Call/Resume fails fast with an *Uncatchable instead
// of deadlocking or racing.
func (t *Thread) Call(ctx context.Context, fn Value, args ...Value) ([]Value, error) {
	if err := t.state.tryEnter(); err != nil {
		return nil, err
	}
	defer t.state.exit()

	r := t.callValue(ctx, fn, args, -1)
	if r.isSuspend() {
		return nil, &Uncatchable{Reason: "attempt to yield from outside a resumable call"}
	}
	if err := r.asError(); err != nil {
		return nil, err
	}
	return r.values, nil
}

// Yield suspends t, returning args as the results of the [Thread.Resume]
// call that is currently running it. It only makes sense to call from
// inside a [Resumable] registered as a Go function's implementation.
func (t *Thread) Yield(args []Value) callResult {
	t.setYielded(args)
	return unwindResult
}

// callValue dispatches a call to any callable value, pushing a
// [DebugFrame] and popping it again unless the call suspends (in which
// case the frame stays, holding the continuation for [Thread.Resume]).
func (t *Thread) callValue(ctx context.Context, fn Value, args []Value, wantResults int) callResult {
	c, ok := fn.(closure)
	if !ok {
		// __call metamethod fallback (spec §4.2, SELF/CALL family).
		mt := t.state.metatableOf(fn)
		if mt != nil {
			if h := mt.rawGetStr("__call"); h != nil {
				return t.callValue(ctx, h, append([]Value{fn}, args...), wantResults)
			}
		}
		return errResult(runtimeErrorf("attempt to call a %s value", t.state.TypeName(fn)))
	}

	switch c := c.(type) {
	case *luaClosure:
		idx, err := t.pushLuaFrame(c, args, wantResults)
		if err != nil {
			return fatalResult(err.(*Uncatchable))
		}
		r := t.execFrame(ctx, idx)
		if !r.isSuspend() {
			t.maybeRunHandlerBeforeUnwind(ctx, r)
			t.popFrame(r)
		}
		return r
	case *goClosure:
		frame := t.pushGoFrame(c, wantResults)
		var r callResult
		if c.resumeFn != nil {
			r = c.resumeFn.Run(ctx, t.state, t, frame, args)
		} else {
			values, err := c.fn(ctx, t.state, t, args)
			switch {
			case err == nil:
				r = okResult(values...)
			case isUncatchable(err):
				// A plain GoFunction (not a Resumable) has no other way to
				// signal a host-level fault than its ordinary error return;
				// treat an *Uncatchable the same as one produced directly by
				// the interpreter (spec §7/§8: bypasses pcall, xpcall, and
				// the coroutine boundary).
				r = fatalResult(err.(*Uncatchable))
			default:
				r = errResult(newLuaError(errorToValue(err)))
			}
		}
		if !r.isSuspend() {
			t.maybeRunHandlerBeforeUnwind(ctx, r)
			t.popFrame(r)
		}
		return r
	default:
		return errResult(runtimeErrorf("attempt to call a %s value", t.state.TypeName(fn)))
	}
}

// maybeRunHandlerBeforeUnwind fires the nearest active xpcall's message
// handler the first time an error reaches a frame pop, while the full
// call stack up to that xpcall's own boundary is still intact, so a
// debug.traceback-style handler sees it (spec §4.3). It is a no-op once
// the handler has already fired for this error, or when the nearest
// active protected call is a plain pcall, which absorbs the error
// itself instead of exposing it to an enclosing xpcall.
func (t *Thread) maybeRunHandlerBeforeUnwind(ctx context.Context, r callResult) {
	if r.kind != resultErr || len(t.protection) == 0 {
		return
	}
	entry := t.protection[len(t.protection)-1]
	if entry.fired || entry.handler == nil {
		return
	}
	entry.fired = true
	results, err := t.callMetaSync(ctx, entry.handler, r.err.Value)
	if err != nil {
		entry.results = []Value{errorToValue(err)}
	} else {
		entry.results = results
	}
}

func errorToValue(err error) Value {
	if le, ok := err.(*LuaError); ok {
		return le.Value
	}
	return &String{s: err.Error()}
}

// popFrame discards t's innermost frame. r is the outcome that ended it:
// an error-carrying result marks the frame with flagError instead of
// firing the return hook, matching real Lua's longjmp-past-return-hooks
// behavior on an unwind (spec §4.4).
func (t *Thread) popFrame(r callResult) {
	f := &t.frames[len(t.frames)-1]
	if r.kind == resultErr || r.kind == resultFatal {
		f.flags |= flagError
	}
	if f.flags&flagError == 0 {
		t.callHook(HookReturn, f)
	}
	t.closeUpvalues(f, f.base)
	t.regs = t.regs[:f.base]
	t.frames = t.frames[:len(t.frames)-1]
}

// pushLuaFrame allocates registers for a new Lua call and pushes its
// frame, returning the frame's index. It consults the allocation
// tracker before growing the register stack (spec §6), returning its
// refusal as an *Uncatchable rather than allocating.
func (t *Thread) pushLuaFrame(c *luaClosure, args []Value, wantResults int) (int, error) {
	base := len(t.regs)
	need := int(c.proto.MaxStackSize)
	if err := t.state.trackAlloc(int64(need) * bytesPerValue); err != nil {
		return 0, err
	}
	t.regs = append(t.regs, make([]Value, need)...)

	np := int(c.proto.NumParams)
	for i := 0; i < np && i < len(args); i++ {
		t.regs[base+i] = args[i]
	}
	var varargs []Value
	if c.proto.IsVararg && len(args) > np {
		varargs = append(varargs, args[np:]...)
	}

	t.frames = append(t.frames, DebugFrame{
		closure:      c,
		base:         base,
		top:          base + need,
		varargs:      varargs,
		wantResults:  wantResults,
		flags:        flagFresh,
		lastHookLine: -1,
	})
	idx := len(t.frames) - 1
	t.callHook(HookCall, &t.frames[idx])
	return idx, nil
}

func (t *Thread) pushGoFrame(c *goClosure, wantResults int) *DebugFrame {
	t.frames = append(t.frames, DebugFrame{
		closure:     c,
		base:        len(t.regs),
		wantResults: wantResults,
	})
	frame := &t.frames[len(t.frames)-1]
	t.callHook(HookCall, frame)
	return frame
}

// closeUpvalues moves the value of every open upvalue on frame at or
// above register bottom off the register stack, batching the work in
// one pass over the frame's pending list (spec §3, "O(N) batch-closing
// above a stack index").
func (t *Thread) closeUpvalues(frame *DebugFrame, bottom int) {
	n := 0
	for _, uv := range frame.pendingUpvalues {
		if uv.isOpen() && uv.stackIndex >= bottom {
			frame.openRegs.Delete(uint(uv.stackIndex))
			uv.storage = t.regs[uv.stackIndex]
			uv.stackIndex = -1
		} else {
			frame.pendingUpvalues[n] = uv
			n++
		}
	}
	frame.pendingUpvalues = frame.pendingUpvalues[:n]
}

// findOrCreateUpvalue returns the (possibly new) open upvalue for
// register index i within frame, reusing one already opened for that
// register so multiple closures sharing a local see the same cell.
func (t *Thread) findOrCreateUpvalue(frame *DebugFrame, i int) *upvalue {
	if frame.openRegs.Has(uint(i)) {
		for _, uv := range frame.pendingUpvalues {
			if uv.stackIndex == i {
				return uv
			}
		}
	}
	uv := &upvalue{stackIndex: i}
	frame.pendingUpvalues = append(frame.pendingUpvalues, uv)
	frame.openRegs.Add(uint(i))
	return uv
}

// execFrame runs the bytecode interpreter loop for t.frames[idx] from
// its current pc until it returns, errors, or a nested call suspends.
func (t *Thread) execFrame(ctx context.Context, idx int) callResult {
	for {
		t.frames[idx].flags &^= flagFresh
		r, tailProto, tailArgs := t.runProto(ctx, idx)
		if tailProto == nil {
			return r
		}
		// runProto may have run nested CALLs that grew t.frames (and
		// reallocated its backing array) before hitting the TAILCALL that
		// unwound it here, so t.frames[idx] must be re-fetched rather than
		// reused from before the call (spec §9, "refer to frames by typed
		// indices rather than pointers").
		frame := &t.frames[idx]
		// TAILCALL into another Lua function: reuse this frame's slot
		// instead of growing the call stack (spec §4.2 invariant).
		t.closeUpvalues(frame, frame.base)
		t.regs = t.regs[:frame.base]
		np := int(tailProto.proto.NumParams)
		need := int(tailProto.proto.MaxStackSize)
		if err := t.state.trackAlloc(int64(need) * bytesPerValue); err != nil {
			return fatalResult(err.(*Uncatchable))
		}
		t.regs = append(t.regs, make([]Value, need)...)
		for i := 0; i < np && i < len(tailArgs); i++ {
			t.regs[frame.base+i] = tailArgs[i]
		}
		var varargs []Value
		if tailProto.proto.IsVararg && len(tailArgs) > np {
			varargs = append(varargs, tailArgs[np:]...)
		}
		*frame = DebugFrame{
			closure:      tailProto,
			base:         frame.base,
			top:          frame.base + need,
			varargs:      varargs,
			wantResults:  frame.wantResults,
			flags:        flagTail,
			lastHookLine: -1,
		}
		t.callHook(HookCall, frame)
	}
}

// execResume continues t.frames[idx] (a suspended Lua frame) after its
// nested call produced results or an error.
func (t *Thread) execResume(ctx context.Context, idx int, args []Value) callResult {
	inner := t.resumeFrame(ctx, idx+1, args, nil)
	return t.landResume(ctx, idx, inner)
}

func (t *Thread) execResumeError(ctx context.Context, idx int, errVal Value) callResult {
	inner := t.resumeFrame(ctx, idx+1, nil, errVal)
	return t.landResume(ctx, idx, inner)
}

// landResume takes the outcome of resuming the call nested inside
// t.frames[idx] and either re-enters the bytecode loop with its
// results (Ok) or propagates the error/further-suspension.
func (t *Thread) landResume(ctx context.Context, idx int, inner callResult) callResult {
	frame := &t.frames[idx]
	if inner.isSuspend() {
		return inner
	}
	cont, _ := frame.state.(*luaContinuation)
	frame.state = nil
	if inner.kind != resultOk {
		// The nested call errored; the Lua frame that made it did not
		// wrap it in a pcall (that case is handled inside the
		// interpreter loop itself via callValue's direct return), so
		// propagate.
		return inner
	}
	if cont != nil && cont.isTailReturn {
		t.closeUpvalues(frame, frame.base)
		return inner
	}
	if cont != nil {
		placeResults(t.regs, frame.base+cont.destReg, cont.wantResults, inner.values)
		if cont.wantResults < 0 {
			frame.top = frame.base + cont.destReg + len(inner.values)
		}
	}
	return t.execFrame(ctx, idx)
}

// resumeFrame walks down to the innermost suspended frame (always a
// Resumable Go closure in this design, since Lua bytecode itself only
// suspends by calling one), resumes it, and lets each enclosing frame
// observe the result on the way back out.
func (t *Thread) resumeFrame(ctx context.Context, idx int, args []Value, errVal Value) callResult {
	if idx >= len(t.frames) {
		if errVal != nil {
			return errResult(newLuaError(errVal))
		}
		return okResult(args...)
	}
	frame := &t.frames[idx]
	if idx == len(t.frames)-1 {
		gc, ok := frame.closure.(*goClosure)
		if !ok || gc.resumeFn == nil {
			// A Lua frame can never be innermost in this design; treat
			// defensively rather than panicking on a corrupted state.
			return fatalResult(&Uncatchable{Reason: "resume: innermost frame is not resumable"})
		}
		var r callResult
		if errVal != nil {
			r = gc.resumeFn.ResumeError(ctx, t.state, t, frame, errVal)
		} else {
			r = gc.resumeFn.Resume(ctx, t.state, t, frame, args)
		}
		if !r.isSuspend() {
			t.maybeRunHandlerBeforeUnwind(ctx, r)
			t.frames = t.frames[:idx]
		}
		return r
	}
	if _, ok := frame.closure.(*luaClosure); ok {
		return t.execResumeFromArgsOrError(ctx, idx, args, errVal)
	}
	gc := frame.closure.(*goClosure)
	inner := t.resumeFrame(ctx, idx+1, args, errVal)
	var r callResult
	if inner.isSuspend() {
		return inner
	}
	if inner.kind == resultOk {
		r = gc.resumeFn.Resume(ctx, t.state, t, frame, inner.values)
	} else {
		r = gc.resumeFn.ResumeError(ctx, t.state, t, frame, errorResultValue(inner))
	}
	if !r.isSuspend() {
		t.maybeRunHandlerBeforeUnwind(ctx, r)
		t.frames = t.frames[:idx]
	}
	return r
}

func (t *Thread) execResumeFromArgsOrError(ctx context.Context, idx int, args []Value, errVal Value) callResult {
	if errVal != nil {
		return t.execResumeError(ctx, idx, errVal)
	}
	return t.execResume(ctx, idx, args)
}

func errorResultValue(r callResult) Value {
	if r.err != nil {
		return r.err.Value
	}
	if r.fatal != nil {
		return &String{s: r.fatal.Error()}
	}
	return nil
}

// placeResults copies src into regs starting at dest, following the
// same "how many did the caller ask for" rule as a real CALL/TFORCALL
// landing: want < 0 keeps them all, otherwise pads with nil or
// truncates to exactly want values.
func placeResults(regs []Value, dest int, want int, src []Value) {
	if want < 0 {
		want = len(src)
	}
	for i := 0; i < want; i++ {
		if i < len(src) {
			regs[dest+i] = src[i]
		} else {
			regs[dest+i] = nil
		}
	}
}
