// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "go.starforge.dev/lua52vm/internal/sets"

// frameFlag records properties of a single call frame that the
// interpreter, the coroutine engine, and the debug subsystem all need
// to consult (spec §4.4, "DebugFrame").
type frameFlag uint8

const (
	// flagTail marks a frame that replaced its caller via TAILCALL: the
	// replaced caller no longer appears as a separate level in a
	// traceback, which marks the gap with a "(...tail calls...)" line.
	flagTail frameFlag = 1 << iota
	// flagYieldableProtectedCall marks a frame entered through pcall or
	// xpcall that is itself allowed to be suspended by a nested yield —
	// the FLAG_YPCALL bit from the original implementation (spec §9's
	// open question about this flag's exact placement).
	flagYieldableProtectedCall
	// flagHooked marks a frame currently being observed by a call/return
	// debug hook, so the hook is not re-entered for it.
	flagHooked
	// flagError marks a frame that is unwinding because of a Lua error,
	// distinguishing that from an ordinary return for hook purposes.
	flagError
	// flagFresh marks a Lua frame that has not executed any instruction
	// yet; it is cleared when the frame starts executing.
	flagFresh
)

// DebugFrame is one activation record on a [Thread]'s call stack: a
// running Lua closure, a running Go closure, or a Go closure that is
// currently suspended partway through a yield (spec §4.4).
//
// The proto method returns a [Prototype] only when closure is a
// *luaClosure; for a *goClosure it returns nil.
type DebugFrame struct {
	closure closure

	// base is the absolute index into the owning Thread's register
	// stack where this frame's registers begin.
	base int
	// top is one past the highest register this frame has ever used;
	// only meaningful while executing, kept for VARARG/CALL/SETLIST's
	// "up to top" argument counts.
	top int
	// pc is the index into closure.(*luaClosure).proto.Code of the next
	// instruction to execute. Unused for Go closures.
	pc int

	varargs []Value

	// wantResults is how many results the caller asked for: -1 means
	// "all of them" (a multret call site).
	wantResults int

	flags frameFlag

	// state is the reified continuation for a suspended frame: the
	// distinguishing feature of this package's coroutine engine (spec
	// §4.3). It is opaque to everything except the specific Resumable
	// that stashed it there, and nil for a frame that is not currently
	// suspended anywhere in its call chain.
	state any

	// pendingUpvalues is the ordered list of upvalues opened against
	// this frame's register window and not yet closed.
	pendingUpvalues []*upvalue

	// openRegs tracks which register indices currently have an open
	// upvalue, giving findOrCreateUpvalue an O(1) "definitely none open
	// here yet" fast path before it falls back to scanning
	// pendingUpvalues for the matching one (spec §3's "open upvalues
	// alias the register stack" bookkeeping).
	openRegs sets.Bit

	// lastHookLine is the source line the line hook was last fired for
	// in this frame, so it only fires again once execution reaches a
	// different line (spec §4.4). Starts at -1 so the first instruction
	// always reports.
	lastHookLine int
}

func (f *DebugFrame) isLua() bool {
	_, ok := f.closure.(*luaClosure)
	return ok
}

func (f *DebugFrame) proto() *Prototype {
	lc, ok := f.closure.(*luaClosure)
	if !ok {
		return nil
	}
	return lc.proto
}

// currentLine returns the source line the frame is currently executing,
// or 0 if unavailable.
func (f *DebugFrame) currentLine() int {
	p := f.proto()
	if p == nil {
		return 0
	}
	return p.LineAt(f.pc)
}
