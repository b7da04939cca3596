// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
)

// RegisterDebugLib installs the "debug" table in state.Globals:
// traceback, sethook, and getlocal — the subset of Lua's debug
// library this package's hook/traceback machinery can support without a
// source-level compiler's local-variable table for running code outside
// a loaded [Prototype] (spec §4.4).
func RegisterDebugLib(state *LuaState) {
	lib := NewTable(0, 4)
	lib.RawSet(libString("traceback"), newGoClosure("traceback", debugTraceback))
	lib.RawSet(libString("sethook"), newGoClosure("sethook", debugSetHook))
	lib.RawSet(libString("getlocal"), newGoClosure("getlocal", debugGetLocal))
	state.Globals.RawSet(libString("debug"), lib)
}

func debugTraceback(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	msg, _ := ArgOptString(state, "traceback", args, 1, "")
	level, _ := ArgOptInteger(state, "traceback", args, 2, 1)
	tb := Traceback(t, msg, level)
	return []Value{&String{s: tb, hash: fnv1a32(tb)}}, nil
}

// debugSetHook implements debug.sethook(f, mask, count): mask is a
// string combining the letters "c", "r" and "l" the way the reference
// implementation encodes it, e.g. "crl"; a positive count argument adds
// the count hook.
func debugSetHook(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	if first(args) == nil {
		t.SetHook(nil, 0, 0)
		return nil, nil
	}
	fn, err := ArgCheckFunction(state, "sethook", args, 1)
	if err != nil {
		return nil, err
	}
	maskStr, _ := ArgOptString(state, "sethook", args, 2, "")
	count, _ := ArgOptInteger(state, "sethook", args, 3, 0)
	var mask HookMask
	for _, c := range maskStr {
		switch c {
		case 'c':
			mask |= HookMaskCall
		case 'r':
			mask |= HookMaskReturn
		case 'l':
			mask |= HookMaskLine
		}
	}
	if count > 0 {
		mask |= HookMaskCount
	}
	t.SetHook(func(hookState *LuaState, ht *Thread, event HookEvent, line int) {
		if _, err := ht.callMetaSync(ctx, fn, libString(event.String()), float64(line)); err != nil {
			hookState.logf(ctx, "debug hook error: %v", err)
		}
	}, mask, count)
	return nil, nil
}

func debugGetLocal(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
	level, err := ArgCheckInteger(state, "getlocal", args, 1)
	if err != nil {
		return nil, err
	}
	reg, err := ArgCheckInteger(state, "getlocal", args, 2)
	if err != nil {
		return nil, err
	}
	name := t.GetLocalName(level, reg)
	if name == "" {
		return []Value{nil}, nil
	}
	return []Value{libString(name)}, nil
}

// HookEvent identifies which of the four hook points fired (spec §4.4).
type HookEvent uint8

const (
	HookCall HookEvent = iota
	HookReturn
	HookLine
	HookCount
)

func (e HookEvent) String() string {
	switch e {
	case HookCall:
		return "call"
	case HookReturn:
		return "return"
	case HookLine:
		return "line"
	case HookCount:
		return "count"
	default:
		return "unknown"
	}
}

// HookMask selects which events [Thread.SetHook] should fire for.
type HookMask uint8

const (
	HookMaskCall HookMask = 1 << iota
	HookMaskReturn
	HookMaskLine
	HookMaskCount
)

func (e HookEvent) mask() HookMask {
	switch e {
	case HookCall:
		return HookMaskCall
	case HookReturn:
		return HookMaskReturn
	case HookLine:
		return HookMaskLine
	case HookCount:
		return HookMaskCount
	default:
		return 0
	}
}

// HookFunc observes a debug event. Unlike spec §4.4's general allowance
// for a hook "to itself yield", hooks in this implementation run
// synchronously to completion, the same documented simplification
// applied to metamethod dispatch in tm.go — see DESIGN.md's Open
// Questions. A hook that panics is not recovered; it is expected to be
// host diagnostic code, not Lua-observable behavior.
type HookFunc func(state *LuaState, t *Thread, event HookEvent, line int)

// SetHook installs fn to be called for every event selected by mask,
// with count as the instruction interval for [HookMaskCount]. Passing a
// nil fn disables hooking, matching lua_sethook(L, nil, 0, 0).
func (t *Thread) SetHook(fn HookFunc, mask HookMask, count int) {
	t.hookFn = fn
	t.hookMask = mask
	if mask&HookMaskCount != 0 && count > 0 {
		t.hookCountReset = count
		t.hookCount = count
	}
}

func (t *Thread) callHook(event HookEvent, frame *DebugFrame) {
	if t.hookFn == nil || t.hookMask&event.mask() == 0 {
		return
	}
	if frame.flags&flagHooked != 0 {
		return
	}
	frame.flags |= flagHooked
	t.hookFn(t.state, t, event, frame.currentLine())
	frame.flags &^= flagHooked
}

// dispatchLineAndCountHooks fires the line hook when frame's execution
// reaches a new source line and the count hook every hookCountReset
// instructions, from inside the interpreter's instruction loop (spec
// §4.4: "onLine when the executed pc transitions to a new source line;
// onCount every N instructions").
func (t *Thread) dispatchLineAndCountHooks(frame *DebugFrame, proto *Prototype) {
	if t.hookFn == nil {
		return
	}
	if t.hookMask&HookMaskLine != 0 {
		line := proto.LineAt(frame.pc)
		if line != frame.lastHookLine {
			frame.lastHookLine = line
			t.callHook(HookLine, frame)
		}
	}
	if t.hookMask&HookMaskCount != 0 {
		t.hookCount--
		if t.hookCount <= 0 {
			t.hookCount = t.hookCountReset
			t.callHook(HookCount, frame)
		}
	}
}

// FrameInfo is a snapshot of one level of a [Traceback], independent of
// the live [DebugFrame] it was taken from.
type FrameInfo struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	Line       int    `json:"line"`
	IsTailCall bool   `json:"isTailCall"`
	IsGo       bool   `json:"isGo"`
}

// GetFrame returns a snapshot of the level-th frame from the top of t's
// call stack (level 0 is the currently-executing frame, matching
// lua_getstack/lua_getinfo's level convention), or ok=false if level is
// out of range.
func (t *Thread) GetFrame(level int) (FrameInfo, bool) {
	idx := len(t.frames) - 1 - level
	if idx < 0 || idx >= len(t.frames) {
		return FrameInfo{}, false
	}
	return frameInfo(&t.frames[idx]), true
}

func frameInfo(f *DebugFrame) FrameInfo {
	if !f.isLua() {
		return FrameInfo{Name: f.closure.callableName(), IsGo: true}
	}
	p := f.proto()
	return FrameInfo{
		Name:       f.closure.callableName(),
		Source:     p.Source.ShortSource(),
		Line:       p.LineAt(f.pc),
		IsTailCall: f.flags&flagTail != 0,
	}
}

// GetLocalName returns the name of local register reg as of frame's
// current pc, or "" if it has no debug info there (e.g. a stripped
// prototype or a register used only as scratch space).
func (t *Thread) GetLocalName(level, reg int) string {
	idx := len(t.frames) - 1 - level
	if idx < 0 || idx >= len(t.frames) {
		return ""
	}
	f := &t.frames[idx]
	p := f.proto()
	if p == nil {
		return ""
	}
	return p.LocalName(uint8(reg), f.pc)
}

// Traceback assembles a human-readable stack trace of t, in the
// "\tsource:line: in function 'name'" form spec §4.4 names, optionally
// prefixed with msg the way error()'s default uncaught-error reporter
// prepends the error message above the trace.
func Traceback(t *Thread, msg string, level int) string {
	var sb strings.Builder
	if msg != "" {
		sb.WriteString(msg)
		sb.WriteByte('\n')
	}
	sb.WriteString("stack traceback:")
	for lvl := level; ; lvl++ {
		fi, ok := t.GetFrame(lvl)
		if !ok {
			break
		}
		sb.WriteByte('\n')
		sb.WriteByte('\t')
		if fi.IsGo {
			sb.WriteString(fi.Name)
			sb.WriteString(" [Go function]")
			continue
		}
		sb.WriteString(fi.Source)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(fi.Line))
		sb.WriteString(": in ")
		sb.WriteString(fi.Name)
		if fi.IsTailCall {
			sb.WriteString("\n\t(...tail calls...)")
		}
	}
	return sb.String()
}

// DumpTraceback renders t's call stack as a JSON array of [FrameInfo]
// values, for host log pipelines that want structured rather than
// preformatted tracebacks.
func DumpTraceback(t *Thread) ([]byte, error) {
	frames := make([]FrameInfo, 0, len(t.frames))
	for lvl := 0; ; lvl++ {
		fi, ok := t.GetFrame(lvl)
		if !ok {
			break
		}
		frames = append(frames, fi)
	}
	return json.Marshal(frames)
}
