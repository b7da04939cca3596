// Copyright 2024 The zb Authors
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// closure is implemented by both kinds of Lua function value: compiled
// Lua closures and Go functions registered with the state.
type closure interface {
	identity
	// callableName is used in error messages and tracebacks when no
	// better name is known ("function", "local 'f'", and so on).
	callableName() string
}

// upvalue is a variable shared between a closure and the frame that
// created it. While open, it aliases a register on some thread's
// register stack; once that frame returns (or the register's scope
// otherwise ends), it is closed: its value is copied out and the
// upvalue no longer refers to the stack at all.
type upvalue struct {
	// stackIndex is the absolute index into the owning Thread's register
	// stack while the upvalue is open, or -1 once closed.
	stackIndex int
	storage    Value
}

func closedUpvalue(v Value) *upvalue {
	return &upvalue{stackIndex: -1, storage: v}
}

func (uv *upvalue) isOpen() bool { return uv.stackIndex >= 0 }

// get reads the upvalue's current value, following the stack if open.
func (uv *upvalue) get(regs []Value) Value {
	if uv.isOpen() {
		return regs[uv.stackIndex]
	}
	return uv.storage
}

// set writes the upvalue's current value, following the stack if open.
func (uv *upvalue) set(regs []Value, v Value) {
	if uv.isOpen() {
		regs[uv.stackIndex] = v
		return
	}
	uv.storage = v
}

// luaClosure is a Lua function paired with the upvalues captured when it
// was created by a CLOSURE instruction.
type luaClosure struct {
	uid      uuid.UUID
	proto    *Prototype
	upvalues []*upvalue
	name     string // best-effort, for tracebacks; may be ""
}

func newLuaClosure(proto *Prototype, upvalues []*upvalue) *luaClosure {
	return &luaClosure{uid: uuid.New(), proto: proto, upvalues: upvalues}
}

func (c *luaClosure) id() uuid.UUID { return c.uid }

func (c *luaClosure) callableName() string {
	if c.name != "" {
		return c.name
	}
	return fmt.Sprintf("function <%s:%d>", c.proto.Source.ShortSource(), c.proto.LineDefined)
}

// GoFunction is the signature of a function implemented in Go and
// exposed to Lua code: it receives its arguments and returns its
// results or an error.
//
// A GoFunction that calls back into Lua ([Thread.Call]) or yields
// ([Thread.Yield]) must be resumable: if either can suspend the
// coroutine, register the function through [Resumable] instead so its
// Go-level progress can be replayed on resume, since a bare Go
// function's stack frame cannot be reified.
type GoFunction func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error)

// goClosure wraps a [GoFunction] with the upvalues it closed over
// (spec §7, "light C functions vs. closures").
type goClosure struct {
	uid      uuid.UUID
	fn       GoFunction
	resumeFn Resumable
	upvalues []Value
	name     string
}

func newGoClosure(name string, fn GoFunction, upvalues ...Value) *goClosure {
	return &goClosure{uid: uuid.New(), fn: fn, name: name, upvalues: upvalues}
}

func newResumableClosure(name string, r Resumable, upvalues ...Value) *goClosure {
	return &goClosure{uid: uuid.New(), resumeFn: r, name: name, upvalues: upvalues}
}

func (c *goClosure) id() uuid.UUID { return c.uid }

func (c *goClosure) callableName() string {
	if c.name != "" {
		return "function '" + c.name + "'"
	}
	return "function"
}

func (c *goClosure) upvalue(i int) Value {
	if i < 0 || i >= len(c.upvalues) {
		return nil
	}
	return c.upvalues[i]
}
