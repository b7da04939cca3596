// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

// Package lua implements a Lua 5.2 value system, table engine, and
// register-based bytecode interpreter, with coroutines modeled as
// explicit yield/resume continuations rather than goroutines.
//
// The embedding surface (spec §6) is small: [NewState] creates a
// universe, [LuaState.LoadChunk] compiles text or binary chunks into a
// callable closure, [LuaState.NewCoroutine] creates a coroutine, and
// [Thread.Call]/[Thread.Resume]/[Thread.Yield] run it. This file hosts
// that surface's cross-cutting pieces — chunk-mode selection and a
// package-level Version constant — that don't belong on any one
// receiver in state.go/thread.go/vm.go.
package lua

import (
	"context"
)

// Version identifies the Lua dialect this package implements, in the
// form lua_version() reports it.
const Version = "Lua 5.2"

// ChunkMode restricts which chunk encodings [LuaState.LoadChunk] will
// accept, mirroring lua_load's mode string (spec §6: "load(state,
// bytes, chunkname, mode, env)").
type ChunkMode string

const (
	ChunkModeText   ChunkMode = "t"
	ChunkModeBinary ChunkMode = "b"
	ChunkModeBoth   ChunkMode = "bt"
)

func (m ChunkMode) allowsText() bool {
	return m == "" || m == ChunkModeText || m == ChunkModeBoth
}

func (m ChunkMode) allowsBinary() bool {
	return m == "" || m == ChunkModeBinary || m == ChunkModeBoth
}

// isBinaryChunk reports whether source begins with the LUAC_HEADER
// signature bytecodeio.go's header writes, the same sniff lua_load
// itself performs before deciding whether to call the text compiler or
// the binary loader.
func isBinaryChunk(source []byte) bool {
	return len(source) >= len(luacSignature) && string(source[:len(luacSignature)]) == luacSignature
}

// LoadChunk compiles or deserializes source into a callable closure,
// honoring mode the way lua_load does: "t" accepts only text chunks
// compiled by the state's [Loader], "b" accepts only precompiled binary
// chunks via [UnmarshalChunk], and "bt" (the default, matching
// [LuaState.Load]'s behavior) accepts either. env, if non-nil, becomes
// the chunk's _ENV upvalue instead of the state's globals table — the
// mechanism a sandboxing host uses to run untrusted code against a
// restricted global environment (spec §6, §5).
func (state *LuaState) LoadChunk(ctx context.Context, chunkName Source, source []byte, mode ChunkMode, env *Table) (*luaClosure, error) {
	if env == nil {
		env = state.Globals
	}
	binary := isBinaryChunk(source)
	if binary && !mode.allowsBinary() {
		return nil, &CompileError{Source: string(chunkName), Message: "attempt to load a binary chunk (mode is '" + string(mode) + "')"}
	}
	if !binary && !mode.allowsText() {
		return nil, &CompileError{Source: string(chunkName), Message: "attempt to load a text chunk (mode is '" + string(mode) + "')"}
	}

	var proto *Prototype
	if binary {
		p, err := UnmarshalChunk(source)
		if err != nil {
			return nil, &CompileError{Source: string(chunkName), Message: err.Error()}
		}
		if err := state.internPrototypeStrings(p); err != nil {
			return nil, err
		}
		proto = p
	} else {
		if state.loader == nil {
			return nil, &CompileError{Source: string(chunkName), Message: "no loader configured"}
		}
		p, err := state.loader.Load(ctx, chunkName, source)
		if err != nil {
			if ce, ok := err.(*CompileError); ok {
				return nil, ce
			}
			return nil, &CompileError{Source: string(chunkName), Message: err.Error()}
		}
		proto = p
	}

	return newLuaClosure(proto, []*upvalue{closedUpvalue(env)}), nil
}

// internPrototypeStrings replaces every *String constant a freshly
// [UnmarshalChunk]-ed prototype tree holds with the state's own interned
// instance, so a loaded binary chunk's string constants participate in
// the same intern cache as chunks compiled from text (spec §3). It
// consults the allocation tracker for each constant before interning it
// (spec §6), since an untrusted binary chunk's constant pool is exactly
// the kind of host-uncontrolled allocation the tracker exists to bound;
// a refusal surfaces as the *Uncatchable [LuaState.LoadChunk] returns.
func (state *LuaState) internPrototypeStrings(p *Prototype) error {
	for i, k := range p.Constants {
		if s, ok := k.(*String); ok {
			if err := state.trackAlloc(int64(len(s.s))); err != nil {
				return err
			}
			p.Constants[i] = state.strings.intern(s.s)
		}
	}
	for _, f := range p.Functions {
		if err := state.internPrototypeStrings(f); err != nil {
			return err
		}
	}
	return nil
}

// NewString returns a [*String] value for s, sharing the state's
// intern cache the same way any string constant loaded from a chunk
// does. Hosts constructing argument values for [Thread.Call] use this
// rather than the unexported *String literal the interpreter builds
// for itself.
func (state *LuaState) NewString(s string) *String {
	return state.strings.intern(s)
}

// OpenLibs installs the subset of the standard library this package
// implements (coroutine, base pcall/error/assert, debug) into state's
// globals, the way luaL_openlibs wires up a fresh lua_State before any
// script runs.
func OpenLibs(state *LuaState) {
	RegisterCoroutineLib(state)
	RegisterBaseLib(state)
	RegisterDebugLib(state)
}
