// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"zombiezen.com/go/log"
)

// LuaState is a Lua universe: the globals table, the registry, the
// interned-string cache, per-type metatables, and the main [Thread].
// It corresponds to lua_State in the C API, split from [Thread] the way
// PUC-Rio itself keeps a single global_State shared by every coroutine
// hanging off it.
type LuaState struct {
	Globals  *Table
	registry *Table
	strings  stringCache
	metas    [8]*Table // indexed by Type, only Boolean/Number/String/Function used by default

	loader Loader
	alloc  AllocTracker

	main    *Thread
	current *Thread

	// running enforces that at most one Thread belonging to this state
	// executes bytecode at a time — the coroutine engine is cooperative,
	// never concurrent, so a second Acquire indicates a programming
	// error (e.g. driving one LuaState from two goroutines) rather than
	// a case this package needs to support.
	running *semaphore.Weighted

	logger *log.Logger
}

// Loader compiles Lua source text into a [Prototype]. The compiler
// itself is outside this package's scope; embedders supply one (spec
// §1). ctx is honored the way a slow parse of untrusted input should
// be: Load may return ctx.Err() wrapped in a [CompileError].
type Loader interface {
	Load(ctx context.Context, chunkName Source, source []byte) (*Prototype, error)
}

// AllocTracker is consulted when NEWTABLE preallocates a table, when a
// thread's register stack grows, when a concatenation builds its result,
// and when a binary chunk's string constants are interned, so a host can
// enforce a memory ceiling. Track returns a non-nil error to abort the
// allocation; the interpreter reports any such error as an [Uncatchable],
// matching lua_Alloc's inability to be caught by pcall (spec §5).
type AllocTracker interface {
	Track(additionalBytes int64) error
}

// unlimitedAllocTracker is the default AllocTracker: no ceiling.
type unlimitedAllocTracker struct{}

func (unlimitedAllocTracker) Track(int64) error { return nil }

// StateOption configures a [NewState] call.
type StateOption func(*LuaState)

// WithLoader installs the compiler a subsequent Load call uses.
func WithLoader(l Loader) StateOption {
	return func(s *LuaState) { s.loader = l }
}

// WithAllocTracker installs a custom memory tracker.
func WithAllocTracker(a AllocTracker) StateOption {
	return func(s *LuaState) { s.alloc = a }
}

// WithLogger installs a structured logger used for interpreter
// diagnostics; the only event it logs is an error returned by a hook
// function installed through debug.sethook. A nil logger logs nothing.
func WithLogger(l *log.Logger) StateOption {
	return func(s *LuaState) { s.logger = l }
}

// NewState creates a fresh Lua universe with empty globals and a
// running main thread.
func NewState(opts ...StateOption) *LuaState {
	s := &LuaState{
		Globals:  NewTable(0, 0),
		registry: NewTable(0, 0),
		alloc:    unlimitedAllocTracker{},
		running:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.main = newThread(s)
	s.main.status = ThreadRunning
	return s
}

// MainThread returns the state's initial [Thread], which is never
// itself resumed from another thread the way a coroutine is.
func (state *LuaState) MainThread() *Thread { return state.main }

// currentThread returns the thread actually executing bytecode right
// now, i.e. the innermost of any nested coroutine.resume chain.
func (state *LuaState) currentThread() *Thread {
	if state.current == nil {
		return state.main
	}
	return state.current
}

func (state *LuaState) setCurrentThread(t *Thread) { state.current = t }

// Registry returns the C-API-style registry table, used to anchor
// values that must not be reachable from Lua code (spec §5).
func (state *LuaState) Registry() *Table { return state.registry }

func (state *LuaState) metatableOf(v Value) *Table {
	switch v := v.(type) {
	case *Table:
		return v.metatable
	case *Userdata:
		return v.metatable
	default:
		return state.metas[TypeOf(v)]
	}
}

// SetTypeMetatable installs the shared metatable used by every value of
// the given type, mirroring luaL_setmetatable's handling of strings,
// numbers, and booleans, which — unlike tables and userdata — have no
// per-value metatable slot.
func (state *LuaState) SetTypeMetatable(t Type, mt *Table) {
	state.metas[t] = mt
}

// Load compiles source into a callable closure using the state's
// [Loader]. It returns a *CompileError or an *Uncatchable, never a
// *LuaError, on failure (spec §7). It is [LuaState.LoadChunk] with mode
// "bt" and the state's own globals as _ENV — the common case of loading
// a trusted chunk.
func (state *LuaState) Load(ctx context.Context, chunkName Source, source []byte) (*luaClosure, error) {
	return state.LoadChunk(ctx, chunkName, source, ChunkModeBoth, nil)
}

func (state *LuaState) logf(ctx context.Context, format string, args ...any) {
	if state.logger == nil {
		return
	}
	state.logger.Debugf(ctx, format, args...)
}

func (state *LuaState) trackAlloc(n int64) error {
	if err := state.alloc.Track(n); err != nil {
		return &Uncatchable{Reason: fmt.Sprintf("allocation tracker: %v", err)}
	}
	return nil
}

// bytesPerValue estimates the marginal cost of one Value-typed slot for
// sizing the allocation-tracker calls table growth, register-stack
// growth, and string construction make: the width of the interface
// header itself, regardless of what it happens to hold.
const bytesPerValue = 16

// bytesPerHashNode estimates one Table hash-part slot: a key, a value,
// and the open-addressing chain link.
const bytesPerHashNode = 2*bytesPerValue + 8

// tryEnter acquires the state's single-runner semaphore, the checked
// form of spec §5's "at most one OS thread may drive a LuaState at a
// time" rule. Only [Thread.Call] and [Thread.Resume] call it; the
// coroutine library instead calls Thread's unexported resumeLocked,
// which shares Resume's body but skips the semaphore, since a nested
// coroutine.resume is driven by Go code already executing inside an
// acquired call on the same goroutine (the semaphore's weight is 1, so
// a naive re-acquire there would fail the very re-entrancy this
// interpreter relies on).
func (state *LuaState) tryEnter() error {
	if !state.running.TryAcquire(1) {
		return &Uncatchable{Reason: "lua: concurrent entry into LuaState from another goroutine"}
	}
	return nil
}

func (state *LuaState) exit() {
	state.running.Release(1)
}
