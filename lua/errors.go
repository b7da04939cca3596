// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "fmt"

// LuaError is a catchable Lua error: a Lua value thrown by "error()", a
// runtime fault (arithmetic on a non-number, calling a non-function,
// ...), or a metamethod that itself errored. pcall and xpcall catch
// LuaErrors and only LuaErrors (spec §7, "three-kind error model").
type LuaError struct {
	Value     Value
	Traceback string
}

func (e *LuaError) Error() string {
	if s, ok := e.Value.(*String); ok {
		return s.s
	}
	return fmt.Sprintf("(error object is a %s value)", TypeOf(e.Value))
}

func newLuaError(v Value) *LuaError {
	if le, ok := v.(*LuaError); ok {
		return le
	}
	return &LuaError{Value: v}
}

func runtimeErrorf(format string, args ...any) *LuaError {
	return &LuaError{Value: &String{s: fmt.Sprintf(format, args...)}}
}

// CompileError is returned directly from [Loader.Load]; it is never
// wrapped as a Lua value and never observable by pcall, matching
// lua_load's contract of reporting syntax errors out of band from the
// Lua error mechanism (spec §7).
type CompileError struct {
	Source  string
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Uncatchable is an error that bypasses pcall, xpcall, and coroutine
// resume/yield boundaries alike. Grounded on Cobalt's
// LuaUncatchableError, which deliberately extends Throwable rather than
// Exception so that a plain "catch (Exception)" protected call cannot
// intercept it: only a memory allocation failure, a debug hook that
// asked to stop the interpreter, or a similar host-level condition
// should ever produce one.
type Uncatchable struct {
	Reason string
}

func (e *Uncatchable) Error() string { return e.Reason }

// isUncatchable reports whether err is itself an *Uncatchable, which
// must propagate through every pcall and coroutine boundary undisturbed.
// Errors that merely wrap an *Uncatchable are not unwrapped.
func isUncatchable(err error) bool {
	_, ok := err.(*Uncatchable)
	return ok
}

// argError builds the standard "bad argument #n to 'fname' (...)"
// message used throughout the auxiliary library.
func argError(fname string, n int, extra string) *LuaError {
	return runtimeErrorf("bad argument #%d to '%s' (%s)", n, fname, extra)
}

func typeError(state *LuaState, fname string, n int, expected string, got Value) *LuaError {
	return argError(fname, n, fmt.Sprintf("%s expected, got %s", expected, state.TypeName(got)))
}
