// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "fmt"

// ArgCheckTable, ArgCheckString, and the rest of this file are the
// argument-checking vocabulary a standard library built on top of this
// package needs (spec §7 names the "bad argument #n to 'fname'" message
// format but not the helper surface). Grounded on Cobalt's
// LuaValue.checkX/optX methods, flattened from a method-per-LuaValue
// shape into free functions that take the value and the argument
// position, since this package's Value is `any` rather than a type with
// methods of its own.

// ArgCheckTable returns args[n-1] as a *Table, or a [*LuaError] in the
// "bad argument" form if it is absent or not a table.
func ArgCheckTable(state *LuaState, fname string, args []Value, n int) (*Table, error) {
	v := argAt(args, n)
	tbl, ok := v.(*Table)
	if !ok {
		return nil, typeError(state, fname, n, "table", v)
	}
	return tbl, nil
}

// ArgCheckString returns args[n-1] coerced to a string, matching
// luaL_checkstring's acceptance of numbers as well as actual strings.
func ArgCheckString(state *LuaState, fname string, args []Value, n int) (string, error) {
	v := argAt(args, n)
	switch v := v.(type) {
	case *String:
		return v.s, nil
	case float64:
		return NumberToString(v), nil
	default:
		return "", typeError(state, fname, n, "string", v)
	}
}

// ArgCheckNumber returns args[n-1] as a float64, coercing a numeric
// string, matching luaL_checknumber.
func ArgCheckNumber(state *LuaState, fname string, args []Value, n int) (float64, error) {
	v := argAt(args, n)
	f, ok := ToNumber(v)
	if !ok {
		return 0, typeError(state, fname, n, "number", v)
	}
	return f, nil
}

// ArgCheckInteger is ArgCheckNumber truncated toward zero, matching
// luaL_checkinteger (Lua 5.2 has no integer subtype; this is purely a
// convenience for call sites that need a Go int, e.g. string.sub's
// positions).
func ArgCheckInteger(state *LuaState, fname string, args []Value, n int) (int, error) {
	f, err := ArgCheckNumber(state, fname, args, n)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// ArgCheckFunction returns args[n-1] if it is callable, matching
// luaL_checktype(LUA_TFUNCTION).
func ArgCheckFunction(state *LuaState, fname string, args []Value, n int) (Value, error) {
	v := argAt(args, n)
	if !isCallable(v) {
		return nil, typeError(state, fname, n, "function", v)
	}
	return v, nil
}

// ArgCheckThread returns args[n-1] as a *Thread, matching
// luaL_checktype(LUA_TTHREAD) / Cobalt's checkThread.
func ArgCheckThread(state *LuaState, fname string, args []Value, n int) (*Thread, error) {
	v := argAt(args, n)
	co, ok := v.(*Thread)
	if !ok {
		return nil, typeError(state, fname, n, "coroutine", v)
	}
	return co, nil
}

// ArgOptString is ArgCheckString, but returns def if the argument is
// absent or nil, matching luaL_optstring.
func ArgOptString(state *LuaState, fname string, args []Value, n int, def string) (string, error) {
	if argAt(args, n) == nil {
		return def, nil
	}
	return ArgCheckString(state, fname, args, n)
}

// ArgOptNumber is ArgCheckNumber, but returns def if the argument is
// absent or nil, matching luaL_optnumber.
func ArgOptNumber(state *LuaState, fname string, args []Value, n int, def float64) (float64, error) {
	if argAt(args, n) == nil {
		return def, nil
	}
	return ArgCheckNumber(state, fname, args, n)
}

// ArgOptInteger is ArgCheckInteger, but returns def if the argument is
// absent or nil, matching luaL_optinteger.
func ArgOptInteger(state *LuaState, fname string, args []Value, n int, def int) (int, error) {
	if argAt(args, n) == nil {
		return def, nil
	}
	return ArgCheckInteger(state, fname, args, n)
}

// ArgOptThread is ArgCheckThread, but returns def (typically the
// currently-running thread) if the argument is absent or nil, matching
// Cobalt's optThread.
func ArgOptThread(state *LuaState, fname string, args []Value, n int, def *Thread) (*Thread, error) {
	if argAt(args, n) == nil {
		return def, nil
	}
	return ArgCheckThread(state, fname, args, n)
}

func argAt(args []Value, n int) Value {
	if n < 1 || n > len(args) {
		return nil
	}
	return args[n-1]
}

// ArgError is exported for standard-library packages built on top of
// this one that need to raise the same "bad argument #n to 'fname'
// (extra)" shaped error this package uses internally.
func ArgError(fname string, n int, extra string) error {
	return argError(fname, n, extra)
}

// ArgErrorf is ArgError with the extra message built via fmt.Sprintf.
func ArgErrorf(fname string, n int, format string, a ...any) error {
	return argError(fname, n, fmt.Sprintf(format, a...))
}
