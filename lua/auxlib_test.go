// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"strings"
	"testing"
)

func TestArgCheckTable(t *testing.T) {
	state := NewState()
	tbl := NewTable(0, 0)
	got, err := ArgCheckTable(state, "f", []Value{tbl}, 1)
	if err != nil || got != tbl {
		t.Errorf("ArgCheckTable(tbl) = (%v, %v); want (%v, nil)", got, err, tbl)
	}

	_, err = ArgCheckTable(state, "f", []Value{1.0}, 1)
	if err == nil {
		t.Fatal("ArgCheckTable(1.0) did not error")
	}
	if !strings.Contains(err.Error(), "bad argument #1 to 'f'") {
		t.Errorf("error = %q; want it to name the argument position and function", err.Error())
	}
}

func TestArgCheckString(t *testing.T) {
	state := NewState()
	got, err := ArgCheckString(state, "f", []Value{&String{s: "hi"}}, 1)
	if err != nil || got != "hi" {
		t.Errorf("ArgCheckString(\"hi\") = (%q, %v); want (\"hi\", nil)", got, err)
	}

	// Numbers coerce to strings, matching luaL_checkstring.
	got, err = ArgCheckString(state, "f", []Value{5.0}, 1)
	if err != nil || got != "5" {
		t.Errorf("ArgCheckString(5) = (%q, %v); want (\"5\", nil)", got, err)
	}

	if _, err := ArgCheckString(state, "f", []Value{NewTable(0, 0)}, 1); err == nil {
		t.Error("ArgCheckString(table) did not error")
	}
}

func TestArgCheckNumber(t *testing.T) {
	state := NewState()
	got, err := ArgCheckNumber(state, "f", []Value{&String{s: "3.5"}}, 1)
	if err != nil || got != 3.5 {
		t.Errorf("ArgCheckNumber(\"3.5\") = (%v, %v); want (3.5, nil)", got, err)
	}
	if _, err := ArgCheckNumber(state, "f", []Value{&String{s: "nope"}}, 1); err == nil {
		t.Error("ArgCheckNumber(\"nope\") did not error")
	}
}

func TestArgCheckInteger(t *testing.T) {
	state := NewState()
	got, err := ArgCheckInteger(state, "f", []Value{3.9}, 1)
	if err != nil || got != 3 {
		t.Errorf("ArgCheckInteger(3.9) = (%v, %v); want (3, nil) (truncated toward zero)", got, err)
	}
}

func TestArgCheckFunction(t *testing.T) {
	state := NewState()
	fn := newGoClosure("f", func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
		return nil, nil
	})
	got, err := ArgCheckFunction(state, "f", []Value{fn}, 1)
	if err != nil || got != Value(fn) {
		t.Errorf("ArgCheckFunction(fn) = (%v, %v); want (%v, nil)", got, err, fn)
	}
	if _, err := ArgCheckFunction(state, "f", []Value{1.0}, 1); err == nil {
		t.Error("ArgCheckFunction(1.0) did not error")
	}
}

func TestArgCheckThread(t *testing.T) {
	state := NewState()
	got, err := ArgCheckThread(state, "f", []Value{state.MainThread()}, 1)
	if err != nil || got != state.MainThread() {
		t.Errorf("ArgCheckThread(main) = (%v, %v); want (%v, nil)", got, err, state.MainThread())
	}
	if _, err := ArgCheckThread(state, "f", []Value{1.0}, 1); err == nil {
		t.Error("ArgCheckThread(1.0) did not error")
	}
}

func TestArgOptString(t *testing.T) {
	state := NewState()
	got, err := ArgOptString(state, "f", []Value{&String{s: "given"}}, 1, "default")
	if err != nil || got != "given" {
		t.Errorf("ArgOptString(present) = (%q, %v); want (\"given\", nil)", got, err)
	}
	got, err = ArgOptString(state, "f", nil, 1, "default")
	if err != nil || got != "default" {
		t.Errorf("ArgOptString(absent) = (%q, %v); want (\"default\", nil)", got, err)
	}
	got, err = ArgOptString(state, "f", []Value{nil}, 1, "default")
	if err != nil || got != "default" {
		t.Errorf("ArgOptString(explicit nil) = (%q, %v); want (\"default\", nil)", got, err)
	}
}

func TestArgOptNumber(t *testing.T) {
	state := NewState()
	got, err := ArgOptNumber(state, "f", []Value{9.0}, 1, 1.0)
	if err != nil || got != 9.0 {
		t.Errorf("ArgOptNumber(present) = (%v, %v); want (9, nil)", got, err)
	}
	got, err = ArgOptNumber(state, "f", nil, 1, 1.0)
	if err != nil || got != 1.0 {
		t.Errorf("ArgOptNumber(absent) = (%v, %v); want (1, nil)", got, err)
	}
}

func TestArgOptInteger(t *testing.T) {
	state := NewState()
	got, err := ArgOptInteger(state, "f", nil, 1, 7)
	if err != nil || got != 7 {
		t.Errorf("ArgOptInteger(absent) = (%v, %v); want (7, nil)", got, err)
	}
}

func TestArgOptThread(t *testing.T) {
	state := NewState()
	def := state.MainThread()
	got, err := ArgOptThread(state, "f", nil, 1, def)
	if err != nil || got != def {
		t.Errorf("ArgOptThread(absent) = (%v, %v); want (%v, nil)", got, err, def)
	}
}

func TestArgErrorMessages(t *testing.T) {
	err := ArgError("myfunc", 2, "something is wrong")
	if got, want := err.Error(), "bad argument #2 to 'myfunc' (something is wrong)"; got != want {
		t.Errorf("ArgError message = %q; want %q", got, want)
	}

	err = ArgErrorf("myfunc", 1, "expected %s, got %s", "number", "string")
	if got, want := err.Error(), "bad argument #1 to 'myfunc' (expected number, got string)"; got != want {
		t.Errorf("ArgErrorf message = %q; want %q", got, want)
	}
}
