// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"testing"
)

func TestIndexMetamethodChain(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	base := NewTable(0, 0)
	base.RawSet(&String{s: "greeting", hash: fnv1a32("greeting")}, &String{s: "hi"})
	derived := NewTable(0, 0)
	mt := NewTable(0, 0)
	mt.RawSet(&String{s: "__index", hash: fnv1a32("__index")}, base)
	derived.SetMetatable(mt)

	got, err := th.index(ctx, derived, &String{s: "greeting", hash: fnv1a32("greeting")})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if s, ok := got.(*String); !ok || s.s != "hi" {
		t.Errorf("index(derived, \"greeting\") = %#v; want \"hi\"", got)
	}
}

func TestIndexMetamethodFunction(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	tbl := NewTable(0, 0)
	mt := NewTable(0, 0)
	indexFn := newGoClosure("index", func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
		return []Value{&String{s: "computed"}}, nil
	})
	mt.RawSet(&String{s: "__index", hash: fnv1a32("__index")}, indexFn)
	tbl.SetMetatable(mt)

	got, err := th.index(ctx, tbl, &String{s: "missing"})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if s, ok := got.(*String); !ok || s.s != "computed" {
		t.Errorf("index via __index function = %#v; want \"computed\"", got)
	}
}

func TestArithMetamethod(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	vecMT := NewTable(0, 0)
	addFn := newGoClosure("__add", func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
		a, _ := first(args).(*Table)
		b, _ := args[1].(*Table)
		ax, _ := ToNumber(a.RawGet(1.0))
		bx, _ := ToNumber(b.RawGet(1.0))
		result := NewTable(1, 0)
		result.RawSet(1.0, ax+bx)
		result.SetMetatable(vecMT)
		return []Value{result}, nil
	})
	vecMT.RawSet(&String{s: "__add", hash: fnv1a32("__add")}, addFn)

	v1 := NewTable(1, 0)
	v1.RawSet(1.0, 1.0)
	v1.SetMetatable(vecMT)
	v2 := NewTable(1, 0)
	v2.RawSet(1.0, 2.0)
	v2.SetMetatable(vecMT)

	got, err := th.arithBinOp(ctx, TagMethodAdd, v1, v2)
	if err != nil {
		t.Fatalf("arithBinOp: %v", err)
	}
	sum, ok := got.(*Table)
	if !ok {
		t.Fatalf("arithBinOp result = %#v; want *Table", got)
	}
	if x := sum.RawGet(1.0); x != 3.0 {
		t.Errorf("sum[1] = %v; want 3", x)
	}
}

func TestArithNoMetamethodErrors(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	_, err := th.arithBinOp(ctx, TagMethodAdd, &String{s: "not a number"}, 1.0)
	if err == nil {
		t.Error("arithBinOp with no metamethod and a non-numeric string did not error")
	}
}

func TestEqMetamethod(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	mt := NewTable(0, 0)
	eqFn := newGoClosure("__eq", func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
		return []Value{true}, nil
	})
	mt.RawSet(&String{s: "__eq", hash: fnv1a32("__eq")}, eqFn)
	a, b := NewTable(0, 0), NewTable(0, 0)
	a.SetMetatable(mt)
	b.SetMetatable(mt)

	eq, err := th.equals(ctx, a, b)
	if err != nil {
		t.Fatalf("equals: %v", err)
	}
	if !eq {
		t.Error("equals(a, b) = false; want true via __eq")
	}

	// __eq is never consulted when the operands are already raw-equal.
	if eq, err := th.equals(ctx, a, a); err != nil || !eq {
		t.Errorf("equals(a, a) = (%v, %v); want (true, nil)", eq, err)
	}
}

func TestLessNumbersAndMissingMetamethod(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	if lt, err := th.less(ctx, 1.0, 2.0, false); err != nil || !lt {
		t.Errorf("less(1, 2, strict) = (%v, %v); want (true, nil)", lt, err)
	}
	if le, err := th.less(ctx, 2.0, 2.0, true); err != nil || !le {
		t.Errorf("less(2, 2, orEqual) = (%v, %v); want (true, nil)", le, err)
	}
	if _, err := th.less(ctx, &Table{}, &Table{}, false); err == nil {
		t.Error("less on two tables with no __lt did not error")
	}
}

func TestConcatCoercesNumber(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	got, err := th.concat(ctx, &String{s: "n="}, 5.0)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if s, ok := got.(*String); !ok || s.s != "n=5" {
		t.Errorf("concat(\"n=\", 5) = %#v; want \"n=5\"", got)
	}
}

func TestCallMetamethod(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	callable := NewUserdata(nil)
	mt := NewTable(0, 0)
	callFn := newGoClosure("__call", func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
		n := len(args) - 1 // first argument is the callable object itself
		return []Value{float64(n)}, nil
	})
	mt.RawSet(&String{s: "__call", hash: fnv1a32("__call")}, callFn)
	callable.SetMetatable(mt)

	results, err := th.Call(ctx, callable, 1.0, 2.0)
	if err != nil {
		t.Fatalf("Call via __call: %v", err)
	}
	if len(results) != 1 || results[0] != 2.0 {
		t.Errorf("Call via __call results = %v; want [2]", results)
	}
}

func TestLengthMetamethod(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	tbl := NewTable(0, 0)
	mt := NewTable(0, 0)
	lenFn := newGoClosure("__len", func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
		return []Value{42.0}, nil
	})
	mt.RawSet(&String{s: "__len", hash: fnv1a32("__len")}, lenFn)
	tbl.SetMetatable(mt)

	got, err := th.length(ctx, tbl)
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if got != 42.0 {
		t.Errorf("length(tbl) = %v; want 42", got)
	}
}

func TestToStringMetamethod(t *testing.T) {
	state := NewState()
	th := state.MainThread()
	ctx := context.Background()

	tbl := NewTable(0, 0)
	mt := NewTable(0, 0)
	toStringFn := newGoClosure("__tostring", func(ctx context.Context, state *LuaState, t *Thread, args []Value) ([]Value, error) {
		return []Value{&String{s: "<custom>"}}, nil
	})
	mt.RawSet(&String{s: "__tostring", hash: fnv1a32("__tostring")}, toStringFn)
	tbl.SetMetatable(mt)

	got, err := th.tostring(ctx, tbl)
	if err != nil {
		t.Fatalf("tostring: %v", err)
	}
	if got != "<custom>" {
		t.Errorf("tostring(tbl) = %q; want %q", got, "<custom>")
	}
}
