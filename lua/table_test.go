// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "testing"

func TestTableRawGetSetArrayPart(t *testing.T) {
	tbl := NewTable(0, 0)
	if got := tbl.RawGet(1.0); got != nil {
		t.Errorf("RawGet(1) on empty table = %#v; want nil", got)
	}
	if err := tbl.RawSet(1.0, &String{s: "a"}); err != nil {
		t.Fatalf("RawSet(1, \"a\"): %v", err)
	}
	if err := tbl.RawSet(2.0, &String{s: "b"}); err != nil {
		t.Fatalf("RawSet(2, \"b\"): %v", err)
	}
	if got, want := tbl.Len(), 2; got != want {
		t.Errorf("Len() = %d; want %d", got, want)
	}
	if got := tbl.RawGet(1.0); got.(*String).s != "a" {
		t.Errorf("RawGet(1) = %v; want \"a\"", got)
	}
}

func TestTableRawGetSetHashPart(t *testing.T) {
	tbl := NewTable(0, 0)
	key := &String{s: "k", hash: fnv1a32("k")}
	if err := tbl.RawSet(key, 42.0); err != nil {
		t.Fatalf("RawSet: %v", err)
	}
	got := tbl.RawGet(&String{s: "k", hash: fnv1a32("k")})
	if got != 42.0 {
		t.Errorf("RawGet(equal-but-distinct key) = %#v; want 42", got)
	}
}

func TestTableRawSetNilKeyErrors(t *testing.T) {
	tbl := NewTable(0, 0)
	if err := tbl.RawSet(nil, 1.0); err == nil {
		t.Error("RawSet(nil, 1) did not error")
	}
	if err := tbl.RawSet(nan(), 1.0); err == nil {
		t.Error("RawSet(NaN, 1) did not error")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestTableFloatIntegerKeysAlias(t *testing.T) {
	tbl := NewTable(0, 0)
	if err := tbl.RawSet(1.0, &String{s: "one"}); err != nil {
		t.Fatalf("RawSet(1.0, ...): %v", err)
	}
	got := tbl.RawGet(1.0)
	if s, ok := got.(*String); !ok || s.s != "one" {
		t.Errorf("RawGet(1.0) = %#v; want \"one\"", got)
	}
}

func TestTableDeleteKey(t *testing.T) {
	tbl := NewTable(0, 0)
	key := &String{s: "k", hash: fnv1a32("k")}
	tbl.RawSet(key, 1.0)
	tbl.RawSet(key, nil)
	if got := tbl.RawGet(key); got != nil {
		t.Errorf("RawGet after delete = %#v; want nil", got)
	}
}

func TestTableLenWithHole(t *testing.T) {
	tbl := NewTable(4, 0)
	tbl.RawSet(1.0, 1.0)
	tbl.RawSet(2.0, 2.0)
	// Leave index 3 nil, set 4: any border is acceptable. The array
	// part's last slot is non-nil, so no binary search runs and 4 (with
	// t[5] nil) is the border reported.
	tbl.RawSet(4.0, 4.0)
	if got := tbl.Len(); got != 4 {
		t.Errorf("Len() with a hole = %d; want 4", got)
	}
}

func TestTableNextIteratesEverything(t *testing.T) {
	tbl := NewTable(0, 0)
	tbl.RawSet(1.0, &String{s: "a"})
	tbl.RawSet(2.0, &String{s: "b"})
	tbl.RawSet(&String{s: "x", hash: fnv1a32("x")}, 99.0)

	seen := make(map[string]bool)
	var key Value
	for {
		k, v, ok, err := tbl.Next(key)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		seen[toStringForTest(k)+"="+toStringForTest(v)] = true
		key = k
	}
	want := []string{"1=a", "2=b", "x=99"}
	for _, w := range want {
		if !seen[w] {
			t.Errorf("Next iteration missing entry %q; got %v", w, seen)
		}
	}
	if len(seen) != len(want) {
		t.Errorf("Next iteration produced %d entries; want %d", len(seen), len(want))
	}
}

func toStringForTest(v Value) string {
	return NewState().ToString(v)
}

func TestTableMetatable(t *testing.T) {
	tbl := NewTable(0, 0)
	if got := tbl.Metatable(); got != nil {
		t.Errorf("Metatable() = %v; want nil", got)
	}
	mt := NewTable(0, 0)
	tbl.SetMetatable(mt)
	if got := tbl.Metatable(); got != mt {
		t.Errorf("Metatable() = %v; want %v", got, mt)
	}
}
