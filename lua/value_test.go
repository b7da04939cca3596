// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "testing"

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want Type
	}{
		{"nil", nil, TypeNil},
		{"bool", true, TypeBoolean},
		{"number", 1.5, TypeNumber},
		{"string", &String{s: "x"}, TypeString},
		{"table", NewTable(0, 0), TypeTable},
		{"userdata", NewUserdata(42), TypeUserdata},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := TypeOf(test.v); got != test.want {
				t.Errorf("TypeOf(%v) = %v; want %v", test.v, got, test.want)
			}
		})
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    Value
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0.0, true},
		{&String{s: ""}, true},
	}
	for _, test := range tests {
		if got := Truthy(test.v); got != test.want {
			t.Errorf("Truthy(%#v) = %t; want %t", test.v, got, test.want)
		}
	}
}

func TestRawEqual(t *testing.T) {
	a := &String{s: "abc", hash: fnv1a32("abc")}
	b := &String{s: "abc", hash: fnv1a32("abc")}
	if !RawEqual(a, b) {
		t.Error("RawEqual(a, b) = false for two distinct *String with equal bytes; want true")
	}
	if RawEqual(1.0, &String{s: "1"}) {
		t.Error("RawEqual(1.0, \"1\") = true; want false (no cross-type coercion)")
	}
	if !RawEqual(nil, nil) {
		t.Error("RawEqual(nil, nil) = false; want true")
	}
	tbl := NewTable(0, 0)
	if !RawEqual(tbl, tbl) {
		t.Error("RawEqual(tbl, tbl) = false; want true (identity)")
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		v       Value
		want    float64
		wantOK  bool
	}{
		{3.5, 3.5, true},
		{&String{s: "42"}, 42, true},
		{&String{s: "  -3.5  "}, -3.5, true},
		{&String{s: "0x1A"}, 26, true},
		{&String{s: "not a number"}, 0, false},
		{true, 0, false},
	}
	for _, test := range tests {
		got, ok := ToNumber(test.v)
		if ok != test.wantOK || (ok && got != test.want) {
			t.Errorf("ToNumber(%#v) = (%v, %t); want (%v, %t)", test.v, got, ok, test.want, test.wantOK)
		}
	}
}

func TestNumberToString(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{3.0, "3"},
		{3.5, "3.5"},
		{-0.5, "-0.5"},
	}
	for _, test := range tests {
		if got := NumberToString(test.f); got != test.want {
			t.Errorf("NumberToString(%v) = %q; want %q", test.f, got, test.want)
		}
	}
}

func TestToString(t *testing.T) {
	state := NewState()
	tests := []struct {
		v    Value
		want string
	}{
		{nil, "nil"},
		{true, "true"},
		{false, "false"},
		{2.0, "2"},
		{&String{s: "hi"}, "hi"},
	}
	for _, test := range tests {
		if got := state.ToString(test.v); got != test.want {
			t.Errorf("state.ToString(%#v) = %q; want %q", test.v, got, test.want)
		}
	}
}
