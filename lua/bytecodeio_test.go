// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMarshalUnmarshalChunkRoundTrip(t *testing.T) {
	proto := &Prototype{
		NumParams:       1,
		IsVararg:        true,
		MaxStackSize:    4,
		Source:          "@round-trip.lua",
		LineDefined:     0,
		LastLineDefined: 0,
		Constants:       []Value{nil, true, 3.5, &String{s: "hello"}},
		Code: []Instruction{
			ABxInstruction(OpLoadK, 1, 0),
			ABCInstruction(OpReturn, 0, 1, 0),
		},
		Upvalues: []UpvalueDescriptor{
			{Name: "_ENV", InStack: true, Index: 0},
		},
		LineInfo: []int32{1, 2},
		LocalVariables: []LocalVariable{
			{Name: "x", StartPC: 0, EndPC: 2},
		},
		Functions: []*Prototype{
			{
				NumParams:    0,
				MaxStackSize: 2,
				Source:       "@round-trip.lua",
				Code: []Instruction{
					ABCInstruction(OpReturn, 0, 1, 0),
				},
				Constants: []Value{},
			},
		},
	}

	data, err := MarshalChunk(proto)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	if !isBinaryChunk(data) {
		t.Fatal("MarshalChunk output does not start with the LUAC_HEADER signature")
	}

	got, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}

	opts := cmp.Options{
		cmpopts.EquateEmpty(),
		cmp.AllowUnexported(String{}),
		cmp.Comparer(func(a, b *String) bool {
			if a == nil || b == nil {
				return a == b
			}
			return a.s == b.s
		}),
	}
	if diff := cmp.Diff(proto, got, opts); diff != "" {
		t.Errorf("UnmarshalChunk(MarshalChunk(proto)) diff (-want +got):\n%s", diff)
	}
}

func TestUnmarshalChunkRejectsBadHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"badSignature", []byte("garbage!")},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := UnmarshalChunk(test.data); err == nil {
				t.Error("UnmarshalChunk did not return an error")
			}
		})
	}
}

func TestUnmarshalChunkRejectsMismatchedSizes(t *testing.T) {
	proto := &Prototype{Constants: []Value{}}
	data, err := MarshalChunk(proto)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	// Corrupt the size_t size field in the header (offset 8: signature(4)
	// + version + format + endian + intSz).
	data[8] = 4
	if _, err := UnmarshalChunk(data); err == nil {
		t.Error("UnmarshalChunk accepted a chunk with a mismatched size_t size")
	}
}
