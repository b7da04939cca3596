// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"testing"
)

// stubLoader returns proto for any source, so LoadChunk's text path can
// be exercised without a real Lua-text compiler.
type stubLoader struct {
	proto *Prototype
	err   error
}

func (l stubLoader) Load(ctx context.Context, chunkName Source, source []byte) (*Prototype, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.proto, nil
}

func simpleTestProto() *Prototype {
	return &Prototype{
		MaxStackSize: 1,
		Constants:    []Value{1.0},
		Code: []Instruction{
			ABxInstruction(OpLoadK, 0, 0),
			ABCInstruction(OpReturn, 0, 2, 0),
		},
	}
}

func TestLoadChunkTextMode(t *testing.T) {
	state := NewState(WithLoader(stubLoader{proto: simpleTestProto()}))
	fn, err := state.LoadChunk(context.Background(), "chunk", []byte("return 1"), ChunkModeText, nil)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	results, err := state.MainThread().Call(context.Background(), fn)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || results[0] != 1.0 {
		t.Errorf("Call results = %v; want [1]", results)
	}
}

func TestLoadChunkRejectsBinaryInTextMode(t *testing.T) {
	state := NewState()
	data, err := MarshalChunk(simpleTestProto())
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	_, err = state.LoadChunk(context.Background(), "chunk", data, ChunkModeText, nil)
	if err == nil {
		t.Fatal("LoadChunk(binary, mode=t) did not error")
	}
	if _, ok := err.(*CompileError); !ok {
		t.Errorf("LoadChunk error type = %T; want *CompileError", err)
	}
}

func TestLoadChunkRejectsTextInBinaryMode(t *testing.T) {
	state := NewState(WithLoader(stubLoader{proto: simpleTestProto()}))
	_, err := state.LoadChunk(context.Background(), "chunk", []byte("return 1"), ChunkModeBinary, nil)
	if err == nil {
		t.Fatal("LoadChunk(text, mode=b) did not error")
	}
	if _, ok := err.(*CompileError); !ok {
		t.Errorf("LoadChunk error type = %T; want *CompileError", err)
	}
}

func TestLoadChunkBothModeAcceptsEither(t *testing.T) {
	state := NewState(WithLoader(stubLoader{proto: simpleTestProto()}))
	if _, err := state.LoadChunk(context.Background(), "chunk", []byte("return 1"), ChunkModeBoth, nil); err != nil {
		t.Errorf("LoadChunk(text, mode=bt): %v", err)
	}
	data, _ := MarshalChunk(simpleTestProto())
	if _, err := state.LoadChunk(context.Background(), "chunk", data, ChunkModeBoth, nil); err != nil {
		t.Errorf("LoadChunk(binary, mode=bt): %v", err)
	}
}

func TestLoadChunkBinaryInternsStrings(t *testing.T) {
	state := NewState()
	proto := &Prototype{
		MaxStackSize: 1,
		Constants:    []Value{&String{s: "shared"}},
		Code: []Instruction{
			ABxInstruction(OpLoadK, 0, 0),
			ABCInstruction(OpReturn, 0, 2, 0),
		},
	}
	data, err := MarshalChunk(proto)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	fn, err := state.LoadChunk(context.Background(), "chunk", data, ChunkModeBinary, nil)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}

	loadedConst := fn.proto.Constants[0].(*String)
	interned := state.NewString("shared")
	if loadedConst != interned {
		t.Error("a binary chunk's string constant was not re-interned against the state's string cache")
	}
}

func TestLoadChunkUsesGivenEnv(t *testing.T) {
	state := NewState(WithLoader(stubLoader{proto: simpleTestProto()}))
	env := NewTable(0, 0)
	fn, err := state.LoadChunk(context.Background(), "chunk", []byte("return 1"), ChunkModeText, env)
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	if len(fn.upvalues) != 1 {
		t.Fatalf("loaded closure has %d upvalues; want 1", len(fn.upvalues))
	}
	if got := fn.upvalues[0].get(nil); got != Value(env) {
		t.Errorf("closure _ENV upvalue = %v; want the given env table", got)
	}
}

func TestNewStringInterns(t *testing.T) {
	state := NewState()
	a := state.NewString("hello")
	b := state.NewString("hello")
	if a != b {
		t.Error("NewString(\"hello\") called twice returned distinct instances; want the same interned string")
	}
}

func TestOpenLibsRegistersExpectedGlobals(t *testing.T) {
	state := NewState()
	OpenLibs(state)
	for _, name := range []string{"coroutine", "pcall", "xpcall", "error", "assert", "debug"} {
		if state.Globals.rawGetStr(name) == nil {
			t.Errorf("globals.%s is nil after OpenLibs; want it registered", name)
		}
	}
}
