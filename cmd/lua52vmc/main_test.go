// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.starforge.dev/lua52vm/lua"
)

func writeTestChunk(t *testing.T, proto *lua.Prototype) string {
	t.Helper()
	data, err := lua.MarshalChunk(proto)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	path := filepath.Join(t.TempDir(), "chunk.luac")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func returnOneProto() *lua.Prototype {
	return &lua.Prototype{
		MaxStackSize: 1,
		Constants:    []lua.Value{1.0},
		Code: []lua.Instruction{
			lua.ABxInstruction(lua.OpLoadK, 0, 0),
			lua.ABCInstruction(lua.OpReturn, 0, 2, 0),
		},
	}
}

func TestDumpChunk(t *testing.T) {
	path := writeTestChunk(t, returnOneProto())
	if err := dumpChunk(path); err != nil {
		t.Errorf("dumpChunk: %v", err)
	}
}

func TestDumpChunkMissingFile(t *testing.T) {
	if err := dumpChunk(filepath.Join(t.TempDir(), "missing.luac")); err == nil {
		t.Error("dumpChunk on a nonexistent file did not error")
	}
}

func TestRunChunk(t *testing.T) {
	path := writeTestChunk(t, returnOneProto())
	if err := runChunk(context.Background(), path, nil); err != nil {
		t.Errorf("runChunk: %v", err)
	}
}

func TestNameFunctionsLabelsMainAndNested(t *testing.T) {
	nested := &lua.Prototype{}
	main := &lua.Prototype{Functions: []*lua.Prototype{nested}}
	names := make(map[*lua.Prototype]string)
	nameFunctions(names, main, "")
	if names[main] != "main" {
		t.Errorf("names[main] = %q; want \"main\"", names[main])
	}
	if names[nested] != "main[0]" {
		t.Errorf("names[nested] = %q; want \"main[0]\"", names[nested])
	}
}
