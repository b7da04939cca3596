// Copyright (C) 1994-2013 Lua.org, PUC-Rio.
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "strings"

// Prototype is a compiled Lua function: its bytecode plus everything
// the interpreter and debug subsystem need to run and describe it. A
// [Loader] is responsible for producing Prototypes from source text;
// this package only executes and (de)serializes them (spec §1).
type Prototype struct {
	// NumParams is the number of fixed (named) parameters.
	NumParams uint8
	IsVararg  bool
	// MaxStackSize is the number of registers this function's frame
	// needs, computed by the compiler from its register allocation.
	MaxStackSize uint8

	Constants []Value
	Code      []Instruction
	Functions []*Prototype
	Upvalues  []UpvalueDescriptor

	// Debug information, all optional (spec §6: "StripDebug removes it
	// without affecting execution").
	Source          Source
	LocalVariables  []LocalVariable
	LineInfo        []int32 // one entry per Code instruction, or nil
	LineDefined     int
	LastLineDefined int
}

// UpvalueDescriptor tells a closure where to find the value for one of
// its upvalues when it is created by a CLOSURE instruction.
type UpvalueDescriptor struct {
	Name string
	// InStack is true if the upvalue captures a local register of the
	// enclosing function's own frame; otherwise it captures one of the
	// enclosing function's own upvalues.
	InStack bool
	// Index is the register number (if InStack) or upvalue index
	// (otherwise) to capture from.
	Index uint8
}

// LocalVariable names a register for debug purposes over the range of
// instructions where it holds that local.
type LocalVariable struct {
	Name    string
	StartPC int
	EndPC   int
}

// Source identifies where a Prototype's text came from, following the
// C API's convention of tagging the string by kind: "@" for a file,
// "=" for another named source, anything else for a literal chunk to
// be shown truncated.
type Source string

// UnknownSource is used when the [Loader] did not supply one.
const UnknownSource Source = "=?"

// ShortSource renders the source the way error messages and
// [Traceback] do: file paths and named sources print without their
// sigil, a file path longer than 60 bytes keeps only its tail behind
// "...", a named source is cut at 60 bytes, and a literal chunk is shown
// as its first line, cut with "..." when longer than 45 bytes, inside
// [string "..."] (spec §6).
func (src Source) ShortSource() string {
	const limit = 60
	s := string(src)
	switch {
	case strings.HasPrefix(s, "@"):
		s = s[1:]
		if len(s) <= limit {
			return s
		}
		return "..." + s[len(s)-(limit-3):]
	case strings.HasPrefix(s, "="):
		s = s[1:]
		if len(s) > limit {
			s = s[:limit]
		}
		return s
	default:
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[:i]
		}
		if len(s) > limit-15 {
			s = s[:limit-15] + "..."
		}
		return `[string "` + s + `"]`
	}
}

// IsMainChunk reports whether the Prototype is the outermost function
// of a loaded chunk, as opposed to a nested function literal.
func (p *Prototype) IsMainChunk() bool {
	return p.LineDefined == 0 && p.LastLineDefined == 0
}

// StripDebug returns a copy of p with all debug information removed,
// recursively. The result runs identically; only tracebacks, variable
// names, and line-number reporting are affected (spec §6).
func (p *Prototype) StripDebug() *Prototype {
	stripped := *p
	stripped.Source = ""
	stripped.LineInfo = nil
	stripped.LocalVariables = nil
	if len(p.Upvalues) > 0 {
		stripped.Upvalues = make([]UpvalueDescriptor, len(p.Upvalues))
		for i, uv := range p.Upvalues {
			stripped.Upvalues[i] = UpvalueDescriptor{InStack: uv.InStack, Index: uv.Index}
		}
	}
	if len(p.Functions) > 0 {
		stripped.Functions = make([]*Prototype, len(p.Functions))
		for i, f := range p.Functions {
			stripped.Functions[i] = f.StripDebug()
		}
	}
	return &stripped
}

// LineAt returns the source line associated with the instruction at pc,
// or 0 if debug information was stripped.
func (p *Prototype) LineAt(pc int) int {
	if pc < 0 || pc >= len(p.LineInfo) {
		return 0
	}
	return int(p.LineInfo[pc])
}

// LocalName returns the name of the local variable held in register at
// the given program counter, or "" if none is active there or debug
// information was stripped.
func (p *Prototype) LocalName(register uint8, pc int) string {
	for _, v := range p.LocalVariables {
		if v.StartPC > pc {
			break
		}
		if pc < v.EndPC {
			if register == 0 {
				return v.Name
			}
			register--
		}
	}
	return ""
}

// UpvalueName returns the declared name of upvalue i, or "" if it has
// none (stripped, or a compiler that never recorded one).
func (p *Prototype) UpvalueName(i int) string {
	if i < 0 || i >= len(p.Upvalues) {
		return ""
	}
	return p.Upvalues[i].Name
}
