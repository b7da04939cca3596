// Copyright (C) 1994-2013 Lua.org, PUC-Rio.
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Binary chunk format, grounded on the reference implementation's
// lundump.c (spec §6: "Bytecode (Lua 5.2 LUAC_HEADER, endian flag,
// number-format flag) must round-trip"). The header records the sizes
// and representations LoadFunction's body assumes, exactly as PUC-Rio's
// loader rejects a chunk built for a different size_t/lua_Number/
// endianness rather than silently misreading it.
const (
	luacSignature = "\x1bLua"
	luacVersion   = 0x52
	luacFormat    = 0
	// luacTail is LUAC_TAIL: a fixed byte sequence chosen so a text
	// editor's newline/EOF mangling of a binary chunk is caught early.
	luacTail = "\x19\x93\r\n\x1a\n"

	sizeofInt         = 4
	sizeofSizeT       = 8
	sizeofInstruction = 4
	sizeofLuaNumber   = 8
)

// MarshalChunk encodes p as a Lua 5.2 binary chunk.
func MarshalChunk(p *Prototype) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader(&buf)
	if err := writeFunction(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer) {
	buf.WriteString(luacSignature)
	buf.WriteByte(luacVersion)
	buf.WriteByte(luacFormat)
	buf.WriteByte(1) // endianness: this package always little-endian-encodes fields below
	buf.WriteByte(sizeofInt)
	buf.WriteByte(sizeofSizeT)
	buf.WriteByte(sizeofInstruction)
	buf.WriteByte(sizeofLuaNumber)
	buf.WriteByte(0) // lua_Number is not integral: this package has no integer subtype
	buf.WriteString(luacTail)
}

func writeInt(buf *bytes.Buffer, n int) {
	var b [sizeofInt]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

func writeSize(buf *bytes.Buffer, n int) {
	var b [sizeofSizeT]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	if s == "" {
		writeSize(buf, 0)
		return
	}
	writeSize(buf, len(s)+1) // +1 for the reference format's trailing NUL
	buf.WriteString(s)
	buf.WriteByte(0)
}

func writeNumber(buf *bytes.Buffer, f float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	buf.Write(b[:])
}

func writeFunction(buf *bytes.Buffer, p *Prototype) error {
	writeString(buf, string(p.Source))
	writeInt(buf, p.LineDefined)
	writeInt(buf, p.LastLineDefined)
	buf.WriteByte(byte(len(p.Upvalues)))
	buf.WriteByte(p.NumParams)
	buf.WriteByte(boolByte(p.IsVararg))
	buf.WriteByte(p.MaxStackSize)

	writeInt(buf, len(p.Code))
	for _, instr := range p.Code {
		var b [sizeofInstruction]byte
		binary.LittleEndian.PutUint32(b[:], uint32(instr))
		buf.Write(b[:])
	}

	writeInt(buf, len(p.Constants))
	for _, k := range p.Constants {
		if err := writeConstant(buf, k); err != nil {
			return err
		}
	}

	writeInt(buf, len(p.Functions))
	for _, f := range p.Functions {
		if err := writeFunction(buf, f); err != nil {
			return err
		}
	}

	writeInt(buf, len(p.Upvalues))
	for _, uv := range p.Upvalues {
		buf.WriteByte(boolByte(uv.InStack))
		buf.WriteByte(uv.Index)
	}

	writeInt(buf, len(p.LineInfo))
	for _, line := range p.LineInfo {
		writeInt(buf, int(line))
	}
	writeInt(buf, len(p.LocalVariables))
	for _, v := range p.LocalVariables {
		writeString(buf, v.Name)
		writeInt(buf, v.StartPC)
		writeInt(buf, v.EndPC)
	}
	writeInt(buf, len(p.Upvalues))
	for _, uv := range p.Upvalues {
		writeString(buf, uv.Name)
	}
	return nil
}

func writeConstant(buf *bytes.Buffer, k Value) error {
	switch k := k.(type) {
	case nil:
		buf.WriteByte(byte(TypeNil))
	case bool:
		buf.WriteByte(byte(TypeBoolean))
		buf.WriteByte(boolByte(k))
	case float64:
		buf.WriteByte(byte(TypeNumber))
		writeNumber(buf, k)
	case *String:
		buf.WriteByte(byte(TypeString))
		writeString(buf, k.s)
	default:
		return fmt.Errorf("lua: cannot marshal a %v constant", TypeOf(k))
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// UnmarshalChunk decodes a Lua 5.2 binary chunk in the layout
// [MarshalChunk] produces into a [Prototype]. Constant type tags are
// this package's [Type] values, which differ from the C API's for
// numbers and strings.
// String constants are freshly allocated, not run through any
// [LuaState]'s intern cache; [LuaState.LoadChunk] re-interns them as it
// builds the resulting closure.
func UnmarshalChunk(data []byte) (*Prototype, error) {
	r := &chunkReader{data: data}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	p, err := r.readFunction()
	if err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

type chunkReader struct {
	data []byte
	pos  int
	err  error
}

func (r *chunkReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("lua: bad binary chunk: "+format, args...)
	}
}

func (r *chunkReader) take(n int) []byte {
	if r.err != nil || r.pos+n > len(r.data) {
		r.fail("unexpected end of chunk")
		return make([]byte, n)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *chunkReader) byte() byte {
	return r.take(1)[0]
}

func (r *chunkReader) int() int {
	return int(int32(binary.LittleEndian.Uint32(r.take(sizeofInt))))
}

func (r *chunkReader) size() int {
	return int(binary.LittleEndian.Uint64(r.take(sizeofSizeT)))
}

func (r *chunkReader) number() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(r.take(8)))
}

func (r *chunkReader) str() string {
	n := r.size()
	if n == 0 {
		return ""
	}
	b := r.take(n)
	if len(b) == 0 {
		return ""
	}
	return string(b[:len(b)-1]) // drop the trailing NUL written by writeString
}

func (r *chunkReader) readHeader() error {
	sig := r.take(len(luacSignature))
	if string(sig) != luacSignature {
		return fmt.Errorf("lua: not a precompiled chunk")
	}
	if v := r.byte(); v != luacVersion {
		return fmt.Errorf("lua: version mismatch in precompiled chunk")
	}
	if f := r.byte(); f != luacFormat {
		return fmt.Errorf("lua: format mismatch in precompiled chunk")
	}
	endian := r.byte()
	intSz, sizeTSz, instrSz, numSz := r.byte(), r.byte(), r.byte(), r.byte()
	integral := r.byte()
	tail := r.take(len(luacTail))
	if r.err != nil {
		return r.err
	}
	if endian != 1 || intSz != sizeofInt || sizeTSz != sizeofSizeT ||
		instrSz != sizeofInstruction || numSz != sizeofLuaNumber || integral != 0 {
		return fmt.Errorf("lua: precompiled chunk built for a different platform")
	}
	if string(tail) != luacTail {
		return fmt.Errorf("lua: corrupted precompiled chunk")
	}
	return nil
}

func (r *chunkReader) readFunction() (*Prototype, error) {
	p := &Prototype{}
	p.Source = Source(r.str())
	p.LineDefined = r.int()
	p.LastLineDefined = r.int()
	nups := r.byte()
	p.NumParams = r.byte()
	p.IsVararg = r.byte() != 0
	p.MaxStackSize = r.byte()

	n := r.int()
	if n < 0 {
		r.fail("negative code size")
	} else {
		p.Code = make([]Instruction, n)
		for i := range p.Code {
			p.Code[i] = Instruction(binary.LittleEndian.Uint32(r.take(sizeofInstruction)))
		}
	}

	n = r.int()
	p.Constants = make([]Value, n)
	for i := range p.Constants {
		v, err := r.readConstant()
		if err != nil {
			return nil, err
		}
		p.Constants[i] = v
	}

	n = r.int()
	p.Functions = make([]*Prototype, n)
	for i := range p.Functions {
		f, err := r.readFunction()
		if err != nil {
			return nil, err
		}
		p.Functions[i] = f
	}

	n = r.int()
	p.Upvalues = make([]UpvalueDescriptor, n)
	for i := range p.Upvalues {
		p.Upvalues[i].InStack = r.byte() != 0
		p.Upvalues[i].Index = r.byte()
	}
	if r.err == nil && int(nups) != len(p.Upvalues) {
		r.fail("upvalue count mismatch")
	}

	n = r.int()
	p.LineInfo = make([]int32, n)
	for i := range p.LineInfo {
		p.LineInfo[i] = int32(r.int())
	}
	n = r.int()
	p.LocalVariables = make([]LocalVariable, n)
	for i := range p.LocalVariables {
		p.LocalVariables[i].Name = r.str()
		p.LocalVariables[i].StartPC = r.int()
		p.LocalVariables[i].EndPC = r.int()
	}
	n = r.int()
	if r.err == nil && n != len(p.Upvalues) {
		r.fail("upvalue name count mismatch")
	}
	for i := 0; i < n && i < len(p.Upvalues); i++ {
		p.Upvalues[i].Name = r.str()
	}

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}

func (r *chunkReader) readConstant() (Value, error) {
	t := Type(r.byte())
	switch t {
	case TypeNil:
		return nil, nil
	case TypeBoolean:
		return r.byte() != 0, nil
	case TypeNumber:
		return r.number(), nil
	case TypeString:
		s := r.str()
		return &String{s: s, hash: fnv1a32(s)}, nil
	default:
		r.fail("unknown constant type tag %d", t)
		return nil, r.err
	}
}
