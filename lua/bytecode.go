// Copyright (C) 1994-2013 Lua.org, PUC-Rio.
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "fmt"

// Instruction is a single bytecode instruction, encoded exactly as the
// reference Lua 5.2 implementation lays out lopcodes.h:
//
//	  31       23       14      6      0
//	   |    B    |    C    |   A   |  op |    iABC
//	   |      Bx (or sBx)  |   A   |  op |    iABx
//	   |             Ax            |  op |    iAx
//
// Op occupies the low 6 bits, A the next 8, and C/B (or the merged Bx)
// the high 18. B and C each reserve their top bit as the "is this a
// constant index, not a register" flag (see [IsConstant]).
type Instruction uint32

const (
	sizeOp = 6
	sizeA  = 8
	sizeC  = 9
	sizeB  = 9
	sizeBx = sizeC + sizeB
	sizeAx = sizeC + sizeB + sizeA

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC
	posAx = posA
)

// MaxArgBx is the largest value an unsigned Bx argument can hold.
const MaxArgBx = 1<<sizeBx - 1

// MaxArgSBx is the largest magnitude a signed sBx argument can hold in
// either direction; sBx is stored biased by MaxArgSBx.
const MaxArgSBx = MaxArgBx >> 1

// MaxArgAx is the largest value an Ax argument (EXTRAARG) can hold.
const MaxArgAx = 1<<sizeAx - 1

// constantBit, set on a B or C operand, marks it as an index into the
// prototype's constant table rather than a register number (spec §3,
// "RK operand encoding").
const constantBit = 1 << (sizeB - 1)

// ABCInstruction builds an iABC-format instruction. It panics if op's
// mode is not [OpModeABC], or if a, b, or c overflow their fields.
func ABCInstruction(op OpCode, a uint8, b, c uint16) Instruction {
	if op.Mode() != OpModeABC {
		panic("lua: ABCInstruction with non-ABC opcode")
	}
	if b > 1<<sizeB-1 || c > 1<<sizeC-1 {
		panic("lua: ABCInstruction argument out of range")
	}
	return Instruction(op) |
		Instruction(a)<<posA |
		Instruction(c)<<posC |
		Instruction(b)<<posB
}

// ABxInstruction builds an iABx-format instruction with an unsigned Bx
// operand. It panics if op's mode is not [OpModeABx].
func ABxInstruction(op OpCode, a uint8, bx uint32) Instruction {
	if op.Mode() != OpModeABx {
		panic("lua: ABxInstruction with non-ABx opcode")
	}
	if bx > MaxArgBx {
		panic("lua: Bx argument out of range")
	}
	return Instruction(op) | Instruction(a)<<posA | Instruction(bx)<<posBx
}

// AsBxInstruction builds an iAsBx-format instruction with a signed sBx
// operand, used by jumps and numeric FOR opcodes. It panics if op's
// mode is not [OpModeAsBx].
func AsBxInstruction(op OpCode, a uint8, sbx int32) Instruction {
	if op.Mode() != OpModeAsBx {
		panic("lua: AsBxInstruction with non-AsBx opcode")
	}
	if sbx < -MaxArgSBx || sbx > MaxArgSBx {
		panic("lua: sBx argument out of range")
	}
	return Instruction(op) | Instruction(a)<<posA | Instruction(sbx+MaxArgSBx)<<posBx
}

// ExtraArgument builds the iAx-format EXTRAARG instruction that follows
// an opcode whose Bx/C field overflowed (spec §3, only used by SETLIST
// and LOADKX).
func ExtraArgument(ax uint32) Instruction {
	if ax > MaxArgAx {
		panic("lua: Ax argument out of range")
	}
	return Instruction(OpExtraArg) | Instruction(ax)<<posAx
}

// OpCode returns the instruction's opcode.
func (i Instruction) OpCode() OpCode {
	return OpCode(i >> posOp & (1<<sizeOp - 1))
}

// A returns the instruction's A operand.
func (i Instruction) A() uint8 {
	return uint8(i >> posA)
}

// B returns the instruction's raw B operand, including its constant bit.
func (i Instruction) B() uint16 {
	return uint16(i>>posB) & (1<<sizeB - 1)
}

// C returns the instruction's raw C operand, including its constant bit.
func (i Instruction) C() uint16 {
	return uint16(i>>posC) & (1<<sizeC - 1)
}

// Bx returns the instruction's unsigned Bx operand (the merged B and C
// fields), used by LOADK and CLOSURE.
func (i Instruction) Bx() uint32 {
	return uint32(i>>posBx) & (1<<sizeBx - 1)
}

// SBx returns the instruction's signed sBx operand, used by jumps and
// FORLOOP/FORPREP.
func (i Instruction) SBx() int32 {
	return int32(i.Bx()) - MaxArgSBx
}

// Ax returns the Ax operand of an EXTRAARG instruction.
func (i Instruction) Ax() uint32 {
	return uint32(i >> posAx)
}

// IsConstant reports whether a raw B or C operand (as returned by
// [Instruction.B] or [Instruction.C]) refers to a constant rather than
// a register.
func IsConstant(rk uint16) bool {
	return rk&constantBit != 0
}

// ConstantIndex extracts the constant-table index from an RK operand
// for which [IsConstant] is true.
func ConstantIndex(rk uint16) int {
	return int(rk &^ constantBit)
}

// RKAsConstant encodes a constant-table index k as an RK operand.
func RKAsConstant(k int) uint16 {
	return uint16(k) | constantBit
}

func (i Instruction) String() string {
	op := i.OpCode()
	switch op.Mode() {
	case OpModeABC:
		return fmt.Sprintf("%s %d %d %d", op, i.A(), i.B(), i.C())
	case OpModeABx:
		return fmt.Sprintf("%s %d %d", op, i.A(), i.Bx())
	case OpModeAsBx:
		return fmt.Sprintf("%s %d %d", op, i.A(), i.SBx())
	case OpModeAx:
		return fmt.Sprintf("%s %d", op, i.Ax())
	default:
		return op.String()
	}
}

// OpCode identifies a Lua 5.2 virtual machine instruction. The values
// and mnemonics match lopcodes.h exactly, including their numeric
// ordering, since [Prototype] binary chunks encode opcodes by number.
type OpCode uint8

const (
	OpMove OpCode = iota
	OpLoadK
	OpLoadKX
	OpLoadBool
	OpLoadNil
	OpGetUpval
	OpGetTabUp
	OpGetTable
	OpSetTabUp
	OpSetUpval
	OpSetTable
	OpNewTable
	OpSelf
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpUnm
	OpNot
	OpLen
	OpConcat
	OpJmp
	OpEq
	OpLt
	OpLe
	OpTest
	OpTestSet
	OpCall
	OpTailCall
	OpReturn
	OpForLoop
	OpForPrep
	OpTForCall
	OpTForLoop
	OpSetList
	OpClosure
	OpVararg
	OpExtraArg
	opCodeCount
)

// OpMode categorizes how an [Instruction]'s operand fields are laid
// out, matching lopcodes.h's OpArgMask/OpMode scheme collapsed to the
// four shapes this package actually encodes.
type OpMode uint8

const (
	OpModeABC OpMode = iota
	OpModeABx
	OpModeAsBx
	OpModeAx
)

var opModes = [opCodeCount]OpMode{
	OpMove:     OpModeABC,
	OpLoadK:    OpModeABx,
	OpLoadKX:   OpModeABx,
	OpLoadBool: OpModeABC,
	OpLoadNil:  OpModeABC,
	OpGetUpval: OpModeABC,
	OpGetTabUp: OpModeABC,
	OpGetTable: OpModeABC,
	OpSetTabUp: OpModeABC,
	OpSetUpval: OpModeABC,
	OpSetTable: OpModeABC,
	OpNewTable: OpModeABC,
	OpSelf:     OpModeABC,
	OpAdd:      OpModeABC,
	OpSub:      OpModeABC,
	OpMul:      OpModeABC,
	OpDiv:      OpModeABC,
	OpMod:      OpModeABC,
	OpPow:      OpModeABC,
	OpUnm:      OpModeABC,
	OpNot:      OpModeABC,
	OpLen:      OpModeABC,
	OpConcat:   OpModeABC,
	OpJmp:      OpModeAsBx,
	OpEq:       OpModeABC,
	OpLt:       OpModeABC,
	OpLe:       OpModeABC,
	OpTest:     OpModeABC,
	OpTestSet:  OpModeABC,
	OpCall:     OpModeABC,
	OpTailCall: OpModeABC,
	OpReturn:   OpModeABC,
	OpForLoop:  OpModeAsBx,
	OpForPrep:  OpModeAsBx,
	OpTForCall: OpModeABC,
	OpTForLoop: OpModeAsBx,
	OpSetList:  OpModeABC,
	OpClosure:  OpModeABx,
	OpVararg:   OpModeABC,
	OpExtraArg: OpModeAx,
}

// Mode returns how op's operands are encoded.
func (op OpCode) Mode() OpMode {
	if int(op) >= len(opModes) {
		return OpModeABC
	}
	return opModes[op]
}

var opNames = [opCodeCount]string{
	OpMove: "MOVE", OpLoadK: "LOADK", OpLoadKX: "LOADKX", OpLoadBool: "LOADBOOL",
	OpLoadNil: "LOADNIL", OpGetUpval: "GETUPVAL", OpGetTabUp: "GETTABUP",
	OpGetTable: "GETTABLE", OpSetTabUp: "SETTABUP", OpSetUpval: "SETUPVAL",
	OpSetTable: "SETTABLE", OpNewTable: "NEWTABLE", OpSelf: "SELF",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD",
	OpPow: "POW", OpUnm: "UNM", OpNot: "NOT", OpLen: "LEN", OpConcat: "CONCAT",
	OpJmp: "JMP", OpEq: "EQ", OpLt: "LT", OpLe: "LE", OpTest: "TEST",
	OpTestSet: "TESTSET", OpCall: "CALL", OpTailCall: "TAILCALL",
	OpReturn: "RETURN", OpForLoop: "FORLOOP", OpForPrep: "FORPREP",
	OpTForCall: "TFORCALL", OpTForLoop: "TFORLOOP", OpSetList: "SETLIST",
	OpClosure: "CLOSURE", OpVararg: "VARARG", OpExtraArg: "EXTRAARG",
}

func (op OpCode) String() string {
	if int(op) >= len(opNames) || opNames[op] == "" {
		return fmt.Sprintf("OpCode(%d)", uint8(op))
	}
	return opNames[op]
}
