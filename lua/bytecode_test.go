// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "testing"

func TestABCInstructionRoundTrip(t *testing.T) {
	instr := ABCInstruction(OpMove, 12, 300, 500)
	if got := instr.OpCode(); got != OpMove {
		t.Errorf("OpCode() = %v; want %v", got, OpMove)
	}
	if got := instr.A(); got != 12 {
		t.Errorf("A() = %d; want 12", got)
	}
	if got := instr.B(); got != 300 {
		t.Errorf("B() = %d; want 300", got)
	}
	if got := instr.C(); got != 500 {
		t.Errorf("C() = %d; want 500", got)
	}
}

func TestABCInstructionWrongModePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ABCInstruction(OpLoadK, ...) did not panic; OpLoadK is iABx, not iABC")
		}
	}()
	ABCInstruction(OpLoadK, 0, 0, 0)
}

func TestABCInstructionOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ABCInstruction with an out-of-range B operand did not panic")
		}
	}()
	ABCInstruction(OpMove, 0, 1<<sizeB, 0)
}

func TestABxInstructionRoundTrip(t *testing.T) {
	instr := ABxInstruction(OpLoadK, 5, MaxArgBx)
	if got := instr.A(); got != 5 {
		t.Errorf("A() = %d; want 5", got)
	}
	if got := instr.Bx(); got != MaxArgBx {
		t.Errorf("Bx() = %d; want %d", got, MaxArgBx)
	}
}

func TestABxInstructionWrongModePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ABxInstruction(OpMove, ...) did not panic; OpMove is iABC, not iABx")
		}
	}()
	ABxInstruction(OpMove, 0, 0)
}

func TestAsBxInstructionRoundTrip(t *testing.T) {
	for _, sbx := range []int32{0, 1, -1, MaxArgSBx, -MaxArgSBx} {
		instr := AsBxInstruction(OpJmp, 0, sbx)
		if got := instr.SBx(); got != sbx {
			t.Errorf("SBx() round trip for %d = %d", sbx, got)
		}
	}
}

func TestAsBxInstructionOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("AsBxInstruction with sBx out of range did not panic")
		}
	}()
	AsBxInstruction(OpJmp, 0, MaxArgSBx+1)
}

func TestExtraArgumentRoundTrip(t *testing.T) {
	instr := ExtraArgument(MaxArgAx)
	if got := instr.OpCode(); got != OpExtraArg {
		t.Errorf("OpCode() = %v; want %v", got, OpExtraArg)
	}
	if got := instr.Ax(); got != MaxArgAx {
		t.Errorf("Ax() = %d; want %d", got, MaxArgAx)
	}
}

func TestIsConstantAndConstantIndex(t *testing.T) {
	rk := RKAsConstant(17)
	if !IsConstant(rk) {
		t.Error("IsConstant(RKAsConstant(17)) = false; want true")
	}
	if got := ConstantIndex(rk); got != 17 {
		t.Errorf("ConstantIndex(RKAsConstant(17)) = %d; want 17", got)
	}

	reg := uint16(17)
	if IsConstant(reg) {
		t.Error("IsConstant(17) = true; want false (bare register index)")
	}
}

func TestInstructionStringFormatsByMode(t *testing.T) {
	cases := []struct {
		instr Instruction
		want  string
	}{
		{ABCInstruction(OpAdd, 1, 2, 3), "ADD 1 2 3"},
		{ABxInstruction(OpLoadK, 0, 9), "LOADK 0 9"},
		{AsBxInstruction(OpJmp, 0, -3), "JMP 0 -3"},
		{ExtraArgument(5), "EXTRAARG 5"},
	}
	for _, c := range cases {
		if got := c.instr.String(); got != c.want {
			t.Errorf("%#v.String() = %q; want %q", c.instr, got, c.want)
		}
	}
}

func TestOpCodeModes(t *testing.T) {
	cases := []struct {
		op   OpCode
		mode OpMode
	}{
		{OpMove, OpModeABC},
		{OpLoadK, OpModeABx},
		{OpJmp, OpModeAsBx},
		{OpExtraArg, OpModeAx},
	}
	for _, c := range cases {
		if got := c.op.Mode(); got != c.mode {
			t.Errorf("%v.Mode() = %v; want %v", c.op, got, c.mode)
		}
	}
}
