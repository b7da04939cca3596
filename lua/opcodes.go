// Copyright (C) 1994-2013 Lua.org, PUC-Rio.
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "context"

// runProto executes t.frames[idx]'s proto starting at its pc until it
// returns, errors, needs to tail-call (reported via the second/third
// results so [Thread.execFrame] can reuse the frame), or a nested call
// suspends. It takes idx rather than a *DebugFrame because a nested
// CALL/TAILCALL/TFORCALL, or a metamethod dispatched through
// [Thread.callMetaSync], can append to t.frames and reallocate its
// backing array out from under any pointer taken before the call (spec
// §9, "refer to frames by typed indices rather than pointers"); every
// site below that writes to the frame after making such a call
// re-fetches &t.frames[idx] first.
func (t *Thread) runProto(ctx context.Context, idx int) (callResult, *luaClosure, []Value) {
	frame := &t.frames[idx]
	proto := frame.proto()
	code := proto.Code
	k := proto.Constants
	base := frame.base

	rk := func(operand uint16) Value {
		if IsConstant(operand) {
			return k[ConstantIndex(operand)]
		}
		return t.regs[base+int(operand)]
	}

	for {
		if ctx.Err() != nil {
			return fatalResult(&Uncatchable{Reason: ctx.Err().Error()}), nil, nil
		}
		t.dispatchLineAndCountHooks(frame, proto)
		instr := code[frame.pc]
		op := instr.OpCode()
		a := int(instr.A())

		switch op {
		case OpMove:
			t.regs[base+a] = t.regs[base+int(instr.B())]

		case OpLoadK:
			t.regs[base+a] = k[instr.Bx()]

		case OpLoadKX:
			frame.pc++
			ax := code[frame.pc].Ax()
			t.regs[base+a] = k[ax]

		case OpLoadBool:
			t.regs[base+a] = instr.B() != 0
			if instr.C() != 0 {
				frame.pc++
			}

		case OpLoadNil:
			b := int(instr.B())
			for i := 0; i <= b; i++ {
				t.regs[base+a+i] = nil
			}

		case OpGetUpval:
			uv := frame.closure.(*luaClosure).upvalues[instr.B()]
			t.regs[base+a] = uv.get(t.regs)

		case OpSetUpval:
			uv := frame.closure.(*luaClosure).upvalues[instr.B()]
			uv.set(t.regs, t.regs[base+a])

		case OpGetTabUp:
			uv := frame.closure.(*luaClosure).upvalues[instr.B()]
			key := rk(instr.C())
			v, err := t.index(ctx, uv.get(t.regs), key)
			if err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}
			t.regs[base+a] = v

		case OpSetTabUp:
			uv := frame.closure.(*luaClosure).upvalues[instr.A()]
			key := rk(instr.B())
			val := rk(instr.C())
			if err := t.newindex(ctx, uv.get(t.regs), key, val); err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}

		case OpGetTable:
			obj := t.regs[base+int(instr.B())]
			key := rk(instr.C())
			v, err := t.index(ctx, obj, key)
			if err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}
			t.regs[base+a] = v

		case OpSetTable:
			obj := t.regs[base+a]
			key := rk(instr.B())
			val := rk(instr.C())
			if err := t.newindex(ctx, obj, key, val); err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}

		case OpNewTable:
			narr, nrec := fbToInt(uint8(instr.B())), fbToInt(uint8(instr.C()))
			if err := t.state.trackAlloc(int64(narr)*bytesPerValue + int64(nrec)*bytesPerHashNode); err != nil {
				return fatalResult(err.(*Uncatchable)), nil, nil
			}
			t.regs[base+a] = NewTable(narr, nrec)

		case OpSelf:
			obj := t.regs[base+int(instr.B())]
			key := rk(instr.C())
			v, err := t.index(ctx, obj, key)
			if err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}
			t.regs[base+a+1] = obj
			t.regs[base+a] = v

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
			v, err := t.arithBinOp(ctx, arithTagMethod(op), rk(instr.B()), rk(instr.C()))
			if err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}
			t.regs[base+a] = v

		case OpUnm:
			v, err := t.unm(ctx, t.regs[base+int(instr.B())])
			if err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}
			t.regs[base+a] = v

		case OpNot:
			t.regs[base+a] = !Truthy(t.regs[base+int(instr.B())])

		case OpLen:
			v, err := t.length(ctx, t.regs[base+int(instr.B())])
			if err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}
			t.regs[base+a] = v

		case OpConcat:
			b, c := int(instr.B()), int(instr.C())
			acc := t.regs[base+c]
			for i := c - 1; i >= b; i-- {
				v, err := t.concat(ctx, t.regs[base+i], acc)
				if err != nil {
					if isUncatchable(err) {
						return fatalResult(err.(*Uncatchable)), nil, nil
					}
					return errResult(newLuaError(errorToValue(err))), nil, nil
				}
				acc = v
			}
			t.regs[base+a] = acc

		case OpJmp:
			t.jmpCloseIfNeeded(frame, a)
			frame.pc += int(instr.SBx())

		case OpEq, OpLt, OpLe:
			cond, err := t.compareOp(ctx, op, rk(instr.B()), rk(instr.C()))
			if err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}
			// compareOp may have run an __eq/__lt/__le metamethod that
			// grew t.frames and reallocated its backing array; refetch
			// before writing pc through frame.
			frame = &t.frames[idx]
			if cond != (a != 0) {
				frame.pc++
			}

		case OpTest:
			if Truthy(t.regs[base+a]) != (instr.C() != 0) {
				frame.pc++
			}

		case OpTestSet:
			b := t.regs[base+int(instr.B())]
			if Truthy(b) == (instr.C() != 0) {
				t.regs[base+a] = b
			} else {
				frame.pc++
			}

		case OpCall:
			if r := t.doCall(ctx, idx, a, int(instr.B()), int(instr.C())); r.isSuspend() || r.kind != resultOk {
				return r, nil, nil
			}
			// doCall's callValue may have grown t.frames.
			frame = &t.frames[idx]

		case OpTailCall:
			target, args, ok := t.decodeCallArgs(frame, a, int(instr.B()))
			if !ok {
				return errResult(runtimeErrorf("bad TAILCALL arguments")), nil, nil
			}
			if lc, isLua := target.(*luaClosure); isLua {
				return okResult(), lc, args
			}
			r := t.callValue(ctx, target, args, -1)
			// callValue may have grown t.frames and reallocated its
			// backing array; refetch before writing through frame.
			frame = &t.frames[idx]
			if r.isSuspend() {
				frame.state = &luaContinuation{wantResults: -1, isTailReturn: true}
				return r, nil, nil
			}
			t.closeUpvalues(frame, frame.base)
			return r, nil, nil

		case OpReturn:
			b := int(instr.B())
			var results []Value
			if b == 0 {
				results = append([]Value{}, t.regs[base+a:frame.top]...)
			} else {
				results = append([]Value{}, t.regs[base+a:base+a+b-1]...)
			}
			t.closeUpvalues(frame, base)
			return okResult(results...), nil, nil

		case OpForPrep:
			init, limit, step, err := forNumbers(t.regs[base+a], t.regs[base+a+1], t.regs[base+a+2])
			if err != nil {
				return errResult(newLuaError(errorToValue(err))), nil, nil
			}
			t.regs[base+a] = init - step
			t.regs[base+a+1] = limit
			t.regs[base+a+2] = step
			frame.pc += int(instr.SBx())

		case OpForLoop:
			step := t.regs[base+a+2].(float64)
			next := t.regs[base+a].(float64) + step
			limit := t.regs[base+a+1].(float64)
			cont := (step > 0 && next <= limit) || (step <= 0 && next >= limit)
			if cont {
				t.regs[base+a] = next
				t.regs[base+a+3] = next
				frame.pc += int(instr.SBx())
			}

		case OpTForCall:
			c := int(instr.C())
			fn := t.regs[base+a]
			args := []Value{t.regs[base+a+1], t.regs[base+a+2]}
			r := t.callValue(ctx, fn, args, c)
			// callValue may have grown t.frames and reallocated its
			// backing array; refetch before writing through frame.
			frame = &t.frames[idx]
			if r.isSuspend() {
				frame.pc++ // land on the following TFORLOOP when resumed
				frame.state = &luaContinuation{destReg: a + 3, wantResults: c, isForCall: true}
				return r, nil, nil
			}
			if r.kind != resultOk {
				return r, nil, nil
			}
			placeResults(t.regs, base+a+3, c, r.values)

		case OpTForLoop:
			if t.regs[base+a+1] != nil {
				t.regs[base+a] = t.regs[base+a+1]
				frame.pc += int(instr.SBx())
			}

		case OpSetList:
			b := int(instr.B())
			c := int(instr.C())
			if c == 0 {
				frame.pc++
				c = int(code[frame.pc].Ax())
			}
			tbl := t.regs[base+a].(*Table)
			n := b
			if n == 0 {
				n = frame.top - (base + a + 1)
			}
			const fieldsPerFlush = 50
			for i := 1; i <= n; i++ {
				_ = tbl.RawSet(float64((c-1)*fieldsPerFlush+i), t.regs[base+a+i])
			}

		case OpClosure:
			child := proto.Functions[instr.Bx()]
			upvals := make([]*upvalue, len(child.Upvalues))
			for i, desc := range child.Upvalues {
				if desc.InStack {
					upvals[i] = t.findOrCreateUpvalue(frame, base+int(desc.Index))
				} else {
					upvals[i] = frame.closure.(*luaClosure).upvalues[desc.Index]
				}
			}
			t.regs[base+a] = newLuaClosure(child, upvals)

		case OpVararg:
			b := int(instr.B())
			n := b - 1
			if b == 0 {
				n = len(frame.varargs)
				frame.top = base + a + n
			}
			for i := 0; i < n; i++ {
				if i < len(frame.varargs) {
					t.regs[base+a+i] = frame.varargs[i]
				} else {
					t.regs[base+a+i] = nil
				}
			}

		default:
			return errResult(runtimeErrorf("unimplemented opcode %s", op)), nil, nil
		}

		// Any of the cases above may have dispatched a metamethod or CALL
		// that grew t.frames and reallocated its backing array, so the
		// pc advance always goes through a freshly fetched frame rather
		// than whatever pointer was live at the top of the loop.
		frame = &t.frames[idx]
		frame.pc++
	}
}

// doCall implements the shared body of OpCall: decode operands, invoke,
// and land the results, or arrange for the suspension/error to
// propagate out of runProto. It takes idx rather than a *DebugFrame
// since callValue can append to t.frames and reallocate its backing
// array; frame is re-fetched after the call before any write through
// it.
func (t *Thread) doCall(ctx context.Context, idx, a, b, c int) callResult {
	frame := &t.frames[idx]
	target, args, ok := t.decodeCallArgs(frame, a, b)
	if !ok {
		return errResult(runtimeErrorf("bad CALL arguments"))
	}
	base := frame.base
	want := c - 1
	r := t.callValue(ctx, target, args, want)
	frame = &t.frames[idx]
	if r.isSuspend() {
		frame.pc++
		frame.state = &luaContinuation{destReg: a, wantResults: want}
		return r
	}
	if r.kind != resultOk {
		return r
	}
	placeResults(t.regs, base+a, want, r.values)
	if want < 0 {
		frame.top = base + a + len(r.values)
	}
	return okResult()
}

func (t *Thread) decodeCallArgs(frame *DebugFrame, a, b int) (Value, []Value, bool) {
	base := frame.base
	target := t.regs[base+a]
	var args []Value
	if b == 0 {
		args = append([]Value{}, t.regs[base+a+1:frame.top]...)
	} else {
		args = append([]Value{}, t.regs[base+a+1:base+a+b]...)
	}
	return target, args, true
}

// jmpCloseIfNeeded implements JMP's optional upvalue-closing form: when
// A > 0, the jump also closes every open upvalue at register A-1 and
// above (used to exit a block containing captured locals).
func (t *Thread) jmpCloseIfNeeded(frame *DebugFrame, a int) {
	if a > 0 {
		t.closeUpvalues(frame, frame.base+a-1)
	}
}

func arithTagMethod(op OpCode) TagMethod {
	switch op {
	case OpAdd:
		return TagMethodAdd
	case OpSub:
		return TagMethodSub
	case OpMul:
		return TagMethodMul
	case OpDiv:
		return TagMethodDiv
	case OpMod:
		return TagMethodMod
	case OpPow:
		return TagMethodPow
	default:
		return TagMethodAdd
	}
}

func (t *Thread) compareOp(ctx context.Context, op OpCode, a, b Value) (bool, error) {
	switch op {
	case OpEq:
		return t.equals(ctx, a, b)
	case OpLt:
		return t.less(ctx, a, b, false)
	default:
		return t.less(ctx, a, b, true)
	}
}

// fbToInt decodes NEWTABLE's "floating byte" size hints: values below 8
// are literal, values at or above it are (mantissa | 8) * 2^(exponent),
// exactly as lobject.c's luaO_fb2int, giving 8 bits of precision across
// a wide range without needing a full operand.
func fbToInt(x uint8) int {
	if x < 8 {
		return int(x)
	}
	e := (x >> 3) - 1
	return int((x&7)+8) << e
}

// forNumbers coerces FORPREP's three control values to numbers and
// checks the step is non-zero (spec §4.2, numeric for).
func forNumbers(init, limit, step Value) (float64, float64, float64, error) {
	i, ok1 := ToNumber(init)
	l, ok2 := ToNumber(limit)
	s, ok3 := ToNumber(step)
	if !ok1 || !ok2 || !ok3 {
		return 0, 0, 0, runtimeErrorf("'for' initial value must be a number")
	}
	if s == 0 {
		return 0, 0, 0, runtimeErrorf("'for' step is zero")
	}
	return i, l, s, nil
}
