// Copyright (C) 1994-2013 Lua.org, PUC-Rio.
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"context"
	"math"
)

// TagMethod enumerates the metamethod events Lua 5.2 defines. Grounded
// on the reference implementation's ltm.h ordering, trimmed to the
// events that exist in 5.2 (no bitwise or __idiv/__close, which are
// later additions).
type TagMethod uint8

const (
	TagMethodIndex TagMethod = iota
	TagMethodNewIndex
	TagMethodGC
	TagMethodMode
	TagMethodLen
	TagMethodEq
	TagMethodAdd
	TagMethodSub
	TagMethodMul
	TagMethodDiv
	TagMethodMod
	TagMethodPow
	TagMethodUnm
	TagMethodLt
	TagMethodLe
	TagMethodConcat
	TagMethodCall
	tagMethodCount
)

var tagMethodNames = [tagMethodCount]string{
	TagMethodIndex: "__index", TagMethodNewIndex: "__newindex", TagMethodGC: "__gc",
	TagMethodMode: "__mode", TagMethodLen: "__len", TagMethodEq: "__eq",
	TagMethodAdd: "__add", TagMethodSub: "__sub", TagMethodMul: "__mul",
	TagMethodDiv: "__div", TagMethodMod: "__mod", TagMethodPow: "__pow",
	TagMethodUnm: "__unm", TagMethodLt: "__lt", TagMethodLe: "__le",
	TagMethodConcat: "__concat", TagMethodCall: "__call",
}

func (tm TagMethod) String() string { return tagMethodNames[tm] }

// maxIndexChain is the cycle-detection limit for __index/__newindex
// chains (spec §4.1: "loop limit 2000 -> 'loop in gettable'"); a
// __newindex chain that reaches it reports "loop in settable".
const maxIndexChain = 2000

// metamethod looks up event on v's metatable, returning nil if v has no
// metatable or the metatable has no such field.
func (state *LuaState) metamethod(v Value, event TagMethod) Value {
	mt := state.metatableOf(v)
	if mt == nil {
		return nil
	}
	return mt.rawGetStr(tagMethodNames[event])
}

// callMetaSync invokes a metamethod function synchronously: metamethod
// dispatch in this implementation cannot itself be suspended by a
// nested yield (an intentional scope reduction from full "yield from
// anywhere", recorded in DESIGN.md). Ordinary calls made directly by
// Lua bytecode (the CALL/TAILCALL opcodes) are unaffected and fully
// yieldable.
func (t *Thread) callMetaSync(ctx context.Context, fn Value, args ...Value) ([]Value, error) {
	r := noYield(t.state, t, nil, func() callResult {
		return t.callValue(ctx, fn, args, -1)
	})
	return r.values, r.asError()
}

// index implements GETTABLE/GETTABUP/SELF's table-or-metamethod lookup,
// including the raw fast path and __index chaining.
func (t *Thread) index(ctx context.Context, obj Value, key Value) (Value, error) {
	state := t.state
	for i := 0; i < maxIndexChain; i++ {
		if tbl, ok := obj.(*Table); ok {
			if v := tbl.RawGet(key); v != nil {
				return v, nil
			}
			h := state.metamethod(obj, TagMethodIndex)
			if h == nil {
				return nil, nil
			}
			if isCallable(h) {
				results, err := t.callMetaSync(ctx, h, obj, key)
				if err != nil {
					return nil, err
				}
				return first(results), nil
			}
			obj = h
			continue
		}
		h := state.metamethod(obj, TagMethodIndex)
		if h == nil {
			return nil, runtimeErrorf("attempt to index a %s value", state.TypeName(obj))
		}
		if isCallable(h) {
			results, err := t.callMetaSync(ctx, h, obj, key)
			if err != nil {
				return nil, err
			}
			return first(results), nil
		}
		obj = h
	}
	return nil, runtimeErrorf("loop in gettable")
}

// newindex implements SETTABLE/SETTABUP's table-or-metamethod store.
func (t *Thread) newindex(ctx context.Context, obj Value, key, val Value) error {
	state := t.state
	for i := 0; i < maxIndexChain; i++ {
		if tbl, ok := obj.(*Table); ok {
			if tbl.RawGet(key) != nil {
				return tbl.RawSet(key, val)
			}
			h := state.metamethod(obj, TagMethodNewIndex)
			if h == nil {
				return tbl.RawSet(key, val)
			}
			if isCallable(h) {
				_, err := t.callMetaSync(ctx, h, obj, key, val)
				return err
			}
			obj = h
			continue
		}
		h := state.metamethod(obj, TagMethodNewIndex)
		if h == nil {
			return runtimeErrorf("attempt to index a %s value", state.TypeName(obj))
		}
		if isCallable(h) {
			_, err := t.callMetaSync(ctx, h, obj, key, val)
			return err
		}
		obj = h
	}
	return runtimeErrorf("loop in settable")
}

func isCallable(v Value) bool {
	_, ok := v.(closure)
	return ok
}

func first(vs []Value) Value {
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// arithBinOp performs a numeric binary operation, falling back to the
// matching metamethod when either operand is not (or does not coerce
// to) a number.
func (t *Thread) arithBinOp(ctx context.Context, tm TagMethod, a, b Value) (Value, error) {
	if af, aok := ToNumber(a); aok {
		if bf, bok := ToNumber(b); bok {
			return arithNumeric(tm, af, bf)
		}
	}
	return t.arithMetamethod(ctx, tm, a, b)
}

func arithNumeric(tm TagMethod, a, b float64) (Value, error) {
	switch tm {
	case TagMethodAdd:
		return a + b, nil
	case TagMethodSub:
		return a - b, nil
	case TagMethodMul:
		return a * b, nil
	case TagMethodDiv:
		return a / b, nil
	case TagMethodMod:
		m := math.Mod(a, b)
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, nil
	case TagMethodPow:
		return math.Pow(a, b), nil
	default:
		return nil, runtimeErrorf("bad arithmetic tag method %v", tm)
	}
}

func (t *Thread) arithMetamethod(ctx context.Context, tm TagMethod, a, b Value) (Value, error) {
	h := t.state.metamethod(a, tm)
	if h == nil {
		h = t.state.metamethod(b, tm)
	}
	if h == nil {
		bad := a
		if _, ok := ToNumber(a); ok {
			bad = b
		}
		return nil, runtimeErrorf("attempt to perform arithmetic on a %s value", t.state.TypeName(bad))
	}
	results, err := t.callMetaSync(ctx, h, a, b)
	if err != nil {
		return nil, err
	}
	return first(results), nil
}

// unm implements UNM: numeric negate, or __unm.
func (t *Thread) unm(ctx context.Context, a Value) (Value, error) {
	if f, ok := ToNumber(a); ok {
		return -f, nil
	}
	h := t.state.metamethod(a, TagMethodUnm)
	if h == nil {
		return nil, runtimeErrorf("attempt to perform arithmetic on a %s value", t.state.TypeName(a))
	}
	results, err := t.callMetaSync(ctx, h, a, a)
	if err != nil {
		return nil, err
	}
	return first(results), nil
}

// length implements LEN: table/string raw length, or __len.
func (t *Thread) length(ctx context.Context, a Value) (Value, error) {
	switch v := a.(type) {
	case *String:
		return float64(v.Len()), nil
	case *Table:
		if h := t.state.metamethod(a, TagMethodLen); h != nil {
			results, err := t.callMetaSync(ctx, h, a)
			if err != nil {
				return nil, err
			}
			return first(results), nil
		}
		return float64(v.Len()), nil
	default:
		h := t.state.metamethod(a, TagMethodLen)
		if h == nil {
			return nil, runtimeErrorf("attempt to get length of a %s value", t.state.TypeName(a))
		}
		results, err := t.callMetaSync(ctx, h, a)
		if err != nil {
			return nil, err
		}
		return first(results), nil
	}
}

// concat implements CONCAT for a pair of adjacent values; the VM folds
// a run of registers pairwise from the right, as real Lua does.
func (t *Thread) concat(ctx context.Context, a, b Value) (Value, error) {
	as, aok := concatOperand(a)
	bs, bok := concatOperand(b)
	if aok && bok {
		if err := t.state.trackAlloc(int64(len(as) + len(bs))); err != nil {
			return nil, err
		}
		return &String{s: as + bs, hash: fnv1a32(as + bs)}, nil
	}
	h := t.state.metamethod(a, TagMethodConcat)
	if h == nil {
		h = t.state.metamethod(b, TagMethodConcat)
	}
	if h == nil {
		bad := a
		if aok {
			bad = b
		}
		return nil, runtimeErrorf("attempt to concatenate a %s value", t.state.TypeName(bad))
	}
	results, err := t.callMetaSync(ctx, h, a, b)
	if err != nil {
		return nil, err
	}
	return first(results), nil
}

func concatOperand(v Value) (string, bool) {
	switch v := v.(type) {
	case *String:
		return v.s, true
	case float64:
		return NumberToString(v), true
	default:
		return "", false
	}
}

// equals implements EQ, including the __eq fallback, which Lua only
// consults when both operands are tables or both are userdata and raw
// equality already failed.
func (t *Thread) equals(ctx context.Context, a, b Value) (bool, error) {
	if RawEqual(a, b) {
		return true, nil
	}
	ta, tb := TypeOf(a), TypeOf(b)
	if ta != tb || (ta != TypeTable && ta != TypeUserdata) {
		return false, nil
	}
	h := t.state.metamethod(a, TagMethodEq)
	if h == nil {
		h = t.state.metamethod(b, TagMethodEq)
	}
	if h == nil {
		return false, nil
	}
	results, err := t.callMetaSync(ctx, h, a, b)
	if err != nil {
		return false, err
	}
	return Truthy(first(results)), nil
}

// less implements LT (strict=true) and LE (strict=false).
func (t *Thread) less(ctx context.Context, a, b Value, orEqual bool) (bool, error) {
	if af, aok := a.(float64); aok {
		if bf, bok := b.(float64); bok {
			if orEqual {
				return af <= bf, nil
			}
			return af < bf, nil
		}
	}
	if as, aok := a.(*String); aok {
		if bs, bok := b.(*String); bok {
			if orEqual {
				return as.s <= bs.s, nil
			}
			return as.s < bs.s, nil
		}
	}
	tm := TagMethodLt
	if orEqual {
		tm = TagMethodLe
	}
	h := t.state.metamethod(a, tm)
	if h == nil {
		h = t.state.metamethod(b, tm)
	}
	if h == nil {
		ta, tb := t.state.TypeName(a), t.state.TypeName(b)
		if ta == tb {
			return false, runtimeErrorf("attempt to compare two %s values", ta)
		}
		return false, runtimeErrorf("attempt to compare %s with %s", ta, tb)
	}
	results, err := t.callMetaSync(ctx, h, a, b)
	if err != nil {
		return false, err
	}
	return Truthy(first(results)), nil
}

// tostring converts v to a string by calling its __tostring metamethod
// when it has one, falling back to [LuaState.ToString]. The ".."
// operator does not go through it.
func (t *Thread) tostring(ctx context.Context, v Value) (string, error) {
	mt := t.state.metatableOf(v)
	if mt != nil {
		if h := mt.rawGetStr("__tostring"); h != nil {
			results, err := t.callMetaSync(ctx, h, v)
			if err != nil {
				return "", err
			}
			if s, ok := first(results).(*String); ok {
				return s.s, nil
			}
			return t.state.ToString(first(results)), nil
		}
	}
	return t.state.ToString(v), nil
}
