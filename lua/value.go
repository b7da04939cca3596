// Copyright 2024 The zb Authors
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Value is a Lua value. It is one of:
//
//   - nil
//   - bool
//   - float64 (a Lua number; Lua 5.2 has no separate integer subtype)
//   - *String
//   - *Table
//   - a Closure (goClosure or *luaClosure)
//   - *Userdata
//   - *Thread
type Value = any

// Type is an enumeration of Lua data types, in the order of lua_type's
// constants in the C API but without light userdata, so the values from
// TypeNumber on are one less than their C API counterparts.
type Type int

const (
	TypeNil Type = iota
	TypeBoolean
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
	TypeUserdata
	TypeThread
)

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeUserdata:
		return "userdata"
	case TypeThread:
		return "thread"
	default:
		return fmt.Sprintf("lua.Type(%d)", int(t))
	}
}

// TypeOf returns the dynamic [Type] of a [Value].
func TypeOf(v Value) Type {
	switch v.(type) {
	case nil:
		return TypeNil
	case bool:
		return TypeBoolean
	case float64:
		return TypeNumber
	case *String:
		return TypeString
	case *Table:
		return TypeTable
	case *Userdata:
		return TypeUserdata
	case *Thread:
		return TypeThread
	default:
		if _, ok := v.(closure); ok {
			return TypeFunction
		}
		panic(fmt.Sprintf("lua: unhandled value type %T", v))
	}
}

// TypeName returns the name reported to Lua code for the given value,
// honouring a "__name" metafield on tables and userdata (spec §7).
func (state *LuaState) TypeName(v Value) string {
	if name := state.customTypeName(v); name != "" {
		return name
	}
	return TypeOf(v).String()
}

func (state *LuaState) customTypeName(v Value) string {
	mt := state.metatableOf(v)
	if mt == nil {
		return ""
	}
	switch v.(type) {
	case *Table, *Userdata:
		if n := mt.rawGetStr("__name"); n != nil {
			if s, ok := n.(*String); ok {
				return s.s
			}
		}
	}
	return ""
}

// Truthy reports whether v is true in a Lua boolean context: everything
// except nil and false is truthy.
func Truthy(v Value) bool {
	if v == nil {
		return false
	}
	b, isBool := v.(bool)
	return !isBool || b
}

// RawEqual reports whether two values are equal without invoking the
// "__eq" metamethod.
func RawEqual(a, b Value) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case bool:
		bb, ok := b.(bool)
		return ok && a == bb
	case float64:
		bb, ok := b.(float64)
		return ok && a == bb
	case *String:
		bb, ok := b.(*String)
		return ok && a.Equal(bb)
	default:
		return a == b
	}
}

// compareIdentity provides a total, deterministic ordering over values
// of the same reference type by their identity; it has no Lua-visible
// meaning.
func compareIdentity(a, b Value) int {
	ai, bi := identityOf(a), identityOf(b)
	return cmp.Compare(ai, bi)
}

// identity is a small helper interface implemented by every heap type so
// that table hashing (and so `next`) and `tostring` have a stable handle
// to hash or print, without exposing a real Go pointer.
type identity interface {
	id() uuid.UUID
}

func identityOf(v Value) uuid.UUID {
	if h, ok := v.(identity); ok {
		return h.id()
	}
	return uuid.Nil
}

// ToNumber converts v to a float64 following Lua's coercion rules: a
// number converts to itself, and a string convertible to a number
// converts following §3.4.3 of the Lua manual.
func ToNumber(v Value) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case *String:
		return parseNumber(v.s)
	default:
		return 0, false
	}
}

// parseNumber parses s as a Lua numeral (decimal or 0x-hex, optionally
// with leading/trailing whitespace and a sign).
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	rest := s
	if len(rest) > 0 && (rest[0] == '+' || rest[0] == '-') {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	var f float64
	var err error
	if len(rest) > 2 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		f, err = strconv.ParseFloat(rest, 64)
		if err != nil {
			// Go's ParseFloat requires a "p" exponent for hex floats;
			// Lua allows a bare hex integer literal too.
			var n uint64
			n, err = strconv.ParseUint(rest[2:], 16, 64)
			if err != nil {
				return 0, false
			}
			f = float64(n)
		}
	} else {
		f, err = strconv.ParseFloat(rest, 64)
		if err != nil {
			return 0, false
		}
	}
	if neg {
		f = -f
	}
	return f, true
}

// NumberToString renders a Lua number the way tostring/print do: integral
// floats print without a fractional part, matching PUC-Lua's "%.14g".
func NumberToString(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}

// ToString converts v to its default textual representation, without
// consulting "__tostring". Numbers and strings render as Lua's tostring
// would; other types render as "typename: <id>".
func (state *LuaState) ToString(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return NumberToString(v)
	case *String:
		return v.s
	default:
		name := state.TypeName(v)
		id := identityOf(v)
		if id == uuid.Nil {
			return name
		}
		return fmt.Sprintf("%s: %s", name, id)
	}
}
