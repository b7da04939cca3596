// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import "github.com/google/uuid"

// Userdata is an opaque Go value exposed to Lua code, optionally with a
// metatable giving it Lua-visible behavior (spec §3).
type Userdata struct {
	uid       uuid.UUID
	Value     any
	metatable *Table
}

// NewUserdata wraps v as a fresh Userdata with no metatable.
func NewUserdata(v any) *Userdata {
	return &Userdata{uid: uuid.New(), Value: v}
}

func (u *Userdata) id() uuid.UUID { return u.uid }

// Metatable returns the userdata's metatable, or nil.
func (u *Userdata) Metatable() *Table { return u.metatable }

// SetMetatable installs mt as the userdata's metatable.
func (u *Userdata) SetMetatable(mt *Table) { u.metatable = mt }
