// Copyright 2024 The zb Authors
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"github.com/google/uuid"
)

// shortStringLimit is the length below which strings are eligible for
// interning (spec §3: "short strings (length < 32 bytes)").
const shortStringLimit = 32

// internCacheSlots is the number of direct-mapped slots in the string
// intern cache (spec §3: "128-slot direct-mapped cache").
const internCacheSlots = 128

// String is an immutable, hash-cached Lua string value. Two *String
// values with equal bytes are == only if both came through the same
// intern cache slot and did not collide; use [String.Equal] for
// byte-wise comparison, which is what Lua's "==" operator uses.
type String struct {
	s      string
	hash   uint32
	uid    uuid.UUID
	interned bool
}

func (s *String) id() uuid.UUID { return s.uid }

// Equal reports whether s and other have identical bytes.
func (s *String) Equal(other *String) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	return s.hash == other.hash && s.s == other.s
}

// Len returns the number of bytes in the string.
func (s *String) Len() int { return len(s.s) }

// String returns the string's bytes as a Go string.
func (s *String) String() string { return s.s }

// fnv1a32 is the hash function used both for interning and for hash-part
// table keys.
func fnv1a32(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// stringCache is the thread-local (in practice, per-[LuaState], since
// exactly one Lua thread runs at a time — see DESIGN.md) short-string
// intern cache: a 128-slot direct-mapped table keyed by hash&127.
type stringCache struct {
	slots [internCacheSlots]*String
}

// intern returns a *String for s, reusing a cached instance when s is
// short and the cache slot for its hash is empty or already holds an
// equal string. Longer strings get a fresh, uninterned *String; a short
// string whose slot holds a different string gets a new interned
// *String that replaces the old one in the slot.
func (c *stringCache) intern(s string) *String {
	h := fnv1a32(s)
	if len(s) >= shortStringLimit {
		return &String{s: s, hash: h, uid: uuid.New()}
	}
	slot := h & (internCacheSlots - 1)
	if existing := c.slots[slot]; existing != nil && existing.s == s {
		return existing
	}
	str := &String{s: s, hash: h, uid: uuid.New(), interned: true}
	c.slots[slot] = str
	return str
}

// substring returns the byte range s[start:end] (0-indexed, half-open).
// Following spec §3, when the visible fraction exceeds one half the
// backing array is aliased (a Go substring already aliases its parent's
// backing array, so this is automatic); otherwise the bytes are copied
// to avoid keeping a much larger allocation alive.
func (c *stringCache) substring(s *String, start, end int) *String {
	sub := s.s[start:end]
	visibleFraction := float64(len(sub)) / float64(max(len(s.s), 1))
	if visibleFraction <= 0.5 && len(sub) < len(s.s) {
		// Copy so the short substring doesn't pin the long parent string.
		buf := make([]byte, len(sub))
		copy(buf, sub)
		sub = string(buf)
	}
	return c.intern(sub)
}
