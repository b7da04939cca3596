// Copyright 2024 The zb Authors
// Copyright 2024 lua52vm Authors
// SPDX-License-Identifier: MIT

package lua

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// metaFlag bits cache the *absence* of a metamethod on a table, so the
// interpreter's fast paths (arithmetic, index, newindex, ...) can skip a
// metatable lookup entirely once they have observed the method is
// missing (spec §3, "flags byte caching the absence of common
// metamethods").
type metaFlag uint8

const (
	flagNoIndex metaFlag = 1 << iota
	flagNoNewIndex
	flagNoLen
	flagNoEq
	flagNoCall
)

// node is one slot of a Table's open-addressed hash part. A nil key
// marks an empty slot; next is 1-based (0 means "end of chain") so the
// zero value of node is a valid empty slot.
type node struct {
	key, val Value
	next     int // 1-based index into Table.hash, or 0
}

// Table is Lua's hybrid array+hash table (spec §3). Keys 1..len(array)
// with a non-nil value live in the array part; every other key lives in
// the open-addressed hash part.
type Table struct {
	uid       uuid.UUID
	array     []Value
	hash      []node
	lastFree  int // 1-based; any free position is at index < lastFree, or 0 if full
	metatable *Table
	flags     metaFlag
	weakMode  weakMode
}

type weakMode uint8

const (
	weakNone weakMode = 0
	weakKeys weakMode = 1 << iota
	weakValues
)

// NewTable returns an empty table. narr and nrec are size hints for the
// array and hash parts respectively (decoded from NEWTABLE's operands
// by the interpreter); either may be zero.
func NewTable(narr, nrec int) *Table {
	t := &Table{uid: uuid.New()}
	if narr > 0 {
		t.array = make([]Value, narr)
	}
	if nrec > 0 {
		t.resizeHash(nrec)
	}
	return t
}

func (t *Table) id() uuid.UUID { return t.uid }

// Metatable returns the table's metatable, or nil.
func (t *Table) Metatable() *Table { return t.metatable }

// SetMetatable installs mt as the table's metatable and resets the
// absent-metamethod fast-path flags.
func (t *Table) SetMetatable(mt *Table) {
	t.metatable = mt
	t.flags = 0
}

// normalizeKey canonicalises integer-valued float keys to keep the
// invariant that 1.0 and 1 address the same slot (spec §4.1).
func normalizeKey(key Value) (Value, error) {
	switch k := key.(type) {
	case nil:
		return nil, errTableIndexNil
	case float64:
		if math.IsNaN(k) {
			return nil, errTableIndexNaN
		}
		if i, ok := floatToArrayIndex(k); ok {
			return float64(i), nil
		}
		return k, nil
	default:
		return key, nil
	}
}

// floatToArrayIndex reports whether f has an exact integer value that
// fits an int, returning that int. Negative integers are accepted;
// negative zero is not.
func floatToArrayIndex(f float64) (int, bool) {
	i := int(f)
	if float64(i) != f || math.Signbit(f) && f == 0 {
		return 0, false
	}
	return i, true
}

var (
	errTableIndexNil = fmt.Errorf("table index is nil")
	errTableIndexNaN = fmt.Errorf("table index is NaN")
)

// RawGet returns t[key] without invoking any metamethod. A nil or NaN
// key simply returns nil, matching rawget's leniency (only rawset
// rejects them).
func (t *Table) RawGet(key Value) Value {
	if t == nil {
		return nil
	}
	if f, ok := key.(float64); ok {
		if i, ok := floatToArrayIndex(f); ok {
			key = float64(i)
		}
	}
	if f, ok := key.(float64); ok {
		if i, ok := floatToArrayIndex(f); ok && i >= 1 && i <= len(t.array) {
			return t.array[i-1]
		}
	}
	if t.hash == nil {
		return nil
	}
	return t.findValue(key)
}

// rawGetStr is a convenience used by the metamethod dispatcher.
func (t *Table) rawGetStr(s string) Value {
	if t == nil {
		return nil
	}
	return t.findValue(&String{s: s, hash: fnv1a32(s)})
}

func (t *Table) findValue(key Value) Value {
	idx := t.findSlot(key)
	if idx < 0 {
		return nil
	}
	return t.hash[idx].val
}

// RawSet sets t[key] = value without invoking any metamethod. It
// returns an error for a nil or NaN key (spec §4.1).
func (t *Table) RawSet(key, value Value) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	if f, ok := key.(float64); ok {
		if i, ok := floatToArrayIndex(f); ok {
			if i >= 1 && i <= len(t.array) {
				t.array[i-1] = value
				return nil
			}
			if i == len(t.array)+1 && value != nil {
				t.array = append(t.array, value)
				t.migrateFromHash()
				return nil
			}
		}
	}

	if value == nil {
		t.deleteHash(key)
		return nil
	}
	t.setHash(key, value)
	return nil
}

// migrateFromHash pulls any keys now covered by a just-grown array part
// out of the hash part.
func (t *Table) migrateFromHash() {
	for {
		key := float64(len(t.array) + 1)
		v := t.findValue(key)
		if v == nil {
			return
		}
		t.deleteHash(key)
		t.array = append(t.array, v)
	}
}

// mainPositionIdx returns the 0-based index of key's main position, or
// -1 if the hash part has no slots yet.
func (t *Table) mainPositionIdx(key Value) int {
	if len(t.hash) == 0 {
		return -1
	}
	return int(hashKey(key) % uint64(len(t.hash)))
}

func valuesEqualAsKeys(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return RawEqual(a, b)
}

// hashKey computes the bucket hash for a key. Strings reuse their
// cached FNV hash; numbers hash their IEEE-754 bit pattern (with -0
// folded to +0 so 0 and -0 collide, matching Lua); every other type
// hashes by heap identity.
func hashKey(key Value) uint64 {
	switch k := key.(type) {
	case *String:
		return uint64(k.hash)
	case float64:
		if k == 0 {
			k = 0 // normalize -0
		}
		return math.Float64bits(k)
	case bool:
		if k {
			return 1
		}
		return 0
	default:
		id := identityOf(k)
		var h uint64
		for i := 0; i < 8; i++ {
			h = h<<8 | uint64(id[i])
		}
		return h
	}
}

// setHash inserts or overwrites key in the hash part, growing and
// rehashing if the table is full, per the collision-resolution scheme
// in spec §3/§4.1: an inserted key that collides with an occupied main
// position bumps the occupant of that slot to a free slot instead, if
// that occupant is not itself anchored there.
func (t *Table) setHash(key, value Value) {
	if idx := t.findSlot(key); idx >= 0 {
		t.hash[idx].val = value
		return
	}
	if len(t.hash) == 0 {
		t.rehash(1)
	}

	mpIdx := t.mainPositionIdx(key)
	if t.hash[mpIdx].key == nil {
		t.hash[mpIdx] = node{key: key, val: value, next: 0}
		return
	}

	free, ok := t.getFreePos()
	if !ok {
		// No free slot anywhere: grow and start this insertion over from
		// scratch, exactly as luaH_newkey does, rather than continuing
		// with indices computed against the pre-growth layout.
		t.rehash(1)
		t.setHash(key, value)
		return
	}

	if t.mainPositionIdx(t.hash[mpIdx].key) != mpIdx {
		// The occupant of our main position arrived via someone else's
		// chain; evict it to the free slot and reclaim the main position
		// for the new, rightfully-anchored key.
		evicted := t.hash[mpIdx]
		anchorIdx := t.mainPositionIdx(evicted.key)
		t.hash[free] = evicted
		t.relinkChain(anchorIdx, mpIdx, free)
		t.hash[mpIdx] = node{key: key, val: value, next: 0}
		return
	}
	// Collision with a rightfully-anchored key: append to its chain.
	t.hash[free] = node{key: key, val: value, next: t.hash[mpIdx].next}
	t.hash[mpIdx].next = free + 1
}

// findSlot returns the 0-based index of key's node in the hash part, or
// -1 if absent.
func (t *Table) findSlot(key Value) int {
	idx := t.mainPositionIdx(key)
	if idx < 0 {
		return -1
	}
	for {
		n := &t.hash[idx]
		if n.key != nil && valuesEqualAsKeys(n.key, key) {
			return idx
		}
		if n.next == 0 {
			return -1
		}
		idx = n.next - 1
	}
}

// relinkChain walks the chain anchored at t.hash[anchorIdx] and repoints
// the link that used to point at oldIdx (0-based) so it points at
// newIdx (0-based) instead.
func (t *Table) relinkChain(anchorIdx, oldIdx, newIdx int) {
	n := &t.hash[anchorIdx]
	for n.next-1 != oldIdx {
		n = &t.hash[n.next-1]
	}
	n.next = newIdx + 1
}

// getFreePos scans backward from lastFree for an empty slot (Lua's
// classic "last free position" scheme), reporting false if the hash
// part is entirely full.
func (t *Table) getFreePos() (int, bool) {
	for t.lastFree > 0 {
		t.lastFree--
		if t.hash[t.lastFree].key == nil {
			return t.lastFree, true
		}
	}
	return 0, false
}

func (t *Table) deleteHash(key Value) {
	idx := t.findSlot(key)
	if idx < 0 {
		return
	}
	// Leave the key as a tombstone so chains through it stay intact;
	// RawGet and Next treat a nil value as absent regardless.
	t.hash[idx].val = nil
}

// rehash grows the hash part to the next power of two capable of holding
// at least the current occupancy plus extra, and reinserts every
// occupied entry with a non-nil value.
func (t *Table) rehash(extra int) {
	occupied := 0
	for _, n := range t.hash {
		if n.key != nil && n.val != nil {
			occupied++
		}
	}
	t.resizeHash(occupied + extra)
}

func (t *Table) resizeHash(minSize int) {
	size := 1
	for size < minSize {
		size *= 2
	}
	if size < 1 {
		size = 1
	}
	old := t.hash
	t.hash = make([]node, size)
	t.lastFree = size
	for i := range t.hash {
		t.hash[i].next = 0
	}
	for _, n := range old {
		if n.key != nil && n.val != nil {
			t.setHash(n.key, n.val)
		}
	}
}

// Len implements the "#" operator: any border i such that t[i] != nil
// and t[i+1] == nil (spec §4.1). For a table with a nil hole in its
// array part, binary search finds a border inside the array; otherwise
// the search continues into the hash part by doubling.
func (t *Table) Len() int {
	n := len(t.array)
	if n > 0 && t.array[n-1] == nil {
		lo, hi := 0, n
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if t.array[mid-1] == nil {
				hi = mid
			} else {
				lo = mid
			}
		}
		return lo
	}
	if t.RawGet(float64(n+1)) == nil {
		return n
	}
	// Unbounded search in the hash part: double j until t[j] is nil.
	i, j := n+1, n+2
	for t.RawGet(float64(j)) != nil {
		i = j
		if j > math.MaxInt32/2 {
			// Degenerate table with holes; fall back to a linear scan.
			for t.RawGet(float64(i)) != nil {
				i++
			}
			return i - 1
		}
		j *= 2
	}
	for j-i > 1 {
		mid := (i + j) / 2
		if t.RawGet(float64(mid)) == nil {
			j = mid
		} else {
			i = mid
		}
	}
	return i
}

// Next implements the `next` iteration contract (spec §4.1): given the
// previous key (nil to start), it returns the following (key, value)
// pair in array-then-hash order, or ok == false at the end.
func (t *Table) Next(key Value) (nextKey, nextValue Value, ok bool, err error) {
	start := 0
	if key != nil {
		key, err = normalizeKey(key)
		if err != nil {
			return nil, nil, false, err
		}
		if f, isNum := key.(float64); isNum {
			if i, isIdx := floatToArrayIndex(f); isIdx && i >= 1 && i <= len(t.array) {
				start = i
				goto scanArray
			}
		}
		hi := t.hashSlotOf(key)
		if hi < 0 {
			return nil, nil, false, fmt.Errorf("invalid key to 'next'")
		}
		return t.scanHash(hi + 1)
	}

scanArray:
	for i := start; i < len(t.array); i++ {
		if t.array[i] != nil {
			return float64(i + 1), t.array[i], true, nil
		}
	}
	return t.scanHash(0)
}

func (t *Table) hashSlotOf(key Value) int {
	return t.findSlot(key)
}

func (t *Table) scanHash(from int) (Value, Value, bool, error) {
	for i := from; i < len(t.hash); i++ {
		if t.hash[i].key != nil && t.hash[i].val != nil {
			return t.hash[i].key, t.hash[i].val, true, nil
		}
	}
	return nil, nil, false, nil
}

// hasMetamethod reports whether the table's metatable is known (via the
// fast-path flags) to define the given event, refreshing the flag cache
// on first query.
func (t *Table) hasMetamethod(flag metaFlag, event string) bool {
	if t.metatable == nil {
		return false
	}
	if t.flags&flag != 0 {
		return false
	}
	if t.metatable.rawGetStr(event) != nil {
		return true
	}
	t.flags |= flag
	return false
}
