// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Package sets provides the bitmap set this package's interpreter uses
// to track open upvalue register indices per call frame.
package sets

import (
	"iter"
	"math/bits"
	"slices"
)

const bitWordSize = 64

// Bit is a bitmap set of small non-negative integers with O(1) lookup,
// insertion, and deletion. Register indices for open upvalues and
// to-be-closed slots cluster densely near the top of the stack, so a
// bitmap is a better fit than a hash set.
type Bit struct {
	words []uint64
}

// NewBit returns a new bitmap set that contains elem.
func NewBit(elem ...uint) *Bit {
	s := new(Bit)
	s.Add(elem...)
	return s
}

// Add adds the arguments to the set.
func (s *Bit) Add(elem ...uint) {
	for _, x := range elem {
		s.add(x)
	}
}

func (s *Bit) add(x uint) {
	word := x / bitWordSize
	if int(word) >= len(s.words) {
		s.words = slices.Grow(s.words, int(word)+1-len(s.words))
		s.words = s.words[:word+1]
	}
	s.words[word] |= 1 << (x % bitWordSize)
}

// Delete removes x from the set.
func (s *Bit) Delete(x uint) {
	word := x / bitWordSize
	if int(word) >= len(s.words) {
		return
	}
	s.words[word] &^= 1 << (x % bitWordSize)
}

// Has reports whether x is in the set.
func (s *Bit) Has(x uint) bool {
	word := x / bitWordSize
	if int(word) >= len(s.words) {
		return false
	}
	return s.words[word]&(1<<(x%bitWordSize)) != 0
}

// Len returns the number of elements in the set.
func (s *Bit) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Reversed iterates over the elements of the set from largest to
// smallest, the order in which upvalues above a given stack index must
// be closed (innermost, i.e. highest register, first).
func (s *Bit) Reversed() iter.Seq[uint] {
	return func(yield func(uint) bool) {
		for wi := len(s.words) - 1; wi >= 0; wi-- {
			w := s.words[wi]
			for w != 0 {
				bit := 63 - bits.LeadingZeros64(w)
				if !yield(uint(wi)*bitWordSize + uint(bit)) {
					return
				}
				w &^= 1 << bit
			}
		}
	}
}
