// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

package sets

import (
	"slices"
	"testing"
)

func TestBitAddHasDelete(t *testing.T) {
	var s Bit
	if got := s.Has(3); got {
		t.Errorf("empty Bit.Has(3) = %t; want false", got)
	}
	s.Add(3, 130, 0)
	for _, x := range []uint{3, 130, 0} {
		if !s.Has(x) {
			t.Errorf("Bit.Has(%d) = false after Add; want true", x)
		}
	}
	if got, want := s.Len(), 3; got != want {
		t.Errorf("Bit.Len() = %d; want %d", got, want)
	}
	s.Delete(130)
	if s.Has(130) {
		t.Error("Bit.Has(130) = true after Delete; want false")
	}
	if got, want := s.Len(), 2; got != want {
		t.Errorf("Bit.Len() = %d after Delete; want %d", got, want)
	}
}

func TestBitDeleteAbsent(t *testing.T) {
	var s Bit
	s.Delete(5) // must not panic on a word that was never allocated
	if got := s.Len(); got != 0 {
		t.Errorf("Bit.Len() = %d; want 0", got)
	}
}

func TestNewBit(t *testing.T) {
	s := NewBit(1, 2, 3)
	if got, want := s.Len(), 3; got != want {
		t.Errorf("NewBit(1, 2, 3).Len() = %d; want %d", got, want)
	}
}

func TestBitReversed(t *testing.T) {
	s := NewBit(2, 65, 5, 64)
	var got []uint
	for x := range s.Reversed() {
		got = append(got, x)
	}
	want := []uint{65, 64, 5, 2}
	if !slices.Equal(got, want) {
		t.Errorf("Bit.Reversed() = %v; want %v", got, want)
	}
}
