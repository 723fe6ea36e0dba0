// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import "testing"

func TestNewTag32RoundTrip(t *testing.T) {
	cases := []struct {
		pkgID       uint16
		entryIndex  uint16
	}{
		{0x0001, 0},
		{0x00ff, 1234},
		{0x0a0d, 8191},
	}

	for _, c := range cases {
		tag := NewTag32(c.pkgID, c.entryIndex)
		if got := tag.PkgID(); got != c.pkgID {
			t.Errorf("NewTag32(%#x, %d).PkgID() = %#x, want %#x", c.pkgID, c.entryIndex, got, c.pkgID)
		}
		if got := tag.EntryIndex(); got != c.entryIndex {
			t.Errorf("NewTag32(%#x, %d).EntryIndex() = %d, want %d", c.pkgID, c.entryIndex, got, c.entryIndex)
		}
		if !tag.IsValid() {
			t.Errorf("NewTag32(%#x, %d) = %#x is not valid", c.pkgID, c.entryIndex, uint32(tag))
		}
	}
}

func TestTag32EntryIndexWraps(t *testing.T) {
	tag := NewTag32(1, 8192+5)
	if got, want := tag.EntryIndex(), uint16(5); got != want {
		t.Errorf("entry index did not wrap mod 8192: got %d want %d", got, want)
	}
}

func TestTagNoneIsNotValid(t *testing.T) {
	if TagNone.IsValid() {
		t.Errorf("TagNone must never satisfy IsValid")
	}
	if !TagNone.IsNone() {
		t.Errorf("TagNone.IsNone() = false")
	}
}

func TestTag32StringFlip(t *testing.T) {
	old := FlipTagFormat
	defer func() { FlipTagFormat = old }()

	tag := NewTag32(0x0001, 0x0002)

	FlipTagFormat = false
	plain := tag.String()

	FlipTagFormat = true
	flipped := tag.String()

	if plain == flipped {
		t.Errorf("expected FlipTagFormat to change rendering, got %q both times", plain)
	}

	parsedPlain, err := ParseTag32(plain)
	if err != nil {
		t.Fatalf("ParseTag32(%q) failed while flipped: %v", plain, err)
	}
	if parsedPlain != tag {
		t.Errorf("ParseTag32(%q) under flip = %#x, want %#x", plain, uint32(parsedPlain), uint32(tag))
	}
}

func TestTag64RoundTrip(t *testing.T) {
	a, err := ParseTag64("00000000deadbeef")
	if err != nil {
		t.Fatalf("ParseTag64: %v", err)
	}
	if a.IsNone() {
		t.Errorf("parsed tag64 should not be None")
	}
	if got, want := a.String(), "00000000deadbeef"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTag64NoneSentinel(t *testing.T) {
	if !Tag64None.IsNone() {
		t.Errorf("Tag64None.IsNone() = false")
	}
}

func TestLooksLikeArchiveTag(t *testing.T) {
	if TagNone.LooksLikeArchiveTag() {
		t.Errorf("TagNone must not look like an archive tag")
	}
	inRange := NewTag32(0x0100, 1)
	if !inRange.LooksLikeArchiveTag() {
		t.Errorf("tag with pkgID 0x0100 should look like an archive tag")
	}
}
