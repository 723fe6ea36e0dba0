// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"os"
	"testing"
	"time"
)

func TestFormatHexUint16RoundTrip(t *testing.T) {
	cases := []uint16{0x0000, 0x0059, 0xffff, 0x0a0d}
	for _, c := range cases {
		s := formatHexUint16(c)
		v, err := parseHexUint64(s)
		if err != nil {
			t.Fatalf("parseHexUint64(%q): %v", s, err)
		}
		if uint16(v) != c {
			t.Errorf("round trip %#x -> %q -> %#x", c, s, v)
		}
	}
}

func TestPathCacheLoadMissingFileIsMiss(t *testing.T) {
	// Without ever saving a cache, a load attempt must report a miss rather
	// than erroring or fabricating an empty result.
	_, ok := loadPathCache(t.TempDir(), DestinyRiseOfIron, PlatformWin32)
	if ok {
		t.Errorf("expected cache miss when no package_cache.json has been written")
	}
}

func TestPathCacheRebuildsAfterRootDirMtimeAdvances(t *testing.T) {
	root := t.TempDir()
	paths := map[uint16]string{0x0100: "w64_common_en_0100_0.pkg"}

	savePathCache(root, DestinyRiseOfIron, PlatformWin32, paths)

	if _, ok := loadPathCache(root, DestinyRiseOfIron, PlatformWin32); !ok {
		t.Fatalf("expected cache hit immediately after save")
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(root, future, future); err != nil {
		t.Fatalf("os.Chtimes: %v", err)
	}

	if _, ok := loadPathCache(root, DestinyRiseOfIron, PlatformWin32); ok {
		t.Errorf("expected cache miss after root directory mtime advanced past the cache timestamp")
	}
}
