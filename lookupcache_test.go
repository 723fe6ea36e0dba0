// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import "testing"

func TestLookupCacheKeyVariesByGenerationAndPlatform(t *testing.T) {
	a := lookupCacheKey("/root", DestinyRiseOfIron, PlatformWin32)
	b := lookupCacheKey("/root", Destiny2BeyondLight, PlatformWin64)
	if a == b {
		t.Errorf("expected different cache keys for different (generation, platform) pairs")
	}
}

func TestLoadLookupIndexMissingIsMiss(t *testing.T) {
	_, ok := loadLookupIndex(t.TempDir(), DestinyRiseOfIron, PlatformWin32)
	if ok {
		t.Errorf("expected cache miss when no lookup cache file has been written")
	}
}
