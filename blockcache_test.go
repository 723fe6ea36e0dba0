// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestBlockCacheLoadsOnMiss(t *testing.T) {
	c := newBlockCache()
	var loads int32

	loader := func(i int) ([]byte, error) {
		atomic.AddInt32(&loads, 1)
		return []byte{byte(i)}, nil
	}

	data, err := c.get(3, loader)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(data) != 1 || data[0] != 3 {
		t.Errorf("get(3) = %v, want [3]", data)
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}

	if _, err := c.get(3, loader); err != nil {
		t.Fatalf("get (cached): %v", err)
	}
	if loads != 1 {
		t.Errorf("second get(3) triggered a reload: loads = %d", loads)
	}
}

func TestBlockCacheEvictsOldestEpoch(t *testing.T) {
	c := newBlockCache()
	loader := func(i int) ([]byte, error) { return []byte{byte(i)}, nil }

	for i := 0; i < blockCacheCapacity+8; i++ {
		if _, err := c.get(i, loader); err != nil {
			t.Fatalf("get(%d): %v", i, err)
		}
	}

	if got := c.len(); got != blockCacheCapacity {
		t.Errorf("cache len = %d, want %d", got, blockCacheCapacity)
	}

	// The earliest-loaded blocks should have been evicted in favor of the
	// most recently loaded ones.
	var reloadedEarly int32
	if _, err := c.get(0, func(i int) ([]byte, error) {
		atomic.AddInt32(&reloadedEarly, 1)
		return []byte{0}, nil
	}); err != nil {
		t.Fatalf("get(0): %v", err)
	}
	if reloadedEarly != 1 {
		t.Errorf("block 0 should have been evicted and reloaded, loads = %d", reloadedEarly)
	}
}

func TestBlockCacheLoaderErrorNotCached(t *testing.T) {
	c := newBlockCache()
	wantErr := fmt.Errorf("boom")

	if _, err := c.get(1, func(int) ([]byte, error) { return nil, wantErr }); err != wantErr {
		t.Fatalf("get error = %v, want %v", err, wantErr)
	}
	if c.len() != 0 {
		t.Errorf("failed load should not be cached, len = %d", c.len())
	}
}

func TestBlockCacheConcurrentGetSameBlock(t *testing.T) {
	c := newBlockCache()
	var loads int32
	var wg sync.WaitGroup

	loader := func(i int) ([]byte, error) {
		atomic.AddInt32(&loads, 1)
		return []byte{byte(i)}, nil
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.get(7, loader); err != nil {
				t.Errorf("get(7): %v", err)
			}
		}()
	}
	wg.Wait()

	if loads != 1 {
		t.Errorf("concurrent get of the same block should load at most once, loads = %d", loads)
	}
}
