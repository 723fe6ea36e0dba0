// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// blockCacheCapacity is the fixed per-archive cache size named in §3/§4.3:
// the cache stabilises at this many resident blocks regardless of how many
// distinct blocks have been requested over the archive's lifetime.
const blockCacheCapacity = 32

type cachedBlock struct {
	epoch int
	data  []byte
}

// blockCache maps block index to decoded bytes with capacity-bounded,
// epoch-ordered eviction. At most one loader runs per block index: a miss
// holds the cache's single lock across the loader call, favouring
// correctness over intra-archive parallelism (per the Design Notes — block
// reads are I/O bound anyway).
type blockCache struct {
	mu      sync.Mutex
	store   *lru.Cache[int, *cachedBlock]
	counter int
}

func newBlockCache() *blockCache {
	// Over-provision the backing LRU so our own epoch-based eviction (not
	// the library's recency policy) is what actually enforces the cap.
	store, _ := lru.New[int, *cachedBlock](blockCacheCapacity * 4)
	return &blockCache{store: store}
}

// get returns the decoded bytes for blockIndex, invoking loader on a miss.
func (c *blockCache) get(blockIndex int, loader func(int) ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.store.Get(blockIndex); ok {
		return b.data, nil
	}

	data, err := loader(blockIndex)
	if err != nil {
		return nil, err
	}

	c.store.Add(blockIndex, &cachedBlock{epoch: c.counter, data: data})
	c.counter++

	c.trimLocked()
	return data, nil
}

func (c *blockCache) trimLocked() {
	for c.store.Len() > blockCacheCapacity {
		var (
			oldestKey   int
			oldestEpoch int
			found       bool
		)
		for _, key := range c.store.Keys() {
			b, ok := c.store.Peek(key)
			if !ok {
				continue
			}
			if !found || b.epoch < oldestEpoch {
				oldestKey, oldestEpoch, found = key, b.epoch, true
			}
		}
		if !found {
			return
		}
		c.store.Remove(oldestKey)
	}
}

// len reports the number of resident blocks, for tests.
func (c *blockCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}
