// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// CurrentLookupCacheVersion is written as the first gob value in the lookup
// cache file; a mismatch rejects the cache and triggers a rebuild.
const CurrentLookupCacheVersion = 1

type lookupCacheEnvelope struct {
	Version      int
	EntriesByPkg map[uint16][]EntryHeader
	Tag64        map[uint64]tag64Entry
	NamedTags    []NamedTag
	Tag32To64    map[Tag32]uint64
}

func lookupCacheKey(rootDir string, gen Generation, platform PackagePlatform) string {
	return fmt.Sprintf("%s_%s", gen.ID(), platform.String())
}

func lookupCacheLocation(rootDir string, gen Generation, platform PackagePlatform) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", wrapErr(ErrKindCacheOutdated, err, "resolve executable path")
	}
	name := fmt.Sprintf("lookup_cache_%s.bin", lookupCacheKey(rootDir, gen, platform))
	return filepath.Join(filepath.Dir(exe), name), nil
}

func loadLookupIndex(rootDir string, gen Generation, platform PackagePlatform) (*lookupIndex, bool) {
	loc, err := lookupCacheLocation(rootDir, gen, platform)
	if err != nil {
		return nil, false
	}
	f, err := os.Open(loc)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		log.WithError(err).Warn("lookup cache: unreadable gzip stream, rebuilding")
		return nil, false
	}
	defer gz.Close()

	var env lookupCacheEnvelope
	if err := gob.NewDecoder(gz).Decode(&env); err != nil {
		log.WithError(err).Warn("lookup cache: undecodable, rebuilding")
		return nil, false
	}
	if env.Version != CurrentLookupCacheVersion {
		return nil, false
	}

	return &lookupIndex{
		entriesByPkg: env.EntriesByPkg,
		tag64:        env.Tag64,
		namedTags:    env.NamedTags,
		tag32To64:    env.Tag32To64,
	}, true
}

func saveLookupIndex(rootDir string, gen Generation, platform PackagePlatform, idx *lookupIndex) {
	loc, err := lookupCacheLocation(rootDir, gen, platform)
	if err != nil {
		log.WithError(err).Warn("lookup cache: could not resolve save location")
		return
	}

	f, err := os.Create(loc)
	if err != nil {
		log.WithError(err).Warn("lookup cache: could not create file")
		return
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	idx.mu.RLock()
	env := lookupCacheEnvelope{
		Version:      CurrentLookupCacheVersion,
		EntriesByPkg: idx.entriesByPkg,
		Tag64:        idx.tag64,
		NamedTags:    idx.namedTags,
		Tag32To64:    idx.tag32To64,
	}
	idx.mu.RUnlock()

	if err := gob.NewEncoder(gz).Encode(env); err != nil {
		log.WithError(err).Warn("lookup cache: could not encode")
	}
}
