// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Fleet is the fleet-wide view over a directory of archives: discovery,
// latest-patch selection per pkg id, a lazily-populated reader map, and the
// aggregated lookup index (§4.7).
type Fleet struct {
	rootDir    string
	gen        Generation
	platform   PackagePlatform

	packagePaths map[uint16]string

	readersMu sync.RWMutex
	readers   map[uint16]Reader
	open      singleflight.Group

	index *lookupIndex
}

type lookupIndex struct {
	mu sync.RWMutex

	entriesByPkg map[uint16][]EntryHeader
	tag64        map[uint64]tag64Entry
	namedTags    []NamedTag
	tag32To64    map[Tag32]uint64
}

type tag64Entry struct {
	Hash32    Tag32
	Reference Tag32
}

// Open discovers archives under rootDir, selects one per pkg id, and builds
// the aggregated lookup index (§4.7 steps 2-4). ctx only bounds the parallel
// index build; it is not retained afterward (§5).
func Open(ctx context.Context, rootDir string, gen Generation, platform PackagePlatform) (*Fleet, error) {
	f := &Fleet{
		rootDir:  rootDir,
		gen:      gen,
		platform: platform,
		readers:  map[uint16]Reader{},
	}

	paths, pathCacheValid := loadPathCache(rootDir, gen, platform)
	if !pathCacheValid {
		walked, err := discoverPackagePaths(rootDir)
		if err != nil {
			return nil, err
		}
		paths = walked
	}
	f.packagePaths = paths

	// The lookup cache is only trusted alongside a valid path cache (§4.8):
	// a stale path cache means the archive set itself may have changed.
	if pathCacheValid {
		if idx, ok := loadLookupIndex(rootDir, gen, platform); ok {
			f.index = idx
			return f, nil
		}
	}

	idx, err := buildLookupIndex(ctx, gen, paths)
	if err != nil {
		return nil, err
	}
	f.index = idx

	savePathCache(rootDir, gen, platform, paths)
	saveLookupIndex(rootDir, gen, platform, idx)

	return f, nil
}

// discoverPackagePaths walks rootDir for *.pkg files, selecting the
// lexicographically greatest patch suffix per archive id (§4.7 step 2,
// §8 "Fleet selection" property).
func discoverPackagePaths(rootDir string) (map[uint16]string, error) {
	var candidates []string
	err := filepath.WalkDir(rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pkg") {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(ErrKindSiblingMissing, err, "walk package root %s", rootDir)
	}
	sort.Strings(candidates)

	best := map[uint16]string{}
	bestPatch := map[uint16]int{}

	for _, path := range candidates {
		pp := ParsePackagePath(path)
		if !strings.HasPrefix(pp.ID, "0x") && !isHexID(pp.ID) {
			continue
		}
		idVal, err := strconv.ParseUint(strings.TrimPrefix(pp.ID, "0x"), 16, 16)
		var pkgID uint16
		if err != nil {
			pkgID = resolvePkgIDFromHeader(path)
		} else {
			pkgID = uint16(idVal)
		}

		patch := int(pp.Patch)
		if prev, ok := bestPatch[pkgID]; ok && patch <= prev {
			continue
		}
		best[pkgID] = path
		bestPatch[pkgID] = patch
	}

	return best, nil
}

func isHexID(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// resolvePkgIDFromHeader is the §4.7 step 2 fallback: when the filename
// segment doesn't parse as an archive id, open the file and read pkg_id from
// its header. Best-effort: a failure here yields pkg id 0, which later loses
// any patch-selection tie to a successfully-resolved archive.
func resolvePkgIDFromHeader(path string) uint16 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	var pkgID uint16
	// The pkg id sits at the same 0x10/0x4 style small offset across every
	// generation's header; callers needing certainty should open with a
	// known Generation instead of relying on this fallback.
	buf := make([]byte, 2)
	if _, err := f.ReadAt(buf, offD2PkgID); err == nil {
		pkgID = uint16(buf[0]) | uint16(buf[1])<<8
	}
	return pkgID
}

// buildLookupIndex opens every selected archive in parallel and projects its
// entries, alias table, and named tags into the aggregated index (§4.7 step
// 3), bounding concurrency to avoid exhausting file descriptors.
func buildLookupIndex(ctx context.Context, gen Generation, paths map[uint16]string) (*lookupIndex, error) {
	idx := &lookupIndex{
		entriesByPkg: map[uint16][]EntryHeader{},
		tag64:        map[uint64]tag64Entry{},
		tag32To64:    map[Tag32]uint64{},
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	for pkgID, path := range paths {
		pkgID, path := pkgID, path
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			r, err := gen.Open(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("fleet: skipping archive that failed to open")
				return nil
			}
			defer r.Close()

			if !r.Language().EnglishOrNone() {
				return nil
			}

			entries := append([]EntryHeader(nil), r.Entries()...)
			hashes := r.Hash64Table()
			named := r.NamedTags()

			mu.Lock()
			idx.entriesByPkg[pkgID] = entries
			for _, h := range hashes {
				idx.tag64[h.Hash64] = tag64Entry{Hash32: h.Hash32, Reference: h.Reference}
				idx.tag32To64[h.Hash32] = h.Hash64
			}
			idx.namedTags = append(idx.namedTags, named...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, wrapErr(ErrKindSiblingMissing, err, "build fleet lookup index")
	}
	return idx, nil
}

// getOrOpenArchive returns the cached reader for pkgID, opening it on first
// access. Concurrent first-openers for the same pkgID share a single Open
// call via singleflight; only the winning result is stored (§4.7
// concurrency note, strengthened per the Design Notes §9 resolution).
func (f *Fleet) getOrOpenArchive(pkgID uint16) (Reader, error) {
	f.readersMu.RLock()
	r, ok := f.readers[pkgID]
	f.readersMu.RUnlock()
	if ok {
		return r, nil
	}

	v, err, _ := f.open.Do(strconv.Itoa(int(pkgID)), func() (any, error) {
		f.readersMu.RLock()
		if r, ok := f.readers[pkgID]; ok {
			f.readersMu.RUnlock()
			return r, nil
		}
		f.readersMu.RUnlock()

		path, ok := f.packagePaths[pkgID]
		if !ok {
			return nil, newErr(ErrKindNotFound, "no archive registered for pkg id %04x", pkgID)
		}
		opened, err := f.gen.Open(path)
		if err != nil {
			return nil, err
		}

		f.readersMu.Lock()
		if existing, ok := f.readers[pkgID]; ok {
			f.readersMu.Unlock()
			opened.Close()
			return existing, nil
		}
		f.readers[pkgID] = opened
		f.readersMu.Unlock()
		return opened, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Reader), nil
}

// ReadTag opens or reuses the archive reader for tag.pkg_id, then reads the
// referenced entry (§4.7).
func (f *Fleet) ReadTag(tag Tag32) ([]byte, error) {
	r, err := f.getOrOpenArchive(tag.PkgID())
	if err != nil {
		return nil, err
	}
	return r.ReadEntry(int(tag.EntryIndex()))
}

// ReadTag64 resolves alias through the tag64 index, then reads the
// referenced entry.
func (f *Fleet) ReadTag64(alias Tag64) ([]byte, error) {
	f.index.mu.RLock()
	entry, ok := f.index.tag64[uint64(alias)]
	f.index.mu.RUnlock()
	if !ok {
		return nil, newErr(ErrKindNotFound, "tag64 alias %016x not found", uint64(alias))
	}
	return f.ReadTag(entry.Hash32)
}

// GetEntry is a pure index lookup, not a file read.
func (f *Fleet) GetEntry(tag Tag32) (EntryHeader, bool) {
	f.index.mu.RLock()
	defer f.index.mu.RUnlock()
	entries, ok := f.index.entriesByPkg[tag.PkgID()]
	if !ok {
		return EntryHeader{}, false
	}
	i := int(tag.EntryIndex())
	if i < 0 || i >= len(entries) {
		return EntryHeader{}, false
	}
	return entries[i], true
}

// GetAllByReference sweeps the full fleet-wide entry index.
func (f *Fleet) GetAllByReference(ref uint32) []Tag32 {
	f.index.mu.RLock()
	defer f.index.mu.RUnlock()

	var out []Tag32
	for pkgID, entries := range f.index.entriesByPkg {
		for i, e := range entries {
			if e.Reference == ref {
				out = append(out, NewTag32(pkgID, uint16(i)))
			}
		}
	}
	return out
}

// GetAllByType sweeps the full fleet-wide entry index.
func (f *Fleet) GetAllByType(fileType uint8, fileSubtype *uint8) []Tag32 {
	f.index.mu.RLock()
	defer f.index.mu.RUnlock()

	var out []Tag32
	for pkgID, entries := range f.index.entriesByPkg {
		for i, e := range entries {
			if e.FileType != fileType {
				continue
			}
			if fileSubtype != nil && e.FileSubtype != *fileSubtype {
				continue
			}
			out = append(out, NewTag32(pkgID, uint16(i)))
		}
	}
	return out
}

// GetNamedTag looks up a named tag by (name, class hash).
func (f *Fleet) GetNamedTag(name string, classHash uint32) (NamedTag, bool) {
	f.index.mu.RLock()
	defer f.index.mu.RUnlock()
	for _, nt := range f.index.namedTags {
		if nt.Name == name && nt.ClassHash == classHash {
			return nt, true
		}
	}
	return NamedTag{}, false
}

// GetNamedTagsByClass returns every named tag sharing classHash.
func (f *Fleet) GetNamedTagsByClass(classHash uint32) []NamedTag {
	f.index.mu.RLock()
	defer f.index.mu.RUnlock()

	var out []NamedTag
	for _, nt := range f.index.namedTags {
		if nt.ClassHash == classHash {
			out = append(out, nt)
		}
	}
	return out
}

// GetTagName returns the named-tag entry whose Hash matches tag, if any.
func (f *Fleet) GetTagName(tag Tag32) (string, bool) {
	f.index.mu.RLock()
	defer f.index.mu.RUnlock()
	for _, nt := range f.index.namedTags {
		if nt.Hash == tag {
			return nt.Name, true
		}
	}
	return "", false
}

// Tag32ToTag64 is the supplemented reverse lookup (DESIGN.md): resolve a
// Tag32 back to its 64-bit alias, when one exists.
func (f *Fleet) Tag32ToTag64(tag Tag32) (Tag64, bool) {
	f.index.mu.RLock()
	defer f.index.mu.RUnlock()
	v, ok := f.index.tag32To64[tag]
	return Tag64(v), ok
}

// Close closes every opened archive reader.
func (f *Fleet) Close() error {
	f.readersMu.Lock()
	defer f.readersMu.Unlock()
	var firstErr error
	for _, r := range f.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
