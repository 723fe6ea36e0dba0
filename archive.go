// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// blockLogicalSize is the fixed decoded size of a block (§3, glossary):
// 256 KiB. The final block an entry references may decode shorter.
const blockLogicalSize = 0x40000

// Reader is the capability set every archive reader variant implements
// (§4.4, Design Notes §9: "tagged variants with a vtable abstraction").
type Reader interface {
	PkgID() uint16
	PatchID() uint16
	Language() PackageLanguage
	Platform() PackagePlatform
	Hash64Table() []HashTableEntry
	NamedTags() []NamedTag
	Entries() []EntryHeader
	Entry(i int) (EntryHeader, bool)
	GetBlock(i int) ([]byte, error)
	ReadEntry(i int) ([]byte, error)
	ReadTag(tag Tag32) ([]byte, error)
	GetAllByReference(ref uint32) []int
	GetAllByType(fileType uint8, fileSubtype *uint8) []int
	Close() error
}

// archiveCore is the shared implementation backing every generation's
// Reader. Per Design Notes §9, its four pieces of shared mutable state are
// independently locked so cache hits never contend on the primary reader:
// primaryMu guards the primary file handle, patchMu guards the sibling
// handle map, crypto has its own internal lock, and blocks is internally
// synchronized.
type archiveCore struct {
	gen      Generation
	pkgID    uint16
	patchID  uint16
	groupID  uint64
	language PackageLanguage
	platform PackagePlatform

	entries  []EntryHeader
	blocks   []BlockHeader
	hashes   []HashTableEntry
	named    []NamedTag

	pathBase string

	primaryMu sync.Mutex
	primary   *os.File

	patchMu sync.RWMutex
	patches map[uint16]*os.File

	crypto *cryptoState
	cache  *blockCache
}

func newArchiveCore(
	primary *os.File,
	path string,
	gen Generation,
	pkgID, patchID uint16,
	groupID uint64,
	language PackageLanguage,
	platform PackagePlatform,
	entries []EntryHeader,
	blocks []BlockHeader,
	hashes []HashTableEntry,
	named []NamedTag,
) (*archiveCore, error) {
	crypto, err := newCryptoState(pkgID, gen, groupID)
	if err != nil {
		return nil, err
	}

	lastUnderscore := strings.LastIndex(path, "_")
	pathBase := path
	if lastUnderscore >= 0 {
		pathBase = path[:lastUnderscore]
	}

	return &archiveCore{
		gen: gen, pkgID: pkgID, patchID: patchID, groupID: groupID,
		language: language, platform: platform,
		entries: entries, blocks: blocks, hashes: hashes, named: named,
		pathBase: pathBase,
		primary:  primary,
		patches:  map[uint16]*os.File{},
		crypto:   crypto,
		cache:    newBlockCache(),
	}, nil
}

func (a *archiveCore) PkgID() uint16               { return a.pkgID }
func (a *archiveCore) PatchID() uint16             { return a.patchID }
func (a *archiveCore) Language() PackageLanguage   { return a.language }
func (a *archiveCore) Platform() PackagePlatform   { return a.platform }
func (a *archiveCore) Hash64Table() []HashTableEntry { return a.hashes }
func (a *archiveCore) NamedTags() []NamedTag       { return a.named }
func (a *archiveCore) Entries() []EntryHeader      { return a.entries }

func (a *archiveCore) Entry(i int) (EntryHeader, bool) {
	if i < 0 || i >= len(a.entries) {
		return EntryHeader{}, false
	}
	return a.entries[i], true
}

func (a *archiveCore) Close() error {
	a.primaryMu.Lock()
	defer a.primaryMu.Unlock()
	err := a.primary.Close()

	a.patchMu.Lock()
	defer a.patchMu.Unlock()
	for _, f := range a.patches {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// getBlockRaw reads the raw on-disk bytes for block i, opening (and
// memoising) the patch sibling file if the block lives outside the primary
// archive. Memoisation applies universally across every generation, per the
// resolved Design Note §9 ambiguity.
func (a *archiveCore) getBlockRaw(i int) ([]byte, error) {
	if i < 0 || i >= len(a.blocks) {
		return nil, newErr(ErrKindTableOutOfBounds, "block index %d out of range (have %d)", i, len(a.blocks))
	}
	bh := a.blocks[i]
	data := make([]byte, bh.Size)

	if bh.PatchID == a.patchID {
		a.primaryMu.Lock()
		defer a.primaryMu.Unlock()
		if _, err := a.primary.Seek(int64(bh.Offset), io.SeekStart); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek primary archive for block %d", i)
		}
		if _, err := io.ReadFull(a.primary, data); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "read primary archive for block %d", i)
		}
		return data, nil
	}

	f, err := a.patchFile(bh.PatchID)
	if err != nil {
		return nil, err
	}
	a.patchMu.Lock()
	defer a.patchMu.Unlock()
	if _, err := f.Seek(int64(bh.Offset), io.SeekStart); err != nil {
		return nil, wrapErr(ErrKindSiblingMissing, err, "seek patch %d for block %d", bh.PatchID, i)
	}
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, wrapErr(ErrKindSiblingMissing, err, "read patch %d for block %d", bh.PatchID, i)
	}
	return data, nil
}

func (a *archiveCore) patchFile(patchID uint16) (*os.File, error) {
	a.patchMu.RLock()
	f, ok := a.patches[patchID]
	a.patchMu.RUnlock()
	if ok {
		return f, nil
	}

	a.patchMu.Lock()
	defer a.patchMu.Unlock()
	if f, ok := a.patches[patchID]; ok {
		return f, nil
	}

	path := fmt.Sprintf("%s_%d.pkg", a.pathBase, patchID)
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(ErrKindSiblingMissing, err, "open patch sibling %s", path)
	}
	a.patches[patchID] = f
	return f, nil
}

// readBlock reads, decrypts, and decompresses block i (§4.4 step "Block read").
func (a *archiveCore) readBlock(i int) ([]byte, error) {
	bh := a.blocks[i]

	data, err := a.getBlockRaw(i)
	if err != nil {
		return nil, err
	}

	if bh.Flags&BlockFlagEncrypted != 0 {
		if err := a.crypto.decryptBlockInPlace(bh.Flags, bh.GCMTag, data); err != nil {
			return nil, err
		}
	}

	if bh.Flags&a.gen.compressFlagBit() != 0 {
		return decompressBlock(a.gen.codecVersion(), data, blockLogicalSize)
	}
	return data, nil
}

// GetBlock goes through the block cache (§4.3/§4.4).
func (a *archiveCore) GetBlock(i int) ([]byte, error) {
	return a.cache.get(i, a.readBlock)
}

// ReadEntry reconstructs entry i's full byte range from one or more blocks
// (§4.4 "Entry read").
func (a *archiveCore) ReadEntry(i int) ([]byte, error) {
	entry, ok := a.Entry(i)
	if !ok {
		return nil, newErr(ErrKindTableOutOfBounds, "entry index %d out of range", i)
	}
	if entry.FileSize == 0 {
		return []byte{}, nil
	}
	if int(entry.StartingBlock) >= len(a.blocks) {
		return nil, newErr(ErrKindTableOutOfBounds, "entry %d starting block %d out of range", i, entry.StartingBlock)
	}

	buf := make([]byte, 0, entry.FileSize)
	currentOffset := 0
	currentBlock := entry.StartingBlock

	for currentOffset < int(entry.FileSize) {
		remaining := int(entry.FileSize) - currentOffset

		blockData, err := a.GetBlock(int(currentBlock))
		if err != nil {
			return nil, err
		}

		if currentBlock == entry.StartingBlock {
			start := int(entry.StartingBlockOffset)
			if start > len(blockData) {
				return nil, newErr(ErrKindTableOutOfBounds, "entry %d starting block offset %d exceeds block size %d", i, start, len(blockData))
			}
			blockRemaining := len(blockData) - start
			copySize := remaining
			if blockRemaining < copySize {
				copySize = blockRemaining
			}
			buf = append(buf, blockData[start:start+copySize]...)
			currentOffset += copySize
		} else if remaining < len(blockData) {
			buf = append(buf, blockData[:remaining]...)
			currentOffset += remaining
		} else {
			buf = append(buf, blockData...)
			currentOffset += len(blockData)
		}

		currentBlock++
	}

	return buf, nil
}

// ReadTag asserts the tag belongs to this archive, then reads its entry.
func (a *archiveCore) ReadTag(tag Tag32) ([]byte, error) {
	if tag.PkgID() != a.pkgID {
		return nil, newErr(ErrKindNotFound, "tag %s does not belong to archive %04x", tag, a.pkgID)
	}
	return a.ReadEntry(int(tag.EntryIndex()))
}

// GetAllByReference returns every entry index whose Reference matches ref.
func (a *archiveCore) GetAllByReference(ref uint32) []int {
	var out []int
	for i, e := range a.entries {
		if e.Reference == ref {
			out = append(out, i)
		}
	}
	return out
}

// GetAllByType returns every entry index matching fileType, and fileSubtype
// when non-nil.
func (a *archiveCore) GetAllByType(fileType uint8, fileSubtype *uint8) []int {
	var out []int
	for i, e := range a.entries {
		if e.FileType != fileType {
			continue
		}
		if fileSubtype != nil && e.FileSubtype != *fileSubtype {
			continue
		}
		out = append(out, i)
	}
	return out
}
