// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"encoding/binary"
	"io"
	"os"
)

// D2-family header field offsets, grounded on
// original_source/src/d2_beyondlight/structs.rs.
const (
	offD2Version          = 0x0
	offD2Platform         = 0x2
	offD2GroupID          = 0x8
	offD2PkgID            = 0x10
	offD2PatchIDLanguage  = 0x30
	offD2BLEntryTableSize = 0x48
	offD2BLBlockTable     = 0x60
	offD2BLNamedTagTable  = 0x78
	offD2BLHash64Table    = 0xb8
	expectedD2BLVersion   = 53
)

func readAt(f *os.File, offset int64, order binary.ByteOrder, v any) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return binary.Read(f, order, v)
}

func openD2BeyondLight(path string, gen Generation) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "open archive")
	}
	closeOnErr := f
	defer func() {
		if closeOnErr != nil {
			closeOnErr.Close()
		}
	}()

	order := gen.Endian()

	var version uint16
	if err := readAt(f, offD2Version, order, &version); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read version")
	}
	if version != expectedD2BLVersion {
		return nil, newErr(ErrKindHeaderInvalid, "unexpected header version %d (want %d)", version, expectedD2BLVersion)
	}

	var platformRaw uint16
	if err := readAt(f, offD2Platform, order, &platformRaw); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read platform")
	}

	var groupID uint64
	if err := readAt(f, offD2GroupID, order, &groupID); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read group id")
	}

	var pkgID uint16
	if err := readAt(f, offD2PkgID, order, &pkgID); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read pkg id")
	}

	var patchAndLanguage uint32
	if err := readAt(f, offD2PatchIDLanguage, order, &patchAndLanguage); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read patch id / language")
	}
	patchID := uint16(patchAndLanguage & 0xffff)
	language := PackageLanguage(patchAndLanguage >> 16 & 0xff)

	var entryTableSize, entryTableOffset uint32
	if err := readAt(f, offD2BLEntryTableSize, order, &entryTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table size")
	}
	if err := binary.Read(f, order, &entryTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table offset")
	}

	var blockTableSize, blockTableOffset uint32
	if err := readAt(f, offD2BLBlockTable, order, &blockTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table size")
	}
	if err := binary.Read(f, order, &blockTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table offset")
	}

	var namedTagTableSize, namedTagTableOffset uint32
	if err := readAt(f, offD2BLNamedTagTable, order, &namedTagTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read named tag table size")
	}
	if err := binary.Read(f, order, &namedTagTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read named tag table offset")
	}

	var hash64TableSize, hash64TableOffset uint32
	if err := readAt(f, offD2BLHash64Table, order, &hash64TableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read hash64 table size")
	}
	if err := binary.Read(f, order, &hash64TableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read hash64 table offset")
	}

	if _, err := f.Seek(int64(entryTableOffset), io.SeekStart); err != nil {
		return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek entry table")
	}
	entries, err := readEntryTable(f, order, gen, int(entryTableSize))
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(int64(blockTableOffset), io.SeekStart); err != nil {
		return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek block table")
	}
	blocks, err := readBlockTable(f, order, int(blockTableSize))
	if err != nil {
		return nil, err
	}

	var named []NamedTag
	if namedTagTableOffset != 0 {
		if _, err := f.Seek(int64(namedTagTableOffset)+0x30, io.SeekStart); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek named tag table")
		}
		named, err = readNamedTagTable(f, order, int(namedTagTableSize))
		if err != nil {
			return nil, err
		}
	}

	var hashes []HashTableEntry
	if hash64TableSize != 0 {
		if _, err := f.Seek(int64(hash64TableOffset)+0x50, io.SeekStart); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek hash64 table")
		}
		hashes, err = readHash64Table(f, order, int(hash64TableSize))
		if err != nil {
			return nil, err
		}
	}

	core, err := newArchiveCore(f, path, gen, pkgID, patchID, groupID, language, PackagePlatform(platformRaw), entries, blocks, hashes, named)
	if err != nil {
		return nil, err
	}
	closeOnErr = nil
	return core, nil
}

// openD2PreBL reads the Forsaken/Shadowkeep header shape, including the
// two-indirection "misc data" table layout (§9 resolved ambiguity):
// misc_data_offset+0x10 for named tags, +0x30 for the hash64 table, each a
// (count, relative_offset) pair whose real table starts at
// pos-8+relative_offset+16.
func openD2PreBL(path string, gen Generation) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "open archive")
	}
	closeOnErr := f
	defer func() {
		if closeOnErr != nil {
			closeOnErr.Close()
		}
	}()

	order := gen.Endian()

	const (
		offVersion      = 0x0
		offPlatform     = 0x2
		offGroupID      = 0x8
		offPkgID        = 0x10
		offPatchLang    = 0x20
		offMiscData     = 0xf0
		offEntryTable   = 0x110
		offBlockTable   = 0x100
		expectedVersion = 38
	)

	var version uint16
	if err := readAt(f, offVersion, order, &version); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read version")
	}
	if version != expectedVersion {
		return nil, newErr(ErrKindHeaderInvalid, "unexpected header version %d (want %d)", version, expectedVersion)
	}

	var platformRaw uint16
	if err := readAt(f, offPlatform, order, &platformRaw); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read platform")
	}

	var groupID uint64
	if err := readAt(f, offGroupID, order, &groupID); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read group id")
	}
	var pkgID uint16
	if err := readAt(f, offPkgID, order, &pkgID); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read pkg id")
	}
	var patchAndLanguage uint32
	if err := readAt(f, offPatchLang, order, &patchAndLanguage); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read patch id / language")
	}
	patchID := uint16(patchAndLanguage & 0xffff)
	language := PackageLanguage(patchAndLanguage >> 16 & 0xff)

	var miscDataOffset uint32
	if err := readAt(f, offMiscData, order, &miscDataOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read misc data offset")
	}

	var entryTableOffsetRaw uint32
	if err := readAt(f, offEntryTable, order, &entryTableOffsetRaw); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table offset")
	}
	entryTableOffset := entryTableOffsetRaw + 96

	var entryTableSize uint32
	if err := readAt(f, int64(entryTableOffset)-16, order, &entryTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table size")
	}

	var blockTableOffset uint32
	if err := readAt(f, offBlockTable, order, &blockTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table offset")
	}
	var blockTableSize uint32
	if err := readAt(f, int64(blockTableOffset)-16, order, &blockTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table size")
	}

	if _, err := f.Seek(int64(entryTableOffset), io.SeekStart); err != nil {
		return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek entry table")
	}
	entries, err := readEntryTable(f, order, gen, int(entryTableSize))
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(int64(blockTableOffset), io.SeekStart); err != nil {
		return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek block table")
	}
	blocks, err := readBlockTable(f, order, int(blockTableSize))
	if err != nil {
		return nil, err
	}

	var named []NamedTag
	var hashes []HashTableEntry
	if miscDataOffset != 0 {
		namedCount, namedOffset, err := resolveMiscIndirection(f, order, int64(miscDataOffset)+0x10)
		if err != nil {
			return nil, err
		}
		if _, err := f.Seek(namedOffset, io.SeekStart); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek named tag table")
		}
		named, err = readNamedTagTable(f, order, namedCount)
		if err != nil {
			return nil, err
		}

		hashCount, hashOffset, err := resolveMiscIndirection(f, order, int64(miscDataOffset)+0x30)
		if err != nil {
			return nil, err
		}
		if _, err := f.Seek(hashOffset, io.SeekStart); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek hash64 table")
		}
		hashes, err = readHash64Table(f, order, hashCount)
		if err != nil {
			return nil, err
		}
	}

	core, err := newArchiveCore(f, path, gen, pkgID, patchID, groupID, language, PackagePlatform(platformRaw), entries, blocks, hashes, named)
	if err != nil {
		return nil, err
	}
	closeOnErr = nil
	return core, nil
}

// resolveMiscIndirection reads a (count, relative_offset) record at
// recordOffset and resolves it to (count, absolute file offset) of the real
// table, per the named-tag/hash64 double-indirection shape (§9 "self
// referential"): the real offset is relative to the position immediately
// after the record, minus 16 (the record's own start), plus 16 again.
func resolveMiscIndirection(f *os.File, order binary.ByteOrder, recordOffset int64) (count int, absoluteOffset int64, err error) {
	if _, err := f.Seek(recordOffset, io.SeekStart); err != nil {
		return 0, 0, wrapErr(ErrKindTableOutOfBounds, err, "seek misc data record")
	}
	var rawCount uint64
	if err := binary.Read(f, order, &rawCount); err != nil {
		return 0, 0, wrapErr(ErrKindTableOutOfBounds, err, "read misc data count")
	}
	var relOffset uint64
	if err := binary.Read(f, order, &relOffset); err != nil {
		return 0, 0, wrapErr(ErrKindTableOutOfBounds, err, "read misc data relative offset")
	}

	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, wrapErr(ErrKindTableOutOfBounds, err, "stream position after misc data record")
	}
	return int(rawCount), pos - 16 + int64(relOffset) + 16, nil
}

// openD2Beta reads the simplest D2 variant: no hash64 table, no named tags,
// even though the header format exposes misc_data_offset — Beta never
// populates those tables (original_source/src/d2_beta/impl.rs leaves both
// hardcoded empty).
func openD2Beta(path string, gen Generation) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "open archive")
	}
	closeOnErr := f
	defer func() {
		if closeOnErr != nil {
			closeOnErr.Close()
		}
	}()

	order := gen.Endian()

	const (
		offVersion      = 0x0
		offPlatform     = 0x2
		offGroupID      = 0x8
		offPkgID        = 0x10
		offPatchLang    = 0x20
		offEntryTable   = 0x110
		offBlockTable   = 0x100
		expectedVersion = 38
	)

	var version uint16
	if err := readAt(f, offVersion, order, &version); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read version")
	}
	if version != expectedVersion {
		return nil, newErr(ErrKindHeaderInvalid, "unexpected header version %d (want %d)", version, expectedVersion)
	}

	var platformRaw uint16
	if err := readAt(f, offPlatform, order, &platformRaw); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read platform")
	}

	var groupID uint64
	if err := readAt(f, offGroupID, order, &groupID); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read group id")
	}
	var pkgID uint16
	if err := readAt(f, offPkgID, order, &pkgID); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read pkg id")
	}
	var patchAndLanguage uint32
	if err := readAt(f, offPatchLang, order, &patchAndLanguage); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read patch id / language")
	}
	patchID := uint16(patchAndLanguage & 0xffff)
	language := PackageLanguage(patchAndLanguage >> 16 & 0xff)

	var entryTableOffsetRaw uint32
	if err := readAt(f, offEntryTable, order, &entryTableOffsetRaw); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table offset")
	}
	entryTableOffset := entryTableOffsetRaw + 96
	var entryTableSize uint32
	if err := readAt(f, int64(entryTableOffset)-16, order, &entryTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table size")
	}

	var blockTableOffset uint32
	if err := readAt(f, offBlockTable, order, &blockTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table offset")
	}
	var blockTableSize uint32
	if err := readAt(f, int64(blockTableOffset)-16, order, &blockTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table size")
	}

	if _, err := f.Seek(int64(entryTableOffset), io.SeekStart); err != nil {
		return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek entry table")
	}
	entries, err := readEntryTable(f, order, gen, int(entryTableSize))
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(int64(blockTableOffset), io.SeekStart); err != nil {
		return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek block table")
	}
	blocks, err := readBlockTable(f, order, int(blockTableSize))
	if err != nil {
		return nil, err
	}

	core, err := newArchiveCore(f, path, gen, pkgID, patchID, groupID, language, PackagePlatform(platformRaw), entries, blocks, nil, nil)
	if err != nil {
		return nil, err
	}
	closeOnErr = nil
	return core, nil
}
