// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"encoding/binary"
	"io"
	"os"
)

// D1-family header field offsets, grounded on
// original_source/src/d1_roi/structs.rs (Rise of Iron / First Look Alpha /
// Taken King, which shares the same field layout per the Open Question
// resolution logged in DESIGN.md) and d1_internal_alpha/structs.rs (the
// earliest, distinctly-laid-out header).
const (
	offD1RoIVersion          = 0x0
	offD1RoIPlatform         = 0x2
	offD1RoIPkgID            = 0x4
	offD1RoIPatchLanguage    = 0x20
	offD1RoIEntryTableSize   = 0xb4
	offD1RoIBlockTableSize   = 0xd0
	expectedD1RoIVersion     = 24

	offD1AlphaVersion        = 0x0
	offD1AlphaPlatform       = 0x2
	offD1AlphaPkgID          = 0x4
	offD1AlphaPatch          = 0x6
	offD1AlphaLanguage       = 0x1e
	offD1AlphaEntryTableSize = 0x100
	offD1AlphaBlockTableSize = 0x11c
	expectedD1AlphaVersion   = 11
)

// openD1RiseOfIron reads the little-endian Rise of Iron / First Look Alpha
// header shape: no groupID field (D1 archives predate the group key
// indirection), no hash64 table, no named tags.
func openD1RiseOfIron(path string, gen Generation) (Reader, error) {
	return openD1RoIShaped(path, gen, expectedD1RoIVersion)
}

// openD1Legacy reads the big-endian Taken King-era header, which shares the
// Rise of Iron field layout but with big-endian integers (console builds).
func openD1Legacy(path string, gen Generation) (Reader, error) {
	return openD1RoIShaped(path, gen, expectedD1RoIVersion)
}

func openD1RoIShaped(path string, gen Generation, expectedVersion uint16) (Reader, error) {
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
	if err := readAt(f, offD1RoIVersion, order, &version); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read version")
	}
	if version != expectedVersion {
		return nil, newErr(ErrKindHeaderInvalid, "unexpected header version %d (want %d)", version, expectedVersion)
	}

	var platformRaw uint16
	if err := readAt(f, offD1RoIPlatform, order, &platformRaw); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read platform")
	}

	var pkgID uint16
	if err := readAt(f, offD1RoIPkgID, order, &pkgID); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read pkg id")
	}

	var patchAndLanguage uint32
	if err := readAt(f, offD1RoIPatchLanguage, order, &patchAndLanguage); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read patch id / language")
	}
	patchID := uint16(patchAndLanguage & 0xffff)
	language := PackageLanguage(patchAndLanguage >> 16 & 0xff)

	var entryTableSize, entryTableOffset uint32
	if err := readAt(f, offD1RoIEntryTableSize, order, &entryTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table size")
	}
	if err := binary.Read(f, order, &entryTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table offset")
	}

	var blockTableSize, blockTableOffset uint32
	if err := readAt(f, offD1RoIBlockTableSize, order, &blockTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table size")
	}
	if err := binary.Read(f, order, &blockTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table offset")
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

	core, err := newArchiveCore(f, path, gen, pkgID, patchID, 0, language, PackagePlatform(platformRaw), entries, blocks, nil, nil)
	if err != nil {
		return nil, err
	}
	closeOnErr = nil
	return core, nil
}

// openD1InternalAlpha reads the earliest, big-endian internal-alpha header
// shape, which places the pkg id and tables at different offsets than the
// later D1 titles (original_source/src/d1_internal_alpha/structs.rs).
func openD1InternalAlpha(path string, gen Generation) (Reader, error) {
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
	if err := readAt(f, offD1AlphaVersion, order, &version); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read version")
	}
	if version != expectedD1AlphaVersion {
		return nil, newErr(ErrKindHeaderInvalid, "unexpected header version %d (want %d)", version, expectedD1AlphaVersion)
	}

	var platformRaw uint16
	if err := readAt(f, offD1AlphaPlatform, order, &platformRaw); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read platform")
	}

	var pkgID uint16
	if err := readAt(f, offD1AlphaPkgID, order, &pkgID); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read pkg id")
	}

	var language uint16
	if err := readAt(f, offD1AlphaLanguage, order, &language); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read language")
	}

	var entryTableSize, entryTableOffset uint32
	if err := readAt(f, offD1AlphaEntryTableSize, order, &entryTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table size")
	}
	if err := binary.Read(f, order, &entryTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read entry table offset")
	}

	var blockTableSize, blockTableOffset uint32
	if err := readAt(f, offD1AlphaBlockTableSize, order, &blockTableSize); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table size")
	}
	if err := binary.Read(f, order, &blockTableOffset); err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "read block table offset")
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

	core, err := newArchiveCore(f, path, gen, pkgID, 0, 0, PackageLanguage(language), PackagePlatform(platformRaw), entries, blocks, nil, nil)
	if err != nil {
		return nil, err
	}
	closeOnErr = nil
	return core, nil
}
