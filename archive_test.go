// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildSyntheticBeyondLightArchive writes a minimal, valid Destiny 2: Beyond
// Light-shaped archive to dir, with two uncompressed, unencrypted entries
// each backed by a single block in the primary file. Field offsets mirror
// openD2BeyondLight in header_d2.go exactly.
func buildSyntheticBeyondLightArchive(t *testing.T, dir string) string {
	t.Helper()
	return buildSyntheticBeyondLightArchiveAt(t, filepath.Join(dir, "w64_test_0001_0.pkg"), 0x0001)
}

func buildSyntheticBeyondLightArchiveAt(t *testing.T, path string, pkgID uint16) string {
	t.Helper()

	const (
		entryTableOffset = 0x200
		entryTableBytes  = 2 * 16 // 2 rawEntryRecord @ 16 bytes each
		blockTableOffset = entryTableOffset + entryTableBytes
		blockTableBytes  = 2 * 48 // 2 rawBlockRecord @ 48 bytes each
		block0Offset     = blockTableOffset + blockTableBytes
		block0Size       = 16
		block1Offset     = block0Offset + block0Size
		block1Size       = 32
		totalSize        = block1Offset + block1Size + 64
	)

	buf := make([]byte, totalSize)
	order := binary.LittleEndian

	order.PutUint32(buf[0x0:], expectedD2BLVersion)
	order.PutUint64(buf[0x8:], 0) // group id
	order.PutUint16(buf[0x10:], pkgID)
	order.PutUint32(buf[0x30:], 0) // patch id (low16) | language (next byte) = 0

	order.PutUint32(buf[0x48:], 2) // entry table size (count)
	order.PutUint32(buf[0x4c:], entryTableOffset)

	order.PutUint32(buf[0x60:], 2) // block table size (count)
	order.PutUint32(buf[0x64:], blockTableOffset)

	order.PutUint32(buf[0x78:], 0) // named tag table size
	order.PutUint32(buf[0x7c:], 0) // named tag table offset (0 => skipped)

	order.PutUint32(buf[0xb8:], 0) // hash64 table size (0 => skipped)
	order.PutUint32(buf[0xbc:], 0)

	// Entry 0: fileType=5, fileSubtype=3, starting block 0, offset 0, size 10.
	typeInfo0 := uint32(5<<9) | uint32(3<<6)
	blockInfo0 := uint64(0) | (uint64(0) << 14) | (uint64(10) << 28)
	writeRawEntry(buf, entryTableOffset+0*16, order, 0xAAAAAAAA, typeInfo0, blockInfo0)

	// Entry 1: same type, starting block 1, offset 0, size 20.
	typeInfo1 := uint32(5<<9) | uint32(3<<6)
	blockInfo1 := uint64(1) | (uint64(0) << 14) | (uint64(20) << 28)
	writeRawEntry(buf, entryTableOffset+1*16, order, 0xBBBBBBBB, typeInfo1, blockInfo1)

	// Block 0 and block 1, both unencrypted and uncompressed, patch id 0
	// (matches the archive's own patch id so reads hit the primary file).
	writeRawBlock(buf, blockTableOffset+0*48, order, block0Offset, block0Size, 0, 0)
	writeRawBlock(buf, blockTableOffset+1*48, order, block1Offset, block1Size, 0, 0)

	for i := 0; i < block0Size; i++ {
		buf[block0Offset+i] = byte('A' + i)
	}
	for i := 0; i < block1Size; i++ {
		buf[block1Offset+i] = byte('a' + i)
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write synthetic archive: %v", err)
	}
	return path
}

func writeRawEntry(buf []byte, offset int, order binary.ByteOrder, reference, typeInfo uint32, blockInfo uint64) {
	order.PutUint32(buf[offset:], reference)
	order.PutUint32(buf[offset+4:], typeInfo)
	order.PutUint64(buf[offset+8:], blockInfo)
}

func writeRawBlock(buf []byte, offset int, order binary.ByteOrder, blockOffset, size uint32, patchID, flags uint16) {
	order.PutUint32(buf[offset:], blockOffset)
	order.PutUint32(buf[offset+4:], size)
	order.PutUint16(buf[offset+8:], patchID)
	order.PutUint16(buf[offset+10:], flags)
}

func TestOpenSyntheticBeyondLightArchive(t *testing.T) {
	dir := t.TempDir()
	path := buildSyntheticBeyondLightArchive(t, dir)

	r, err := Destiny2BeyondLight.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.PkgID() != 0x0001 {
		t.Errorf("PkgID() = %#x, want 0x0001", r.PkgID())
	}

	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].FileType != 5 || entries[0].FileSubtype != 3 {
		t.Errorf("entry 0 type/subtype = %d/%d, want 5/3", entries[0].FileType, entries[0].FileSubtype)
	}

	data0, err := r.ReadEntry(0)
	if err != nil {
		t.Fatalf("ReadEntry(0): %v", err)
	}
	if string(data0) != "ABCDEFGHIJ" {
		t.Errorf("ReadEntry(0) = %q, want %q", data0, "ABCDEFGHIJ")
	}

	data1, err := r.ReadEntry(1)
	if err != nil {
		t.Fatalf("ReadEntry(1): %v", err)
	}
	if string(data1) != "abcdefghijklmnopqrst" {
		t.Errorf("ReadEntry(1) = %q, want %q", data1, "abcdefghijklmnopqrst")
	}

	refs := r.GetAllByReference(0xAAAAAAAA)
	if len(refs) != 1 || refs[0] != 0 {
		t.Errorf("GetAllByReference(0xAAAAAAAA) = %v, want [0]", refs)
	}

	byType := r.GetAllByType(5, nil)
	if len(byType) != 2 {
		t.Errorf("GetAllByType(5, nil) = %v, want both entries", byType)
	}

	tag := NewTag32(0x0001, 0)
	data, err := r.ReadTag(tag)
	if err != nil {
		t.Fatalf("ReadTag: %v", err)
	}
	if string(data) != "ABCDEFGHIJ" {
		t.Errorf("ReadTag(0) = %q, want %q", data, "ABCDEFGHIJ")
	}
}

func TestArchiveReadEntryCachesBlocks(t *testing.T) {
	dir := t.TempDir()
	path := buildSyntheticBeyondLightArchive(t, dir)

	r, err := Destiny2BeyondLight.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	core := r.(*archiveCore)
	if _, err := core.ReadEntry(0); err != nil {
		t.Fatalf("ReadEntry(0): %v", err)
	}
	if got := core.cache.len(); got != 1 {
		t.Errorf("cache len after one entry read = %d, want 1", got)
	}
}
