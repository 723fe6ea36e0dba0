// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"bufio"
	"encoding/binary"
	"io"
)

// rawEntryRecord is the on-disk entry shape shared by every generation
// implemented here: a cross-reference, a packed type-info word, and a
// packed block-info word. Only the type-info decode differs per generation
// (§6/§9); the block-info decode (starting block, in-block offset, file
// size) is shared across the whole matrix, grounded on d2_shared.rs.
type rawEntryRecord struct {
	Reference uint32
	TypeInfo  uint32
	BlockInfo uint64
}

func decodeBlockInfo(blockInfo uint64) (startingBlock, startingBlockOffset, fileSize uint32) {
	startingBlock = uint32(blockInfo) & 0x3fff
	startingBlockOffset = (uint32(blockInfo>>14) & 0x3fff) << 4
	fileSize = uint32(blockInfo >> 28)
	return
}

// readEntryTable reads count rawEntryRecord values at the current reader
// position and projects them into the unified EntryHeader via gen's
// type-info decoder (§4.4 step 2).
func readEntryTable(r io.Reader, order binary.ByteOrder, gen Generation, count int) ([]EntryHeader, error) {
	out := make([]EntryHeader, 0, count)
	raw := make([]rawEntryRecord, count)
	for i := range raw {
		var rec rawEntryRecord
		if err := readRawEntryRecord(r, order, &rec); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "read entry record %d/%d", i, count)
		}
		raw[i] = rec
	}

	for _, rec := range raw {
		fileType, fileSubtype := gen.decodeTypeInfo(rec.TypeInfo)
		startingBlock, startingBlockOffset, fileSize := decodeBlockInfo(rec.BlockInfo)
		out = append(out, EntryHeader{
			Reference:           rec.Reference,
			FileType:            fileType,
			FileSubtype:         fileSubtype,
			StartingBlock:       startingBlock,
			StartingBlockOffset: startingBlockOffset,
			FileSize:            fileSize,
		})
	}
	return out, nil
}

func readRawEntryRecord(r io.Reader, order binary.ByteOrder, rec *rawEntryRecord) error {
	if err := binary.Read(r, order, &rec.Reference); err != nil {
		return err
	}
	if err := binary.Read(r, order, &rec.TypeInfo); err != nil {
		return err
	}
	return binary.Read(r, order, &rec.BlockInfo)
}

// rawBlockRecord mirrors BlockHeader's on-disk layout.
type rawBlockRecord struct {
	Offset  uint32
	Size    uint32
	PatchID uint16
	Flags   uint16
	Hash    [20]byte
	GCMTag  [16]byte
}

func readBlockTable(r io.Reader, order binary.ByteOrder, count int) ([]BlockHeader, error) {
	out := make([]BlockHeader, 0, count)
	for i := 0; i < count; i++ {
		var rec rawBlockRecord
		if err := binary.Read(r, order, &rec); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "read block record %d/%d", i, count)
		}
		out = append(out, BlockHeader{
			Offset: rec.Offset, Size: rec.Size, PatchID: rec.PatchID, Flags: rec.Flags,
			Hash: rec.Hash, GCMTag: rec.GCMTag,
		})
	}
	return out, nil
}

// rawHashTableEntry mirrors HashTableEntry's on-disk layout.
type rawHashTableEntry struct {
	Hash64    uint64
	Hash32    uint32
	Reference uint32
}

func readHash64Table(r io.Reader, order binary.ByteOrder, count int) ([]HashTableEntry, error) {
	out := make([]HashTableEntry, 0, count)
	for i := 0; i < count; i++ {
		var rec rawHashTableEntry
		if err := binary.Read(r, order, &rec); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "read hash64 record %d/%d", i, count)
		}
		out = append(out, HashTableEntry{Hash64: rec.Hash64, Hash32: Tag32(rec.Hash32), Reference: Tag32(rec.Reference)})
	}
	return out, nil
}

// readNamedTagTable reads count named-tag records at the current position
// of rs. Each record is (hash: Tag32, class_hash: u32, name_offset: u64)
// followed by an indirected, null-terminated name string. The offset is
// relative to the position immediately after the name_offset field, minus 8
// (i.e. the start of that field) — §4.4 step 4, §9 "self-referential".
func readNamedTagTable(rs io.ReadSeeker, order binary.ByteOrder, count int) ([]NamedTag, error) {
	out := make([]NamedTag, 0, count)
	for i := 0; i < count; i++ {
		var hash uint32
		var classHash uint32
		var nameOffset uint64

		if err := binary.Read(rs, order, &hash); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "read named tag %d/%d hash", i, count)
		}
		if err := binary.Read(rs, order, &classHash); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "read named tag %d/%d class hash", i, count)
		}
		if err := binary.Read(rs, order, &nameOffset); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "read named tag %d/%d name offset", i, count)
		}

		posSave, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "stream position for named tag %d/%d", i, count)
		}

		if _, err := rs.Seek(posSave-8+int64(nameOffset), io.SeekStart); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "seek named tag %d/%d name", i, count)
		}
		name, err := readNullTerminatedString(rs)
		if err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "read named tag %d/%d name", i, count)
		}
		if _, err := rs.Seek(posSave, io.SeekStart); err != nil {
			return nil, wrapErr(ErrKindTableOutOfBounds, err, "restore stream position for named tag %d/%d", i, count)
		}

		out = append(out, NamedTag{Hash: Tag32(hash), ClassHash: classHash, Name: name})
	}
	return out, nil
}

func readNullTerminatedString(r io.Reader) (string, error) {
	br := bufio.NewReader(r)
	var buf []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}
