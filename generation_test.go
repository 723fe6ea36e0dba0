// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"encoding/binary"
	"testing"
)

func TestGenerationIDRoundTrip(t *testing.T) {
	for g := DestinyInternalAlpha; g <= MarathonAlpha; g++ {
		id := g.ID()
		if id == "" || id == "unknown" {
			t.Errorf("generation %d has no id", g)
			continue
		}
		got, err := ParseGeneration(id)
		if err != nil {
			t.Errorf("ParseGeneration(%q): %v", id, err)
			continue
		}
		if got != g {
			t.Errorf("ParseGeneration(%q) = %d, want %d", id, got, g)
		}
	}
}

func TestParseGenerationUnknown(t *testing.T) {
	if _, err := ParseGeneration("not_a_generation"); err == nil {
		t.Errorf("expected error for unrecognised generation id")
	}
}

func TestGenerationEndianness(t *testing.T) {
	if DestinyRiseOfIron.Endian() != binary.LittleEndian {
		t.Errorf("Rise of Iron should be little-endian")
	}
	if DestinyTheTakenKing.Endian() != binary.BigEndian {
		t.Errorf("Taken King should be big-endian")
	}
	if Destiny2BeyondLight.Endian() != binary.LittleEndian {
		t.Errorf("Beyond Light should be little-endian")
	}
}

func TestGenerationCodecVersionSplit(t *testing.T) {
	preBL := []Generation{DestinyInternalAlpha, DestinyFirstLookAlpha, DestinyTheTakenKing, DestinyRiseOfIron, Destiny2Beta, Destiny2Forsaken, Destiny2Shadowkeep}
	for _, g := range preBL {
		if g.codecVersion() != CodecV3 {
			t.Errorf("%s should use codec v3", g.ID())
		}
	}

	postBL := []Generation{Destiny2BeyondLight, Destiny2WitchQueen, Destiny2Lightfall, Destiny2TheFinalShape}
	for _, g := range postBL {
		if g.codecVersion() != CodecV9 {
			t.Errorf("%s should use codec v9", g.ID())
		}
	}
}

func TestMarathonAlphaUnimplemented(t *testing.T) {
	_, err := MarathonAlpha.Open("does-not-matter.pkg")
	if err == nil {
		t.Fatal("expected Unimplemented error")
	}
	pe, ok := err.(*PkgError)
	if !ok || pe.Kind != ErrKindUnimplemented {
		t.Errorf("err = %v, want ErrKindUnimplemented", err)
	}
}

func TestDecodeTypeD2Family(t *testing.T) {
	// type_info packs file_type in bits 9-15 and file_subtype in bits 6-8.
	typeInfo := uint32(5<<9) | uint32(3<<6)
	fileType, fileSubtype := decodeTypeD2Family(typeInfo)
	if fileType != 5 || fileSubtype != 3 {
		t.Errorf("decodeTypeD2Family(%#x) = (%d, %d), want (5, 3)", typeInfo, fileType, fileSubtype)
	}
}

func TestDecodeBlockInfo(t *testing.T) {
	startingBlock := uint64(42)
	startingBlockOffsetUnits := uint64(7) // pre-shift units, final offset = 7<<4 = 112
	fileSize := uint64(0x1234)

	blockInfo := startingBlock | (startingBlockOffsetUnits << 14) | (fileSize << 28)

	gotBlock, gotOffset, gotSize := decodeBlockInfo(blockInfo)
	if gotBlock != 42 {
		t.Errorf("starting block = %d, want 42", gotBlock)
	}
	if gotOffset != 112 {
		t.Errorf("starting block offset = %d, want 112", gotOffset)
	}
	if gotSize != 0x1234 {
		t.Errorf("file size = %#x, want 0x1234", gotSize)
	}
}
