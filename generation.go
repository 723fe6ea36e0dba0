// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"encoding/binary"
	"fmt"
)

// Generation is the closed enumeration of supported title/version epochs.
// Each value determines header layout, endianness, crypto material, and
// codec choice (§4.6).
type Generation int

const (
	DestinyInternalAlpha Generation = iota
	DestinyFirstLookAlpha
	DestinyTheTakenKing
	DestinyRiseOfIron
	Destiny2Beta
	Destiny2Forsaken
	Destiny2Shadowkeep
	Destiny2BeyondLight
	Destiny2WitchQueen
	Destiny2Lightfall
	Destiny2TheFinalShape

	// MarathonAlpha is enumerated (a second, nested family, per §4.6) but has
	// no implemented reader: Open always returns ErrUnimplemented.
	MarathonAlpha
)

type generationInfo struct {
	id, name    string
	endian      binary.ByteOrder
	codec       CodecVersion
	compressBit uint16
	decodeType  func(typeInfo uint32) (fileType, fileSubtype uint8)
	openFn      func(path string, gen Generation) (Reader, error)
}

func decodeTypeD2Family(typeInfo uint32) (uint8, uint8) {
	return uint8((typeInfo >> 9) & 0x7f), uint8((typeInfo >> 6) & 0x7)
}

func decodeTypeD1RiseOfIron(typeInfo uint32) (uint8, uint8) {
	return uint8(typeInfo & 0xff), uint8((typeInfo >> 24) & 0xff)
}

func decodeTypeD1InternalAlpha(typeInfo uint32) (uint8, uint8) {
	return uint8((typeInfo >> 18) & 0xff), 0
}

var generations = map[Generation]generationInfo{
	DestinyInternalAlpha: {
		id: "d1_internal_alpha", name: "Destiny: Internal Alpha",
		endian: binary.BigEndian, codec: CodecV3, compressBit: 0x1,
		decodeType: decodeTypeD1InternalAlpha, openFn: openD1InternalAlpha,
	},
	DestinyFirstLookAlpha: {
		id: "d1_first_look_alpha", name: "Destiny: First Look Alpha",
		endian: binary.LittleEndian, codec: CodecV3, compressBit: 0x1,
		decodeType: decodeTypeD1RiseOfIron, openFn: openD1RiseOfIron,
	},
	DestinyTheTakenKing: {
		id: "d1_ttk", name: "Destiny: The Taken King",
		endian: binary.BigEndian, codec: CodecV3, compressBit: 0x100,
		decodeType: decodeTypeD1RiseOfIron, openFn: openD1Legacy,
	},
	DestinyRiseOfIron: {
		id: "d1_roi", name: "Destiny: Rise of Iron",
		endian: binary.LittleEndian, codec: CodecV3, compressBit: 0x1,
		decodeType: decodeTypeD1RiseOfIron, openFn: openD1RiseOfIron,
	},
	Destiny2Beta: {
		id: "d2_beta", name: "Destiny 2: Beta",
		endian: binary.LittleEndian, codec: CodecV3, compressBit: 0x1,
		decodeType: decodeTypeD2Family, openFn: openD2Beta,
	},
	Destiny2Forsaken: {
		id: "d2_forsaken", name: "Destiny 2: Forsaken",
		endian: binary.LittleEndian, codec: CodecV3, compressBit: 0x1,
		decodeType: decodeTypeD2Family, openFn: openD2PreBL,
	},
	Destiny2Shadowkeep: {
		id: "d2_shadowkeep", name: "Destiny 2: Shadowkeep",
		endian: binary.LittleEndian, codec: CodecV3, compressBit: 0x1,
		decodeType: decodeTypeD2Family, openFn: openD2PreBL,
	},
	Destiny2BeyondLight: {
		id: "d2_bl", name: "Destiny 2: Beyond Light",
		endian: binary.LittleEndian, codec: CodecV9, compressBit: 0x1,
		decodeType: decodeTypeD2Family, openFn: openD2BeyondLight,
	},
	Destiny2WitchQueen: {
		id: "d2_wq", name: "Destiny 2: The Witch Queen",
		endian: binary.LittleEndian, codec: CodecV9, compressBit: 0x1,
		decodeType: decodeTypeD2Family, openFn: openD2BeyondLight,
	},
	Destiny2Lightfall: {
		id: "d2_lf", name: "Destiny 2: Lightfall",
		endian: binary.LittleEndian, codec: CodecV9, compressBit: 0x1,
		decodeType: decodeTypeD2Family, openFn: openD2BeyondLight,
	},
	Destiny2TheFinalShape: {
		id: "d2_tfs", name: "Destiny 2: The Final Shape",
		endian: binary.LittleEndian, codec: CodecV9, compressBit: 0x1,
		decodeType: decodeTypeD2Family, openFn: openD2BeyondLight,
	},
	MarathonAlpha: {
		id: "marathon_alpha", name: "Marathon: Closed Alpha",
		endian: binary.LittleEndian, codec: CodecV9, compressBit: 0x1,
		decodeType: decodeTypeD2Family,
		openFn: func(string, Generation) (Reader, error) {
			return nil, newErr(ErrKindUnimplemented, "Marathon closed alpha reader is not implemented")
		},
	},
}

func (g Generation) info() generationInfo {
	info, ok := generations[g]
	if !ok {
		return generationInfo{id: "unknown", name: "unknown", endian: binary.LittleEndian, openFn: func(string, Generation) (Reader, error) {
			return nil, newErr(ErrKindUnimplemented, "generation %d is not enumerated", g)
		}}
	}
	return info
}

// ID returns the short machine-readable tag (e.g. "d1_ttk", "d2_bl").
func (g Generation) ID() string { return g.info().id }

// Name returns the human-readable title/version name.
func (g Generation) Name() string { return g.info().name }

// Endian returns the byte order used when interpreting this generation's
// on-disk records.
func (g Generation) Endian() binary.ByteOrder { return g.info().endian }

// Open dispatches to the matching archive reader variant.
func (g Generation) Open(path string) (Reader, error) {
	return g.info().openFn(path, g)
}

func (g Generation) codecVersion() CodecVersion { return g.info().codec }

func (g Generation) compressFlagBit() uint16 { return g.info().compressBit }

func (g Generation) decodeTypeInfo(typeInfo uint32) (uint8, uint8) {
	return g.info().decodeType(typeInfo)
}

// ParseGeneration resolves a generation's short machine-readable id (e.g.
// "d1_ttk", "d2_bl") back to its Generation value, for CLI flags and config
// files.
func ParseGeneration(id string) (Generation, error) {
	for g, info := range generations {
		if info.id == id {
			return g, nil
		}
	}
	return 0, fmt.Errorf("unrecognised generation id %q", id)
}
