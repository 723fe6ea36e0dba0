// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"fmt"
	"strings"
)

// EntryHeader is the unified, generation-independent projection of an
// on-disk entry record (§3).
type EntryHeader struct {
	Reference           uint32
	FileType            uint8
	FileSubtype         uint8
	StartingBlock       uint32
	StartingBlockOffset uint32
	FileSize            uint32
}

// BlockHeader describes one on-disk block (§3).
type BlockHeader struct {
	Offset  uint32
	Size    uint32
	PatchID uint16
	Flags   uint16
	Hash    [20]byte
	GCMTag  [16]byte
}

const (
	// BlockFlagCompressed is bit 0: block payload is LZ-compressed.
	BlockFlagCompressed uint16 = 0x1
	// BlockFlagEncrypted is bit 1: block payload is AES-GCM encrypted.
	BlockFlagEncrypted uint16 = 0x2
)

// HashTableEntry maps a 64-bit alias to its resolved Tag32 hash and
// reference (§3).
type HashTableEntry struct {
	Hash64    uint64
	Hash32    Tag32
	Reference Tag32
}

// NamedTag is a (name, class hash) -> Tag32 record embedded in selected
// archives (§3, glossary).
type NamedTag struct {
	Hash      Tag32
	ClassHash uint32
	Name      string
}

// PackageLanguage enumerates the language variants an archive can declare.
type PackageLanguage uint8

const (
	LanguageNone PackageLanguage = iota
	LanguageEnglish
	LanguageFrench
	LanguageItalian
	LanguageGerman
	LanguageSpanish
	LanguageJapanese
	LanguagePortuguese
	LanguageRussian
	LanguagePolish
	LanguageSimplifiedChinese
	LanguageTraditionalChinese
	LanguageKorean
)

// EnglishOrNone reports whether l is the "ship in every fleet" language
// subset used by the fleet discovery filter (§4.7).
func (l PackageLanguage) EnglishOrNone() bool {
	return l == LanguageNone || l == LanguageEnglish
}

// PackagePlatform enumerates the closed set of build/ship platforms a
// header can declare (added; grounded on original_source/src/package.rs).
type PackagePlatform int

const (
	PlatformTool32 PackagePlatform = iota
	PlatformWin32
	PlatformWin64
	PlatformX360
	PlatformPS3
	PlatformTool64
	PlatformWin64v1
	PlatformPS4
	PlatformXboxOne
	PlatformStadia
	PlatformPS5
	PlatformScarlett
)

// Endianness returns the byte order this platform's archives use. X360 and
// PS3 are big-endian consoles; everything else in this enumeration is
// little-endian.
func (p PackagePlatform) Endianness() string {
	switch p {
	case PlatformX360, PlatformPS3:
		return "big"
	default:
		return "little"
	}
}

var platformShortNames = map[PackagePlatform]string{
	PlatformTool32:   "tool32",
	PlatformWin32:    "w32",
	PlatformWin64:    "w64",
	PlatformX360:     "360",
	PlatformPS3:      "ps3",
	PlatformTool64:   "tool64",
	PlatformWin64v1:  "w64v1",
	PlatformPS4:      "ps4",
	PlatformXboxOne:  "xboxone",
	PlatformStadia:   "stadia",
	PlatformPS5:      "ps5",
	PlatformScarlett: "scarlett",
}

func (p PackagePlatform) String() string {
	if s, ok := platformShortNames[p]; ok {
		return s
	}
	return "unknown"
}

// ParsePlatform parses the short platform strings used in archive filenames.
func ParsePlatform(s string) (PackagePlatform, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range platformShortNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unrecognised platform %q", s)
}

// PackagePath is the decomposed filename of an archive on disk (§3):
// "<platform>_<name>[_<lang>]_<id>_<patch>.pkg".
type PackagePath struct {
	Platform PackagePlatform
	Name     string
	Language string // two-letter code, empty if absent
	ID       string // hex id or "unpN"
	Patch    uint8
	Path     string
}

// ParsePackagePath decomposes an archive filename into a PackagePath,
// falling back to best-effort defaults rather than erroring, matching the
// original's parse_with_defaults.
func ParsePackagePath(path string) PackagePath {
	base := path
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".pkg")

	parts := strings.Split(base, "_")
	pp := PackagePath{Path: path}
	if len(parts) < 3 {
		pp.Name = base
		return pp
	}

	patchStr := parts[len(parts)-1]
	idStr := parts[len(parts)-2]
	rest := parts[:len(parts)-2]

	if patch, err := parseUint8(patchStr); err == nil {
		pp.Patch = patch
	}
	pp.ID = idStr

	if len(rest) >= 1 {
		if platform, err := ParsePlatform(rest[0]); err == nil {
			pp.Platform = platform
			rest = rest[1:]
		}
	}

	if len(rest) >= 2 && len(rest[len(rest)-1]) == 2 {
		pp.Language = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	}

	pp.Name = strings.Join(rest, "_")
	return pp
}

func parseUint8(s string) (uint8, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil || v > 255 {
		return 0, fmt.Errorf("invalid patch id %q", s)
	}
	return uint8(v), nil
}
