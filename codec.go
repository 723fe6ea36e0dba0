// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// CodecVersion selects which of the two coexisting LZ codec builds a
// generation uses to decompress its blocks.
type CodecVersion int

const (
	// CodecV3 serves D1 and D2 generations through Shadowkeep.
	CodecV3 CodecVersion = iota
	// CodecV9 serves D2 Beyond Light and later.
	CodecV9
)

func (v CodecVersion) libraryName() string {
	switch runtime.GOOS {
	case "windows":
		if v == CodecV3 {
			return "oo2core_3_win64.dll"
		}
		return "oo2core_9_win64.dll"
	default:
		if v == CodecV3 {
			return "liboo2corelinux64_3.so"
		}
		return "liboo2corelinux64_9.so"
	}
}

// oodleDecompressFunc mirrors the native signature of OodleLZ_Decompress:
// (compressed, compressedSize, output, outputSize, fuzzSafe, checkCRC,
// verbosity, decBufBase, decBufSize, fpCallback, callbackUserData,
// decoderMemory, decoderMemorySize, threadPhase) int64. This adapter only
// ever needs the leading (in, inLen, out, outLen) and trailing thread-phase
// argument; every pointer-typed slot in between is passed as a null.
type oodleDecompressFunc func(
	compressed uintptr, compressedSize int64,
	output uintptr, outputSize int64,
	fuzzSafe int32, checkCRC int32, verbosity int32,
	decBufBase uintptr, decBufSize int64,
	fpCallback uintptr, callbackUserData uintptr,
	decoderMemory uintptr, decoderMemorySize int64,
	threadPhase int32,
) int64

const (
	oodleFuzzSafeYes  int32 = 1
	oodleCheckCRCNo   int32 = 0
	oodleVerbosityMin int32 = 0
	oodleThreadPhase  int32 = 3 // "all" phases
)

type oodleAdapter struct {
	once       sync.Once
	available  bool
	decompress oodleDecompressFunc
}

func (a *oodleAdapter) load(version CodecVersion) {
	a.once.Do(func() {
		name := version.libraryName()
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			log.WithError(err).Warnf("codec: could not load %s, decompression for this version will fail", name)
			return
		}
		purego.RegisterLibFunc(&a.decompress, lib, "OodleLZ_Decompress")
		a.available = true
	})
}

// Decompress runs the external LZ codec over input, writing up to len(output)
// decoded bytes into output and returning the number of bytes written.
func (a *oodleAdapter) Decompress(input []byte, output []byte) (int64, error) {
	if !a.available {
		return 0, newErr(ErrKindCodecUnavailable, "codec adapter not loaded")
	}

	n := a.decompress(
		uintptrOf(input), int64(len(input)),
		uintptrOf(output), int64(len(output)),
		oodleFuzzSafeYes, oodleCheckCRCNo, oodleVerbosityMin,
		0, 0,
		0, 0,
		0, 0,
		oodleThreadPhase,
	)
	if n <= 0 {
		return 0, newErr(ErrKindCodecFailed, "OodleLZ_Decompress returned %d", n)
	}
	return n, nil
}

var (
	codecV3 = &oodleAdapter{}
	codecV9 = &oodleAdapter{}
)

func adapterFor(v CodecVersion) *oodleAdapter {
	switch v {
	case CodecV3:
		codecV3.load(CodecV3)
		return codecV3
	default:
		codecV9.load(CodecV9)
		return codecV9
	}
}

// CodecStatus reports which of the two codec versions loaded successfully,
// for startup diagnostics.
func CodecStatus() map[string]bool {
	return map[string]bool{
		"v3": codecV3.available,
		"v9": codecV9.available,
	}
}

func decompressBlock(version CodecVersion, compressed []byte, decodedSize int) ([]byte, error) {
	out := make([]byte, decodedSize)
	adapter := adapterFor(version)
	n, err := adapter.Decompress(compressed, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
