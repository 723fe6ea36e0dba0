// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Built-in AES-128 keys and nonce base, shared across every Destiny-family
// generation regardless of which per-variant accessor exposes them.
var (
	aesKey0 = [16]byte{0xD6, 0x2A, 0xB2, 0xC1, 0x0C, 0xC0, 0x1B, 0xC5, 0x35, 0xDB, 0x7B, 0x86, 0x55, 0xC7, 0xDC, 0x3B}
	aesKey1 = [16]byte{0x3A, 0x4A, 0x5D, 0x36, 0x73, 0xA6, 0x60, 0x58, 0x7E, 0x63, 0xE6, 0x76, 0xE4, 0x08, 0x92, 0xB5}

	aesNonceBase = [12]byte{0x84, 0xDF, 0x11, 0xC0, 0xAC, 0xAB, 0xFA, 0x20, 0x33, 0x11, 0x26, 0x99}
)

// BlockHeader flag bits relevant to crypto state.
const (
	blockFlagEncrypted uint16 = 0x2
	blockFlagUseKey1   uint16 = 0x4
	blockFlagExternKey uint16 = 0x8
)

type externalKey struct {
	key [16]byte
	iv  [12]byte
}

var (
	externalKeysMu sync.RWMutex
	externalKeys   = map[uint64]externalKey{}
)

// RegisterKey registers an external group-id key at runtime, in addition to
// (or instead of) the keys loaded from a keys.txt sidecar file.
func RegisterKey(groupID uint64, key [16]byte, iv [12]byte) {
	externalKeysMu.Lock()
	defer externalKeysMu.Unlock()
	externalKeys[groupID] = externalKey{key: key, iv: iv}
}

// LoadKeysFile parses a keys.txt sidecar of lines
// "<group_id_hex>:<key_hex32>:<iv_hex24>[ // comment]". Malformed lines are
// logged and skipped; parsing continues to the end of the file.
func LoadKeysFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open keys file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		if err := parseKeyLine(line); err != nil {
			log.WithError(err).Warnf("keys.txt:%d: skipping malformed line", lineNo)
		}
	}
	return scanner.Err()
}

func parseKeyLine(line string) error {
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return fmt.Errorf("expected group:key:iv, got %d fields", len(parts))
	}

	groupID, err := parseHexUint64(parts[0])
	if err != nil {
		return fmt.Errorf("group id: %w", err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil || len(keyBytes) != 16 {
		return fmt.Errorf("key: expected 32 hex chars: %w", err)
	}
	ivBytes, err := hex.DecodeString(strings.TrimSpace(parts[2]))
	if err != nil || len(ivBytes) != 12 {
		return fmt.Errorf("iv: expected 24 hex chars: %w", err)
	}

	var k externalKey
	copy(k.key[:], keyBytes)
	copy(k.iv[:], ivBytes)

	RegisterKey(groupID, k.key, k.iv)
	return nil
}

func parseHexUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return strconv.ParseUint(s, 16, 64)
}

// cryptoState is the per-archive AES-GCM state: two built-in ciphers over a
// nonce derived from the archive id and generation, plus a possible external
// group-id cipher. The cipher handles are not safe for concurrent use, so
// every access goes through mu.
type cryptoState struct {
	mu sync.Mutex

	nonce   [12]byte
	cipher0 cipher.AEAD
	cipher1 cipher.AEAD

	groupID uint64
}

func newCryptoState(pkgID uint16, gen Generation, groupID uint64) (*cryptoState, error) {
	block0, err := aes.NewCipher(aesKey0[:])
	if err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "construct AES key 0")
	}
	gcm0, err := cipher.NewGCM(block0)
	if err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "construct GCM 0")
	}

	block1, err := aes.NewCipher(aesKey1[:])
	if err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "construct AES key 1")
	}
	gcm1, err := cipher.NewGCM(block1)
	if err != nil {
		return nil, wrapErr(ErrKindHeaderInvalid, err, "construct GCM 1")
	}

	cs := &cryptoState{
		nonce:   aesNonceBase,
		cipher0: gcm0,
		cipher1: gcm1,
		groupID: groupID,
	}
	cs.shiftNonce(pkgID, gen)
	return cs, nil
}

// shiftNonce mutates the nonce base into the per-archive nonce. 0xf9 applies
// only to Destiny2Beta and Destiny2Shadowkeep; every other generation
// (including every D1 generation, which never matches either arm) uses 0xea.
// This follows original_source/src/crypto.rs's shift_nonce exactly.
func (cs *cryptoState) shiftNonce(pkgID uint16, gen Generation) {
	cs.nonce[0] ^= byte(pkgID >> 8)
	switch gen {
	case Destiny2Beta, Destiny2Shadowkeep:
		cs.nonce[1] = 0xf9
	default:
		cs.nonce[1] = 0xea
	}
	cs.nonce[11] ^= byte(pkgID)
}

// decryptBlockInPlace decrypts data in place per the BlockHeader flags and
// 16-byte GCM tag, selecting the key material per §4.2.
func (cs *cryptoState) decryptBlockInPlace(flags uint16, tag [16]byte, data []byte) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var aead cipher.AEAD
	switch {
	case flags&blockFlagExternKey != 0:
		externalKeysMu.RLock()
		ext, ok := externalKeys[cs.groupID]
		externalKeysMu.RUnlock()
		if !ok {
			return newErr(ErrKindRedactedUnavailable, "no external key registered for group id %016x", cs.groupID)
		}
		block, err := aes.NewCipher(ext.key[:])
		if err != nil {
			return wrapErr(ErrKindRedactedUnavailable, err, "construct external AES key for group %016x", cs.groupID)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return wrapErr(ErrKindRedactedUnavailable, err, "construct external GCM for group %016x", cs.groupID)
		}
		aead = gcm
		return decryptInPlace(aead, ext.iv[:], tag, data, ErrKindRedactedUnavailable)
	case flags&blockFlagUseKey1 != 0:
		aead = cs.cipher1
	default:
		aead = cs.cipher0
	}

	return decryptInPlace(aead, cs.nonce[:], tag, data, ErrKindDecryptFailed)
}

func decryptInPlace(aead cipher.AEAD, nonce []byte, tag [16]byte, data []byte, failKind ErrorKind) error {
	sealed := make([]byte, len(data)+len(tag))
	copy(sealed, data)
	copy(sealed[len(data):], tag[:])

	plain, err := aead.Open(sealed[:0], nonce, sealed, nil)
	if err != nil {
		return wrapErr(failKind, err, "GCM tag verification failed")
	}
	copy(data, plain)
	return nil
}
