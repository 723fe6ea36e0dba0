// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFleetSelectionLatestPatch mirrors spec §8's "Fleet selection" property:
// among files differing only in patch suffix, the manager retains exactly
// the lexicographically greatest-patch file per pkg id.
func TestFleetSelectionLatestPatch(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "w64_foo_0059_0.pkg"), []byte{}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "w64_foo_0059_1.pkg"), []byte{}, 0o644))
	winner := buildSyntheticBeyondLightArchiveAt(t, filepath.Join(dir, "w64_foo_0059_2.pkg"), 0x0059)

	paths, err := discoverPackagePaths(dir)
	require.NoError(t, err)

	got, ok := paths[0x0059]
	require.True(t, ok, "pkg id 0x0059 should be discovered")
	assert.Equal(t, winner, got)
}

func TestFleetOpenAndReadTag(t *testing.T) {
	dir := t.TempDir()
	buildSyntheticBeyondLightArchiveAt(t, filepath.Join(dir, "w64_foo_0059_0.pkg"), 0x0059)

	fleet, err := Open(context.Background(), dir, Destiny2BeyondLight, PlatformWin64)
	require.NoError(t, err)
	defer fleet.Close()

	tag := NewTag32(0x0059, 0)
	data, err := fleet.ReadTag(tag)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJ", string(data))

	entry, ok := fleet.GetEntry(tag)
	require.True(t, ok)
	assert.Equal(t, uint8(5), entry.FileType)

	refs := fleet.GetAllByReference(0xAAAAAAAA)
	require.Len(t, refs, 1)
	assert.Equal(t, tag, refs[0])

	byType := fleet.GetAllByType(5, nil)
	assert.Len(t, byType, 2)
}

func TestFleetGetOrOpenArchiveReusesReader(t *testing.T) {
	dir := t.TempDir()
	buildSyntheticBeyondLightArchiveAt(t, filepath.Join(dir, "w64_foo_0059_0.pkg"), 0x0059)

	fleet, err := Open(context.Background(), dir, Destiny2BeyondLight, PlatformWin64)
	require.NoError(t, err)
	defer fleet.Close()

	r1, err := fleet.getOrOpenArchive(0x0059)
	require.NoError(t, err)
	r2, err := fleet.getOrOpenArchive(0x0059)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
}

func TestFleetUnknownPkgID(t *testing.T) {
	dir := t.TempDir()
	buildSyntheticBeyondLightArchiveAt(t, filepath.Join(dir, "w64_foo_0059_0.pkg"), 0x0059)

	fleet, err := Open(context.Background(), dir, Destiny2BeyondLight, PlatformWin64)
	require.NoError(t, err)
	defer fleet.Close()

	_, err = fleet.getOrOpenArchive(0xdead)
	require.Error(t, err)
	pe, ok := err.(*PkgError)
	require.True(t, ok)
	assert.Equal(t, ErrKindNotFound, pe.Kind)
}
