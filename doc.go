// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package pkg provides read-only support for the package-archive format used
by a family of Destiny-era game titles, across every shipped generation and
platform.

Each archive is a self-describing container of opaque asset records
("entries"), addressable by a compact 32-bit tag. This package exposes both
a single-archive reader and a fleet-wide view over a directory of archives:
given a root directory and a declared title generation, it discovers the
latest patch of every archive, indexes every entry, and supports efficient
random reads by tag, by 64-bit alias, by content type, or by cross-reference.

# Features

  - Pure Go implementation, with an optional native LZ codec loaded at
    runtime via purego (no CGO required)
  - Support for every Destiny 1 and Destiny 2 generation, from the internal
    alpha through The Final Shape
  - AES-128-GCM block decryption, including the external per-group key table
  - A bounded, thread-safe per-archive block cache
  - A fleet manager with parallel indexing and two-tier on-disk caching

# Basic Usage

Opening a single archive:

	reader, err := pkg.Destiny2BeyondLight.Open("w64_common_0003_0.pkg")
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	data, err := reader.ReadEntry(0)
	if err != nil {
		log.Fatal(err)
	}

Opening a fleet:

	fleet, err := pkg.Open(ctx, "packages/", pkg.Destiny2BeyondLight, pkg.PlatformWin64)
	if err != nil {
		log.Fatal(err)
	}
	defer fleet.Close()

	tag, _ := pkg.ParseTag32("80800a0d")
	data, err := fleet.ReadTag(tag)

# Generations

[Generation] enumerates every supported title/version epoch. A generation
dispatched without an implemented reader (currently only [MarathonAlpha])
returns an Unimplemented error rather than panicking.

# Limitations

This package focuses on read access to the archive format:

  - No support for writing or repacking archives
  - No support for Marathon's closed alpha archive layout
  - Oodle decompression requires the matching native library to be present
    on the host; when it is not, reads of compressed blocks fail with
    CodecUnavailable rather than falling back to a pure Go decoder
*/
package pkg
