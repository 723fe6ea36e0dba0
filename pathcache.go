// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// CurrentPathCacheVersion is bumped whenever the on-disk JSON shape changes.
// The Go port's shape is not wire-compatible with the original's
// bincode/serde_json layout, so version numbering restarts at 1 rather than
// inheriting the original's VERSION = 4.
const CurrentPathCacheVersion = 1

type pathCacheFile struct {
	Version   int               `json:"version"`
	RootDir   string            `json:"root_dir"`
	Gen       string            `json:"generation"`
	Platform  string            `json:"platform"`
	Timestamp time.Time         `json:"timestamp"`
	Paths     map[string]string `json:"paths"`
}

func pathCacheLocation(rootDir string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", wrapErr(ErrKindCacheOutdated, err, "resolve executable path")
	}
	return filepath.Join(filepath.Dir(exe), "package_cache.json"), nil
}

func loadPathCache(rootDir string, gen Generation, platform PackagePlatform) (map[uint16]string, bool) {
	loc, err := pathCacheLocation(rootDir)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(loc)
	if err != nil {
		return nil, false
	}

	var cf pathCacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		log.WithError(err).Warn("path cache: unreadable, rebuilding")
		return nil, false
	}
	if cf.Version != CurrentPathCacheVersion || cf.RootDir != rootDir || cf.Gen != gen.ID() || cf.Platform != platform.String() {
		return nil, false
	}

	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, false
	}
	if cf.Timestamp.Before(info.ModTime()) {
		log.WithField("root_dir", rootDir).Info("path cache: root directory mtime advanced past cache timestamp, rebuilding")
		return nil, false
	}

	out := make(map[uint16]string, len(cf.Paths))
	for k, v := range cf.Paths {
		id, err := parseHexUint64(k)
		if err != nil {
			continue
		}
		out[uint16(id)] = v
	}
	return out, true
}

func savePathCache(rootDir string, gen Generation, platform PackagePlatform, paths map[uint16]string) {
	loc, err := pathCacheLocation(rootDir)
	if err != nil {
		log.WithError(err).Warn("path cache: could not resolve save location")
		return
	}

	strPaths := make(map[string]string, len(paths))
	for id, path := range paths {
		strPaths[formatHexUint16(id)] = path
	}

	timestamp := time.Now()
	if info, statErr := os.Stat(rootDir); statErr == nil {
		timestamp = info.ModTime()
	}

	cf := pathCacheFile{
		Version:   CurrentPathCacheVersion,
		RootDir:   rootDir,
		Gen:       gen.ID(),
		Platform:  platform.String(),
		Timestamp: timestamp,
		Paths:     strPaths,
	}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		log.WithError(err).Warn("path cache: could not marshal")
		return
	}
	if err := os.WriteFile(loc, data, 0o644); err != nil {
		log.WithError(err).Warn("path cache: could not write")
	}
}

func formatHexUint16(v uint16) string {
	const hexDigits = "0123456789abcdef"
	b := [4]byte{}
	for i := 3; i >= 0; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b[:])
}
