// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Command pkgunpack-refs dumps every entry fleet-wide whose reference
// matches a given value.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	pkg "github.com/v4nguard/destiny-pkg"
)

func main() {
	var generationID string
	var dryRun bool
	var outputDir string
	var platformName string

	cmd := &cobra.Command{
		Use:   "pkgunpack-refs <packages-dir> <reference>",
		Short: "Dump every fleet-wide entry whose reference matches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := pkg.ParseGeneration(generationID)
			if err != nil {
				return err
			}
			platform, err := pkg.ParsePlatform(platformName)
			if err != nil {
				return err
			}

			refStr := strings.TrimPrefix(args[1], "0x")
			ref64, err := strconv.ParseUint(refStr, 16, 32)
			if err != nil {
				return fmt.Errorf("parse reference %q: %w", args[1], err)
			}
			reference := uint32(ref64)

			fleet, err := pkg.Open(context.Background(), args[0], gen, platform)
			if err != nil {
				return fmt.Errorf("open fleet at %s: %w", args[0], err)
			}
			defer fleet.Close()

			for _, tag := range fleet.GetAllByReference(reference) {
				entry, ok := fleet.GetEntry(tag)
				if !ok {
					continue
				}

				ext := pkg.ClassifyExt(nil, entry.FileType, entry.FileSubtype)
				fmt.Printf("%04x/%d 0x%x - r=0x%08x (type=%d, subtype=%d, ext=%s)\n",
					tag.PkgID(), tag.EntryIndex(), entry.FileSize, entry.Reference, entry.FileType, entry.FileSubtype, ext)

				if dryRun {
					continue
				}

				dir := outputDir
				if dir == "" {
					dir = filepath.Join("out", fmt.Sprintf("%04x", tag.PkgID()))
				}
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output dir: %w", err)
				}

				data, err := fleet.ReadTag(tag)
				if err != nil {
					logrus.WithError(err).Warnf("failed to extract entry %04x/%d", tag.PkgID(), tag.EntryIndex())
					continue
				}

				outPath := filepath.Join(dir, fmt.Sprintf("%d_%08x_t%d_s%d.%s",
					tag.EntryIndex(), entry.Reference, entry.FileType, entry.FileSubtype, ext))
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&generationID, "generation", "", "archive generation id (e.g. d2_bl)")
	cmd.MarkFlagRequired("generation")
	cmd.Flags().StringVar(&platformName, "platform", "w64", "archive platform short name (e.g. w64)")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "don't extract any files, just print them")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory to extract to (default: ./out/<pkg-id>)")

	if err := cmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
