// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Command pkgunpack dumps every entry of a single archive to disk.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	pkg "github.com/v4nguard/destiny-pkg"
)

func main() {
	var generationID string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "pkgunpack <pkg-file>",
		Short: "Dump every entry of a single package archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := pkg.ParseGeneration(generationID)
			if err != nil {
				return err
			}

			reader, err := gen.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer reader.Close()

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			entries := reader.Entries()
			for i, e := range entries {
				if e.Reference != uint32(pkg.TagNone) {
					fmt.Printf("%d 0x%x - p=%x f=%x ", i, e.FileSize, (e.Reference>>13)&0x3ff, e.Reference&0x1fff)
				} else {
					fmt.Printf("%d 0x%x - ", i, e.FileSize)
				}

				ext := pkg.ClassifyExt(nil, e.FileType, e.FileSubtype)
				fmt.Printf("type=%d subtype=%d\n", e.FileType, e.FileSubtype)

				data, err := reader.ReadEntry(i)
				if err != nil {
					logrus.WithError(err).Warnf("failed to extract entry %d/%d", i, len(entries)-1)
					continue
				}

				outPath := filepath.Join(outputDir, fmt.Sprintf("%d.%s", i, ext))
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&generationID, "generation", "", "archive generation id (e.g. d2_bl)")
	cmd.MarkFlagRequired("generation")
	cmd.Flags().StringVar(&outputDir, "output-dir", "./files", "directory to extract entries into")

	if err := cmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
