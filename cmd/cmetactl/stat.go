package main

import (
	"fmt"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/disk"
	"github.com/spf13/cobra"

	"github.com/0xgpapad/kuduraft/consensus"
)

func newStatCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "stat",
		Short: "report on-disk metadata size and backing filesystem free space",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := consensus.NewDefaultFsPaths(dir)
			metaDir := paths.MetaDir()

			var totalBytes uint64
			entries, _ := filepath.Glob(filepath.Join(metaDir, "*"))
			for _, path := range entries {
				if info, err := filepathSize(path); err == nil {
					totalBytes += info
				}
			}
			fmt.Printf("metadata directory: %s\n", metaDir)
			fmt.Printf("records: %d, total size: %s\n", len(entries), units.HumanSize(float64(totalBytes)))

			usage, err := disk.Usage(dir)
			if err != nil {
				return fmt.Errorf("reading disk usage for %s: %w", dir, err)
			}
			fmt.Printf("filesystem free: %s / %s (%.1f%% used)\n",
				units.HumanSize(float64(usage.Free)), units.HumanSize(float64(usage.Total)), usage.UsedPercent)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "root data directory")
	cmd.MarkFlagRequired("dir")
	return cmd
}

func filepathSize(path string) (uint64, error) {
	fs := consensus.NewLocalFS()
	return fs.FileSize(path)
}
