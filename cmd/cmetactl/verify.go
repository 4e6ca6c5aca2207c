package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xgpapad/kuduraft/config"
	"github.com/0xgpapad/kuduraft/consensus"
)

func newVerifyCmd() *cobra.Command {
	var dir, group, self string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "check a metadata record's committed configuration for structural validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := consensus.NewLocalFS()
			paths := consensus.NewDefaultFsPaths(dir)
			cm, err := consensus.Load(fs, paths, group, self, config.Default(), nil)
			if err != nil {
				return err
			}
			if err := consensus.Verify(cm.CommittedConfig()); err != nil {
				return fmt.Errorf("committed configuration is invalid: %w", err)
			}
			fmt.Println("ok:", cm.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "root data directory")
	cmd.Flags().StringVar(&group, "group", "", "replication group id")
	cmd.Flags().StringVar(&self, "self", "", "this peer's uuid, for role derivation")
	cmd.MarkFlagRequired("dir")
	cmd.MarkFlagRequired("group")
	return cmd
}
