package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xgpapad/kuduraft/config"
	"github.com/0xgpapad/kuduraft/consensus"
)

type dumpView struct {
	Term            int64                          `json:"current_term"`
	VotedFor        string                         `json:"voted_for,omitempty"`
	Role            string                         `json:"role"`
	LeaderUUID      string                         `json:"last_known_leader,omitempty"`
	CommittedConfig consensus.ConfigurationRecord  `json:"committed_config"`
	PendingConfig   *consensus.ConfigurationRecord `json:"pending_config,omitempty"`
	VoteHistory     map[int64]consensus.VoteEntry  `json:"previous_vote_history,omitempty"`
	RemovedPeers    []string                       `json:"removed_peers,omitempty"`
}

func newDumpCmd() *cobra.Command {
	var dir, group, self string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "print a metadata record as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := consensus.NewLocalFS()
			paths := consensus.NewDefaultFsPaths(dir)
			cm, err := consensus.Load(fs, paths, group, self, config.Default(), nil)
			if err != nil {
				return err
			}

			view := dumpView{
				Term:            cm.CurrentTerm(),
				Role:            cm.Role().String(),
				LeaderUUID:      cm.LastKnownLeader().UUID,
				CommittedConfig: cm.CommittedConfig(),
				VoteHistory:     cm.PreviousVoteHistory(),
				RemovedPeers:    cm.RemovedPeersSnapshot(),
			}
			if votedFor, ok := cm.VotedFor(); ok {
				view.VotedFor = votedFor
			}
			if pending, ok := cm.PendingConfig(); ok {
				view.PendingConfig = &pending
			}

			out, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
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
