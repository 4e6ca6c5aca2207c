package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xgpapad/kuduraft/config"
	"github.com/0xgpapad/kuduraft/consensus"
)

func newCreateCmd() *cobra.Command {
	var dir, group, self string
	var peers []string
	var term int64

	cmd := &cobra.Command{
		Use:   "create",
		Short: "initialize a new consensus metadata record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parsePeers(peers)
			if err != nil {
				return err
			}
			if err := consensus.Verify(cfg); err != nil {
				return fmt.Errorf("initial configuration is invalid: %w", err)
			}

			fs := consensus.NewLocalFS()
			paths := consensus.NewDefaultFsPaths(dir)
			cm, err := consensus.Create(fs, paths, group, self, cfg, term, consensus.FlushOnCreate, config.Default(), nil)
			if err != nil {
				return err
			}
			fmt.Println(cm.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "root data directory")
	cmd.Flags().StringVar(&group, "group", "", "replication group id")
	cmd.Flags().StringVar(&self, "self", "", "this peer's uuid")
	cmd.Flags().StringArrayVar(&peers, "peer", nil, "uuid=host:port, repeatable")
	cmd.Flags().Int64Var(&term, "term", 0, "initial term")
	cmd.MarkFlagRequired("dir")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("self")
	cmd.MarkFlagRequired("peer")
	return cmd
}

// parsePeers parses a list of "uuid=host:port" specs into a voter-only
// configuration record.
func parsePeers(specs []string) (consensus.ConfigurationRecord, error) {
	cfg := consensus.ConfigurationRecord{}
	for _, spec := range specs {
		uuid, hostport, ok := strings.Cut(spec, "=")
		if !ok {
			return cfg, fmt.Errorf("malformed --peer %q, expected uuid=host:port", spec)
		}
		host, portStr, ok := strings.Cut(hostport, ":")
		if !ok {
			return cfg, fmt.Errorf("malformed --peer %q, expected uuid=host:port", spec)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return cfg, fmt.Errorf("malformed port in --peer %q: %w", spec, err)
		}
		cfg.Peers = append(cfg.Peers, consensus.Peer{
			UUID: uuid,
			Role: consensus.RoleVoter,
			Host: host,
			Port: int32(port),
		})
	}
	return cfg, nil
}
