// Package config holds the tunable parameters consumed by the storage and
// replication layers: buffer fill caps, vote-history and removed-peer
// bounds, and the fault-injection probe rate. Values are loadable from TOML
// via github.com/BurntSushi/toml.
package config

import (
	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
)

const (
	defaultMaxBufferFillSizeBytes     = 2 << 20 // 2 MiB
	defaultConsensusMaxBatchSizeBytes = 1 << 20 // 1 MiB
	defaultVoteHistoryMaxSize         = 4
	defaultMaxRemovedPeers            = 100
)

// Tunables holds the runtime-adjustable parameters of the consensus and
// replication-buffer layers.
type Tunables struct {
	// MaxBufferFillSizeBytes caps a single cache-read attempt.
	MaxBufferFillSizeBytes int64 `toml:"max_buffer_fill_size_bytes"`
	// ConsensusMaxBatchSizeBytes caps total bytes staged for one peer.
	ConsensusMaxBatchSizeBytes int64 `toml:"consensus_max_batch_size_bytes"`
	// FaultCrashBeforeCMetaFlush is the probability, in [0,1], that Flush
	// aborts the process before writing. Test-only; unsafe in production.
	FaultCrashBeforeCMetaFlush float64 `toml:"fault_crash_before_cmeta_flush"`
	// VoteHistoryMaxSize bounds previous_vote_history's size.
	VoteHistoryMaxSize int `toml:"vote_history_max_size"`
	// MaxRemovedPeers bounds the removed-peers ring buffer.
	MaxRemovedPeers int `toml:"max_removed_peers"`
}

// Default returns the documented default tunables.
func Default() Tunables {
	return Tunables{
		MaxBufferFillSizeBytes:     defaultMaxBufferFillSizeBytes,
		ConsensusMaxBatchSizeBytes: defaultConsensusMaxBatchSizeBytes,
		FaultCrashBeforeCMetaFlush: 0.0,
		VoteHistoryMaxSize:         defaultVoteHistoryMaxSize,
		MaxRemovedPeers:            defaultMaxRemovedPeers,
	}
}

// Load decodes a TOML file at path into Tunables, filling any zero-valued
// field from Default().
func Load(path string) (Tunables, error) {
	t := Default()
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return Tunables{}, errors.Annotate(err, "decode tunables")
	}
	if t.MaxBufferFillSizeBytes == 0 {
		t.MaxBufferFillSizeBytes = defaultMaxBufferFillSizeBytes
	}
	if t.ConsensusMaxBatchSizeBytes == 0 {
		t.ConsensusMaxBatchSizeBytes = defaultConsensusMaxBatchSizeBytes
	}
	if t.VoteHistoryMaxSize == 0 {
		t.VoteHistoryMaxSize = defaultVoteHistoryMaxSize
	}
	if t.MaxRemovedPeers == 0 {
		t.MaxRemovedPeers = defaultMaxRemovedPeers
	}
	return t, nil
}
