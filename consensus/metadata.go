package consensus

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/juju/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/0xgpapad/kuduraft/config"
)

// MinTerm is the lowest legal value of current_term.
const MinTerm int64 = 0

// CreateMode controls whether Create flushes the freshly constructed record.
type CreateMode int

const (
	FlushOnCreate CreateMode = iota
	NoFlushOnCreate
)

// ConsensusMetadata is the durable, per-replication-group record of Raft
// voting state and cluster configuration. All accessors and mutators are
// methods on this guard type; the mutex it embeds is the single exclusive
// lock, so callers never see partial state and never need a lock of their
// own.
type ConsensusMetadata struct {
	mu sync.Mutex

	fs    FsEnvironment
	paths FsPaths
	log   *zap.Logger

	groupID  string
	selfUUID string

	persisted     PersistedMetadata
	pendingConfig *ConfigurationRecord
	leaderUUID    string
	activeRole    ActiveRole
	removedPeers  *removedPeersRing
	onDiskSize    uint64

	flushCount atomic.Uint64
	tunables   config.Tunables
	faultProbe FaultProbe
}

// Create constructs a brand-new ConsensusMetadata with the given committed
// config and term. In FlushOnCreate mode it flushes immediately with
// NoOverwrite semantics, failing with ErrAlreadyPresent if the record file
// already exists; otherwise it merely checks that the file is absent.
func Create(fs FsEnvironment, paths FsPaths, groupID, selfUUID string, initialCfg ConfigurationRecord, initialTerm int64, mode CreateMode, tun config.Tunables, log *zap.Logger) (*ConsensusMetadata, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cm := &ConsensusMetadata{
		fs:       fs,
		paths:    paths,
		log:      log,
		groupID:  groupID,
		selfUUID: selfUUID,
		persisted: PersistedMetadata{
			CurrentTerm:     initialTerm,
			CommittedConfig: initialCfg.Clone(),
			LastPrunedTerm:  -1,
		},
		removedPeers: newRemovedPeersRing(tun.MaxRemovedPeers),
		tunables:     tun,
		faultProbe:   defaultFaultProbe(tun.FaultCrashBeforeCMetaFlush),
	}
	cm.recomputeActiveRole()

	path := paths.MetaPath(groupID)
	if mode == FlushOnCreate {
		if err := cm.flushLocked(NoOverwrite); err != nil {
			return nil, err
		}
	} else if fs.FileExists(path) {
		return nil, errors.Trace(ErrAlreadyPresent)
	}
	log.Info("created consensus metadata", zap.String("group", groupID), zap.String("self", selfUUID), zap.Int64("term", initialTerm))
	return cm, nil
}

// Load reads a persisted record from disk, recomputing active role and the
// on-disk size cache.
func Load(fs FsEnvironment, paths FsPaths, groupID, selfUUID string, tun config.Tunables, log *zap.Logger) (*ConsensusMetadata, error) {
	if log == nil {
		log = zap.NewNop()
	}
	path := paths.MetaPath(groupID)
	raw, err := fs.ReadRecord(path)
	if err != nil {
		return nil, err
	}
	persisted, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	size, err := fs.FileSize(path)
	if err != nil {
		return nil, err
	}
	cm := &ConsensusMetadata{
		fs:           fs,
		paths:        paths,
		log:          log,
		groupID:      groupID,
		selfUUID:     selfUUID,
		persisted:    persisted,
		removedPeers: newRemovedPeersRing(tun.MaxRemovedPeers),
		onDiskSize:   size,
		tunables:     tun,
		faultProbe:   defaultFaultProbe(tun.FaultCrashBeforeCMetaFlush),
	}
	cm.recomputeActiveRole()
	log.Info("loaded consensus metadata", zap.String("group", groupID), zap.Int64("term", persisted.CurrentTerm))
	return cm, nil
}

// activeConfigLocked returns the active configuration: pending if present,
// else committed. Caller must hold mu.
func (cm *ConsensusMetadata) activeConfigLocked() ConfigurationRecord {
	if cm.pendingConfig != nil {
		return *cm.pendingConfig
	}
	return cm.persisted.CommittedConfig
}

func (cm *ConsensusMetadata) recomputeActiveRole() {
	cm.activeRole = ComputeRole(cm.selfUUID, cm.leaderUUID, cm.activeConfigLocked())
}

// Flush validates the committed config, creates the metadata directory if
// missing (fsyncing its parent on first creation), writes the record with
// fsync, and refreshes the on-disk size cache.
func (cm *ConsensusMetadata) Flush(mode WriteMode) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.flushLocked(mode)
}

func (cm *ConsensusMetadata) flushLocked(mode WriteMode) error {
	if err := Verify(cm.persisted.CommittedConfig); err != nil {
		return errors.Annotate(ErrInvalidConfig, err.Error())
	}

	dir := cm.paths.MetaDir()
	created, err := cm.fs.CreateDirIfMissing(dir)
	if err != nil {
		return err
	}
	if created {
		if err := cm.fs.SyncDir(filepath.Dir(dir)); err != nil {
			return err
		}
	}

	if cm.faultProbe != nil {
		cm.faultProbe()
	}

	payload, err := encodeRecord(cm.persisted)
	if err != nil {
		return err
	}
	path := cm.paths.MetaPath(cm.groupID)
	if err := cm.fs.WriteRecord(path, payload, mode, Sync); err != nil {
		return err
	}

	size, err := cm.fs.FileSize(path)
	if err != nil {
		return err
	}
	cm.onDiskSize = size
	cm.flushCount.Inc()
	cm.log.Info("flushed consensus metadata",
		zap.String("group", cm.groupID),
		zap.Int64("term", cm.persisted.CurrentTerm),
		zap.Uint64("flush_count", cm.flushCount.Load()))
	return nil
}

// DeleteOnDisk removes the persisted record file.
func (cm *ConsensusMetadata) DeleteOnDisk() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.fs.DeleteFile(cm.paths.MetaPath(cm.groupID))
}

// --- Accessors -------------------------------------------------------------

func (cm *ConsensusMetadata) CurrentTerm() int64 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.persisted.CurrentTerm
}

func (cm *ConsensusMetadata) HasVotedFor() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.persisted.VotedFor != nil
}

func (cm *ConsensusMetadata) VotedFor() (string, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.persisted.VotedFor == nil {
		return "", false
	}
	return *cm.persisted.VotedFor, true
}

func (cm *ConsensusMetadata) HasPendingConfig() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.pendingConfig != nil
}

func (cm *ConsensusMetadata) PendingConfig() (ConfigurationRecord, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.pendingConfig == nil {
		return ConfigurationRecord{}, false
	}
	return cm.pendingConfig.Clone(), true
}

func (cm *ConsensusMetadata) CommittedConfig() ConfigurationRecord {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.persisted.CommittedConfig.Clone()
}

func (cm *ConsensusMetadata) ActiveConfig() ConfigurationRecord {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.activeConfigLocked().Clone()
}

func (cm *ConsensusMetadata) LeaderUUID() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.leaderUUID
}

func (cm *ConsensusMetadata) LastKnownLeader() LeaderInfo {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.persisted.LastKnownLeader
}

// PreviousVoteHistory returns a copy of the sparse vote history map.
func (cm *ConsensusMetadata) PreviousVoteHistory() map[int64]VoteEntry {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	out := make(map[int64]VoteEntry, len(cm.persisted.PreviousVoteHistory))
	for k, v := range cm.persisted.PreviousVoteHistory {
		out[k] = v
	}
	return out
}

func (cm *ConsensusMetadata) LastPrunedTerm() int64 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.persisted.LastPrunedTerm
}

func (cm *ConsensusMetadata) Role() ActiveRole {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.activeRole
}

func (cm *ConsensusMetadata) RemovedPeersSnapshot() []string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.removedPeers.Snapshot()
}

func (cm *ConsensusMetadata) FlushCount() uint64 {
	return cm.flushCount.Load()
}

func (cm *ConsensusMetadata) OnDiskSize() uint64 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.onDiskSize
}

// --- Mutators (memory-only unless noted) ------------------------------------

// SetCurrentTerm sets the current term. It only asserts the protocol-level
// floor; monotonicity against the previous term is a caller contract
// enforced everywhere except MergeCommittedState.
func (cm *ConsensusMetadata) SetCurrentTerm(t int64) {
	if t < MinTerm {
		panic(fmt.Sprintf("consensus: term %d below minimum %d", t, MinTerm))
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.persisted.CurrentTerm = t
}

func (cm *ConsensusMetadata) ClearVotedFor() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.persisted.VotedFor = nil
}

// SetVotedFor records a vote grant for uuid in the current term and runs the
// vote-history pruning algorithm.
func (cm *ConsensusMetadata) SetVotedFor(uuid string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	v := uuid
	cm.persisted.VotedFor = &v
	if cm.persisted.PreviousVoteHistory == nil {
		cm.persisted.PreviousVoteHistory = make(map[int64]VoteEntry)
	}
	term := cm.persisted.CurrentTerm
	cm.persisted.PreviousVoteHistory[term] = VoteEntry{Candidate: uuid, Term: term}

	cm.pruneVoteHistoryLocked()
}

func (cm *ConsensusMetadata) pruneVoteHistoryLocked() {
	hist := cm.persisted.PreviousVoteHistory

	// 1. Prune up to last-known-leader term, ascending key order.
	keys := sortedKeys(hist)
	leaderTerm := cm.persisted.LastKnownLeader.Term
	for _, k := range keys {
		if k > leaderTerm {
			break
		}
		delete(hist, k)
		if k > cm.persisted.LastPrunedTerm {
			cm.persisted.LastPrunedTerm = k
		}
	}

	// 2. Prune to capacity, evicting the smallest key.
	maxSize := cm.tunables.VoteHistoryMaxSize
	for len(hist) > maxSize {
		keys = sortedKeys(hist)
		smallest := keys[0]
		delete(hist, smallest)
		cm.persisted.LastPrunedTerm = smallest
	}
}

func sortedKeys(m map[int64]VoteEntry) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (cm *ConsensusMetadata) SetCommittedConfig(cfg ConfigurationRecord) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.persisted.CommittedConfig = cfg.Clone()
	if cm.pendingConfig == nil {
		cm.recomputeActiveRole()
	}
}

func (cm *ConsensusMetadata) SetPendingConfig(cfg ConfigurationRecord) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	c := cfg.Clone()
	cm.pendingConfig = &c
	cm.recomputeActiveRole()
}

func (cm *ConsensusMetadata) ClearPendingConfig() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.pendingConfig = nil
	cm.recomputeActiveRole()
}

// SetActiveConfig writes cfg to the pending slot if one is present, else to
// the committed slot.
func (cm *ConsensusMetadata) SetActiveConfig(cfg ConfigurationRecord) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	c := cfg.Clone()
	if cm.pendingConfig != nil {
		cm.pendingConfig = &c
	} else {
		cm.persisted.CommittedConfig = c
	}
	cm.recomputeActiveRole()
}

// SetLeaderUUID updates the in-memory leader and recomputes role; it does
// not flush. SyncLastKnownLeader is the only path that persists it.
func (cm *ConsensusMetadata) SetLeaderUUID(uuid string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.leaderUUID = uuid
	cm.recomputeActiveRole()
}

// SyncLastKnownLeader persists leaderUUID as last_known_leader and flushes.
// If casTerm is non-nil and does not match the current term, it is a no-op
// that returns success without flushing (the caller's view is stale).
func (cm *ConsensusMetadata) SyncLastKnownLeader(casTerm *int64) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.leaderUUID == "" {
		return nil
	}
	if casTerm != nil && *casTerm != cm.persisted.CurrentTerm {
		return nil
	}
	cm.persisted.LastKnownLeader = LeaderInfo{UUID: cm.leaderUUID, Term: cm.persisted.CurrentTerm}
	return cm.flushLocked(Overwrite)
}

// MergeCommittedState adopts a remote peer's committed state: if the remote
// term is newer, the local term is raised and the vote cleared; the leader
// is always cleared and the pending config dropped.
func (cm *ConsensusMetadata) MergeCommittedState(remoteTerm int64, remoteCfg ConfigurationRecord) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if remoteTerm > cm.persisted.CurrentTerm {
		cm.persisted.CurrentTerm = remoteTerm
		cm.persisted.VotedFor = nil
	}
	cm.leaderUUID = ""
	cm.persisted.CommittedConfig = remoteCfg.Clone()
	cm.pendingConfig = nil
	cm.recomputeActiveRole()
}

// ToConsensusState returns a snapshot suitable for export to peers.
func (cm *ConsensusMetadata) ToConsensusState() ConsensusState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	out := ConsensusState{
		CurrentTerm:     cm.persisted.CurrentTerm,
		LeaderUUID:      cm.leaderUUID,
		CommittedConfig: cm.persisted.CommittedConfig.Clone(),
	}
	if cm.pendingConfig != nil {
		p := cm.pendingConfig.Clone()
		out.PendingConfig = &p
	}
	return out
}

// InsertRemoved appends each uuid not currently a member of the active
// config to the removed-peers registry.
func (cm *ConsensusMetadata) InsertRemoved(uuids []string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	active := cm.activeConfigLocked()
	fresh := make([]string, 0, len(uuids))
	for _, u := range uuids {
		if !IsMember(u, active) {
			fresh = append(fresh, u)
		}
	}
	cm.removedPeers.Insert(fresh)
}

// IsPeerRemoved reports false for any current member of the active config,
// regardless of registry contents; otherwise it reflects the registry.
func (cm *ConsensusMetadata) IsPeerRemoved(uuid string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if IsMember(uuid, cm.activeConfigLocked()) {
		return false
	}
	return cm.removedPeers.Contains(uuid)
}

func (cm *ConsensusMetadata) DeleteRemoved(uuid string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removedPeers.Delete(uuid)
}

func (cm *ConsensusMetadata) DeleteRemovedAll(uuids []string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removedPeers.DeleteAll(uuids)
}

func (cm *ConsensusMetadata) ClearRemoved() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removedPeers.Clear()
}

// String renders a short debug summary, printed by cmetactl.
func (cm *ConsensusMetadata) String() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return fmt.Sprintf("CMeta{group=%s self=%s term=%d role=%s voters=%d}",
		cm.groupID, cm.selfUUID, cm.persisted.CurrentTerm, cm.activeRole, CountVoters(cm.activeConfigLocked()))
}
