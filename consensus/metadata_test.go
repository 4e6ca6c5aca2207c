package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xgpapad/kuduraft/config"
)

func testTunables(voteHistoryMax, maxRemoved int) config.Tunables {
	t := config.Default()
	t.VoteHistoryMaxSize = voteHistoryMax
	t.MaxRemovedPeers = maxRemoved
	return t
}

// Covers create-then-load round trip.
func TestCreateThenLoad(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFS()
	paths := NewDefaultFsPaths(dir)
	cfg := threeVoterConfig()

	cm, err := Create(fs, paths, "g", "p1", cfg, 1, FlushOnCreate, testTunables(3, 10), nil)
	require.NoError(t, err)
	require.NotNil(t, cm)

	loaded, err := Load(fs, paths, "g", "p1", testTunables(3, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.CurrentTerm())
	assert.Equal(t, cfg.Peers, loaded.CommittedConfig().Peers)
	assert.False(t, loaded.HasVotedFor())
	assert.Equal(t, int64(-1), loaded.LastPrunedTerm())
}

func TestCreateFlushOnCreateFailsIfPresent(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFS()
	paths := NewDefaultFsPaths(dir)
	cfg := threeVoterConfig()

	_, err := Create(fs, paths, "g", "p1", cfg, 1, FlushOnCreate, testTunables(3, 10), nil)
	require.NoError(t, err)

	_, err = Create(fs, paths, "g", "p1", cfg, 1, FlushOnCreate, testTunables(3, 10), nil)
	require.Error(t, err)
}

// Covers vote-history pruning down to capacity.
func TestSetVotedForPrunesToCapacity(t *testing.T) {
	dir := t.TempDir()
	cm, err := Create(NewLocalFS(), NewDefaultFsPaths(dir), "g", "p1", threeVoterConfig(), 1, NoFlushOnCreate, testTunables(3, 10), nil)
	require.NoError(t, err)

	cm.SetCurrentTerm(5)
	cm.SetVotedFor("a")
	cm.SetCurrentTerm(6)
	cm.SetVotedFor("b")
	cm.SetCurrentTerm(7)
	cm.SetVotedFor("c")
	cm.SetCurrentTerm(8)
	cm.SetVotedFor("d")

	hist := cm.PreviousVoteHistory()
	assert.Len(t, hist, 3)
	for _, term := range []int64{6, 7, 8} {
		_, ok := hist[term]
		assert.True(t, ok, "expected term %d in history", term)
	}
	assert.Equal(t, int64(5), cm.LastPrunedTerm())
}

// Covers pruning vote history by known-leader term.
func TestSetVotedForPrunesByKnownLeaderTerm(t *testing.T) {
	dir := t.TempDir()
	cm, err := Create(NewLocalFS(), NewDefaultFsPaths(dir), "g", "p1", threeVoterConfig(), 1, NoFlushOnCreate, testTunables(10, 10), nil)
	require.NoError(t, err)

	cm.persisted.PreviousVoteHistory = map[int64]VoteEntry{
		3: {Candidate: "x", Term: 3},
		4: {Candidate: "x", Term: 4},
		5: {Candidate: "x", Term: 5},
		6: {Candidate: "x", Term: 6},
	}
	cm.persisted.LastKnownLeader = LeaderInfo{UUID: "x", Term: 5}

	cm.SetCurrentTerm(7)
	cm.SetVotedFor("y")

	hist := cm.PreviousVoteHistory()
	assert.Len(t, hist, 2)
	_, ok6 := hist[6]
	_, ok7 := hist[7]
	assert.True(t, ok6)
	assert.True(t, ok7)
	assert.Equal(t, int64(5), cm.LastPrunedTerm())
}

// Covers MergeCommittedState resetting per-term state.
func TestMergeCommittedState(t *testing.T) {
	dir := t.TempDir()
	cm, err := Create(NewLocalFS(), NewDefaultFsPaths(dir), "g", "p1", threeVoterConfig(), 3, NoFlushOnCreate, testTunables(10, 10), nil)
	require.NoError(t, err)

	cm.SetVotedFor("x")
	cm.SetLeaderUUID("p2")

	newCfg := ConfigurationRecord{Peers: []Peer{
		{UUID: "p1", Role: RoleVoter, Host: "h1", Port: 1},
		{UUID: "p4", Role: RoleVoter, Host: "h4", Port: 1},
	}}
	cm.MergeCommittedState(5, newCfg)

	assert.Equal(t, int64(5), cm.CurrentTerm())
	_, hasVote := cm.VotedFor()
	assert.False(t, hasVote)
	assert.Equal(t, "", cm.LeaderUUID())
	assert.False(t, cm.HasPendingConfig())
	assert.Equal(t, newCfg.Peers, cm.CommittedConfig().Peers)
}

// Covers flush-then-load durability.
func TestFlushLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFS()
	paths := NewDefaultFsPaths(dir)

	cm, err := Create(fs, paths, "g", "p1", threeVoterConfig(), 1, FlushOnCreate, testTunables(3, 10), nil)
	require.NoError(t, err)

	cm.SetCurrentTerm(4)
	cm.SetVotedFor("p2")
	require.NoError(t, cm.Flush(Overwrite))

	loaded, err := Load(fs, paths, "g", "p1", testTunables(3, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, cm.CurrentTerm(), loaded.CurrentTerm())
	votedFor, _ := cm.VotedFor()
	loadedVotedFor, ok := loaded.VotedFor()
	assert.True(t, ok)
	assert.Equal(t, votedFor, loadedVotedFor)
	assert.Equal(t, cm.CommittedConfig().Peers, loaded.CommittedConfig().Peers)
}

func TestFlushRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cm, err := Create(NewLocalFS(), NewDefaultFsPaths(dir), "g", "p1", threeVoterConfig(), 1, NoFlushOnCreate, testTunables(3, 10), nil)
	require.NoError(t, err)

	cm.SetCommittedConfig(ConfigurationRecord{Peers: []Peer{{UUID: "only-learner", Role: RoleLearner, Host: "h", Port: 1}}})
	err = cm.Flush(Overwrite)
	require.Error(t, err)
}

// Covers active config overlay and role derivation.
func TestActiveConfigOverlayAndRole(t *testing.T) {
	dir := t.TempDir()
	cm, err := Create(NewLocalFS(), NewDefaultFsPaths(dir), "g", "p1", threeVoterConfig(), 1, NoFlushOnCreate, testTunables(3, 10), nil)
	require.NoError(t, err)

	assert.Equal(t, cm.CommittedConfig().Peers, cm.ActiveConfig().Peers)

	pending := threeVoterConfig()
	pending.Peers = append(pending.Peers, Peer{UUID: "p4", Role: RoleVoter, Host: "h4", Port: 1})
	cm.SetPendingConfig(pending)
	assert.True(t, cm.HasPendingConfig())
	assert.Equal(t, pending.Peers, cm.ActiveConfig().Peers)

	cm.SetLeaderUUID("p1")
	assert.Equal(t, RoleLeader, cm.Role())

	cm.ClearPendingConfig()
	assert.False(t, cm.HasPendingConfig())
	assert.Equal(t, cm.CommittedConfig().Peers, cm.ActiveConfig().Peers)
}

// Covers removed-peers tracking excluding active members.
func TestRemovedPeersMutualExclusion(t *testing.T) {
	dir := t.TempDir()
	cm, err := Create(NewLocalFS(), NewDefaultFsPaths(dir), "g", "p1", threeVoterConfig(), 1, NoFlushOnCreate, testTunables(3, 2), nil)
	require.NoError(t, err)

	cm.InsertRemoved([]string{"ghost1", "p1"})
	assert.True(t, cm.IsPeerRemoved("ghost1"))
	assert.False(t, cm.IsPeerRemoved("p1"), "active member must never be reported removed")

	cm.InsertRemoved([]string{"ghost2", "ghost3"})
	snap := cm.RemovedPeersSnapshot()
	assert.LessOrEqual(t, len(snap), 2)
}

func TestSyncLastKnownLeaderCasTerm(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFS()
	paths := NewDefaultFsPaths(dir)
	cm, err := Create(fs, paths, "g", "p1", threeVoterConfig(), 1, FlushOnCreate, testTunables(3, 10), nil)
	require.NoError(t, err)

	cm.SetLeaderUUID("p2")
	stale := int64(0)
	require.NoError(t, cm.SyncLastKnownLeader(&stale))
	assert.True(t, cm.LastKnownLeader().Empty(), "stale cas term must not flush")

	require.NoError(t, cm.SyncLastKnownLeader(nil))
	assert.Equal(t, "p2", cm.LastKnownLeader().UUID)
	assert.Equal(t, int64(1), cm.LastKnownLeader().Term)

	loaded, err := Load(fs, paths, "g", "p1", testTunables(3, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, "p2", loaded.LastKnownLeader().UUID)
}

func TestDeleteOnDisk(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFS()
	paths := NewDefaultFsPaths(dir)
	cm, err := Create(fs, paths, "g", "p1", threeVoterConfig(), 1, FlushOnCreate, testTunables(3, 10), nil)
	require.NoError(t, err)

	require.NoError(t, cm.DeleteOnDisk())
	_, err = Load(fs, paths, "g", "p1", testTunables(3, 10), nil)
	require.Error(t, err)
}
