package raft

import (
	"context"
	"testing"

	"github.com/cubefs/graphdb/common/kvstore"
	"github.com/stretchr/testify/require"
	etcdraft "go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

func newWalStorage(t *testing.T) *storage {
	engine, err := kvstore.NewKVStore(context.Background(), "", kvstore.MemKVType, &kvstore.Option{})
	require.NoError(t, err)
	s, err := newStorage(engine, []Member{{NodeID: 1, Host: "127.0.0.1:9560"}})
	require.NoError(t, err)
	return s
}

func entries(from, to, term uint64) []raftpb.Entry {
	var ret []raftpb.Entry
	for i := from; i <= to; i++ {
		ret = append(ret, raftpb.Entry{Index: i, Term: term, Type: raftpb.EntryNormal})
	}
	return ret
}

func TestStorageEmpty(t *testing.T) {
	s := newWalStorage(t)
	require.True(t, s.isEmpty())

	first, err := s.FirstIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)
	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(0), last)
}

func TestStorageAppendAndRead(t *testing.T) {
	s := newWalStorage(t)
	require.NoError(t, s.saveEntries(entries(1, 5, 1)))

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(5), last)

	got, err := s.Entries(2, 5, 1<<20)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, uint64(2), got[0].Index)

	term, err := s.Term(3)
	require.NoError(t, err)
	require.Equal(t, uint64(1), term)

	_, err = s.Entries(6, 7, 1<<20)
	require.Equal(t, etcdraft.ErrUnavailable, err)
}

// A conflicting append replaces the old suffix.
func TestStorageConflictingAppend(t *testing.T) {
	s := newWalStorage(t)
	require.NoError(t, s.saveEntries(entries(1, 5, 1)))
	require.NoError(t, s.saveEntries(entries(3, 4, 2)))

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(4), last)

	term, err := s.Term(4)
	require.NoError(t, err)
	require.Equal(t, uint64(2), term)
}

func TestStorageHardState(t *testing.T) {
	s := newWalStorage(t)
	hs := raftpb.HardState{Term: 7, Vote: 1, Commit: 3}
	require.NoError(t, s.saveHardState(hs))

	got, _, err := s.InitialState()
	require.NoError(t, err)
	require.Equal(t, hs, got)
}

func TestStorageTruncate(t *testing.T) {
	s := newWalStorage(t)
	require.NoError(t, s.saveEntries(entries(1, 10, 3)))
	require.NoError(t, s.Truncate(5))

	first, err := s.FirstIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(5), first)

	_, err = s.Entries(3, 6, 1<<20)
	require.Equal(t, etcdraft.ErrCompacted, err)

	term, err := s.Term(4)
	require.NoError(t, err)
	require.Equal(t, uint64(3), term)
}
