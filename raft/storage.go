package raft

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/cubefs/graphdb/common/kvstore"
	etcdraft "go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

// WalCF is the column family holding the raft log and state records.
const WalCF = kvstore.CF("raft-wal")

var (
	logKeyPrefix = []byte("l")
	hardStateKey = []byte("h")
	confStateKey = []byte("c")
)

// storage implements etcd raft.Storage over the local kv engine. Entries,
// hard state and conf state live in WalCF; the applied index is owned by
// the state machine.
type storage struct {
	kvStore kvstore.Store

	mu         sync.RWMutex
	firstIndex uint64
	lastIndex  uint64
	truncTerm  uint64
	hardState  raftpb.HardState
	confState  raftpb.ConfState
	empty      bool
}

func newStorage(kvStore kvstore.Store, members []Member) (*storage, error) {
	if err := kvStore.CreateColumn(WalCF); err != nil {
		return nil, err
	}

	s := &storage{kvStore: kvStore, firstIndex: 1, lastIndex: 0, empty: true}
	ctx := context.Background()

	if raw, err := kvStore.GetRaw(ctx, WalCF, hardStateKey); err == nil {
		if err = s.hardState.Unmarshal(raw); err != nil {
			return nil, err
		}
		s.empty = false
	} else if err != kvstore.ErrNotFound {
		return nil, err
	}

	if raw, err := kvStore.GetRaw(ctx, WalCF, confStateKey); err == nil {
		if err = s.confState.Unmarshal(raw); err != nil {
			return nil, err
		}
	} else if err != kvstore.ErrNotFound {
		return nil, err
	}

	// recover log bounds
	lr := s.kvStore.List(ctx, WalCF, logKeyPrefix, nil)
	defer lr.Close()
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, err
		}
		if key == nil {
			break
		}
		index := decodeLogKey(key)
		if s.lastIndex == 0 {
			s.firstIndex = index
		}
		s.lastIndex = index
		entry := raftpb.Entry{}
		if err = entry.Unmarshal(value); err != nil {
			return nil, err
		}
		_ = entry
	}
	if s.lastIndex > 0 {
		s.empty = false
	}
	return s, nil
}

func (s *storage) isEmpty() bool {
	return s.empty
}

func (s *storage) InitialState() (raftpb.HardState, raftpb.ConfState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hardState, s.confState, nil
}

func (s *storage) Entries(lo, hi, maxSize uint64) ([]raftpb.Entry, error) {
	s.mu.RLock()
	first, last := s.firstIndex, s.lastIndex
	s.mu.RUnlock()

	if lo < first {
		return nil, etcdraft.ErrCompacted
	}
	if hi > last+1 {
		return nil, etcdraft.ErrUnavailable
	}

	ctx := context.Background()
	start := encodeLogKey(lo)
	end := encodeLogKey(hi)
	lr := s.kvStore.Range(ctx, WalCF, start, end)
	defer lr.Close()

	var (
		ret  []raftpb.Entry
		size uint64
	)
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return nil, err
		}
		if key == nil {
			break
		}
		entry := raftpb.Entry{}
		if err = entry.Unmarshal(value); err != nil {
			return nil, err
		}
		size += uint64(entry.Size())
		if len(ret) > 0 && size > maxSize {
			break
		}
		ret = append(ret, entry)
	}
	if len(ret) == 0 {
		return nil, etcdraft.ErrUnavailable
	}
	return ret, nil
}

func (s *storage) Term(i uint64) (uint64, error) {
	s.mu.RLock()
	first, last, truncTerm := s.firstIndex, s.lastIndex, s.truncTerm
	s.mu.RUnlock()

	if i == first-1 {
		return truncTerm, nil
	}
	if i < first {
		return 0, etcdraft.ErrCompacted
	}
	if i > last {
		return 0, etcdraft.ErrUnavailable
	}

	raw, err := s.kvStore.GetRaw(context.Background(), WalCF, encodeLogKey(i))
	if err != nil {
		return 0, err
	}
	entry := raftpb.Entry{}
	if err = entry.Unmarshal(raw); err != nil {
		return 0, err
	}
	return entry.Term, nil
}

func (s *storage) LastIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastIndex, nil
}

func (s *storage) FirstIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstIndex, nil
}

func (s *storage) Snapshot() (raftpb.Snapshot, error) {
	// log transfer by snapshot is delegated to the state machine's own
	// checkpoint path; raft only needs the compaction metadata here.
	s.mu.RLock()
	defer s.mu.RUnlock()
	return raftpb.Snapshot{
		Metadata: raftpb.SnapshotMetadata{
			Index:     s.firstIndex - 1,
			Term:      s.truncTerm,
			ConfState: s.confState,
		},
	}, nil
}

func (s *storage) saveEntries(entries []raftpb.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx := context.Background()
	batch := s.kvStore.NewWriteBatch()
	defer batch.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	// entries after a conflicting append supersede the old suffix
	first := entries[0].Index
	if s.lastIndex >= first {
		batch.DeleteRange(WalCF, encodeLogKey(first), encodeLogKey(s.lastIndex+1))
	}
	for i := range entries {
		data, err := entries[i].Marshal()
		if err != nil {
			return err
		}
		batch.Put(WalCF, encodeLogKey(entries[i].Index), data)
	}
	if err := s.kvStore.Write(ctx, batch); err != nil {
		return err
	}
	if s.lastIndex == 0 {
		s.firstIndex = first
	}
	s.lastIndex = entries[len(entries)-1].Index
	s.empty = false
	return nil
}

func (s *storage) saveHardState(hs raftpb.HardState) error {
	data, err := hs.Marshal()
	if err != nil {
		return err
	}
	if err = s.kvStore.SetRaw(context.Background(), WalCF, hardStateKey, data); err != nil {
		return err
	}
	s.mu.Lock()
	s.hardState = hs
	s.empty = false
	s.mu.Unlock()
	return nil
}

func (s *storage) saveConfState(cs raftpb.ConfState) error {
	data, err := cs.Marshal()
	if err != nil {
		return err
	}
	if err = s.kvStore.SetRaw(context.Background(), WalCF, confStateKey, data); err != nil {
		return err
	}
	s.mu.Lock()
	s.confState = cs
	s.mu.Unlock()
	return nil
}

// Truncate drops log entries below index, keeping the term of the last
// dropped entry for matching.
func (s *storage) Truncate(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index <= s.firstIndex || index > s.lastIndex {
		return nil
	}

	term, err := s.termLocked(index - 1)
	if err != nil {
		return err
	}

	batch := s.kvStore.NewWriteBatch()
	defer batch.Close()
	batch.DeleteRange(WalCF, encodeLogKey(s.firstIndex), encodeLogKey(index))
	if err := s.kvStore.Write(context.Background(), batch); err != nil {
		return err
	}
	s.firstIndex = index
	s.truncTerm = term
	return nil
}

func (s *storage) termLocked(i uint64) (uint64, error) {
	raw, err := s.kvStore.GetRaw(context.Background(), WalCF, encodeLogKey(i))
	if err != nil {
		return 0, err
	}
	entry := raftpb.Entry{}
	if err = entry.Unmarshal(raw); err != nil {
		return 0, err
	}
	return entry.Term, nil
}

func encodeLogKey(index uint64) []byte {
	key := make([]byte, len(logKeyPrefix)+8)
	copy(key, logKeyPrefix)
	binary.BigEndian.PutUint64(key[len(logKeyPrefix):], index)
	return key
}

func decodeLogKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(logKeyPrefix):])
}
