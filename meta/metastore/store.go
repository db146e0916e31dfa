// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package metastore is the strongly-consistent KV facade all catalog
// metadata lives on: one default space, one default partition, replicated
// through the catalog raft group. Writes are asynchronous; completions are
// delivered from the replicator, and processors block on the Sync*
// adapters.
package metastore

import (
	"context"
	"errors"

	"github.com/cubefs/graphdb/proto"
)

var (
	ErrNotFound      = errors.New("metastore: key not found")
	ErrLeaderChanged = errors.New("metastore: leader changed")
	ErrStoreFailure  = errors.New("metastore: store failure")
	ErrWriteBlocked  = errors.New("metastore: writes blocked")
	ErrUnsupported   = errors.New("metastore: unsupported operation")
)

// Engine capability bits.
const (
	CapFiltering uint32 = 1 << iota
	CapAsync
)

type KV struct {
	Key   []byte
	Value []byte
}

// Iterator yields key/value slices in ascending key order. Slices stay
// valid until the next move; callers must not retain them. The prefix or
// range arguments handed to the scan must outlive the iterator.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Val() []byte
	Err() error
	Close()
}

type Callback func(err error)

// AtomicOp produces the write set of an atomic mutation, or aborts by
// returning an error. It runs on the proposing node right before the
// batch is submitted.
type AtomicOp func() (puts []KV, removes [][]byte, err error)

type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	// MultiGet returns a value and a status per key; a missing key yields
	// ErrNotFound at its position.
	MultiGet(ctx context.Context, keys [][]byte) ([][]byte, []error)
	Prefix(ctx context.Context, prefix []byte) (Iterator, error)
	Range(ctx context.Context, start, end []byte) (Iterator, error)
	RangeWithPrefix(ctx context.Context, start, prefix []byte) (Iterator, error)

	AsyncMultiPut(ctx context.Context, kvs []KV, cb Callback)
	AsyncRemove(ctx context.Context, key []byte, cb Callback)
	AsyncMultiRemove(ctx context.Context, keys [][]byte, cb Callback)
	AsyncRemoveRange(ctx context.Context, start, end []byte, cb Callback)
	AsyncAtomicOp(ctx context.Context, op AtomicOp, cb Callback)
	AsyncAppendBatch(ctx context.Context, batch []byte, cb Callback)

	Sync(ctx context.Context) error
	Flush(ctx context.Context) error
	Compact(ctx context.Context) error
	Ingest(ctx context.Context, path string) error

	CreateCheckpoint(ctx context.Context, name string) (dir string, err error)
	DropCheckpoint(ctx context.Context, name string) error
	SetWriteBlocking(ctx context.Context, sign bool) error
	// BackupTable dumps every catalog key under prefix into one table file
	// for off-node restore.
	BackupTable(ctx context.Context, name string, prefix []byte) (file string, n int, err error)
	RestoreFromFiles(ctx context.Context, files []string) error

	IsLeader() bool
	// PartLeader returns the current leader of the catalog partition, or
	// ErrLeaderChanged while there is none.
	PartLeader() (leader proto.HostAddr, err error)
	// Peers lists the consensus peers of the catalog partition, raft
	// addresses included.
	Peers() []proto.HostAddr
	// AllLeader reports the leader of every local partition; the catalog
	// store hosts exactly one.
	AllLeader() map[proto.GraphSpaceID]proto.HostAddr
	Capability() uint32

	Close()
}
