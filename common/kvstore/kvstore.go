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

package kvstore

import (
	"context"
	"errors"
)

const (
	defaultCF = CF("default")

	RocksdbLsmKVType = LsmKVType("rocksdb")
	MemKVType        = LsmKVType("memdb")
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrKVTypeNotFound = errors.New("kv type not found")
)

type (
	CF        string
	LsmKVType string

	Store interface {
		CreateColumn(col CF) error
		GetAllColumns() []CF
		GetRaw(ctx context.Context, col CF, key []byte) (value []byte, err error)
		SetRaw(ctx context.Context, col CF, key []byte, value []byte) error
		Delete(ctx context.Context, col CF, key []byte) error
		// List iterates keys with the given prefix starting at marker.
		// The prefix slice must stay alive for the reader's whole lifetime.
		List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader
		// Range iterates keys in [start, end). Both bound slices must stay
		// alive for the reader's whole lifetime.
		Range(ctx context.Context, col CF, start []byte, end []byte) ListReader
		Write(ctx context.Context, batch WriteBatch) error
		NewWriteBatch() WriteBatch
		FlushCF(ctx context.Context, col CF) error
		Compact(ctx context.Context, col CF) error
		// Checkpoint creates a consistent on-disk checkpoint at path.
		Checkpoint(ctx context.Context, path string) error
		// DumpTable writes every key of col with the given prefix into an
		// ingestible table file, returning the number of keys written.
		DumpTable(ctx context.Context, col CF, prefix []byte, filePath string) (n int, err error)
		IngestTable(ctx context.Context, col CF, filePath string) error
		Stats(ctx context.Context) (Stats, error)
		Close()
	}

	// ListReader yields key/value pairs in ascending key order. The slices
	// returned by ReadNext stay valid until the getters are closed; callers
	// must not retain them across the next move. ReadNextCopy detaches.
	ListReader interface {
		ReadNext() (key KeyGetter, val ValueGetter, err error)
		ReadNextCopy() (key []byte, value []byte, err error)
		SeekTo(key []byte)
		Close()
	}
	KeyGetter interface {
		Key() []byte
		Close()
	}
	ValueGetter interface {
		Value() []byte
		Size() int
		Close()
	}
	WriteBatch interface {
		Put(col CF, key, value []byte)
		Delete(col CF, key []byte)
		DeleteRange(col CF, startKey, endKey []byte)
		Count() int
		Close()
	}

	Stats struct {
		Used uint64
	}

	Option struct {
		Sync                 bool
		DisableWal           bool
		ColumnFamily         []CF `json:"column_family"`
		CreateIfMissing      bool
		BlockSize            int    `json:"block_size"`
		BlockCache           uint64 `json:"block_cache"`
		EnablePipelinedWrite bool   `json:"enable_pipelined_write"`
		MaxBackgroundJobs    int    `json:"max_background_jobs"`
		MaxSubCompactions    int    `json:"max_sub_compactions"`
		MaxOpenFiles         int    `json:"max_open_files"`
		MaxWriteBufferNumber int    `json:"max_write_buffer_number"`
		WriteBufferSize      int    `json:"write_buffer_size"`
	}
)

func NewKVStore(ctx context.Context, path string, lsmType LsmKVType, option *Option) (Store, error) {
	switch lsmType {
	case RocksdbLsmKVType:
		return newRocksdb(ctx, path, option)
	case MemKVType:
		return newMemDB(ctx, option)
	default:
		return nil, ErrKVTypeNotFound
	}
}

func (cf CF) String() string {
	return string(cf)
}
