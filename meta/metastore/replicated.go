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

package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/graphdb/common/kvstore"
	"github.com/cubefs/graphdb/proto"
	"github.com/cubefs/graphdb/raft"
)

// CatalogCF is the column family all catalog bytes live in.
const CatalogCF = kvstore.CF("catalog")

var catalogModule = []byte("catalog")

const (
	opApplyBatch raft.Op = iota + 1
)

// batchPayload is the replicated form of one catalog write batch. A batch
// is applied in full or not at all.
type batchPayload struct {
	Puts       []KV     `json:"puts,omitempty"`
	Removes    [][]byte `json:"removes,omitempty"`
	RangeStart []byte   `json:"range_start,omitempty"`
	RangeEnd   []byte   `json:"range_end,omitempty"`
}

// EncodeBatch encodes a write set for AsyncAppendBatch.
func EncodeBatch(puts []KV, removes [][]byte) ([]byte, error) {
	return json.Marshal(&batchPayload{Puts: puts, Removes: removes})
}

type Config struct {
	Path     string         `json:"path"`
	NodeID   uint64         `json:"node_id"`
	Members  []raft.Member  `json:"members"`
	KVOption kvstore.Option `json:"kv_option"`
	KVType   kvstore.LsmKVType `json:"kv_type"`
}

type CatalogStore struct {
	cfg    Config
	engine kvstore.Store

	raftGroup raft.Group
	leader    uint64

	// standalone replicator, used when no raft group is attached
	applyc chan *applyTask
	donec  chan struct{}
	once   sync.Once

	writeBlocked int32
}

type applyTask struct {
	payload *batchPayload
	cb      Callback
}

// New opens the catalog store over its local engine. Attach the raft group
// with SetRaftGroup before serving multi-replica traffic; without one the
// store replicates to itself on a single apply goroutine.
func New(ctx context.Context, cfg *Config) (*CatalogStore, error) {
	span := trace.SpanFromContextSafe(ctx)
	if cfg.KVType == "" {
		cfg.KVType = kvstore.RocksdbLsmKVType
	}
	cfg.KVOption.ColumnFamily = append(cfg.KVOption.ColumnFamily, CatalogCF, raft.WalCF)

	engine, err := kvstore.NewKVStore(ctx, cfg.Path+"/kv", cfg.KVType, &cfg.KVOption)
	if err != nil {
		return nil, errors.Info(err, "open catalog engine failed")
	}

	s := &CatalogStore{
		cfg:    *cfg,
		engine: engine,
		applyc: make(chan *applyTask, 256),
		donec:  make(chan struct{}),
	}
	go s.applyLoop()
	span.Infof("catalog store opened at %s", cfg.Path)
	return s, nil
}

// NewWithEngine wraps an already-open engine; used by tests and embedded
// standalone deployments.
func NewWithEngine(engine kvstore.Store, cfg *Config) *CatalogStore {
	if err := engine.CreateColumn(CatalogCF); err != nil {
		panic(err)
	}
	s := &CatalogStore{
		cfg:    *cfg,
		engine: engine,
		applyc: make(chan *applyTask, 256),
		donec:  make(chan struct{}),
	}
	go s.applyLoop()
	return s
}

func (s *CatalogStore) SetRaftGroup(g raft.Group) {
	s.raftGroup = g
}

// Engine exposes the local engine to the raft storage layer.
func (s *CatalogStore) Engine() kvstore.Store {
	return s.engine
}

// StateMachine returns the raft applier of the catalog module.
func (s *CatalogStore) StateMachine() raft.StateMachine {
	return (*catalogSM)(s)
}

func (s *CatalogStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, err := s.engine.GetRaw(ctx, CatalogCF, key)
	if err == kvstore.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, ErrStoreFailure
	}
	return value, nil
}

func (s *CatalogStore) MultiGet(ctx context.Context, keys [][]byte) ([][]byte, []error) {
	values := make([][]byte, len(keys))
	errs := make([]error, len(keys))
	for i := range keys {
		values[i], errs[i] = s.Get(ctx, keys[i])
	}
	return values, errs
}

func (s *CatalogStore) Prefix(ctx context.Context, prefix []byte) (Iterator, error) {
	return newIterator(s.engine.List(ctx, CatalogCF, prefix, nil)), nil
}

func (s *CatalogStore) Range(ctx context.Context, start, end []byte) (Iterator, error) {
	return newIterator(s.engine.Range(ctx, CatalogCF, start, end)), nil
}

func (s *CatalogStore) RangeWithPrefix(ctx context.Context, start, prefix []byte) (Iterator, error) {
	return newIterator(s.engine.List(ctx, CatalogCF, prefix, start)), nil
}

func (s *CatalogStore) AsyncMultiPut(ctx context.Context, kvs []KV, cb Callback) {
	s.submit(ctx, &batchPayload{Puts: kvs}, cb)
}

func (s *CatalogStore) AsyncRemove(ctx context.Context, key []byte, cb Callback) {
	s.submit(ctx, &batchPayload{Removes: [][]byte{key}}, cb)
}

func (s *CatalogStore) AsyncMultiRemove(ctx context.Context, keys [][]byte, cb Callback) {
	s.submit(ctx, &batchPayload{Removes: keys}, cb)
}

func (s *CatalogStore) AsyncRemoveRange(ctx context.Context, start, end []byte, cb Callback) {
	s.submit(ctx, &batchPayload{RangeStart: start, RangeEnd: end}, cb)
}

func (s *CatalogStore) AsyncAtomicOp(ctx context.Context, op AtomicOp, cb Callback) {
	puts, removes, err := op()
	if err != nil {
		cb(err)
		return
	}
	s.submit(ctx, &batchPayload{Puts: puts, Removes: removes}, cb)
}

func (s *CatalogStore) AsyncAppendBatch(ctx context.Context, batch []byte, cb Callback) {
	payload := &batchPayload{}
	if err := json.Unmarshal(batch, payload); err != nil {
		cb(ErrStoreFailure)
		return
	}
	s.submit(ctx, payload, cb)
}

func (s *CatalogStore) submit(ctx context.Context, payload *batchPayload, cb Callback) {
	if atomic.LoadInt32(&s.writeBlocked) == 1 {
		cb(ErrWriteBlocked)
		return
	}

	if s.raftGroup == nil {
		select {
		case s.applyc <- &applyTask{payload: payload, cb: cb}:
		case <-s.donec:
			cb(ErrStoreFailure)
		}
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		cb(ErrStoreFailure)
		return
	}
	go func() {
		_, err := s.raftGroup.Propose(ctx, &raft.ProposalData{
			Module: catalogModule,
			Op:     opApplyBatch,
			Data:   data,
		})
		cb(s.mapRaftErr(err))
	}()
}

func (s *CatalogStore) mapRaftErr(err error) error {
	switch err {
	case nil:
		return nil
	case raft.ErrNotLeader, raft.ErrProposalDropped:
		return ErrLeaderChanged
	default:
		return ErrStoreFailure
	}
}

// applyLoop is the standalone replicator: batches apply in submit order on
// this goroutine and completions fire from it.
func (s *CatalogStore) applyLoop() {
	ctx := context.Background()
	for {
		select {
		case task := <-s.applyc:
			task.cb(s.applyBatch(ctx, task.payload))
		case <-s.donec:
			return
		}
	}
}

func (s *CatalogStore) applyBatch(ctx context.Context, payload *batchPayload) error {
	batch := s.engine.NewWriteBatch()
	defer batch.Close()

	for _, kv := range payload.Puts {
		batch.Put(CatalogCF, kv.Key, kv.Value)
	}
	for _, key := range payload.Removes {
		batch.Delete(CatalogCF, key)
	}
	if payload.RangeStart != nil || payload.RangeEnd != nil {
		batch.DeleteRange(CatalogCF, payload.RangeStart, payload.RangeEnd)
	}
	if err := s.engine.Write(ctx, batch); err != nil {
		return ErrStoreFailure
	}
	return nil
}

func (s *CatalogStore) Sync(ctx context.Context) error {
	return s.engine.FlushCF(ctx, CatalogCF)
}

func (s *CatalogStore) Flush(ctx context.Context) error {
	return s.engine.FlushCF(ctx, CatalogCF)
}

func (s *CatalogStore) Compact(ctx context.Context) error {
	return s.engine.Compact(ctx, CatalogCF)
}

func (s *CatalogStore) Ingest(ctx context.Context, path string) error {
	return s.engine.IngestTable(ctx, CatalogCF, path)
}

func (s *CatalogStore) CreateCheckpoint(ctx context.Context, name string) (string, error) {
	dir := filepath.Join(s.cfg.Path, "checkpoints", name)
	if err := s.engine.Checkpoint(ctx, dir); err != nil {
		return "", errors.Info(err, "create checkpoint failed", name)
	}
	return dir, nil
}

func (s *CatalogStore) DropCheckpoint(ctx context.Context, name string) error {
	return os.RemoveAll(filepath.Join(s.cfg.Path, "checkpoints", name))
}

func (s *CatalogStore) SetWriteBlocking(ctx context.Context, sign bool) error {
	if sign {
		atomic.StoreInt32(&s.writeBlocked, 1)
	} else {
		atomic.StoreInt32(&s.writeBlocked, 0)
	}
	return nil
}

func (s *CatalogStore) BackupTable(ctx context.Context, name string, prefix []byte) (string, int, error) {
	dir := filepath.Join(s.cfg.Path, "backup", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	file := filepath.Join(dir, fmt.Sprintf("meta_%x.sst", prefix))
	n, err := s.engine.DumpTable(ctx, CatalogCF, prefix, file)
	if err != nil {
		return "", 0, errors.Info(err, "dump meta table failed")
	}
	if n == 0 {
		os.Remove(file)
		return "", 0, nil
	}
	return file, n, nil
}

func (s *CatalogStore) RestoreFromFiles(ctx context.Context, files []string) error {
	for _, f := range files {
		if err := s.engine.IngestTable(ctx, CatalogCF, f); err != nil {
			return errors.Info(err, "ingest backup file failed", f)
		}
	}
	return nil
}

func (s *CatalogStore) IsLeader() bool {
	if s.raftGroup == nil {
		return true
	}
	return s.raftGroup.IsLeader()
}

func (s *CatalogStore) PartLeader() (proto.HostAddr, error) {
	if s.raftGroup == nil {
		return s.memberAddr(s.cfg.NodeID)
	}
	leader, _ := s.raftGroup.Leader()
	if leader == 0 {
		return proto.HostAddr{}, ErrLeaderChanged
	}
	return s.memberAddr(leader)
}

// Peers returns the raft addresses of the catalog partition members.
func (s *CatalogStore) Peers() []proto.HostAddr {
	hosts := make([]proto.HostAddr, 0, len(s.cfg.Members))
	for _, m := range s.cfg.Members {
		hosts = append(hosts, parseAddr(m.Host))
	}
	return hosts
}

func (s *CatalogStore) memberAddr(nodeID uint64) (proto.HostAddr, error) {
	for _, m := range s.cfg.Members {
		if m.NodeID == nodeID {
			return parseAddr(m.Host), nil
		}
	}
	return proto.HostAddr{}, ErrLeaderChanged
}

func parseAddr(s string) proto.HostAddr {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return proto.HostAddr{Host: s}
	}
	port, _ := strconv.Atoi(s[idx+1:])
	return proto.HostAddr{Host: s[:idx], Port: int32(port)}
}

func (s *CatalogStore) AllLeader() map[proto.GraphSpaceID]proto.HostAddr {
	leader, err := s.PartLeader()
	if err != nil {
		return nil
	}
	return map[proto.GraphSpaceID]proto.HostAddr{0: leader}
}

func (s *CatalogStore) Capability() uint32 {
	mask := CapAsync
	if s.cfg.KVType == kvstore.RocksdbLsmKVType {
		mask |= CapFiltering
	}
	return mask
}

func (s *CatalogStore) Close() {
	s.once.Do(func() { close(s.donec) })
	if s.raftGroup != nil {
		s.raftGroup.Close()
	}
	s.engine.Close()
}

// catalogSM adapts the store into the raft state machine of the catalog
// module.
type catalogSM CatalogStore

func (sm *catalogSM) Apply(ctx context.Context, pds []raft.ProposalData, index uint64) ([]interface{}, error) {
	s := (*CatalogStore)(sm)
	rets := make([]interface{}, 0, len(pds))
	for i := range pds {
		payload := &batchPayload{}
		if err := json.Unmarshal(pds[i].Data, payload); err != nil {
			return nil, errors.Info(err, "unmarshal catalog batch failed")
		}
		if err := s.applyBatch(ctx, payload); err != nil {
			return nil, err
		}
		rets = append(rets, nil)
	}
	return rets, nil
}

func (sm *catalogSM) LeaderChange(leader uint64) error {
	atomic.StoreUint64(&(*CatalogStore)(sm).leader, leader)
	return nil
}

type iterator struct {
	lr    kvstore.ListReader
	kg    kvstore.KeyGetter
	vg    kvstore.ValueGetter
	err   error
	valid bool
}

func newIterator(lr kvstore.ListReader) *iterator {
	it := &iterator{lr: lr}
	it.Next()
	return it
}

func (it *iterator) Valid() bool {
	return it.valid
}

func (it *iterator) Next() {
	it.release()
	it.kg, it.vg, it.err = it.lr.ReadNext()
	it.valid = it.err == nil && it.kg != nil
}

func (it *iterator) Key() []byte {
	return it.kg.Key()
}

func (it *iterator) Val() []byte {
	return it.vg.Value()
}

func (it *iterator) Err() error {
	return it.err
}

func (it *iterator) Close() {
	it.release()
	it.lr.Close()
}

func (it *iterator) release() {
	if it.kg != nil {
		it.kg.Close()
		it.kg = nil
	}
	if it.vg != nil {
		it.vg.Close()
		it.vg = nil
	}
}
