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
	"bytes"
	"context"
	"errors"
	"os"
	"sync"

	rdb "github.com/tecbot/gorocksdb"
)

type rocksdb struct {
	db        *rdb.DB
	path      string
	opt       *rdb.Options
	readOpt   *rdb.ReadOptions
	writeOpt  *rdb.WriteOptions
	flushOpt  *rdb.FlushOptions
	cfHandles map[CF]*rdb.ColumnFamilyHandle

	lock sync.RWMutex
}

func newRocksdb(ctx context.Context, path string, option *Option) (Store, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	dbOpt := genRocksdbOpts(option)

	cfNum := len(option.ColumnFamily) + 1
	cols := make([]CF, 0, cfNum)
	cols = append(cols, defaultCF)
	cols = append(cols, option.ColumnFamily...)

	cfNames := make([]string, 0, cfNum)
	cfOpts := make([]*rdb.Options, 0, cfNum)
	for i := 0; i < cfNum; i++ {
		cfNames = append(cfNames, cols[i].String())
		cfOpts = append(cfOpts, dbOpt)
	}

	db, cfhs, err := rdb.OpenDbColumnFamilies(dbOpt, path, cfNames, cfOpts)
	if err != nil {
		return nil, err
	}

	cfhMap := make(map[CF]*rdb.ColumnFamilyHandle)
	for i, h := range cfhs {
		cfhMap[cols[i]] = h
	}

	wo := rdb.NewDefaultWriteOptions()
	if option.Sync {
		wo.SetSync(option.Sync)
	}
	if option.DisableWal {
		wo.DisableWAL(true)
	}

	return &rocksdb{
		db:        db,
		path:      path,
		opt:       dbOpt,
		readOpt:   rdb.NewDefaultReadOptions(),
		writeOpt:  wo,
		flushOpt:  rdb.NewDefaultFlushOptions(),
		cfHandles: cfhMap,
	}, nil
}

func genRocksdbOpts(opt *Option) *rdb.Options {
	opts := rdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetCreateIfMissingColumnFamilies(true)
	if opt.BlockSize > 0 || opt.BlockCache > 0 {
		bbto := rdb.NewDefaultBlockBasedTableOptions()
		if opt.BlockSize > 0 {
			bbto.SetBlockSize(opt.BlockSize)
		}
		if opt.BlockCache > 0 {
			bbto.SetBlockCache(rdb.NewLRUCache(opt.BlockCache))
		}
		opts.SetBlockBasedTableFactory(bbto)
	}
	if opt.EnablePipelinedWrite {
		opts.SetEnablePipelinedWrite(true)
	}
	if opt.MaxBackgroundJobs > 0 {
		opts.SetMaxBackgroundCompactions(opt.MaxBackgroundJobs)
	}
	if opt.MaxSubCompactions > 0 {
		opts.SetMaxSubCompactions(opt.MaxSubCompactions)
	}
	if opt.MaxOpenFiles > 0 {
		opts.SetMaxOpenFiles(opt.MaxOpenFiles)
	}
	if opt.MaxWriteBufferNumber > 0 {
		opts.SetMaxWriteBufferNumber(opt.MaxWriteBufferNumber)
	}
	if opt.WriteBufferSize > 0 {
		opts.SetWriteBufferSize(opt.WriteBufferSize)
	}
	return opts
}

func (s *rocksdb) CreateColumn(col CF) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.cfHandles[col]; ok {
		return nil
	}
	h, err := s.db.CreateColumnFamily(s.opt, col.String())
	if err != nil {
		return err
	}
	s.cfHandles[col] = h
	return nil
}

func (s *rocksdb) GetAllColumns() (ret []CF) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for col := range s.cfHandles {
		ret = append(ret, col)
	}
	return
}

func (s *rocksdb) getColumnFamily(col CF) *rdb.ColumnFamilyHandle {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.cfHandles[col]
}

func (s *rocksdb) GetRaw(ctx context.Context, col CF, key []byte) ([]byte, error) {
	cf := s.getColumnFamily(col)
	slice, err := s.db.GetCF(s.readOpt, cf, key)
	if err != nil {
		return nil, err
	}
	defer slice.Free()
	if !slice.Exists() {
		return nil, ErrNotFound
	}
	value := make([]byte, slice.Size())
	copy(value, slice.Data())
	return value, nil
}

func (s *rocksdb) SetRaw(ctx context.Context, col CF, key []byte, value []byte) error {
	cf := s.getColumnFamily(col)
	return s.db.PutCF(s.writeOpt, cf, key, value)
}

func (s *rocksdb) Delete(ctx context.Context, col CF, key []byte) error {
	cf := s.getColumnFamily(col)
	return s.db.DeleteCF(s.writeOpt, cf, key)
}

func (s *rocksdb) List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader {
	cf := s.getColumnFamily(col)
	it := s.db.NewIteratorCF(s.readOpt, cf)
	lr := &rdbListReader{iterator: it, prefix: prefix}
	if marker != nil {
		it.Seek(marker)
	} else if prefix != nil {
		it.Seek(prefix)
	} else {
		it.SeekToFirst()
	}
	return lr
}

func (s *rocksdb) Range(ctx context.Context, col CF, start []byte, end []byte) ListReader {
	cf := s.getColumnFamily(col)
	it := s.db.NewIteratorCF(s.readOpt, cf)
	lr := &rdbListReader{iterator: it, end: end}
	if start != nil {
		it.Seek(start)
	} else {
		it.SeekToFirst()
	}
	return lr
}

func (s *rocksdb) NewWriteBatch() WriteBatch {
	return &rdbWriteBatch{s: s, batch: rdb.NewWriteBatch()}
}

func (s *rocksdb) Write(ctx context.Context, batch WriteBatch) error {
	return s.db.Write(s.writeOpt, batch.(*rdbWriteBatch).batch)
}

func (s *rocksdb) FlushCF(ctx context.Context, col CF) error {
	return s.db.Flush(s.flushOpt)
}

func (s *rocksdb) Compact(ctx context.Context, col CF) error {
	cf := s.getColumnFamily(col)
	s.db.CompactRangeCF(cf, rdb.Range{})
	return nil
}

func (s *rocksdb) Checkpoint(ctx context.Context, path string) error {
	cp, err := s.db.NewCheckpoint()
	if err != nil {
		return err
	}
	defer cp.Destroy()
	return cp.CreateCheckpoint(path, 0)
}

func (s *rocksdb) DumpTable(ctx context.Context, col CF, prefix []byte, filePath string) (int, error) {
	w := rdb.NewSSTFileWriter(rdb.NewDefaultEnvOptions(), s.opt)
	defer w.Destroy()

	if err := w.Open(filePath); err != nil {
		return 0, err
	}

	lr := s.List(ctx, col, prefix, nil)
	defer lr.Close()

	n := 0
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return n, err
		}
		if key == nil {
			break
		}
		if err = w.Add(key, value); err != nil {
			return n, err
		}
		n++
	}
	if n == 0 {
		// rocksdb refuses to finish an empty sst
		return 0, nil
	}
	return n, w.Finish()
}

func (s *rocksdb) IngestTable(ctx context.Context, col CF, filePath string) error {
	cf := s.getColumnFamily(col)
	opts := rdb.NewDefaultIngestExternalFileOptions()
	defer opts.Destroy()
	return s.db.IngestExternalFileCF(cf, []string{filePath}, opts)
}

func (s *rocksdb) Stats(ctx context.Context) (Stats, error) {
	return Stats{}, nil
}

func (s *rocksdb) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, h := range s.cfHandles {
		h.Destroy()
	}
	s.db.Close()
}

type rdbKeyGetter struct {
	key *rdb.Slice
}

func (kg rdbKeyGetter) Key() []byte { return kg.key.Data() }
func (kg rdbKeyGetter) Close()      { kg.key.Free() }

type rdbValueGetter struct {
	value *rdb.Slice
}

func (vg rdbValueGetter) Value() []byte { return vg.value.Data() }
func (vg rdbValueGetter) Size() int     { return vg.value.Size() }
func (vg rdbValueGetter) Close()        { vg.value.Free() }

type rdbListReader struct {
	iterator *rdb.Iterator
	prefix   []byte
	end      []byte
	moved    bool
}

func (lr *rdbListReader) ReadNext() (KeyGetter, ValueGetter, error) {
	if lr.moved {
		lr.iterator.Next()
	}
	lr.moved = true
	if err := lr.iterator.Err(); err != nil {
		return nil, nil, err
	}
	if !lr.iterator.Valid() {
		return nil, nil, nil
	}
	if lr.prefix != nil && !lr.iterator.ValidForPrefix(lr.prefix) {
		return nil, nil, nil
	}
	kg := rdbKeyGetter{key: lr.iterator.Key()}
	if lr.end != nil && bytes.Compare(kg.Key(), lr.end) >= 0 {
		kg.Close()
		return nil, nil, nil
	}
	return kg, rdbValueGetter{value: lr.iterator.Value()}, nil
}

func (lr *rdbListReader) ReadNextCopy() (key []byte, value []byte, err error) {
	kg, vg, err := lr.ReadNext()
	if err != nil || kg == nil || vg == nil {
		return nil, nil, err
	}
	key = make([]byte, len(kg.Key()))
	copy(key, kg.Key())
	value = make([]byte, vg.Size())
	copy(value, vg.Value())
	kg.Close()
	vg.Close()
	return
}

func (lr *rdbListReader) SeekTo(key []byte) {
	lr.moved = false
	lr.iterator.Seek(key)
}

func (lr *rdbListReader) Close() {
	lr.iterator.Close()
}

type rdbWriteBatch struct {
	s     *rocksdb
	batch *rdb.WriteBatch
}

func (w *rdbWriteBatch) Put(col CF, key, value []byte) {
	w.batch.PutCF(w.s.getColumnFamily(col), key, value)
}

func (w *rdbWriteBatch) Delete(col CF, key []byte) {
	w.batch.DeleteCF(w.s.getColumnFamily(col), key)
}

func (w *rdbWriteBatch) DeleteRange(col CF, startKey, endKey []byte) {
	w.batch.DeleteRangeCF(w.s.getColumnFamily(col), startKey, endKey)
}

func (w *rdbWriteBatch) Count() int {
	return w.batch.Count()
}

func (w *rdbWriteBatch) Close() {
	w.batch.Destroy()
}
