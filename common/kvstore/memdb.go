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
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/btree"
)

const memBtreeDegree = 16

// memDB is a btree backed engine with the same column family semantics as
// the rocksdb engine. Iterators read from a clone of the tree, so a reader
// is never invalidated by concurrent writes.
type memDB struct {
	cols map[CF]*btree.BTree
	lock sync.RWMutex
}

type memItem struct {
	key   []byte
	value []byte
}

func (i memItem) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(memItem).key) < 0
}

func newMemDB(ctx context.Context, option *Option) (Store, error) {
	cols := make(map[CF]*btree.BTree)
	cols[defaultCF] = btree.New(memBtreeDegree)
	for _, col := range option.ColumnFamily {
		cols[col] = btree.New(memBtreeDegree)
	}
	return &memDB{cols: cols}, nil
}

func (s *memDB) CreateColumn(col CF) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.cols[col]; !ok {
		s.cols[col] = btree.New(memBtreeDegree)
	}
	return nil
}

func (s *memDB) GetAllColumns() (ret []CF) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for col := range s.cols {
		ret = append(ret, col)
	}
	return
}

func (s *memDB) tree(col CF) *btree.BTree {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.cols[col]
}

func (s *memDB) GetRaw(ctx context.Context, col CF, key []byte) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	t := s.cols[col]
	if t == nil {
		return nil, ErrNotFound
	}
	item := t.Get(memItem{key: key})
	if item == nil {
		return nil, ErrNotFound
	}
	value := make([]byte, len(item.(memItem).value))
	copy(value, item.(memItem).value)
	return value, nil
}

func (s *memDB) SetRaw(ctx context.Context, col CF, key []byte, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	t := s.cols[col]
	if t == nil {
		t = btree.New(memBtreeDegree)
		s.cols[col] = t
	}
	t.ReplaceOrInsert(memItem{key: cloneBytes(key), value: cloneBytes(value)})
	return nil
}

func (s *memDB) Delete(ctx context.Context, col CF, key []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if t := s.cols[col]; t != nil {
		t.Delete(memItem{key: key})
	}
	return nil
}

func (s *memDB) List(ctx context.Context, col CF, prefix []byte, marker []byte) ListReader {
	// Clone rewires the tree's copy-on-write context, so it needs the
	// write lock even though it does not change visible state.
	s.lock.Lock()
	defer s.lock.Unlock()

	start := prefix
	if marker != nil {
		start = marker
	}
	lr := &memListReader{prefix: prefix}
	if t := s.cols[col]; t != nil {
		lr.snap = t.Clone()
	}
	lr.SeekTo(start)
	return lr
}

func (s *memDB) Range(ctx context.Context, col CF, start []byte, end []byte) ListReader {
	s.lock.Lock()
	defer s.lock.Unlock()

	lr := &memListReader{end: end}
	if t := s.cols[col]; t != nil {
		lr.snap = t.Clone()
	}
	lr.SeekTo(start)
	return lr
}

func (s *memDB) NewWriteBatch() WriteBatch {
	return &memWriteBatch{}
}

func (s *memDB) Write(ctx context.Context, batch WriteBatch) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, op := range batch.(*memWriteBatch).ops {
		t := s.cols[op.col]
		if t == nil {
			t = btree.New(memBtreeDegree)
			s.cols[op.col] = t
		}
		switch op.kind {
		case memOpPut:
			t.ReplaceOrInsert(memItem{key: op.key, value: op.value})
		case memOpDelete:
			t.Delete(memItem{key: op.key})
		case memOpDeleteRange:
			var victims [][]byte
			t.AscendGreaterOrEqual(memItem{key: op.key}, func(item btree.Item) bool {
				k := item.(memItem).key
				if bytes.Compare(k, op.value) >= 0 {
					return false
				}
				victims = append(victims, k)
				return true
			})
			for _, k := range victims {
				t.Delete(memItem{key: k})
			}
		}
	}
	return nil
}

func (s *memDB) FlushCF(ctx context.Context, col CF) error {
	return nil
}

func (s *memDB) Compact(ctx context.Context, col CF) error {
	return nil
}

func (s *memDB) Checkpoint(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	for _, col := range s.GetAllColumns() {
		if _, err := s.DumpTable(ctx, col, nil, filepath.Join(path, col.String()+".tbl")); err != nil {
			return err
		}
	}
	return nil
}

// DumpTable writes length-prefixed key/value records in key order. The
// format is private to the memdb engine.
func (s *memDB) DumpTable(ctx context.Context, col CF, prefix []byte, filePath string) (int, error) {
	f, err := os.Create(filePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	lr := s.List(ctx, col, prefix, nil)
	defer lr.Close()

	n := 0
	sizeBuf := make([]byte, 4)
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil {
			return n, err
		}
		if key == nil {
			break
		}
		for _, b := range [][]byte{key, value} {
			binary.LittleEndian.PutUint32(sizeBuf, uint32(len(b)))
			if _, err = f.Write(sizeBuf); err != nil {
				return n, err
			}
			if _, err = f.Write(b); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}

func (s *memDB) IngestTable(ctx context.Context, col CF, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	sizeBuf := make([]byte, 4)
	readChunk := func() ([]byte, error) {
		if _, err := io.ReadFull(f, sizeBuf); err != nil {
			return nil, err
		}
		b := make([]byte, binary.LittleEndian.Uint32(sizeBuf))
		if _, err := io.ReadFull(f, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	for {
		key, err := readChunk()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		value, err := readChunk()
		if err != nil {
			return err
		}
		if err = s.SetRaw(ctx, col, key, value); err != nil {
			return err
		}
	}
}

func (s *memDB) Stats(ctx context.Context) (Stats, error) {
	return Stats{}, nil
}

func (s *memDB) Close() {}

type memListReader struct {
	snap   *btree.BTree
	prefix []byte
	end    []byte
	next   *memItem
	moved  bool
	cursor []byte
}

func (lr *memListReader) advance() {
	lr.next = nil
	if lr.snap == nil {
		return
	}
	pivot := memItem{key: lr.cursor}
	first := true
	lr.snap.AscendGreaterOrEqual(pivot, func(item btree.Item) bool {
		it := item.(memItem)
		if first && lr.moved && bytes.Equal(it.key, lr.cursor) {
			first = false
			return true
		}
		lr.next = &it
		return false
	})
	if lr.next != nil {
		if lr.prefix != nil && !bytes.HasPrefix(lr.next.key, lr.prefix) {
			lr.next = nil
			return
		}
		if lr.end != nil && bytes.Compare(lr.next.key, lr.end) >= 0 {
			lr.next = nil
			return
		}
		lr.cursor = lr.next.key
		lr.moved = true
	}
}

func (lr *memListReader) ReadNext() (KeyGetter, ValueGetter, error) {
	lr.advance()
	if lr.next == nil {
		return nil, nil, nil
	}
	return memKeyGetter{key: lr.next.key}, memValueGetter{value: lr.next.value}, nil
}

func (lr *memListReader) ReadNextCopy() (key []byte, value []byte, err error) {
	kg, vg, err := lr.ReadNext()
	if err != nil || kg == nil {
		return nil, nil, err
	}
	return cloneBytes(kg.Key()), cloneBytes(vg.Value()), nil
}

func (lr *memListReader) SeekTo(key []byte) {
	lr.cursor = key
	lr.moved = false
}

func (lr *memListReader) Close() {}

type memKeyGetter struct{ key []byte }

func (kg memKeyGetter) Key() []byte { return kg.key }
func (kg memKeyGetter) Close()      {}

type memValueGetter struct{ value []byte }

func (vg memValueGetter) Value() []byte { return vg.value }
func (vg memValueGetter) Size() int     { return len(vg.value) }
func (vg memValueGetter) Close()        {}

type memOpKind int

const (
	memOpPut memOpKind = iota
	memOpDelete
	// memOpDeleteRange reuses key as start and value as end.
	memOpDeleteRange
)

type memOp struct {
	kind  memOpKind
	col   CF
	key   []byte
	value []byte
}

type memWriteBatch struct {
	ops []memOp
}

func (w *memWriteBatch) Put(col CF, key, value []byte) {
	w.ops = append(w.ops, memOp{kind: memOpPut, col: col, key: cloneBytes(key), value: cloneBytes(value)})
}

func (w *memWriteBatch) Delete(col CF, key []byte) {
	w.ops = append(w.ops, memOp{kind: memOpDelete, col: col, key: cloneBytes(key)})
}

func (w *memWriteBatch) DeleteRange(col CF, startKey, endKey []byte) {
	w.ops = append(w.ops, memOp{kind: memOpDeleteRange, col: col, key: cloneBytes(startKey), value: cloneBytes(endKey)})
}

func (w *memWriteBatch) Count() int {
	return len(w.ops)
}

func (w *memWriteBatch) Close() {
	w.ops = nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	ret := make([]byte, len(b))
	copy(ret, b)
	return ret
}
