package metastore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/cubefs/graphdb/common/kvstore"
	"github.com/cubefs/graphdb/util"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *CatalogStore {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(path) })

	engine, err := kvstore.NewKVStore(context.Background(), "", kvstore.MemKVType, &kvstore.Option{})
	require.NoError(t, err)
	s := NewWithEngine(engine, &Config{
		Path:   path,
		NodeID: 1,
		KVType: kvstore.MemKVType,
	})
	t.Cleanup(s.Close)
	return s
}

func TestSyncAdapter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := SyncMultiPut(ctx, s, []KV{
		{Key: []byte("k1"), Value: []byte("v1")},
		{Key: []byte("k2"), Value: []byte("v2")},
	})
	require.NoError(t, err)

	v, err := s.Get(ctx, []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	_, err = s.Get(ctx, []byte("missing"))
	require.Equal(t, ErrNotFound, err)

	require.NoError(t, SyncMultiRemove(ctx, s, [][]byte{[]byte("k1"), []byte("k2")}))
	_, err = s.Get(ctx, []byte("k1"))
	require.Equal(t, ErrNotFound, err)
}

func TestMultiGetPerKeyStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, SyncMultiPut(ctx, s, []KV{{Key: []byte("k1"), Value: []byte("v1")}}))

	values, errs := s.MultiGet(ctx, [][]byte{[]byte("k1"), []byte("k2")})
	require.NoError(t, errs[0])
	require.Equal(t, []byte("v1"), values[0])
	require.Equal(t, ErrNotFound, errs[1])
}

func TestPrefixIterator(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, SyncMultiPut(ctx, s, []KV{
		{Key: []byte("p/1"), Value: []byte("1")},
		{Key: []byte("p/2"), Value: []byte("2")},
		{Key: []byte("q/1"), Value: []byte("3")},
	}))

	prefix := []byte("p/")
	iter, err := s.Prefix(ctx, prefix)
	require.NoError(t, err)
	defer iter.Close()

	var keys []string
	for ; iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.NoError(t, iter.Err())
	require.Equal(t, []string{"p/1", "p/2"}, keys)
}

func TestRangeIterator(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, SyncMultiPut(ctx, s, []KV{
		{Key: []byte("k1"), Value: []byte("1")},
		{Key: []byte("k2"), Value: []byte("2")},
		{Key: []byte("k3"), Value: []byte("3")},
	}))

	start, end := []byte("k1"), []byte("k3")
	iter, err := s.Range(ctx, start, end)
	require.NoError(t, err)
	defer iter.Close()

	var keys []string
	for ; iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.Equal(t, []string{"k1", "k2"}, keys)
}

func TestAtomicOpAbort(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	abort := errors.New("abort")
	err := SyncAtomicOp(ctx, s, func() ([]KV, [][]byte, error) {
		return nil, nil, abort
	})
	require.Equal(t, abort, err)

	err = SyncAtomicOp(ctx, s, func() ([]KV, [][]byte, error) {
		return []KV{{Key: []byte("a"), Value: []byte("1")}}, nil, nil
	})
	require.NoError(t, err)
	v, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestRemoveRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, SyncMultiPut(ctx, s, []KV{
		{Key: []byte("r1"), Value: []byte("1")},
		{Key: []byte("r2"), Value: []byte("2")},
		{Key: []byte("s1"), Value: []byte("3")},
	}))

	require.NoError(t, SyncRemoveRange(ctx, s, []byte("r1"), []byte("r9")))
	_, err := s.Get(ctx, []byte("r1"))
	require.Equal(t, ErrNotFound, err)
	_, err = s.Get(ctx, []byte("s1"))
	require.NoError(t, err)
}

func TestWriteBlocking(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetWriteBlocking(ctx, true))
	err := SyncMultiPut(ctx, s, []KV{{Key: []byte("k"), Value: []byte("v")}})
	require.Equal(t, ErrWriteBlocked, err)

	require.NoError(t, s.SetWriteBlocking(ctx, false))
	require.NoError(t, SyncMultiPut(ctx, s, []KV{{Key: []byte("k"), Value: []byte("v")}}))
}

func TestStandaloneLeader(t *testing.T) {
	s := newTestStore(t)
	require.True(t, s.IsLeader())
	require.NotZero(t, s.Capability()&CapAsync)
}

func TestEncodeBatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	batch, err := EncodeBatch([]KV{{Key: []byte("b1"), Value: []byte("v")}}, [][]byte{[]byte("gone")})
	require.NoError(t, err)

	done := make(chan error, 1)
	s.AsyncAppendBatch(ctx, batch, func(err error) { done <- err })
	require.NoError(t, <-done)

	v, err := s.Get(ctx, []byte("b1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}
