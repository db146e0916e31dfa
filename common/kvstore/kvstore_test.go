package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cubefs/graphdb/util"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	s, err := NewKVStore(context.Background(), "", MemKVType, &Option{ColumnFamily: []CF{"catalog"}})
	require.NoError(t, err)
	return s
}

func TestStoreBasic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	col := CF("catalog")
	require.NoError(t, s.SetRaw(ctx, col, []byte("k1"), []byte("v1")))

	v, err := s.GetRaw(ctx, col, []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	_, err = s.GetRaw(ctx, col, []byte("nope"))
	require.Equal(t, ErrNotFound, err)

	require.NoError(t, s.Delete(ctx, col, []byte("k1")))
	_, err = s.GetRaw(ctx, col, []byte("k1"))
	require.Equal(t, ErrNotFound, err)
}

func TestStoreListPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	col := CF("catalog")
	require.NoError(t, s.SetRaw(ctx, col, []byte("a/1"), []byte("1")))
	require.NoError(t, s.SetRaw(ctx, col, []byte("a/2"), []byte("2")))
	require.NoError(t, s.SetRaw(ctx, col, []byte("b/1"), []byte("3")))

	lr := s.List(ctx, col, []byte("a/"), nil)
	defer lr.Close()

	var keys []string
	for {
		k, _, err := lr.ReadNextCopy()
		require.NoError(t, err)
		if k == nil {
			break
		}
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"a/1", "a/2"}, keys)
}

func TestStoreRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	col := CF("catalog")
	for _, k := range []string{"k1", "k2", "k3", "k4"} {
		require.NoError(t, s.SetRaw(ctx, col, []byte(k), []byte(k)))
	}

	lr := s.Range(ctx, col, []byte("k2"), []byte("k4"))
	defer lr.Close()

	var keys []string
	for {
		k, _, err := lr.ReadNextCopy()
		require.NoError(t, err)
		if k == nil {
			break
		}
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"k2", "k3"}, keys)
}

func TestWriteBatchAtomicity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	col := CF("catalog")
	require.NoError(t, s.SetRaw(ctx, col, []byte("dead"), []byte("x")))

	batch := s.NewWriteBatch()
	batch.Put(col, []byte("k1"), []byte("v1"))
	batch.Put(col, []byte("k2"), []byte("v2"))
	batch.Delete(col, []byte("dead"))
	require.Equal(t, 3, batch.Count())
	require.NoError(t, s.Write(ctx, batch))
	batch.Close()

	v, err := s.GetRaw(ctx, col, []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
	_, err = s.GetRaw(ctx, col, []byte("dead"))
	require.Equal(t, ErrNotFound, err)
}

func TestDeleteRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	col := CF("catalog")
	for _, k := range []string{"p1", "p2", "p3", "q1"} {
		require.NoError(t, s.SetRaw(ctx, col, []byte(k), []byte(k)))
	}

	batch := s.NewWriteBatch()
	batch.DeleteRange(col, []byte("p1"), []byte("p9"))
	require.NoError(t, s.Write(ctx, batch))
	batch.Close()

	for _, k := range []string{"p1", "p2", "p3"} {
		_, err := s.GetRaw(ctx, col, []byte(k))
		require.Equal(t, ErrNotFound, err)
	}
	_, err := s.GetRaw(ctx, col, []byte("q1"))
	require.NoError(t, err)
}

func TestListerSnapshotStability(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	col := CF("catalog")
	require.NoError(t, s.SetRaw(ctx, col, []byte("k1"), []byte("v1")))

	lr := s.List(ctx, col, nil, nil)
	defer lr.Close()

	// a write after the reader opened is not observed by it
	require.NoError(t, s.SetRaw(ctx, col, []byte("k2"), []byte("v2")))

	var n int
	for {
		k, _, err := lr.ReadNextCopy()
		require.NoError(t, err)
		if k == nil {
			break
		}
		n++
	}
	require.Equal(t, 1, n)
}

func TestDumpAndIngestTable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	col := CF("catalog")
	require.NoError(t, s.SetRaw(ctx, col, []byte("t/1"), []byte("v1")))
	require.NoError(t, s.SetRaw(ctx, col, []byte("t/2"), []byte("v2")))
	require.NoError(t, s.SetRaw(ctx, col, []byte("u/1"), []byte("v3")))

	dir, err := util.GenTmpPath()
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	file := filepath.Join(dir, "dump.tbl")
	n, err := s.DumpTable(ctx, col, []byte("t/"), file)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, err = os.Stat(file)
	require.NoError(t, err)

	other := newTestStore(t)
	defer other.Close()
	require.NoError(t, other.IngestTable(ctx, col, file))

	v, err := other.GetRaw(ctx, col, []byte("t/2"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), v)
	_, err = other.GetRaw(ctx, col, []byte("u/1"))
	require.Equal(t, ErrNotFound, err)
}
