package processors

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/cubefs/graphdb/common/kvstore"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
	"github.com/cubefs/graphdb/util"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *metastore.CatalogStore {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(path) })

	engine, err := kvstore.NewKVStore(context.Background(), "", kvstore.MemKVType, &kvstore.Option{})
	require.NoError(t, err)
	s := metastore.NewWithEngine(engine, &metastore.Config{
		Path:   path,
		NodeID: 1,
		KVType: kvstore.MemKVType,
	})
	t.Cleanup(s.Close)
	return s
}

func heartbeat(t *testing.T, kv *metastore.CatalogStore, hosts ...proto.HostAddr) {
	ctx := context.Background()
	for _, h := range hosts {
		resp := NewHBProcessor(kv).Process(ctx, &proto.HeartBeatReq{
			Addr: h, Role: proto.HostRoleStorage, GitInfoSha: "deadbeef",
		})
		require.Equal(t, proto.Succeeded, resp.Code)
	}
}

func createSpace(t *testing.T, kv *metastore.CatalogStore, name string, parts, replica int32) proto.GraphSpaceID {
	resp := NewCreateSpaceProcessor(kv).Process(context.Background(), &proto.CreateSpaceReq{
		Properties: proto.SpaceDesc{
			Name:          name,
			PartitionNum:  parts,
			ReplicaFactor: replica,
			Vid:           proto.VidType{Type: proto.PropertyTypeFixedString, Length: 8},
		},
	})
	require.Equal(t, proto.Succeeded, resp.Code)
	return resp.SpaceID
}

func prefixEmpty(t *testing.T, kv *metastore.CatalogStore, prefix []byte) bool {
	iter, err := kv.Prefix(context.Background(), prefix)
	require.NoError(t, err)
	defer iter.Close()
	return !iter.Valid()
}

// Five concurrent allocations starting from 10 return a permutation of
// 11..15 and leave the counter at 15.
func TestAutoIncrementIdContention(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)

	require.NoError(t, metastore.SyncMultiPut(ctx, kv, []metastore.KV{
		{Key: metakey.IDKey, Value: metakey.IDVal(10)},
	}))

	const callers = 5
	results := make([]int32, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := newBaseProcessor(kv)
			id, code := p.autoIncrementId(ctx)
			require.Equal(t, proto.Succeeded, code)
			results[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[int32]bool)
	for _, id := range results {
		require.True(t, id >= 11 && id <= 15, "id %d out of range", id)
		require.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}

	value, err := kv.Get(ctx, metakey.IDKey)
	require.NoError(t, err)
	require.Equal(t, int32(15), metakey.ParseID(value))
}

func TestAutoIncrementIdFromEmpty(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)

	p := newBaseProcessor(kv)
	id, code := p.autoIncrementId(ctx)
	require.Equal(t, proto.Succeeded, code)
	require.Equal(t, int32(1), id)

	id, code = p.autoIncrementId(ctx)
	require.Equal(t, proto.Succeeded, code)
	require.Equal(t, int32(2), id)
}

func TestLastUpdateTimeStamped(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)

	before, code := GetLastUpdateTime(ctx, kv)
	require.Equal(t, proto.Succeeded, code)
	require.Zero(t, before)

	p := newBaseProcessor(kv)
	p.doSyncPutAndUpdate(ctx, []metastore.KV{{Key: []byte("k"), Value: []byte("v")}})
	require.Equal(t, proto.Succeeded, p.errorCode())

	after, code := GetLastUpdateTime(ctx, kv)
	require.Equal(t, proto.Succeeded, code)
	require.NotZero(t, after)
}

func TestOnFinishedTwicePanics(t *testing.T) {
	p := newBaseProcessor(newTestStore(t))
	p.onFinished()
	require.Panics(t, func() { p.onFinished() })
}

func TestCheckIndexExist(t *testing.T) {
	item := &proto.IndexItem{
		IndexName: "i1",
		Fields: []proto.ColumnDef{
			{Name: "c1"}, {Name: "c2"},
		},
	}
	require.True(t, checkIndexExist(nil, item))
	require.True(t, checkIndexExist([]string{"c1", "c2"}, item))
	require.True(t, checkIndexExist([]string{"c1"}, item))
	require.False(t, checkIndexExist([]string{"c2"}, item))
	require.False(t, checkIndexExist([]string{"c1", "c3"}, item))
	require.False(t, checkIndexExist([]string{"c1", "c2", "c3"}, item))
}

func TestIndexCheck(t *testing.T) {
	items := []*proto.IndexItem{{
		IndexName: "i1",
		Fields:    []proto.ColumnDef{{Name: "c2"}},
	}}

	conflict := indexCheck(items, []proto.AlterSchemaItem{{
		Op:      proto.AlterSchemaOpDrop,
		Columns: []proto.ColumnDef{{Name: "c2"}},
	}})
	require.Equal(t, proto.ErrCodeConflict, conflict)

	ok := indexCheck(items, []proto.AlterSchemaItem{{
		Op:      proto.AlterSchemaOpAdd,
		Columns: []proto.ColumnDef{{Name: "c9"}},
	}})
	require.Equal(t, proto.Succeeded, ok)
}
