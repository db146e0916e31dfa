package schemaman

import (
	"context"
	"os"
	"testing"

	"github.com/cubefs/graphdb/common/kvstore"
	apierrors "github.com/cubefs/graphdb/errors"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
	"github.com/cubefs/graphdb/util"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *metastore.CatalogStore {
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(path) })

	engine, err := kvstore.NewKVStore(context.Background(), "", kvstore.MemKVType, &kvstore.Option{})
	require.NoError(t, err)
	kv := metastore.NewWithEngine(engine, &metastore.Config{
		Path: path, NodeID: 1, KVType: kvstore.MemKVType,
	})
	t.Cleanup(kv.Close)

	desc := &proto.SpaceDesc{
		SpaceID: 1, Name: "g",
		Vid: proto.VidType{Type: proto.PropertyTypeFixedString, Length: 16},
	}
	v0 := &proto.Schema{Version: 0, Columns: []proto.ColumnDef{{Name: "c1", Type: proto.PropertyTypeInt64}}}
	v1 := &proto.Schema{Version: 1, Columns: []proto.ColumnDef{
		{Name: "c1", Type: proto.PropertyTypeInt64},
		{Name: "c2", Type: proto.PropertyTypeString},
	}}
	item := &proto.IndexItem{
		IndexID: 7, IndexName: "i1",
		SchemaID: proto.SchemaID{Kind: proto.SchemaIDTag, TagID: 2},
		Fields:   []proto.ColumnDef{{Name: "c1"}},
	}

	seed := []metastore.KV{
		{Key: metakey.SpaceKey(1), Value: metakey.SpaceVal(desc)},
		{Key: metakey.IndexTagKey(1, "person"), Value: metakey.IDVal(2)},
		{Key: metakey.SchemaTagKey(1, 2, 0), Value: metakey.SchemaVal(v0)},
		{Key: metakey.SchemaTagKey(1, 2, 1), Value: metakey.SchemaVal(v1)},
		{Key: metakey.IndexKey(1, 7), Value: metakey.IndexVal(item)},
	}
	require.NoError(t, metastore.SyncMultiPut(context.Background(), kv, seed))
	return kv
}

func TestSchemaVersionsOldestFirst(t *testing.T) {
	m := NewManager(seedStore(t))

	name, err := m.ToTagName(1, 2)
	require.NoError(t, err)
	require.Equal(t, "person", name)

	tags, err := m.GetAllVerTagSchema(1)
	require.NoError(t, err)
	schemas := tags[2]
	require.Len(t, schemas, 2)
	require.Equal(t, proto.SchemaVer(0), schemas[0].Version)
	require.Equal(t, proto.SchemaVer(1), schemas[1].Version)
	// the active version carries both columns
	require.Len(t, schemas[len(schemas)-1].Columns, 2)
}

func TestVidLen(t *testing.T) {
	m := NewManager(seedStore(t))
	vidLen, err := m.GetSpaceVidLen(1)
	require.NoError(t, err)
	require.Equal(t, 16, vidLen)

	isInt, err := m.IsIntVid(1)
	require.NoError(t, err)
	require.False(t, isInt)
}

func TestIndexLookup(t *testing.T) {
	m := NewManager(seedStore(t))

	item, err := m.GetTagIndex(1, 7)
	require.NoError(t, err)
	require.Equal(t, "i1", item.IndexName)

	_, err = m.GetEdgeIndex(1, 7)
	require.Equal(t, apierrors.ErrIndexNotExist, err)

	_, err = m.GetTagIndex(1, 99)
	require.Equal(t, apierrors.ErrIndexNotExist, err)
}

func TestUnknownSpace(t *testing.T) {
	m := NewManager(seedStore(t))
	_, err := m.GetSpaceVidLen(42)
	require.Equal(t, apierrors.ErrSpaceNotExist, err)
}

func TestInvalidateReloads(t *testing.T) {
	kv := seedStore(t)
	m := NewManager(kv)

	_, err := m.ToTagName(1, 2)
	require.NoError(t, err)

	// a new tag only shows up after invalidation
	require.NoError(t, metastore.SyncMultiPut(context.Background(), kv, []metastore.KV{
		{Key: metakey.IndexTagKey(1, "device"), Value: metakey.IDVal(3)},
	}))
	_, err = m.ToTagName(1, 3)
	require.Equal(t, apierrors.ErrTagNotExist, err)

	m.Invalidate(1)
	name, err := m.ToTagName(1, 3)
	require.NoError(t, err)
	require.Equal(t, "device", name)
}
