package processors

import (
	"context"
	"testing"

	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
	"github.com/stretchr/testify/require"
)

func setupIndexSpace(t *testing.T) *metastore.CatalogStore {
	kv := newTestStore(t)
	heartbeat(t, kv, proto.HostAddr{Host: "h1", Port: 1})
	createSpace(t, kv, "g", 1, 1)
	createTag(t, kv, "g", "person",
		col("c1", proto.PropertyTypeInt64),
		col("c2", proto.PropertyTypeInt64),
		col("c3", proto.PropertyTypeString),
	)
	return kv
}

func TestCreateIndex(t *testing.T) {
	ctx := context.Background()
	kv := setupIndexSpace(t)

	resp := NewCreateIndexProcessor(kv).Process(ctx, &proto.CreateIndexReq{
		SpaceName:  "g",
		IndexName:  "i12",
		SchemaName: "person",
		Fields:     []string{"c1", "c2"},
	})
	require.Equal(t, proto.Succeeded, resp.Code)
	require.NotZero(t, resp.IndexID)

	items, code := NewListIndexesProcessor(kv).Process(ctx, "g")
	require.Equal(t, proto.Succeeded, code)
	require.Len(t, items, 1)
	require.Equal(t, "i12", items[0].IndexName)
	require.Len(t, items[0].Fields, 2)
	require.Equal(t, "c1", items[0].Fields[0].Name)
}

// Two indices with the same ordered field prefix are forbidden.
func TestCreateIndexDuplicateFields(t *testing.T) {
	ctx := context.Background()
	kv := setupIndexSpace(t)

	first := NewCreateIndexProcessor(kv).Process(ctx, &proto.CreateIndexReq{
		SpaceName: "g", IndexName: "i12", SchemaName: "person", Fields: []string{"c1", "c2"},
	})
	require.Equal(t, proto.Succeeded, first.Code)

	same := NewCreateIndexProcessor(kv).Process(ctx, &proto.CreateIndexReq{
		SpaceName: "g", IndexName: "other", SchemaName: "person", Fields: []string{"c1", "c2"},
	})
	require.Equal(t, proto.ErrCodeExisted, same.Code)

	prefix := NewCreateIndexProcessor(kv).Process(ctx, &proto.CreateIndexReq{
		SpaceName: "g", IndexName: "short", SchemaName: "person", Fields: []string{"c1"},
	})
	require.Equal(t, proto.ErrCodeExisted, prefix.Code)

	different := NewCreateIndexProcessor(kv).Process(ctx, &proto.CreateIndexReq{
		SpaceName: "g", IndexName: "i3", SchemaName: "person", Fields: []string{"c3"},
	})
	require.Equal(t, proto.Succeeded, different.Code)
}

func TestCreateIndexUnknownField(t *testing.T) {
	kv := setupIndexSpace(t)

	resp := NewCreateIndexProcessor(kv).Process(context.Background(), &proto.CreateIndexReq{
		SpaceName: "g", IndexName: "bad", SchemaName: "person", Fields: []string{"ghost"},
	})
	require.Equal(t, proto.ErrCodeNotFound, resp.Code)
}

func TestDropIndex(t *testing.T) {
	ctx := context.Background()
	kv := setupIndexSpace(t)

	created := NewCreateIndexProcessor(kv).Process(ctx, &proto.CreateIndexReq{
		SpaceName: "g", IndexName: "i12", SchemaName: "person", Fields: []string{"c1"},
	})
	require.Equal(t, proto.Succeeded, created.Code)

	resp := NewDropIndexProcessor(kv).Process(ctx, &proto.DropIndexReq{SpaceName: "g", IndexName: "i12"})
	require.Equal(t, proto.Succeeded, resp.Code)

	items, code := NewListIndexesProcessor(kv).Process(ctx, "g")
	require.Equal(t, proto.Succeeded, code)
	require.Empty(t, items)

	again := NewDropIndexProcessor(kv).Process(ctx, &proto.DropIndexReq{SpaceName: "g", IndexName: "i12"})
	require.Equal(t, proto.ErrCodeIndexNotFound, again.Code)

	ifExists := NewDropIndexProcessor(kv).Process(ctx, &proto.DropIndexReq{SpaceName: "g", IndexName: "i12", IfExists: true})
	require.Equal(t, proto.Succeeded, ifExists.Code)
}
