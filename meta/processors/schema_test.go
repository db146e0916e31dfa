package processors

import (
	"context"
	"testing"

	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
	"github.com/stretchr/testify/require"
)

func createTag(t *testing.T, kv *metastore.CatalogStore, space, name string, cols ...proto.ColumnDef) proto.TagID {
	resp := NewCreateTagProcessor(kv).Process(context.Background(), &proto.CreateSchemaReq{
		SpaceName:  space,
		SchemaName: name,
		Schema:     proto.Schema{Columns: cols},
	})
	require.Equal(t, proto.Succeeded, resp.Code)
	return resp.ID
}

func col(name string, typ proto.PropertyType) proto.ColumnDef {
	return proto.ColumnDef{Name: name, Type: typ}
}

func TestCreateTagAndEdge(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)
	heartbeat(t, kv, proto.HostAddr{Host: "h1", Port: 1})
	createSpace(t, kv, "g", 1, 1)

	tagID := createTag(t, kv, "g", "person", col("name", proto.PropertyTypeString), col("age", proto.PropertyTypeInt64))
	require.NotZero(t, tagID)

	edgeResp := NewCreateEdgeProcessor(kv).Process(ctx, &proto.CreateSchemaReq{
		SpaceName:  "g",
		SchemaName: "knows",
		Schema:     proto.Schema{Columns: []proto.ColumnDef{col("since", proto.PropertyTypeInt64)}},
	})
	require.Equal(t, proto.Succeeded, edgeResp.Code)

	// a tag and an edge must not share a name
	conflict := NewCreateEdgeProcessor(kv).Process(ctx, &proto.CreateSchemaReq{
		SpaceName:  "g",
		SchemaName: "person",
		Schema:     proto.Schema{Columns: []proto.ColumnDef{col("x", proto.PropertyTypeInt64)}},
	})
	require.Equal(t, proto.ErrCodeConflict, conflict.Code)

	dup := NewCreateTagProcessor(kv).Process(ctx, &proto.CreateSchemaReq{
		SpaceName:  "g",
		SchemaName: "person",
		Schema:     proto.Schema{Columns: []proto.ColumnDef{col("x", proto.PropertyTypeInt64)}},
	})
	require.Equal(t, proto.ErrCodeExisted, dup.Code)
}

func TestAlterTagAddColumn(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)
	heartbeat(t, kv, proto.HostAddr{Host: "h1", Port: 1})
	createSpace(t, kv, "g", 1, 1)
	tagID := createTag(t, kv, "g", "person", col("name", proto.PropertyTypeString))

	resp := NewAlterTagProcessor(kv).Process(ctx, &proto.AlterSchemaReq{
		SpaceName:  "g",
		SchemaName: "person",
		Items: []proto.AlterSchemaItem{{
			Op:      proto.AlterSchemaOpAdd,
			Columns: []proto.ColumnDef{col("age", proto.PropertyTypeInt64)},
		}},
	})
	require.Equal(t, proto.Succeeded, resp.Code)

	// the new version is active and carries both columns
	p := newBaseProcessor(kv)
	schema, ver, code := p.getLatestTagSchema(ctx, 1, tagID)
	require.Equal(t, proto.Succeeded, code)
	require.Equal(t, proto.SchemaVer(1), ver)
	require.Len(t, schema.Columns, 2)
}

// An alter that changes or drops an indexed column returns E_CONFLICT; an
// alter that adds a new column succeeds.
func TestAlterTagIndexConflict(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)
	heartbeat(t, kv, proto.HostAddr{Host: "h1", Port: 1})
	createSpace(t, kv, "g", 1, 1)
	createTag(t, kv, "g", "person", col("name", proto.PropertyTypeString), col("age", proto.PropertyTypeInt64))

	idxResp := NewCreateIndexProcessor(kv).Process(ctx, &proto.CreateIndexReq{
		SpaceName:  "g",
		IndexName:  "idx_age",
		SchemaName: "person",
		Fields:     []string{"age"},
	})
	require.Equal(t, proto.Succeeded, idxResp.Code)

	drop := NewAlterTagProcessor(kv).Process(ctx, &proto.AlterSchemaReq{
		SpaceName:  "g",
		SchemaName: "person",
		Items: []proto.AlterSchemaItem{{
			Op:      proto.AlterSchemaOpDrop,
			Columns: []proto.ColumnDef{col("age", proto.PropertyTypeInt64)},
		}},
	})
	require.Equal(t, proto.ErrCodeConflict, drop.Code)

	change := NewAlterTagProcessor(kv).Process(ctx, &proto.AlterSchemaReq{
		SpaceName:  "g",
		SchemaName: "person",
		Items: []proto.AlterSchemaItem{{
			Op:      proto.AlterSchemaOpChange,
			Columns: []proto.ColumnDef{col("age", proto.PropertyTypeString)},
		}},
	})
	require.Equal(t, proto.ErrCodeConflict, change.Code)

	add := NewAlterTagProcessor(kv).Process(ctx, &proto.AlterSchemaReq{
		SpaceName:  "g",
		SchemaName: "person",
		Items: []proto.AlterSchemaItem{{
			Op:      proto.AlterSchemaOpAdd,
			Columns: []proto.ColumnDef{col("email", proto.PropertyTypeString)},
		}},
	})
	require.Equal(t, proto.Succeeded, add.Code)
}

func TestAlterUnknownTag(t *testing.T) {
	kv := newTestStore(t)
	heartbeat(t, kv, proto.HostAddr{Host: "h1", Port: 1})
	createSpace(t, kv, "g", 1, 1)

	resp := NewAlterTagProcessor(kv).Process(context.Background(), &proto.AlterSchemaReq{
		SpaceName:  "g",
		SchemaName: "ghost",
		Items:      []proto.AlterSchemaItem{{Op: proto.AlterSchemaOpAdd, Columns: []proto.ColumnDef{col("x", proto.PropertyTypeInt64)}}},
	})
	require.Equal(t, proto.ErrCodeTagNotFound, resp.Code)
}
