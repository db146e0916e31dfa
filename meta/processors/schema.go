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

package processors

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
)

// CreateTagProcessor registers a tag schema, version 0.
type CreateTagProcessor struct {
	baseProcessor
}

func NewCreateTagProcessor(kv metastore.Store) *CreateTagProcessor {
	return &CreateTagProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *CreateTagProcessor) Process(ctx context.Context, req *proto.CreateSchemaReq) *proto.CreateSchemaResp {
	return createSchema(ctx, &p.baseProcessor, req, false)
}

// CreateEdgeProcessor registers an edge schema, version 0.
type CreateEdgeProcessor struct {
	baseProcessor
}

func NewCreateEdgeProcessor(kv metastore.Store) *CreateEdgeProcessor {
	return &CreateEdgeProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *CreateEdgeProcessor) Process(ctx context.Context, req *proto.CreateSchemaReq) *proto.CreateSchemaResp {
	return createSchema(ctx, &p.baseProcessor, req, true)
}

func createSchema(ctx context.Context, p *baseProcessor, req *proto.CreateSchemaReq, isEdge bool) *proto.CreateSchemaResp {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.CreateSchemaResp{}

	spaceLock().Lock()
	defer spaceLock().Unlock()

	finish := func(code proto.ErrorCode) *proto.CreateSchemaResp {
		resp.Code = code
		p.handleErrorCode(code)
		p.onFinished()
		return resp
	}

	spaceID, code := p.getSpaceId(ctx, req.SpaceName)
	if !code.OK() {
		if code == proto.ErrCodeNotFound {
			code = proto.ErrCodeSpaceNotFound
		}
		return finish(code)
	}

	// a tag and an edge must not share a name within a space
	if isEdge {
		if _, code = p.getTagId(ctx, spaceID, req.SchemaName); code.OK() {
			span.Errorf("create edge failed, tag %s existed", req.SchemaName)
			return finish(proto.ErrCodeConflict)
		}
	} else {
		if _, code = p.getEdgeType(ctx, spaceID, req.SchemaName); code.OK() {
			span.Errorf("create tag failed, edge %s existed", req.SchemaName)
			return finish(proto.ErrCodeConflict)
		}
	}

	existing, code := p.resolveSchemaID(ctx, spaceID, req.SchemaName, isEdge)
	if code.OK() {
		if req.IfNotExists {
			resp.ID = existing
			return finish(proto.Succeeded)
		}
		span.Errorf("create schema failed, %s existed", req.SchemaName)
		return finish(proto.ErrCodeExisted)
	}
	if code != proto.ErrCodeNotFound {
		return finish(code)
	}

	id, code := p.autoIncrementId(ctx)
	if !code.OK() {
		return finish(code)
	}

	schema := req.Schema
	schema.Version = 0

	var data []metastore.KV
	if isEdge {
		data = []metastore.KV{
			{Key: metakey.IndexEdgeKey(spaceID, req.SchemaName), Value: metakey.IDVal(id)},
			{Key: metakey.SchemaEdgeKey(spaceID, id, 0), Value: metakey.SchemaVal(&schema)},
		}
	} else {
		data = []metastore.KV{
			{Key: metakey.IndexTagKey(spaceID, req.SchemaName), Value: metakey.IDVal(id)},
			{Key: metakey.SchemaTagKey(spaceID, id, 0), Value: metakey.SchemaVal(&schema)},
		}
	}

	resp.ID = id
	p.doSyncPutAndUpdate(ctx, data)
	resp.Code = p.errorCode()
	span.Infof("create schema %s, space %d, id %d, isEdge %v", req.SchemaName, spaceID, id, isEdge)
	return resp
}

func (p *baseProcessor) resolveSchemaID(ctx context.Context, spaceID proto.GraphSpaceID, name string, isEdge bool) (int32, proto.ErrorCode) {
	if isEdge {
		return p.getEdgeType(ctx, spaceID, name)
	}
	return p.getTagId(ctx, spaceID, name)
}

// AlterTagProcessor appends a new tag schema version after the index
// conflict check passes.
type AlterTagProcessor struct {
	baseProcessor
}

func NewAlterTagProcessor(kv metastore.Store) *AlterTagProcessor {
	return &AlterTagProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *AlterTagProcessor) Process(ctx context.Context, req *proto.AlterSchemaReq) *proto.AlterSchemaResp {
	return alterSchema(ctx, &p.baseProcessor, req, false)
}

// AlterEdgeProcessor appends a new edge schema version after the index
// conflict check passes.
type AlterEdgeProcessor struct {
	baseProcessor
}

func NewAlterEdgeProcessor(kv metastore.Store) *AlterEdgeProcessor {
	return &AlterEdgeProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *AlterEdgeProcessor) Process(ctx context.Context, req *proto.AlterSchemaReq) *proto.AlterSchemaResp {
	return alterSchema(ctx, &p.baseProcessor, req, true)
}

func alterSchema(ctx context.Context, p *baseProcessor, req *proto.AlterSchemaReq, isEdge bool) *proto.AlterSchemaResp {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.AlterSchemaResp{}

	spaceLock().Lock()
	defer spaceLock().Unlock()

	finish := func(code proto.ErrorCode) *proto.AlterSchemaResp {
		resp.Code = code
		p.handleErrorCode(code)
		p.onFinished()
		return resp
	}

	spaceID, code := p.getSpaceId(ctx, req.SpaceName)
	if !code.OK() {
		if code == proto.ErrCodeNotFound {
			code = proto.ErrCodeSpaceNotFound
		}
		return finish(code)
	}

	schemaID, code := p.resolveSchemaID(ctx, spaceID, req.SchemaName, isEdge)
	if !code.OK() {
		if code == proto.ErrCodeNotFound {
			if isEdge {
				code = proto.ErrCodeEdgeNotFound
			} else {
				code = proto.ErrCodeTagNotFound
			}
		}
		return finish(code)
	}

	var (
		latest *proto.Schema
		ver    proto.SchemaVer
	)
	if isEdge {
		latest, ver, code = p.getLatestEdgeSchema(ctx, spaceID, schemaID)
	} else {
		latest, ver, code = p.getLatestTagSchema(ctx, spaceID, schemaID)
	}
	if !code.OK() {
		return finish(code)
	}

	indexes, code := p.getIndexes(ctx, spaceID, schemaID)
	if !code.OK() {
		return finish(code)
	}
	if code = indexCheck(indexes, req.Items); !code.OK() {
		span.Errorf("alter schema %s conflicts with an index", req.SchemaName)
		return finish(code)
	}

	columns, code := alterColumnDefs(latest.Columns, req.Items)
	if !code.OK() {
		return finish(code)
	}

	next := &proto.Schema{Version: ver + 1, Columns: columns}
	var key []byte
	if isEdge {
		key = metakey.SchemaEdgeKey(spaceID, schemaID, next.Version)
	} else {
		key = metakey.SchemaTagKey(spaceID, schemaID, next.Version)
	}

	p.doSyncPutAndUpdate(ctx, []metastore.KV{{Key: key, Value: metakey.SchemaVal(next)}})
	resp.Code = p.errorCode()
	span.Infof("alter schema %s, space %d, version %d", req.SchemaName, spaceID, next.Version)
	return resp
}

// alterColumnDefs applies ADD/CHANGE/DROP items to the newest column list.
func alterColumnDefs(cols []proto.ColumnDef, items []proto.AlterSchemaItem) ([]proto.ColumnDef, proto.ErrorCode) {
	next := make([]proto.ColumnDef, len(cols))
	copy(next, cols)

	find := func(name string) int {
		for i := range next {
			if next[i].Name == name {
				return i
			}
		}
		return -1
	}

	for _, item := range items {
		for _, col := range item.Columns {
			idx := find(col.Name)
			switch item.Op {
			case proto.AlterSchemaOpAdd:
				if idx >= 0 {
					return nil, proto.ErrCodeExisted
				}
				next = append(next, col)
			case proto.AlterSchemaOpChange:
				if idx < 0 {
					return nil, proto.ErrCodeNotFound
				}
				next[idx] = col
			case proto.AlterSchemaOpDrop:
				if idx < 0 {
					return nil, proto.ErrCodeNotFound
				}
				next = append(next[:idx], next[idx+1:]...)
			default:
				return nil, proto.ErrCodeInvalidOperation
			}
		}
	}
	return next, proto.Succeeded
}
