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

// CreateIndexProcessor creates an index over a tag or edge schema. A
// request whose ordered field list equals, or is a prefix of, the fields
// of an existing index on the same schema is rejected, and every
// requested field must exist in the newest schema version.
type CreateIndexProcessor struct {
	baseProcessor
}

func NewCreateIndexProcessor(kv metastore.Store) *CreateIndexProcessor {
	return &CreateIndexProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *CreateIndexProcessor) Process(ctx context.Context, req *proto.CreateIndexReq) *proto.CreateIndexResp {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.CreateIndexResp{}

	spaceLock().Lock()
	defer spaceLock().Unlock()

	finish := func(code proto.ErrorCode) *proto.CreateIndexResp {
		resp.Code = code
		p.handleErrorCode(code)
		p.onFinished()
		return resp
	}

	if len(req.Fields) == 0 {
		return finish(proto.ErrCodeInvalidOperation)
	}
	seen := make(map[string]struct{}, len(req.Fields))
	for _, f := range req.Fields {
		if _, ok := seen[f]; ok {
			span.Errorf("create index failed, duplicate field %s", f)
			return finish(proto.ErrCodeConflict)
		}
		seen[f] = struct{}{}
	}

	spaceID, code := p.getSpaceId(ctx, req.SpaceName)
	if !code.OK() {
		if code == proto.ErrCodeNotFound {
			code = proto.ErrCodeSpaceNotFound
		}
		return finish(code)
	}

	if indexID, code := p.getIndexID(ctx, spaceID, req.IndexName); code.OK() {
		if req.IfNotExists {
			resp.IndexID = indexID
			return finish(proto.Succeeded)
		}
		span.Errorf("create index failed, index %s existed", req.IndexName)
		return finish(proto.ErrCodeExisted)
	} else if code != proto.ErrCodeNotFound {
		return finish(code)
	}

	schemaID, code := p.resolveSchemaID(ctx, spaceID, req.SchemaName, req.IsEdge)
	if !code.OK() {
		if code == proto.ErrCodeNotFound {
			if req.IsEdge {
				code = proto.ErrCodeEdgeNotFound
			} else {
				code = proto.ErrCodeTagNotFound
			}
		}
		return finish(code)
	}

	var latest *proto.Schema
	if req.IsEdge {
		latest, _, code = p.getLatestEdgeSchema(ctx, spaceID, schemaID)
	} else {
		latest, _, code = p.getLatestTagSchema(ctx, spaceID, schemaID)
	}
	if !code.OK() {
		return finish(code)
	}

	fields := make([]proto.ColumnDef, 0, len(req.Fields))
	for _, name := range req.Fields {
		col := findColumn(latest.Columns, name)
		if col == nil {
			span.Errorf("create index failed, field %s not in schema %s", name, req.SchemaName)
			return finish(proto.ErrCodeNotFound)
		}
		fields = append(fields, *col)
	}

	existing, code := p.getIndexes(ctx, spaceID, schemaID)
	if !code.OK() {
		return finish(code)
	}
	for _, item := range existing {
		if checkIndexExist(req.Fields, item) {
			span.Errorf("create index failed, index %s covers the same fields", item.IndexName)
			return finish(proto.ErrCodeExisted)
		}
	}

	id, code := p.autoIncrementId(ctx)
	if !code.OK() {
		return finish(code)
	}
	indexID := proto.IndexID(id)

	schemaIDRef := proto.SchemaID{Kind: proto.SchemaIDTag, TagID: schemaID}
	if req.IsEdge {
		schemaIDRef = proto.SchemaID{Kind: proto.SchemaIDEdge, EdgeType: schemaID}
	}
	item := &proto.IndexItem{
		IndexID:    indexID,
		IndexName:  req.IndexName,
		SchemaID:   schemaIDRef,
		SchemaName: req.SchemaName,
		Fields:     fields,
	}

	data := []metastore.KV{
		{Key: metakey.IndexIndexKey(spaceID, req.IndexName), Value: metakey.IDVal(indexID)},
		{Key: metakey.IndexKey(spaceID, indexID), Value: metakey.IndexVal(item)},
	}

	resp.IndexID = indexID
	p.doSyncPutAndUpdate(ctx, data)
	resp.Code = p.errorCode()
	span.Infof("create index %s, space %d, id %d", req.IndexName, spaceID, indexID)
	return resp
}

func findColumn(cols []proto.ColumnDef, name string) *proto.ColumnDef {
	for i := range cols {
		if cols[i].Name == name {
			return &cols[i]
		}
	}
	return nil
}

// DropIndexProcessor removes the index record and its name entry.
type DropIndexProcessor struct {
	baseProcessor
}

func NewDropIndexProcessor(kv metastore.Store) *DropIndexProcessor {
	return &DropIndexProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *DropIndexProcessor) Process(ctx context.Context, req *proto.DropIndexReq) *proto.DropIndexResp {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.DropIndexResp{}

	spaceLock().Lock()
	defer spaceLock().Unlock()

	finish := func(code proto.ErrorCode) *proto.DropIndexResp {
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

	indexID, code := p.getIndexID(ctx, spaceID, req.IndexName)
	if !code.OK() {
		if code == proto.ErrCodeNotFound {
			if req.IfExists {
				return finish(proto.Succeeded)
			}
			code = proto.ErrCodeIndexNotFound
		}
		return finish(code)
	}

	deleteKeys := [][]byte{
		metakey.IndexIndexKey(spaceID, req.IndexName),
		metakey.IndexKey(spaceID, indexID),
	}
	p.doSyncMultiRemoveAndUpdate(ctx, deleteKeys)
	resp.Code = p.errorCode()
	span.Infof("drop index %s, space %d, id %d", req.IndexName, spaceID, indexID)
	return resp
}

// ListIndexesProcessor lists every index of a space.
type ListIndexesProcessor struct {
	baseProcessor
}

func NewListIndexesProcessor(kv metastore.Store) *ListIndexesProcessor {
	return &ListIndexesProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *ListIndexesProcessor) Process(ctx context.Context, spaceName string) ([]*proto.IndexItem, proto.ErrorCode) {
	spaceLock().RLock()
	defer spaceLock().RUnlock()

	finish := func(items []*proto.IndexItem, code proto.ErrorCode) ([]*proto.IndexItem, proto.ErrorCode) {
		p.handleErrorCode(code)
		p.onFinished()
		return items, code
	}

	spaceID, code := p.getSpaceId(ctx, spaceName)
	if !code.OK() {
		if code == proto.ErrCodeNotFound {
			code = proto.ErrCodeSpaceNotFound
		}
		return finish(nil, code)
	}

	iter, code := p.doPrefix(ctx, metakey.IndexPrefix(spaceID))
	if !code.OK() {
		return finish(nil, code)
	}
	defer iter.Close()

	var items []*proto.IndexItem
	for ; iter.Valid(); iter.Next() {
		item, err := metakey.ParseIndexVal(iter.Val())
		if err != nil {
			return finish(nil, proto.ErrCodeStoreFailure)
		}
		items = append(items, item)
	}
	return finish(items, proto.Succeeded)
}
