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

// Package processors holds the catalog mutation processors. Every
// processor follows one skeleton: acquire locks, resolve names to ids,
// read current state, compute the batch, issue a single synchronous
// write, set the response code and finish exactly once.
package processors

import (
	"context"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
)

type baseProcessor struct {
	kv       metastore.Store
	code     proto.ErrorCode
	finished bool
}

func newBaseProcessor(kv metastore.Store) baseProcessor {
	return baseProcessor{kv: kv}
}

func (p *baseProcessor) handleErrorCode(code proto.ErrorCode) {
	p.code = code
}

// onFinished is the single terminal of a processor; a second call is a
// programming error.
func (p *baseProcessor) onFinished() {
	if p.finished {
		panic("processor finished twice")
	}
	p.finished = true
}

func (p *baseProcessor) errorCode() proto.ErrorCode {
	return p.code
}

func toErrorCode(err error) proto.ErrorCode {
	switch err {
	case nil:
		return proto.Succeeded
	case metastore.ErrNotFound:
		return proto.ErrCodeNotFound
	case metastore.ErrLeaderChanged:
		return proto.ErrCodeLeaderChanged
	default:
		return proto.ErrCodeStoreFailure
	}
}

func (p *baseProcessor) doGet(ctx context.Context, key []byte) ([]byte, proto.ErrorCode) {
	value, err := p.kv.Get(ctx, key)
	if err != nil {
		return nil, toErrorCode(err)
	}
	return value, proto.Succeeded
}

func (p *baseProcessor) doMultiGet(ctx context.Context, keys [][]byte) ([][]byte, proto.ErrorCode) {
	values, errs := p.kv.MultiGet(ctx, keys)
	for _, err := range errs {
		if err != nil {
			return nil, toErrorCode(err)
		}
	}
	return values, proto.Succeeded
}

func (p *baseProcessor) doPrefix(ctx context.Context, prefix []byte) (metastore.Iterator, proto.ErrorCode) {
	iter, err := p.kv.Prefix(ctx, prefix)
	if err != nil {
		return nil, toErrorCode(err)
	}
	return iter, proto.Succeeded
}

func (p *baseProcessor) doScan(ctx context.Context, start, end []byte) ([][]byte, proto.ErrorCode) {
	iter, err := p.kv.Range(ctx, start, end)
	if err != nil {
		return nil, toErrorCode(err)
	}
	defer iter.Close()

	var values [][]byte
	for ; iter.Valid(); iter.Next() {
		value := make([]byte, len(iter.Val()))
		copy(value, iter.Val())
		values = append(values, value)
	}
	if iter.Err() != nil {
		return nil, toErrorCode(iter.Err())
	}
	return values, proto.Succeeded
}

// doPut is terminal: it writes, sets the code and finishes.
func (p *baseProcessor) doPut(ctx context.Context, data []metastore.KV) {
	p.handleErrorCode(toErrorCode(metastore.SyncMultiPut(ctx, p.kv, data)))
	p.onFinished()
}

func (p *baseProcessor) doRemove(ctx context.Context, key []byte) {
	p.handleErrorCode(toErrorCode(metastore.SyncRemove(ctx, p.kv, key)))
	p.onFinished()
}

func (p *baseProcessor) doMultiRemove(ctx context.Context, keys [][]byte) {
	p.handleErrorCode(toErrorCode(metastore.SyncMultiRemove(ctx, p.kv, keys)))
	p.onFinished()
}

func (p *baseProcessor) doRemoveRange(ctx context.Context, start, end []byte) {
	p.handleErrorCode(toErrorCode(metastore.SyncRemoveRange(ctx, p.kv, start, end)))
	p.onFinished()
}

func (p *baseProcessor) doSyncPut(ctx context.Context, data []metastore.KV) proto.ErrorCode {
	return toErrorCode(metastore.SyncMultiPut(ctx, p.kv, data))
}

// doSyncPutAndUpdate is terminal; on success it additionally stamps the
// last-update-time marker observers use as a revision cursor.
func (p *baseProcessor) doSyncPutAndUpdate(ctx context.Context, data []metastore.KV) {
	span := trace.SpanFromContextSafe(ctx)
	if err := metastore.SyncMultiPut(ctx, p.kv, data); err != nil {
		span.Errorf("put data error on meta server: %v", err)
		p.handleErrorCode(toErrorCode(err))
		p.onFinished()
		return
	}
	p.handleErrorCode(p.updateLastUpdateTime(ctx))
	p.onFinished()
}

func (p *baseProcessor) doSyncMultiRemoveAndUpdate(ctx context.Context, keys [][]byte) {
	span := trace.SpanFromContextSafe(ctx)
	if err := metastore.SyncMultiRemove(ctx, p.kv, keys); err != nil {
		span.Errorf("remove data error on meta server: %v", err)
		p.handleErrorCode(toErrorCode(err))
		p.onFinished()
		return
	}
	p.handleErrorCode(p.updateLastUpdateTime(ctx))
	p.onFinished()
}

func (p *baseProcessor) updateLastUpdateTime(ctx context.Context) proto.ErrorCode {
	now := time.Now().UnixNano() / int64(time.Millisecond)
	// the cursor is strictly monotonic even within one millisecond
	if value, err := p.kv.Get(ctx, metakey.LastUpdateTimeKey()); err == nil {
		if prev := metakey.ParseLastUpdateTime(value); now <= prev {
			now = prev + 1
		}
	}
	kv := metastore.KV{Key: metakey.LastUpdateTimeKey(), Value: metakey.LastUpdateTimeVal(now)}
	return toErrorCode(metastore.SyncMultiPut(ctx, p.kv, []metastore.KV{kv}))
}

// GetLastUpdateTime reads the revision cursor.
func GetLastUpdateTime(ctx context.Context, kv metastore.Store) (int64, proto.ErrorCode) {
	value, err := kv.Get(ctx, metakey.LastUpdateTimeKey())
	if err == metastore.ErrNotFound {
		return 0, proto.Succeeded
	}
	if err != nil {
		return 0, toErrorCode(err)
	}
	return metakey.ParseLastUpdateTime(value), proto.Succeeded
}

// autoIncrementId allocates the next numeric id. The whole read-increment-
// write cycle holds the id lock, and the write completes before the value
// is returned.
func (p *baseProcessor) autoIncrementId(ctx context.Context) (int32, proto.ErrorCode) {
	idLock().Lock()
	defer idLock().Unlock()

	var id int32
	value, err := p.kv.Get(ctx, metakey.IDKey)
	if err != nil {
		if err != metastore.ErrNotFound {
			return 0, toErrorCode(err)
		}
		id = 1
	} else {
		id = metakey.ParseID(value) + 1
	}

	data := []metastore.KV{{Key: metakey.IDKey, Value: metakey.IDVal(id)}}
	if err = metastore.SyncMultiPut(ctx, p.kv, data); err != nil {
		return 0, toErrorCode(err)
	}
	return id, proto.Succeeded
}

func (p *baseProcessor) spaceExist(ctx context.Context, spaceID proto.GraphSpaceID) proto.ErrorCode {
	_, code := p.doGet(ctx, metakey.SpaceKey(spaceID))
	return code
}

func (p *baseProcessor) userExist(ctx context.Context, account string) proto.ErrorCode {
	_, code := p.doGet(ctx, metakey.UserKey(account))
	return code
}

func (p *baseProcessor) hostExist(ctx context.Context, hostKey []byte) proto.ErrorCode {
	_, code := p.doGet(ctx, hostKey)
	return code
}

func (p *baseProcessor) listenerExist(ctx context.Context, spaceID proto.GraphSpaceID, typ proto.ListenerType) proto.ErrorCode {
	listenerLock().RLock()
	defer listenerLock().RUnlock()

	prefix := metakey.ListenerTypePrefix(spaceID, typ)
	iter, code := p.doPrefix(ctx, prefix)
	if !code.OK() {
		return code
	}
	defer iter.Close()
	if !iter.Valid() {
		return proto.ErrCodeNotFound
	}
	return proto.Succeeded
}

func (p *baseProcessor) getSpaceId(ctx context.Context, name string) (proto.GraphSpaceID, proto.ErrorCode) {
	value, code := p.doGet(ctx, metakey.IndexSpaceKey(name))
	if !code.OK() {
		return 0, code
	}
	return metakey.ParseID(value), proto.Succeeded
}

func (p *baseProcessor) getTagId(ctx context.Context, spaceID proto.GraphSpaceID, name string) (proto.TagID, proto.ErrorCode) {
	value, code := p.doGet(ctx, metakey.IndexTagKey(spaceID, name))
	if !code.OK() {
		return 0, code
	}
	return metakey.ParseID(value), proto.Succeeded
}

func (p *baseProcessor) getEdgeType(ctx context.Context, spaceID proto.GraphSpaceID, name string) (proto.EdgeType, proto.ErrorCode) {
	value, code := p.doGet(ctx, metakey.IndexEdgeKey(spaceID, name))
	if !code.OK() {
		return 0, code
	}
	return metakey.ParseID(value), proto.Succeeded
}

func (p *baseProcessor) getIndexID(ctx context.Context, spaceID proto.GraphSpaceID, name string) (proto.IndexID, proto.ErrorCode) {
	value, code := p.doGet(ctx, metakey.IndexIndexKey(spaceID, name))
	if !code.OK() {
		return 0, code
	}
	return metakey.ParseID(value), proto.Succeeded
}

func (p *baseProcessor) getGroupId(ctx context.Context, name string) (int32, proto.ErrorCode) {
	value, code := p.doGet(ctx, metakey.IndexGroupKey(name))
	if !code.OK() {
		return 0, code
	}
	return metakey.ParseID(value), proto.Succeeded
}

func (p *baseProcessor) getZoneId(ctx context.Context, name string) (int32, proto.ErrorCode) {
	value, code := p.doGet(ctx, metakey.IndexZoneKey(name))
	if !code.OK() {
		return 0, code
	}
	return metakey.ParseID(value), proto.Succeeded
}

// getLatestTagSchema returns the newest schema version of the tag, plus
// that version number.
func (p *baseProcessor) getLatestTagSchema(ctx context.Context, spaceID proto.GraphSpaceID, tagID proto.TagID) (*proto.Schema, proto.SchemaVer, proto.ErrorCode) {
	return p.latestSchema(ctx, metakey.SchemaTagPrefix(spaceID, tagID))
}

func (p *baseProcessor) getLatestEdgeSchema(ctx context.Context, spaceID proto.GraphSpaceID, edgeType proto.EdgeType) (*proto.Schema, proto.SchemaVer, proto.ErrorCode) {
	return p.latestSchema(ctx, metakey.SchemaEdgePrefix(spaceID, edgeType))
}

func (p *baseProcessor) latestSchema(ctx context.Context, prefix []byte) (*proto.Schema, proto.SchemaVer, proto.ErrorCode) {
	span := trace.SpanFromContextSafe(ctx)
	iter, code := p.doPrefix(ctx, prefix)
	if !code.OK() {
		return nil, 0, code
	}
	defer iter.Close()

	if !iter.Valid() {
		return nil, 0, proto.ErrCodeNotFound
	}
	ver := metakey.ParseSchemaVer(iter.Key())
	schema, err := metakey.ParseSchemaVal(iter.Val())
	if err != nil {
		span.Errorf("parse schema failed: %v", err)
		return nil, 0, proto.ErrCodeStoreFailure
	}
	return schema, ver, proto.Succeeded
}

// getIndexes lists the indexes of the space whose target schema id equals
// tagOrEdge.
func (p *baseProcessor) getIndexes(ctx context.Context, spaceID proto.GraphSpaceID, tagOrEdge int32) ([]*proto.IndexItem, proto.ErrorCode) {
	prefix := metakey.IndexPrefix(spaceID)
	iter, code := p.doPrefix(ctx, prefix)
	if !code.OK() {
		return nil, code
	}
	defer iter.Close()

	var items []*proto.IndexItem
	for ; iter.Valid(); iter.Next() {
		item, err := metakey.ParseIndexVal(iter.Val())
		if err != nil {
			return nil, proto.ErrCodeStoreFailure
		}
		switch item.SchemaID.Kind {
		case proto.SchemaIDTag:
			if item.SchemaID.TagID == tagOrEdge {
				items = append(items, item)
			}
		case proto.SchemaIDEdge:
			if item.SchemaID.EdgeType == tagOrEdge {
				items = append(items, item)
			}
		}
	}
	return items, proto.Succeeded
}

// indexCheck rejects an alteration that changes or drops a column some
// index still references.
func indexCheck(items []*proto.IndexItem, alterItems []proto.AlterSchemaItem) proto.ErrorCode {
	for _, index := range items {
		for _, alter := range alterItems {
			if alter.Op != proto.AlterSchemaOpChange && alter.Op != proto.AlterSchemaOpDrop {
				continue
			}
			for _, col := range alter.Columns {
				for _, field := range index.Fields {
					if field.Name == col.Name {
						return proto.ErrCodeConflict
					}
				}
			}
		}
	}
	return proto.Succeeded
}

// checkIndexExist reports whether an existing index already covers the
// requested ordered field list.
func checkIndexExist(fields []string, item *proto.IndexItem) bool {
	if len(fields) == 0 {
		return true
	}
	if len(fields) > len(item.Fields) {
		return false
	}
	for i := range fields {
		if fields[i] != item.Fields[i].Name {
			return false
		}
	}
	return true
}
