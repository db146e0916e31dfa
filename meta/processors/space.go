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

// CreateSpaceProcessor creates a space: it allocates the space id, writes
// the name index and the payload, and assigns replicas to the active
// storage hosts, all in one batch.
type CreateSpaceProcessor struct {
	baseProcessor
}

func NewCreateSpaceProcessor(kv metastore.Store) *CreateSpaceProcessor {
	return &CreateSpaceProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *CreateSpaceProcessor) Process(ctx context.Context, req *proto.CreateSpaceReq) *proto.CreateSpaceResp {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.CreateSpaceResp{}

	spaceLock().Lock()
	defer spaceLock().Unlock()

	properties := req.Properties
	if properties.Name == "" || properties.PartitionNum <= 0 || properties.ReplicaFactor <= 0 {
		resp.Code = proto.ErrCodeInvalidOperation
		p.handleErrorCode(resp.Code)
		p.onFinished()
		return resp
	}

	if spaceID, code := p.getSpaceId(ctx, properties.Name); code.OK() {
		if req.IfNotExists {
			resp.Code = proto.Succeeded
			resp.SpaceID = spaceID
		} else {
			span.Errorf("create space failed, space %s existed", properties.Name)
			resp.Code = proto.ErrCodeExisted
		}
		p.handleErrorCode(resp.Code)
		p.onFinished()
		return resp
	} else if code != proto.ErrCodeNotFound {
		resp.Code = code
		p.handleErrorCode(resp.Code)
		p.onFinished()
		return resp
	}

	hosts, code := ActiveHosts(ctx, p.kv)
	if !code.OK() {
		resp.Code = code
		p.handleErrorCode(resp.Code)
		p.onFinished()
		return resp
	}
	if int32(len(hosts)) < properties.ReplicaFactor {
		span.Errorf("create space failed, active hosts %d < replica factor %d",
			len(hosts), properties.ReplicaFactor)
		resp.Code = proto.ErrCodeNoValidHost
		p.handleErrorCode(resp.Code)
		p.onFinished()
		return resp
	}

	id, code := p.autoIncrementId(ctx)
	if !code.OK() {
		resp.Code = code
		p.handleErrorCode(resp.Code)
		p.onFinished()
		return resp
	}
	spaceID := proto.GraphSpaceID(id)
	properties.SpaceID = spaceID

	data := []metastore.KV{
		{Key: metakey.IndexSpaceKey(properties.Name), Value: metakey.IDVal(spaceID)},
		{Key: metakey.SpaceKey(spaceID), Value: metakey.SpaceVal(&properties)},
	}
	for partID := proto.PartitionID(1); partID <= properties.PartitionNum; partID++ {
		replicas := pickHosts(hosts, partID, properties.ReplicaFactor)
		data = append(data, metastore.KV{
			Key:   metakey.PartKey(spaceID, partID),
			Value: metakey.PartVal(replicas),
		})
	}

	resp.SpaceID = spaceID
	p.doSyncPutAndUpdate(ctx, data)
	resp.Code = p.errorCode()
	span.Infof("create space %s, id %d", properties.Name, spaceID)
	return resp
}

// pickHosts assigns replicas round-robin, offset by partition id.
func pickHosts(hosts []proto.HostAddr, partID proto.PartitionID, replicaFactor int32) []proto.HostAddr {
	replicas := make([]proto.HostAddr, 0, replicaFactor)
	for i := int32(0); i < replicaFactor; i++ {
		replicas = append(replicas, hosts[(int(partID)+int(i))%len(hosts)])
	}
	return replicas
}

// DropSpaceProcessor removes the space and everything that references it:
// parts, roles, listeners, schemas, indexes, statistics, the name index
// and the payload, as one batch so the cascade is atomic.
type DropSpaceProcessor struct {
	baseProcessor
}

func NewDropSpaceProcessor(kv metastore.Store) *DropSpaceProcessor {
	return &DropSpaceProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *DropSpaceProcessor) Process(ctx context.Context, req *proto.DropSpaceReq) *proto.DropSpaceResp {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.DropSpaceResp{}

	snapshotLock().RLock()
	defer snapshotLock().RUnlock()
	spaceLock().Lock()
	defer spaceLock().Unlock()

	spaceID, code := p.getSpaceId(ctx, req.SpaceName)
	if !code.OK() {
		if code == proto.ErrCodeNotFound {
			if req.IfExists {
				code = proto.Succeeded
			} else {
				span.Errorf("drop space failed, space %s not existed", req.SpaceName)
			}
		}
		resp.Code = code
		p.handleErrorCode(code)
		p.onFinished()
		return resp
	}

	var deleteKeys [][]byte
	collect := func(prefix []byte) proto.ErrorCode {
		iter, code := p.doPrefix(ctx, prefix)
		if !code.OK() {
			return code
		}
		defer iter.Close()
		for ; iter.Valid(); iter.Next() {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			deleteKeys = append(deleteKeys, key)
		}
		return proto.Succeeded
	}

	prefixes := [][]byte{
		metakey.PartPrefix(spaceID),
		metakey.RoleSpacePrefix(spaceID),
		metakey.ListenerPrefix(spaceID),
		metakey.SchemaTagsPrefix(spaceID),
		metakey.SchemaEdgesPrefix(spaceID),
		metakey.IndexPrefix(spaceID),
		metakey.IndexTagPrefix(spaceID),
		metakey.IndexEdgePrefix(spaceID),
		metakey.IndexIndexPrefix(spaceID),
	}
	for _, prefix := range prefixes {
		if code = collect(prefix); !code.OK() {
			span.Errorf("drop space %s failed, error %s", req.SpaceName, code)
			resp.Code = code
			p.handleErrorCode(code)
			p.onFinished()
			return resp
		}
	}

	deleteKeys = append(deleteKeys,
		metakey.StatisKey(spaceID),
		metakey.IndexSpaceKey(req.SpaceName),
		metakey.SpaceKey(spaceID),
	)

	p.doSyncMultiRemoveAndUpdate(ctx, deleteKeys)
	resp.Code = p.errorCode()
	span.Infof("drop space %s, id %d", req.SpaceName, spaceID)
	return resp
}

// ListSpacesProcessor lists every space payload.
type ListSpacesProcessor struct {
	baseProcessor
}

func NewListSpacesProcessor(kv metastore.Store) *ListSpacesProcessor {
	return &ListSpacesProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *ListSpacesProcessor) Process(ctx context.Context) *proto.ListSpacesResp {
	resp := &proto.ListSpacesResp{}

	spaceLock().RLock()
	defer spaceLock().RUnlock()

	iter, code := p.doPrefix(ctx, metakey.SpacePrefix())
	if !code.OK() {
		resp.Code = code
		p.handleErrorCode(code)
		p.onFinished()
		return resp
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		desc, err := metakey.ParseSpaceVal(iter.Val())
		if err != nil {
			resp.Code = proto.ErrCodeStoreFailure
			p.handleErrorCode(resp.Code)
			p.onFinished()
			return resp
		}
		resp.Spaces = append(resp.Spaces, *desc)
	}

	resp.Code = proto.Succeeded
	p.handleErrorCode(resp.Code)
	p.onFinished()
	return resp
}
