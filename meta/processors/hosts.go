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
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
)

func nowMilli() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// ActiveHosts lists the storage hosts whose last heartbeat is within the
// online window.
func ActiveHosts(ctx context.Context, kv metastore.Store) ([]proto.HostAddr, proto.ErrorCode) {
	iter, err := kv.Prefix(ctx, metakey.HostPrefix())
	if err != nil {
		return nil, toErrorCode(err)
	}
	defer iter.Close()

	window := int64(flags.HeartbeatIntervalSecs*flags.ExpiredTimeFactor) * 1000
	now := nowMilli()

	var hosts []proto.HostAddr
	for ; iter.Valid(); iter.Next() {
		info, perr := metakey.ParseHostVal(iter.Val())
		if perr != nil || info.Role != proto.HostRoleStorage {
			continue
		}
		if now-info.LastHBTime < window {
			hosts = append(hosts, metakey.ParseHostKey(iter.Key()))
		}
	}
	return hosts, proto.Succeeded
}

// ListHostsProcessor answers ListHosts. The ALLOC type additionally joins
// leader records and part assignments onto the storage host rows.
type ListHostsProcessor struct {
	baseProcessor

	hostItems      []proto.HostItem
	spaceIDs       []proto.GraphSpaceID
	spaceIDNameMap map[proto.GraphSpaceID]string
}

func NewListHostsProcessor(kv metastore.Store) *ListHostsProcessor {
	return &ListHostsProcessor{
		baseProcessor:  newBaseProcessor(kv),
		spaceIDNameMap: make(map[proto.GraphSpaceID]string),
	}
}

func (p *ListHostsProcessor) Process(ctx context.Context, req *proto.ListHostsReq) *proto.ListHostsResp {
	var code proto.ErrorCode
	func() {
		spaceLock().RLock()
		defer spaceLock().RUnlock()

		code = p.getSpaceIdNameMap(ctx)
		if !code.OK() {
			return
		}

		if req.Type == proto.ListHostTypeAlloc {
			code = p.fillLeaders(ctx)
			if !code.OK() {
				return
			}
			code = p.fillAllParts(ctx)
			return
		}
		code = p.allHostsWithStatus(ctx, toHostRole(req.Type))
	}()

	resp := &proto.ListHostsResp{Code: code}
	if code.OK() {
		resp.Hosts = p.hostItems
	}
	p.handleErrorCode(code)
	p.onFinished()
	return resp
}

func toHostRole(typ proto.ListHostType) proto.HostRole {
	switch typ {
	case proto.ListHostTypeGraph:
		return proto.HostRoleGraph
	case proto.ListHostTypeMeta:
		return proto.HostRoleMeta
	case proto.ListHostTypeStorage:
		return proto.HostRoleStorage
	default:
		return proto.HostRoleUnknown
	}
}

// allMetaHostsStatus answers the meta role from the catalog partition's
// raft peers, raft ports translated back to service ports. All meta peers
// are assumed to run the same build.
func (p *ListHostsProcessor) allMetaHostsStatus(ctx context.Context) proto.ErrorCode {
	for _, peer := range p.kv.Peers() {
		p.hostItems = append(p.hostItems, proto.HostItem{
			Addr:       proto.ServiceAddr(peer),
			Role:       proto.HostRoleMeta,
			GitInfoSha: GitInfoSha,
			Status:     proto.HostStatusOnline,
		})
	}
	return proto.Succeeded
}

func (p *ListHostsProcessor) allHostsWithStatus(ctx context.Context, role proto.HostRole) proto.ErrorCode {
	if role == proto.HostRoleMeta {
		return p.allMetaHostsStatus(ctx)
	}

	iter, code := p.doPrefix(ctx, metakey.HostPrefix())
	if !code.OK() {
		if code != proto.ErrCodeLeaderChanged {
			code = proto.ErrCodeNoHosts
		}
		return code
	}
	defer iter.Close()

	now := nowMilli()
	onlineWindow := int64(flags.HeartbeatIntervalSecs*flags.ExpiredTimeFactor) * 1000
	removeWindow := int64(flags.RemovedThresholdSec) * 1000

	var removeHostsKey [][]byte
	for ; iter.Valid(); iter.Next() {
		info, err := metakey.ParseHostVal(iter.Val())
		if err != nil || info.Role != role {
			continue
		}

		if now-info.LastHBTime >= removeWindow {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			removeHostsKey = append(removeHostsKey, key)
			continue
		}

		item := proto.HostItem{
			Addr:       metakey.ParseHostKey(iter.Key()),
			Role:       info.Role,
			GitInfoSha: info.GitInfoSha,
			Status:     proto.HostStatusOffline,
		}
		if now-info.LastHBTime < onlineWindow {
			item.Status = proto.HostStatusOnline
		}
		p.hostItems = append(p.hostItems, item)
	}

	p.removeExpiredHosts(ctx, removeHostsKey)
	return proto.Succeeded
}

func (p *ListHostsProcessor) fillLeaders(ctx context.Context) proto.ErrorCode {
	code := p.allHostsWithStatus(ctx, proto.HostRoleStorage)
	if !code.OK() {
		return code
	}

	activeHosts, code := ActiveHosts(ctx, p.kv)
	if !code.OK() {
		return code
	}
	active := make(map[proto.HostAddr]struct{}, len(activeHosts))
	for _, h := range activeHosts {
		active[h] = struct{}{}
	}

	iter, code := p.doPrefix(ctx, metakey.LeaderPrefix())
	if !code.OK() {
		if code != proto.ErrCodeLeaderChanged {
			code = proto.ErrCodeNoHosts
		}
		return code
	}
	defer iter.Close()

	span := trace.SpanFromContextSafe(ctx)
	for ; iter.Valid(); iter.Next() {
		spaceID, partID := metakey.ParseLeaderKey(iter.Key())
		info, err := metakey.ParseLeaderVal(iter.Val())
		if err != nil || !info.Status.OK() {
			continue
		}
		if _, ok := active[info.Addr]; !ok {
			span.Debugf("skip inactive leader host %s", info.Addr)
			continue
		}

		item := p.findHostItem(info.Addr)
		if item == nil {
			continue
		}
		spaceName, ok := p.spaceIDNameMap[spaceID]
		if !ok {
			continue
		}
		if item.LeaderParts == nil {
			item.LeaderParts = make(map[string][]proto.PartitionID)
		}
		item.LeaderParts[spaceName] = append(item.LeaderParts[spaceName], partID)
	}
	return proto.Succeeded
}

func (p *ListHostsProcessor) fillAllParts(ctx context.Context) proto.ErrorCode {
	for _, spaceID := range p.spaceIDs {
		spaceName := p.spaceIDNameMap[spaceID]

		prefix := metakey.PartPrefix(spaceID)
		iter, code := p.doPrefix(ctx, prefix)
		if !code.OK() {
			return code
		}

		hostParts := make(map[proto.HostAddr][]proto.PartitionID)
		for ; iter.Valid(); iter.Next() {
			partID := metakey.ParsePartKeyPartID(iter.Key())
			partHosts, err := metakey.ParsePartVal(iter.Val())
			if err != nil {
				continue
			}
			for _, h := range partHosts {
				hostParts[h] = append(hostParts[h], partID)
			}
		}
		iter.Close()

		for host, parts := range hostParts {
			item := p.findHostItem(host)
			if item == nil {
				continue
			}
			if item.AllParts == nil {
				item.AllParts = make(map[string][]proto.PartitionID)
			}
			item.AllParts[spaceName] = parts
		}
	}
	return proto.Succeeded
}

func (p *ListHostsProcessor) findHostItem(addr proto.HostAddr) *proto.HostItem {
	for i := range p.hostItems {
		if p.hostItems[i].Addr == addr {
			return &p.hostItems[i]
		}
	}
	return nil
}

// removeExpiredHosts queues hosts past the removal threshold for deletion
// without waiting on the ack.
func (p *ListHostsProcessor) removeExpiredHosts(ctx context.Context, removeHostsKey [][]byte) {
	if len(removeHostsKey) == 0 {
		return
	}
	span := trace.SpanFromContextSafe(ctx)
	p.kv.AsyncMultiRemove(ctx, removeHostsKey, func(err error) {
		if err != nil {
			span.Errorf("async remove long time offline hosts failed: %v", err)
		}
	})
}

func (p *ListHostsProcessor) getSpaceIdNameMap(ctx context.Context) proto.ErrorCode {
	iter, code := p.doPrefix(ctx, metakey.SpacePrefix())
	if !code.OK() {
		if code != proto.ErrCodeLeaderChanged {
			code = proto.ErrCodeNoHosts
		}
		return code
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		spaceID := metakey.ParseSpaceKeyID(iter.Key())
		desc, err := metakey.ParseSpaceVal(iter.Val())
		if err != nil {
			continue
		}
		p.spaceIDs = append(p.spaceIDs, spaceID)
		p.spaceIDNameMap[spaceID] = desc.Name
	}
	return proto.Succeeded
}
