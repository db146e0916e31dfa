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
	"sort"
	"sync"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/graphdb/meta/adminclient"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
	"golang.org/x/sync/errgroup"
)

// snapshot drives the per-host checkpoint fan-out for one backup run.
type snapshot struct {
	kv     metastore.Store
	client adminclient.Client
	spaces map[proto.GraphSpaceID]struct{}
}

func newSnapshot(kv metastore.Store, client adminclient.Client, spaces map[proto.GraphSpaceID]struct{}) *snapshot {
	return &snapshot{kv: kv, client: client, spaces: spaces}
}

// getSpacesHosts resolves which hosts replicate each in-scope space from
// the part family.
func (s *snapshot) getSpacesHosts(ctx context.Context) (map[proto.GraphSpaceID][]proto.HostAddr, proto.ErrorCode) {
	spaceLock().RLock()
	defer spaceLock().RUnlock()

	iter, err := s.kv.Prefix(ctx, metakey.PartPrefixAll())
	if err != nil {
		code := toErrorCode(err)
		if code != proto.ErrCodeLeaderChanged {
			code = proto.ErrCodeStoreFailure
		}
		return nil, code
	}
	defer iter.Close()

	hostSets := make(map[proto.GraphSpaceID]map[proto.HostAddr]struct{})
	for ; iter.Valid(); iter.Next() {
		spaceID := metakey.ParsePartKeySpaceID(iter.Key())
		if len(s.spaces) != 0 {
			if _, ok := s.spaces[spaceID]; !ok {
				continue
			}
		}
		partHosts, perr := metakey.ParsePartVal(iter.Val())
		if perr != nil {
			continue
		}
		set := hostSets[spaceID]
		if set == nil {
			set = make(map[proto.HostAddr]struct{})
			hostSets[spaceID] = set
		}
		for _, h := range partHosts {
			set[h] = struct{}{}
		}
	}

	ret := make(map[proto.GraphSpaceID][]proto.HostAddr, len(hostSets))
	for spaceID, set := range hostSets {
		hosts := make([]proto.HostAddr, 0, len(set))
		for h := range set {
			hosts = append(hosts, h)
		}
		sort.Slice(hosts, func(i, j int) bool { return hosts[i].String() < hosts[j].String() })
		ret[spaceID] = hosts
	}
	return ret, proto.Succeeded
}

// blockingWrites broadcasts the sign to every (space, host) pair. BLOCK_ON
// is sent to all pairs concurrently; the first refusal fails the call and
// cancels the context of the sends still in flight. BLOCK_OFF always
// reaches every host so a partial block never outlives the run.
func (s *snapshot) blockingWrites(ctx context.Context, sign adminclient.SignType) proto.ErrorCode {
	span := trace.SpanFromContextSafe(ctx)
	spacesHosts, code := s.getSpacesHosts(ctx)
	if !code.OK() {
		return code
	}

	if sign == adminclient.SignBlockOn {
		eg, egCtx := errgroup.WithContext(ctx)
		for spaceID, hosts := range spacesHosts {
			for _, host := range hosts {
				spaceID, host := spaceID, host
				eg.Go(func() error {
					span.Infof("will block write host: %s", host)
					return s.client.BlockingWrites(egCtx, spaceID, sign, host)
				})
			}
		}
		if err := eg.Wait(); err != nil {
			span.Errorf("send blocking sign error: %v", err)
			return proto.ErrCodeBlockWriteFailure
		}
		return proto.Succeeded
	}

	ret := proto.Succeeded
	var wg sync.WaitGroup
	var mu sync.Mutex
	for spaceID, hosts := range spacesHosts {
		for _, host := range hosts {
			spaceID, host := spaceID, host
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.client.BlockingWrites(ctx, spaceID, sign, host); err != nil {
					span.Errorf("send unblocking sign error on host %s: %v", host, err)
					mu.Lock()
					ret = proto.ErrCodeBlockWriteFailure
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()
	return ret
}

// createSnapshot creates one named checkpoint per (space, host) and
// collects the checkpoint directories.
func (s *snapshot) createSnapshot(ctx context.Context, name string) (map[proto.GraphSpaceID][]proto.CheckpointInfo, proto.ErrorCode) {
	span := trace.SpanFromContextSafe(ctx)
	spacesHosts, code := s.getSpacesHosts(ctx)
	if !code.OK() {
		return nil, code
	}

	info := make(map[proto.GraphSpaceID][]proto.CheckpointInfo)
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for spaceID, hosts := range spacesHosts {
		for _, host := range hosts {
			spaceID, host := spaceID, host
			eg.Go(func() error {
				dir, err := s.client.CreateSnapshot(egCtx, spaceID, name, host)
				if err != nil {
					span.Errorf("checkpoint create error on host %s: %v", host, err)
					return err
				}
				mu.Lock()
				info[spaceID] = append(info[spaceID], proto.CheckpointInfo{Host: host, Dir: dir})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, proto.ErrCodeRPCFailure
	}
	return info, proto.Succeeded
}

// dropSnapshot drops the named checkpoint on the given hosts; failures are
// logged, not surfaced, because a dangling checkpoint only wastes space.
func (s *snapshot) dropSnapshot(ctx context.Context, name string, hosts []proto.HostAddr) proto.ErrorCode {
	span := trace.SpanFromContextSafe(ctx)
	spacesHosts, code := s.getSpacesHosts(ctx)
	if !code.OK() {
		return code
	}

	target := make(map[proto.HostAddr]struct{}, len(hosts))
	for _, h := range hosts {
		target[h] = struct{}{}
	}

	for spaceID, spaceHosts := range spacesHosts {
		for _, host := range spaceHosts {
			if _, ok := target[host]; !ok {
				continue
			}
			if err := s.client.DropSnapshot(ctx, spaceID, name, host); err != nil {
				span.Errorf("failed drop checkpoint %s on host %s: %v", name, host, err)
			}
		}
	}
	return proto.Succeeded
}
