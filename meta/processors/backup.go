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
	"github.com/cubefs/graphdb/meta/adminclient"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
)

const rebuildStatusRunning = "RUNNING"

// CreateBackupProcessor coordinates a cluster-wide backup: it stages an
// INVALID snapshot record as its own committed batch (the recovery
// anchor), blocks writes on every participating host, checkpoints each
// one, exports the catalog families as table files, unblocks, and only
// then commits the VALID record.
type CreateBackupProcessor struct {
	baseProcessor
	client adminclient.Client
}

func NewCreateBackupProcessor(kv metastore.Store, client adminclient.Client) *CreateBackupProcessor {
	return &CreateBackupProcessor{baseProcessor: newBaseProcessor(kv), client: client}
}

func (p *CreateBackupProcessor) Process(ctx context.Context, req *proto.CreateBackupReq) *proto.CreateBackupResp {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.CreateBackupResp{}

	finish := func(code proto.ErrorCode) *proto.CreateBackupResp {
		resp.Code = code
		p.handleErrorCode(code)
		p.onFinished()
		return resp
	}

	if !p.kv.IsLeader() {
		return finish(proto.ErrCodeLeaderChanged)
	}

	rebuilding, code := p.isIndexRebuilding(ctx)
	if !code.OK() {
		return finish(code)
	}
	if rebuilding {
		span.Errorf("index is rebuilding, not allowed to create backup")
		return finish(proto.ErrCodeBackupBuildingIndex)
	}

	snapshotLock().Lock()
	defer snapshotLock().Unlock()

	hosts, code := ActiveHosts(ctx, p.kv)
	if !code.OK() {
		return finish(code)
	}
	if len(hosts) == 0 {
		span.Errorf("there are no active hosts")
		return finish(proto.ErrCodeNoHosts)
	}

	spaces, code := p.spaceNameToId(ctx, req.Spaces)
	if !code.OK() {
		return finish(code)
	}

	backupName := "BACKUP_" + genTimestampStr()
	hostsStr := metakey.HostsToStr(hosts)

	// stage the recovery anchor before any write gets blocked
	code = p.doSyncPut(ctx, []metastore.KV{{
		Key:   metakey.SnapshotKey(backupName),
		Value: metakey.SnapshotVal(proto.SnapshotStatusInvalid, hostsStr),
	}})
	if !code.OK() {
		return finish(code)
	}

	snap := newSnapshot(p.kv, p.client, spaces)

	code = snap.blockingWrites(ctx, adminclient.SignBlockOn)
	if !code.OK() {
		span.Errorf("send blocking sign to storage engine error")
		if c := snap.blockingWrites(ctx, adminclient.SignBlockOff); !c.OK() {
			span.Errorf("cancel write blocking error")
		}
		return finish(code)
	}

	snapshotInfo, code := snap.createSnapshot(ctx, backupName)
	if !code.OK() {
		span.Errorf("checkpoint create error on storage engine")
		if c := snap.blockingWrites(ctx, adminclient.SignBlockOff); !c.OK() {
			span.Errorf("cancel write blocking error")
		}
		return finish(code)
	}

	metaFiles, code := p.backupMeta(ctx, backupName)
	if !code.OK() {
		span.Errorf("failed backup meta")
		if c := snap.blockingWrites(ctx, adminclient.SignBlockOff); !c.OK() {
			span.Errorf("cancel write blocking error")
		}
		return finish(proto.ErrCodeBackupFailure)
	}

	if code = snap.blockingWrites(ctx, adminclient.SignBlockOff); !code.OK() {
		span.Errorf("cancel write blocking error")
		return finish(code)
	}

	// the backup is durable only once this write completes
	code = p.doSyncPut(ctx, []metastore.KV{{
		Key:   metakey.SnapshotKey(backupName),
		Value: metakey.SnapshotVal(proto.SnapshotStatusValid, hostsStr),
	}})
	if !code.OK() {
		span.Errorf("all checkpoint creations are done, but update checkpoint status error, backup: %s", backupName)
		return finish(code)
	}

	backupInfo := make(map[proto.GraphSpaceID]proto.SpaceBackupInfo, len(spaces))
	for spaceID := range spaces {
		value, code := p.doGet(ctx, metakey.SpaceKey(spaceID))
		if !code.OK() {
			return finish(code)
		}
		desc, err := metakey.ParseSpaceVal(value)
		if err != nil {
			return finish(proto.ErrCodeStoreFailure)
		}
		backupInfo[spaceID] = proto.SpaceBackupInfo{
			Space:  *desc,
			CpDirs: snapshotInfo[spaceID],
		}
	}

	resp.Meta = proto.BackupMeta{
		BackupName: backupName,
		MetaFiles:  metaFiles,
		BackupInfo: backupInfo,
	}
	span.Infof("backup done, name %s, meta files %d", backupName, len(metaFiles))
	return finish(proto.Succeeded)
}

func (p *CreateBackupProcessor) isIndexRebuilding(ctx context.Context) (bool, proto.ErrorCode) {
	spaceLock().RLock()
	defer spaceLock().RUnlock()

	iter, code := p.doPrefix(ctx, metakey.RebuildIndexStatusPrefix())
	if !code.OK() {
		return false, code
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		if string(iter.Val()) == rebuildStatusRunning {
			return true, proto.Succeeded
		}
	}
	return false, proto.Succeeded
}

// spaceNameToId resolves the backup scope: named spaces when given, every
// space otherwise.
func (p *CreateBackupProcessor) spaceNameToId(ctx context.Context, names []string) (map[proto.GraphSpaceID]struct{}, proto.ErrorCode) {
	spaceLock().RLock()
	defer spaceLock().RUnlock()

	spaces := make(map[proto.GraphSpaceID]struct{})

	if len(names) != 0 {
		keys := make([][]byte, 0, len(names))
		for _, name := range names {
			keys = append(keys, metakey.IndexSpaceKey(name))
		}
		values, code := p.doMultiGet(ctx, keys)
		if !code.OK() {
			if code == proto.ErrCodeNotFound {
				code = proto.ErrCodeBackupSpaceNotFound
			}
			return nil, code
		}
		for _, value := range values {
			spaces[metakey.ParseID(value)] = struct{}{}
		}
	} else {
		iter, code := p.doPrefix(ctx, metakey.SpacePrefix())
		if !code.OK() {
			return nil, code
		}
		for ; iter.Valid(); iter.Next() {
			spaces[metakey.ParseSpaceKeyID(iter.Key())] = struct{}{}
		}
		iter.Close()
	}

	if len(spaces) == 0 {
		return nil, proto.ErrCodeBackupSpaceNotFound
	}
	return spaces, proto.Succeeded
}

// backupMeta exports the catalog families listed by
// metakey.MetaFamilyPrefixes into table files for off-node restore.
func (p *CreateBackupProcessor) backupMeta(ctx context.Context, name string) ([]string, proto.ErrorCode) {
	var files []string
	for _, prefix := range metakey.MetaFamilyPrefixes() {
		file, n, err := p.kv.BackupTable(ctx, name, prefix)
		if err != nil {
			return nil, proto.ErrCodeBackupFailure
		}
		if n > 0 {
			files = append(files, file)
		}
	}
	return files, proto.Succeeded
}

func genTimestampStr() string {
	return time.Now().Format("2006_01_02_15_04_05")
}

// DropSnapshotProcessor removes a snapshot record and drops its
// checkpoints on the hosts that took part.
type DropSnapshotProcessor struct {
	baseProcessor
	client adminclient.Client
}

func NewDropSnapshotProcessor(kv metastore.Store, client adminclient.Client) *DropSnapshotProcessor {
	return &DropSnapshotProcessor{baseProcessor: newBaseProcessor(kv), client: client}
}

func (p *DropSnapshotProcessor) Process(ctx context.Context, req *proto.DropSnapshotReq) *proto.DropSnapshotResp {
	span := trace.SpanFromContextSafe(ctx)
	resp := &proto.DropSnapshotResp{}

	snapshotLock().Lock()
	defer snapshotLock().Unlock()

	value, code := p.doGet(ctx, metakey.SnapshotKey(req.Name))
	if !code.OK() {
		resp.Code = code
		p.handleErrorCode(code)
		p.onFinished()
		return resp
	}

	hosts := metakey.ParseHostsStr(metakey.ParseSnapshotHosts(value))
	snap := newSnapshot(p.kv, p.client, nil)
	snap.dropSnapshot(ctx, req.Name, hosts)

	p.doSyncMultiRemoveAndUpdate(ctx, [][]byte{metakey.SnapshotKey(req.Name)})
	resp.Code = p.errorCode()
	span.Infof("drop snapshot %s", req.Name)
	return resp
}
