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

	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
)

// HBProcessor refreshes a host record. The reply carries the revision
// cursor so the host can decide whether to refetch metadata.
type HBProcessor struct {
	baseProcessor
}

func NewHBProcessor(kv metastore.Store) *HBProcessor {
	return &HBProcessor{baseProcessor: newBaseProcessor(kv)}
}

func (p *HBProcessor) Process(ctx context.Context, req *proto.HeartBeatReq) *proto.HeartBeatResp {
	info := &proto.HostInfo{
		Role:       req.Role,
		LastHBTime: nowMilli(),
		GitInfoSha: req.GitInfoSha,
	}
	data := []metastore.KV{{Key: metakey.HostKey(req.Addr), Value: metakey.HostVal(info)}}

	code := p.doSyncPut(ctx, data)
	resp := &proto.HeartBeatResp{Code: code}
	if code.OK() {
		resp.LastUpdateTime, code = GetLastUpdateTime(ctx, p.kv)
		resp.Code = code
	}
	p.handleErrorCode(code)
	p.onFinished()
	return resp
}
