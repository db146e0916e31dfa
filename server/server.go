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

package server

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/graphdb/meta/adminclient"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/meta/processors"
	"github.com/cubefs/graphdb/proto"
	"github.com/cubefs/graphdb/raft"
)

type Config struct {
	StoreConfig metastore.Config   `json:"store_config"`
	RaftConfig  raft.Config        `json:"raft_config"`
	MetaFlags   processors.Flags   `json:"meta_flags"`
	AdminConfig adminclient.Config `json:"admin_config"`
}

// Server wires the catalog store, the raft group and the admin client,
// and dispatches requests to the processors.
type Server struct {
	metaStore *metastore.CatalogStore
	raftGroup raft.Group
	admin     adminclient.Client
}

func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	span := trace.SpanFromContextSafe(ctx)
	processors.SetFlags(cfg.MetaFlags)

	store, err := metastore.New(ctx, &cfg.StoreConfig)
	if err != nil {
		return nil, err
	}

	s := &Server{
		metaStore: store,
		admin:     adminclient.New(&cfg.AdminConfig),
	}

	if len(cfg.StoreConfig.Members) > 1 {
		cfg.RaftConfig.NodeID = cfg.StoreConfig.NodeID
		cfg.RaftConfig.Members = cfg.StoreConfig.Members
		cfg.RaftConfig.Store = store.Engine()
		cfg.RaftConfig.SM = store.StateMachine()
		group, err := raft.NewGroup(&cfg.RaftConfig)
		if err != nil {
			store.Close()
			return nil, err
		}
		store.SetRaftGroup(group)
		group.Start()
		s.raftGroup = group
		span.Infof("catalog raft group started, node %d, members %d",
			cfg.RaftConfig.NodeID, len(cfg.RaftConfig.Members))
	}

	return s, nil
}

func (s *Server) CreateSpace(ctx context.Context, req *proto.CreateSpaceReq) *proto.CreateSpaceResp {
	return processors.NewCreateSpaceProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) DropSpace(ctx context.Context, req *proto.DropSpaceReq) *proto.DropSpaceResp {
	return processors.NewDropSpaceProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) ListSpaces(ctx context.Context, req *proto.ListSpacesReq) *proto.ListSpacesResp {
	return processors.NewListSpacesProcessor(s.metaStore).Process(ctx)
}

func (s *Server) CreateTag(ctx context.Context, req *proto.CreateSchemaReq) *proto.CreateSchemaResp {
	return processors.NewCreateTagProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) CreateEdge(ctx context.Context, req *proto.CreateSchemaReq) *proto.CreateSchemaResp {
	return processors.NewCreateEdgeProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) AlterTag(ctx context.Context, req *proto.AlterSchemaReq) *proto.AlterSchemaResp {
	return processors.NewAlterTagProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) AlterEdge(ctx context.Context, req *proto.AlterSchemaReq) *proto.AlterSchemaResp {
	return processors.NewAlterEdgeProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) CreateIndex(ctx context.Context, req *proto.CreateIndexReq) *proto.CreateIndexResp {
	return processors.NewCreateIndexProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) DropIndex(ctx context.Context, req *proto.DropIndexReq) *proto.DropIndexResp {
	return processors.NewDropIndexProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) ListHosts(ctx context.Context, req *proto.ListHostsReq) *proto.ListHostsResp {
	return processors.NewListHostsProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) HeartBeat(ctx context.Context, req *proto.HeartBeatReq) *proto.HeartBeatResp {
	return processors.NewHBProcessor(s.metaStore).Process(ctx, req)
}

func (s *Server) CreateBackup(ctx context.Context, req *proto.CreateBackupReq) *proto.CreateBackupResp {
	return processors.NewCreateBackupProcessor(s.metaStore, s.admin).Process(ctx, req)
}

func (s *Server) DropSnapshot(ctx context.Context, req *proto.DropSnapshotReq) *proto.DropSnapshotResp {
	return processors.NewDropSnapshotProcessor(s.metaStore, s.admin).Process(ctx, req)
}

func (s *Server) Close() {
	s.admin.Close()
	s.metaStore.Close()
}
