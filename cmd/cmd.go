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

package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/cubefs/graphdb/proto"
	"github.com/cubefs/graphdb/raft"
	"github.com/cubefs/graphdb/server"
	"github.com/cubefs/graphdb/util"
)

// Config service config
type Config struct {
	server.Config

	HttpBindPort uint32    `json:"http_bind_port"`
	GrpcBindPort uint32    `json:"grpc_bind_port"`
	LogLevel     log.Level `json:"log_level"`
}

func main() {
	config.Init("f", "", "meta.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(errors.Detail(err))
	}
	initConfig(cfg)
	log.SetOutputLevel(cfg.LogLevel)

	metaServer, err := server.NewServer(context.Background(), &cfg.Config)
	if err != nil {
		log.Fatal(errors.Detail(err))
	}

	// start http server
	httpServer := server.NewHttpServer(metaServer)
	httpServer.Serve(":" + strconv.Itoa(int(cfg.HttpBindPort)))

	// start grpc server
	grpcServer := server.NewRPCServer(metaServer)
	grpcServer.Serve(":" + strconv.Itoa(int(cfg.GrpcBindPort)))

	// wait for signal
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	<-ch

	// stop all server
	grpcServer.Stop()
	httpServer.Stop()
	metaServer.Close()
}

// initConfig fills the catalog member list for a standalone node: the
// advertised address is the local ip plus the grpc port, raft port one
// above it.
func initConfig(cfg *Config) {
	if len(cfg.StoreConfig.Members) > 0 {
		return
	}
	localIP, err := util.GetLocalIP()
	if err != nil {
		log.Fatal("resolve local ip failed:", err)
	}
	if cfg.StoreConfig.NodeID == 0 {
		cfg.StoreConfig.NodeID = 1
	}
	raftAddr := proto.RaftAddr(proto.HostAddr{Host: localIP, Port: int32(cfg.GrpcBindPort)})
	cfg.StoreConfig.Members = []raft.Member{{
		NodeID: cfg.StoreConfig.NodeID,
		Host:   raftAddr.String(),
	}}
}
