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
	"net"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	// registers the json codec
	_ "github.com/cubefs/graphdb/common/rpc"
	"github.com/cubefs/graphdb/metrics"
	"github.com/cubefs/graphdb/proto"
)

const reqIDKey = "req-id"

type RPCServer struct {
	*Server

	grpcServer *grpc.Server
}

func NewRPCServer(server *Server) *RPCServer {
	rs := &RPCServer{Server: server}
	rs.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
		rs.unaryInterceptorWithTracer,
		metrics.GRPCMetrics.UnaryServerInterceptor(),
	))
	rs.grpcServer.RegisterService(&metaServiceDesc, rs)
	return rs
}

func (r *RPCServer) Serve(addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal("rpc server listen failed:", err)
	}
	go func() {
		if err := r.grpcServer.Serve(lis); err != nil {
			log.Fatal("rpc server exits:", err)
		}
	}()
	log.Info("rpc server is running at:", addr)
}

func (r *RPCServer) Stop() {
	r.grpcServer.GracefulStop()
}

func (r *RPCServer) unaryInterceptorWithTracer(
	ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (interface{}, error) {
	reqID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(reqIDKey); len(ids) > 0 {
			reqID = ids[0]
		}
	}
	if reqID == "" {
		reqID = uuid.NewString()
	}
	span, ctx := trace.StartSpanFromContextWithTraceID(ctx, info.FullMethod, reqID)
	defer span.Finish()
	return handler(ctx, req)
}

// metaServiceDesc is the hand-written service descriptor; the wire schema
// is the JSON codec over the proto request structs.
var metaServiceDesc = grpc.ServiceDesc{
	ServiceName: "graphdb.meta.Meta",
	HandlerType: (*metaService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSpace", Handler: createSpaceHandler},
		{MethodName: "DropSpace", Handler: dropSpaceHandler},
		{MethodName: "ListSpaces", Handler: listSpacesHandler},
		{MethodName: "CreateTag", Handler: createTagHandler},
		{MethodName: "CreateEdge", Handler: createEdgeHandler},
		{MethodName: "AlterTag", Handler: alterTagHandler},
		{MethodName: "AlterEdge", Handler: alterEdgeHandler},
		{MethodName: "CreateIndex", Handler: createIndexHandler},
		{MethodName: "DropIndex", Handler: dropIndexHandler},
		{MethodName: "ListHosts", Handler: listHostsHandler},
		{MethodName: "HeartBeat", Handler: heartBeatHandler},
		{MethodName: "CreateBackup", Handler: createBackupHandler},
		{MethodName: "DropSnapshot", Handler: dropSnapshotHandler},
	},
	Streams: []grpc.StreamDesc{},
}

type metaService interface {
	CreateSpace(ctx context.Context, req *proto.CreateSpaceReq) *proto.CreateSpaceResp
	DropSpace(ctx context.Context, req *proto.DropSpaceReq) *proto.DropSpaceResp
	ListSpaces(ctx context.Context, req *proto.ListSpacesReq) *proto.ListSpacesResp
	CreateTag(ctx context.Context, req *proto.CreateSchemaReq) *proto.CreateSchemaResp
	CreateEdge(ctx context.Context, req *proto.CreateSchemaReq) *proto.CreateSchemaResp
	AlterTag(ctx context.Context, req *proto.AlterSchemaReq) *proto.AlterSchemaResp
	AlterEdge(ctx context.Context, req *proto.AlterSchemaReq) *proto.AlterSchemaResp
	CreateIndex(ctx context.Context, req *proto.CreateIndexReq) *proto.CreateIndexResp
	DropIndex(ctx context.Context, req *proto.DropIndexReq) *proto.DropIndexResp
	ListHosts(ctx context.Context, req *proto.ListHostsReq) *proto.ListHostsResp
	HeartBeat(ctx context.Context, req *proto.HeartBeatReq) *proto.HeartBeatResp
	CreateBackup(ctx context.Context, req *proto.CreateBackupReq) *proto.CreateBackupResp
	DropSnapshot(ctx context.Context, req *proto.DropSnapshotReq) *proto.DropSnapshotResp
}

func createSpaceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.CreateSpaceReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).CreateSpace(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/CreateSpace"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).CreateSpace(ctx, req.(*proto.CreateSpaceReq)), nil
	})
}

func dropSpaceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.DropSpaceReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).DropSpace(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/DropSpace"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).DropSpace(ctx, req.(*proto.DropSpaceReq)), nil
	})
}

func listSpacesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.ListSpacesReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).ListSpaces(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/ListSpaces"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).ListSpaces(ctx, req.(*proto.ListSpacesReq)), nil
	})
}

func createTagHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.CreateSchemaReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).CreateTag(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/CreateTag"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).CreateTag(ctx, req.(*proto.CreateSchemaReq)), nil
	})
}

func createEdgeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.CreateSchemaReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).CreateEdge(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/CreateEdge"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).CreateEdge(ctx, req.(*proto.CreateSchemaReq)), nil
	})
}

func alterTagHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.AlterSchemaReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).AlterTag(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/AlterTag"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).AlterTag(ctx, req.(*proto.AlterSchemaReq)), nil
	})
}

func alterEdgeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.AlterSchemaReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).AlterEdge(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/AlterEdge"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).AlterEdge(ctx, req.(*proto.AlterSchemaReq)), nil
	})
}

func createIndexHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.CreateIndexReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).CreateIndex(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/CreateIndex"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).CreateIndex(ctx, req.(*proto.CreateIndexReq)), nil
	})
}

func dropIndexHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.DropIndexReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).DropIndex(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/DropIndex"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).DropIndex(ctx, req.(*proto.DropIndexReq)), nil
	})
}

func listHostsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.ListHostsReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).ListHosts(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/ListHosts"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).ListHosts(ctx, req.(*proto.ListHostsReq)), nil
	})
}

func heartBeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.HeartBeatReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).HeartBeat(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/HeartBeat"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).HeartBeat(ctx, req.(*proto.HeartBeatReq)), nil
	})
}

func createBackupHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.CreateBackupReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).CreateBackup(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/CreateBackup"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).CreateBackup(ctx, req.(*proto.CreateBackupReq)), nil
	})
}

func dropSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(proto.DropSnapshotReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(metaService).DropSnapshot(ctx, in), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/graphdb.meta.Meta/DropSnapshot"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(metaService).DropSnapshot(ctx, req.(*proto.DropSnapshotReq)), nil
	})
}
