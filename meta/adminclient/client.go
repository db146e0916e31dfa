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

// Package adminclient is the outbound admin surface of the meta service:
// checkpoint creation, checkpoint drop and write blocking on storage
// hosts.
package adminclient

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cubefs/graphdb/common/rpc"
	"github.com/cubefs/graphdb/proto"
)

type SignType int32

const (
	SignBlockOn SignType = iota + 1
	SignBlockOff
)

type Client interface {
	// CreateSnapshot asks host to checkpoint the space under name and
	// returns the checkpoint directory.
	CreateSnapshot(ctx context.Context, spaceID proto.GraphSpaceID, name string, host proto.HostAddr) (dir string, err error)
	DropSnapshot(ctx context.Context, spaceID proto.GraphSpaceID, name string, host proto.HostAddr) error
	BlockingWrites(ctx context.Context, spaceID proto.GraphSpaceID, sign SignType, host proto.HostAddr) error
	Close()
}

type (
	CreateSnapshotArgs struct {
		SpaceID proto.GraphSpaceID `json:"space_id"`
		Name    string             `json:"name"`
	}
	CreateSnapshotReply struct {
		Code proto.ErrorCode `json:"code"`
		Dir  string          `json:"dir"`
	}
	DropSnapshotArgs struct {
		SpaceID proto.GraphSpaceID `json:"space_id"`
		Name    string             `json:"name"`
	}
	BlockingWritesArgs struct {
		SpaceID proto.GraphSpaceID `json:"space_id"`
		Sign    SignType           `json:"sign"`
	}
	StatusReply struct {
		Code proto.ErrorCode `json:"code"`
	}
)

var errRemote = func(code proto.ErrorCode) error {
	return &remoteError{code: code}
}

type remoteError struct {
	code proto.ErrorCode
}

func (e *remoteError) Error() string {
	return "admin call failed: " + e.code.String()
}

type Config struct {
	DialTimeoutMs int `json:"dial_timeout_ms"`
}

type client struct {
	cfg   Config
	conns map[string]*grpc.ClientConn
	lock  sync.Mutex
}

func New(cfg *Config) Client {
	if cfg.DialTimeoutMs == 0 {
		cfg.DialTimeoutMs = 3000
	}
	return &client{cfg: *cfg, conns: make(map[string]*grpc.ClientConn)}
}

func (c *client) getConn(ctx context.Context, host proto.HostAddr) (*grpc.ClientConn, error) {
	addr := host.String()

	c.lock.Lock()
	defer c.lock.Unlock()
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.DialTimeoutMs)*time.Millisecond)
	defer cancel()
	conn, err := grpc.DialContext(dialCtx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)),
	)
	if err != nil {
		return nil, err
	}
	c.conns[addr] = conn
	return conn, nil
}

func (c *client) CreateSnapshot(ctx context.Context, spaceID proto.GraphSpaceID, name string, host proto.HostAddr) (string, error) {
	conn, err := c.getConn(ctx, host)
	if err != nil {
		return "", err
	}
	reply := &CreateSnapshotReply{}
	err = conn.Invoke(ctx, "/graphdb.storage.Admin/CreateSnapshot",
		&CreateSnapshotArgs{SpaceID: spaceID, Name: name}, reply)
	if err != nil {
		return "", err
	}
	if !reply.Code.OK() {
		return "", errRemote(reply.Code)
	}
	return reply.Dir, nil
}

func (c *client) DropSnapshot(ctx context.Context, spaceID proto.GraphSpaceID, name string, host proto.HostAddr) error {
	conn, err := c.getConn(ctx, host)
	if err != nil {
		return err
	}
	reply := &StatusReply{}
	err = conn.Invoke(ctx, "/graphdb.storage.Admin/DropSnapshot",
		&DropSnapshotArgs{SpaceID: spaceID, Name: name}, reply)
	if err != nil {
		return err
	}
	if !reply.Code.OK() {
		return errRemote(reply.Code)
	}
	return nil
}

func (c *client) BlockingWrites(ctx context.Context, spaceID proto.GraphSpaceID, sign SignType, host proto.HostAddr) error {
	conn, err := c.getConn(ctx, host)
	if err != nil {
		return err
	}
	reply := &StatusReply{}
	err = conn.Invoke(ctx, "/graphdb.storage.Admin/BlockingWrites",
		&BlockingWritesArgs{SpaceID: spaceID, Sign: sign}, reply)
	if err != nil {
		return err
	}
	if !reply.Code.OK() {
		return errRemote(reply.Code)
	}
	return nil
}

func (c *client) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = make(map[string]*grpc.ClientConn)
}
