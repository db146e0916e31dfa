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

package proto

import "fmt"

type (
	GraphSpaceID = int32
	PartitionID  = int32
	TagID        = int32
	EdgeType     = int32
	IndexID      = int32
	SchemaVer    = int64
	TermID       = int64
)

// HostAddr identifies a service endpoint. A meta peer's raft port is always
// its service port plus one.
type HostAddr struct {
	Host string `json:"host"`
	Port int32  `json:"port"`
}

func (h HostAddr) String() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// ServiceAddr translates a raft address back to the service address.
func ServiceAddr(raft HostAddr) HostAddr {
	return HostAddr{Host: raft.Host, Port: raft.Port - 1}
}

// RaftAddr translates a service address to its raft address.
func RaftAddr(service HostAddr) HostAddr {
	return HostAddr{Host: service.Host, Port: service.Port + 1}
}

type HostRole int32

const (
	HostRoleUnknown HostRole = iota
	HostRoleGraph
	HostRoleMeta
	HostRoleStorage
)

func (r HostRole) String() string {
	switch r {
	case HostRoleGraph:
		return "GRAPH"
	case HostRoleMeta:
		return "META"
	case HostRoleStorage:
		return "STORAGE"
	default:
		return "UNKNOWN"
	}
}

type HostStatus int32

const (
	HostStatusOnline HostStatus = iota
	HostStatusOffline
)

type SnapshotStatus int32

const (
	SnapshotStatusInvalid SnapshotStatus = iota
	SnapshotStatusValid
)
