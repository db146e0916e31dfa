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

type PropertyType int32

const (
	PropertyTypeUnknown PropertyType = iota
	PropertyTypeBool
	PropertyTypeInt64
	PropertyTypeDouble
	PropertyTypeString
	PropertyTypeFixedString
	PropertyTypeTimestamp
)

type VidType struct {
	Type   PropertyType `json:"type"`
	Length int16        `json:"length"`
}

// SpaceDesc is the payload of a space record.
type SpaceDesc struct {
	SpaceID       GraphSpaceID `json:"space_id"`
	Name          string       `json:"name"`
	PartitionNum  int32        `json:"partition_num"`
	ReplicaFactor int32        `json:"replica_factor"`
	Vid           VidType      `json:"vid"`
	GroupName     string       `json:"group_name,omitempty"`
}

type ColumnDef struct {
	Name         string       `json:"name"`
	Type         PropertyType `json:"type"`
	TypeLength   int16        `json:"type_length,omitempty"`
	Nullable     bool         `json:"nullable,omitempty"`
	DefaultValue []byte       `json:"default_value,omitempty"`
}

// Schema is one version of a tag or edge schema. Versions only ever append;
// the newest version is the active one.
type Schema struct {
	Version SchemaVer   `json:"version"`
	Columns []ColumnDef `json:"columns"`
}

type AlterSchemaOp int32

const (
	AlterSchemaOpAdd AlterSchemaOp = iota
	AlterSchemaOpChange
	AlterSchemaOpDrop
)

type AlterSchemaItem struct {
	Op      AlterSchemaOp `json:"op"`
	Columns []ColumnDef   `json:"columns"`
}

type SchemaIDKind int32

const (
	SchemaIDTag SchemaIDKind = iota
	SchemaIDEdge
)

type SchemaID struct {
	Kind     SchemaIDKind `json:"kind"`
	TagID    TagID        `json:"tag_id,omitempty"`
	EdgeType EdgeType     `json:"edge_type,omitempty"`
}

// IndexItem is the payload of an index record: an ordered list of columns
// over a single tag or edge schema.
type IndexItem struct {
	IndexID    IndexID     `json:"index_id"`
	IndexName  string      `json:"index_name"`
	SchemaID   SchemaID    `json:"schema_id"`
	SchemaName string      `json:"schema_name"`
	Fields     []ColumnDef `json:"fields"`
}

// HostInfo is the payload of a host record.
type HostInfo struct {
	Role       HostRole `json:"role"`
	LastHBTime int64    `json:"last_hb_time_ms"`
	GitInfoSha string   `json:"git_info_sha"`
}

// HostItem is a host row in a ListHosts response.
type HostItem struct {
	Addr        HostAddr                  `json:"addr"`
	Role        HostRole                  `json:"role"`
	GitInfoSha  string                    `json:"git_info_sha"`
	Status      HostStatus                `json:"status"`
	LeaderParts map[string][]PartitionID  `json:"leader_parts,omitempty"`
	AllParts    map[string][]PartitionID  `json:"all_parts,omitempty"`
}

// LeaderInfo is the payload of a leader record.
type LeaderInfo struct {
	Addr   HostAddr  `json:"addr"`
	Term   TermID    `json:"term"`
	Status ErrorCode `json:"status"`
}

type ListHostType int32

const (
	ListHostTypeAlloc ListHostType = iota
	ListHostTypeGraph
	ListHostTypeMeta
	ListHostTypeStorage
)

type ListenerType int32

const (
	ListenerTypeUnknown ListenerType = iota
	ListenerTypeElasticsearch
)

// Requests and responses of the meta service surface.

type CreateSpaceReq struct {
	Properties  SpaceDesc `json:"properties"`
	IfNotExists bool      `json:"if_not_exists"`
}

type CreateSpaceResp struct {
	Code    ErrorCode    `json:"code"`
	SpaceID GraphSpaceID `json:"space_id"`
}

type DropSpaceReq struct {
	SpaceName string `json:"space_name"`
	IfExists  bool   `json:"if_exists"`
}

type DropSpaceResp struct {
	Code ErrorCode `json:"code"`
}

type ListSpacesReq struct{}

type ListSpacesResp struct {
	Code   ErrorCode   `json:"code"`
	Spaces []SpaceDesc `json:"spaces"`
}

type CreateSchemaReq struct {
	SpaceName  string `json:"space_name"`
	SchemaName string `json:"schema_name"`
	Schema     Schema `json:"schema"`
	IfNotExists bool  `json:"if_not_exists"`
}

type CreateSchemaResp struct {
	Code ErrorCode `json:"code"`
	ID   int32     `json:"id"`
}

type AlterSchemaReq struct {
	SpaceName  string            `json:"space_name"`
	SchemaName string            `json:"schema_name"`
	Items      []AlterSchemaItem `json:"items"`
}

type AlterSchemaResp struct {
	Code ErrorCode `json:"code"`
}

type CreateIndexReq struct {
	SpaceName   string   `json:"space_name"`
	IndexName   string   `json:"index_name"`
	SchemaName  string   `json:"schema_name"`
	IsEdge      bool     `json:"is_edge"`
	Fields      []string `json:"fields"`
	IfNotExists bool     `json:"if_not_exists"`
}

type CreateIndexResp struct {
	Code    ErrorCode `json:"code"`
	IndexID IndexID   `json:"index_id"`
}

type DropIndexReq struct {
	SpaceName string `json:"space_name"`
	IndexName string `json:"index_name"`
	IfExists  bool   `json:"if_exists"`
}

type DropIndexResp struct {
	Code ErrorCode `json:"code"`
}

type ListHostsReq struct {
	Type ListHostType `json:"type"`
}

type ListHostsResp struct {
	Code  ErrorCode  `json:"code"`
	Hosts []HostItem `json:"hosts"`
}

type HeartBeatReq struct {
	Addr       HostAddr `json:"addr"`
	Role       HostRole `json:"role"`
	GitInfoSha string   `json:"git_info_sha"`
}

type HeartBeatResp struct {
	Code           ErrorCode `json:"code"`
	LastUpdateTime int64     `json:"last_update_time_ms"`
}

// CheckpointInfo names the checkpoint directory created on one host.
type CheckpointInfo struct {
	Host HostAddr `json:"host"`
	Dir  string   `json:"dir"`
}

type SpaceBackupInfo struct {
	Space  SpaceDesc        `json:"space"`
	CpDirs []CheckpointInfo `json:"cp_dirs"`
}

type BackupMeta struct {
	BackupName string                           `json:"backup_name"`
	MetaFiles  []string                         `json:"meta_files"`
	BackupInfo map[GraphSpaceID]SpaceBackupInfo `json:"backup_info"`
}

type CreateBackupReq struct {
	// Spaces restricts the backup scope; empty means all spaces.
	Spaces []string `json:"spaces,omitempty"`
}

type CreateBackupResp struct {
	Code ErrorCode  `json:"code"`
	Meta BackupMeta `json:"meta"`
}

type DropSnapshotReq struct {
	Name string `json:"name"`
}

type DropSnapshotResp struct {
	Code ErrorCode `json:"code"`
}
