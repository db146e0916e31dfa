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

// Package metakey is the byte codec of every catalog record. Each logical
// family carries a fixed single-byte tag prefix, so a prefix scan over the
// tag enumerates exactly that family. Integer ids are little-endian at
// fixed widths; parsers tolerate extra trailing bytes.
package metakey

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/cubefs/graphdb/proto"
)

const (
	tagSpace              byte = 0x01
	tagPartition          byte = 0x02
	tagTagSchema          byte = 0x03
	tagEdgeSchema         byte = 0x04
	tagIndex              byte = 0x05
	tagIndexName          byte = 0x06
	tagHost               byte = 0x07
	tagLeader             byte = 0x08
	tagRole               byte = 0x09
	tagUser               byte = 0x0A
	tagListener           byte = 0x0B
	tagSnapshot           byte = 0x0C
	tagGroup              byte = 0x0D
	tagZone               byte = 0x0E
	tagRebuildIndexStatus byte = 0x0F
	tagStatis             byte = 0x10
	tagLastUpdateTime     byte = 0x11
)

// sub-kinds of the name index family
const (
	entitySpace byte = 0x01
	entityTag   byte = 0x02
	entityEdge  byte = 0x03
	entityIndex byte = 0x04
	entityGroup byte = 0x05
	entityZone  byte = 0x06
)

// IDKey holds the next numeric identifier, consumed under the id lock.
var IDKey = []byte("__id__")

func appendInt32(b []byte, v int32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return append(b, buf[:]...)
}

// IDVal encodes an allocated id the way the id counter stores it.
func IDVal(id int32) []byte {
	return appendInt32(nil, id)
}

// ParseID decodes a little-endian id value, tolerating trailing bytes.
func ParseID(val []byte) int32 {
	return int32(binary.LittleEndian.Uint32(val[:4]))
}

// Space family.

func SpaceKey(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagSpace}, spaceID)
}

func SpacePrefix() []byte {
	return []byte{tagSpace}
}

func ParseSpaceKeyID(key []byte) proto.GraphSpaceID {
	return ParseID(key[1:])
}

func SpaceVal(desc *proto.SpaceDesc) []byte {
	data, _ := json.Marshal(desc)
	return data
}

func ParseSpaceVal(val []byte) (*proto.SpaceDesc, error) {
	desc := &proto.SpaceDesc{}
	if err := json.Unmarshal(val, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

// Name index family: one record per named entity mapping name to id.

func IndexSpaceKey(name string) []byte {
	key := []byte{tagIndexName, entitySpace}
	return append(key, name...)
}

func IndexTagKey(spaceID proto.GraphSpaceID, name string) []byte {
	key := appendInt32([]byte{tagIndexName, entityTag}, spaceID)
	return append(key, name...)
}

func IndexEdgeKey(spaceID proto.GraphSpaceID, name string) []byte {
	key := appendInt32([]byte{tagIndexName, entityEdge}, spaceID)
	return append(key, name...)
}

func IndexIndexKey(spaceID proto.GraphSpaceID, name string) []byte {
	key := appendInt32([]byte{tagIndexName, entityIndex}, spaceID)
	return append(key, name...)
}

func IndexTagPrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagIndexName, entityTag}, spaceID)
}

func IndexEdgePrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagIndexName, entityEdge}, spaceID)
}

func IndexIndexPrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagIndexName, entityIndex}, spaceID)
}

func IndexGroupKey(name string) []byte {
	key := []byte{tagIndexName, entityGroup}
	return append(key, name...)
}

func IndexZoneKey(name string) []byte {
	key := []byte{tagIndexName, entityZone}
	return append(key, name...)
}

// Partition family.

func PartKey(spaceID proto.GraphSpaceID, partID proto.PartitionID) []byte {
	return appendInt32(appendInt32([]byte{tagPartition}, spaceID), partID)
}

func PartPrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagPartition}, spaceID)
}

func PartPrefixAll() []byte {
	return []byte{tagPartition}
}

func ParsePartKeySpaceID(key []byte) proto.GraphSpaceID {
	return ParseID(key[1:])
}

func ParsePartKeyPartID(key []byte) proto.PartitionID {
	return ParseID(key[5:])
}

func PartVal(hosts []proto.HostAddr) []byte {
	data, _ := json.Marshal(hosts)
	return data
}

func ParsePartVal(val []byte) ([]proto.HostAddr, error) {
	var hosts []proto.HostAddr
	if err := json.Unmarshal(val, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// Schema families. Versions are stored inverted so that a prefix scan
// yields the newest version first.

func invertVer(ver proto.SchemaVer) uint64 {
	return uint64(math.MaxInt64 - ver)
}

func appendInvertedVer(b []byte, ver proto.SchemaVer) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], invertVer(ver))
	return append(b, buf[:]...)
}

func SchemaTagKey(spaceID proto.GraphSpaceID, tagID proto.TagID, ver proto.SchemaVer) []byte {
	return appendInvertedVer(appendInt32(appendInt32([]byte{tagTagSchema}, spaceID), tagID), ver)
}

func SchemaTagPrefix(spaceID proto.GraphSpaceID, tagID proto.TagID) []byte {
	return appendInt32(appendInt32([]byte{tagTagSchema}, spaceID), tagID)
}

func SchemaTagsPrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagTagSchema}, spaceID)
}

func ParseTagID(key []byte) proto.TagID {
	return ParseID(key[5:])
}

func SchemaEdgeKey(spaceID proto.GraphSpaceID, edgeType proto.EdgeType, ver proto.SchemaVer) []byte {
	return appendInvertedVer(appendInt32(appendInt32([]byte{tagEdgeSchema}, spaceID), edgeType), ver)
}

func SchemaEdgePrefix(spaceID proto.GraphSpaceID, edgeType proto.EdgeType) []byte {
	return appendInt32(appendInt32([]byte{tagEdgeSchema}, spaceID), edgeType)
}

func SchemaEdgesPrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagEdgeSchema}, spaceID)
}

func ParseEdgeType(key []byte) proto.EdgeType {
	return ParseID(key[5:])
}

func ParseSchemaVer(key []byte) proto.SchemaVer {
	stored := binary.BigEndian.Uint64(key[9:17])
	return proto.SchemaVer(uint64(math.MaxInt64) - stored)
}

func SchemaVal(schema *proto.Schema) []byte {
	data, _ := json.Marshal(schema)
	return data
}

func ParseSchemaVal(val []byte) (*proto.Schema, error) {
	schema := &proto.Schema{}
	if err := json.Unmarshal(val, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// Index family.

func IndexKey(spaceID proto.GraphSpaceID, indexID proto.IndexID) []byte {
	return appendInt32(appendInt32([]byte{tagIndex}, spaceID), indexID)
}

func IndexPrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagIndex}, spaceID)
}

func ParseIndexKeyID(key []byte) proto.IndexID {
	return ParseID(key[5:])
}

func IndexVal(item *proto.IndexItem) []byte {
	data, _ := json.Marshal(item)
	return data
}

func ParseIndexVal(val []byte) (*proto.IndexItem, error) {
	item := &proto.IndexItem{}
	if err := json.Unmarshal(val, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Host family. The address is length-prefixed so the port parses at a
// fixed offset from the host end.

func HostKey(addr proto.HostAddr) []byte {
	key := []byte{tagHost}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(addr.Host)))
	key = append(key, lenBuf[:]...)
	key = append(key, addr.Host...)
	return appendInt32(key, addr.Port)
}

func HostPrefix() []byte {
	return []byte{tagHost}
}

func ParseHostKey(key []byte) proto.HostAddr {
	hostLen := binary.LittleEndian.Uint16(key[1:3])
	host := string(key[3 : 3+hostLen])
	port := ParseID(key[3+hostLen:])
	return proto.HostAddr{Host: host, Port: port}
}

func HostVal(info *proto.HostInfo) []byte {
	data, _ := json.Marshal(info)
	return data
}

func ParseHostVal(val []byte) (*proto.HostInfo, error) {
	info := &proto.HostInfo{}
	if err := json.Unmarshal(val, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Leader family.

func LeaderKey(spaceID proto.GraphSpaceID, partID proto.PartitionID) []byte {
	return appendInt32(appendInt32([]byte{tagLeader}, spaceID), partID)
}

func LeaderPrefix() []byte {
	return []byte{tagLeader}
}

func ParseLeaderKey(key []byte) (proto.GraphSpaceID, proto.PartitionID) {
	return ParseID(key[1:]), ParseID(key[5:])
}

func LeaderVal(info *proto.LeaderInfo) []byte {
	data, _ := json.Marshal(info)
	return data
}

func ParseLeaderVal(val []byte) (*proto.LeaderInfo, error) {
	info := &proto.LeaderInfo{}
	if err := json.Unmarshal(val, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Role family.

func RoleKey(spaceID proto.GraphSpaceID, account string) []byte {
	key := appendInt32([]byte{tagRole}, spaceID)
	return append(key, account...)
}

func RoleSpacePrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagRole}, spaceID)
}

func ParseRoleUser(key []byte) string {
	return string(key[5:])
}

// User family.

func UserKey(account string) []byte {
	return append([]byte{tagUser}, account...)
}

func UserPrefix() []byte {
	return []byte{tagUser}
}

func ParseUserPwd(val []byte) string {
	return string(val)
}

// Listener family.

func ListenerKey(spaceID proto.GraphSpaceID, typ proto.ListenerType, host proto.HostAddr) []byte {
	key := appendInt32([]byte{tagListener}, spaceID)
	key = append(key, byte(typ))
	return append(key, host.String()...)
}

func ListenerPrefix(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagListener}, spaceID)
}

func ListenerTypePrefix(spaceID proto.GraphSpaceID, typ proto.ListenerType) []byte {
	key := appendInt32([]byte{tagListener}, spaceID)
	return append(key, byte(typ))
}

// Snapshot family. The value layout is one status byte followed by the
// joined host list.

func SnapshotKey(name string) []byte {
	return append([]byte{tagSnapshot}, name...)
}

func SnapshotPrefix() []byte {
	return []byte{tagSnapshot}
}

func ParseSnapshotName(key []byte) string {
	return string(key[1:])
}

func SnapshotVal(status proto.SnapshotStatus, hosts string) []byte {
	val := []byte{byte(status)}
	return append(val, hosts...)
}

func ParseSnapshotStatus(val []byte) proto.SnapshotStatus {
	return proto.SnapshotStatus(val[0])
}

func ParseSnapshotHosts(val []byte) string {
	return string(val[1:])
}

// Group and zone families.

func GroupKey(name string) []byte {
	return append([]byte{tagGroup}, name...)
}

func GroupVal(zones []string) []byte {
	data, _ := json.Marshal(zones)
	return data
}

func ParseGroupVal(val []byte) ([]string, error) {
	var zones []string
	if err := json.Unmarshal(val, &zones); err != nil {
		return nil, err
	}
	return zones, nil
}

func ZoneKey(name string) []byte {
	return append([]byte{tagZone}, name...)
}

func ZoneVal(hosts []proto.HostAddr) []byte {
	data, _ := json.Marshal(hosts)
	return data
}

func ParseZoneVal(val []byte) ([]proto.HostAddr, error) {
	var hosts []proto.HostAddr
	if err := json.Unmarshal(val, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// Rebuild index status family.

func RebuildIndexStatusKey(spaceID proto.GraphSpaceID, kind byte, name string) []byte {
	key := appendInt32([]byte{tagRebuildIndexStatus}, spaceID)
	key = append(key, kind)
	return append(key, name...)
}

func RebuildIndexStatusPrefix() []byte {
	return []byte{tagRebuildIndexStatus}
}

// Statistics family.

func StatisKey(spaceID proto.GraphSpaceID) []byte {
	return appendInt32([]byte{tagStatis}, spaceID)
}

func ParseStatisSpaceID(key []byte) proto.GraphSpaceID {
	return ParseID(key[1:])
}

// Last update time marker, observed as a revision cursor.

func LastUpdateTimeKey() []byte {
	return []byte{tagLastUpdateTime}
}

func LastUpdateTimeVal(ms int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(ms))
	return buf[:]
}

func ParseLastUpdateTime(val []byte) int64 {
	return int64(binary.LittleEndian.Uint64(val[:8]))
}

// HostsToStr joins hosts the way snapshot records store them.
func HostsToStr(hosts []proto.HostAddr) string {
	parts := make([]string, 0, len(hosts))
	for _, h := range hosts {
		parts = append(parts, h.String())
	}
	return strings.Join(parts, ",")
}

// ParseHostsStr is the inverse of HostsToStr.
func ParseHostsStr(s string) []proto.HostAddr {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	hosts := make([]proto.HostAddr, 0, len(parts))
	for _, p := range parts {
		idx := strings.LastIndex(p, ":")
		if idx < 0 {
			continue
		}
		port, err := strconv.Atoi(p[idx+1:])
		if err != nil {
			continue
		}
		hosts = append(hosts, proto.HostAddr{Host: p[:idx], Port: int32(port)})
	}
	return hosts
}

// MetaFamilyPrefixes lists every family exported by a meta backup.
func MetaFamilyPrefixes() [][]byte {
	return [][]byte{
		{tagSpace}, {tagPartition}, {tagTagSchema}, {tagEdgeSchema},
		{tagIndex}, {tagIndexName}, {tagUser}, {tagRole}, {tagGroup},
		{tagZone}, {tagStatis},
	}
}
