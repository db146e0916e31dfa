package metakey

import (
	"bytes"
	"testing"

	"github.com/cubefs/graphdb/proto"
	"github.com/stretchr/testify/require"
)

func TestIDRoundTrip(t *testing.T) {
	for _, id := range []int32{0, 1, 7, 1<<30 + 11} {
		require.Equal(t, id, ParseID(IDVal(id)))
	}
	// parsers tolerate trailing bytes
	val := append(IDVal(42), 0xde, 0xad)
	require.Equal(t, int32(42), ParseID(val))
}

func TestSpaceKey(t *testing.T) {
	key := SpaceKey(7)
	require.True(t, bytes.HasPrefix(key, SpacePrefix()))
	require.Equal(t, proto.GraphSpaceID(7), ParseSpaceKeyID(key))

	desc := &proto.SpaceDesc{SpaceID: 7, Name: "g", PartitionNum: 3, ReplicaFactor: 1}
	parsed, err := ParseSpaceVal(SpaceVal(desc))
	require.NoError(t, err)
	require.Equal(t, desc, parsed)
	// re-encode matches the original bytes
	require.Equal(t, SpaceVal(desc), SpaceVal(parsed))
}

func TestPartKey(t *testing.T) {
	key := PartKey(7, 3)
	require.True(t, bytes.HasPrefix(key, PartPrefix(7)))
	require.True(t, bytes.HasPrefix(key, PartPrefixAll()))
	require.Equal(t, proto.GraphSpaceID(7), ParsePartKeySpaceID(key))
	require.Equal(t, proto.PartitionID(3), ParsePartKeyPartID(key))

	hosts := []proto.HostAddr{{Host: "10.0.0.1", Port: 9779}, {Host: "10.0.0.2", Port: 9779}}
	parsed, err := ParsePartVal(PartVal(hosts))
	require.NoError(t, err)
	require.Equal(t, hosts, parsed)
}

func TestSchemaKeyNewestFirst(t *testing.T) {
	k0 := SchemaTagKey(1, 5, 0)
	k1 := SchemaTagKey(1, 5, 1)
	k2 := SchemaTagKey(1, 5, 2)
	// higher versions sort before lower ones under the shared prefix
	require.True(t, bytes.Compare(k2, k1) < 0)
	require.True(t, bytes.Compare(k1, k0) < 0)
	require.True(t, bytes.HasPrefix(k2, SchemaTagPrefix(1, 5)))
	require.True(t, bytes.HasPrefix(k2, SchemaTagsPrefix(1)))

	require.Equal(t, proto.TagID(5), ParseTagID(k2))
	require.Equal(t, proto.SchemaVer(2), ParseSchemaVer(k2))

	schema := &proto.Schema{Version: 2, Columns: []proto.ColumnDef{{Name: "c1", Type: proto.PropertyTypeInt64}}}
	parsed, err := ParseSchemaVal(SchemaVal(schema))
	require.NoError(t, err)
	require.Equal(t, schema, parsed)
	require.Equal(t, SchemaVal(schema), SchemaVal(parsed))
}

func TestHostKey(t *testing.T) {
	addr := proto.HostAddr{Host: "192.168.8.5", Port: 9779}
	key := HostKey(addr)
	require.True(t, bytes.HasPrefix(key, HostPrefix()))
	require.Equal(t, addr, ParseHostKey(key))

	info := &proto.HostInfo{Role: proto.HostRoleStorage, LastHBTime: 12345, GitInfoSha: "abc"}
	parsed, err := ParseHostVal(HostVal(info))
	require.NoError(t, err)
	require.Equal(t, info, parsed)
}

func TestLeaderKey(t *testing.T) {
	key := LeaderKey(2, 9)
	require.True(t, bytes.HasPrefix(key, LeaderPrefix()))
	space, part := ParseLeaderKey(key)
	require.Equal(t, proto.GraphSpaceID(2), space)
	require.Equal(t, proto.PartitionID(9), part)

	info := &proto.LeaderInfo{Addr: proto.HostAddr{Host: "h", Port: 1}, Term: 4, Status: proto.Succeeded}
	parsed, err := ParseLeaderVal(LeaderVal(info))
	require.NoError(t, err)
	require.Equal(t, info, parsed)
}

func TestSnapshotVal(t *testing.T) {
	hosts := []proto.HostAddr{{Host: "a", Port: 1}, {Host: "b", Port: 2}}
	hostsStr := HostsToStr(hosts)
	val := SnapshotVal(proto.SnapshotStatusInvalid, hostsStr)
	require.Equal(t, proto.SnapshotStatusInvalid, ParseSnapshotStatus(val))
	require.Equal(t, hostsStr, ParseSnapshotHosts(val))
	require.Equal(t, hosts, ParseHostsStr(ParseSnapshotHosts(val)))

	key := SnapshotKey("BACKUP_x")
	require.True(t, bytes.HasPrefix(key, SnapshotPrefix()))
	require.Equal(t, "BACKUP_x", ParseSnapshotName(key))
}

func TestNameIndexKeysDisjoint(t *testing.T) {
	// the same name under different entities never collides
	keys := [][]byte{
		IndexSpaceKey("n"),
		IndexTagKey(1, "n"),
		IndexEdgeKey(1, "n"),
		IndexIndexKey(1, "n"),
		IndexGroupKey("n"),
		IndexZoneKey("n"),
	}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			require.False(t, bytes.Equal(keys[i], keys[j]))
		}
	}
}

func TestFamilyPrefixesDisjoint(t *testing.T) {
	// every family tag byte enumerates exactly that family
	prefixes := [][]byte{
		SpacePrefix(), PartPrefixAll(), HostPrefix(), LeaderPrefix(),
		SnapshotPrefix(), RebuildIndexStatusPrefix(), UserPrefix(),
	}
	for i := range prefixes {
		for j := i + 1; j < len(prefixes); j++ {
			require.NotEqual(t, prefixes[i][0], prefixes[j][0])
		}
	}
}

func TestLastUpdateTime(t *testing.T) {
	require.Equal(t, int64(1234567), ParseLastUpdateTime(LastUpdateTimeVal(1234567)))
}
