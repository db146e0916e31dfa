package processors

import (
	"context"
	"testing"
	"time"

	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
	"github.com/stretchr/testify/require"
)

func writeHost(t *testing.T, kv *metastore.CatalogStore, addr proto.HostAddr, role proto.HostRole, lastHB int64) {
	info := &proto.HostInfo{Role: role, LastHBTime: lastHB, GitInfoSha: "cafe"}
	require.NoError(t, metastore.SyncMultiPut(context.Background(), kv, []metastore.KV{
		{Key: metakey.HostKey(addr), Value: metakey.HostVal(info)},
	}))
}

func TestAllHostsWithStatus(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)

	now := nowMilli()
	onlineWindow := int64(flags.HeartbeatIntervalSecs*flags.ExpiredTimeFactor) * 1000

	online := proto.HostAddr{Host: "on", Port: 1}
	offline := proto.HostAddr{Host: "off", Port: 2}
	expired := proto.HostAddr{Host: "gone", Port: 3}

	writeHost(t, kv, online, proto.HostRoleStorage, now)
	writeHost(t, kv, offline, proto.HostRoleStorage, now-onlineWindow-1000)
	writeHost(t, kv, expired, proto.HostRoleStorage, now-int64(flags.RemovedThresholdSec)*1000-1000)

	resp := NewListHostsProcessor(kv).Process(ctx, &proto.ListHostsReq{Type: proto.ListHostTypeStorage})
	require.Equal(t, proto.Succeeded, resp.Code)
	require.Len(t, resp.Hosts, 2)

	statuses := map[string]proto.HostStatus{}
	for _, item := range resp.Hosts {
		statuses[item.Addr.Host] = item.Status
	}
	require.Equal(t, proto.HostStatusOnline, statuses["on"])
	require.Equal(t, proto.HostStatusOffline, statuses["off"])

	// the expired host was queued for asynchronous removal
	require.Eventually(t, func() bool {
		_, err := kv.Get(ctx, metakey.HostKey(expired))
		return err == metastore.ErrNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestActiveHosts(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)

	now := nowMilli()
	writeHost(t, kv, proto.HostAddr{Host: "a", Port: 1}, proto.HostRoleStorage, now)
	writeHost(t, kv, proto.HostAddr{Host: "b", Port: 2}, proto.HostRoleStorage, now-int64(flags.HeartbeatIntervalSecs*flags.ExpiredTimeFactor)*1000-1)

	hosts, code := ActiveHosts(ctx, kv)
	require.Equal(t, proto.Succeeded, code)
	require.Len(t, hosts, 1)
	require.Equal(t, "a", hosts[0].Host)
}

// A leader record survives the join only if its host is active.
func TestFillLeaders(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)
	heartbeat(t, kv, proto.HostAddr{Host: "h1", Port: 1}, proto.HostAddr{Host: "h2", Port: 2})
	spaceID := createSpace(t, kv, "g", 2, 1)

	now := nowMilli()
	dead := proto.HostAddr{Host: "dead", Port: 9}
	writeHost(t, kv, dead, proto.HostRoleStorage, now-int64(flags.RemovedThresholdSec)*1000+5000)

	leaders := []metastore.KV{
		{
			Key:   metakey.LeaderKey(spaceID, 1),
			Value: metakey.LeaderVal(&proto.LeaderInfo{Addr: proto.HostAddr{Host: "h1", Port: 1}, Term: 3, Status: proto.Succeeded}),
		},
		{
			Key:   metakey.LeaderKey(spaceID, 2),
			Value: metakey.LeaderVal(&proto.LeaderInfo{Addr: dead, Term: 3, Status: proto.Succeeded}),
		},
	}
	require.NoError(t, metastore.SyncMultiPut(ctx, kv, leaders))

	resp := NewListHostsProcessor(kv).Process(ctx, &proto.ListHostsReq{Type: proto.ListHostTypeAlloc})
	require.Equal(t, proto.Succeeded, resp.Code)

	var h1 *proto.HostItem
	for i := range resp.Hosts {
		if resp.Hosts[i].Addr.Host == "h1" {
			h1 = &resp.Hosts[i]
		}
		// part 2's leader is inactive, so nobody reports it
		for _, parts := range resp.Hosts[i].LeaderParts {
			require.NotContains(t, parts, proto.PartitionID(2))
		}
	}
	require.NotNil(t, h1)
	require.Equal(t, []proto.PartitionID{1}, h1.LeaderParts["g"])

	// part assignments are joined by space name
	total := 0
	for i := range resp.Hosts {
		total += len(resp.Hosts[i].AllParts["g"])
	}
	require.Equal(t, 2, total)
}

func TestHeartBeatRefreshesHost(t *testing.T) {
	ctx := context.Background()
	kv := newTestStore(t)

	addr := proto.HostAddr{Host: "h1", Port: 1}
	heartbeat(t, kv, addr)

	value, err := kv.Get(ctx, metakey.HostKey(addr))
	require.NoError(t, err)
	info, err := metakey.ParseHostVal(value)
	require.NoError(t, err)
	require.Equal(t, proto.HostRoleStorage, info.Role)
	require.InDelta(t, nowMilli(), info.LastHBTime, 5000)
}
