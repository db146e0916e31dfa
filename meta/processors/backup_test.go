package processors

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cubefs/graphdb/meta/adminclient"
	"github.com/cubefs/graphdb/meta/metakey"
	"github.com/cubefs/graphdb/meta/metastore"
	"github.com/cubefs/graphdb/proto"
	"github.com/stretchr/testify/require"
)

type blockCall struct {
	space proto.GraphSpaceID
	sign  adminclient.SignType
	host  proto.HostAddr
}

// mockAdminClient records every outbound call; rejectBlockOn simulates one
// host refusing to block.
type mockAdminClient struct {
	mu            sync.Mutex
	blockCalls    []blockCall
	snapshotCalls []proto.HostAddr
	dropCalls     []proto.HostAddr
	rejectBlockOn map[string]bool
}

func (m *mockAdminClient) CreateSnapshot(ctx context.Context, spaceID proto.GraphSpaceID, name string, host proto.HostAddr) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotCalls = append(m.snapshotCalls, host)
	return "/cp/" + name + "/" + host.String(), nil
}

func (m *mockAdminClient) DropSnapshot(ctx context.Context, spaceID proto.GraphSpaceID, name string, host proto.HostAddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropCalls = append(m.dropCalls, host)
	return nil
}

func (m *mockAdminClient) BlockingWrites(ctx context.Context, spaceID proto.GraphSpaceID, sign adminclient.SignType, host proto.HostAddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockCalls = append(m.blockCalls, blockCall{space: spaceID, sign: sign, host: host})
	if sign == adminclient.SignBlockOn && m.rejectBlockOn[host.String()] {
		return errors.New("refused")
	}
	return nil
}

func (m *mockAdminClient) Close() {}

func (m *mockAdminClient) signCount(sign adminclient.SignType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.blockCalls {
		if c.sign == sign {
			n++
		}
	}
	return n
}

func setupBackupCluster(t *testing.T) *metastore.CatalogStore {
	kv := newTestStore(t)
	heartbeat(t, kv,
		proto.HostAddr{Host: "s1", Port: 1},
		proto.HostAddr{Host: "s2", Port: 2},
	)
	createSpace(t, kv, "a", 2, 2)
	createSpace(t, kv, "b", 1, 2)
	return kv
}

func findSnapshotRecord(t *testing.T, kv *metastore.CatalogStore) (string, []byte) {
	iter, err := kv.Prefix(context.Background(), metakey.SnapshotPrefix())
	require.NoError(t, err)
	defer iter.Close()
	if !iter.Valid() {
		return "", nil
	}
	name := metakey.ParseSnapshotName(iter.Key())
	val := make([]byte, len(iter.Val()))
	copy(val, iter.Val())
	iter.Next()
	require.False(t, iter.Valid(), "more than one snapshot record")
	return name, val
}

// Backup happy path: a VALID record listing exactly the reported hosts,
// per-space checkpoint directories in the response, and a BLOCK_OFF for
// every BLOCK_ON.
func TestCreateBackupHappyPath(t *testing.T) {
	ctx := context.Background()
	kv := setupBackupCluster(t)
	mock := &mockAdminClient{}

	resp := NewCreateBackupProcessor(kv, mock).Process(ctx, &proto.CreateBackupReq{Spaces: []string{"a", "b"}})
	require.Equal(t, proto.Succeeded, resp.Code)
	require.NotEmpty(t, resp.Meta.BackupName)
	require.Len(t, resp.Meta.BackupInfo, 2)
	for _, info := range resp.Meta.BackupInfo {
		require.NotEmpty(t, info.CpDirs)
	}
	require.NotEmpty(t, resp.Meta.MetaFiles)

	name, val := findSnapshotRecord(t, kv)
	require.Equal(t, resp.Meta.BackupName, name)
	require.Equal(t, proto.SnapshotStatusValid, metakey.ParseSnapshotStatus(val))

	// the record lists exactly the active hosts of the run
	active, code := ActiveHosts(ctx, kv)
	require.Equal(t, proto.Succeeded, code)
	require.ElementsMatch(t, active, metakey.ParseHostsStr(metakey.ParseSnapshotHosts(val)))

	require.Equal(t, mock.signCount(adminclient.SignBlockOn), mock.signCount(adminclient.SignBlockOff))
	require.NotZero(t, mock.signCount(adminclient.SignBlockOn))
}

// A rebuild in progress fails the backup before any snapshot record or
// blocking call happens.
func TestCreateBackupRebuildGate(t *testing.T) {
	ctx := context.Background()
	kv := setupBackupCluster(t)
	mock := &mockAdminClient{}

	require.NoError(t, metastore.SyncMultiPut(ctx, kv, []metastore.KV{{
		Key:   metakey.RebuildIndexStatusKey(1, 'T', "idx"),
		Value: []byte("RUNNING"),
	}}))

	resp := NewCreateBackupProcessor(kv, mock).Process(ctx, &proto.CreateBackupReq{})
	require.Equal(t, proto.ErrCodeBackupBuildingIndex, resp.Code)

	name, _ := findSnapshotRecord(t, kv)
	require.Empty(t, name)
	require.Empty(t, mock.blockCalls)
}

// One host rejecting BLOCK_ON fails the backup, unblocks the survivors,
// and leaves at most an INVALID record behind.
func TestCreateBackupBlockFailure(t *testing.T) {
	ctx := context.Background()
	kv := setupBackupCluster(t)
	mock := &mockAdminClient{rejectBlockOn: map[string]bool{"s2:2": true}}

	resp := NewCreateBackupProcessor(kv, mock).Process(ctx, &proto.CreateBackupReq{})
	require.Equal(t, proto.ErrCodeBlockWriteFailure, resp.Code)

	require.NotZero(t, mock.signCount(adminclient.SignBlockOff))

	_, val := findSnapshotRecord(t, kv)
	require.NotNil(t, val)
	require.Equal(t, proto.SnapshotStatusInvalid, metakey.ParseSnapshotStatus(val))
}

func TestCreateBackupUnknownSpace(t *testing.T) {
	kv := setupBackupCluster(t)
	mock := &mockAdminClient{}

	resp := NewCreateBackupProcessor(kv, mock).Process(context.Background(), &proto.CreateBackupReq{Spaces: []string{"ghost"}})
	require.Equal(t, proto.ErrCodeBackupSpaceNotFound, resp.Code)
	require.Empty(t, mock.blockCalls)
}

func TestCreateBackupNoHosts(t *testing.T) {
	kv := newTestStore(t)
	mock := &mockAdminClient{}

	resp := NewCreateBackupProcessor(kv, mock).Process(context.Background(), &proto.CreateBackupReq{})
	require.Equal(t, proto.ErrCodeNoHosts, resp.Code)
}

func TestDropSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := setupBackupCluster(t)
	mock := &mockAdminClient{}

	created := NewCreateBackupProcessor(kv, mock).Process(ctx, &proto.CreateBackupReq{})
	require.Equal(t, proto.Succeeded, created.Code)

	resp := NewDropSnapshotProcessor(kv, mock).Process(ctx, &proto.DropSnapshotReq{Name: created.Meta.BackupName})
	require.Equal(t, proto.Succeeded, resp.Code)
	require.NotEmpty(t, mock.dropCalls)

	name, _ := findSnapshotRecord(t, kv)
	require.Empty(t, name)
}
