package raft

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"
	etcdraft "go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

const (
	defaultTickIntervalMs   = 200
	defaultElectionTick     = 10
	defaultHeartbeatTick    = 1
	defaultProposeTimeoutMs = 10000
)

type proposalResult struct {
	reply interface{}
	err   error
}

type proposeReq struct {
	data     []byte
	notifyID uint64
	errc     chan error
}

type group struct {
	cfg      Config
	storage  *storage
	rawMu    sync.Mutex
	rawNode  *etcdraft.RawNode
	notifies sync.Map

	leader   uint64
	term     uint64
	applied  uint64
	notifyID uint64

	proposec chan proposeReq
	readc    chan proposeReq
	tickc    *time.Ticker
	signalc  chan struct{}
	donec    chan struct{}
	closed   uint32
}

// NewGroup builds the single catalog raft group. Call Start before any
// Propose; a one-member group campaigns on Start.
func NewGroup(cfg *Config) (Group, error) {
	if cfg.TickIntervalMs == 0 {
		cfg.TickIntervalMs = defaultTickIntervalMs
	}
	if cfg.ElectionTick == 0 {
		cfg.ElectionTick = defaultElectionTick
	}
	if cfg.HeartbeatTick == 0 {
		cfg.HeartbeatTick = defaultHeartbeatTick
	}
	if cfg.ProposeTimeoutMs == 0 {
		cfg.ProposeTimeoutMs = defaultProposeTimeoutMs
	}

	stg, err := newStorage(cfg.Store, cfg.Members)
	if err != nil {
		return nil, err
	}

	rc := &etcdraft.Config{
		ID:              cfg.NodeID,
		ElectionTick:    cfg.ElectionTick,
		HeartbeatTick:   cfg.HeartbeatTick,
		Storage:         stg,
		MaxSizePerMsg:   4 * 1024 * 1024,
		MaxInflightMsgs: 128,
		CheckQuorum:     true,
		PreVote:         true,
	}

	rn, err := etcdraft.NewRawNode(rc)
	if err != nil {
		return nil, err
	}

	if stg.isEmpty() {
		peers := make([]etcdraft.Peer, 0, len(cfg.Members))
		for _, m := range cfg.Members {
			peers = append(peers, etcdraft.Peer{ID: m.NodeID})
		}
		if err = rn.Bootstrap(peers); err != nil {
			return nil, err
		}
	}

	return &group{
		cfg:      *cfg,
		storage:  stg,
		rawNode:  rn,
		proposec: make(chan proposeReq, 256),
		readc:    make(chan proposeReq, 16),
		signalc:  make(chan struct{}, 1),
		donec:    make(chan struct{}),
	}, nil
}

func (g *group) Start() {
	g.tickc = time.NewTicker(time.Duration(g.cfg.TickIntervalMs) * time.Millisecond)
	go g.run()
	if len(g.cfg.Members) == 1 {
		g.Campaign(context.Background())
	}
}

func (g *group) Campaign(ctx context.Context) error {
	g.rawMu.Lock()
	err := g.rawNode.Campaign()
	g.rawMu.Unlock()
	g.signal()
	return err
}

func (g *group) Propose(ctx context.Context, pd *ProposalData) (resp ProposalResponse, err error) {
	if atomic.LoadUint32(&g.closed) == 1 {
		return resp, ErrGroupClosed
	}
	if !g.IsLeader() {
		return resp, ErrNotLeader
	}

	pd.NotifyID = atomic.AddUint64(&g.notifyID, 1)
	data, err := json.Marshal(pd)
	if err != nil {
		return resp, errors.Info(err, "marshal proposal failed")
	}

	n := make(chan proposalResult, 1)
	g.notifies.Store(pd.NotifyID, n)
	defer g.notifies.Delete(pd.NotifyID)

	errc := make(chan error, 1)
	select {
	case g.proposec <- proposeReq{data: data, notifyID: pd.NotifyID, errc: errc}:
	case <-g.donec:
		return resp, ErrGroupClosed
	case <-ctx.Done():
		return resp, ctx.Err()
	}
	g.signal()

	if err = <-errc; err != nil {
		return resp, err
	}

	timeout := time.NewTimer(time.Duration(g.cfg.ProposeTimeoutMs) * time.Millisecond)
	defer timeout.Stop()

	select {
	case ret := <-n:
		if ret.err != nil {
			return resp, ret.err
		}
		return ProposalResponse{Data: ret.reply}, nil
	case <-timeout.C:
		return resp, context.DeadlineExceeded
	case <-g.donec:
		return resp, ErrGroupClosed
	case <-ctx.Done():
		return resp, ctx.Err()
	}
}

func (g *group) ReadIndex(ctx context.Context) error {
	if atomic.LoadUint32(&g.closed) == 1 {
		return ErrGroupClosed
	}
	notifyID := atomic.AddUint64(&g.notifyID, 1)
	n := make(chan proposalResult, 1)
	g.notifies.Store(notifyID, n)
	defer g.notifies.Delete(notifyID)

	g.rawMu.Lock()
	g.rawNode.ReadIndex(notifyIDToBytes(notifyID))
	g.rawMu.Unlock()
	g.signal()

	select {
	case ret := <-n:
		return ret.err
	case <-g.donec:
		return ErrGroupClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *group) IsLeader() bool {
	return atomic.LoadUint64(&g.leader) == g.cfg.NodeID
}

func (g *group) Leader() (uint64, uint64) {
	return atomic.LoadUint64(&g.leader), atomic.LoadUint64(&g.term)
}

func (g *group) Members() []Member {
	ret := make([]Member, len(g.cfg.Members))
	copy(ret, g.cfg.Members)
	return ret
}

func (g *group) Stat() Stat {
	peers := make([]uint64, 0, len(g.cfg.Members))
	for _, m := range g.cfg.Members {
		peers = append(peers, m.NodeID)
	}
	return Stat{
		NodeID:  g.cfg.NodeID,
		Term:    atomic.LoadUint64(&g.term),
		Leader:  atomic.LoadUint64(&g.leader),
		Applied: atomic.LoadUint64(&g.applied),
		Peers:   peers,
	}
}

func (g *group) Close() {
	if !atomic.CompareAndSwapUint32(&g.closed, 0, 1) {
		return
	}
	close(g.donec)
	if g.tickc != nil {
		g.tickc.Stop()
	}
}

func (g *group) signal() {
	select {
	case g.signalc <- struct{}{}:
	default:
	}
}

func (g *group) run() {
	span, ctx := trace.StartSpanFromContext(context.Background(), "raft")
	for {
		select {
		case <-g.donec:
			return
		case <-g.tickc.C:
			g.rawMu.Lock()
			g.rawNode.Tick()
			g.rawMu.Unlock()
		case req := <-g.proposec:
			g.rawMu.Lock()
			err := g.rawNode.Propose(req.data)
			g.rawMu.Unlock()
			if err == etcdraft.ErrProposalDropped {
				err = ErrProposalDropped
			}
			req.errc <- err
		case <-g.signalc:
		}
		g.processReady(ctx, span)
	}
}

func (g *group) processReady(ctx context.Context, span trace.Span) {
	for {
		g.rawMu.Lock()
		if !g.rawNode.HasReady() {
			g.rawMu.Unlock()
			return
		}
		rd := g.rawNode.Ready()
		g.rawMu.Unlock()

		if rd.SoftState != nil {
			prev := atomic.SwapUint64(&g.leader, rd.SoftState.Lead)
			if prev != rd.SoftState.Lead {
				span.Infof("leader change, prev %d, now %d", prev, rd.SoftState.Lead)
				if g.cfg.SM != nil {
					g.cfg.SM.LeaderChange(rd.SoftState.Lead)
				}
			}
		}
		if !etcdraft.IsEmptyHardState(rd.HardState) {
			atomic.StoreUint64(&g.term, rd.HardState.Term)
			if err := g.storage.saveHardState(rd.HardState); err != nil {
				span.Fatalf("save hard state failed: %v", err)
			}
		}
		if len(rd.Entries) > 0 {
			if err := g.storage.saveEntries(rd.Entries); err != nil {
				span.Fatalf("save entries failed: %v", err)
			}
		}
		g.sendMessages(ctx, rd.Messages)
		for _, rs := range rd.ReadStates {
			g.doNotify(bytesToNotifyID(rs.RequestCtx), proposalResult{})
		}
		for i := range rd.CommittedEntries {
			g.applyEntry(ctx, span, &rd.CommittedEntries[i])
		}

		g.rawMu.Lock()
		g.rawNode.Advance(rd)
		g.rawMu.Unlock()
	}
}

func (g *group) applyEntry(ctx context.Context, span trace.Span, entry *raftpb.Entry) {
	switch entry.Type {
	case raftpb.EntryNormal:
		if len(entry.Data) == 0 {
			break
		}
		pd := ProposalData{}
		if err := json.Unmarshal(entry.Data, &pd); err != nil {
			span.Fatalf("unmarshal proposal failed, index %d: %v", entry.Index, err)
		}
		rets, err := g.cfg.SM.Apply(ctx, []ProposalData{pd}, entry.Index)
		ret := proposalResult{err: err}
		if err == nil && len(rets) > 0 {
			ret.reply = rets[0]
		}
		g.doNotify(pd.NotifyID, ret)
	case raftpb.EntryConfChange:
		cc := raftpb.ConfChange{}
		if err := cc.Unmarshal(entry.Data); err != nil {
			span.Fatalf("unmarshal conf change failed, index %d: %v", entry.Index, err)
		}
		g.rawMu.Lock()
		cs := g.rawNode.ApplyConfChange(cc)
		g.rawMu.Unlock()
		if err := g.storage.saveConfState(*cs); err != nil {
			span.Fatalf("save conf state failed: %v", err)
		}
	}
	atomic.StoreUint64(&g.applied, entry.Index)
}

func (g *group) sendMessages(ctx context.Context, msgs []raftpb.Message) {
	if g.cfg.Transport == nil {
		return
	}
	for i := range msgs {
		data, err := msgs[i].Marshal()
		if err != nil {
			continue
		}
		g.cfg.Transport.Send(ctx, msgs[i].To, data)
	}
}

// Step feeds a message received from a peer into the group.
func (g *group) Step(data []byte) error {
	msg := raftpb.Message{}
	if err := msg.Unmarshal(data); err != nil {
		return err
	}
	g.rawMu.Lock()
	err := g.rawNode.Step(msg)
	g.rawMu.Unlock()
	g.signal()
	return err
}

func (g *group) doNotify(notifyID uint64, ret proposalResult) {
	n, ok := g.notifies.Load(notifyID)
	if !ok {
		return
	}
	select {
	case n.(chan proposalResult) <- ret:
	default:
	}
}

func notifyIDToBytes(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func bytesToNotifyID(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
