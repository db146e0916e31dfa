package raft

import (
	"context"
	"errors"

	"github.com/cubefs/graphdb/common/kvstore"
)

type Op uint32

var (
	ErrNotLeader       = errors.New("raft: not leader")
	ErrGroupClosed     = errors.New("raft: group closed")
	ErrProposalDropped = errors.New("raft: proposal dropped")
)

type (
	// ProposalData is one replicated command. NotifyID is filled by the
	// group so the apply loop can wake the waiting proposer.
	ProposalData struct {
		Module   []byte `json:"module"`
		Op       Op     `json:"op"`
		Data     []byte `json:"data"`
		Context  []byte `json:"context,omitempty"`
		NotifyID uint64 `json:"notify_id"`
	}

	ProposalResponse struct {
		Data interface{}
	}

	// StateMachine applies committed proposals. Apply runs on the group's
	// ready loop goroutine; completions delivered from it stay on that
	// goroutine.
	StateMachine interface {
		Apply(ctx context.Context, pds []ProposalData, index uint64) (rets []interface{}, err error)
		LeaderChange(leader uint64) error
	}

	Member struct {
		NodeID uint64 `json:"node_id"`
		Host   string `json:"host"`
	}

	// Transport ships raft messages to peer nodes. A single-member group
	// never sends, so nil is accepted there.
	Transport interface {
		Send(ctx context.Context, to uint64, data []byte)
	}

	Stat struct {
		NodeID  uint64   `json:"node_id"`
		Term    uint64   `json:"term"`
		Commit  uint64   `json:"commit"`
		Leader  uint64   `json:"leader"`
		Applied uint64   `json:"applied"`
		Peers   []uint64 `json:"peers"`
	}

	Config struct {
		NodeID           uint64   `json:"node_id"`
		Members          []Member `json:"members"`
		TickIntervalMs   int      `json:"tick_interval_ms"`
		ElectionTick     int      `json:"election_tick"`
		HeartbeatTick    int      `json:"heartbeat_tick"`
		ProposeTimeoutMs int      `json:"propose_timeout_ms"`

		Store     kvstore.Store `json:"-"`
		SM        StateMachine  `json:"-"`
		Transport Transport     `json:"-"`
	}

	Group interface {
		Start()
		Campaign(ctx context.Context) error
		Propose(ctx context.Context, pd *ProposalData) (ProposalResponse, error)
		ReadIndex(ctx context.Context) error
		IsLeader() bool
		Leader() (nodeID uint64, term uint64)
		Members() []Member
		Stat() Stat
		Close()
	}
)
