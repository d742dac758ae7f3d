package coordinator

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/types"
)

// message is one entry in the coordinator's serialized command stream.
type message interface{}

// Startup chain steps, each posted to the coordinator's own mailbox
// with a short delay so administrative queries interleave with startup.
const (
	stepInit       = "init"
	stepCheckMesh  = "check_meshed"
	stepDistribute = "distribute_code"
	stepInitAll    = "init_all"
)

type msgStartup struct {
	step string
}

type msgMeshResult struct {
	err error
}

type msgDistributed struct{}

type msgInitResult struct {
	handles []*handle
	err     error
}

// msgCommand carries a fire-and-forget operator command.
type msgCommand struct {
	name string
}

// msgStatus requests a status report; the reply channel is buffered so
// the core never blocks on a slow reader.
type msgStatus struct {
	reply chan types.StatusReport
}

type msgShutdown struct {
	done chan struct{}
}

type msgShutdownDone struct {
	done chan struct{}
}

// msgDeath is the synthesized death notification for one collector:
// its monitor connection failed.
type msgDeath struct {
	token  uuid.UUID
	node   types.PeerID
	reason string
}

// msgRebirth reports the outcome of a reboot attempt.
type msgRebirth struct {
	node   types.PeerID
	handle *handle
	ok     bool
	reason string
}

// msgRebirthStart is the settled continuation that re-sends start to a
// reborn collector when a run is still active.
type msgRebirthStart struct {
	node types.PeerID
}

// msgPeerFrame is one frame received from a live collector.
type msgPeerFrame struct {
	node  types.PeerID
	token uuid.UUID
	frame protocol.Frame
}

// msgRetrieved reports one file fully received by a transfer task.
type msgRetrieved struct {
	node     types.PeerID
	filename string
	bytes    int64
}

// handle is one roster entry: a live collector and the monitor token by
// which its death is recognized. The token changes on every boot, so a
// stale death notice from a replaced incarnation cannot evict the new
// one.
type handle struct {
	node        types.PeerID
	token       uuid.UUID
	conn        *protocol.Conn
	demonitored atomic.Bool
}

func newHandle(node types.PeerID, conn *protocol.Conn) *handle {
	return &handle{node: node, token: uuid.New(), conn: conn}
}

// demonitor suppresses the death notification for a handle that is
// being retired deliberately.
func (h *handle) demonitor() {
	h.demonitored.Store(true)
}
