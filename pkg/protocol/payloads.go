package protocol

import (
	"github.com/cuemby/doghair/pkg/types"
)

// Boot modes carried by Init frames. A reboot tells the collector it may
// encounter stale local state from a previous incarnation.
const (
	ModeBoot   = "boot"
	ModeReboot = "reboot"
)

// Hello is the coordinator's version handshake request.
type Hello struct {
	Version string `cbor:"version"`
}

// HelloAck is the collector's version handshake reply. OK is false when
// the collector cannot serve this coordinator build.
type HelloAck struct {
	Node    types.PeerID `cbor:"node"`
	Version string       `cbor:"version"`
	OK      bool         `cbor:"ok"`
	Error   string       `cbor:"error,omitempty"`
}

// Init boots or reboots the collector worker.
type Init struct {
	Mode        string              `cbor:"mode"` // ModeBoot or ModeReboot
	Coordinator string              `cbor:"coordinator"`
	Config      types.CollectConfig `cbor:"config"`
}

// InitAck is the collector's boot/reboot acknowledgement.
type InitAck struct {
	Node  types.PeerID `cbor:"node"`
	Mode  string       `cbor:"mode"`
	OK    bool         `cbor:"ok"`
	Error string       `cbor:"error,omitempty"`
}

// Pull asks the collector to announce its accumulated sample files to
// the named coordinator.
type Pull struct {
	Coordinator string `cbor:"coordinator"`
}

// PullAck announces one sample file ready for transfer.
type PullAck struct {
	Node     types.PeerID `cbor:"node"`
	Filename string       `cbor:"filename"`
	Size     int64        `cbor:"size"`
}

// TransferReq tells the collector where to stream one announced file.
// The listener at Host:Port is accepting before this frame is sent.
type TransferReq struct {
	Filename string `cbor:"filename"`
	Host     string `cbor:"host"`
	Port     int    `cbor:"port"`
}

// Operator commands carried by Command frames on the admin channel.
const (
	CommandStartCollect = "start_collect"
	CommandStopCollect  = "stop_collect"
	CommandStatus       = "status"
	CommandPull         = "pull"
	CommandShutdown     = "shutdown"
)

// Command is one operator command.
type Command struct {
	Name string `cbor:"name"`
}

// CommandAck acknowledges receipt of an operator command. Commands are
// fire-and-forget; OK only means the command was admitted to the
// coordinator's queue, not that its guard passed.
type CommandAck struct {
	OK      bool   `cbor:"ok"`
	Message string `cbor:"message,omitempty"`
}
