package collector

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/transfer"
)

// transferWait bounds how long an announced file waits for the
// coordinator's trans_req before the announcement is abandoned.
const transferWait = 30 * time.Second

// handleConn serves one coordinator control connection. The connection
// is the coordinator's monitor: when this collector dies, the broken
// connection is its death notice.
func (c *Collector) handleConn(nc net.Conn) {
	conn := protocol.NewConn(nc)
	defer conn.Close()

	pending := newTransferTable()

	for {
		frame, err := conn.Recv()
		if err != nil {
			// Coordinator gone; keep serving so a new coordinator
			// incarnation (or a reboot) can reconnect.
			c.logger.Debug().Err(err).Msg("control connection closed")
			return
		}

		switch frame.Type {
		case protocol.FrameHello:
			c.handleHello(conn, frame)
		case protocol.FrameInit:
			c.handleInit(conn, frame)
		case protocol.FrameStartCollect:
			if err := c.sampler.StartCollect(); err != nil {
				c.logger.Error().Err(err).Msg("failed to start collecting")
			}
		case protocol.FrameStopCollect:
			c.sampler.StopCollect()
		case protocol.FramePull:
			var pull protocol.Pull
			if err := frame.Decode(&pull); err != nil {
				c.logger.Error().Err(err).Msg("malformed pull")
				continue
			}
			go c.pushFiles(conn, pending)
		case protocol.FrameTransferReq:
			var req protocol.TransferReq
			if err := frame.Decode(&req); err != nil {
				c.logger.Error().Err(err).Msg("malformed trans_req")
				continue
			}
			pending.deliver(req)
		case protocol.FrameQuit:
			c.logger.Info().Msg("quit received")
			c.quit()
			return
		case protocol.FrameUnload:
			c.logger.Info().Msg("unload received")
			c.sampler.Unload()
		default:
			c.logger.Warn().Str("frame", protocol.TypeName(frame.Type)).Msg("unknown message from coordinator")
		}
	}
}

func (c *Collector) handleHello(conn *protocol.Conn, frame protocol.Frame) {
	var hello protocol.Hello
	if err := frame.Decode(&hello); err != nil {
		c.logger.Error().Err(err).Msg("malformed hello")
		return
	}
	ack := protocol.HelloAck{Node: c.nodeID, Version: c.version, OK: true}
	if err := conn.Send(protocol.FrameHelloAck, ack); err != nil {
		c.logger.Error().Err(err).Msg("failed to send hello ack")
	}
}

func (c *Collector) handleInit(conn *protocol.Conn, frame protocol.Frame) {
	var init protocol.Init
	ack := protocol.InitAck{Node: c.nodeID, OK: true}

	if err := frame.Decode(&init); err != nil {
		ack.OK = false
		ack.Error = err.Error()
	} else {
		ack.Mode = init.Mode
		if err := c.sampler.Configure(init.Config); err != nil {
			ack.OK = false
			ack.Error = err.Error()
		} else if init.Mode == protocol.ModeReboot {
			leftover := c.sampler.Recover()
			c.logger.Info().Int("leftover_files", leftover).Msg("rebooted, local sample state recovered")
		}
	}

	if err := conn.Send(protocol.FrameInitAck, ack); err != nil {
		c.logger.Error().Err(err).Msg("failed to send init ack")
	}
}

// pushFiles announces every completed sample file and streams each one
// once the coordinator replies with its receiver address. Files are
// independent: each runs its own announce/wait/stream exchange.
func (c *Collector) pushFiles(conn *protocol.Conn, pending *transferTable) {
	files := c.sampler.CompletedFiles()
	if len(files) == 0 {
		c.logger.Info().Msg("no sample files to pull")
		return
	}

	for _, path := range files {
		name := filepath.Base(path)
		info, err := os.Stat(path)
		if err != nil {
			c.logger.Error().Err(err).Str("file", name).Msg("failed to stat sample file")
			continue
		}

		ch := pending.register(name)
		go func(path, name string, size int64, ch chan protocol.TransferReq) {
			defer pending.unregister(name)

			ack := protocol.PullAck{Node: c.nodeID, Filename: name, Size: size}
			if err := conn.Send(protocol.FramePullAck, ack); err != nil {
				c.logger.Error().Err(err).Str("file", name).Msg("failed to announce sample file")
				return
			}

			select {
			case req := <-ch:
				if err := transfer.Send(req.Host, req.Port, path); err != nil {
					c.logger.Error().Err(err).Str("file", name).Msg("transfer failed")
					return
				}
				c.logger.Info().Str("file", name).Int64("bytes", size).Msg("sample file transferred")
			case <-time.After(transferWait):
				c.logger.Error().Str("file", name).Msg("no trans_req for announced file")
			}
		}(path, name, info.Size(), ch)
	}
}

// transferTable matches trans_req frames to announced files by name.
type transferTable struct {
	mu      sync.Mutex
	waiters map[string]chan protocol.TransferReq
}

func newTransferTable() *transferTable {
	return &transferTable{waiters: make(map[string]chan protocol.TransferReq)}
}

func (t *transferTable) register(filename string) chan protocol.TransferReq {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan protocol.TransferReq, 1)
	t.waiters[filename] = ch
	return ch
}

func (t *transferTable) unregister(filename string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.waiters, filename)
}

func (t *transferTable) deliver(req protocol.TransferReq) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.waiters[req.Filename]; ok {
		select {
		case ch <- req:
		default:
		}
	}
}
