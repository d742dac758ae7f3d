package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/doghair/pkg/events"
	"github.com/cuemby/doghair/pkg/metrics"
	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/transfer"
	"github.com/cuemby/doghair/pkg/types"
)

// startPull opens a pull cycle: create the timestamped repository,
// snapshot the roster size, and ask every collector to announce its
// sample files.
func (c *Coordinator) startPull() {
	if c.collecting {
		c.logger.Error().Msg("collector is working now")
		metrics.CommandsTotal.WithLabelValues(protocol.CommandPull, "rejected").Inc()
		return
	}
	if len(c.collectors) == 0 {
		c.logger.Error().Msg("there are no collectors at all")
		metrics.CommandsTotal.WithLabelValues(protocol.CommandPull, "rejected").Inc()
		return
	}

	now := time.Now()
	name := fmt.Sprintf("doghair_%d_%d_%d_%d_%d_%d",
		now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute(), now.Second())
	repo := filepath.Join(c.cfg.Home, name)
	if err := os.MkdirAll(repo, 0755); err != nil {
		c.logger.Error().Err(err).Str("repo", repo).Msg("failed to create repository")
		metrics.CommandsTotal.WithLabelValues(protocol.CommandPull, "error").Inc()
		return
	}

	c.repo = repo
	c.transferred = 0
	// Completion compares against the roster size at pull issuance, so
	// a reboot shrinking the roster mid-cycle cannot fire the
	// completion log early.
	c.pullExpect = len(c.collectors)
	c.pullCycle = &types.PullCycle{
		ID:        uuid.NewString(),
		Repo:      repo,
		StartedAt: now,
		Expected:  c.pullExpect,
	}
	c.pullTimer = metrics.NewTimer()
	if err := c.ledger.CreatePullCycle(c.pullCycle); err != nil {
		c.logger.Error().Err(err).Msg("failed to record pull cycle")
	}

	for _, node := range c.rosterNodes() {
		h := c.collectors[node]
		if err := h.conn.Send(protocol.FramePull, protocol.Pull{Coordinator: c.hostname}); err != nil {
			c.logger.Error().Err(err).Str("node", string(node)).Msg("failed to send pull")
		}
	}

	metrics.PullCyclesTotal.Inc()
	metrics.CommandsTotal.WithLabelValues(protocol.CommandPull, "ok").Inc()
	c.broker.Publish(events.Event{Type: events.EventPullStarted, Cycle: c.pullCycle.ID, Detail: repo})
	c.logger.Info().Str("repo", repo).Int("collectors", c.pullExpect).Msg("pull cycle started")
}

// handlePullAck sets up the transfer of one announced file: open a
// fresh ephemeral-port listener, spawn the receiver, and only then tell
// the peer where to connect. The listener is accepting from the moment
// NewReceiver returns, so the peer can never dial a closed port.
func (c *Coordinator) handlePullAck(h *handle, ack protocol.PullAck) {
	if c.pullCycle == nil {
		c.logger.Warn().
			Str("node", string(h.node)).
			Str("file", ack.Filename).
			Msg("pull_ack outside a pull cycle, ignoring")
		return
	}

	recv, err := transfer.NewReceiver(c.repo, ack.Filename)
	if err != nil {
		c.logger.Error().Err(err).Str("file", ack.Filename).Msg("failed to open transfer listener")
		metrics.TransferFailuresTotal.Inc()
		return
	}

	node := h.node
	conn := h.conn
	filename := ack.Filename
	port := recv.Port()
	settle, accept := c.timings.settle, c.timings.accept
	logger := c.logger

	// Receiver task: one connection, one file.
	go func() {
		written, err := recv.Run(accept)
		if err != nil {
			logger.Error().Err(err).
				Str("node", string(node)).
				Str("file", filename).
				Msg("transfer failed")
			metrics.TransferFailuresTotal.Inc()
			return
		}
		c.post(msgRetrieved{node: node, filename: filename, bytes: written})
	}()

	// Handshake task: settle so the receiver task is scheduled, then
	// announce the listener.
	go func() {
		time.Sleep(settle)
		req := protocol.TransferReq{Filename: filename, Host: c.hostname, Port: port}
		if err := conn.Send(protocol.FrameTransferReq, req); err != nil {
			logger.Error().Err(err).
				Str("node", string(node)).
				Str("file", filename).
				Msg("failed to send trans_req")
		}
	}()
}

// handleRetrieved counts one fully received file and closes the cycle
// when the count of received files equals the roster size snapshotted
// at pull time. Files are counted, not collectors: which peer sent each
// file is not checked.
func (c *Coordinator) handleRetrieved(m msgRetrieved) {
	if c.pullCycle == nil {
		c.logger.Warn().Str("file", m.filename).Msg("retrieved outside a pull cycle, ignoring")
		return
	}

	c.transferred++
	metrics.FilesTransferredTotal.Inc()
	metrics.BytesTransferredTotal.Add(float64(m.bytes))

	receipt := &types.FileReceipt{
		CycleID:    c.pullCycle.ID,
		Node:       m.node,
		Filename:   m.filename,
		Bytes:      m.bytes,
		ReceivedAt: time.Now(),
	}
	if err := c.ledger.RecordFileReceipt(receipt); err != nil {
		c.logger.Error().Err(err).Msg("failed to record file receipt")
	}

	c.pullCycle.Transferred = c.transferred
	c.broker.Publish(events.Event{
		Type:  events.EventPullFile,
		Cycle: c.pullCycle.ID,
		Node:  m.node,
		File:  m.filename,
	})
	c.logger.Info().
		Str("node", string(m.node)).
		Str("file", m.filename).
		Int64("bytes", m.bytes).
		Msg("file retrieved")

	if c.transferred == c.pullExpect {
		c.pullCycle.Completed = true
		c.pullCycle.CompletedAt = time.Now()
		c.pullTimer.ObserveDuration(metrics.PullDuration)
		c.broker.Publish(events.Event{Type: events.EventPullCompleted, Cycle: c.pullCycle.ID, Detail: c.repo})
		c.logger.Info().Str("repo", c.repo).Msg("data on all nodes transfered")
	}

	if err := c.ledger.UpdatePullCycle(c.pullCycle); err != nil {
		c.logger.Error().Err(err).Msg("failed to update pull cycle")
	}
}
