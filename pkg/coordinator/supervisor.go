package coordinator

import (
	"context"

	"github.com/cuemby/doghair/pkg/events"
	"github.com/cuemby/doghair/pkg/metrics"
	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/types"
)

// handleDeath reacts to the loss of one collector's monitor connection:
// remove the roster entry tentatively, then try to reboot the collector
// on its home node.
func (c *Coordinator) handleDeath(ctx context.Context, m msgDeath) {
	if c.retired {
		c.logger.Debug().Str("node", string(m.node)).Msg("death notice after retirement, ignoring")
		return
	}

	h, ok := c.collectors[m.node]
	if !ok || h.token != m.token {
		c.logger.Debug().
			Str("node", string(m.node)).
			Str("token", m.token.String()).
			Msg("death notice for unknown collector, ignoring")
		return
	}

	delete(c.collectors, m.node)
	metrics.CollectorsTotal.Set(float64(len(c.collectors)))
	c.logger.Warn().
		Str("node", string(m.node)).
		Str("reason", m.reason).
		Msg("collector died")
	c.broker.Publish(events.Event{Type: events.EventCollectorLost, Node: m.node, Detail: m.reason})

	go c.rebirth(ctx, m.node)
}

// rebirth reboots a collector on its home node and reports the outcome.
// A reboot is tagged as such so the peer knows it may encounter stale
// local state.
func (c *Coordinator) rebirth(ctx context.Context, node types.PeerID) {
	addr, err := c.registry.Lookup(ctx, node)
	if err != nil {
		c.post(msgRebirth{node: node, ok: false, reason: err.Error()})
		return
	}

	h, err := c.bootPeer(node, addr, protocol.ModeReboot)
	if err != nil {
		c.post(msgRebirth{node: node, ok: false, reason: err.Error()})
		return
	}
	c.post(msgRebirth{node: node, handle: h, ok: true})
}

func (c *Coordinator) handleRebirth(m msgRebirth) {
	if c.retired {
		if m.handle != nil {
			m.handle.conn.Close()
		}
		return
	}

	if !m.ok {
		// Declared policy for an unavailable peer: the coordinator
		// shrinks rather than loops.
		c.logger.Warn().
			Str("node", string(m.node)).
			Str("reason", m.reason).
			Msg("collector goes home")
		metrics.CollectorsLostTotal.Inc()
		return
	}

	if _, exists := c.collectors[m.node]; exists {
		// A competing boot won the slot; drop the spare connection.
		m.handle.conn.Close()
		return
	}

	c.install(m.handle)
	metrics.RebirthsTotal.Inc()
	c.logger.Info().Str("node", string(m.node)).Msg("collector rebirth")
	c.broker.Publish(events.Event{Type: events.EventCollectorRebirth, Node: m.node})

	if c.collecting {
		// Rejoin the active run after a short settle, and only if the
		// run is still active when the settle elapses.
		c.postAfter(c.timings.settle, msgRebirthStart{node: m.node})
	}
}

func (c *Coordinator) handleRebirthStart(m msgRebirthStart) {
	if !c.collecting {
		return
	}
	h, ok := c.collectors[m.node]
	if !ok {
		return
	}
	if err := h.conn.Send(protocol.FrameStartCollect, nil); err != nil {
		c.logger.Error().Err(err).Str("node", string(m.node)).Msg("failed to restart collection after rebirth")
		return
	}
	c.logger.Info().Str("node", string(m.node)).Msg("collection restarted after rebirth")
}

// handlePeerFrame routes a frame from a live collector. Stale frames
// from replaced incarnations are dropped by token.
func (c *Coordinator) handlePeerFrame(m msgPeerFrame) {
	h, ok := c.collectors[m.node]
	if !ok || h.token != m.token {
		c.logger.Debug().
			Str("node", string(m.node)).
			Str("frame", protocol.TypeName(m.frame.Type)).
			Msg("frame from unknown collector, ignoring")
		return
	}

	switch m.frame.Type {
	case protocol.FramePullAck:
		var ack protocol.PullAck
		if err := m.frame.Decode(&ack); err != nil {
			c.logger.Error().Err(err).Str("node", string(m.node)).Msg("malformed pull_ack")
			return
		}
		c.handlePullAck(h, ack)
	default:
		c.logger.Warn().
			Str("node", string(m.node)).
			Str("frame", protocol.TypeName(m.frame.Type)).
			Msg("unknown message from collector")
	}
}
