package coordinator

import (
	"context"
	"fmt"
	"net"

	"github.com/cuemby/doghair/pkg/config"
	"github.com/cuemby/doghair/pkg/events"
	"github.com/cuemby/doghair/pkg/mesh"
	"github.com/cuemby/doghair/pkg/metrics"
	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/types"
)

// handleStartup walks the startup chain: init → check_meshed →
// distribute_code → init_all, each step deferred by a short delay so
// the mailbox stays responsive to status queries during startup.
func (c *Coordinator) handleStartup(ctx context.Context, m msgStartup) {
	switch m.step {
	case stepInit:
		c.logger.Info().Str("version", c.version).Msg("coordinator starting")
		c.postAfter(c.timings.startupDelay, msgStartup{step: stepCheckMesh})

	case stepCheckMesh:
		go func() {
			err := mesh.WaitMeshed(ctx, c.registry, mesh.ProbeAttempts, c.timings.probeDelay)
			c.post(msgMeshResult{err: err})
		}()

	case stepDistribute:
		go c.distributeCode(ctx)

	case stepInitAll:
		c.initAll(ctx)

	default:
		c.logger.Warn().Str("step", m.step).Msg("unknown startup step")
	}
}

func (c *Coordinator) handleMeshResult(m msgMeshResult) {
	if m.err != nil {
		c.logger.Error().Err(m.err).Msg("cluster can not be meshed")
		metrics.SetUnhealthy("mesh", m.err.Error())
		c.fatalErr = m.err
		return
	}
	metrics.SetHealthy("mesh", "meshed")
	c.postAfter(c.timings.startupDelay, msgStartup{step: stepDistribute})
}

// distributeCode is the portable remainder of remote code loading: a
// per-peer version handshake. The collector binary is installed out of
// band; a peer running a different build is logged and skipped, never
// fatal for the batch. Runs exactly once per coordinator lifetime.
func (c *Coordinator) distributeCode(ctx context.Context) {
	peers, err := c.registry.Peers(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to list peers for distribution")
		c.post(msgDistributed{})
		return
	}

	for _, peer := range peers {
		if err := c.checkPeerVersion(peer); err != nil {
			c.logger.Error().Err(err).Str("node", string(peer.Node)).Msg("code distribution failed")
		}
	}

	c.post(msgDistributed{})
}

func (c *Coordinator) checkPeerVersion(peer types.PeerAddr) error {
	nc, err := net.DialTimeout("tcp", peer.Addr, c.timings.dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to reach peer: %w", err)
	}
	conn := protocol.NewConn(nc)
	defer conn.Close()

	if err := conn.Send(protocol.FrameHello, protocol.Hello{Version: c.version}); err != nil {
		return err
	}
	frame, err := conn.RecvTimeout(c.timings.ackTimeout)
	if err != nil {
		return fmt.Errorf("no hello reply: %w", err)
	}
	if frame.Type != protocol.FrameHelloAck {
		return fmt.Errorf("unexpected %s reply to hello", protocol.TypeName(frame.Type))
	}
	var ack protocol.HelloAck
	if err := frame.Decode(&ack); err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("peer refused coordinator: %s", ack.Error)
	}
	if ack.Version != c.version {
		c.logger.Warn().
			Str("node", string(peer.Node)).
			Str("peer_version", ack.Version).
			Str("coordinator_version", c.version).
			Msg("collector build differs from coordinator")
	}
	return nil
}

func (c *Coordinator) handleDistributed() {
	if c.distributed {
		return
	}
	c.distributed = true
	c.logger.Info().Msg("collector code distributed")
	c.postAfter(c.timings.startupDelay, msgStartup{step: stepInitAll})
}

// initAll boots one collector on every registered peer. Guard: the
// roster must be empty. Any per-peer failure or timeout is fatal for
// the whole init phase; the operator must restart.
func (c *Coordinator) initAll(ctx context.Context) {
	if len(c.collectors) != 0 {
		c.logger.Error().Msg("collectors are already initialized")
		return
	}

	go func() {
		peers, err := c.registry.Peers(ctx)
		if err != nil {
			c.post(msgInitResult{err: fmt.Errorf("failed to list peers: %w", err)})
			return
		}

		handles := make([]*handle, 0, len(peers))
		for _, peer := range peers {
			h, err := c.bootPeer(peer.Node, peer.Addr, protocol.ModeBoot)
			if err != nil {
				for _, booted := range handles {
					booted.conn.Close()
				}
				c.post(msgInitResult{err: fmt.Errorf("failed to boot collector on %s: %w", peer.Node, err)})
				return
			}
			handles = append(handles, h)
		}
		c.post(msgInitResult{handles: handles})
	}()
}

// bootPeer dials a peer's control address and runs the init exchange.
// The returned handle carries a fresh monitor token and the live
// connection; the caller installs it and starts the monitor.
func (c *Coordinator) bootPeer(node types.PeerID, addr, mode string) (*handle, error) {
	nc, err := net.DialTimeout("tcp", addr, c.timings.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn := protocol.NewConn(nc)

	init := protocol.Init{
		Mode:        mode,
		Coordinator: c.hostname,
		Config:      config.InitConfig(),
	}
	if err := conn.Send(protocol.FrameInit, init); err != nil {
		conn.Close()
		return nil, err
	}

	frame, err := conn.RecvTimeout(c.timings.ackTimeout)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("no %s acknowledgement: %w", mode, err)
	}
	if frame.Type != protocol.FrameInitAck {
		conn.Close()
		return nil, fmt.Errorf("unexpected %s reply to init", protocol.TypeName(frame.Type))
	}
	var ack protocol.InitAck
	if err := frame.Decode(&ack); err != nil {
		conn.Close()
		return nil, err
	}
	if !ack.OK {
		conn.Close()
		return nil, fmt.Errorf("collector refused %s: %s", mode, ack.Error)
	}

	return newHandle(node, conn), nil
}

func (c *Coordinator) handleInitResult(m msgInitResult) {
	if m.err != nil {
		c.logger.Error().Err(m.err).Msg("collector init failed")
		c.fatalErr = m.err
		return
	}

	for _, h := range m.handles {
		c.install(h)
		c.broker.Publish(events.Event{Type: events.EventCollectorBooted, Node: h.node})
	}

	metrics.SetHealthy("coordinator", "running")
	c.logger.Info().
		Int("collectors", len(c.collectors)).
		Msg("collectors initialized on all connected nodes")
}
