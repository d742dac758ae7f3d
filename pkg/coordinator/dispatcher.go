package coordinator

import (
	"time"

	"github.com/cuemby/doghair/pkg/config"
	"github.com/cuemby/doghair/pkg/events"
	"github.com/cuemby/doghair/pkg/metrics"
	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/types"
)

// StartCollect submits a start_collect command. Fire-and-forget: guard
// failures surface as log lines, not errors.
func (c *Coordinator) StartCollect() {
	c.post(msgCommand{name: protocol.CommandStartCollect})
}

// StopCollect submits a stop_collect command.
func (c *Coordinator) StopCollect() {
	c.post(msgCommand{name: protocol.CommandStopCollect})
}

// Pull submits a pull command.
func (c *Coordinator) Pull() {
	c.post(msgCommand{name: protocol.CommandPull})
}

// Status returns a snapshot of the coordinator state. Safe from any
// goroutine: the report is assembled by the state core.
func (c *Coordinator) Status() types.StatusReport {
	reply := make(chan types.StatusReport, 1)
	c.post(msgStatus{reply: reply})
	select {
	case report := <-reply:
		return report
	case <-time.After(5 * time.Second):
		return types.StatusReport{StartClctTime: types.TimeUndefined, EndClctTime: types.TimeUndefined}
	}
}

// Shutdown submits a shutdown command and returns a channel closed once
// the peers have drained and the roster is retired.
func (c *Coordinator) Shutdown() <-chan struct{} {
	done := make(chan struct{})
	c.post(msgShutdown{done: done})
	return done
}

// handleCommand applies the guard/effect pair for one operator command.
func (c *Coordinator) handleCommand(m msgCommand) {
	switch m.name {
	case protocol.CommandStartCollect:
		c.startCollect()
	case protocol.CommandStopCollect:
		c.stopCollect()
	case protocol.CommandPull:
		c.startPull()
	default:
		c.logger.Warn().Str("command", m.name).Msg("unknown command")
	}
}

func (c *Coordinator) startCollect() {
	if len(c.collectors) == 0 {
		c.logger.Error().Msg("there are no collectors at all")
		metrics.CommandsTotal.WithLabelValues(protocol.CommandStartCollect, "rejected").Inc()
		return
	}
	if c.collecting {
		c.logger.Error().Msg("collecting is going")
		metrics.CommandsTotal.WithLabelValues(protocol.CommandStartCollect, "rejected").Inc()
		return
	}

	c.collecting = true
	c.startClctTime = c.now()
	c.endClctTime = types.TimeUndefined

	for _, node := range c.rosterNodes() {
		h := c.collectors[node]
		if err := h.conn.Send(protocol.FrameStartCollect, nil); err != nil {
			c.logger.Error().Err(err).Str("node", string(node)).Msg("failed to send start")
		}
	}

	metrics.Collecting.Set(1)
	metrics.CommandsTotal.WithLabelValues(protocol.CommandStartCollect, "ok").Inc()
	c.broker.Publish(events.Event{Type: events.EventCollectStarted})
	c.logger.Info().Int("collectors", len(c.collectors)).Msg("collection started on all nodes")
}

func (c *Coordinator) stopCollect() {
	if len(c.collectors) == 0 {
		c.logger.Error().Msg("there are no collectors at all")
		metrics.CommandsTotal.WithLabelValues(protocol.CommandStopCollect, "rejected").Inc()
		return
	}
	if !c.collecting {
		c.logger.Error().Msg("collecting is already stopped")
		metrics.CommandsTotal.WithLabelValues(protocol.CommandStopCollect, "rejected").Inc()
		return
	}

	c.collecting = false
	c.endClctTime = c.now()

	// Stagger the stop fan-out to avoid racing sample writes on the
	// remote side.
	conns := c.rosterConns()
	stagger := c.timings.stagger
	go func() {
		for _, entry := range conns {
			if err := entry.conn.Send(protocol.FrameStopCollect, nil); err != nil {
				c.logger.Error().Err(err).Str("node", string(entry.node)).Msg("failed to send stop")
			}
			time.Sleep(stagger)
		}
	}()

	metrics.Collecting.Set(0)
	metrics.CommandsTotal.WithLabelValues(protocol.CommandStopCollect, "ok").Inc()
	c.broker.Publish(events.Event{Type: events.EventCollectStopped})
	c.logger.Info().Msg("collection stopped on all nodes")
}

func (c *Coordinator) handleStatus(m msgStatus) {
	report := types.StatusReport{
		Collectors:    c.rosterNodes(),
		Collecting:    c.collecting,
		StartClctTime: c.startClctTime,
		EndClctTime:   c.endClctTime,
		Config:        config.InitConfig(),
	}
	if cycle, err := c.ledger.LastPullCycle(); err == nil {
		report.LastCycle = cycle
	}

	c.logger.Info().
		Interface("collectors", report.Collectors).
		Bool("collecting", report.Collecting).
		Str("start_clct_time", report.StartClctTime).
		Str("end_clct_time", report.EndClctTime).
		Int("interval", report.Config.Interval).
		Int("topn", report.Config.TopN).
		Bool("smp", report.Config.SMP).
		Msg("status")
	metrics.CommandsTotal.WithLabelValues(protocol.CommandStatus, "ok").Inc()

	m.reply <- report
}

// handleShutdown retires the roster and drains the peers: demonitor
// every handle, quit staggered, wait for the peers to finalize, then
// best-effort unload.
func (c *Coordinator) handleShutdown(m msgShutdown) {
	if c.retired {
		c.logger.Warn().Msg("coordinator is already retired")
		close(m.done)
		return
	}

	c.retired = true
	c.collecting = false
	handles := make([]*handle, 0, len(c.collectors))
	for _, node := range c.rosterNodes() {
		handles = append(handles, c.collectors[node])
	}
	c.collectors = make(map[types.PeerID]*handle)
	metrics.CollectorsTotal.Set(0)
	metrics.Collecting.Set(0)
	metrics.CommandsTotal.WithLabelValues(protocol.CommandShutdown, "ok").Inc()
	c.broker.Publish(events.Event{Type: events.EventCollectorRetired})

	stagger, drain := c.timings.stagger, c.timings.drain
	go func() {
		for _, h := range handles {
			h.demonitor()
		}
		for _, h := range handles {
			if err := h.conn.Send(protocol.FrameQuit, nil); err != nil {
				c.logger.Debug().Err(err).Str("node", string(h.node)).Msg("quit send failed")
			}
			time.Sleep(stagger)
		}

		// Let the peers drain before pulling their code out from
		// under them.
		time.Sleep(drain)

		for _, h := range handles {
			if err := h.conn.Send(protocol.FrameUnload, nil); err != nil {
				c.logger.Debug().Err(err).Str("node", string(h.node)).Msg("unload send failed")
			}
			h.conn.Close()
		}

		c.post(msgShutdownDone{done: m.done})
	}()
}

func (c *Coordinator) handleShutdownDone(m msgShutdownDone) {
	c.logger.Info().Msg("coordinator shut down")
	metrics.SetUnhealthy("coordinator", "stopped")
	c.stopped = true
	close(m.done)
}

type rosterConn struct {
	node types.PeerID
	conn *protocol.Conn
}

// rosterConns snapshots the live connections in stable order for use by
// staggered fan-out tasks outside the core goroutine.
func (c *Coordinator) rosterConns() []rosterConn {
	conns := make([]rosterConn, 0, len(c.collectors))
	for _, node := range c.rosterNodes() {
		conns = append(conns, rosterConn{node: node, conn: c.collectors[node].conn})
	}
	return conns
}
