package coordinator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/doghair/pkg/config"
	"github.com/cuemby/doghair/pkg/events"
	"github.com/cuemby/doghair/pkg/log"
	"github.com/cuemby/doghair/pkg/mesh"
	"github.com/cuemby/doghair/pkg/metrics"
	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/storage"
	"github.com/cuemby/doghair/pkg/types"
)

// Registry is the coordinator's view of the cluster mesh service: the
// meshed flag plus the registered collector nodes.
type Registry interface {
	Meshed(ctx context.Context) (bool, error)
	Peers(ctx context.Context) ([]types.PeerAddr, error)
	Lookup(ctx context.Context, node types.PeerID) (string, error)
}

// timeFormat renders the human-readable collection timestamps.
const timeFormat = "2006-01-02 15:04:05"

// timings groups every delay the coordinator uses. Tests shorten them;
// production uses defaultTimings.
type timings struct {
	startupDelay time.Duration // between startup chain steps
	probeDelay   time.Duration // between mesh probe attempts
	dialTimeout  time.Duration // control connection dial
	ackTimeout   time.Duration // boot and reboot acknowledgements
	stagger      time.Duration // between per-peer sends in a fan-out
	settle       time.Duration // before start after reboot, before trans_req
	drain        time.Duration // after quit fan-out, before unload
	accept       time.Duration // per-file transfer accept
}

func defaultTimings() timings {
	return timings{
		startupDelay: 300 * time.Millisecond,
		probeDelay:   mesh.ProbeRetryDelay,
		dialTimeout:  5 * time.Second,
		ackTimeout:   5 * time.Second,
		stagger:      100 * time.Millisecond,
		settle:       500 * time.Millisecond,
		drain:        3 * time.Second,
		accept:       5 * time.Second,
	}
}

// Config holds configuration for creating a Coordinator
type Config struct {
	Version  string
	Agent    *config.Config
	Registry Registry
	Ledger   storage.Ledger
	Broker   *events.Broker

	// Hostname overrides the coordinator's reachable hostname announced
	// in transfer requests. Defaults to os.Hostname.
	Hostname string
}

// Coordinator drives the cluster-wide sampling run: it boots one
// collector per peer node, fans lifecycle commands out to them,
// supervises them for crashes, and pulls their sample files home.
//
// All mutable state lives in the Run loop's goroutine. Every external
// command, peer reply, death notification, and timer continuation is a
// message posted into one mailbox; handlers never block on network or
// disk beyond short bounded sleeps, offloading the rest to ephemeral
// goroutines that post their results back.
type Coordinator struct {
	version  string
	cfg      *config.Config
	registry Registry
	ledger   storage.Ledger
	broker   *events.Broker
	logger   zerolog.Logger
	hostname string
	timings  timings

	mailbox chan message

	// State record. Only the Run loop touches these.
	collectors    map[types.PeerID]*handle
	collecting    bool
	startClctTime string
	endClctTime   string
	repo          string
	transferred   int
	pullExpect    int
	pullCycle     *types.PullCycle
	pullTimer     *metrics.Timer
	retired       bool
	distributed   bool

	fatalErr error
	stopped  bool
}

// NewCoordinator creates a new Coordinator instance
func NewCoordinator(cfg *Config) (*Coordinator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}

	hostname := cfg.Hostname
	if hostname == "" {
		var err error
		hostname, err = os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to determine hostname: %w", err)
		}
	}

	broker := cfg.Broker
	if broker == nil {
		broker = events.NewBroker()
	}

	return &Coordinator{
		version:       cfg.Version,
		cfg:           cfg.Agent,
		registry:      cfg.Registry,
		ledger:        cfg.Ledger,
		broker:        broker,
		logger:        log.WithComponent("coordinator"),
		hostname:      hostname,
		timings:       defaultTimings(),
		mailbox:       make(chan message, 256),
		collectors:    make(map[types.PeerID]*handle),
		startClctTime: types.TimeUndefined,
		endClctTime:   types.TimeUndefined,
	}, nil
}

// EventBroker returns the coordinator's event broker
func (c *Coordinator) EventBroker() *events.Broker {
	return c.broker
}

// Run processes the serialized command stream until shutdown completes,
// the context is cancelled, or a fatal startup error occurs.
func (c *Coordinator) Run(ctx context.Context) error {
	metrics.SetHealthy("coordinator", "starting")
	c.post(msgStartup{step: stepInit})

	for {
		select {
		case <-ctx.Done():
			c.abandon("context cancelled")
			return ctx.Err()
		case m := <-c.mailbox:
			c.handle(ctx, m)
			if c.fatalErr != nil {
				c.abandon(c.fatalErr.Error())
				return c.fatalErr
			}
			if c.stopped {
				return nil
			}
		}
	}
}

// handle dispatches one mailbox message. Runs only on the Run goroutine.
func (c *Coordinator) handle(ctx context.Context, m message) {
	switch m := m.(type) {
	case msgStartup:
		c.handleStartup(ctx, m)
	case msgMeshResult:
		c.handleMeshResult(m)
	case msgDistributed:
		c.handleDistributed()
	case msgInitResult:
		c.handleInitResult(m)
	case msgCommand:
		c.handleCommand(m)
	case msgStatus:
		c.handleStatus(m)
	case msgShutdown:
		c.handleShutdown(m)
	case msgShutdownDone:
		c.handleShutdownDone(m)
	case msgDeath:
		c.handleDeath(ctx, m)
	case msgRebirth:
		c.handleRebirth(m)
	case msgRebirthStart:
		c.handleRebirthStart(m)
	case msgPeerFrame:
		c.handlePeerFrame(m)
	case msgRetrieved:
		c.handleRetrieved(m)
	default:
		c.logger.Warn().Msgf("unknown message %T", m)
	}
}

// post enqueues a message. Drops with a log line when the mailbox is
// saturated rather than blocking a worker task forever.
func (c *Coordinator) post(m message) {
	select {
	case c.mailbox <- m:
	default:
		c.logger.Error().Msgf("mailbox full, dropping %T", m)
	}
}

// postAfter schedules a message as a timer-delivered continuation.
func (c *Coordinator) postAfter(d time.Duration, m message) {
	time.AfterFunc(d, func() { c.post(m) })
}

// abandon is the terminal-failure path: best-effort unload on every
// connected peer, no retries.
func (c *Coordinator) abandon(reason string) {
	if len(c.collectors) == 0 {
		return
	}
	c.logger.Warn().Str("reason", reason).Msg("unloading collectors on abnormal termination")
	for _, h := range c.collectors {
		h.demonitor()
		if err := h.conn.Send(protocol.FrameUnload, nil); err != nil {
			c.logger.Debug().Err(err).Str("node", string(h.node)).Msg("unload failed")
		}
		h.conn.Close()
	}
	c.collectors = make(map[types.PeerID]*handle)
	metrics.CollectorsTotal.Set(0)
}

// rosterNodes returns the roster's peer IDs in stable order.
func (c *Coordinator) rosterNodes() []types.PeerID {
	nodes := make([]types.PeerID, 0, len(c.collectors))
	for node := range c.collectors {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

// install adds a live collector to the roster and starts its monitor.
func (c *Coordinator) install(h *handle) {
	c.collectors[h.node] = h
	metrics.CollectorsTotal.Set(float64(len(c.collectors)))
	go c.monitor(h)
}

// monitor reads frames from one collector connection and posts them to
// the mailbox. Connection loss synthesizes the death notification,
// unless the handle was demonitored first.
func (c *Coordinator) monitor(h *handle) {
	for {
		frame, err := h.conn.Recv()
		if err != nil {
			if !h.demonitored.Load() {
				c.post(msgDeath{token: h.token, node: h.node, reason: err.Error()})
			}
			return
		}
		c.post(msgPeerFrame{node: h.node, token: h.token, frame: frame})
	}
}

// now returns the human-readable timestamp used for the collection
// time fields.
func (c *Coordinator) now() string {
	return time.Now().Format(timeFormat)
}

