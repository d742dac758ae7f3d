package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/doghair/pkg/log"
	"github.com/cuemby/doghair/pkg/types"
)

// Registrar is the collector's write side of the mesh registry.
type Registrar interface {
	RegisterNode(ctx context.Context, node types.PeerID, addr string) error
	Deregister(ctx context.Context, node types.PeerID) error
}

// Config holds collector configuration
type Config struct {
	NodeID     types.PeerID
	ListenAddr string
	DataDir    string
	Version    string
	Registrar  Registrar // optional; nil skips mesh registration
}

// Collector is the per-node sampling worker. It registers its control
// address in the mesh registry, serves the coordinator's control
// connection, samples the local host on the configured cadence, and
// streams its sample files to the coordinator on pull.
type Collector struct {
	nodeID     types.PeerID
	listenAddr string
	dataDir    string
	version    string
	registrar  Registrar
	logger     zerolog.Logger

	sampler *Sampler

	mu       sync.Mutex
	listener net.Listener

	quitCh   chan struct{}
	quitOnce sync.Once
}

// NewCollector creates a new collector instance
func NewCollector(cfg *Config) (*Collector, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("node ID is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Collector{
		nodeID:     cfg.NodeID,
		listenAddr: cfg.ListenAddr,
		dataDir:    cfg.DataDir,
		version:    cfg.Version,
		registrar:  cfg.Registrar,
		logger:     log.WithNode(string(cfg.NodeID)),
		sampler:    NewSampler(cfg.NodeID, cfg.DataDir),
		quitCh:     make(chan struct{}),
	}, nil
}

// Addr returns the bound control address, or "" before Serve.
func (c *Collector) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Serve registers the node, then accepts and serves coordinator control
// connections until a quit frame arrives or ctx is cancelled.
func (c *Collector) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", c.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on control address: %w", err)
	}
	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()

	addr := listener.Addr().String()
	if c.registrar != nil {
		if err := c.registrar.RegisterNode(ctx, c.nodeID, addr); err != nil {
			listener.Close()
			return fmt.Errorf("failed to register node: %w", err)
		}
	}
	c.logger.Info().Str("addr", addr).Msg("collector listening")

	go func() {
		for {
			nc, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					c.logger.Error().Err(err).Msg("control accept failed")
				}
				return
			}
			go c.handleConn(nc)
		}
	}()

	select {
	case <-ctx.Done():
	case <-c.quitCh:
	}

	listener.Close()
	c.sampler.StopCollect()
	if c.registrar != nil {
		if err := c.registrar.Deregister(context.Background(), c.nodeID); err != nil {
			c.logger.Debug().Err(err).Msg("deregister failed")
		}
	}
	c.logger.Info().Msg("collector stopped")
	return nil
}

// quit exits the serve loop cleanly. Idempotent: a second quit frame
// after the first is a no-op.
func (c *Collector) quit() {
	c.quitOnce.Do(func() { close(c.quitCh) })
}
