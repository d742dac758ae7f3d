package coordinator

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/doghair/pkg/config"
	"github.com/cuemby/doghair/pkg/events"
	"github.com/cuemby/doghair/pkg/log"
	"github.com/cuemby/doghair/pkg/protocol"
	"github.com/cuemby/doghair/pkg/storage"
	"github.com/cuemby/doghair/pkg/types"
)

func init() {
	log.Init(log.Config{Level: "error", JSONOutput: true})
}

// testTimings shrinks every production delay so the full lifecycle runs
// in milliseconds.
func testTimings() timings {
	return timings{
		startupDelay: 5 * time.Millisecond,
		probeDelay:   20 * time.Millisecond,
		dialTimeout:  2 * time.Second,
		ackTimeout:   700 * time.Millisecond,
		stagger:      5 * time.Millisecond,
		settle:       50 * time.Millisecond,
		drain:        50 * time.Millisecond,
		accept:       2 * time.Second,
	}
}

// fakeRegistry is an in-memory stand-in for the etcd mesh registry.
type fakeRegistry struct {
	mu     sync.Mutex
	meshed bool
	peers  map[types.PeerID]string
}

func newFakeRegistry(meshed bool) *fakeRegistry {
	return &fakeRegistry{meshed: meshed, peers: make(map[types.PeerID]string)}
}

func (r *fakeRegistry) add(node types.PeerID, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[node] = addr
}

func (r *fakeRegistry) Meshed(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meshed, nil
}

func (r *fakeRegistry) Peers(ctx context.Context) ([]types.PeerAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]types.PeerAddr, 0, len(r.peers))
	for node, addr := range r.peers {
		peers = append(peers, types.PeerAddr{Node: node, Addr: addr})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Node < peers[j].Node })
	return peers, nil
}

func (r *fakeRegistry) Lookup(ctx context.Context, node types.PeerID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.peers[node]
	if !ok {
		return "", errors.New("node is not registered")
	}
	return addr, nil
}

// fakePeer is a scripted collector node for exercising the coordinator.
type fakePeer struct {
	t        *testing.T
	node     types.PeerID
	listener net.Listener

	refuseInit bool // reply ok=false to init
	silentInit bool // never reply to init (forces the ack timeout)
	noTransfer bool // announce files but never dial the receiver

	mu        sync.Mutex
	files     map[string][]byte
	conns     []net.Conn
	initModes []string
	started   int
	stopped   int
	quits     int
	unloads   int
}

func newFakePeer(t *testing.T, node types.PeerID, files map[string][]byte) *fakePeer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &fakePeer{t: t, node: node, listener: listener, files: files}
	if p.files == nil {
		p.files = make(map[string][]byte)
	}
	go p.acceptLoop()
	t.Cleanup(func() { listener.Close() })
	return p
}

func (p *fakePeer) addr() string {
	return p.listener.Addr().String()
}

func (p *fakePeer) acceptLoop() {
	for {
		nc, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, nc)
		p.mu.Unlock()
		go p.serve(nc)
	}
}

func (p *fakePeer) serve(nc net.Conn) {
	conn := protocol.NewConn(nc)
	for {
		frame, err := conn.Recv()
		if err != nil {
			return
		}

		switch frame.Type {
		case protocol.FrameHello:
			_ = conn.Send(protocol.FrameHelloAck, protocol.HelloAck{Node: p.node, Version: "test", OK: true})

		case protocol.FrameInit:
			var init protocol.Init
			_ = frame.Decode(&init)
			p.mu.Lock()
			p.initModes = append(p.initModes, init.Mode)
			silent, refuse := p.silentInit, p.refuseInit
			p.mu.Unlock()
			if silent {
				continue
			}
			ack := protocol.InitAck{Node: p.node, Mode: init.Mode, OK: !refuse}
			if refuse {
				ack.Error = "scripted refusal"
			}
			_ = conn.Send(protocol.FrameInitAck, ack)

		case protocol.FrameStartCollect:
			p.mu.Lock()
			p.started++
			p.mu.Unlock()

		case protocol.FrameStopCollect:
			p.mu.Lock()
			p.stopped++
			p.mu.Unlock()

		case protocol.FramePull:
			p.mu.Lock()
			files := make(map[string]int64, len(p.files))
			for name, data := range p.files {
				files[name] = int64(len(data))
			}
			p.mu.Unlock()
			for name, size := range files {
				_ = conn.Send(protocol.FramePullAck, protocol.PullAck{Node: p.node, Filename: name, Size: size})
			}

		case protocol.FrameTransferReq:
			var req protocol.TransferReq
			_ = frame.Decode(&req)
			if p.noTransfer {
				continue
			}
			go p.stream(req)

		case protocol.FrameQuit:
			p.mu.Lock()
			p.quits++
			p.mu.Unlock()

		case protocol.FrameUnload:
			p.mu.Lock()
			p.unloads++
			p.mu.Unlock()
		}
	}
}

func (p *fakePeer) stream(req protocol.TransferReq) {
	p.mu.Lock()
	data := p.files[req.Filename]
	p.mu.Unlock()

	nc, err := net.DialTimeout("tcp", net.JoinHostPort(req.Host, strconv.Itoa(req.Port)), 2*time.Second)
	if err != nil {
		return
	}
	defer nc.Close()
	_, _ = nc.Write(data)
}

// kill severs every live connection, triggering the coordinator's death
// notice, while the listener keeps accepting reboots.
func (p *fakePeer) kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, nc := range p.conns {
		nc.Close()
	}
	p.conns = nil
}

// stopAccepting closes the listener so reboot attempts fail.
func (p *fakePeer) stopAccepting() {
	p.listener.Close()
}

func (p *fakePeer) counts() (started, stopped, quits, unloads int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started, p.stopped, p.quits, p.unloads
}

func (p *fakePeer) modes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.initModes...)
}

// startCoordinator builds a coordinator with test timings against the
// given registry and runs it until the test ends.
func startCoordinator(t *testing.T, registry Registry) (*Coordinator, <-chan error) {
	t.Helper()

	ledger, err := storage.NewBoltLedger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	broker := events.NewBroker()
	t.Cleanup(broker.Close)

	coord, err := NewCoordinator(&Config{
		Version:  "test",
		Agent:    &config.Config{Home: t.TempDir()},
		Registry: registry,
		Ledger:   ledger,
		Broker:   broker,
		Hostname: "127.0.0.1",
	})
	require.NoError(t, err)
	coord.timings = testTimings()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- coord.Run(ctx) }()
	t.Cleanup(cancel)

	return coord, errCh
}

// waitRoster polls the coordinator status until the roster has n
// entries.
func waitRoster(t *testing.T, coord *Coordinator, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(coord.Status().Collectors) == n
	}, 5*time.Second, 25*time.Millisecond, "roster never reached %d collectors", n)
}
