package mesh

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cuemby/doghair/pkg/types"
)

// DefaultPrefix is the etcd key prefix under which the mesh service
// publishes the cluster flag and collectors register themselves.
const DefaultPrefix = "/doghair"

// DefaultLeaseTTL is the registration lease in seconds; a dead
// collector node ages out of the registry within this bound.
const DefaultLeaseTTL = 10

// EtcdRegistry reads the cluster mesh flag and the registered collector
// nodes from etcd, and registers collector nodes under a lease.
type EtcdRegistry struct {
	cli    *clientv3.Client
	prefix string
}

// NewEtcdRegistry connects to the mesh service's etcd endpoints.
func NewEtcdRegistry(endpoints []string, prefix string) (*EtcdRegistry, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &EtcdRegistry{cli: cli, prefix: prefix}, nil
}

// Meshed reports whether the mesh service has published the
// fully-connected flag.
func (r *EtcdRegistry) Meshed(ctx context.Context) (bool, error) {
	resp, err := r.cli.Get(ctx, r.prefix+"/mesh/ready")
	if err != nil {
		return false, fmt.Errorf("failed to read mesh flag: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return false, nil
	}
	switch strings.ToLower(string(resp.Kvs[0].Value)) {
	case "1", "true", "yes", "on":
		return true, nil
	}
	return false, nil
}

// Peers lists the currently registered collector nodes and their control
// addresses.
func (r *EtcdRegistry) Peers(ctx context.Context) ([]types.PeerAddr, error) {
	key := r.prefix + "/nodes/"
	resp, err := r.cli.Get(ctx, key, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	peers := make([]types.PeerAddr, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		node := strings.TrimPrefix(string(kv.Key), key)
		if node == "" {
			continue
		}
		peers = append(peers, types.PeerAddr{Node: types.PeerID(node), Addr: string(kv.Value)})
	}
	return peers, nil
}

// Lookup returns the control address of one registered node.
func (r *EtcdRegistry) Lookup(ctx context.Context, node types.PeerID) (string, error) {
	resp, err := r.cli.Get(ctx, r.prefix+"/nodes/"+string(node))
	if err != nil {
		return "", fmt.Errorf("failed to look up node %s: %w", node, err)
	}
	if len(resp.Kvs) == 0 {
		return "", fmt.Errorf("node %s is not registered", node)
	}
	return string(resp.Kvs[0].Value), nil
}

// Register registers a collector node's control address under a lease
// and keeps the lease alive until ctx is cancelled.
func (r *EtcdRegistry) Register(ctx context.Context, node types.PeerID, addr string, ttl int64) (clientv3.LeaseID, error) {
	lease, err := r.cli.Grant(ctx, ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to grant lease: %w", err)
	}
	key := r.prefix + "/nodes/" + string(node)
	if _, err := r.cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, fmt.Errorf("failed to register node: %w", err)
	}

	keepAlive, err := r.cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to keep lease alive: %w", err)
	}
	go func() {
		for range keepAlive {
			// Drain keep-alive responses until the lease or context ends
		}
	}()

	return lease.ID, nil
}

// RegisterNode registers a collector node with the default lease.
func (r *EtcdRegistry) RegisterNode(ctx context.Context, node types.PeerID, addr string) error {
	_, err := r.Register(ctx, node, addr, DefaultLeaseTTL)
	return err
}

// Deregister removes a collector node's registration.
func (r *EtcdRegistry) Deregister(ctx context.Context, node types.PeerID) error {
	_, err := r.cli.Delete(ctx, r.prefix+"/nodes/"+string(node))
	return err
}

// Close closes the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.cli.Close()
}
