package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/doghair/pkg/client"
	"github.com/cuemby/doghair/pkg/types"
)

func TestAdmin_StatusRoundTrip(t *testing.T) {
	registry := newFakeRegistry(true)
	peer := newFakePeer(t, "n1", nil)
	registry.add(peer.node, peer.addr())

	coord, _ := startCoordinator(t, registry)
	waitRoster(t, coord, 1)

	admin := NewAdminServer(coord)
	require.NoError(t, admin.Start("127.0.0.1:0"))
	t.Cleanup(func() { admin.Stop() })

	cl, err := client.NewClient(admin.Addr())
	require.NoError(t, err)
	defer cl.Close()

	report, err := cl.Status()
	require.NoError(t, err)
	assert.Equal(t, []types.PeerID{"n1"}, report.Collectors)
	assert.False(t, report.Collecting)
	assert.Equal(t, types.TimeUndefined, report.StartClctTime)
}

func TestAdmin_CommandsAreFireAndForget(t *testing.T) {
	registry := newFakeRegistry(true)
	peer := newFakePeer(t, "n1", nil)
	registry.add(peer.node, peer.addr())

	coord, _ := startCoordinator(t, registry)
	waitRoster(t, coord, 1)

	admin := NewAdminServer(coord)
	require.NoError(t, admin.Start("127.0.0.1:0"))
	t.Cleanup(func() { admin.Stop() })

	cl, err := client.NewClient(admin.Addr())
	require.NoError(t, err)
	defer cl.Close()

	require.NoError(t, cl.StartCollect())
	require.Eventually(t, func() bool {
		return coord.Status().Collecting
	}, 2*time.Second, 10*time.Millisecond)

	// A guard violation still acks: the failure is a coordinator log
	// line, not a client error
	require.NoError(t, cl.StartCollect())

	require.NoError(t, cl.StopCollect())
	require.Eventually(t, func() bool {
		return !coord.Status().Collecting
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdmin_ShutdownCommand(t *testing.T) {
	registry := newFakeRegistry(true)
	peer := newFakePeer(t, "n1", nil)
	registry.add(peer.node, peer.addr())

	coord, errCh := startCoordinator(t, registry)
	waitRoster(t, coord, 1)

	admin := NewAdminServer(coord)
	require.NoError(t, admin.Start("127.0.0.1:0"))
	t.Cleanup(func() { admin.Stop() })

	cl, err := client.NewClient(admin.Addr())
	require.NoError(t, err)
	defer cl.Close()

	require.NoError(t, cl.Shutdown())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop after admin shutdown")
	}
}
