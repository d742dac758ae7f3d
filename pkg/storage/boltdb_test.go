package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/doghair/pkg/types"
)

func newTestLedger(t *testing.T) *BoltLedger {
	t.Helper()
	ledger, err := NewBoltLedger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestPullCycle_CreateGet(t *testing.T) {
	ledger := newTestLedger(t)

	cycle := &types.PullCycle{
		ID:        "cycle-1",
		Repo:      "/home/op/doghair_2026_8_5_10_0_0",
		StartedAt: time.Now().Truncate(time.Second),
		Expected:  3,
	}
	require.NoError(t, ledger.CreatePullCycle(cycle))

	got, err := ledger.GetPullCycle("cycle-1")
	require.NoError(t, err)
	assert.Equal(t, cycle.Repo, got.Repo)
	assert.Equal(t, 3, got.Expected)
	assert.False(t, got.Completed)
}

func TestPullCycle_GetMissing(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.GetPullCycle("absent")
	require.Error(t, err)
}

func TestPullCycle_LastTracksMostRecent(t *testing.T) {
	ledger := newTestLedger(t)

	last, err := ledger.LastPullCycle()
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, ledger.CreatePullCycle(&types.PullCycle{ID: "cycle-1", Expected: 2}))
	require.NoError(t, ledger.CreatePullCycle(&types.PullCycle{ID: "cycle-2", Expected: 3}))

	last, err = ledger.LastPullCycle()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "cycle-2", last.ID)
}

func TestPullCycle_Update(t *testing.T) {
	ledger := newTestLedger(t)

	cycle := &types.PullCycle{ID: "cycle-1", Expected: 2}
	require.NoError(t, ledger.CreatePullCycle(cycle))

	cycle.Transferred = 2
	cycle.Completed = true
	cycle.CompletedAt = time.Now()
	require.NoError(t, ledger.UpdatePullCycle(cycle))

	got, err := ledger.GetPullCycle("cycle-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Transferred)
	assert.True(t, got.Completed)
}

func TestFileReceipts_ScopedToCycle(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.RecordFileReceipt(&types.FileReceipt{
		CycleID: "cycle-1", Node: "n1", Filename: "samples_n1_1.log", Bytes: 100,
	}))
	require.NoError(t, ledger.RecordFileReceipt(&types.FileReceipt{
		CycleID: "cycle-1", Node: "n2", Filename: "samples_n2_1.log", Bytes: 200,
	}))
	require.NoError(t, ledger.RecordFileReceipt(&types.FileReceipt{
		CycleID: "cycle-2", Node: "n1", Filename: "samples_n1_2.log", Bytes: 300,
	}))

	receipts, err := ledger.ListFileReceipts("cycle-1")
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	var total int64
	for _, r := range receipts {
		assert.Equal(t, "cycle-1", r.CycleID)
		total += r.Bytes
	}
	assert.Equal(t, int64(300), total)
}

func TestListPullCycles(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.CreatePullCycle(&types.PullCycle{ID: "a"}))
	require.NoError(t, ledger.CreatePullCycle(&types.PullCycle{ID: "b"}))

	cycles, err := ledger.ListPullCycles()
	require.NoError(t, err)
	assert.Len(t, cycles, 2)
}
