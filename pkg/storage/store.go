package storage

import (
	"github.com/cuemby/doghair/pkg/types"
)

// Ledger records pull cycles and the files received during each one.
// The coordinator writes to it from the state core; status reads the
// most recent cycle from it.
type Ledger interface {
	CreatePullCycle(cycle *types.PullCycle) error
	UpdatePullCycle(cycle *types.PullCycle) error
	GetPullCycle(id string) (*types.PullCycle, error)
	LastPullCycle() (*types.PullCycle, error)
	ListPullCycles() ([]*types.PullCycle, error)

	RecordFileReceipt(receipt *types.FileReceipt) error
	ListFileReceipts(cycleID string) ([]*types.FileReceipt, error)

	Close() error
}
