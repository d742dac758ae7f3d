package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/doghair/pkg/types"
)

var (
	// Bucket names
	bucketPullCycles   = []byte("pull_cycles")
	bucketFileReceipts = []byte("file_receipts")
	bucketMeta         = []byte("meta")
)

var keyLastCycle = []byte("last_cycle")

// BoltLedger implements Ledger using BoltDB
type BoltLedger struct {
	db *bolt.DB
}

// NewBoltLedger creates a new BoltDB-backed pull ledger
func NewBoltLedger(dataDir string) (*BoltLedger, error) {
	dbPath := filepath.Join(dataDir, "doghair.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketPullCycles,
			bucketFileReceipts,
			bucketMeta,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltLedger{db: db}, nil
}

// Close closes the database
func (l *BoltLedger) Close() error {
	return l.db.Close()
}

// CreatePullCycle records the start of a pull cycle and marks it as the
// most recent one
func (l *BoltLedger) CreatePullCycle(cycle *types.PullCycle) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPullCycles)
		data, err := json.Marshal(cycle)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(cycle.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyLastCycle, []byte(cycle.ID))
	})
}

// UpdatePullCycle upserts a pull cycle record
func (l *BoltLedger) UpdatePullCycle(cycle *types.PullCycle) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPullCycles)
		data, err := json.Marshal(cycle)
		if err != nil {
			return err
		}
		return b.Put([]byte(cycle.ID), data)
	})
}

// GetPullCycle retrieves a pull cycle by ID
func (l *BoltLedger) GetPullCycle(id string) (*types.PullCycle, error) {
	var cycle types.PullCycle
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPullCycles)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("pull cycle not found: %s", id)
		}
		return json.Unmarshal(data, &cycle)
	})
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// LastPullCycle returns the most recently started pull cycle, or nil
// when no pull has ever run
func (l *BoltLedger) LastPullCycle() (*types.PullCycle, error) {
	var cycle *types.PullCycle
	err := l.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketMeta).Get(keyLastCycle)
		if id == nil {
			return nil
		}
		data := tx.Bucket(bucketPullCycles).Get(id)
		if data == nil {
			return nil
		}
		cycle = &types.PullCycle{}
		return json.Unmarshal(data, cycle)
	})
	if err != nil {
		return nil, err
	}
	return cycle, nil
}

// ListPullCycles returns all recorded pull cycles
func (l *BoltLedger) ListPullCycles() ([]*types.PullCycle, error) {
	var cycles []*types.PullCycle
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPullCycles)
		return b.ForEach(func(k, v []byte) error {
			var cycle types.PullCycle
			if err := json.Unmarshal(v, &cycle); err != nil {
				return err
			}
			cycles = append(cycles, &cycle)
			return nil
		})
	})
	return cycles, err
}

// RecordFileReceipt records one fully received file
func (l *BoltLedger) RecordFileReceipt(receipt *types.FileReceipt) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFileReceipts)
		data, err := json.Marshal(receipt)
		if err != nil {
			return err
		}
		return b.Put(receiptKey(receipt), data)
	})
}

// ListFileReceipts returns all receipts recorded for a pull cycle
func (l *BoltLedger) ListFileReceipts(cycleID string) ([]*types.FileReceipt, error) {
	var receipts []*types.FileReceipt
	prefix := []byte(cycleID + "/")
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFileReceipts).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var receipt types.FileReceipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return err
			}
			receipts = append(receipts, &receipt)
		}
		return nil
	})
	return receipts, err
}

func receiptKey(r *types.FileReceipt) []byte {
	return []byte(r.CycleID + "/" + string(r.Node) + "/" + r.Filename)
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
