package types

import (
	"fmt"
	"time"
)

// TimeUndefined is the sentinel value for the collection timestamps before
// the first start_collect of a coordinator's lifetime.
const TimeUndefined = "undefined"

// PeerID identifies one collector node in the cluster
type PeerID string

// CollectConfig is the sampling configuration handed to every collector
// at init and reboot. It is recomputed from the environment on demand and
// never cached (see config.InitConfig).
type CollectConfig struct {
	// Interval is the sampling period in milliseconds
	Interval int `json:"interval" yaml:"interval" cbor:"interval"`

	// TopN is the number of top entries a collector reports per sample
	TopN int `json:"topn" yaml:"topn" cbor:"topn"`

	// SMP controls whether collectors sample per-CPU statistics
	SMP bool `json:"smp" yaml:"smp" cbor:"smp"`
}

// Validate checks that the configuration is usable by a collector
func (c CollectConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %d", c.Interval)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("topn must be positive, got %d", c.TopN)
	}
	return nil
}

// PeerAddr is one registered collector node and its control address
type PeerAddr struct {
	Node PeerID
	Addr string
}

// PullCycle records one episode of fetching all peers' sample files into
// a freshly created repository on the coordinator host
type PullCycle struct {
	ID          string    `json:"id"`
	Repo        string    `json:"repo"`
	StartedAt   time.Time `json:"started_at"`
	Expected    int       `json:"expected"`
	Transferred int       `json:"transferred"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// FileReceipt records one file fully received during a pull cycle
type FileReceipt struct {
	CycleID    string    `json:"cycle_id"`
	Node       PeerID    `json:"node"`
	Filename   string    `json:"filename"`
	Bytes      int64     `json:"bytes"`
	ReceivedAt time.Time `json:"received_at"`
}

// StatusReport is the coordinator's answer to a status command
type StatusReport struct {
	Collectors    []PeerID      `json:"collectors" cbor:"collectors"`
	Collecting    bool          `json:"collecting" cbor:"collecting"`
	StartClctTime string        `json:"start_clct_time" cbor:"start_clct_time"`
	EndClctTime   string        `json:"end_clct_time" cbor:"end_clct_time"`
	Config        CollectConfig `json:"config" cbor:"config"`
	LastCycle     *PullCycle    `json:"last_cycle,omitempty" cbor:"last_cycle,omitempty"`
}
