package mesh

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/doghair/pkg/log"
)

// Flag is the read side of the mesh service's cluster flag.
type Flag interface {
	Meshed(ctx context.Context) (bool, error)
}

// Probe parameters. The coordinator cannot make correctness guarantees
// without a known peer set, so an unmeshed cluster is fatal after the
// retries are exhausted.
const (
	ProbeAttempts   = 3
	ProbeRetryDelay = 5 * time.Second
)

// ErrNotMeshed is returned when the cluster flag stays false for every
// probe attempt.
var ErrNotMeshed = errors.New("cluster can not be meshed")

// WaitMeshed polls the mesh flag up to attempts times, sleeping delay
// after every failed read, the last one included: attempts tries at
// delay each bound the probe to attempts x delay. Read errors count as
// a false flag.
func WaitMeshed(ctx context.Context, flag Flag, attempts int, delay time.Duration) error {
	logger := log.WithComponent("mesh")

	for i := 1; i <= attempts; i++ {
		ok, err := flag.Meshed(ctx)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", i).Msg("mesh flag read failed")
		}
		if ok {
			logger.Info().Int("attempt", i).Msg("cluster is fully meshed")
			return nil
		}

		logger.Debug().Int("attempt", i).Msg("cluster not meshed yet")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return ErrNotMeshed
}
