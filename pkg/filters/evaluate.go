package filters

import (
	"context"
	"fmt"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ava-labs/avalanche-logfilter/pkg/logstore"
)

// Options bound the work a single evaluation may do. Zero means unlimited.
type Options struct {
	MaxBlockRange uint64
	MaxLogs       int
}

// Evaluate resolves the block bounds of c against one snapshot of the store
// and returns the matching logs in store order. The result is never nil.
func Evaluate(ctx context.Context, store logstore.Store, c *Criteria, opts Options) ([]*ethtypes.Log, error) {
	snap, err := store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot store: %w", err)
	}
	defer snap.Release()

	from, to := ResolveRange(snap, c)
	return EvaluateRange(ctx, snap, c, from, to, opts)
}

// ResolveRange returns the concrete bounds of c against snap.
func ResolveRange(snap logstore.Snapshot, c *Criteria) (from, to uint64) {
	return snap.Resolve(c.FromBlock), snap.Resolve(c.ToBlock)
}

// EvaluateRange evaluates c over the already resolved range [from, to].
func EvaluateRange(
	ctx context.Context,
	snap logstore.Snapshot,
	c *Criteria,
	from, to uint64,
	opts Options,
) ([]*ethtypes.Log, error) {
	logs := []*ethtypes.Log{}
	if from > to {
		return logs, nil
	}
	if opts.MaxBlockRange > 0 && to-from >= opts.MaxBlockRange {
		return nil, fmt.Errorf("%w: [%d, %d] exceeds %d blocks", ErrBlockRangeTooLarge, from, to, opts.MaxBlockRange)
	}

	for l, err := range snap.Logs(ctx, from, to, BloomFilter(c)) {
		if err != nil {
			return nil, fmt.Errorf("failed to read logs in [%d, %d]: %w", from, to, err)
		}
		if !Matches(c, l) {
			continue
		}
		if opts.MaxLogs > 0 && len(logs) >= opts.MaxLogs {
			return nil, fmt.Errorf("%w: more than %d logs", ErrTooManyResults, opts.MaxLogs)
		}
		logs = append(logs, l)
	}
	return logs, nil
}
