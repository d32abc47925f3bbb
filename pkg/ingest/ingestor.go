// Package ingest appends produced blocks to the log store and mirrors them to
// archive sinks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-logfilter/pkg/logstore"
	"github.com/ava-labs/avalanche-logfilter/pkg/metrics"
	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

// ErrIngestionHalted is returned by every call after a block broke the
// store's ordering. Restart with a consistent source to recover.
var ErrIngestionHalted = errors.New("ingestion halted")

// Sink receives every block after it was appended to the store.
type Sink interface {
	Name() string
	WriteBlock(ctx context.Context, block *types.BlockLogs) error
}

// Ingestor is the single writer of a log store.
type Ingestor struct {
	store   logstore.Store
	sinks   []Sink
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu         sync.Mutex
	halted     atomic.Pointer[error]
	started    time.Time
	lastAppend atomic.Int64
}

// New creates an ingestor writing to store. log and m may be nil.
func New(store logstore.Store, log *zap.SugaredLogger, m *metrics.Metrics, sinks ...Sink) *Ingestor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Ingestor{
		store:   store,
		sinks:   sinks,
		log:     log,
		metrics: m,
		started: time.Now(),
	}
}

// Ingest appends block to the store. A block that is already stored with the
// same hash is skipped. Gaps, reorders and hash mismatches halt ingestion.
func (i *Ingestor) Ingest(ctx context.Context, block *types.BlockLogs) error {
	if err := i.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if block == nil {
		i.metrics.IncError(metrics.ErrTypeInvalidBlock)
		return i.halt(fmt.Errorf("%w: nil block", logstore.ErrInvalidBlock))
	}

	if head, ok := i.store.Head(); ok && block.Number <= head {
		return i.redelivered(ctx, block, head)
	}

	start := time.Now()
	if err := i.store.Append(ctx, block); err != nil {
		switch {
		case errors.Is(err, logstore.ErrNonContiguousBlock):
			i.metrics.IncError(metrics.ErrTypeNonContiguousBlock)
			return i.halt(err)
		case errors.Is(err, logstore.ErrInvalidBlock):
			i.metrics.IncError(metrics.ErrTypeInvalidBlock)
			return i.halt(err)
		default:
			return fmt.Errorf("failed to append block %d: %w", block.Number, err)
		}
	}
	now := time.Now()
	i.lastAppend.Store(now.UnixNano())
	i.metrics.RecordAppend(block.Number, len(block.Logs), now.Sub(start).Seconds(), float64(now.Unix()))
	i.log.Debugw("appended block", "number", block.Number, "hash", block.Hash, "logs", len(block.Logs))

	i.writeSinks(ctx, block)
	return nil
}

// SetPending publishes the logs of the block after the head as provisional
// records, replacing any earlier pending block. Pending blocks never halt
// ingestion: one that is stale or malformed is dropped.
func (i *Ingestor) SetPending(ctx context.Context, block *types.BlockLogs) error {
	if err := i.Err(); err != nil {
		return err
	}
	if block == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	err := i.store.SetPending(ctx, block.Number, block.Logs)
	switch {
	case err == nil:
		i.log.Debugw("set pending block", "number", block.Number, "logs", len(block.Logs))
		return nil
	case errors.Is(err, logstore.ErrNonContiguousBlock), errors.Is(err, logstore.ErrInvalidBlock):
		i.log.Debugw("dropping pending block", "number", block.Number, "error", err)
		return nil
	default:
		return fmt.Errorf("failed to set pending block %d: %w", block.Number, err)
	}
}

func (i *Ingestor) redelivered(ctx context.Context, block *types.BlockLogs, head uint64) error {
	stored, err := i.store.BlockHash(ctx, block.Number)
	switch {
	case err == nil && stored == block.Hash:
		i.metrics.IncSkippedBlocks()
		i.log.Debugw("skipping already ingested block", "number", block.Number, "head", head)
		return nil
	case err == nil:
		i.metrics.IncError(metrics.ErrTypeNonContiguousBlock)
		return i.halt(fmt.Errorf("%w: block %d hash %s does not match stored %s",
			logstore.ErrNonContiguousBlock, block.Number, block.Hash, stored))
	case errors.Is(err, logstore.ErrBlockNotFound):
		i.metrics.IncError(metrics.ErrTypeNonContiguousBlock)
		return i.halt(fmt.Errorf("%w: block %d precedes the stored range", logstore.ErrNonContiguousBlock, block.Number))
	default:
		return fmt.Errorf("failed to read hash of block %d: %w", block.Number, err)
	}
}

func (i *Ingestor) writeSinks(ctx context.Context, block *types.BlockLogs) {
	for _, sink := range i.sinks {
		start := time.Now()
		err := sink.WriteBlock(ctx, block)
		i.metrics.RecordSinkWrite(sink.Name(), err, time.Since(start).Seconds())
		if err != nil {
			i.metrics.IncError(metrics.ErrTypeSink)
			i.log.Warnw("failed to write block to sink", "sink", sink.Name(), "number", block.Number, "error", err)
		}
	}
}

func (i *Ingestor) halt(cause error) error {
	i.halted.CompareAndSwap(nil, &cause)
	i.log.Errorw("halting ingestion", "error", cause)
	return i.Err()
}

// Err returns the error that halted ingestion, or nil.
func (i *Ingestor) Err() error {
	if cause := i.halted.Load(); cause != nil {
		return fmt.Errorf("%w: %w", ErrIngestionHalted, *cause)
	}
	return nil
}

// LastAppend returns when a block was last appended, or the creation time of
// the ingestor if none was.
func (i *Ingestor) LastAppend() time.Time {
	if ns := i.lastAppend.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return i.started
}
