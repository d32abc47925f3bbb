package logstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

var (
	ErrNonContiguousBlock = errors.New("non-contiguous block")
	ErrInvalidBlock       = errors.New("invalid block")
	ErrBlockNotFound      = errors.New("block not found")
	ErrClosed             = errors.New("store closed")
)

// Store is the append-only log record store.
type Store interface {
	// Append adds every log of one block atomically. Once the store holds a
	// block, the next one must be exactly head+1.
	Append(ctx context.Context, block *types.BlockLogs) error
	// SetPending replaces the provisional logs of the block after head.
	SetPending(ctx context.Context, number uint64, logs []*ethtypes.Log) error
	// Head returns the height of the last appended block.
	Head() (uint64, bool)
	// BlockHash returns the hash of a stored block.
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
	// Snapshot returns a consistent read view. Release it when done.
	Snapshot(ctx context.Context) (Snapshot, error)
	// Range streams logs in [from, to] from a fresh snapshot.
	Range(ctx context.Context, from, to types.BlockTag) iter.Seq2[*ethtypes.Log, error]
	Close() error
}

// Snapshot is a point-in-time view of the store.
type Snapshot interface {
	Head() (uint64, bool)
	// Resolve maps a tag onto a height against the snapshot head.
	Resolve(tag types.BlockTag) uint64
	// Logs streams logs of blocks in [from, to] ordered by block, transaction
	// index and log index. Blocks whose bloom is rejected by prefilter are
	// skipped. from > to yields nothing.
	Logs(ctx context.Context, from, to uint64, prefilter BloomFilter) iter.Seq2[*ethtypes.Log, error]
	Release()
}

// BloomFilter reports whether a block with the given bloom may contain
// matching logs. A nil BloomFilter accepts every block.
type BloomFilter func(ethtypes.Bloom) bool

// headView is the head and pending height captured by a snapshot.
type headView struct {
	head       uint64
	hasHead    bool
	pending    uint64
	hasPending bool
}

func (v headView) Head() (uint64, bool) {
	return v.head, v.hasHead
}

func (v headView) Resolve(tag types.BlockTag) uint64 {
	if n, ok := tag.Number(); ok {
		return n
	}
	if !v.hasHead {
		// Nothing appended yet: only the provisional block can be addressed.
		if tag.IsPending() && v.hasPending {
			return v.pending
		}
		return 0
	}
	return tag.Resolve(v.head)
}

// rangeLogs implements Store.Range on top of Store.Snapshot.
func rangeLogs(ctx context.Context, s Store, from, to types.BlockTag) iter.Seq2[*ethtypes.Log, error] {
	return func(yield func(*ethtypes.Log, error) bool) {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer snap.Release()

		for l, err := range snap.Logs(ctx, snap.Resolve(from), snap.Resolve(to), nil) {
			if !yield(l, err) || err != nil {
				return
			}
		}
	}
}

// checkNext validates that number may be appended after the current head.
func checkNext(number, head uint64, hasHead bool) error {
	if !hasHead {
		return nil
	}
	if head == math.MaxUint64 || number != head+1 {
		return fmt.Errorf("%w: head is %d, got %d", ErrNonContiguousBlock, head, number)
	}
	return nil
}

// visiblePending returns p when it sits right after head, or when nothing
// has been appended yet.
func visiblePending(p *blockData, head uint64, hasHead bool) *blockData {
	if p == nil || !hasHead {
		return p
	}
	if head == math.MaxUint64 || p.number != head+1 {
		return nil
	}
	return p
}

// normalizeLogs copies logs, stamps them with the block number and hash and
// orders them by log index. Duplicate log indexes and decreasing transaction
// indexes are rejected.
func normalizeLogs(number uint64, hash common.Hash, logs []*ethtypes.Log) ([]*ethtypes.Log, error) {
	out := make([]*ethtypes.Log, 0, len(logs))
	for i, l := range logs {
		if l == nil {
			return nil, fmt.Errorf("%w: block %d: nil log at position %d", ErrInvalidBlock, number, i)
		}
		if len(l.Topics) > 4 {
			return nil, fmt.Errorf("%w: block %d: log %d has %d topics", ErrInvalidBlock, number, l.Index, len(l.Topics))
		}
		if l.Index > math.MaxUint32 || l.TxIndex > math.MaxUint32 {
			return nil, fmt.Errorf("%w: block %d: log index out of range", ErrInvalidBlock, number)
		}
		cp := *l
		cp.BlockNumber = number
		cp.BlockHash = hash
		cp.Topics = append(make([]common.Hash, 0, len(l.Topics)), l.Topics...)
		cp.Data = bytes.Clone(l.Data)
		cp.Removed = false
		out = append(out, &cp)
	}

	slices.SortStableFunc(out, func(a, b *ethtypes.Log) int {
		switch {
		case a.Index < b.Index:
			return -1
		case a.Index > b.Index:
			return 1
		default:
			return 0
		}
	})

	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		if prev.Index == cur.Index {
			return nil, fmt.Errorf("%w: block %d: duplicate log index %d", ErrInvalidBlock, number, cur.Index)
		}
		if cur.TxIndex < prev.TxIndex {
			return nil, fmt.Errorf(
				"%w: block %d: log %d has tx index %d below previous %d",
				ErrInvalidBlock, number, cur.Index, cur.TxIndex, prev.TxIndex,
			)
		}
	}
	return out, nil
}

// blockData is an immutable appended block.
type blockData struct {
	number uint64
	hash   common.Hash
	bloom  ethtypes.Bloom
	logs   []*ethtypes.Log
}

func newBlockData(number uint64, hash common.Hash, logs []*ethtypes.Log) (*blockData, error) {
	normalized, err := normalizeLogs(number, hash, logs)
	if err != nil {
		return nil, err
	}
	return &blockData{
		number: number,
		hash:   hash,
		bloom:  types.LogsBloom(normalized),
		logs:   normalized,
	}, nil
}

// yield streams the logs of b unless prefilter rejects it.
// It returns false when the consumer stopped.
func (b *blockData) yield(prefilter BloomFilter, yield func(*ethtypes.Log, error) bool) bool {
	if prefilter != nil && !prefilter(b.bloom) {
		return true
	}
	for _, l := range b.logs {
		if !yield(l, nil) {
			return false
		}
	}
	return true
}
