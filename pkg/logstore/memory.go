package logstore

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps every appended block in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	blocks  []*blockData // contiguous, blocks[i].number == blocks[0].number+i
	pending *blockData
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, block *types.BlockLogs) error {
	if block == nil {
		return fmt.Errorf("%w: nil block", ErrInvalidBlock)
	}
	data, err := newBlockData(block.Number, block.Hash, block.Logs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	head, hasHead := s.headLocked()
	if err := checkNext(block.Number, head, hasHead); err != nil {
		return err
	}
	s.blocks = append(s.blocks, data)
	s.pending = nil
	return nil
}

func (s *MemoryStore) SetPending(_ context.Context, number uint64, logs []*ethtypes.Log) error {
	data, err := newBlockData(number, common.Hash{}, logs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	head, hasHead := s.headLocked()
	if err := checkNext(number, head, hasHead); err != nil {
		return err
	}
	s.pending = data
	return nil
}

func (s *MemoryStore) Head() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headLocked()
}

func (s *MemoryStore) headLocked() (uint64, bool) {
	if len(s.blocks) == 0 {
		return 0, false
	}
	return s.blocks[len(s.blocks)-1].number, true
}

func (s *MemoryStore) BlockHash(_ context.Context, number uint64) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return common.Hash{}, ErrClosed
	}
	if len(s.blocks) == 0 || number < s.blocks[0].number || number-s.blocks[0].number >= uint64(len(s.blocks)) {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrBlockNotFound, number)
	}
	return s.blocks[number-s.blocks[0].number].hash, nil
}

func (s *MemoryStore) Snapshot(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	snap := &memorySnapshot{blocks: s.blocks[:len(s.blocks):len(s.blocks)]}
	snap.head, snap.hasHead = s.headLocked()
	if p := visiblePending(s.pending, snap.head, snap.hasHead); p != nil {
		snap.provisional = p
		snap.pending, snap.hasPending = p.number, true
	}
	return snap, nil
}

func (s *MemoryStore) Range(ctx context.Context, from, to types.BlockTag) iter.Seq2[*ethtypes.Log, error] {
	return rangeLogs(ctx, s, from, to)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memorySnapshot struct {
	headView
	blocks      []*blockData
	provisional *blockData
}

func (s *memorySnapshot) Logs(ctx context.Context, from, to uint64, prefilter BloomFilter) iter.Seq2[*ethtypes.Log, error] {
	return func(yield func(*ethtypes.Log, error) bool) {
		if from > to {
			return
		}
		if len(s.blocks) > 0 {
			base := s.blocks[0].number
			last := s.blocks[len(s.blocks)-1].number
			if to >= base && from <= last {
				start := uint64(0)
				if from > base {
					start = from - base
				}
				end := min(to, last) - base
				for i := start; i <= end; i++ {
					if err := ctx.Err(); err != nil {
						yield(nil, err)
						return
					}
					if !s.blocks[i].yield(prefilter, yield) {
						return
					}
				}
			}
		}
		if p := s.provisional; p != nil && p.number >= from && p.number <= to {
			p.yield(prefilter, yield)
		}
	}
}

func (*memorySnapshot) Release() {}
