package logstore

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

var (
	addrA  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrB  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	topic1 = common.HexToHash("0x01")
	topic2 = common.HexToHash("0x02")
)

type storeFactory func(t *testing.T) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"pebble": func(t *testing.T) Store {
			s, err := OpenPebble(DefaultPebbleConfig(t.TempDir()), zaptest.NewLogger(t).Sugar())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func blockHash(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n + 1000))
}

// testBlock builds a block with one log per address, all in transaction 0
// except the last, which lands in transaction 1.
func testBlock(n uint64, addrs ...common.Address) *types.BlockLogs {
	b := &types.BlockLogs{Number: n, Hash: blockHash(n)}
	for i, addr := range addrs {
		tx := uint(0)
		if i == len(addrs)-1 && i > 0 {
			tx = 1
		}
		b.Logs = append(b.Logs, &ethtypes.Log{
			Address: addr,
			Topics:  []common.Hash{topic1, common.BigToHash(new(big.Int).SetUint64(n))},
			Data:    []byte{byte(n), byte(i)},
			TxHash:  common.BigToHash(new(big.Int).SetUint64(uint64(tx) + 1)),
			TxIndex: tx,
			Index:   uint(i),
		})
	}
	return b
}

func collect(t *testing.T, seq func(func(*ethtypes.Log, error) bool)) []*ethtypes.Log {
	t.Helper()
	var out []*ethtypes.Log
	for l, err := range seq {
		require.NoError(t, err)
		out = append(out, l)
	}
	return out
}

type position struct {
	block uint64
	tx    uint
	index uint
}

func positions(logs []*ethtypes.Log) []position {
	out := make([]position, 0, len(logs))
	for _, l := range logs {
		out = append(out, position{l.BlockNumber, l.TxIndex, l.Index})
	}
	return out
}

func appendBlocks(t *testing.T, s Store, blocks ...*types.BlockLogs) {
	t.Helper()
	for _, b := range blocks {
		require.NoError(t, s.Append(t.Context(), b))
	}
}

func TestStore_RangeOrderingAndBounds(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()
			appendBlocks(t, s,
				testBlock(1, addrA),
				testBlock(2, addrA, addrB),
				testBlock(3),
				testBlock(4, addrB, addrA, addrB),
			)

			all := collect(t, s.Range(ctx, types.Earliest, types.Latest))
			require.Equal(t, []position{
				{1, 0, 0},
				{2, 0, 0}, {2, 1, 1},
				{4, 0, 0}, {4, 0, 1}, {4, 1, 2},
			}, positions(all))

			mid := collect(t, s.Range(ctx, types.BlockNumber(2), types.BlockNumber(3)))
			require.Equal(t, []position{{2, 0, 0}, {2, 1, 1}}, positions(mid))

			require.Empty(t, collect(t, s.Range(ctx, types.BlockNumber(4), types.BlockNumber(2))))
			require.Empty(t, collect(t, s.Range(ctx, types.BlockNumber(10), types.BlockNumber(20))))

			beyond := collect(t, s.Range(ctx, types.BlockNumber(4), types.BlockNumber(^uint64(0))))
			require.Len(t, beyond, 3)

			l := all[1]
			require.Equal(t, addrA, l.Address)
			require.Equal(t, blockHash(2), l.BlockHash)
			require.Equal(t, []common.Hash{topic1, common.BigToHash(big.NewInt(2))}, l.Topics)
			require.Equal(t, []byte{2, 0}, l.Data)
		})
	}
}

func TestStore_AppendRejectsGapsAndReorders(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			// The first block may start anywhere.
			appendBlocks(t, s, testBlock(100, addrA), testBlock(101, addrA))

			require.ErrorIs(t, s.Append(ctx, testBlock(103, addrA)), ErrNonContiguousBlock)
			require.ErrorIs(t, s.Append(ctx, testBlock(101, addrA)), ErrNonContiguousBlock)
			require.ErrorIs(t, s.Append(ctx, testBlock(50, addrA)), ErrNonContiguousBlock)

			head, ok := s.Head()
			require.True(t, ok)
			require.Equal(t, uint64(101), head)

			// Rejected blocks leave nothing behind.
			logs := collect(t, s.Range(ctx, types.Earliest, types.BlockNumber(200)))
			require.Len(t, logs, 2)
		})
	}
}

func TestStore_AppendRejectsMalformedBlocks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		block *types.BlockLogs
	}{
		{name: "nil block", block: nil},
		{
			name: "duplicate log index",
			block: &types.BlockLogs{Number: 1, Logs: []*ethtypes.Log{
				{Address: addrA, Index: 0}, {Address: addrB, Index: 0},
			}},
		},
		{
			name: "transaction index goes backwards",
			block: &types.BlockLogs{Number: 1, Logs: []*ethtypes.Log{
				{Address: addrA, TxIndex: 2, Index: 0}, {Address: addrB, TxIndex: 1, Index: 1},
			}},
		},
		{
			name: "too many topics",
			block: &types.BlockLogs{Number: 1, Logs: []*ethtypes.Log{
				{Address: addrA, Topics: make([]common.Hash, 5)},
			}},
		},
		{
			name:  "nil log",
			block: &types.BlockLogs{Number: 1, Logs: []*ethtypes.Log{nil}},
		},
	}

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			for _, tt := range tests {
				s := factory(t)
				err := s.Append(t.Context(), tt.block)
				require.ErrorIs(t, err, ErrInvalidBlock, tt.name)
				_, ok := s.Head()
				require.False(t, ok, tt.name)
			}
		})
	}
}

func TestStore_AppendSortsAndStampsLogs(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			input := &ethtypes.Log{Address: addrB, Topics: []common.Hash{topic2}, Data: []byte{9}, TxIndex: 1, Index: 1, BlockNumber: 77}
			block := &types.BlockLogs{Number: 5, Hash: blockHash(5), Logs: []*ethtypes.Log{
				input,
				{Address: addrA, Topics: []common.Hash{topic1}, Data: []byte{8}, TxIndex: 0, Index: 0},
			}}
			appendBlocks(t, s, block)

			// Mutating the caller's log after append must not leak into the store.
			input.Topics[0] = topic1

			logs := collect(t, s.Range(t.Context(), types.Earliest, types.Latest))
			require.Equal(t, []position{{5, 0, 0}, {5, 1, 1}}, positions(logs))
			require.Equal(t, addrA, logs[0].Address)
			require.Equal(t, topic2, logs[1].Topics[0])
			require.Equal(t, blockHash(5), logs[1].BlockHash)
		})
	}
}

func TestStore_SymbolicBoundsAndPending(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			// Empty store: every tag resolves, nothing comes back.
			require.Empty(t, collect(t, s.Range(ctx, types.Earliest, types.Pending)))

			appendBlocks(t, s, testBlock(1, addrA), testBlock(2, addrB))
			require.ErrorIs(t, s.SetPending(ctx, 5, nil), ErrNonContiguousBlock)
			require.NoError(t, s.SetPending(ctx, 3, []*ethtypes.Log{{Address: addrA, Topics: []common.Hash{topic1}}}))

			latest := collect(t, s.Range(ctx, types.Latest, types.Latest))
			require.Equal(t, []position{{2, 0, 0}}, positions(latest))

			withPending := collect(t, s.Range(ctx, types.Latest, types.Pending))
			require.Equal(t, []position{{2, 0, 0}, {3, 0, 0}}, positions(withPending))
			require.Equal(t, common.Hash{}, withPending[1].BlockHash)

			onlyPending := collect(t, s.Range(ctx, types.Pending, types.Pending))
			require.Len(t, onlyPending, 1)

			// Appending the pending height replaces the provisional logs.
			appendBlocks(t, s, testBlock(3, addrB, addrB))
			afterAppend := collect(t, s.Range(ctx, types.BlockNumber(3), types.Pending))
			require.Equal(t, []position{{3, 0, 0}, {3, 1, 1}}, positions(afterAppend))
			require.Equal(t, addrB, afterAppend[0].Address)
		})
	}
}

func TestStore_AppendDropsProvisionalBlock(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()

			// An empty store accepts a provisional block at any height.
			require.NoError(t, s.SetPending(ctx, 5, []*ethtypes.Log{{Address: addrA, Topics: []common.Hash{topic1}}}))
			onlyPending := collect(t, s.Range(ctx, types.Pending, types.Pending))
			require.Equal(t, []position{{5, 0, 0}}, positions(onlyPending))

			appendBlocks(t, s, testBlock(0, addrB))
			head, ok := s.Head()
			require.True(t, ok)
			require.Equal(t, uint64(0), head)

			concrete := collect(t, s.Range(ctx, types.BlockNumber(0), types.BlockNumber(10)))
			require.Equal(t, []position{{0, 0, 0}}, positions(concrete))
			for _, l := range concrete {
				require.LessOrEqual(t, l.BlockNumber, head)
			}
			require.Empty(t, collect(t, s.Range(ctx, types.Pending, types.Pending)))

			// A provisional block at head+1 is also dropped by the next append.
			require.NoError(t, s.SetPending(ctx, 1, []*ethtypes.Log{{Address: addrA, Topics: []common.Hash{topic1}}}))
			appendBlocks(t, s, testBlock(1))
			require.Empty(t, collect(t, s.Range(ctx, types.BlockNumber(1), types.Pending)))
		})
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()
			appendBlocks(t, s, testBlock(1, addrA), testBlock(2, addrA))

			snap, err := s.Snapshot(ctx)
			require.NoError(t, err)
			defer snap.Release()

			appendBlocks(t, s, testBlock(3, addrA))

			head, ok := snap.Head()
			require.True(t, ok)
			require.Equal(t, uint64(2), head)
			require.Equal(t, uint64(2), snap.Resolve(types.Latest))
			require.Equal(t, uint64(3), snap.Resolve(types.Pending))

			logs := collect(t, snap.Logs(ctx, 0, 10, nil))
			require.Equal(t, []position{{1, 0, 0}, {2, 0, 0}}, positions(logs))
		})
	}
}

func TestStore_BloomPrefilterSkipsBlocks(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()
			appendBlocks(t, s, testBlock(1, addrA), testBlock(2, addrB), testBlock(3, addrA, addrA))

			snap, err := s.Snapshot(ctx)
			require.NoError(t, err)
			defer snap.Release()

			onlyB := func(b ethtypes.Bloom) bool { return ethtypes.BloomLookup(b, addrB) }
			logs := collect(t, snap.Logs(ctx, 0, 3, onlyB))
			require.Equal(t, []position{{2, 0, 0}}, positions(logs))
		})
	}
}

func TestStore_BlockHash(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()
			appendBlocks(t, s, testBlock(7, addrA), testBlock(8))

			h, err := s.BlockHash(ctx, 8)
			require.NoError(t, err)
			require.Equal(t, blockHash(8), h)

			_, err = s.BlockHash(ctx, 6)
			require.ErrorIs(t, err, ErrBlockNotFound)
			_, err = s.BlockHash(ctx, 9)
			require.ErrorIs(t, err, ErrBlockNotFound)
		})
	}
}

func TestStore_RangeStopsEarlyAndHonoursContext(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			appendBlocks(t, s, testBlock(1, addrA, addrB), testBlock(2, addrA, addrB))

			count := 0
			for _, err := range s.Range(t.Context(), types.Earliest, types.Latest) {
				require.NoError(t, err)
				count++
				if count == 3 {
					break
				}
			}
			require.Equal(t, 3, count)

			ctx, cancel := context.WithCancel(t.Context())
			cancel()
			var gotErr error
			for _, err := range s.Range(ctx, types.Earliest, types.Latest) {
				if err != nil {
					gotErr = err
				}
			}
			require.ErrorIs(t, gotErr, context.Canceled)
		})
	}
}

func TestStore_ConcurrentAppendAndRange(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			ctx := t.Context()
			const blocks = 50

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := uint64(1); n <= blocks; n++ {
					if err := s.Append(ctx, testBlock(n, addrA, addrB)); err != nil {
						t.Errorf("append %d: %v", n, err)
						return
					}
				}
			}()

			for range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range 20 {
						logs := make([]*ethtypes.Log, 0)
						for l, err := range s.Range(ctx, types.Earliest, types.Latest) {
							if err != nil {
								t.Errorf("range: %v", err)
								return
							}
							logs = append(logs, l)
						}
						// Whole blocks only: two logs per block, contiguous from 1.
						if len(logs)%2 != 0 {
							t.Errorf("observed partial block: %d logs", len(logs))
							return
						}
						for i, l := range logs {
							if l.BlockNumber != uint64(i/2)+1 {
								t.Errorf("non-contiguous prefix at %d: block %d", i, l.BlockNumber)
								return
							}
						}
					}
				}()
			}
			wg.Wait()
		})
	}
}

func TestStore_Closed(t *testing.T) {
	t.Parallel()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := factory(t)
			require.NoError(t, s.Close())
			require.ErrorIs(t, s.Append(t.Context(), testBlock(1)), ErrClosed)
			_, err := s.Snapshot(t.Context())
			require.ErrorIs(t, err, ErrClosed)
		})
	}
}
