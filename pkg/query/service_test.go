package query

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/avalanche-logfilter/pkg/filters"
	"github.com/ava-labs/avalanche-logfilter/pkg/logstore"
	"github.com/ava-labs/avalanche-logfilter/pkg/registry"
	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

var (
	token    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	other    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	transfer = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	approval = common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925")
)

func appendBlock(t *testing.T, s logstore.Store, number uint64, logs ...*ethtypes.Log) {
	t.Helper()
	require.NoError(t, s.Append(t.Context(), &types.BlockLogs{
		Number: number,
		Hash:   common.BigToHash(new(big.Int).SetUint64(number)),
		Logs:   logs,
	}))
}

func transferLog(addr common.Address, index uint) *ethtypes.Log {
	return &ethtypes.Log{Address: addr, Topics: []common.Hash{transfer}, TxIndex: index, Index: index}
}

func newTestService(t *testing.T, store logstore.Store, cfg Config) *Service {
	t.Helper()
	svc, err := New(cfg, store, registry.New(registry.Config{}, nil), zaptest.NewLogger(t).Sugar(), nil)
	require.NoError(t, err)
	return svc
}

func TestNewFilter_InvalidRange(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, logstore.NewMemoryStore(), DefaultConfig())

	_, err := svc.NewFilter(t.Context(), &filters.Criteria{
		FromBlock: types.BlockNumber(10),
		ToBlock:   types.BlockNumber(2),
	})
	require.ErrorIs(t, err, filters.ErrInvalidRange)
	require.Zero(t, svc.registry.Len())
}

func TestGetFilterLogs(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	appendBlock(t, store, 1, transferLog(token, 0), transferLog(other, 1))
	appendBlock(t, store, 2, transferLog(token, 0))
	svc := newTestService(t, store, DefaultConfig())
	ctx := t.Context()

	id, err := svc.NewFilter(ctx, &filters.Criteria{
		FromBlock: types.Earliest,
		Addresses: []common.Address{token},
	})
	require.NoError(t, err)

	logs, err := svc.GetFilterLogs(ctx, &id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, uint64(1), logs[0].BlockNumber)
	require.Equal(t, uint64(2), logs[1].BlockNumber)

	// Logs appended after install are visible to later queries.
	appendBlock(t, store, 3, transferLog(token, 0))
	logs, err = svc.GetFilterLogs(ctx, &id)
	require.NoError(t, err)
	require.Len(t, logs, 3)
}

func TestGetFilterLogs_EmptyIsNotError(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	appendBlock(t, store, 1, transferLog(other, 0))
	svc := newTestService(t, store, DefaultConfig())

	id, err := svc.NewFilter(t.Context(), &filters.Criteria{
		FromBlock: types.Earliest,
		Topics:    [][]common.Hash{{approval}},
	})
	require.NoError(t, err)

	logs, err := svc.GetFilterLogs(t.Context(), &id)
	require.NoError(t, err)
	require.NotNil(t, logs)
	require.Empty(t, logs)
}

func TestGetFilterLogs_MissingID(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, logstore.NewMemoryStore(), DefaultConfig())

	_, err := svc.GetFilterLogs(t.Context(), nil)
	require.ErrorIs(t, err, filters.ErrInvalidParams)
	require.NotErrorIs(t, err, registry.ErrFilterNotFound)
}

func TestUninstallFilter_RoundTrip(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, logstore.NewMemoryStore(), DefaultConfig())
	ctx := t.Context()

	id, err := svc.NewFilter(ctx, &filters.Criteria{})
	require.NoError(t, err)
	require.True(t, svc.UninstallFilter(ctx, id))
	require.False(t, svc.UninstallFilter(ctx, id))

	_, err = svc.GetFilterLogs(ctx, &id)
	require.ErrorIs(t, err, registry.ErrFilterNotFound)

	unknown := rpc.ID("0x0123456789abcdef")
	_, err = svc.GetFilterLogs(ctx, &unknown)
	require.ErrorIs(t, err, registry.ErrFilterNotFound)
}

func TestGetFilterChanges(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	appendBlock(t, store, 1, transferLog(token, 0))
	svc := newTestService(t, store, DefaultConfig())
	ctx := t.Context()

	id, err := svc.NewFilter(ctx, &filters.Criteria{Addresses: []common.Address{token}})
	require.NoError(t, err)

	// Blocks appended before install are not changes.
	logs, err := svc.GetFilterChanges(ctx, id)
	require.NoError(t, err)
	require.Empty(t, logs)

	appendBlock(t, store, 2, transferLog(token, 0), transferLog(other, 1))
	appendBlock(t, store, 3, transferLog(token, 0))

	logs, err = svc.GetFilterChanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, uint64(2), logs[0].BlockNumber)
	require.Equal(t, uint64(3), logs[1].BlockNumber)

	// Each log is returned once.
	logs, err = svc.GetFilterChanges(ctx, id)
	require.NoError(t, err)
	require.Empty(t, logs)

	_, err = svc.GetFilterChanges(ctx, "0xdead")
	require.ErrorIs(t, err, registry.ErrFilterNotFound)
}

func TestGetFilterChanges_ConcurrentPolls(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	appendBlock(t, store, 1)
	svc := newTestService(t, store, DefaultConfig())
	ctx := t.Context()

	id, err := svc.NewFilter(ctx, &filters.Criteria{Addresses: []common.Address{token}})
	require.NoError(t, err)
	for n := uint64(2); n <= 11; n++ {
		appendBlock(t, store, n, transferLog(token, 0))
	}

	const pollers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total []*ethtypes.Log
	)
	for range pollers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logs, err := svc.GetFilterChanges(ctx, id)
			if err != nil {
				t.Errorf("poll: %v", err)
				return
			}
			mu.Lock()
			total = append(total, logs...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, total, 10)
	blocks := make(map[uint64]bool, len(total))
	for _, l := range total {
		require.False(t, blocks[l.BlockNumber], "block %d returned twice", l.BlockNumber)
		blocks[l.BlockNumber] = true
	}
}

func TestGetFilterChanges_RespectsToBlock(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	svc := newTestService(t, store, DefaultConfig())
	ctx := t.Context()

	id, err := svc.NewFilter(ctx, &filters.Criteria{ToBlock: types.BlockNumber(2)})
	require.NoError(t, err)
	appendBlock(t, store, 1, transferLog(token, 0))
	appendBlock(t, store, 2, transferLog(token, 0))
	appendBlock(t, store, 3, transferLog(token, 0))

	logs, err := svc.GetFilterChanges(ctx, id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
}

func TestGetLogs(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	appendBlock(t, store, 5, transferLog(token, 0))
	appendBlock(t, store, 6, transferLog(other, 0))
	svc := newTestService(t, store, DefaultConfig())

	logs, err := svc.GetLogs(t.Context(), &filters.Criteria{FromBlock: types.BlockNumber(5)})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	_, err = svc.GetLogs(t.Context(), &filters.Criteria{FromBlock: types.BlockNumber(6), ToBlock: types.BlockNumber(5)})
	require.ErrorIs(t, err, filters.ErrInvalidRange)
	require.Zero(t, svc.registry.Len())
}

func TestGetLogs_Limits(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	for n := uint64(1); n <= 5; n++ {
		appendBlock(t, store, n, transferLog(token, 0))
	}
	cfg := DefaultConfig()
	cfg.Limits = filters.Options{MaxBlockRange: 3, MaxLogs: 2}
	svc := newTestService(t, store, cfg)

	_, err := svc.GetLogs(t.Context(), &filters.Criteria{FromBlock: types.BlockNumber(1)})
	require.ErrorIs(t, err, filters.ErrBlockRangeTooLarge)

	_, err = svc.GetLogs(t.Context(), &filters.Criteria{FromBlock: types.BlockNumber(3)})
	require.ErrorIs(t, err, filters.ErrTooManyResults)

	logs, err := svc.GetLogs(t.Context(), &filters.Criteria{FromBlock: types.BlockNumber(4)})
	require.NoError(t, err)
	require.Len(t, logs, 2)
}

func TestGetLogs_HonoursContextWhileQueued(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.MaxConcurrentQueries = 1
	svc := newTestService(t, store, cfg)

	require.NoError(t, svc.sem.Acquire(t.Context(), 1))
	defer svc.sem.Release(1)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := svc.GetLogs(ctx, &filters.Criteria{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBlockNumber(t *testing.T) {
	t.Parallel()
	store := logstore.NewMemoryStore()
	svc := newTestService(t, store, DefaultConfig())

	_, ok := svc.BlockNumber()
	require.False(t, ok)

	appendBlock(t, store, 42)
	head, ok := svc.BlockNumber()
	require.True(t, ok)
	require.Equal(t, uint64(42), head)
}

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()
	svc, err := New(DefaultConfig(), logstore.NewMemoryStore(), registry.New(registry.Config{}, nil), nil, nil)
	require.NoError(t, err)

	id, err := svc.NewFilter(t.Context(), &filters.Criteria{})
	require.NoError(t, err)
	require.True(t, svc.UninstallFilter(t.Context(), id))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	log := zaptest.NewLogger(t).Sugar()
	reg := registry.New(registry.Config{}, nil)

	_, err := New(Config{}, logstore.NewMemoryStore(), reg, log, nil)
	require.Error(t, err)
	_, err = New(DefaultConfig(), nil, reg, log, nil)
	require.Error(t, err)
	_, err = New(DefaultConfig(), logstore.NewMemoryStore(), nil, log, nil)
	require.Error(t, err)
}
