package logstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-logfilter/pkg/types"
)

var _ Store = (*PebbleStore)(nil)

// PebbleConfig configures the on-disk store.
type PebbleConfig struct {
	// DataDir is the Pebble database directory.
	DataDir string
	// CacheSize is the block cache size in bytes.
	CacheSize int64
	// Sync forces a WAL fsync on every appended block.
	Sync bool
}

func DefaultPebbleConfig(dataDir string) PebbleConfig {
	return PebbleConfig{
		DataDir:   dataDir,
		CacheSize: 64 << 20,
		Sync:      true,
	}
}

// PebbleStore persists blocks in a Pebble database. Each block is written in
// a single batch; reads go through Pebble snapshots. Pending logs are kept in
// memory only.
type PebbleStore struct {
	db        *pebble.DB
	log       *zap.SugaredLogger
	writeOpts *pebble.WriteOptions

	// mu orders commits against snapshot creation so a snapshot and the head
	// it reports always agree.
	mu      sync.RWMutex
	head    uint64
	hasHead bool
	pending *blockData
	closed  bool
}

// OpenPebble opens or creates the store at cfg.DataDir and restores the head.
func OpenPebble(cfg PebbleConfig, log *zap.SugaredLogger) (*PebbleStore, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("pebble data dir is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	cache := pebble.NewCache(cfg.CacheSize)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:  cache,
		Logger: log,
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	db, err := pebble.Open(cfg.DataDir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.DataDir, err)
	}

	s := &PebbleStore{
		db:        db,
		log:       log,
		writeOpts: pebble.NoSync,
	}
	if cfg.Sync {
		s.writeOpts = pebble.Sync
	}

	v, closer, err := db.Get(headKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		log.Infow("opened empty log store", "dataDir", cfg.DataDir)
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("failed to read head: %w", err)
	default:
		head, decodeErr := decodeHeight(v)
		closer.Close()
		if decodeErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to decode head: %w", decodeErr)
		}
		s.head, s.hasHead = head, true
		log.Infow("opened log store", "dataDir", cfg.DataDir, "head", head)
	}
	return s, nil
}

func (s *PebbleStore) Append(_ context.Context, block *types.BlockLogs) error {
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
	if err := checkNext(data.number, s.head, s.hasHead); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	for _, l := range data.logs {
		v, err := encodeLog(l)
		if err != nil {
			return fmt.Errorf("failed to encode log %d of block %d: %w", l.Index, data.number, err)
		}
		if err := batch.Set(logKey(data.number, uint32(l.TxIndex), uint32(l.Index)), v, nil); err != nil {
			return fmt.Errorf("failed to stage log: %w", err)
		}
	}
	if err := batch.Set(blockKey(data.number), encodeBlockMeta(data.hash, data.bloom), nil); err != nil {
		return fmt.Errorf("failed to stage block meta: %w", err)
	}
	if err := batch.Set(headKey, encodeHeight(data.number), nil); err != nil {
		return fmt.Errorf("failed to stage head: %w", err)
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("failed to commit block %d: %w", data.number, err)
	}
	s.head, s.hasHead = data.number, true
	s.pending = nil
	return nil
}

func (s *PebbleStore) SetPending(_ context.Context, number uint64, logs []*ethtypes.Log) error {
	data, err := newBlockData(number, common.Hash{}, logs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := checkNext(number, s.head, s.hasHead); err != nil {
		return err
	}
	s.pending = data
	return nil
}

func (s *PebbleStore) Head() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head, s.hasHead
}

func (s *PebbleStore) BlockHash(_ context.Context, number uint64) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return common.Hash{}, ErrClosed
	}
	meta, err := getBlockMeta(s.db, number)
	if err != nil {
		return common.Hash{}, err
	}
	return meta.hash, nil
}

func (s *PebbleStore) Snapshot(_ context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	snap := &pebbleSnapshot{snap: s.db.NewSnapshot()}
	snap.head, snap.hasHead = s.head, s.hasHead
	if p := visiblePending(s.pending, s.head, s.hasHead); p != nil {
		snap.provisional = p
		snap.pending, snap.hasPending = p.number, true
	}
	return snap, nil
}

func (s *PebbleStore) Range(ctx context.Context, from, to types.BlockTag) iter.Seq2[*ethtypes.Log, error] {
	return rangeLogs(ctx, s, from, to)
}

// Close closes the database. Snapshots must be released first.
func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// pebbleReader is satisfied by *pebble.DB and *pebble.Snapshot.
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func getBlockMeta(r pebbleReader, number uint64) (blockMeta, error) {
	v, closer, err := r.Get(blockKey(number))
	if errors.Is(err, pebble.ErrNotFound) {
		return blockMeta{}, fmt.Errorf("%w: %d", ErrBlockNotFound, number)
	}
	if err != nil {
		return blockMeta{}, fmt.Errorf("failed to read block %d: %w", number, err)
	}
	defer closer.Close()
	return decodeBlockMeta(v)
}

type pebbleSnapshot struct {
	headView
	snap        *pebble.Snapshot
	provisional *blockData
	once        sync.Once
}

func (s *pebbleSnapshot) Logs(ctx context.Context, from, to uint64, prefilter BloomFilter) iter.Seq2[*ethtypes.Log, error] {
	return func(yield func(*ethtypes.Log, error) bool) {
		if from > to {
			return
		}
		if s.hasHead && from <= s.head {
			if !s.storedLogs(ctx, from, min(to, s.head), prefilter, yield) {
				return
			}
		}
		if p := s.provisional; p != nil && p.number >= from && p.number <= to {
			p.yield(prefilter, yield)
		}
	}
}

// storedLogs walks the log keys of blocks [from, to]. It returns false when
// iteration must stop.
func (s *pebbleSnapshot) storedLogs(
	ctx context.Context,
	from, to uint64,
	prefilter BloomFilter,
	yield func(*ethtypes.Log, error) bool,
) bool {
	opts := &pebble.IterOptions{LowerBound: logBlockPrefix(from)}
	if to < ^uint64(0) {
		opts.UpperBound = logBlockPrefix(to + 1)
	} else {
		opts.UpperBound = []byte{prefixLog + 1}
	}
	it, err := s.snap.NewIter(opts)
	if err != nil {
		return yield(nil, fmt.Errorf("failed to create iterator: %w", err))
	}
	defer it.Close()

	var (
		current uint64
		meta    blockMeta
		loaded  bool
	)
	for valid := it.First(); valid; {
		number, _, _, err := decodeLogKey(it.Key())
		if err != nil {
			return yield(nil, err)
		}
		if !loaded || number != current {
			if err := ctx.Err(); err != nil {
				return yield(nil, err)
			}
			meta, err = getBlockMeta(s.snap, number)
			if err != nil {
				return yield(nil, err)
			}
			current, loaded = number, true
			if prefilter != nil && !prefilter(meta.bloom) {
				if number == ^uint64(0) {
					break
				}
				valid = it.SeekGE(logBlockPrefix(number + 1))
				continue
			}
		}
		l, err := decodeLog(it.Key(), it.Value(), meta.hash)
		if err != nil {
			return yield(nil, err)
		}
		if !yield(l, nil) {
			return false
		}
		valid = it.Next()
	}
	if err := it.Error(); err != nil {
		return yield(nil, fmt.Errorf("failed to iterate logs: %w", err))
	}
	return true
}

func (s *pebbleSnapshot) Release() {
	s.once.Do(func() {
		s.snap.Close() //nolint:errcheck // only fails on double close
	})
}
