// Package query serves filter operations against the log store and the
// filter registry.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/avalanche-logfilter/pkg/filters"
	"github.com/ava-labs/avalanche-logfilter/pkg/logstore"
	"github.com/ava-labs/avalanche-logfilter/pkg/metrics"
	"github.com/ava-labs/avalanche-logfilter/pkg/registry"
)

const DefaultMaxConcurrentQueries = 16

const (
	MethodNewFilter        = "eth_newFilter"
	MethodGetFilterLogs    = "eth_getFilterLogs"
	MethodGetFilterChanges = "eth_getFilterChanges"
	MethodUninstallFilter  = "eth_uninstallFilter"
	MethodGetLogs          = "eth_getLogs"
)

type Config struct {
	MaxConcurrentQueries int
	Limits               filters.Options
}

func DefaultConfig() Config {
	return Config{MaxConcurrentQueries: DefaultMaxConcurrentQueries}
}

func (c Config) Validate() error {
	if c.MaxConcurrentQueries <= 0 {
		return errors.New("max concurrent queries must be positive")
	}
	if c.Limits.MaxLogs < 0 {
		return errors.New("max logs must not be negative")
	}
	return nil
}

// Service answers filter queries. It is safe for concurrent use.
type Service struct {
	store    logstore.Store
	registry *registry.Registry
	sem      *semaphore.Weighted
	limits   filters.Options
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
}

// New creates a query service. log and m may be nil.
func New(
	cfg Config,
	store logstore.Store,
	reg *registry.Registry,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query config: %w", err)
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		store:    store,
		registry: reg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentQueries)),
		limits:   cfg.Limits,
		log:      log,
		metrics:  m,
	}, nil
}

// NewFilter installs c. Changes polls start at the block after the current head.
func (s *Service) NewFilter(_ context.Context, c *filters.Criteria) (id rpc.ID, err error) {
	defer s.observe(MethodNewFilter, time.Now(), &err)

	var cursor uint64
	if head, ok := s.store.Head(); ok {
		cursor = head + 1
	}
	id, err = s.registry.Install(c, cursor)
	if err != nil {
		return "", err
	}
	s.log.Debugw("installed filter", "id", id, "cursor", cursor)
	return id, nil
}

// GetFilterLogs evaluates the criteria of filter id over the whole store.
// A nil id is a malformed call and never reaches the registry.
func (s *Service) GetFilterLogs(ctx context.Context, id *rpc.ID) (logs []*ethtypes.Log, err error) {
	defer s.observe(MethodGetFilterLogs, time.Now(), &err)

	if id == nil {
		return nil, fmt.Errorf("%w: missing filter id", filters.ErrInvalidParams)
	}
	f, err := s.registry.Lookup(*id)
	if err != nil {
		return nil, err
	}
	logs, err = s.evaluate(ctx, f.Criteria)
	if err != nil {
		return nil, err
	}
	s.metrics.AddLogsReturned(len(logs))
	return logs, nil
}

// GetFilterChanges returns matching logs of blocks appended since the last
// poll of id, then moves the filter cursor past the current head. Concurrent
// polls of one id never return the same logs twice.
func (s *Service) GetFilterChanges(ctx context.Context, id rpc.ID) (logs []*ethtypes.Log, err error) {
	defer s.observe(MethodGetFilterChanges, time.Now(), &err)

	logs = []*ethtypes.Log{}
	err = s.registry.Poll(id, func(f registry.Filter) (uint64, error) {
		if err := s.acquire(ctx); err != nil {
			return 0, err
		}
		defer s.sem.Release(1)

		snap, err := s.store.Snapshot(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to snapshot store: %w", err)
		}
		defer snap.Release()

		head, ok := snap.Head()
		if !ok {
			return f.Cursor, nil
		}
		// Polling follows the chain: only concrete and earliest bounds narrow it.
		from, to := f.Cursor, head
		if !f.Criteria.FromBlock.IsLatest() && !f.Criteria.FromBlock.IsPending() {
			from = max(from, snap.Resolve(f.Criteria.FromBlock))
		}
		if _, ok := f.Criteria.ToBlock.Number(); ok {
			to = min(to, snap.Resolve(f.Criteria.ToBlock))
		}

		logs, err = filters.EvaluateRange(ctx, snap, f.Criteria, from, to, s.limits)
		if err != nil {
			return 0, err
		}
		return head + 1, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddLogsReturned(len(logs))
	return logs, nil
}

// UninstallFilter removes id and reports whether it was installed.
func (s *Service) UninstallFilter(_ context.Context, id rpc.ID) bool {
	start := time.Now()
	removed := s.registry.Uninstall(id)
	s.metrics.RecordRPCCall(MethodUninstallFilter, nil, time.Since(start).Seconds())
	if removed {
		s.log.Debugw("uninstalled filter", "id", id)
	}
	return removed
}

// GetLogs evaluates c once without installing it.
func (s *Service) GetLogs(ctx context.Context, c *filters.Criteria) (logs []*ethtypes.Log, err error) {
	defer s.observe(MethodGetLogs, time.Now(), &err)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	logs, err = s.evaluate(ctx, c)
	if err != nil {
		return nil, err
	}
	s.metrics.AddLogsReturned(len(logs))
	return logs, nil
}

// BlockNumber returns the store head, or false before the first block.
func (s *Service) BlockNumber() (uint64, bool) {
	return s.store.Head()
}

func (s *Service) evaluate(ctx context.Context, c *filters.Criteria) ([]*ethtypes.Log, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return filters.Evaluate(ctx, s.store, c, s.limits)
}

func (s *Service) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire query slot: %w", err)
	}
	return nil
}

func (s *Service) observe(method string, start time.Time, err *error) {
	s.metrics.RecordRPCCall(method, *err, time.Since(start).Seconds())
	if *err != nil && !isCallerError(*err) {
		s.log.Warnw("query failed", "method", method, "error", *err)
	}
}

// isCallerError reports whether err was caused by the caller's input.
func isCallerError(err error) bool {
	return errors.Is(err, filters.ErrInvalidParams) ||
		errors.Is(err, filters.ErrInvalidRange) ||
		errors.Is(err, filters.ErrBlockRangeTooLarge) ||
		errors.Is(err, filters.ErrTooManyResults) ||
		errors.Is(err, registry.ErrFilterNotFound) ||
		errors.Is(err, registry.ErrTooManyFilters)
}
