package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ava-labs/avalanche-logfilter/pkg/filters"
	"github.com/ava-labs/avalanche-logfilter/pkg/metrics"
)

var (
	ErrFilterNotFound = errors.New("filter not found")
	ErrTooManyFilters = errors.New("too many filters")
)

// Filter is a copy of an installed filter. Criteria must not be modified.
type Filter struct {
	ID       rpc.ID
	Criteria *filters.Criteria
	Created  time.Time
	LastUsed time.Time
	// Cursor is the first block not yet returned by a changes poll.
	Cursor uint64
}

// entry is an installed filter. poll serialises changes polls of one filter.
type entry struct {
	Filter
	poll sync.Mutex
}

// Registry is the set of live filters.
type Registry struct {
	cfg     Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	filters map[rpc.ID]*entry

	now   func() time.Time
	newID func() rpc.ID
}

// New creates an empty registry. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Registry {
	return &Registry{
		cfg:     cfg,
		metrics: m,
		filters: make(map[rpc.ID]*entry),
		now:     time.Now,
		newID:   rpc.NewID,
	}
}

// Install validates and stores c under a fresh id. cursor is the first block
// a changes poll will return.
func (r *Registry) Install(c *filters.Criteria, cursor uint64) (rpc.ID, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	stored := c.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.MaxFilters > 0 && len(r.filters) >= r.cfg.MaxFilters {
		return "", fmt.Errorf("%w: limit is %d", ErrTooManyFilters, r.cfg.MaxFilters)
	}

	id := r.newID()
	for _, taken := r.filters[id]; taken; _, taken = r.filters[id] {
		id = r.newID()
	}
	now := r.now()
	r.filters[id] = &entry{Filter: Filter{
		ID:       id,
		Criteria: stored,
		Created:  now,
		LastUsed: now,
		Cursor:   cursor,
	}}
	r.metrics.RecordFilterEvent(metrics.FilterInstalled, 1)
	r.metrics.SetLiveFilters(len(r.filters))
	return id, nil
}

// Uninstall removes id and reports whether it was installed.
func (r *Registry) Uninstall(id rpc.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.filters[id]; !ok {
		return false
	}
	delete(r.filters, id)
	r.metrics.RecordFilterEvent(metrics.FilterUninstalled, 1)
	r.metrics.SetLiveFilters(len(r.filters))
	return true
}

// Lookup returns the filter and resets its expiry clock.
func (r *Registry) Lookup(id rpc.ID) (Filter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.filters[id]
	if !ok {
		return Filter{}, fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}
	e.LastUsed = r.now()
	return e.Filter, nil
}

// Poll runs fn on the current state of id and moves the cursor to the height
// fn returns. Polls of the same filter run one at a time, so each block is
// handed to exactly one of them. The cursor is left alone when fn fails.
func (r *Registry) Poll(id rpc.ID, fn func(Filter) (uint64, error)) error {
	r.mu.Lock()
	e, ok := r.filters[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}

	e.poll.Lock()
	defer e.poll.Unlock()
	f, err := r.Lookup(id)
	if err != nil {
		return err
	}
	next, err := fn(f)
	if err != nil {
		return err
	}
	return r.Advance(id, next)
}

// Advance moves the changes cursor of id forward to next.
func (r *Registry) Advance(id rpc.ID, next uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.filters[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFilterNotFound, id)
	}
	if next > e.Cursor {
		e.Cursor = next
	}
	return nil
}

// Len returns the number of live filters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.filters)
}

// Expire removes every filter unused for longer than the configured timeout
// and returns their ids.
func (r *Registry) Expire() []rpc.ID {
	if r.cfg.Timeout <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	deadline := r.now().Add(-r.cfg.Timeout)
	var expired []rpc.ID
	for id, e := range r.filters {
		if !e.LastUsed.After(deadline) {
			delete(r.filters, id)
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		r.metrics.RecordFilterEvent(metrics.FilterExpired, len(expired))
		r.metrics.SetLiveFilters(len(r.filters))
	}
	return expired
}
