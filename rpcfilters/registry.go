package rpcfilters

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/verif-proxy/chain"
	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/logutils"
	"github.com/status-im/verif-proxy/metrics"
)

// maxPendingHashes caps the buffer of a pending transaction filter that is never polled.
const maxPendingHashes = 4096

// ChangeSource answers the queries filters need. The node implements it.
type ChangeSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	// Logs returns the logs matching criteria in blocks [from, to].
	Logs(ctx context.Context, criteria chain.LogFilter, from, to uint64) ([]*types.Log, error)
	// BlockHashes returns the hashes of a run of blocks within [from, to] in ascending
	// order. last is the number of the final block the run covers, a run that stops short
	// of to leaves the rest for the next poll.
	BlockHashes(ctx context.Context, from, to uint64) (hashes []common.Hash, last uint64, err error)
}

// Registry holds installed filters. Ids come from a counter starting at 1 and are never reused.
// Filters live until uninstalled.
type Registry struct {
	filtersMu sync.Mutex
	filters   map[uint64]filter
	lastID    uint64

	source ChangeSource
	log    *zap.Logger
}

func NewRegistry(source ChangeSource) *Registry {
	return &Registry{
		filters: make(map[uint64]filter),
		source:  source,
		log:     logutils.ZapLogger().Named("filters"),
	}
}

func (r *Registry) install(f filter) uint64 {
	r.filtersMu.Lock()
	defer r.filtersMu.Unlock()

	r.lastID++
	id := r.lastID
	r.filters[id] = f
	metrics.SetActiveFilters(len(r.filters))
	r.log.Debug("filter installed", zap.Uint64("id", id), zap.Stringer("kind", f.kind()))
	return id
}

// NewLogFilter installs a log filter reporting logs of blocks after the current head.
func (r *Registry) NewLogFilter(ctx context.Context, criteria chain.LogFilter) (uint64, error) {
	if criteria.BlockHash != nil {
		return 0, fmt.Errorf("blockHash is not supported by filters")
	}
	head, err := r.source.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return r.install(&cursorFilter{criteria: &criteria, cursor: head}), nil
}

// NewBlockFilter installs a filter reporting hashes of blocks after the current head.
func (r *Registry) NewBlockFilter(ctx context.Context) (uint64, error) {
	head, err := r.source.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return r.install(&cursorFilter{cursor: head}), nil
}

// NewPendingTransactionFilter installs a filter reporting hashes passed to AddPendingTransaction.
func (r *Registry) NewPendingTransactionFilter() uint64 {
	return r.install(&hashFilter{})
}

// AddPendingTransaction buffers hash in every pending transaction filter.
func (r *Registry) AddPendingTransaction(hash common.Hash) {
	r.filtersMu.Lock()
	defer r.filtersMu.Unlock()
	for _, f := range r.filters {
		if hf, ok := f.(*hashFilter); ok {
			hf.add(hash)
		}
	}
}

// Uninstall removes the filter. Unknown ids fail with FilterNotFound.
func (r *Registry) Uninstall(id uint64) error {
	r.filtersMu.Lock()
	defer r.filtersMu.Unlock()

	if _, found := r.filters[id]; !found {
		return errors.FilterNotFound(id)
	}
	delete(r.filters, id)
	metrics.SetActiveFilters(len(r.filters))
	r.log.Debug("filter uninstalled", zap.Uint64("id", id))
	return nil
}

func (r *Registry) Len() int {
	r.filtersMu.Lock()
	defer r.filtersMu.Unlock()
	return len(r.filters)
}

// Changes returns what happened since the previous poll: []*types.Log for log filters,
// []common.Hash otherwise. Cursor filters claim their window under the lock and query
// outside of it. A failed query gives the window back.
func (r *Registry) Changes(ctx context.Context, id uint64) (interface{}, error) {
	r.filtersMu.Lock()
	f, found := r.filters[id]
	if !found {
		r.filtersMu.Unlock()
		return nil, errors.FilterNotFound(id)
	}
	if hf, ok := f.(*hashFilter); ok {
		defer r.filtersMu.Unlock()
		return hf.pop(), nil
	}
	r.filtersMu.Unlock()

	cf := f.(*cursorFilter)
	head, err := r.source.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	r.filtersMu.Lock()
	if _, found := r.filters[id]; !found {
		r.filtersMu.Unlock()
		return nil, errors.FilterNotFound(id)
	}
	previous := cf.cursor
	from, to, ok := cf.window(head)
	if ok {
		cf.cursor = to
	}
	r.filtersMu.Unlock()

	if cf.criteria == nil {
		if !ok {
			return []common.Hash{}, nil
		}
		hashes, last, err := r.source.BlockHashes(ctx, from, to)
		if err != nil {
			r.release(cf, previous, to)
			return nil, err
		}
		if last < to {
			r.release(cf, last, to)
		}
		return hashes, nil
	}

	if !ok {
		return []*types.Log{}, nil
	}
	logs, err := r.source.Logs(ctx, *cf.criteria, from, to)
	if err != nil {
		r.release(cf, previous, to)
		return nil, err
	}
	if logs == nil {
		logs = []*types.Log{}
	}
	return logs, nil
}

// release rewinds a claimed window to cursor unless another poll moved it since.
func (r *Registry) release(f *cursorFilter, cursor, claimed uint64) {
	r.filtersMu.Lock()
	defer r.filtersMu.Unlock()
	if f.cursor == claimed {
		f.cursor = cursor
	}
}
