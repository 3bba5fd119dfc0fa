package rpcfilters

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/status-im/verif-proxy/chain"
	proxyerrors "github.com/status-im/verif-proxy/errors"
)

type logsCall struct {
	from, to uint64
}

type fakeSource struct {
	mu        sync.Mutex
	head      uint64
	failNext  bool
	maxHashes uint64
	logsCalls []logsCall
}

func (s *fakeSource) setHead(head uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = head
}

func (s *fakeSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

func (s *fakeSource) Logs(ctx context.Context, criteria chain.LogFilter, from, to uint64) ([]*types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, errors.New("upstream down")
	}
	s.logsCalls = append(s.logsCalls, logsCall{from, to})
	var logs []*types.Log
	for n := from; n <= to; n++ {
		logs = append(logs, &types.Log{BlockNumber: n})
	}
	return logs, nil
}

func (s *fakeSource) BlockHashes(ctx context.Context, from, to uint64) ([]common.Hash, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, 0, errors.New("upstream down")
	}
	if s.maxHashes > 0 && to-from+1 > s.maxHashes {
		to = from + s.maxHashes - 1
	}
	var hashes []common.Hash
	for n := from; n <= to; n++ {
		hashes = append(hashes, common.BigToHash(new(big.Int).SetUint64(n)))
	}
	return hashes, to, nil
}

func TestConcurrentInstallYieldsDistinctIDs(t *testing.T) {
	registry := NewRegistry(&fakeSource{head: 10})

	const n = 100
	ids := make(chan uint64, 3*n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			id, err := registry.NewLogFilter(context.Background(), chain.LogFilter{})
			require.NoError(t, err)
			ids <- id
		}()
		go func() {
			defer wg.Done()
			id, err := registry.NewBlockFilter(context.Background())
			require.NoError(t, err)
			ids <- id
		}()
		go func() {
			defer wg.Done()
			ids <- registry.NewPendingTransactionFilter()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		require.NotZero(t, id)
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	require.Len(t, seen, 3*n)
	require.Equal(t, 3*n, registry.Len())
}

func TestUnknownFilter(t *testing.T) {
	registry := NewRegistry(&fakeSource{head: 10})

	_, err := registry.Changes(context.Background(), 42)
	require.ErrorIs(t, err, proxyerrors.ErrFilterNotFound)
	require.ErrorIs(t, registry.Uninstall(42), proxyerrors.ErrFilterNotFound)

	id := registry.NewPendingTransactionFilter()
	require.NoError(t, registry.Uninstall(id))
	require.ErrorIs(t, registry.Uninstall(id), proxyerrors.ErrFilterNotFound)
	_, err = registry.Changes(context.Background(), id)
	require.ErrorIs(t, err, proxyerrors.ErrFilterNotFound)

	// ids are not reused after uninstall
	require.Greater(t, registry.NewPendingTransactionFilter(), id)
}

func TestLogFilterReportsOnlyNewBlocks(t *testing.T) {
	source := &fakeSource{head: 10}
	registry := NewRegistry(source)

	id, err := registry.NewLogFilter(context.Background(), chain.LogFilter{})
	require.NoError(t, err)
	changes, err := registry.Changes(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, changes)

	source.setHead(13)
	changes, err = registry.Changes(context.Background(), id)
	require.NoError(t, err)
	logs := changes.([]*types.Log)
	require.Len(t, logs, 3)
	require.Equal(t, uint64(11), logs[0].BlockNumber)
	require.Equal(t, uint64(13), logs[2].BlockNumber)

	changes, err = registry.Changes(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestLogFilterHonoursRange(t *testing.T) {
	source := &fakeSource{head: 10}
	registry := NewRegistry(source)

	from, to := chain.NumberTag(15), chain.NumberTag(16)
	id, err := registry.NewLogFilter(context.Background(), chain.LogFilter{FromBlock: &from, ToBlock: &to})
	require.NoError(t, err)

	source.setHead(20)
	changes, err := registry.Changes(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	require.Equal(t, []logsCall{{15, 16}}, source.logsCalls)

	changes, err = registry.Changes(context.Background(), id)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestFailedPollKeepsWindow(t *testing.T) {
	source := &fakeSource{head: 10}
	registry := NewRegistry(source)

	id, err := registry.NewLogFilter(context.Background(), chain.LogFilter{})
	require.NoError(t, err)

	source.setHead(12)
	source.failNext = true
	_, err = registry.Changes(context.Background(), id)
	require.Error(t, err)

	changes, err := registry.Changes(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, changes, 2)
}

func TestLogFilterRejectsBlockHash(t *testing.T) {
	registry := NewRegistry(&fakeSource{head: 10})
	hash := common.HexToHash("0x01")
	_, err := registry.NewLogFilter(context.Background(), chain.LogFilter{BlockHash: &hash})
	require.Error(t, err)
	require.Zero(t, registry.Len())
}

func TestBlockFilter(t *testing.T) {
	source := &fakeSource{head: 5}
	registry := NewRegistry(source)

	id, err := registry.NewBlockFilter(context.Background())
	require.NoError(t, err)

	changes, err := registry.Changes(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{}, changes)

	source.setHead(7)
	changes, err = registry.Changes(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{
		common.BigToHash(big.NewInt(6)),
		common.BigToHash(big.NewInt(7)),
	}, changes)
}

func TestBlockFilterKeepsUnservedBlocks(t *testing.T) {
	source := &fakeSource{head: 5, maxHashes: 2}
	registry := NewRegistry(source)

	id, err := registry.NewBlockFilter(context.Background())
	require.NoError(t, err)

	source.setHead(10)
	var served []common.Hash
	for i := 0; i < 3; i++ {
		changes, err := registry.Changes(context.Background(), id)
		require.NoError(t, err)
		require.LessOrEqual(t, len(changes.([]common.Hash)), 2)
		served = append(served, changes.([]common.Hash)...)
	}
	var expected []common.Hash
	for n := int64(6); n <= 10; n++ {
		expected = append(expected, common.BigToHash(big.NewInt(n)))
	}
	require.Equal(t, expected, served)

	changes, err := registry.Changes(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{}, changes)
}

func TestPendingTransactionFilterDrains(t *testing.T) {
	registry := NewRegistry(&fakeSource{})

	first := registry.NewPendingTransactionFilter()
	registry.AddPendingTransaction(common.HexToHash("0x01"))
	second := registry.NewPendingTransactionFilter()
	registry.AddPendingTransaction(common.HexToHash("0x02"))

	changes, err := registry.Changes(context.Background(), first)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}, changes)

	changes, err = registry.Changes(context.Background(), second)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{common.HexToHash("0x02")}, changes)

	changes, err = registry.Changes(context.Background(), first)
	require.NoError(t, err)
	require.Equal(t, []common.Hash{}, changes)
}

func TestPendingBufferIsBounded(t *testing.T) {
	registry := NewRegistry(&fakeSource{})
	id := registry.NewPendingTransactionFilter()
	for i := 0; i < maxPendingHashes+10; i++ {
		registry.AddPendingTransaction(common.BigToHash(big.NewInt(int64(i))))
	}
	changes, err := registry.Changes(context.Background(), id)
	require.NoError(t, err)
	hashes := changes.([]common.Hash)
	require.Len(t, hashes, maxPendingHashes)
	require.Equal(t, common.BigToHash(big.NewInt(10)), hashes[0])
}
