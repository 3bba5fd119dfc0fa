package node

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/verif-proxy/chain"
	"github.com/status-im/verif-proxy/errors"
)

// GetLogs returns the logs matching filter. A missing range defaults to the latest block.
//
// In verifiable mode every block that returned logs has its receipts proven against the
// header, and the answer must hold exactly the matching logs of those receipts.
func (n *Node) GetLogs(ctx context.Context, filter chain.LogFilter) ([]*types.Log, error) {
	if !n.mode.IsVerifiable() {
		return n.fullLogs(ctx, filter)
	}

	if filter.BlockHash != nil {
		ref, err := n.resolve(ctx, chain.HashTag(*filter.BlockHash))
		if err != nil {
			return nil, err
		}
		logs, err := n.fetchLogs(ctx, filter)
		if err != nil {
			return nil, err
		}
		return n.verifyLogs(ctx, filter, ref.number(), ref.number(), logs)
	}

	from, to := chain.LatestTag(), chain.LatestTag()
	if filter.FromBlock != nil {
		from = *filter.FromBlock
	}
	if filter.ToBlock != nil {
		to = *filter.ToBlock
	}
	fromRef, err := n.resolve(ctx, from)
	if err != nil {
		return nil, err
	}
	toRef, err := n.resolve(ctx, to)
	if err != nil {
		return nil, err
	}
	if fromRef.number() > toRef.number() {
		return nil, fmt.Errorf("invalid block range: from %d is after to %d", fromRef.number(), toRef.number())
	}
	return n.Logs(ctx, filter, fromRef.number(), toRef.number())
}

// Logs returns the logs matching criteria in blocks [from, to].
func (n *Node) Logs(ctx context.Context, criteria chain.LogFilter, from, to uint64) ([]*types.Log, error) {
	ranged := criteria.WithRange(from, to)
	logs, err := n.fetchLogs(ctx, ranged)
	if err != nil || !n.mode.IsVerifiable() {
		return logs, err
	}
	return n.verifyLogs(ctx, ranged, from, to, logs)
}

func (n *Node) fullLogs(ctx context.Context, filter chain.LogFilter) ([]*types.Log, error) {
	for _, tag := range []**chain.BlockTag{&filter.FromBlock, &filter.ToBlock} {
		if *tag == nil || !(*tag).IsRelative() {
			continue
		}
		ref, err := n.resolveFull(ctx, **tag)
		if err != nil {
			return nil, err
		}
		resolved := ref.arg.(chain.BlockTag)
		*tag = &resolved
	}
	return n.fetchLogs(ctx, filter)
}

func (n *Node) fetchLogs(ctx context.Context, filter chain.LogFilter) ([]*types.Log, error) {
	logs := []*types.Log{}
	if err := n.client.Call(ctx, &logs, "eth_getLogs", filter); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*types.Log{}
	}
	return logs, nil
}

func (n *Node) verifyLogs(ctx context.Context, criteria chain.LogFilter, from, to uint64, logs []*types.Log) ([]*types.Log, error) {
	byBlock := make(map[uint64][]*types.Log)
	var order []uint64
	for _, log := range logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			return nil, errors.VerificationFailed("log of block %d is outside of [%d, %d]", log.BlockNumber, from, to)
		}
		if !criteria.Matches(log) {
			return nil, errors.VerificationFailed("log %d of block %d does not match the filter", log.Index, log.BlockNumber)
		}
		if _, seen := byBlock[log.BlockNumber]; !seen {
			order = append(order, log.BlockNumber)
		}
		byBlock[log.BlockNumber] = append(byBlock[log.BlockNumber], log)
	}

	for _, number := range order {
		if err := n.verifyBlockLogs(ctx, criteria, number, byBlock[number]); err != nil {
			return nil, err
		}
	}
	return logs, nil
}

func (n *Node) verifyBlockLogs(ctx context.Context, criteria chain.LogFilter, number uint64, logs []*types.Log) error {
	header, err := n.headerByNumber(ctx, number)
	if err != nil {
		return err
	}
	hash := header.Hash()
	receipts, err := n.blockReceipts(ctx, header)
	if err != nil {
		return err
	}

	expected := make(map[uint]*types.Log)
	for _, receipt := range receipts {
		for _, log := range receipt.Logs() {
			if criteria.Matches(log) {
				expected[log.Index] = log
			}
		}
	}
	if len(expected) != len(logs) {
		return errors.VerificationFailed("block %d has %d matching logs, endpoint returned %d", number, len(expected), len(logs))
	}
	for _, log := range logs {
		if log.BlockHash != hash {
			return errors.VerificationFailed("log %d claims block %s, verified chain has %s", log.Index, log.BlockHash.Hex(), hash.Hex())
		}
		proven, found := expected[log.Index]
		if !found || !sameLog(proven, log) {
			return errors.VerificationFailed("log %d of block %d is not in the proven receipts", log.Index, number)
		}
		delete(expected, log.Index)
	}
	return nil
}

func sameLog(a, b *types.Log) bool {
	if a.Address != b.Address || a.TxHash != b.TxHash || a.TxIndex != b.TxIndex || !bytes.Equal(a.Data, b.Data) {
		return false
	}
	if len(a.Topics) != len(b.Topics) {
		return false
	}
	for i := range a.Topics {
		if a.Topics[i] != b.Topics[i] {
			return false
		}
	}
	return true
}
