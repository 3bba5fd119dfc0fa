package node

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/status-im/verif-proxy/errors"
)

// GetTransactionByHash returns nil for unknown transactions. In verifiable mode a mined
// transaction must be part of a verified block at the position it claims. A transaction
// without a block is returned after its hash is checked.
func (n *Node) GetTransactionByHash(ctx context.Context, hash common.Hash) (json.RawMessage, error) {
	raw, err := n.client.CallRaw(ctx, "eth_getTransactionByHash", hash)
	if err != nil || raw == nil || !n.mode.IsVerifiable() {
		return raw, err
	}

	tx, err := n.network.DecodeTransaction(raw)
	if err != nil {
		return nil, errors.VerificationFailedWithCause(err, "transaction %s", hash.Hex())
	}
	if tx.Hash() != hash {
		return nil, errors.VerificationFailed("transaction served for %s hashes to %s", hash.Hex(), tx.Hash().Hex())
	}
	if tx.BlockHash() == nil || tx.BlockNumber() == nil || tx.TransactionIndex() == nil {
		n.log.Debug("returning pending transaction", zap.Stringer("hash", hash))
		return raw, nil
	}

	header, err := n.headerByNumber(ctx, *tx.BlockNumber())
	if err != nil {
		return nil, err
	}
	if header.Hash() != *tx.BlockHash() {
		return nil, errors.VerificationFailed("transaction %s claims block %s, verified chain has %s", hash.Hex(), tx.BlockHash().Hex(), header.Hash().Hex())
	}
	block, err := n.verifiedBlock(ctx, header)
	if err != nil {
		return nil, err
	}
	hashes := block.TransactionHashes()
	index := *tx.TransactionIndex()
	if index >= uint64(len(hashes)) || hashes[index] != hash {
		return nil, errors.VerificationFailed("transaction %s is not at index %d of block %s", hash.Hex(), index, header.Hash().Hex())
	}
	if err := tx.VerifyGasPrice(header.BaseFee); err != nil {
		return nil, errors.VerificationFailedWithCause(err, "transaction %s", hash.Hex())
	}
	return raw, nil
}

// GetTransactionByBlockHashAndIndex returns nil when the block or the index is unknown.
func (n *Node) GetTransactionByBlockHashAndIndex(ctx context.Context, blockHash common.Hash, index uint64) (json.RawMessage, error) {
	if !n.mode.IsVerifiable() {
		return n.client.CallRaw(ctx, "eth_getTransactionByBlockHashAndIndex", blockHash, hexutil.Uint64(index))
	}

	header, err := n.headerByHash(ctx, blockHash)
	if err != nil || header == nil {
		return nil, err
	}
	block, err := n.verifiedBlock(ctx, header)
	if err != nil {
		return nil, err
	}
	txs := block.Transactions()
	if index >= uint64(len(txs)) {
		return nil, nil
	}
	return txs[index].MarshalJSON()
}

// GetTransactionReceipt returns nil for unknown or pending transactions. In verifiable mode the
// receipt is taken from the block receipts proven against the receipts root.
func (n *Node) GetTransactionReceipt(ctx context.Context, hash common.Hash) (json.RawMessage, error) {
	raw, err := n.client.CallRaw(ctx, "eth_getTransactionReceipt", hash)
	if err != nil || raw == nil || !n.mode.IsVerifiable() {
		return raw, err
	}

	claimed, err := n.network.DecodeReceipt(raw)
	if err != nil {
		return nil, errors.VerificationFailedWithCause(err, "receipt of %s", hash.Hex())
	}
	header, err := n.headerByNumber(ctx, claimed.BlockNumber())
	if err != nil {
		return nil, err
	}
	if header.Hash() != claimed.BlockHash() {
		return nil, errors.VerificationFailed("receipt of %s claims block %s, verified chain has %s", hash.Hex(), claimed.BlockHash().Hex(), header.Hash().Hex())
	}
	receipts, err := n.blockReceipts(ctx, header)
	if err != nil {
		return nil, err
	}
	index := claimed.TransactionIndex()
	if index >= uint(len(receipts)) || receipts[index].TransactionHash() != hash {
		return nil, errors.VerificationFailed("receipt of %s is not at index %d of block %s", hash.Hex(), index, header.Hash().Hex())
	}
	return receipts[index].MarshalJSON()
}

// SendRawTransaction forwards raw and reports the hash to pending transaction filters. In
// verifiable mode the endpoint must answer with the hash of raw.
func (n *Node) SendRawTransaction(ctx context.Context, raw hexutil.Bytes) (common.Hash, error) {
	var expected common.Hash
	if n.mode.IsVerifiable() {
		var err error
		if expected, err = n.network.TransactionHash(raw); err != nil {
			return common.Hash{}, err
		}
	}

	var hash common.Hash
	if err := n.client.Call(ctx, &hash, "eth_sendRawTransaction", raw); err != nil {
		return common.Hash{}, err
	}
	if n.mode.IsVerifiable() && hash != expected {
		return common.Hash{}, errors.VerificationFailed("endpoint accepted transaction as %s, expected %s", hash.Hex(), expected.Hex())
	}
	n.filters.AddPendingTransaction(hash)
	return hash, nil
}
