package node

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/verif-proxy/chain"
	"github.com/status-im/verif-proxy/errors"
	"github.com/status-im/verif-proxy/execution"
)

// GetBlockByNumber returns the block as JSON, or nil when the endpoint does not know it.
func (n *Node) GetBlockByNumber(ctx context.Context, tag chain.BlockTag, fullTx bool) (json.RawMessage, error) {
	if tag.Kind == chain.Hash {
		return n.GetBlockByHash(ctx, tag.Hash, fullTx)
	}
	ref, err := n.resolve(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !n.mode.IsVerifiable() {
		return n.client.CallRaw(ctx, "eth_getBlockByNumber", ref.arg, fullTx)
	}
	return n.blockJSON(ctx, ref.header, fullTx)
}

func (n *Node) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (json.RawMessage, error) {
	if !n.mode.IsVerifiable() {
		return n.client.CallRaw(ctx, "eth_getBlockByHash", hash, fullTx)
	}

	header, err := n.headerByHash(ctx, hash)
	if err != nil || header == nil {
		return nil, err
	}
	return n.blockJSON(ctx, header, fullTx)
}

func (n *Node) blockJSON(ctx context.Context, header *types.Header, fullTx bool) (json.RawMessage, error) {
	block, err := n.verifiedBlock(ctx, header)
	if err != nil {
		return nil, err
	}
	if !fullTx {
		if block, err = block.WithTransactionHashes(); err != nil {
			return nil, err
		}
	}
	return block.MarshalJSON()
}

// verifiedBlock fetches the full block of a verified header and checks its body against it.
func (n *Node) verifiedBlock(ctx context.Context, header *types.Header) (chain.Block, error) {
	hash := header.Hash()
	raw, err := n.client.CallRaw(ctx, "eth_getBlockByHash", hash, true)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.VerificationFailed("verified block %s is unknown to the execution endpoint", hash.Hex())
	}
	block, err := n.network.DecodeBlock(raw)
	if err != nil {
		return nil, errors.VerificationFailedWithCause(err, "block %s", hash.Hex())
	}
	if block.Header().Hash() != hash || block.DeclaredHash() != hash {
		return nil, errors.VerificationFailed("block served for %s does not match its header", hash.Hex())
	}
	if err := block.VerifyBody(); err != nil {
		return nil, errors.VerificationFailedWithCause(err, "body of block %s", hash.Hex())
	}
	return block, nil
}

// GetBlockTransactionCountByHash returns nil for unknown blocks.
func (n *Node) GetBlockTransactionCountByHash(ctx context.Context, hash common.Hash) (*uint64, error) {
	if !n.mode.IsVerifiable() {
		var count *hexutil.Uint64
		if err := n.client.Call(ctx, &count, "eth_getBlockTransactionCountByHash", hash); err != nil {
			return nil, err
		}
		return (*uint64)(count), nil
	}

	header, err := n.headerByHash(ctx, hash)
	if err != nil || header == nil {
		return nil, err
	}
	return n.transactionCount(ctx, header)
}

func (n *Node) GetBlockTransactionCountByNumber(ctx context.Context, tag chain.BlockTag) (*uint64, error) {
	ref, err := n.resolve(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !n.mode.IsVerifiable() {
		var count *hexutil.Uint64
		if err := n.client.Call(ctx, &count, "eth_getBlockTransactionCountByNumber", ref.arg); err != nil {
			return nil, err
		}
		return (*uint64)(count), nil
	}
	return n.transactionCount(ctx, ref.header)
}

func (n *Node) transactionCount(ctx context.Context, header *types.Header) (*uint64, error) {
	block, err := n.verifiedBlock(ctx, header)
	if err != nil {
		return nil, err
	}
	count := uint64(len(block.TransactionHashes()))
	return &count, nil
}

// blockReceipts returns the receipts of a verified block once each matches its verified
// transaction and their trie root matches the header.
func (n *Node) blockReceipts(ctx context.Context, header *types.Header) ([]chain.Receipt, error) {
	hash := header.Hash()
	block, err := n.verifiedBlock(ctx, header)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := n.client.Call(ctx, &raws, "eth_getBlockReceipts", execution.BlockArg(header)); err != nil {
		return nil, err
	}
	receipts := make([]chain.Receipt, len(raws))
	for i, raw := range raws {
		receipt, err := n.network.DecodeReceipt(raw)
		if err != nil {
			return nil, errors.VerificationFailedWithCause(err, "receipt %d of block %s", i, hash.Hex())
		}
		receipts[i] = receipt
	}
	if err := n.network.VerifyReceipts(block, receipts); err != nil {
		return nil, errors.VerificationFailedWithCause(err, "receipts of block %s", hash.Hex())
	}
	return receipts, nil
}

// BlockNumber is the number of the latest verified head, or the endpoint head in full mode.
func (n *Node) BlockNumber(ctx context.Context) (uint64, error) {
	return n.LatestBlockNumber(ctx)
}

func (n *Node) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if n.mode.IsVerifiable() {
		head, err := n.latestHead(ctx)
		if err != nil {
			return 0, err
		}
		return head.Number, nil
	}
	var number hexutil.Uint64
	if err := n.client.Call(ctx, &number, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(number), nil
}

// BlockHashes returns the hashes of a run of blocks within [from, to] ending at last.
// Verifiable mode follows parent links down from to and covers at most the ancestor walk
// limit, older blocks are skipped. Full mode serves at most as many blocks from the start
// of the window and stops at the endpoint head, last tells how far it got.
func (n *Node) BlockHashes(ctx context.Context, from, to uint64) (hashes []common.Hash, last uint64, err error) {
	if from > to {
		return []common.Hash{}, to, nil
	}
	if n.mode.IsVerifiable() {
		hashes, err = n.verifiedBlockHashes(ctx, from, to)
		return hashes, to, err
	}

	if to-from+1 > n.maxWalk {
		n.log.Debug("block window clamped", zap.Uint64("from", from), zap.Uint64("to", to), zap.Uint64("limit", n.maxWalk))
		to = from + n.maxWalk - 1
	}
	batch := make([]gethrpc.BatchElem, 0, to-from+1)
	results := make([]*struct {
		Hash common.Hash `json:"hash"`
	}, to-from+1)
	for i := range results {
		batch = append(batch, gethrpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{chain.NumberTag(from + uint64(i)), false},
			Result: &results[i],
		})
	}
	if err := n.client.BatchCall(ctx, batch); err != nil {
		return nil, 0, err
	}
	hashes = make([]common.Hash, 0, len(results))
	for i, elem := range batch {
		if elem.Error != nil {
			return nil, 0, elem.Error
		}
		if results[i] == nil {
			// past the endpoint head
			break
		}
		hashes = append(hashes, results[i].Hash)
	}
	return hashes, from + uint64(len(hashes)) - 1, nil
}

func (n *Node) verifiedBlockHashes(ctx context.Context, from, to uint64) ([]common.Hash, error) {
	if to-from+1 > n.maxWalk {
		n.log.Debug("block window clamped", zap.Uint64("from", from), zap.Uint64("to", to), zap.Uint64("limit", n.maxWalk))
		from = to - n.maxWalk + 1
	}
	header, err := n.headerByNumber(ctx, to)
	if err != nil {
		return nil, err
	}
	hashes := make([]common.Hash, to-from+1)
	for {
		number := header.Number.Uint64()
		hashes[number-from] = header.Hash()
		if number == from {
			return hashes, nil
		}
		if header, err = n.verifiedHeader(ctx, header.ParentHash); err != nil {
			return nil, err
		}
	}
}
